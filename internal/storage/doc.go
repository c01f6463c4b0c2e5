package storage

// Package storage persists reminders and their append-only history in a
// single sqlite database.
//
// The active table holds one row per live reminder; terminal transitions move
// the row into reminder_history atomically. Recovery after a restart reads
// only this package's state: no wall-clock-relative state survives a process
// boundary.
