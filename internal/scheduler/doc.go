// Package scheduler owns the reminder lifecycle: creation from raw text,
// the escalating notify loop, delay/snooze round-trips, terminal archival
// with recurrence, and restart recovery.
//
// It behaves as one actor per reminder id: every operation against an id
// runs under that id's lock shard, so arm/disarm/fire/edit interleavings
// are serialized while unrelated reminders proceed concurrently. The timer
// table keeps exactly one pending wake-up per active reminder; re-arming
// bumps a per-id version so a callback from a replaced timer is detected
// and dropped.
//
// Durable state in the store is the only source of truth. On startup the
// table is rebuilt from it, and reminders whose wake instant passed while
// the process was down fire immediately rather than being re-armed for a
// future slot.
package scheduler
