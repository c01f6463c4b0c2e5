// Package logx is the bot's structured logging layer, a thin wrapper over
// zerolog that keeps console output readable (short timestamp, short caller),
// file output JSON-structured, and optionally mirrors warnings and errors to
// a Telegram chat behind a rate limit so a noisy failure cannot flood it.
package logx
