package reminder

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Validation bounds. These are schema-level invariants, not policy knobs, so
// they stay constants rather than config.
const (
	MaxMessageLen = 1000 // runes
	MaxNotesLen   = 500  // runes
	MaxTags       = 10
)

// Validate checks the schema-level bounds of a reminder to be created or an
// edited copy before it is persisted. now is the reference instant for the
// strictly-future check.
func Validate(r *Reminder, now time.Time) error {
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		return &ValidationError{Field: "message", Reason: "empty"}
	}
	if utf8.RuneCountInString(msg) > MaxMessageLen {
		return &ValidationError{Field: "message", Reason: "too long"}
	}
	if !r.DueAt.After(now) {
		return &ValidationError{Field: "due_at", Reason: "not in the future"}
	}
	if len(r.Tags) > MaxTags {
		return &ValidationError{Field: "tags", Reason: "too many"}
	}
	for _, tag := range r.Tags {
		if strings.TrimSpace(tag) == "" {
			return &ValidationError{Field: "tags", Reason: "empty tag"}
		}
	}
	if utf8.RuneCountInString(r.Notes) > MaxNotesLen {
		return &ValidationError{Field: "notes", Reason: "too long"}
	}
	if _, ok := ParsePriority(string(r.Priority)); !ok {
		return &ValidationError{Field: "priority", Reason: "unknown value"}
	}
	if _, ok := ParsePattern(string(r.Recurrence)); !ok {
		return &ValidationError{Field: "recurrence", Reason: "unknown value"}
	}
	if !r.RecurrenceEnd.IsZero() && r.RecurrenceEnd.Before(r.DueAt) {
		return &ValidationError{Field: "recurrence_end", Reason: "before due time"}
	}
	return nil
}
