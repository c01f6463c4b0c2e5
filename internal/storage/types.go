package storage

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/reminder"
)

var (
	ErrClosed = errors.New("storage closed")

	// ErrNotFound mirrors reminder.ErrNotFound at the storage boundary.
	ErrNotFound = errors.New("record not found")
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the durable source of truth for reminders. The scheduler rebuilds
// its entire timer table from FindAllActive on startup, so nothing here may
// depend on in-process state.
type Store interface {
	// SaveReminder inserts a new active reminder.
	SaveReminder(ctx context.Context, r *reminder.Reminder) error
	// UpdateReminder rewrites the mutable fields of an active reminder.
	UpdateReminder(ctx context.Context, r *reminder.Reminder) error
	GetReminder(ctx context.Context, id string) (*reminder.Reminder, error)

	// Archive removes the reminder from active storage and appends the
	// history entry in one transaction: it either fully succeeds or leaves
	// the record active.
	Archive(ctx context.Context, id string, e reminder.HistoryEntry) error

	// AppendHistory writes a non-terminal history row (notified).
	AppendHistory(ctx context.Context, e reminder.HistoryEntry) error

	FindActiveByOwner(ctx context.Context, ownerID int64) ([]*reminder.Reminder, error)
	FindAllActive(ctx context.Context) ([]*reminder.Reminder, error)

	// Owner aggregates for quota checks, computed at call time.
	CountActiveByOwner(ctx context.Context, ownerID int64) (int, error)
	CountCreatedSince(ctx context.Context, ownerID int64, since time.Time) (int, error)

	// PruneHistory drops history rows older than before. Returns rows removed.
	PruneHistory(ctx context.Context, before time.Time) (int64, error)

	// CountHistoryByAction reports history rows for one reminder and action.
	// Used by tests and ops tooling, never by the scheduler.
	CountHistoryByAction(ctx context.Context, reminderID string, action reminder.Action) (int, error)

	Close() error
}
