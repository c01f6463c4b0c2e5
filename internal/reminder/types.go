package reminder

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a reminder.
//
// Active states live in the reminders table and own exactly one armed timer.
// Terminal outcomes (completed/deleted/expired) never persist as a status:
// the record is archived into history in the same transaction.
type Status string

const (
	StatusPending        Status = "pending"
	StatusDelayed        Status = "delayed"
	StatusSnoozed        Status = "snoozed"
	StatusMaxSentReached Status = "max_sent_reached"
)

// Fireable reports whether a timer callback for this status should deliver.
// Stale callbacks against archived or re-armed reminders are dropped upstream;
// this guards the state itself.
func (s Status) Fireable() bool {
	switch s {
	case StatusPending, StatusDelayed, StatusSnoozed:
		return true
	}
	return false
}

func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusDelayed, StatusSnoozed, StatusMaxSentReached:
		return true
	}
	return false
}

// Action names a history event. History rows are append-only.
type Action string

const (
	ActionNotified       Action = "notified"
	ActionCompleted      Action = "completed"
	ActionDeleted        Action = "deleted"
	ActionExpired        Action = "expired"
	ActionMaxSentReached Action = "max_sent_reached"
)

// Terminal reports whether the action removes the reminder from active storage.
func (a Action) Terminal() bool { return a != ActionNotified }

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityUrgent:
		return PriorityUrgent, true
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityNormal:
		return PriorityNormal, true
	case PriorityLow:
		return PriorityLow, true
	}
	return "", false
}

// Pattern is a recurrence rule. RecurCustom is accepted by validation but is a
// reserved extension point: the recurrence step never interprets it.
type Pattern string

const (
	RecurNone     Pattern = "none"
	RecurDaily    Pattern = "daily"
	RecurWeekly   Pattern = "weekly"
	RecurMonthly  Pattern = "monthly"
	RecurYearly   Pattern = "yearly"
	RecurWorkdays Pattern = "workdays"
	RecurWeekends Pattern = "weekends"
	RecurCustom   Pattern = "custom"
)

func ParsePattern(s string) (Pattern, bool) {
	switch Pattern(strings.ToLower(strings.TrimSpace(s))) {
	case RecurNone:
		return RecurNone, true
	case RecurDaily:
		return RecurDaily, true
	case RecurWeekly:
		return RecurWeekly, true
	case RecurMonthly:
		return RecurMonthly, true
	case RecurYearly:
		return RecurYearly, true
	case RecurWorkdays:
		return RecurWorkdays, true
	case RecurWeekends:
		return RecurWeekends, true
	case RecurCustom:
		return RecurCustom, true
	}
	return "", false
}

// Reminder is the central entity. All timestamps are UTC in storage and are
// compared in the scheduler's location only for calendar arithmetic.
type Reminder struct {
	ID      string
	OwnerID int64
	ChatID  int64

	Message string
	DueAt   time.Time
	Status  Status

	SentCount int
	MaxSent   int

	LastSentAt  time.Time // zero until the first successful delivery
	SnoozeUntil time.Time // zero unless status is snoozed

	Priority Priority
	Category string
	Tags     []string
	Notes    string

	Recurrence    Pattern
	RecurrenceEnd time.Time // zero means open-ended

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy (tags slice included).
func (r *Reminder) Clone() *Reminder {
	cp := *r
	if len(r.Tags) > 0 {
		cp.Tags = append([]string(nil), r.Tags...)
	}
	return &cp
}

// NextWakeAt is the instant the timer table should arm for this reminder.
// Snoozed reminders wake at SnoozeUntil, everything else at DueAt.
func (r *Reminder) NextWakeAt() time.Time {
	if r.Status == StatusSnoozed && !r.SnoozeUntil.IsZero() {
		return r.SnoozeUntil
	}
	return r.DueAt
}

// HistoryEntry is the append-only audit record written at every notify and
// every terminal transition. Immutable once written; the scheduler never
// reads it back.
type HistoryEntry struct {
	ReminderID string
	OwnerID    int64
	ChatID     int64
	Message    string
	Action     Action
	SentCount  int
	DueAt      time.Time
	CreatedAt  time.Time // when the reminder itself was created, not the entry
	OccurredAt time.Time
}

// ParsedIntent is the transient output of text analysis. It is consumed once
// by reminder creation and then discarded; it is never persisted.
type ParsedIntent struct {
	DueAt          time.Time
	HasTime        bool
	Priority       Priority
	CategoryName   string
	Tags           []string
	Notes          string
	Recurrence     Pattern
	CleanedMessage string
}
