package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// CreateFromText is the single entry point for reminder creation: raw text
// in, persisted and armed reminder out. Rejections (no time expression,
// validation bounds, quota) satisfy reminder.IsRejection.
func (s *Service) CreateFromText(ctx context.Context, ownerID, chatID int64, text string) (*reminder.Reminder, error) {
	cfg := s.config()
	now := s.now()

	intent := s.extractor().Extract(text, now)
	if !intent.HasTime {
		return nil, reminder.ErrNoTime
	}

	r := &reminder.Reminder{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		ChatID:     chatID,
		Message:    intent.CleanedMessage,
		DueAt:      intent.DueAt,
		Status:     reminder.StatusPending,
		MaxSent:    cfg.MaxSent,
		Priority:   intent.Priority,
		Category:   intent.CategoryName,
		Tags:       intent.Tags,
		Notes:      intent.Notes,
		Recurrence: intent.Recurrence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := reminder.Validate(r, now); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, ownerID, cfg, now); err != nil {
		return nil, err
	}

	if err := s.store.SaveReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("persist reminder: %w", err)
	}
	s.arm(r.ID, r.DueAt)
	s.publish(eventbus.EventCreated, r)

	s.log.Info("reminder created",
		logx.String("id", r.ID),
		logx.Int64("owner", ownerID),
		logx.Time("due_at", r.DueAt),
		logx.String("recurrence", string(r.Recurrence)),
	)
	return r.Clone(), nil
}

// Quotas are computed from persisted state at call time, never from an
// in-memory running total. A race at the boundary is benign.
func (s *Service) checkQuota(ctx context.Context, ownerID int64, cfg Config, now time.Time) error {
	active, err := s.store.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("count active reminders: %w", err)
	}
	if active >= cfg.MaxActivePerOwner {
		return &reminder.QuotaError{Kind: "active", Current: active, Limit: cfg.MaxActivePerOwner}
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	created, err := s.store.CountCreatedSince(ctx, ownerID, dayStart)
	if err != nil {
		return fmt.Errorf("count created reminders: %w", err)
	}
	if created >= cfg.MaxCreatedPerDay {
		return &reminder.QuotaError{Kind: "daily", Current: created, Limit: cfg.MaxCreatedPerDay}
	}
	return nil
}

// fire runs on the timer goroutine when a wake-up elapses. Stale callbacks
// (reminder re-armed, archived, or service stopped) are dropped silently.
func (s *Service) fire(id string, ver uint64) {
	mu := s.shard(id)
	mu.Lock()
	defer mu.Unlock()

	if !s.timerCurrent(id, ver) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	r, err := s.store.GetReminder(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.disarm(id)
		return
	}
	if err != nil {
		s.log.Error("load reminder for fire failed", logx.String("id", id), logx.Err(err))
		s.arm(id, s.now().Add(s.config().RepeatInterval))
		return
	}
	if !r.Status.Fireable() {
		s.disarm(id)
		return
	}

	cfg := s.config()
	now := s.now()

	if err := s.sink.Deliver(ctx, r.Clone()); err != nil {
		var held interface{ QuietUntil() time.Time }
		if errors.As(err, &held) {
			s.arm(id, held.QuietUntil())
			return
		}
		// Delivery is expected to be occasionally unreliable; retry on the
		// standard interval without advancing the counter.
		s.log.Warn("delivery failed; will retry", logx.String("id", id), logx.Err(err))
		s.arm(id, now.Add(cfg.RepeatInterval))
		return
	}

	r.SentCount++
	r.LastSentAt = now
	r.Status = reminder.StatusPending
	r.SnoozeUntil = time.Time{}
	r.UpdatedAt = now

	if r.SentCount >= r.MaxSent {
		r.Status = reminder.StatusMaxSentReached
		if err := s.store.AppendHistory(ctx, historyFor(r, reminder.ActionNotified, now)); err != nil {
			s.log.Error("append notified history failed", logx.String("id", id), logx.Err(err))
		}
		if err := s.archiveAndRecur(ctx, r, reminder.ActionMaxSentReached, now); err != nil {
			// Leave the record active under max_sent_reached; the nightly
			// sweep retries the archival. No further timer.
			s.log.Error("archive at max sent failed", logx.String("id", id), logx.Err(err))
			if uerr := s.store.UpdateReminder(ctx, r); uerr != nil {
				s.log.Error("persist max_sent_reached failed", logx.String("id", id), logx.Err(uerr))
				s.arm(id, now.Add(cfg.RepeatInterval))
				return
			}
			s.disarm(id)
		}
		s.publish(eventbus.EventFired, r)
		return
	}

	if err := s.store.UpdateReminder(ctx, r); err != nil {
		// Roll the increment back so the retry fire does not double count.
		r.SentCount--
		s.log.Error("persist sent counter failed", logx.String("id", id), logx.Err(err))
		s.arm(id, now.Add(cfg.RepeatInterval))
		return
	}
	if err := s.store.AppendHistory(ctx, historyFor(r, reminder.ActionNotified, now)); err != nil {
		s.log.Error("append notified history failed", logx.String("id", id), logx.Err(err))
	}
	s.publish(eventbus.EventFired, r)
	s.arm(id, now.Add(cfg.RepeatInterval))
}

// Complete acknowledges a reminder. Recurring reminders spawn their next
// occurrence.
func (s *Service) Complete(ctx context.Context, id string, ownerID int64) error {
	return s.finish(ctx, id, ownerID, reminder.ActionCompleted)
}

// Delete removes a reminder. Deletion ends a recurring series; no next
// occurrence is spawned.
func (s *Service) Delete(ctx context.Context, id string, ownerID int64) error {
	return s.finish(ctx, id, ownerID, reminder.ActionDeleted)
}

// Expire archives a reminder on behalf of the maintenance sweep. No owner
// check.
func (s *Service) Expire(ctx context.Context, id string) error {
	return s.finish(ctx, id, 0, reminder.ActionExpired)
}

func (s *Service) finish(ctx context.Context, id string, ownerID int64, action reminder.Action) error {
	mu := s.shard(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.load(ctx, id, ownerID)
	if err != nil {
		return err
	}
	return s.archiveAndRecur(ctx, r, action, s.now())
}

// archiveAndRecur moves r to history in one storage transaction, then, for
// completed/expired/max-sent outcomes of a recurring reminder, creates the
// next occurrence. Caller holds the id's shard.
func (s *Service) archiveAndRecur(ctx context.Context, r *reminder.Reminder, action reminder.Action, now time.Time) error {
	if err := s.store.Archive(ctx, r.ID, historyFor(r, action, now)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.disarm(r.ID)
			return reminder.ErrNotFound
		}
		return fmt.Errorf("archive reminder: %w", err)
	}
	s.disarm(r.ID)
	s.publish(eventbus.EventArchived, r)
	s.log.Info("reminder archived",
		logx.String("id", r.ID),
		logx.String("action", string(action)),
		logx.Int("sent", r.SentCount),
	)

	if action != reminder.ActionDeleted {
		s.spawnNext(ctx, r, now)
	}
	return nil
}

// spawnNext steps the ORIGINAL due time through the recurrence pattern until
// it lands strictly in the future, honors the recurrence end date, and
// persists a fresh pending clone. Failures here do not undo the archival;
// they are logged and the series ends.
func (s *Service) spawnNext(ctx context.Context, r *reminder.Reminder, now time.Time) {
	next, ok := reminder.NextOccurrence(r.DueAt, r.Recurrence)
	for ok && !next.After(now) {
		next, ok = reminder.NextOccurrence(next, r.Recurrence)
	}
	if !ok {
		return
	}
	if !r.RecurrenceEnd.IsZero() && next.After(r.RecurrenceEnd) {
		return
	}

	nr := r.Clone()
	nr.ID = uuid.NewString()
	nr.DueAt = next
	nr.Status = reminder.StatusPending
	nr.SentCount = 0
	nr.LastSentAt = time.Time{}
	nr.SnoozeUntil = time.Time{}
	nr.CreatedAt = now
	nr.UpdatedAt = now

	if err := s.store.SaveReminder(ctx, nr); err != nil {
		s.log.Error("persist next occurrence failed",
			logx.String("from", r.ID),
			logx.Time("next", next),
			logx.Err(err),
		)
		return
	}
	s.arm(nr.ID, next)
	s.publish(eventbus.EventRecurred, nr)
}

// Delay pushes the due time forward by the configured delay step.
func (s *Service) Delay(ctx context.Context, id string, ownerID int64) (*reminder.Reminder, error) {
	return s.reschedule(ctx, id, ownerID, reminder.StatusDelayed)
}

// Snooze holds notifications until now plus the snooze step. The original
// due time is kept.
func (s *Service) Snooze(ctx context.Context, id string, ownerID int64) (*reminder.Reminder, error) {
	return s.reschedule(ctx, id, ownerID, reminder.StatusSnoozed)
}

func (s *Service) reschedule(ctx context.Context, id string, ownerID int64, to reminder.Status) (*reminder.Reminder, error) {
	mu := s.shard(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.load(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !r.Status.Fireable() {
		return nil, &reminder.ValidationError{Field: "status", Reason: "cannot reschedule " + string(r.Status)}
	}

	cfg := s.config()
	now := s.now()
	switch to {
	case reminder.StatusDelayed:
		r.Status = reminder.StatusDelayed
		r.DueAt = now.Add(cfg.DelayStep)
		r.SnoozeUntil = time.Time{}
	case reminder.StatusSnoozed:
		r.Status = reminder.StatusSnoozed
		r.SnoozeUntil = now.Add(cfg.SnoozeStep)
	}
	r.UpdatedAt = now

	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("persist reschedule: %w", err)
	}
	s.arm(id, r.NextWakeAt())
	if to == reminder.StatusDelayed {
		s.publish(eventbus.EventDelayed, r)
	} else {
		s.publish(eventbus.EventSnoozed, r)
	}
	return r.Clone(), nil
}

// Edit applies the allow-listed field changes. A no-op edit leaves the due
// time and the armed timer target untouched.
func (s *Service) Edit(ctx context.Context, id string, ownerID int64, f EditFields) (*reminder.Reminder, error) {
	mu := s.shard(id)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.load(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	changed, dueChanged := false, false
	if f.Message != nil && *f.Message != r.Message {
		r.Message = *f.Message
		changed = true
	}
	if f.DueAt != nil && !f.DueAt.Equal(r.DueAt) {
		r.DueAt = *f.DueAt
		changed, dueChanged = true, true
	}
	if f.Category != nil && *f.Category != r.Category {
		r.Category = *f.Category
		changed = true
	}
	if f.Priority != nil && *f.Priority != r.Priority {
		r.Priority = *f.Priority
		changed = true
	}
	if f.Tags != nil {
		r.Tags = append([]string(nil), (*f.Tags)...)
		changed = true
	}
	if f.Notes != nil && *f.Notes != r.Notes {
		r.Notes = *f.Notes
		changed = true
	}
	if f.Recurrence != nil && *f.Recurrence != r.Recurrence {
		r.Recurrence = *f.Recurrence
		changed = true
	}
	if !changed {
		return r.Clone(), nil
	}

	now := s.now()
	// A past-due reminder in its re-notify loop may still have its text
	// edited; only a changed due time must be strictly future.
	ref := now
	if !dueChanged && !r.DueAt.After(now) {
		ref = r.DueAt.Add(-time.Nanosecond)
	}
	if err := reminder.Validate(r, ref); err != nil {
		return nil, err
	}

	r.UpdatedAt = now
	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("persist edit: %w", err)
	}
	if dueChanged {
		s.arm(id, r.NextWakeAt())
	}
	return r.Clone(), nil
}

// EditText restates a reminder from free text: the new text goes through the
// same extraction as creation and replaces message, intent fields, and — only
// when the text names one — the due time.
func (s *Service) EditText(ctx context.Context, id string, ownerID int64, text string) (*reminder.Reminder, error) {
	intent := s.extractor().Extract(text, s.now())

	f := EditFields{
		Message:    &intent.CleanedMessage,
		Priority:   &intent.Priority,
		Category:   &intent.CategoryName,
		Tags:       &intent.Tags,
		Notes:      &intent.Notes,
		Recurrence: &intent.Recurrence,
	}
	if intent.HasTime {
		f.DueAt = &intent.DueAt
	}
	return s.Edit(ctx, id, ownerID, f)
}

// List returns the owner's active reminders.
func (s *Service) List(ctx context.Context, ownerID int64) ([]*reminder.Reminder, error) {
	return s.store.FindActiveByOwner(ctx, ownerID)
}

// Get returns one reminder with the owner check applied.
func (s *Service) Get(ctx context.Context, id string, ownerID int64) (*reminder.Reminder, error) {
	r, err := s.load(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

// load fetches an active reminder and enforces ownership. ownerID 0 is the
// system caller (recovery, maintenance).
func (s *Service) load(ctx context.Context, id string, ownerID int64) (*reminder.Reminder, error) {
	r, err := s.store.GetReminder(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, reminder.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reminder: %w", err)
	}
	if ownerID != 0 && r.OwnerID != ownerID {
		return nil, reminder.ErrNotOwner
	}
	return r, nil
}

// Recover rebuilds the timer table from persisted state. Reminders whose
// wake instant elapsed while the process was down fire immediately
// (catch-up), never silently dropped or pushed to a future slot.
func (s *Service) Recover(ctx context.Context) error {
	all, err := s.store.FindAllActive(ctx)
	if err != nil {
		return fmt.Errorf("load active reminders: %w", err)
	}

	now := s.now()
	armed, catchup, parked := 0, 0, 0
	for _, r := range all {
		if r.Status == reminder.StatusMaxSentReached {
			// Already exhausted; the nightly sweep archives these.
			parked++
			continue
		}
		wake := r.NextWakeAt()
		if !wake.After(now) {
			s.arm(r.ID, now)
			catchup++
			continue
		}
		s.arm(r.ID, wake)
		armed++
	}

	s.log.Info("timer table recovered",
		logx.Int("armed", armed),
		logx.Int("catch_up", catchup),
		logx.Int("parked", parked),
	)
	s.publish(eventbus.EventRecovered, nil)
	return nil
}

func (s *Service) publish(typ string, r *reminder.Reminder) {
	if s.bus == nil {
		return
	}
	e := eventbus.Event{Type: typ, Time: s.now()}
	if r != nil {
		e.Data = r.Clone()
	}
	s.bus.Publish(e)
}
