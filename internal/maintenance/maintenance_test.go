package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type sweepStore struct {
	mu     sync.Mutex
	active []*reminder.Reminder
	pruned time.Time
}

func (f *sweepStore) SaveReminder(ctx context.Context, r *reminder.Reminder) error   { return nil }
func (f *sweepStore) UpdateReminder(ctx context.Context, r *reminder.Reminder) error { return nil }

func (f *sweepStore) GetReminder(ctx context.Context, id string) (*reminder.Reminder, error) {
	return nil, storage.ErrNotFound
}

func (f *sweepStore) Archive(ctx context.Context, id string, e reminder.HistoryEntry) error {
	return nil
}

func (f *sweepStore) AppendHistory(ctx context.Context, e reminder.HistoryEntry) error { return nil }

func (f *sweepStore) FindActiveByOwner(ctx context.Context, ownerID int64) ([]*reminder.Reminder, error) {
	return nil, nil
}

func (f *sweepStore) FindAllActive(ctx context.Context) ([]*reminder.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*reminder.Reminder(nil), f.active...), nil
}

func (f *sweepStore) CountActiveByOwner(ctx context.Context, ownerID int64) (int, error) {
	return 0, nil
}

func (f *sweepStore) CountCreatedSince(ctx context.Context, ownerID int64, since time.Time) (int, error) {
	return 0, nil
}

func (f *sweepStore) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = before
	return 3, nil
}

func (f *sweepStore) CountHistoryByAction(ctx context.Context, id string, a reminder.Action) (int, error) {
	return 0, nil
}

func (f *sweepStore) Close() error { return nil }

type recordingExpirer struct {
	mu  sync.Mutex
	ids []string
}

func (e *recordingExpirer) Expire(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
	return nil
}

func TestSweepExpiresOnlyExhausted(t *testing.T) {
	t.Parallel()

	st := &sweepStore{active: []*reminder.Reminder{
		{ID: "live", Status: reminder.StatusPending},
		{ID: "stuck", Status: reminder.StatusMaxSentReached},
		{ID: "napping", Status: reminder.StatusSnoozed},
	}}
	exp := &recordingExpirer{}
	s := New(Config{RetentionDays: 30}, st, exp, logx.Nop())

	s.Sweep(context.Background())

	exp.mu.Lock()
	defer exp.mu.Unlock()
	if len(exp.ids) != 1 || exp.ids[0] != "stuck" {
		t.Fatalf("expired = %v, want [stuck]", exp.ids)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	wantBefore := time.Now().AddDate(0, 0, -30)
	if st.pruned.IsZero() || st.pruned.Sub(wantBefore) > time.Minute || wantBefore.Sub(st.pruned) > time.Minute {
		t.Fatalf("prune cutoff = %v, want ~%v", st.pruned, wantBefore)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{SweepSpec: "not a cron spec"}, &sweepStore{}, &recordingExpirer{}, logx.Nop())
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatalf("bad cron spec accepted")
	}
}
