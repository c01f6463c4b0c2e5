package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type fakeStore struct {
	mu      sync.Mutex
	active  map[string]*reminder.Reminder
	history []reminder.HistoryEntry

	failUpdate  error
	failArchive error
}

func newFakeStore() *fakeStore {
	return &fakeStore{active: map[string]*reminder.Reminder{}}
}

func (f *fakeStore) SaveReminder(ctx context.Context, r *reminder.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[r.ID] = r.Clone()
	return nil
}

func (f *fakeStore) UpdateReminder(ctx context.Context, r *reminder.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	if _, ok := f.active[r.ID]; !ok {
		return storage.ErrNotFound
	}
	f.active[r.ID] = r.Clone()
	return nil
}

func (f *fakeStore) GetReminder(ctx context.Context, id string) (*reminder.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.active[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

func (f *fakeStore) Archive(ctx context.Context, id string, e reminder.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failArchive != nil {
		return f.failArchive
	}
	if _, ok := f.active[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.active, id)
	f.history = append(f.history, e)
	return nil
}

func (f *fakeStore) AppendHistory(ctx context.Context, e reminder.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, e)
	return nil
}

func (f *fakeStore) FindActiveByOwner(ctx context.Context, ownerID int64) ([]*reminder.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*reminder.Reminder
	for _, r := range f.active {
		if r.OwnerID == ownerID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeStore) FindAllActive(ctx context.Context) ([]*reminder.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*reminder.Reminder
	for _, r := range f.active {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *fakeStore) CountActiveByOwner(ctx context.Context, ownerID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.active {
		if r.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountCreatedSince(ctx context.Context, ownerID int64, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.active {
		if r.OwnerID == ownerID && !r.CreatedAt.Before(since) {
			n++
		}
	}
	seen := map[string]bool{}
	for _, e := range f.history {
		if e.OwnerID == ownerID && e.Action != reminder.ActionNotified && !e.CreatedAt.Before(since) && !seen[e.ReminderID] {
			seen[e.ReminderID] = true
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) CountHistoryByAction(ctx context.Context, id string, a reminder.Action) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.history {
		if e.ReminderID == id && e.Action == a {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) historyActions(id string) []reminder.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []reminder.Action
	for _, e := range f.history {
		if e.ReminderID == id {
			out = append(out, e.Action)
		}
	}
	return out
}

type fakeSink struct {
	mu        sync.Mutex
	delivered []string
	err       error
	ch        chan string
}

func (f *fakeSink) Deliver(ctx context.Context, r *reminder.Reminder) error {
	f.mu.Lock()
	err := f.err
	if err == nil {
		f.delivered = append(f.delivered, r.ID)
	}
	ch := f.ch
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if ch != nil {
		ch <- r.ID
	}
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

type quietErr struct{ until time.Time }

func (e *quietErr) Error() string         { return "quiet hours" }
func (e *quietErr) QuietUntil() time.Time { return e.until }

var testBase = time.Date(2025, 6, 11, 12, 0, 0, 0, time.Local)

func newTestService(cfg Config) (*Service, *fakeStore, *fakeSink) {
	st := newFakeStore()
	sink := &fakeSink{}
	s := New(cfg, st, sink, eventbus.New(), logx.Nop())
	s.now = func() time.Time { return testBase }
	return s, st, sink
}

// fireNow runs the live timer callback for id synchronously.
func fireNow(s *Service, id string) {
	s.tmu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	ver := s.vers[id]
	s.tmu.Unlock()
	s.fire(id, ver)
}

func mustCreate(t *testing.T, s *Service, text string) *reminder.Reminder {
	t.Helper()
	r, err := s.CreateFromText(context.Background(), 7, 70, text)
	if err != nil {
		t.Fatalf("CreateFromText(%q): %v", text, err)
	}
	return r
}

func TestCreateFromTextPersistsAndArms(t *testing.T) {
	t.Parallel()
	s, st, _ := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "30分钟后提醒我喝水")

	want := testBase.Add(30 * time.Minute)
	if !r.DueAt.Equal(want) {
		t.Fatalf("DueAt = %v, want %v", r.DueAt, want)
	}
	if r.Status != reminder.StatusPending || r.SentCount != 0 || r.MaxSent != 3 {
		t.Fatalf("bad initial state: %+v", r)
	}
	if r.Message != "喝水" {
		t.Fatalf("Message = %q, want 喝水", r.Message)
	}

	stored, err := st.GetReminder(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("not persisted: %v", err)
	}
	if !stored.DueAt.Equal(want) {
		t.Fatalf("stored DueAt = %v", stored.DueAt)
	}
	at, ok := s.armedTarget(r.ID)
	if !ok || !at.Equal(want) {
		t.Fatalf("armed at %v (ok=%v), want %v", at, ok, want)
	}
}

func TestCreateFromTextNoTime(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(Config{})
	defer s.Stop()

	_, err := s.CreateFromText(context.Background(), 7, 70, "提醒我喝水")
	if !errors.Is(err, reminder.ErrNoTime) {
		t.Fatalf("err = %v, want ErrNoTime", err)
	}
	if !reminder.IsRejection(err) {
		t.Fatalf("ErrNoTime should be a rejection")
	}
}

func TestCreateQuotas(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(Config{MaxActivePerOwner: 1, MaxCreatedPerDay: 5})
	defer s.Stop()

	mustCreate(t, s, "1小时后开会")

	_, err := s.CreateFromText(context.Background(), 7, 70, "2小时后复查")
	var qe *reminder.QuotaError
	if !errors.As(err, &qe) || qe.Kind != "active" {
		t.Fatalf("err = %v, want active QuotaError", err)
	}
	if qe.Current != 1 || qe.Limit != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", qe.Current, qe.Limit)
	}
}

func TestCreateDailyQuotaCountsArchived(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(Config{MaxActivePerOwner: 50, MaxCreatedPerDay: 1})
	defer s.Stop()

	r := mustCreate(t, s, "1小时后开会")
	// Completing does not refund the daily budget.
	if err := s.Complete(context.Background(), r.ID, 7); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err := s.CreateFromText(context.Background(), 7, 70, "2小时后复查")
	var qe *reminder.QuotaError
	if !errors.As(err, &qe) || qe.Kind != "daily" {
		t.Fatalf("err = %v, want daily QuotaError", err)
	}
}

func TestCompleteOldReminderKeepsDailyQuota(t *testing.T) {
	t.Parallel()
	s, st, _ := newTestService(Config{MaxActivePerOwner: 50, MaxCreatedPerDay: 1})
	defer s.Stop()

	old := &reminder.Reminder{
		ID: "old-1", OwnerID: 7, ChatID: 70, Message: "交季度报告",
		DueAt: testBase.Add(time.Hour), Status: reminder.StatusPending,
		MaxSent: 3, Priority: reminder.PriorityNormal,
		CreatedAt: testBase.AddDate(0, 0, -10), UpdatedAt: testBase.AddDate(0, 0, -10),
	}
	if err := st.SaveReminder(context.Background(), old); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.Complete(context.Background(), old.ID, 7); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// The archive row carries the old creation time, so today's budget is
	// still free.
	if _, err := s.CreateFromText(context.Background(), 7, 70, "1小时后开会"); err != nil {
		t.Fatalf("CreateFromText: %v", err)
	}
}

func TestFireIncrementsAndRearms(t *testing.T) {
	t.Parallel()
	s, st, sink := newTestService(Config{RepeatInterval: 5 * time.Minute})
	defer s.Stop()

	r := mustCreate(t, s, "10分钟后吃药")
	fireNow(s, r.ID)

	if sink.count() != 1 {
		t.Fatalf("delivered %d, want 1", sink.count())
	}
	stored, err := st.GetReminder(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if stored.SentCount != 1 || stored.LastSentAt.IsZero() {
		t.Fatalf("counter not advanced: %+v", stored)
	}
	if got := st.historyActions(r.ID); len(got) != 1 || got[0] != reminder.ActionNotified {
		t.Fatalf("history = %v, want [notified]", got)
	}
	at, ok := s.armedTarget(r.ID)
	if !ok || !at.Equal(testBase.Add(5*time.Minute)) {
		t.Fatalf("re-armed at %v (ok=%v), want %v", at, ok, testBase.Add(5*time.Minute))
	}
}

func TestFireMaxSentArchivesAndNeverExceeds(t *testing.T) {
	t.Parallel()
	s, st, sink := newTestService(Config{MaxSent: 2})
	defer s.Stop()

	r := mustCreate(t, s, "5分钟后交房租")
	fireNow(s, r.ID)
	fireNow(s, r.ID)
	// A stray extra callback must be a no-op: the record is archived.
	fireNow(s, r.ID)

	if sink.count() != 2 {
		t.Fatalf("delivered %d, want 2", sink.count())
	}
	if _, err := st.GetReminder(context.Background(), r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("still active after max sent: %v", err)
	}
	got := st.historyActions(r.ID)
	want := []reminder.Action{reminder.ActionNotified, reminder.ActionNotified, reminder.ActionMaxSentReached}
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history = %v, want %v", got, want)
		}
	}
	if _, ok := s.armedTarget(r.ID); ok {
		t.Fatalf("timer still armed after archival")
	}
}

func TestFireDeliveryFailureDoesNotCount(t *testing.T) {
	t.Parallel()
	s, st, sink := newTestService(Config{RepeatInterval: 5 * time.Minute})
	defer s.Stop()

	r := mustCreate(t, s, "5分钟后交房租")
	sink.err = errors.New("network down")
	fireNow(s, r.ID)

	stored, _ := st.GetReminder(context.Background(), r.ID)
	if stored.SentCount != 0 || !stored.LastSentAt.IsZero() {
		t.Fatalf("failed delivery advanced counter: %+v", stored)
	}
	if got := st.historyActions(r.ID); len(got) != 0 {
		t.Fatalf("history = %v, want none", got)
	}
	at, ok := s.armedTarget(r.ID)
	if !ok || !at.Equal(testBase.Add(5*time.Minute)) {
		t.Fatalf("retry armed at %v (ok=%v)", at, ok)
	}
}

func TestFirePersistFailureRollsBack(t *testing.T) {
	t.Parallel()
	s, st, sink := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "5分钟后交房租")
	st.failUpdate = errors.New("disk full")
	fireNow(s, r.ID)

	stored, _ := st.GetReminder(context.Background(), r.ID)
	if stored.SentCount != 0 {
		t.Fatalf("SentCount = %d after failed write, want 0", stored.SentCount)
	}

	st.failUpdate = nil
	fireNow(s, r.ID)

	stored, _ = st.GetReminder(context.Background(), r.ID)
	if stored.SentCount != 1 {
		t.Fatalf("SentCount = %d after retry, want 1 (no double count)", stored.SentCount)
	}
	if sink.count() != 2 {
		t.Fatalf("delivered %d, want 2", sink.count())
	}
}

func TestFireQuietHoursHoldsWithoutCounting(t *testing.T) {
	t.Parallel()
	s, st, sink := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "5分钟后交房租")
	open := testBase.Add(3 * time.Hour)
	sink.err = &quietErr{until: open}
	fireNow(s, r.ID)

	stored, _ := st.GetReminder(context.Background(), r.ID)
	if stored.SentCount != 0 {
		t.Fatalf("held delivery advanced counter")
	}
	at, ok := s.armedTarget(r.ID)
	if !ok || !at.Equal(open) {
		t.Fatalf("armed at %v (ok=%v), want window open %v", at, ok, open)
	}
}

func TestCompleteSpawnsNextOccurrence(t *testing.T) {
	t.Parallel()
	s, st, _ := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "每天下午6点提醒我锻炼")
	if r.Recurrence != reminder.RecurDaily {
		t.Fatalf("Recurrence = %q, want daily", r.Recurrence)
	}
	if err := s.Complete(context.Background(), r.ID, 7); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got := st.historyActions(r.ID); len(got) != 1 || got[0] != reminder.ActionCompleted {
		t.Fatalf("history = %v, want [completed]", got)
	}
	rest, _ := st.FindActiveByOwner(context.Background(), 7)
	if len(rest) != 1 {
		t.Fatalf("active after complete = %d, want 1 next occurrence", len(rest))
	}
	next := rest[0]
	if next.ID == r.ID {
		t.Fatalf("next occurrence reused the id")
	}
	wantDue := r.DueAt.AddDate(0, 0, 1)
	if !next.DueAt.Equal(wantDue) {
		t.Fatalf("next DueAt = %v, want %v", next.DueAt, wantDue)
	}
	if next.SentCount != 0 || next.Status != reminder.StatusPending || next.Message != r.Message {
		t.Fatalf("bad clone: %+v", next)
	}
	if _, ok := s.armedTarget(next.ID); !ok {
		t.Fatalf("next occurrence not armed")
	}
}

func TestCompleteRespectsRecurrenceEnd(t *testing.T) {
	t.Parallel()
	s, st, _ := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "每天下午6点提醒我锻炼")
	end := r.DueAt.Add(time.Hour) // next day would exceed
	st.mu.Lock()
	st.active[r.ID].RecurrenceEnd = end
	st.mu.Unlock()

	if err := s.Complete(context.Background(), r.ID, 7); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	rest, _ := st.FindActiveByOwner(context.Background(), 7)
	if len(rest) != 0 {
		t.Fatalf("series should have ended, got %d active", len(rest))
	}
}

func TestDeleteEndsSeries(t *testing.T) {
	t.Parallel()
	s, st, _ := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "每天下午6点提醒我锻炼")
	if err := s.Delete(context.Background(), r.ID, 7); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	rest, _ := st.FindActiveByOwner(context.Background(), 7)
	if len(rest) != 0 {
		t.Fatalf("delete spawned a next occurrence")
	}
	n, _ := st.CountHistoryByAction(context.Background(), r.ID, reminder.ActionDeleted)
	if n != 1 {
		t.Fatalf("deleted history rows = %d, want exactly 1", n)
	}
	if err := s.Delete(context.Background(), r.ID, 7); !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestDelayAndSnooze(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(Config{DelayStep: 10 * time.Minute, SnoozeStep: 30 * time.Minute})
	defer s.Stop()

	r := mustCreate(t, s, "1小时后开会")

	d, err := s.Delay(context.Background(), r.ID, 7)
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if d.Status != reminder.StatusDelayed || !d.DueAt.Equal(testBase.Add(10*time.Minute)) {
		t.Fatalf("after delay: %+v", d)
	}
	if at, _ := s.armedTarget(r.ID); !at.Equal(d.DueAt) {
		t.Fatalf("armed at %v, want %v", at, d.DueAt)
	}

	sn, err := s.Snooze(context.Background(), r.ID, 7)
	if err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	if sn.Status != reminder.StatusSnoozed || !sn.SnoozeUntil.Equal(testBase.Add(30*time.Minute)) {
		t.Fatalf("after snooze: %+v", sn)
	}
	if !sn.DueAt.Equal(d.DueAt) {
		t.Fatalf("snooze changed DueAt: %v", sn.DueAt)
	}
	if at, _ := s.armedTarget(r.ID); !at.Equal(sn.SnoozeUntil) {
		t.Fatalf("armed at %v, want snooze instant %v", at, sn.SnoozeUntil)
	}
}

func TestEditNoOpLeavesTimerUntouched(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "1小时后开会")
	before, _ := s.armedTarget(r.ID)

	same := r.Message
	got, err := s.Edit(context.Background(), r.ID, 7, EditFields{Message: &same})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !got.DueAt.Equal(r.DueAt) {
		t.Fatalf("no-op edit moved DueAt")
	}
	after, _ := s.armedTarget(r.ID)
	if !after.Equal(before) {
		t.Fatalf("no-op edit re-armed: %v -> %v", before, after)
	}
}

func TestEditDueAtRearms(t *testing.T) {
	t.Parallel()
	s, st, _ := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "1小时后开会")
	due := testBase.Add(2 * time.Hour)
	msg := "开周会"
	got, err := s.Edit(context.Background(), r.ID, 7, EditFields{Message: &msg, DueAt: &due})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got.Message != "开周会" || !got.DueAt.Equal(due) {
		t.Fatalf("edit not applied: %+v", got)
	}
	if at, _ := s.armedTarget(r.ID); !at.Equal(due) {
		t.Fatalf("armed at %v, want %v", at, due)
	}
	stored, _ := st.GetReminder(context.Background(), r.ID)
	if stored.Message != "开周会" {
		t.Fatalf("edit not persisted")
	}

	past := testBase.Add(-time.Hour)
	_, err = s.Edit(context.Background(), r.ID, 7, EditFields{DueAt: &past})
	var ve *reminder.ValidationError
	if !errors.As(err, &ve) || ve.Field != "due_at" {
		t.Fatalf("past due edit err = %v, want due_at ValidationError", err)
	}
}

func TestEditTextRestatesReminder(t *testing.T) {
	t.Parallel()
	s, st, _ := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "1小时后提醒我买牛奶")

	got, err := s.EditText(context.Background(), r.ID, 7, "2小时后提醒我买酸奶")
	if err != nil {
		t.Fatalf("EditText: %v", err)
	}
	wantDue := testBase.Add(2 * time.Hour)
	if got.Message != "买酸奶" || !got.DueAt.Equal(wantDue) {
		t.Fatalf("restated reminder = %q due %v, want 买酸奶 due %v", got.Message, got.DueAt, wantDue)
	}
	if at, _ := s.armedTarget(r.ID); !at.Equal(wantDue) {
		t.Fatalf("armed at %v, want %v", at, wantDue)
	}

	// A restatement without a time keeps the old due.
	got, err = s.EditText(context.Background(), r.ID, 7, "买全脂酸奶")
	if err != nil {
		t.Fatalf("EditText without time: %v", err)
	}
	if got.Message != "买全脂酸奶" || !got.DueAt.Equal(wantDue) {
		t.Fatalf("text-only restatement changed due: %+v", got)
	}
	stored, _ := st.GetReminder(context.Background(), r.ID)
	if stored.Message != "买全脂酸奶" {
		t.Fatalf("restatement not persisted")
	}
}

func TestOwnershipEnforced(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "1小时后开会")
	if err := s.Complete(context.Background(), r.ID, 99); !errors.Is(err, reminder.ErrNotOwner) {
		t.Fatalf("Complete as stranger: %v, want ErrNotOwner", err)
	}
	if _, err := s.Delay(context.Background(), r.ID, 99); !errors.Is(err, reminder.ErrNotOwner) {
		t.Fatalf("Delay as stranger: %v, want ErrNotOwner", err)
	}
}

func TestStaleCallbackIgnored(t *testing.T) {
	t.Parallel()
	s, _, sink := newTestService(Config{})
	defer s.Stop()

	r := mustCreate(t, s, "1小时后开会")
	s.tmu.Lock()
	stale := s.vers[r.ID]
	s.tmu.Unlock()

	// Re-arming (e.g. an edit) invalidates the old callback.
	s.arm(r.ID, testBase.Add(2*time.Hour))
	s.fire(r.ID, stale)

	if sink.count() != 0 {
		t.Fatalf("stale callback delivered")
	}
}

func TestRecoverCatchesUpPastDue(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	past := time.Now().Add(-10 * time.Minute)
	seed := &reminder.Reminder{
		ID: "past-due", OwnerID: 7, ChatID: 70,
		Message: "吃药", DueAt: past,
		Status: reminder.StatusPending, MaxSent: 3,
		Priority: reminder.PriorityNormal, Recurrence: reminder.RecurNone,
		CreatedAt: past.Add(-time.Hour), UpdatedAt: past.Add(-time.Hour),
	}
	if err := st.SaveReminder(context.Background(), seed); err != nil {
		t.Fatal(err)
	}
	future := &reminder.Reminder{
		ID: "future", OwnerID: 7, ChatID: 70,
		Message: "开会", DueAt: time.Now().Add(time.Hour),
		Status: reminder.StatusPending, MaxSent: 3,
		Priority: reminder.PriorityNormal, Recurrence: reminder.RecurNone,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := st.SaveReminder(context.Background(), future); err != nil {
		t.Fatal(err)
	}

	sink := &fakeSink{ch: make(chan string, 4)}
	s := New(Config{}, st, sink, eventbus.New(), logx.Nop())
	defer s.Stop()

	if err := s.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	select {
	case id := <-sink.ch:
		if id != "past-due" {
			t.Fatalf("caught up %q, want past-due", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("past-due reminder was not fired on recovery")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, err := st.GetReminder(context.Background(), "past-due")
		if err == nil && stored.SentCount == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sent counter not persisted after catch-up")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if at, ok := s.armedTarget("future"); !ok || !at.Equal(future.DueAt) {
		t.Fatalf("future reminder armed at %v (ok=%v)", at, ok)
	}
}
