package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "remind.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleReminder(owner int64) *reminder.Reminder {
	now := time.Now().Truncate(time.Millisecond)
	return &reminder.Reminder{
		ID:         "r-" + time.Now().Format("150405.000000000"),
		OwnerID:    owner,
		ChatID:     owner,
		Message:    "喝水",
		DueAt:      now.Add(time.Hour),
		Status:     reminder.StatusPending,
		MaxSent:    3,
		Priority:   reminder.PriorityNormal,
		Tags:       []string{"健康", "生活"},
		Recurrence: reminder.RecurDaily,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	r := sampleReminder(1)
	if err := st.SaveReminder(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Message != r.Message || got.Status != r.Status || got.MaxSent != r.MaxSent {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.DueAt.Equal(r.DueAt) {
		t.Fatalf("due = %v, want %v", got.DueAt, r.DueAt)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "健康" {
		t.Fatalf("tags = %v", got.Tags)
	}
	if !got.LastSentAt.IsZero() || !got.SnoozeUntil.IsZero() {
		t.Fatalf("nullable timestamps not zero: %+v", got)
	}
}

func TestUpdateMissingReminder(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	r := sampleReminder(2)
	err := st.UpdateReminder(context.Background(), r)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestArchiveIsAtomic(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	r := sampleReminder(3)
	if err := st.SaveReminder(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	entry := reminder.HistoryEntry{
		ReminderID: r.ID, OwnerID: r.OwnerID, ChatID: r.ChatID,
		Message: r.Message, Action: reminder.ActionDeleted,
		DueAt: r.DueAt, OccurredAt: time.Now(),
	}
	if err := st.Archive(ctx, r.ID, entry); err != nil {
		t.Fatalf("archive: %v", err)
	}

	if _, err := st.GetReminder(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reminder still active after archive: %v", err)
	}
	n, err := st.CountHistoryByAction(ctx, r.ID, reminder.ActionDeleted)
	if err != nil {
		t.Fatalf("history count: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted history rows = %d, want 1", n)
	}

	// Archiving again must fail without writing a second history row.
	if err := st.Archive(ctx, r.ID, entry); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second archive err = %v, want ErrNotFound", err)
	}
	n, _ = st.CountHistoryByAction(ctx, r.ID, reminder.ActionDeleted)
	if n != 1 {
		t.Fatalf("deleted history rows after failed archive = %d, want 1", n)
	}
}

func TestOwnerAggregates(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	const owner = int64(7)
	for i := 0; i < 3; i++ {
		r := sampleReminder(owner)
		r.ID = r.ID + "-" + string(rune('a'+i))
		if err := st.SaveReminder(ctx, r); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	other := sampleReminder(99)
	if err := st.SaveReminder(ctx, other); err != nil {
		t.Fatalf("save other: %v", err)
	}

	n, err := st.CountActiveByOwner(ctx, owner)
	if err != nil || n != 3 {
		t.Fatalf("active count = %d (%v), want 3", n, err)
	}
	created, err := st.CountCreatedSince(ctx, owner, time.Now().Add(-time.Minute))
	if err != nil || created != 3 {
		t.Fatalf("created count = %d (%v), want 3", created, err)
	}
	byOwner, err := st.FindActiveByOwner(ctx, owner)
	if err != nil || len(byOwner) != 3 {
		t.Fatalf("find by owner = %d (%v), want 3", len(byOwner), err)
	}
	all, err := st.FindAllActive(ctx)
	if err != nil || len(all) != 4 {
		t.Fatalf("find all = %d (%v), want 4", len(all), err)
	}
}

func TestCountCreatedSinceUsesCreationTime(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	archiveFor := func(r *reminder.Reminder) reminder.HistoryEntry {
		return reminder.HistoryEntry{
			ReminderID: r.ID, OwnerID: r.OwnerID, ChatID: r.ChatID,
			Message: r.Message, Action: reminder.ActionCompleted,
			DueAt: r.DueAt, CreatedAt: r.CreatedAt, OccurredAt: time.Now(),
		}
	}

	// Completing a ten-day-old reminder today must not consume today's
	// creation budget.
	old := sampleReminder(11)
	old.CreatedAt = time.Now().AddDate(0, 0, -10)
	if err := st.SaveReminder(ctx, old); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Archive(ctx, old.ID, archiveFor(old)); err != nil {
		t.Fatalf("archive: %v", err)
	}
	n, err := st.CountCreatedSince(ctx, 11, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0 after archiving an old reminder", n)
	}

	// A reminder both created and archived in the window still counts.
	fresh := sampleReminder(11)
	fresh.ID += "-fresh"
	if err := st.SaveReminder(ctx, fresh); err != nil {
		t.Fatalf("save fresh: %v", err)
	}
	if err := st.Archive(ctx, fresh.ID, archiveFor(fresh)); err != nil {
		t.Fatalf("archive fresh: %v", err)
	}
	n, err = st.CountCreatedSince(ctx, 11, time.Now().Add(-time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("count = %d (%v), want 1", n, err)
	}
}

func TestPruneHistory(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	old := reminder.HistoryEntry{
		ReminderID: "x", Action: reminder.ActionNotified,
		OccurredAt: time.Now().Add(-48 * time.Hour), DueAt: time.Now(),
	}
	fresh := old
	fresh.OccurredAt = time.Now()
	if err := st.AppendHistory(ctx, old); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.AppendHistory(ctx, fresh); err != nil {
		t.Fatalf("append: %v", err)
	}

	n, err := st.PruneHistory(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d rows, want 1", n)
	}
}
