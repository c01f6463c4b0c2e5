package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeAdapter struct {
	sent []string
	err  error
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error { return nil }

func TestDeliverSendsFormattedMessage(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	s := New(Config{RatePerSec: 100, SendTimeout: time.Second}, fa, logx.Nop())

	r := &reminder.Reminder{
		ID:      "r1",
		ChatID:  42,
		Message: "买牛奶",
		Tags:    []string{"生活"},
		MaxSent: 3,
	}
	if err := s.Deliver(context.Background(), r); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(fa.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fa.sent))
	}
	if !strings.Contains(fa.sent[0], "买牛奶") || !strings.Contains(fa.sent[0], "#生活") {
		t.Fatalf("unexpected text: %q", fa.sent[0])
	}
}

func TestDeliverPropagatesAdapterError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("telegram down")
	fa := &fakeAdapter{err: wantErr}
	s := New(Config{RatePerSec: 100, SendTimeout: time.Second}, fa, logx.Nop())

	err := s.Deliver(context.Background(), &reminder.Reminder{ID: "r1", ChatID: 1, Message: "x", MaxSent: 3})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestQuietUntil(t *testing.T) {
	t.Parallel()

	loc := time.Local
	at := func(h int) time.Time { return time.Date(2025, 6, 11, h, 30, 0, 0, loc) }

	tests := []struct {
		name       string
		now        time.Time
		start, end int
		held       bool
		openHour   int
		nextDay    bool
	}{
		{name: "disabled", now: at(3), start: 0, end: 0, held: false},
		{name: "inside simple window", now: at(2), start: 1, end: 7, held: true, openHour: 7},
		{name: "outside simple window", now: at(9), start: 1, end: 7, held: false},
		{name: "wrapping window before midnight", now: at(23), start: 22, end: 7, held: true, openHour: 7, nextDay: true},
		{name: "wrapping window after midnight", now: at(5), start: 22, end: 7, held: true, openHour: 7},
		{name: "outside wrapping window", now: at(12), start: 22, end: 7, held: false},
		{name: "boundary end hour is open", now: at(7), start: 1, end: 7, held: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			until, held := quietUntil(tt.now, tt.start, tt.end)
			if held != tt.held {
				t.Fatalf("held = %v, want %v", held, tt.held)
			}
			if !held {
				return
			}
			wantDay := tt.now.Day()
			if tt.nextDay {
				wantDay++
			}
			if until.Hour() != tt.openHour || until.Day() != wantDay {
				t.Fatalf("until = %v, want hour %d day %d", until, tt.openHour, wantDay)
			}
			if !until.After(tt.now) {
				t.Fatalf("until %v not after now %v", until, tt.now)
			}
		})
	}
}

func TestFormatFiredRepeatCounter(t *testing.T) {
	t.Parallel()

	r := &reminder.Reminder{Message: "交房租", SentCount: 1, MaxSent: 3, Priority: reminder.PriorityUrgent}
	got := FormatFired(r)
	if !strings.Contains(got, "2/3") {
		t.Fatalf("repeat counter missing: %q", got)
	}
	if !strings.HasPrefix(got, "‼️") {
		t.Fatalf("urgent marker missing: %q", got)
	}
}
