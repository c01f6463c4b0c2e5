package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func TestGoFirstErrorCancelsContext(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))

	boom := errors.New("listener gone")
	s.Go("listener", func(ctx context.Context) error { return boom })
	s.Go("sibling", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := s.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want %v", err, boom)
	}
	select {
	case <-s.Context().Done():
	default:
		t.Fatal("context not canceled after goroutine error")
	}
}

func TestGoConvertsPanicToError(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithCancelOnError(true))

	s.Go("worker", func(ctx context.Context) error { panic("bad state") })

	err := s.Wait(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bad state") {
		t.Fatalf("Wait = %v, want panic error", err)
	}
}

func TestCleanExitsKeepContextAlive(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	defer s.Cancel()

	s.Go0("oneshot", func(ctx context.Context) {})
	s.Go("canceled", func(ctx context.Context) error { return context.Canceled })

	// Drain the two goroutines without tearing anything down.
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(waitCtx); err != nil {
		t.Fatalf("Wait = %v, want nil", err)
	}
	select {
	case <-s.Context().Done():
		t.Fatal("clean exits must not cancel the context")
	default:
	}
}

func TestGoRestartRetriesUntilCanceled(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithCancelOnError(false))

	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) >= 3 {
			s.Cancel()
			return ctx.Err()
		}
		return errors.New("transient")
	},
		WithPublishFirstError(true),
		WithRestartBackoff(time.Millisecond, 4*time.Millisecond),
	)

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(waitCtx); err == nil || !strings.Contains(err.Error(), "transient") {
		t.Fatalf("Wait = %v, want published transient error", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestGoRestartStopsOnCleanExit(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	defer s.Cancel()

	var runs atomic.Int32
	s.GoRestart("oneshot", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, WithRestartBackoff(time.Millisecond, time.Millisecond))

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(waitCtx); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1 (clean exit must not restart)", got)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	s.Go("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}

	s.Cancel()
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait after cancel = %v", err)
	}
}
