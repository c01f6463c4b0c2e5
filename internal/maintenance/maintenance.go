// Package maintenance runs the periodic housekeeping sweep: archiving
// exhausted reminders that could not be archived inline, and pruning old
// history rows past the retention window.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

const (
	defaultSweepSpec     = "0 4 * * *" // nightly, low-traffic hour
	defaultRetentionDays = 90
	sweepTimeout         = 2 * time.Minute
)

type Config struct {
	SweepSpec     string
	RetentionDays int
}

// Expirer is the scheduler operation the sweep archives through, so the
// archival stays atomic and recurrence-aware.
type Expirer interface {
	Expire(ctx context.Context, id string) error
}

type Service struct {
	cfg   Config
	store storage.Store
	exp   Expirer
	log   logx.Logger

	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	running bool
}

func New(cfg Config, store storage.Store, exp Expirer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = defaultSweepSpec
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		exp:    exp,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	sched, err := s.parser.Parse(s.cfg.SweepSpec)
	if err != nil {
		return err
	}
	s.c = cron.New(cron.WithParser(s.parser))
	s.c.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		s.Sweep(ctx)
	}))
	s.c.Start()
	s.running = true
	s.log.Info("maintenance started",
		logx.String("spec", s.cfg.SweepSpec),
		logx.Int("retention_days", s.cfg.RetentionDays),
	)
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	stopCtx := s.c.Stop()
	s.running = false
	// Wait for a running sweep, bounded so shutdown stays snappy.
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn("maintenance stop timed out")
	}
}

// Sweep runs one housekeeping pass. Exposed for the cron job and for tests.
func (s *Service) Sweep(ctx context.Context) {
	expired := s.expireExhausted(ctx)

	before := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	pruned, err := s.store.PruneHistory(ctx, before)
	if err != nil {
		s.log.Error("history prune failed", logx.Err(err))
	}

	s.log.Info("sweep done",
		logx.Int("expired", expired),
		logx.Int64("pruned_history", pruned),
	)
}

// expireExhausted archives reminders parked in max_sent_reached: they were
// fully notified but their inline archival failed at fire time.
func (s *Service) expireExhausted(ctx context.Context) int {
	all, err := s.store.FindAllActive(ctx)
	if err != nil {
		s.log.Error("sweep load failed", logx.Err(err))
		return 0
	}
	n := 0
	for _, r := range all {
		if r.Status != reminder.StatusMaxSentReached {
			continue
		}
		if err := s.exp.Expire(ctx, r.ID); err != nil {
			s.log.Warn("sweep expire failed", logx.String("id", r.ID), logx.Err(err))
			continue
		}
		n++
	}
	return n
}
