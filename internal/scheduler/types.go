package scheduler

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/reminder/parse"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// opTimeout bounds the storage and delivery work done inside a timer
// callback, so one stuck reminder cannot stall the rest.
const opTimeout = 30 * time.Second

// shardCount sizes the per-reminder lock table. Power of two.
const shardCount = 32

// Config holds the operational knobs. All of them are process-wide policy,
// not per-reminder state; Apply swaps them at runtime.
type Config struct {
	// RepeatInterval is the gap between escalating re-notifications of an
	// unacknowledged reminder.
	RepeatInterval time.Duration
	// MaxSent caps notifications per reminder before it is archived.
	MaxSent int

	DelayStep  time.Duration
	SnoozeStep time.Duration

	MaxActivePerOwner int
	MaxCreatedPerDay  int

	// DefaultHour is used by the resolver when text names a day but no time.
	DefaultHour int
}

func (c Config) withDefaults() Config {
	if c.RepeatInterval <= 0 {
		c.RepeatInterval = 5 * time.Minute
	}
	if c.MaxSent <= 0 {
		c.MaxSent = 3
	}
	if c.DelayStep <= 0 {
		c.DelayStep = 10 * time.Minute
	}
	if c.SnoozeStep <= 0 {
		c.SnoozeStep = 30 * time.Minute
	}
	if c.MaxActivePerOwner <= 0 {
		c.MaxActivePerOwner = 50
	}
	if c.MaxCreatedPerDay <= 0 {
		c.MaxCreatedPerDay = 20
	}
	if c.DefaultHour <= 0 || c.DefaultHour > 23 {
		c.DefaultHour = 9
	}
	return c
}

// Sink delivers a fired reminder to its owner. A nil error means confirmed
// delivery; an error satisfying interface{ QuietUntil() time.Time } means
// the send is held until that instant and must not count.
type Sink interface {
	Deliver(ctx context.Context, r *reminder.Reminder) error
}

// EditFields is the allow-list of mutable reminder fields. Nil pointers
// leave the field untouched.
type EditFields struct {
	Message    *string
	DueAt      *time.Time
	Category   *string
	Priority   *reminder.Priority
	Tags       *[]string
	Notes      *string
	Recurrence *reminder.Pattern
}

// Service is the reminder state machine plus its timer table. All lifecycle
// operations against one reminder id are serialized through a lock shard;
// different ids proceed concurrently.
type Service struct {
	store storage.Store
	sink  Sink
	bus   eventbus.Bus
	log   logx.Logger

	cmu sync.RWMutex
	cfg Config
	ext *parse.Extractor

	tmu     sync.Mutex
	timers  map[string]*time.Timer
	vers    map[string]uint64
	wakeAt  map[string]time.Time
	stopped bool

	shards [shardCount]sync.Mutex

	now func() time.Time // swapped in tests
}

func New(cfg Config, store storage.Store, sink Sink, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		store:  store,
		sink:   sink,
		bus:    bus,
		log:    log,
		cfg:    cfg,
		ext:    parse.NewExtractor(parse.NewResolver(parse.Options{DefaultHour: cfg.DefaultHour})),
		timers: make(map[string]*time.Timer),
		vers:   make(map[string]uint64),
		wakeAt: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Apply swaps the operational knobs at runtime. Existing timers keep their
// targets; the new values take effect from the next transition.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.cmu.Lock()
	rebuilt := cfg.DefaultHour != s.cfg.DefaultHour
	s.cfg = cfg
	if rebuilt {
		s.ext = parse.NewExtractor(parse.NewResolver(parse.Options{DefaultHour: cfg.DefaultHour}))
	}
	s.cmu.Unlock()
}

func (s *Service) config() Config {
	s.cmu.RLock()
	defer s.cmu.RUnlock()
	return s.cfg
}

func (s *Service) extractor() *parse.Extractor {
	s.cmu.RLock()
	defer s.cmu.RUnlock()
	return s.ext
}

// Stop halts the timer table. In-flight callbacks see the stopped flag and
// return without firing.
func (s *Service) Stop() {
	s.tmu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
		delete(s.wakeAt, id)
	}
	s.tmu.Unlock()
}

func (s *Service) shard(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

func historyFor(r *reminder.Reminder, a reminder.Action, at time.Time) reminder.HistoryEntry {
	return reminder.HistoryEntry{
		ReminderID: r.ID,
		OwnerID:    r.OwnerID,
		ChatID:     r.ChatID,
		Message:    r.Message,
		Action:     a,
		SentCount:  r.SentCount,
		DueAt:      r.DueAt,
		CreatedAt:  r.CreatedAt,
		OccurredAt: at,
	}
}
