package notifier

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// MarkupFunc builds adapter-specific reply markup (inline buttons) for a
// fired reminder. Installed by the wiring layer so this package stays
// transport-neutral.
type MarkupFunc func(r *reminder.Reminder) any

// Service is the notification sink. Safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter kit.Adapter
	log     logx.Logger
	markup  MarkupFunc
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.applyLocked(cfg)
	return s
}

// SetMarkupFunc installs the inline-button builder. Call before Deliver.
func (s *Service) SetMarkupFunc(fn MarkupFunc) {
	s.mu.Lock()
	s.markup = fn
	s.mu.Unlock()
}

// Apply swaps delivery knobs at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	s.cfg = cfg
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

// Deliver sends the fired-reminder message to the reminder's chat. It
// returns nil only on confirmed delivery; *QuietHoursError means the send
// was held, anything else is a delivery failure the scheduler re-arms for.
func (s *Service) Deliver(ctx context.Context, r *reminder.Reminder) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	markup := s.markup
	s.mu.Unlock()

	now := time.Now()
	if until, held := quietUntil(now, cfg.QuietStart, cfg.QuietEnd); held {
		return &QuietHoursError{Until: until}
	}

	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := lim.Wait(sctx); err != nil {
		return err
	}

	opt := &kit.SendOptions{DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup(r)
	}
	_, err := s.adapter.SendText(sctx, kit.ChatTarget{ChatID: r.ChatID}, FormatFired(r), opt)
	if err != nil {
		s.log.Warn("delivery failed",
			logx.String("reminder_id", r.ID),
			logx.Int64("chat_id", r.ChatID),
			logx.Err(err),
		)
		return err
	}
	return nil
}

// quietUntil reports whether now falls inside the quiet window [start, end)
// and, if so, the next instant the window opens. Handles windows that wrap
// midnight (e.g. 23..7).
func quietUntil(now time.Time, start, end int) (time.Time, bool) {
	if start == end {
		return time.Time{}, false
	}
	h := now.Hour()
	inside := false
	if start < end {
		inside = h >= start && h < end
	} else {
		inside = h >= start || h < end
	}
	if !inside {
		return time.Time{}, false
	}
	open := time.Date(now.Year(), now.Month(), now.Day(), end, 0, 0, 0, now.Location())
	if !open.After(now) {
		open = open.AddDate(0, 0, 1)
	}
	return open, true
}

// FormatFired renders the notification text. Kept deliberately small; rich
// rendering belongs to the transport layer.
func FormatFired(r *reminder.Reminder) string {
	var b strings.Builder
	switch r.Priority {
	case reminder.PriorityUrgent:
		b.WriteString("‼️ ")
	case reminder.PriorityHigh:
		b.WriteString("❗ ")
	default:
		b.WriteString("⏰ ")
	}
	b.WriteString(r.Message)
	if r.Notes != "" {
		b.WriteString("\n📝 ")
		b.WriteString(r.Notes)
	}
	if len(r.Tags) > 0 {
		b.WriteString("\n")
		for i, t := range r.Tags {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString("#")
			b.WriteString(t)
		}
	}
	if r.SentCount > 0 {
		b.WriteString("\n")
		b.WriteString("(再次提醒 ")
		b.WriteString(itoa(r.SentCount + 1))
		b.WriteString("/")
		b.WriteString(itoa(r.MaxSent))
		b.WriteString(")")
	}
	return b.String()
}

func itoa(n int) string {
	if n < 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return string(buf[i:])
}
