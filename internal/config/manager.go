package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "remindbot/pkg/logx"
)

// ConfigManager loads the config file strictly, hands out the committed
// snapshot, and hot-reloads on file changes: fsnotify events are debounced,
// parsed, deduplicated by content hash, validated, and only then committed
// and fanned out to subscribers.
type ConfigManager struct {
	path string

	mu  sync.RWMutex
	cfg *Config
	// hash of the last committed content; editors often fire several write
	// events for one save and redundant publishes are skipped on it.
	lastHash uint64

	// subsMu also guards the sends in publish so Unsubscribe never closes a
	// channel mid-send.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs the hook Watch runs before committing a reloaded
// config. A rejected config keeps the previous one live.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and strictly decodes the file without committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(m.path, raw)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// Concatenated documents are a config error, not extra input.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// Subscribe returns a channel that receives every committed reload.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s != ch {
			continue
		}
		last := len(m.subs) - 1
		m.subs[i] = m.subs[last]
		m.subs[last] = nil
		m.subs = m.subs[:last]
		close(ch)
		return
	}
}

// publish delivers cfg to every subscriber, newest-wins: a full buffer loses
// its oldest entry so the latest config still lands.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			if !m.log.IsZero() {
				m.log.Debug("config update dropped (subscriber slow)",
					logx.Int("queue_len", len(ch)),
					logx.Int("queue_cap", cap(ch)))
			}
		}
	}
}

// reload parses the file and, when the content actually changed and the
// validator accepts it, commits and publishes.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil || cfg == nil {
		if !m.log.IsZero() {
			reason := "config is nil"
			if err != nil {
				reason = err.Error()
			}
			m.log.Warn("config parse failed", logx.String("path", m.path), logx.String("err", reason))
		}
		return
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		if !m.log.IsZero() {
			m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		}
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Any("err", err))
			}
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	if !m.log.IsZero() {
		m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
	}
}

// retryPolicy is the jittered exponential backoff shared by watcher
// (re)creation. A successful start resets it.
type retryPolicy struct {
	cur, base, max time.Duration
	rng            *rand.Rand
}

func newRetryPolicy(base, max time.Duration) *retryPolicy {
	return &retryPolicy{
		cur: base, base: base, max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *retryPolicy) reset() { p.cur = p.base }

// next returns the jittered wait and advances the window.
func (p *retryPolicy) next() time.Duration {
	wait := p.cur + time.Duration(p.rng.Int63n(int64(p.cur/2)+1))
	if p.cur < p.max {
		p.cur *= 2
		if p.cur > p.max {
			p.cur = p.max
		}
	}
	return wait
}

// Watch blocks watching the config file until ctx is canceled. The fsnotify
// watcher can wedge or close its channels on some platforms, so each broken
// watcher is torn down and recreated after a backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)
	retry := newRetryPolicy(250*time.Millisecond, 5*time.Second)

	// Debounce reloads so a save that arrives as several events (or a
	// partial write) is parsed once, after the file settles.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	scheduleReload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		if !m.log.IsZero() {
			m.log.Debug("config change detected; scheduling reload", logx.String("path", m.path))
		}
		timer = time.AfterFunc(250*time.Millisecond, func() { m.reload(ctx) })
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		w, err := m.startWatcher(dir)
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config watch start failed", logx.Any("err", err), logx.String("dir", dir))
			}
			if !sleepCtx(ctx, retry.next()) {
				return nil
			}
			continue
		}
		retry.reset()
		if !m.log.IsZero() {
			m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
		}

		done := m.watchEvents(ctx, w, file, scheduleReload)
		_ = w.Close()
		if done || ctx.Err() != nil {
			return nil
		}

		wait := retry.next()
		if !m.log.IsZero() {
			m.log.Warn("config watcher stopped; restarting",
				logx.String("dir", dir),
				logx.String("file", file),
				logx.Duration("backoff", wait))
		}
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
}

func (m *ConfigManager) startWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// watchEvents drains one watcher until it breaks. It reports true when ctx
// ended and the outer loop should stop rather than recreate the watcher.
func (m *ConfigManager) watchEvents(ctx context.Context, w *fsnotify.Watcher, file string, scheduleReload func()) bool {
	const anyOp = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			// Match by basename; event paths vary in absolute/relative form.
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op&anyOp != 0 {
				scheduleReload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return false
			}
			if err == nil {
				continue
			}
			msg := strings.ToLower(err.Error())
			// Overflow means events were missed; reload once and keep the
			// watcher. Matching on text avoids pinning an fsnotify constant
			// that moved between versions.
			if strings.Contains(msg, "overflow") {
				if !m.log.IsZero() {
					m.log.Warn("config watch overflow; forcing reload", logx.Any("err", err))
				}
				scheduleReload()
				continue
			}
			if !m.log.IsZero() {
				m.log.Warn("config watch error", logx.Any("err", err))
			}
			if strings.Contains(msg, "closed") {
				return false
			}
		}
	}
}

// sleepCtx waits d or until ctx ends; it reports false when ctx won.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
