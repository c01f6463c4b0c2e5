// Package app wires the bot together: config, logging, storage, the
// Telegram adapter, the notifier, the reminder scheduler, the command
// router and the maintenance sweep. It owns startup order (recover before
// polling) and shutdown order (drain front to back).
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/maintenance"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/pprof"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

// StopReason labels why the app is shutting down, for the final log line.
type StopReason string

const (
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	notif   *notifier.Service
	sched   *scheduler.Service
	router  *router.Router
	maint   *maintenance.Service
	pprof   *pprof.Service

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies the config immediately. Bootstrap with Telegram
	// mirroring disabled so a half-configured chat target does not warn,
	// then Apply the real config once the service exists.
	baseLogCfg := mapLoggingConfig(cfg)
	bootLogCfg := baseLogCfg
	bootLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootLogCfg, ad)
	logSvc.Apply(baseLogCfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")))
	notif.SetMarkupFunc(func(r *reminder.Reminder) any {
		return router.NotificationMarkup(r.ID)
	})

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scfg, store, notif, bus, log.With(logx.String("comp", "scheduler")))

	rt := router.New(log.With(logx.String("comp", "router")), ad, sched)

	maint := maintenance.New(mapMaintenanceConfig(cfg), store, sched,
		log.With(logx.String("comp", "maintenance")))

	pp := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		notif:   notif,
		sched:   sched,
		router:  rt,
		maint:   maint,
		pprof:   pp,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app run context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Transactional reload: a config that fails to map is rejected before
	// commit, so the running services never see it.
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	// Rebuild the timer table from storage before taking any traffic, so a
	// command arriving right after startup sees consistent state.
	recoverCtx, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
	err := a.sched.Recover(recoverCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("recover reminders: %w", err)
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	if err := a.maint.Start(); err != nil {
		return err
	}

	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	// Debug trace of lifecycle events. Components that care subscribe
	// themselves; this loop only exists for observability.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: only the latest config matters.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyReload pushes a committed config change into the running services.
// Sections that cannot change live (telegram, storage, maintenance) log a
// restart-required warning instead.
func (a *App) applyReload(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	for _, s := range sections {
		switch s {
		case "telegram", "storage", "maintenance":
			a.log.Warn("config section changed; restart required to take effect",
				logx.String("section", s))
		}
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if scfg, err := mapSchedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(scfg)
	}

	a.pprof.Reconfigure(a.sup.Context(), mapPprofConfig(newCfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Unwind background loops first; the steps below then drain in order.
	a.sup.Cancel()

	// Run one shutdown step with an upper bound so a stuck component
	// cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Stop order: no new fires (scheduler), no new sweeps, then the
	// inbound side, then storage once nothing can write anymore.
	step("scheduler", 2*time.Second, func(context.Context) error { a.sched.Stop(); return nil })
	step("maintenance", 5*time.Second, func(context.Context) error { a.maint.Stop(); return nil })
	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
