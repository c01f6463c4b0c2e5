package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/maintenance"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/pprof"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Mapping from the on-disk config (strings, JSON-friendly) to each
// component's typed config. Every mapper is also the validator for its
// section: a hot-reload that fails to map is rejected before commit.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./reminders.db"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", cfg.Notifier.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	n := cfg.Notifier
	if n.QuietStartHour < 0 || n.QuietStartHour > 23 {
		return notifier.Config{}, fmt.Errorf("notifier.quiet_start_hour must be in [0,23]")
	}
	if n.QuietEndHour < 0 || n.QuietEndHour > 23 {
		return notifier.Config{}, fmt.Errorf("notifier.quiet_end_hour must be in [0,23]")
	}
	return notifier.Config{
		RatePerSec:  n.RatePerSec,
		SendTimeout: sendTimeout,
		QuietStart:  n.QuietStartHour,
		QuietEnd:    n.QuietEndHour,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	r := cfg.Reminder
	repeat, err := config.ParseDurationOrDefault("reminder.repeat_interval", r.RepeatInterval, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	delay, err := config.ParseDurationOrDefault("reminder.delay_step", r.DelayStep, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	snooze, err := config.ParseDurationOrDefault("reminder.snooze_step", r.SnoozeStep, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	if r.MaxSent < 0 {
		return scheduler.Config{}, fmt.Errorf("reminder.max_sent must be >= 0")
	}
	if r.DefaultHour < 0 || r.DefaultHour > 23 {
		return scheduler.Config{}, fmt.Errorf("reminder.default_hour must be in [0,23]")
	}
	return scheduler.Config{
		RepeatInterval:    repeat,
		MaxSent:           r.MaxSent,
		DelayStep:         delay,
		SnoozeStep:        snooze,
		MaxActivePerOwner: r.MaxActivePerOwner,
		MaxCreatedPerDay:  r.MaxCreatedPerDay,
		DefaultHour:       r.DefaultHour,
	}, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    cfg.Pprof.Addr,
		Token:   cfg.Pprof.Token,
	}
}

func mapMaintenanceConfig(cfg *config.Config) maintenance.Config {
	return maintenance.Config{
		SweepSpec:     cfg.Maintenance.SweepSpec,
		RetentionDays: cfg.Maintenance.HistoryRetentionDays,
	}
}
