package config

// Config is the full on-disk configuration. Decoding is strict: unknown keys
// are rejected so typos surface at reload time instead of silently defaulting.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Notifier    NotifierConfig    `json:"notifier"`
	Reminder    ReminderConfig    `json:"reminder"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Pprof       PprofConfig       `json:"pprof,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors warnings and errors into a Telegram chat,
// throttled so a log storm cannot flood the API.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// NotifierConfig controls delivery pacing and the quiet-hours window.
// Quiet hours cover local hours [start, end); start == end disables them.
type NotifierConfig struct {
	RatePerSec     int    `json:"rate_per_sec"`
	SendTimeout    string `json:"send_timeout"`
	QuietStartHour int    `json:"quiet_start_hour"`
	QuietEndHour   int    `json:"quiet_end_hour"`
}

// ReminderConfig holds the scheduler's operational knobs. Zero values fall
// back to the built-in defaults.
type ReminderConfig struct {
	// RepeatInterval is the gap between re-notifications of an
	// unacknowledged reminder.
	RepeatInterval string `json:"repeat_interval"`
	// MaxSent caps notifications per reminder before it is archived.
	MaxSent int `json:"max_sent"`

	DelayStep  string `json:"delay_step"`
	SnoozeStep string `json:"snooze_step"`

	MaxActivePerOwner int `json:"max_active_per_owner"`
	MaxCreatedPerDay  int `json:"max_created_per_day"`

	// DefaultHour is the hour of day assumed when text names a day but no
	// time.
	DefaultHour int `json:"default_hour"`
}

// PprofConfig exposes the runtime profiling endpoints on a side listener.
// Off by default; a non-loopback addr requires a token.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

// MaintenanceConfig controls the periodic sweep job.
type MaintenanceConfig struct {
	// SweepSpec is a cron expression; empty means the built-in nightly run.
	SweepSpec string `json:"sweep_spec,omitempty"`
	// HistoryRetentionDays prunes history rows older than this. 0 keeps the
	// default retention.
	HistoryRetentionDays int `json:"history_retention_days"`
}
