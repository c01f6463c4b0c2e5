package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: "info"
  console: true
  file:
    enabled: false
    path: ""
  telegram:
    enabled: true
    chat_id: -100123
    min_level: "warn"
    rate_per_sec: 1
storage:
  path: "./data/remindbot.db"
notifier:
  rate_per_sec: 5
  send_timeout: "10s"
  quiet_start_hour: 23
  quiet_end_hour: 7
reminder:
  repeat_interval: "5m"
  max_sent: 3
  delay_step: "10m"
  snooze_step: "30m"
  max_active_per_owner: 50
  max_created_per_day: 20
  default_hour: 9
maintenance:
  history_retention_days: 90
`)

	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Logging.Telegram.ChatID != -100123 {
		t.Fatalf("log chat id = %d", cfg.Logging.Telegram.ChatID)
	}
	if cfg.Notifier.QuietStartHour != 23 || cfg.Notifier.QuietEndHour != 7 {
		t.Fatalf("quiet hours = %d..%d", cfg.Notifier.QuietStartHour, cfg.Notifier.QuietEndHour)
	}
	if cfg.Reminder.MaxSent != 3 || cfg.Reminder.RepeatInterval != "5m" {
		t.Fatalf("reminder section = %+v", cfg.Reminder)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config after Load")
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  pol_timeout: "10s"
`)
	if _, err := NewConfigManager(path).Load(); err == nil {
		t.Fatalf("unknown key accepted")
	}
}

func TestLoadRejectsTrailingJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"telegram":{"token":"t","poll_timeout":"5s"}}{}`)
	if _, err := NewConfigManager(path).Load(); err == nil {
		t.Fatalf("trailing data accepted")
	}
}

func TestDurationHelpers(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", " 5m "); err != nil || d != 5*time.Minute {
		t.Fatalf("ParseDurationField: %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("ParseDurationOrDefault: %v %v", d, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Reminder.MaxSent = 5
	newCfg.Notifier.RatePerSec = 2

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := map[string]bool{"notifier": true, "reminder": true}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}
}
