package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "15s"
logging:
  level: debug
  console: true
storage:
  backend: sqlite
  path: ./data/reminders.db
  busy_timeout: "5s"
notify:
  rate_per_sec: 10
maintenance:
  sweep_spec: "@every 15m"
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Notify.RatePerSec != 10 {
		t.Fatalf("rate_per_sec = %d", cfg.Notify.RatePerSec)
	}
	if cfg.Maintenance.SweepSpec != "@every 15m" {
		t.Fatalf("sweep_spec = %q", cfg.Maintenance.SweepSpec)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"telegram":{"token":"123:abc"},"logging":{"console":true},"storage":{"backend":"memory"}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("backend = %q", cfg.Storage.Backend)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  pol_timeout: "15s"
logging:
  console: true
storage: {}
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for misspelled field")
	}
}

func TestDurationField(t *testing.T) {
	if _, err := Duration("x", "banana", time.Second); err == nil {
		t.Fatal("expected error for junk duration")
	}
	if _, err := Duration("x", "-5s", time.Second); err == nil {
		t.Fatal("expected error for negative duration")
	}
	for _, raw := range []string{"", "0s"} {
		d, err := Duration("x", raw, 7*time.Second)
		if err != nil || d != 7*time.Second {
			t.Fatalf("Duration(%q) = %v, %v; want default 7s", raw, d, err)
		}
	}
	d, err := Duration("x", "3s", 7*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("parsed = %v err = %v", d, err)
	}
}
