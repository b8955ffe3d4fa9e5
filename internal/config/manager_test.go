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

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  console: true
storage:
  driver: file
  path: ./store.json
  flush_debounce: 250ms
sync:
  queue_size: 64
  conflict_window: 90s
reminders:
  enabled: true
  spec: "@every 30s"
  lead: 10m
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" || cfg.Storage.FlushDebounce != "250ms" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Sync.QueueSize != 64 || cfg.Sync.ConflictWindow != "90s" {
		t.Fatalf("sync = %+v", cfg.Sync)
	}
	if cfg.Reminders == nil || !cfg.Reminders.Enabled || cfg.Reminders.Spec != "@every 30s" {
		t.Fatalf("reminders = %+v", cfg.Reminders)
	}
	if m.Get() != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json",
		`{"logging":{"level":"info"},"sync":{"idempotency_max":500}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.IdempotencyMax != 500 {
		t.Fatalf("idempotency_max = %d", cfg.Sync.IdempotencyMax)
	}
	if cfg.Storage != nil {
		t.Fatal("omitted storage must stay nil (memory-only)")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
telemetry:
  enabled: true
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging":{"level":"info"}}{"x":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSubscribePublishAndUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config delivered")
		}
	case <-time.After(time.Second):
		t.Fatal("no config delivered")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after Unsubscribe")
	}
	m.Unsubscribe(ch) // idempotent
}

func TestPublishDropsOldestWhenSlow(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)

	older := &Config{Logging: LoggingConfig{Level: "info"}}
	newest := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.publish(older)
	m.publish(newest)

	if got := <-ch; got != newest {
		t.Fatalf("delivered level %q, want the newest config", got.Logging.Level)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("flush_debounce", "750ms")
	if err != nil || d != 750*time.Millisecond {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("flush_debounce", "soon"); err == nil {
		t.Fatal("expected error for malformed duration")
	}
	if got, err := ParseDurationOrDefault("flush_debounce", "", time.Minute); err != nil || got != time.Minute {
		t.Fatalf("default = %v, %v", got, err)
	}
	if got, err := ParseDurationOrDefault("flush_debounce", "5s", time.Minute); err != nil || got != 5*time.Second {
		t.Fatalf("got %v, %v", got, err)
	}
}
