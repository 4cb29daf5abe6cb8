package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.State.Backend != "sqlite" {
		t.Fatalf("backend = %q, want sqlite", cfg.State.Backend)
	}
	if cfg.Database.Path == "" {
		t.Fatal("database path should default")
	}
	if cfg.Timers.Interval() != time.Second {
		t.Fatalf("tick interval = %v, want 1s", cfg.Timers.Interval())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Metrics.Addr != "" {
		t.Fatal("metrics should be disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
database:
  path: /tmp/vault.db
state:
  backend: bolt
  bolt_path: /tmp/state.bolt
timers:
  tick_interval: 500ms
logging:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/vault.db" {
		t.Fatalf("database path = %q", cfg.Database.Path)
	}
	if cfg.State.Backend != "bolt" || cfg.State.BoltPath != "/tmp/state.bolt" {
		t.Fatalf("unexpected state config: %+v", cfg.State)
	}
	if cfg.Timers.Interval() != 500*time.Millisecond {
		t.Fatalf("tick interval = %v", cfg.Timers.Interval())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	// Unset keys keep their defaults.
	if cfg.State.Redis.Port != 6379 {
		t.Fatalf("redis port = %d, want default 6379", cfg.State.Redis.Port)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STACKVAULT_STATE_BACKEND", "memory")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.State.Backend != "memory" {
		t.Fatalf("backend = %q, want memory from env", cfg.State.Backend)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "state:\n  backend: etcd\n"},
		{"bad interval", "timers:\n  tick_interval: often\n"},
		{"negative interval", "timers:\n  tick_interval: -1s\n"},
		{"bad log format", "logging:\n  format: xml\n"},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("database: [unclosed"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
