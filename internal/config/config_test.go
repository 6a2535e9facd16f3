package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Dispatch.IntervalMS != 10000 {
		t.Fatalf("expected 10s dispatch interval, got %d", cfg.Dispatch.IntervalMS)
	}
	if cfg.Generator.MaxDrafts != 10 || cfg.Generator.MaxAttempts != 4 {
		t.Fatalf("unexpected generator bounds: %+v", cfg.Generator)
	}
	if len(cfg.Discussion.SyntheticRoles) != 3 {
		t.Fatalf("expected default roster of 3 synthetic roles, got %v", cfg.Discussion.SyntheticRoles)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seminar.yaml")
	data := []byte(`
runtime_name: classroom-1
dispatch:
  interval_ms: 2500
discussion:
  synthetic_roles: [teacher, student]
  history_window: 5
generator:
  mode: ollama
  endpoint: http://ollama:11434
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "classroom-1" {
		t.Fatalf("expected runtime name override, got %q", cfg.RuntimeName)
	}
	if cfg.Dispatch.IntervalMS != 2500 {
		t.Fatalf("expected interval override, got %d", cfg.Dispatch.IntervalMS)
	}
	if cfg.Discussion.HistoryWindow != 5 {
		t.Fatalf("expected history window override, got %d", cfg.Discussion.HistoryWindow)
	}
	if cfg.Generator.Mode != "ollama" {
		t.Fatalf("expected generator mode override, got %q", cfg.Generator.Mode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEMINAR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SEMINAR_BUS_USERNAME", "alice")
	t.Setenv("SEMINAR_BUS_PASSWORD", "secret")
	t.Setenv("SEMINAR_DISPATCH_INTERVAL_MS", "500")
	t.Setenv("SEMINAR_DISCUSSION_SYNTHETIC_ROLES", "teacher,student")
	t.Setenv("SEMINAR_GENERATOR_MAX_DRAFTS", "6")
	t.Setenv("SEMINAR_STORE_PATH", "./tmp.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatal("expected credentials override")
	}
	if cfg.Dispatch.IntervalMS != 500 {
		t.Fatalf("expected interval 500, got %d", cfg.Dispatch.IntervalMS)
	}
	if len(cfg.Discussion.SyntheticRoles) != 2 {
		t.Fatalf("expected roster override, got %v", cfg.Discussion.SyntheticRoles)
	}
	if cfg.Generator.MaxDrafts != 6 {
		t.Fatalf("expected max drafts 6, got %d", cfg.Generator.MaxDrafts)
	}
	if cfg.Store.Path != "./tmp.db" {
		t.Fatalf("expected store path override, got %q", cfg.Store.Path)
	}
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	t.Setenv("SEMINAR_DISCUSSION_SYNTHETIC_ROLES", "teacher,wizard")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown role")
	}
}

func TestValidateRejectsBadGeneratorMode(t *testing.T) {
	t.Setenv("SEMINAR_GENERATOR_MODE", "psychic")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for generator mode")
	}
}
