package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\ndata_dir: /tmp/pumpd\nloop_interval_minutes: 3\nclosed_loop: true\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.DataDir != "/tmp/pumpd" || cfg.LoopIntervalMinutes != 3 || !cfg.ClosedLoop {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","data_dir":"/d","suggestion_expiry_minutes":8,"nightscout_url":"https://ns.example"}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.DataDir != "/d" || cfg.SuggestionExpiryMinutes != 8 || cfg.NightscoutURL != "https://ns.example" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\ndata_dir=\"/x\"\nresume_if_no_temp=true\ncors_enabled=true\ncors_origins=[\"http://localhost:5173\"]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.DataDir != "/x" || !cfg.ResumeIfNoTemp || !cfg.CORSEnabled || len(cfg.CORSOrigins) != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestDurationDefaults(t *testing.T) {
	var cfg Config
	if cfg.LoopInterval() != 5*time.Minute {
		t.Fatalf("expected default loop interval, got %v", cfg.LoopInterval())
	}
	if cfg.SuggestionExpiry() != 10*time.Minute {
		t.Fatalf("expected default suggestion expiry, got %v", cfg.SuggestionExpiry())
	}
	if cfg.EngineTimeout() != 30*time.Second {
		t.Fatalf("expected default engine timeout, got %v", cfg.EngineTimeout())
	}
	cfg.LoopIntervalMinutes = 1
	cfg.SuggestionExpiryMinutes = 30
	cfg.EngineTimeoutSeconds = 5
	if cfg.LoopInterval() != time.Minute || cfg.SuggestionExpiry() != 30*time.Minute {
		t.Fatalf("expected configured durations, got %v %v", cfg.LoopInterval(), cfg.SuggestionExpiry())
	}
	if cfg.EngineTimeout() != 5*time.Second {
		t.Fatalf("expected configured engine timeout, got %v", cfg.EngineTimeout())
	}
}
