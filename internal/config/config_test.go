package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.HaveProm() {
		t.Fatalf("default config should not have prometheus")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Listen = "nope"
	cfg.Interval = 0
	cfg.PingMode = "udp"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"listen address", "interval must be positive", "ping_mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestParseLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshping.toml")
	content := `
listen = ":8000"
interval = "2s"
targets = ["google@8.8.8.8"]
peers = ["http://from-file:9922"]

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := map[string]string{
		"MESHPING_PROMETHEUS_URL": "http://prom:9090",
		"MESHPING_PEERS":          "http://a:9922, http://b:9922",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := Parse([]string{"-config", path, "-listen", ":7000"}, lookup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Listen != ":7000" {
		t.Errorf("flag should win, got listen %q", cfg.Listen)
	}
	if cfg.Interval != 2*time.Second {
		t.Errorf("expected interval from file, got %v", cfg.Interval)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected default timeout, got %v", cfg.Timeout)
	}
	if len(cfg.Peers) != 2 || cfg.Peers[1] != "http://b:9922" {
		t.Errorf("expected env peers, got %v", cfg.Peers)
	}
	if !cfg.HaveProm() {
		t.Errorf("expected prometheus url from env")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected logging level from file, got %q", cfg.Logging.Level)
	}
	if len(cfg.Targets) != 1 || cfg.Targets[0] != "google@8.8.8.8" {
		t.Errorf("unexpected targets %v", cfg.Targets)
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := Parse([]string{"-config", filepath.Join(t.TempDir(), "missing.toml")}, noEnv); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
