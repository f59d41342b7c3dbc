package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	// Missing file: defaults carry.
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DebounceInterval != 4*time.Second {
		t.Fatalf("wrong default debounce: %v", cfg.DebounceInterval)
	}
	if cfg.PriorityInterval != time.Second {
		t.Fatalf("wrong default priority interval: %v", cfg.PriorityInterval)
	}
	if cfg.DashboardAddr != "127.0.0.1:8777" {
		t.Fatalf("wrong default dashboard addr: %q", cfg.DashboardAddr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("wrong default log level: %q", cfg.LogLevel)
	}
	if cfg.ImportDir != filepath.Join(cfg.DataDir, "import") {
		t.Fatalf("import dir not derived from data dir: %q", cfg.ImportDir)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
gateway_url: https://sync.example.com
token: secret
debounce_interval: 10s
priority_interval: 2s
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.GatewayURL != "https://sync.example.com" || cfg.Token != "secret" {
		t.Fatalf("file values not loaded: %+v", cfg)
	}
	if cfg.DebounceInterval != 10*time.Second || cfg.PriorityInterval != 2*time.Second {
		t.Fatalf("durations not parsed: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level not loaded: %q", cfg.LogLevel)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "gateway_url: https://file.example.com\n")
	t.Setenv("BANDIT_SYNC_GATEWAY_URL", "https://env.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.GatewayURL != "https://env.example.com" {
		t.Fatalf("env did not override file: %q", cfg.GatewayURL)
	}
}

func TestValidateRejectsBadGatewayURL(t *testing.T) {
	path := writeConfig(t, "gateway_url: sync.example.com\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for scheme-less gateway URL")
	}
}

func TestValidateRejectsPriorityAboveDebounce(t *testing.T) {
	path := writeConfig(t, "debounce_interval: 1s\npriority_interval: 5s\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for priority > debounce")
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	path := writeConfig(t, "log_level: verbose\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestSaveTokenCreatesAndPreserves(t *testing.T) {
	path := writeConfig(t, "gateway_url: https://sync.example.com\n")
	if err := SaveToken(path, "new-token"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Token != "new-token" {
		t.Fatalf("token not saved: %q", cfg.Token)
	}
	if cfg.GatewayURL != "https://sync.example.com" {
		t.Fatalf("existing keys lost: %q", cfg.GatewayURL)
	}

	// Fresh file in a fresh directory.
	fresh := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := SaveToken(fresh, "tok2"); err != nil {
		t.Fatalf("save to fresh path failed: %v", err)
	}
	data, err := os.ReadFile(fresh)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), "tok2") {
		t.Fatalf("token missing from fresh file: %s", data)
	}
}
