package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Governor.Window != 60*time.Second {
		t.Errorf("expected window 60s, got %v", cfg.Governor.Window)
	}
	if cfg.Governor.MaxCalls != 10 {
		t.Errorf("expected max calls 10, got %d", cfg.Governor.MaxCalls)
	}
	if cfg.Fetch.MaxRetries != 5 || cfg.Fetch.Backoff != 3*time.Second {
		t.Errorf("unexpected fetch defaults: %d / %v", cfg.Fetch.MaxRetries, cfg.Fetch.Backoff)
	}
	if cfg.Fetch.Period != "10y" || cfg.Fetch.Interval != "1d" {
		t.Errorf("unexpected period/interval: %s/%s", cfg.Fetch.Period, cfg.Fetch.Interval)
	}
	if cfg.Storage.ArtifactDir != "static/plots" {
		t.Errorf("unexpected artifact dir: %s", cfg.Storage.ArtifactDir)
	}
	if cfg.Dispatcher.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Dispatcher.Workers)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
telegram:
  bot_token: "file-token"
governor:
  window: 30s
  max_calls: 3
fetch:
  backoff: 1s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("RATE_MAX_CALLS", "7")
	t.Setenv("FETCH_BACKOFF", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telegram.BotToken != "env-token" {
		t.Errorf("env should override file token, got %s", cfg.Telegram.BotToken)
	}
	if cfg.Governor.Window != 30*time.Second {
		t.Errorf("expected window from file, got %v", cfg.Governor.Window)
	}
	if cfg.Governor.MaxCalls != 7 {
		t.Errorf("expected max calls 7, got %d", cfg.Governor.MaxCalls)
	}
	if cfg.Fetch.Backoff != 2*time.Second {
		t.Errorf("expected bare-seconds backoff, got %v", cfg.Fetch.Backoff)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("RATE_MAX_CALLS", "many")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for non-numeric RATE_MAX_CALLS")
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing bot token to fail validation")
	}
	cfg.Telegram.BotToken = "x"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}
