package config_test

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/firasghr/goantidetect/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.MaxConcurrent != 100 {
		t.Errorf("MaxConcurrent = %d, want 100", cfg.MaxConcurrent)
	}
	if cfg.TaskTimeout != 300*time.Second {
		t.Errorf("TaskTimeout = %v, want 300s", cfg.TaskTimeout)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if !cfg.RetryOnFailure {
		t.Error("RetryOnFailure should default true")
	}
	if cfg.DelayBetweenStarts != 500*time.Millisecond {
		t.Errorf("DelayBetweenStarts = %v, want 500ms", cfg.DelayBetweenStarts)
	}
	if !cfg.ScreenshotOnError || cfg.ScreenshotOnSuccess {
		t.Error("expected ScreenshotOnError=true, ScreenshotOnSuccess=false by default")
	}
	if cfg.MaxIdleConns <= 0 {
		t.Errorf("MaxIdleConns should be > 0, got %d", cfg.MaxIdleConns)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	raw := map[string]interface{}{
		"data_dir":               "/tmp/data",
		"max_concurrent":         10,
		"task_timeout":           int64(60 * time.Second),
		"retry_on_failure":       true,
		"max_retries":            3,
		"delay_between_starts":   int64(time.Second),
		"screenshot_on_error":    true,
		"screenshot_on_success":  false,
		"watchdog_interval":      int64(5 * time.Second),
		"egress_source_file":     "",
		"request_timeout":        int64(30 * time.Second),
		"max_idle_conns":         100,
		"max_idle_conns_per_host": 20,
		"max_conns_per_host":     50,
	}
	f, err := os.CreateTemp(t.TempDir(), "config*.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewEncoder(f).Encode(raw); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := config.LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConcurrent != 10 {
		t.Errorf("got MaxConcurrent=%d, want 10", cfg.MaxConcurrent)
	}
	if cfg.DataDir != "/tmp/data" {
		t.Errorf("got DataDir=%q, want /tmp/data", cfg.DataDir)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.LoadConfig("/nonexistent/path/config.json")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bad*.json")
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not valid json}")
	f.Close()

	_, err = config.LoadConfig(f.Name())
	if err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}
