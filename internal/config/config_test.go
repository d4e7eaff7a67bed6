package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := Empty()

	if got := cfg.GetServiceURL(); got != "http://127.0.0.1:5000" {
		t.Errorf("GetServiceURL() = %q", got)
	}
	if got := cfg.GetSummaryInterval(); got != 5*time.Second {
		t.Errorf("GetSummaryInterval() = %v, want 5s", got)
	}
	if got := cfg.GetTickInterval(); got != time.Second {
		t.Errorf("GetTickInterval() = %v, want 1s", got)
	}
	if got := cfg.GetWalkingThresholdSeconds(); got != 60 {
		t.Errorf("GetWalkingThresholdSeconds() = %d, want 60", got)
	}
	if got := cfg.GetRunningThresholdSeconds(); got != 120 {
		t.Errorf("GetRunningThresholdSeconds() = %d, want 120", got)
	}
	if got := cfg.GetUnknownWarningCount(); got != 8 {
		t.Errorf("GetUnknownWarningCount() = %d, want 8", got)
	}
	if got := cfg.GetMaxInflightPredictions(); got != 4 {
		t.Errorf("GetMaxInflightPredictions() = %d, want 4", got)
	}
	if got := cfg.GetSerialOptions().BaudRate; got != 115200 {
		t.Errorf("GetSerialOptions().BaudRate = %d", got)
	}
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "gait.json")

	testJSON := `{
  "service_url": "http://classifier.local:10000",
  "summary_interval": "2s",
  "walking_threshold_seconds": 30,
  "unknown_warning_count": 5,
  "serial_options": {"baud_rate": 9600, "parity": "E"}
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetServiceURL(); got != "http://classifier.local:10000" {
		t.Errorf("GetServiceURL() = %q", got)
	}
	if got := cfg.GetSummaryInterval(); got != 2*time.Second {
		t.Errorf("GetSummaryInterval() = %v", got)
	}
	if got := cfg.GetWalkingThresholdSeconds(); got != 30 {
		t.Errorf("GetWalkingThresholdSeconds() = %d", got)
	}
	// omitted fields keep their defaults
	if got := cfg.GetRunningThresholdSeconds(); got != 120 {
		t.Errorf("GetRunningThresholdSeconds() = %d", got)
	}
	if got := cfg.GetSerialOptions(); got.BaudRate != 9600 || got.Parity != "E" {
		t.Errorf("GetSerialOptions() = %+v", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("failed to load %s: %v", DefaultConfigPath, err)
	}
	if got := cfg.GetUnknownWarningCount(); got != 8 {
		t.Errorf("GetUnknownWarningCount() = %d, want 8", got)
	}
	if got := cfg.GetRequestTimeout(); got != 10*time.Second {
		t.Errorf("GetRequestTimeout() = %v", got)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "gait.yaml", "{}", ".json extension"},
		{"bad json", "bad.json", "{", "failed to parse"},
		{"relative url", "url.json", `{"service_url": "classifier"}`, "service_url"},
		{"bad duration", "dur.json", `{"summary_interval": "soon"}`, "summary_interval"},
		{"negative duration", "neg.json", `{"tick_interval": "-1s"}`, "tick_interval"},
		{"negative threshold", "thr.json", `{"running_threshold_seconds": -1}`, "running_threshold_seconds"},
		{"zero unknown count", "unk.json", `{"unknown_warning_count": 0}`, "unknown_warning_count"},
		{"zero inflight", "inf.json", `{"max_inflight_predictions": 0}`, "max_inflight_predictions"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tc.file)
			if err := os.WriteFile(path, []byte(tc.content), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
