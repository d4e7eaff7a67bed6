package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/gait.defaults.json"

// Config represents the runtime configuration of the gait client. Every field
// is optional; the Get* accessors fall back to built-in defaults so partial
// files are safe.
type Config struct {
	// Remote classification service
	ServiceURL     *string `json:"service_url,omitempty"`
	RequestTimeout *string `json:"request_timeout,omitempty"` // duration string like "10s"

	// Timers
	SummaryInterval *string `json:"summary_interval,omitempty"`
	TickInterval    *string `json:"tick_interval,omitempty"`

	// Session tracking
	WalkingThresholdSeconds *int `json:"walking_threshold_seconds,omitempty"`
	RunningThresholdSeconds *int `json:"running_threshold_seconds,omitempty"`
	UnknownWarningCount     *int `json:"unknown_warning_count,omitempty"`

	// Pipeline
	MaxInflightPredictions *int `json:"max_inflight_predictions,omitempty"`

	// Sensor
	SerialPort    *string        `json:"serial_port,omitempty"`
	SerialOptions *SerialOptions `json:"serial_options,omitempty"`
}

// SerialOptions mirrors the serial line settings of the accelerometer.
type SerialOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.ServiceURL != nil {
		u, err := url.Parse(*c.ServiceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("service_url must be an absolute URL, got %q", *c.ServiceURL)
		}
	}

	for name, v := range map[string]*string{
		"request_timeout":  c.RequestTimeout,
		"summary_interval": c.SummaryInterval,
		"tick_interval":    c.TickInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.WalkingThresholdSeconds != nil && *c.WalkingThresholdSeconds < 0 {
		return fmt.Errorf("walking_threshold_seconds must be non-negative, got %d", *c.WalkingThresholdSeconds)
	}
	if c.RunningThresholdSeconds != nil && *c.RunningThresholdSeconds < 0 {
		return fmt.Errorf("running_threshold_seconds must be non-negative, got %d", *c.RunningThresholdSeconds)
	}
	if c.UnknownWarningCount != nil && *c.UnknownWarningCount < 1 {
		return fmt.Errorf("unknown_warning_count must be at least 1, got %d", *c.UnknownWarningCount)
	}
	if c.MaxInflightPredictions != nil && *c.MaxInflightPredictions < 1 {
		return fmt.Errorf("max_inflight_predictions must be at least 1, got %d", *c.MaxInflightPredictions)
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetServiceURL returns the base URL of the classification service.
func (c *Config) GetServiceURL() string {
	if c.ServiceURL == nil || *c.ServiceURL == "" {
		return "http://127.0.0.1:5000"
	}
	return *c.ServiceURL
}

// GetRequestTimeout returns the per-request timeout for service calls.
func (c *Config) GetRequestTimeout() time.Duration {
	return durationOr(c.RequestTimeout, 10*time.Second)
}

// GetSummaryInterval returns the session summary polling interval.
func (c *Config) GetSummaryInterval() time.Duration {
	return durationOr(c.SummaryInterval, 5*time.Second)
}

// GetTickInterval returns the period of the elapsed-time tick.
func (c *Config) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, time.Second)
}

// GetWalkingThresholdSeconds returns the minimum walking segment length that counts as a session.
func (c *Config) GetWalkingThresholdSeconds() int {
	if c.WalkingThresholdSeconds == nil {
		return 60
	}
	return *c.WalkingThresholdSeconds
}

// GetRunningThresholdSeconds returns the minimum running segment length that counts as a session.
func (c *Config) GetRunningThresholdSeconds() int {
	if c.RunningThresholdSeconds == nil {
		return 120
	}
	return *c.RunningThresholdSeconds
}

// GetUnknownWarningCount returns how many consecutive unknown results raise the persistent warning.
func (c *Config) GetUnknownWarningCount() int {
	if c.UnknownWarningCount == nil {
		return 8
	}
	return *c.UnknownWarningCount
}

// GetMaxInflightPredictions returns the bound on concurrent /predict requests.
func (c *Config) GetMaxInflightPredictions() int {
	if c.MaxInflightPredictions == nil {
		return 4
	}
	return *c.MaxInflightPredictions
}

// GetSerialPort returns the accelerometer serial device path.
func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetSerialOptions returns the serial line settings; zero fields are filled in
// by the motion package when the port is opened.
func (c *Config) GetSerialOptions() SerialOptions {
	if c.SerialOptions == nil {
		return SerialOptions{BaudRate: 115200}
	}
	return *c.SerialOptions
}
