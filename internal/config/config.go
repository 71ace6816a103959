// Package config loads and validates the harness configuration.
//
// Unlike a long-lived service, the harness is a test tool: every knob
// has a sensible default so `compact-harness` runs against a local
// OasisDB with no config file at all. A YAML file and ${VAR:-default}
// env expansion are supported for CI setups.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the compact harness.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`    // OasisDB endpoint and collection
	Stress     StressConfig     `yaml:"stress"`     // Write-load generation
	Monitor    MonitorConfig    `yaml:"monitor"`    // Collection metadata polling
	Log        LogConfig        `yaml:"log"`        // Server log tailing
	Report     ReportConfig     `yaml:"report"`     // Interim report cadence
	Monitoring MonitoringConfig `yaml:"monitoring"` // Harness's own logging
}

// ServiceConfig locates the OasisDB server under test.
type ServiceConfig struct {
	BaseURL    string `yaml:"base_url"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
	IndexType  string `yaml:"index_type"`
}

// StressConfig shapes the synthetic write load.
type StressConfig struct {
	Duration      time.Duration `yaml:"duration"`       // total stress window
	BatchSize     int           `yaml:"batch_size"`     // documents per batch
	BatchInterval time.Duration `yaml:"batch_interval"` // pause between batches
	ProbePause    time.Duration `yaml:"probe_pause"`    // pause before the search probe
	SearchLimit   int           `yaml:"search_limit"`   // top-k of the probe
}

// MonitorConfig shapes the collection metadata poller.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LogConfig locates the server log to tail.
type LogConfig struct {
	Path string `yaml:"path"`
}

// ReportConfig controls interim reporting.
type ReportConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MonitoringConfig controls the harness's own log output.
type MonitoringConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// Default returns the configuration used when no file is given:
// a local OasisDB, a 5 minute stress window, 1000-document batches.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:    "http://localhost:8080",
			Collection: "compact_test",
			Dimension:  128,
			IndexType:  "hnsw",
		},
		Stress: StressConfig{
			Duration:      5 * time.Minute,
			BatchSize:     1000,
			BatchInterval: 500 * time.Millisecond,
			ProbePause:    1 * time.Second,
			SearchLimit:   5,
		},
		Monitor: MonitorConfig{Interval: 2 * time.Second},
		Log:     LogConfig{Path: "./oasisdb.log"},
		Report:  ReportConfig{Interval: 10 * time.Second},
		Monitoring: MonitoringConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// envPattern matches ${VAR} or ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables, supporting both
// ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// Load reads configuration from a YAML file layered over Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes. Fields absent
// from the YAML keep their defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is runnable.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url is required")
	}
	if c.Service.Collection == "" {
		return fmt.Errorf("service.collection is required")
	}
	if c.Service.Dimension < 1 {
		return fmt.Errorf("service.dimension must be >= 1, got %d", c.Service.Dimension)
	}
	if c.Stress.BatchSize < 1 {
		return fmt.Errorf("stress.batch_size must be >= 1, got %d", c.Stress.BatchSize)
	}
	if c.Stress.Duration <= 0 {
		return fmt.Errorf("stress.duration must be positive, got %s", c.Stress.Duration)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Report.Interval <= 0 {
		return fmt.Errorf("report.interval must be positive, got %s", c.Report.Interval)
	}
	if c.Log.Path == "" {
		return fmt.Errorf("log.path is required")
	}
	return nil
}
