// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level client configuration.
type Config struct {
	API           APIConfig           `yaml:"api"`
	Cache         CacheConfig         `yaml:"cache"`
	Storage       StorageConfig       `yaml:"storage"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Notifications NotificationConfig  `yaml:"notifications"`
}

// APIConfig holds backend endpoint settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`      // e.g. https://shop.example.com/api/v1
	SponsoredURL string        `yaml:"sponsored_url"` // sponsored search service; empty disables it
	Timeout      time.Duration `yaml:"timeout"`       // per-request transport timeout
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	Retention   time.Duration `yaml:"retention"`    // freshness window before stale-while-revalidate
	GracePeriod time.Duration `yaml:"grace_period"` // retention of zero-subscriber entries
	MaxDetached int           `yaml:"max_detached"` // max retained zero-subscriber entries
	Revalidate  time.Duration `yaml:"revalidate"`   // revalidator tick interval (watch mode)
}

// StorageConfig holds local SQLite settings.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls the diagnostics server serving Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // diagnostics listen address (watch mode)
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// NotificationConfig controls user-facing failure notifications.
type NotificationConfig struct {
	Color bool `yaml:"color"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000/api/v1",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Retention:   60 * time.Second,
			GracePeriod: 5 * time.Minute,
			MaxDetached: 1_000,
			Revalidate:  15 * time.Second,
		},
		Storage: StorageConfig{
			DSN: "shopfront.db",
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Addr: ":9090"},
		},
		Notifications: NotificationConfig{Color: true},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
