// Package config holds application configuration with YAML file support.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "10s" parse naturally.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds application configuration.
type Config struct {
	LogLevel        string   `yaml:"log_level"`
	ScanDuration    Duration `yaml:"scan_duration"`
	ConnectTimeout  Duration `yaml:"connect_timeout"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	OutputFormat    string   `yaml:"output_format"`
	ScanPrefix      string   `yaml:"scan_prefix"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "info",
		ScanDuration:    Duration(10 * time.Second),
		ConnectTimeout:  Duration(30 * time.Second),
		RefreshInterval: Duration(500 * time.Millisecond),
		OutputFormat:    "table", // table, json
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the application cannot honor.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output format %q: must be table or json", c.OutputFormat)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	return nil
}

// NewLogger creates a logger configured from the config's log level.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
