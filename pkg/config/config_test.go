package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanDuration.Std())
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.RefreshInterval.Std())
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
log_level: debug
scan_duration: 5s
output_format: json
scan_prefix: ME_
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ScanDuration.Std())
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, "ME_", cfg.ScanPrefix)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout.Std())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad log level", "log_level: shouting"},
		{"bad output format", "output_format: xml"},
		{"bad duration", "scan_duration: fast"},
		{"zero refresh interval", "refresh_interval: 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	d := Duration(1500 * time.Millisecond)

	out, err := yaml.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, "1.5s\n", string(out))

	var back Duration
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, d, back)
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"

	logger := cfg.NewLogger()
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
