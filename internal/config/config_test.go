package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terradolor/prometheus-enviro-exporter/internal/config"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "enviro-exporter.toml")
	err := os.WriteFile(configPath, []byte(content), 0o600)
	require.NoError(t, err)

	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfigFile(t, `
interval = 2.5
factor = 1.5
smoothing_window = 10
enviro = true
bind = "127.0.0.1:9999"
log_level = "debug"

[luftdaten]
enabled = true
interval = 60.0

[journal]
enabled = true
interval = 15.0
database = "/tmp/journal.db"
batch_size = 8
`)
	t.Setenv("ENVIRO_EXPORTER_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.InDelta(t, 2.5, cfg.Interval, 1e-9, "Expected Interval 2.5")
	assert.InDelta(t, 1.5, cfg.Factor, 1e-9, "Expected Factor 1.5")
	assert.Equal(t, 10, cfg.SmoothingWindow, "Expected SmoothingWindow 10")
	assert.True(t, cfg.Enviro, "Expected Enviro true")
	assert.Equal(t, "127.0.0.1:9999", cfg.Bind, "Expected custom bind address")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.True(t, cfg.Luftdaten.Enabled, "Expected Luftdaten enabled")
	assert.InDelta(t, 60.0, cfg.Luftdaten.Interval, 1e-9, "Expected Luftdaten interval 60")
	assert.True(t, cfg.Journal.Enabled, "Expected Journal enabled")
	assert.Equal(t, "/tmp/journal.db", cfg.Journal.DBPath, "Expected custom journal path")
	assert.Equal(t, 8, cfg.Journal.BatchSize, "Expected journal batch size 8")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRO_EXPORTER_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.InDelta(t, 5.0, cfg.Interval, 1e-9, "Expected default Interval 5")
	assert.InDelta(t, 0.0, cfg.Factor, 1e-9, "Expected compensation disabled by default")
	assert.Equal(t, 5, cfg.SmoothingWindow, "Expected default SmoothingWindow 5")
	assert.False(t, cfg.Enviro, "Expected default Enviro false")
	assert.Equal(t, "0.0.0.0:9848", cfg.Bind, "Expected default bind address")
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel")
	assert.False(t, cfg.Luftdaten.Enabled, "Expected Luftdaten disabled by default")
	assert.False(t, cfg.Influx.Enabled, "Expected InfluxDB disabled by default")
	assert.False(t, cfg.MQTT.Enabled, "Expected MQTT disabled by default")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfigFile(t, `
This is not a valid TOML file
`)
	t.Setenv("ENVIRO_EXPORTER_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrReadConfig, errors.CodeOf(err))
}

func TestNegativeIntervalIsFatal(t *testing.T) {
	configPath := writeConfigFile(t, `
interval = -1.0
`)
	t.Setenv("ENVIRO_EXPORTER_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInterval, errors.CodeOf(err))
}

func TestNegativeFactorIsFatal(t *testing.T) {
	configPath := writeConfigFile(t, `
factor = -0.5
`)
	t.Setenv("ENVIRO_EXPORTER_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidConfig, errors.CodeOf(err))
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfigFile(t, `
log_level = "noisy"
`)
	t.Setenv("ENVIRO_EXPORTER_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidLogLevel, errors.CodeOf(err))
}

func TestEnabledSinkNeedsPositiveInterval(t *testing.T) {
	configPath := writeConfigFile(t, `
[mqtt]
enabled = true
interval = 0.0
`)
	t.Setenv("ENVIRO_EXPORTER_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInterval, errors.CodeOf(err))
}

func TestFlagOverridesFile(t *testing.T) {
	configPath := writeConfigFile(t, `
interval = 30.0
`)
	t.Setenv("ENVIRO_EXPORTER_CONFIG", configPath)

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"enviro-exporter", "--interval", "1.0", "--log-level", "debug"}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cfg.Interval, 1e-9, "Expected flag to override config file")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel set by flag")
}
