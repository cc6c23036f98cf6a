package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "an explicit path must exist")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8765, cfg.Bridge.Port)
	assert.Equal(t, "ETHUSDT", cfg.Pair.Target)
	assert.Equal(t, "BTCUSDT", cfg.Pair.Reference)
	assert.Equal(t, time.Second, cfg.Analytics.Frequency)
	assert.Equal(t, 60, cfg.Analytics.Window)
	assert.Equal(t, EstimatorKalman, cfg.Analytics.Estimator)
	assert.Equal(t, 300, cfg.Analytics.BarLimit)
	assert.Equal(t, 2.0, cfg.Strategy.EntryZ)
	assert.Equal(t, 0.0, cfg.Strategy.ExitZ)
	assert.Nil(t, cfg.Strategy.CustomUpper)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
pair:
  target: SOLUSDT
  reference: ETHUSDT
analytics:
  estimator: ols
  window: 30
strategy:
  entry_z: 1.5
  custom_upper: 3.0
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "SOLUSDT", cfg.Pair.Target)
	assert.Equal(t, EstimatorRollingOLS, cfg.Analytics.Estimator)
	assert.Equal(t, 30, cfg.Analytics.Window)
	assert.Equal(t, 1.5, cfg.Strategy.EntryZ)
	require.NotNil(t, cfg.Strategy.CustomUpper)
	assert.Equal(t, 3.0, *cfg.Strategy.CustomUpper)
	// Untouched keys keep their defaults.
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STATARB_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("STATARB_BRIDGE_PORT", "9100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, 9100, cfg.Bridge.Port)
}

func TestValidateRejections(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Pair: PairConfig{Target: "ETHUSDT", Reference: "BTCUSDT"},
			Analytics: AnalyticsConfig{
				Frequency: time.Second,
				Window:    60,
				Estimator: EstimatorKalman,
			},
			Strategy: StrategyConfig{EntryZ: 2.0},
		}
	}

	assert.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"window too small", func(c *Config) { c.Analytics.Window = 1 }},
		{"zero frequency", func(c *Config) { c.Analytics.Frequency = 0 }},
		{"unknown estimator", func(c *Config) { c.Analytics.Estimator = "garch" }},
		{"non-positive entry", func(c *Config) { c.Strategy.EntryZ = 0 }},
		{"missing symbol", func(c *Config) { c.Pair.Reference = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
