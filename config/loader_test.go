package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, runtime.NumCPU(), cfg.Engine.MaxConcurrentNodes)
	assert.Zero(t, cfg.Engine.RunTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 0.25, cfg.Retry.JitterFactor)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "flowmesh", cfg.Metrics.Namespace)
	assert.False(t, cfg.Telemetry.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoader_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/flowmesh.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_LoadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowmesh.yaml")
	content := `
engine:
  max_concurrent_nodes: 8
  dispatch_rate: 50
retry:
  max_attempts: 5
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.MaxConcurrentNodes)
	assert.Equal(t, 50.0, cfg.Engine.DispatchRate)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Untouched sections keep defaults.
	assert.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_concurrent_nodes: 8\n"), 0644))

	t.Setenv("FLOWMESH_ENGINE_MAX_CONCURRENT_NODES", "16")
	t.Setenv("FLOWMESH_ENGINE_RUN_TIMEOUT", "90s")
	t.Setenv("FLOWMESH_LOG_LEVEL", "warn")
	t.Setenv("FLOWMESH_METRICS_ENABLED", "false")
	t.Setenv("FLOWMESH_LOG_OUTPUT_PATHS", "stdout, /var/log/flowmesh.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Engine.MaxConcurrentNodes)
	assert.Equal(t, 90*time.Second, cfg.Engine.RunTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"stdout", "/var/log/flowmesh.log"}, cfg.Log.OutputPaths)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MESH_RETRY_MAX_ATTEMPTS", "7")

	cfg, err := NewLoader().WithEnvPrefix("MESH").Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
}

func TestLoader_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [not a map"), 0644))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return os.ErrInvalid
		}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative concurrency", func(c *Config) { c.Engine.MaxConcurrentNodes = -1 }},
		{"negative run timeout", func(c *Config) { c.Engine.RunTimeout = -time.Second }},
		{"negative dispatch rate", func(c *Config) { c.Engine.DispatchRate = -1 }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"sub-unit multiplier", func(c *Config) { c.Retry.BackoffMultiplier = 0.5 }},
		{"jitter out of range", func(c *Config) { c.Retry.JitterFactor = 1.5 }},
		{"max delay below initial", func(c *Config) { c.Retry.MaxDelay = c.Retry.InitialDelay / 2 }},
		{"zero pool workers", func(c *Config) { c.Pool.MaxWorkers = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"telemetry without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.OTLPEndpoint = ""
		}},
		{"telemetry sample rate out of range", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SampleRate = 2.0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: shouting\n"), 0644))

	assert.Panics(t, func() { MustLoad(path) })
}
