package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"invalid http port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"bad timezone", func(c *Config) { c.Storage.Timezone = "Mars/Olympus" }},
		{"unknown queue", func(c *Config) { c.Queue.Type = "sqs" }},
		{"kafka without brokers", func(c *Config) { c.Queue.Type = "kafka"; c.Queue.URL = "" }},
		{"unknown metadata backend", func(c *Config) { c.Metadata.Backend = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Metadata.Backend = "postgres" }},
		{"redis without url", func(c *Config) { c.Metadata.Backend = "redis" }},
		{"horizon above 365", func(c *Config) { c.Forecast.MaxHorizon = 400 }},
		{"default above max", func(c *Config) { c.Forecast.DefaultHorizon = 30; c.Forecast.MaxHorizon = 10 }},
		{"confidence of one", func(c *Config) { c.Forecast.Confidence = 1 }},
		{"zero lags", func(c *Config) { c.Forecast.NLags = 0 }},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
		{"zero timeout", func(c *Config) { c.Worker.JobTimeout = 0 }},
		{"sampling above one", func(c *Config) { c.Tracing.SamplingRate = 2 }},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Endpoint = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 9090
queue:
  type: memory
metadata:
  backend: redis
  redis_url: redis://localhost:6379/0
forecast:
  n_lags: 5
worker:
  job_timeout: 30m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("FORECASTER_STORAGE_DATA_DIR", "/tmp/forecasts")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Queue.Type)
	assert.Equal(t, "redis", cfg.Metadata.Backend)
	assert.Equal(t, 5, cfg.Forecast.NLags)
	assert.Equal(t, 30*time.Minute, cfg.Worker.JobTimeout)
	assert.Equal(t, "/tmp/forecasts", cfg.Storage.DataDir)

	// untouched values fall back to defaults
	assert.Equal(t, 14, cfg.Forecast.DefaultHorizon)
	assert.Equal(t, "forecast.jobs", cfg.Queue.Subject)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestGetStorageTimezone(t *testing.T) {
	tests := []struct {
		tz     string
		offset int
	}{
		{"", 0},
		{"UTC", 0},
		{"+09:00", 9 * 3600},
		{"-05:30", -(5*3600 + 30*60)},
		{"garbage", 0},
	}
	ref := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.tz, func(t *testing.T) {
			cfg := StorageConfig{Timezone: tt.tz}
			_, offset := ref.In(cfg.GetStorageTimezone()).Zone()
			assert.Equal(t, tt.offset, offset)
		})
	}
}

func TestModelConfig(t *testing.T) {
	cfg := DefaultConfig()
	mc := cfg.Forecast.ModelConfig()
	assert.Equal(t, 7, mc.NLags)
	assert.Equal(t, 0.95, mc.Confidence)
	assert.Equal(t, 100, mc.NEstimators)
}

func TestGetServerAddress(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddress())
}
