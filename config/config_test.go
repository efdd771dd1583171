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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(1<<20), cfg.Server.ReadLimit)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "whisper-1", cfg.Models.WhisperModel)
	assert.Equal(t, 64, cfg.Session.QueueSize)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9000"
  shutdown_timeout: 5s
redis:
  addr: "localhost:6379"
segmenter:
  hangover_chunks: 12
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 12, cfg.Segmenter.HangoverChunks)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched values keep defaults.
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ATTUNE_ADDR", ":7777")
	t.Setenv("ATTUNE_REDIS_ADDR", "redis:6379")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "sk-test", cfg.Models.WhisperAPIKey)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero read limit", func(c *Config) { c.Server.ReadLimit = 0 }},
		{"metrics enabled without addr", func(c *Config) { c.Metrics.Addr = "" }},
		{"telemetry enabled without endpoint", func(c *Config) { c.Telemetry.Enabled = true }},
		{"negative hangover", func(c *Config) { c.Segmenter.HangoverChunks = -1 }},
		{"zero queue size", func(c *Config) { c.Session.QueueSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
