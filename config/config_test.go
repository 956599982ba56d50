package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Queue:    QueueConfig{SourceConcurrency: 2, DownloadConcurrency: 2, DecodeConcurrency: 2},
		Playback: PlaybackConfig{SampleRate: 44100, BufferSize: 100 * time.Millisecond, ClockInterval: 50 * time.Millisecond},
		Download: DownloadConfig{Timeout: 30 * time.Second, CacheTTL: 10 * time.Minute},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "json logging", mutate: func(c *Config) { c.Logging.Format = "JSON" }},
		{name: "unknown level", mutate: func(c *Config) { c.Logging.Level = "loud" }, field: "logging.level", wantErr: true},
		{name: "unknown format", mutate: func(c *Config) { c.Logging.Format = "xml" }, field: "logging.format", wantErr: true},
		{name: "zero source concurrency", mutate: func(c *Config) { c.Queue.SourceConcurrency = 0 }, field: "queue.source_concurrency", wantErr: true},
		{name: "zero download concurrency", mutate: func(c *Config) { c.Queue.DownloadConcurrency = 0 }, field: "queue.download_concurrency", wantErr: true},
		{name: "negative decode concurrency", mutate: func(c *Config) { c.Queue.DecodeConcurrency = -1 }, field: "queue.decode_concurrency", wantErr: true},
		{name: "zero sample rate", mutate: func(c *Config) { c.Playback.SampleRate = 0 }, field: "playback.sample_rate", wantErr: true},
		{name: "zero buffer", mutate: func(c *Config) { c.Playback.BufferSize = 0 }, field: "playback.buffer_size", wantErr: true},
		{name: "zero clock interval", mutate: func(c *Config) { c.Playback.ClockInterval = 0 }, field: "playback.clock_interval", wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Download.Timeout = 0 }, field: "download.timeout", wantErr: true},
		{name: "negative cache ttl", mutate: func(c *Config) { c.Download.CacheTTL = -time.Second }, field: "download.cache_ttl", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			var configErr *ConfigError
			require.True(t, errors.As(err, &configErr), "expected a ConfigError, got %v", err)
			assert.Equal(t, tt.field, configErr.Field)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	v := viper.New()

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Queue.SourceConcurrency)
	assert.Equal(t, 2, cfg.Queue.DownloadConcurrency)
	assert.Equal(t, 2, cfg.Queue.DecodeConcurrency)
	assert.Equal(t, 44100, cfg.Playback.SampleRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Playback.BufferSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Playback.ClockInterval)
	assert.Equal(t, 30*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Download.CacheTTL)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
queue:
  download_concurrency: 4
playback:
  clock_interval: 20ms
`), 0o600))
	t.Setenv("TUTTI_QUEUE_DECODE_CONCURRENCY", "3")

	v := viper.New()
	v.SetConfigFile(path)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Queue.DownloadConcurrency)
	assert.Equal(t, 3, cfg.Queue.DecodeConcurrency)
	assert.Equal(t, 20*time.Millisecond, cfg.Playback.ClockInterval)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: [\n"), 0o600))

	v := viper.New()
	v.SetConfigFile(path)

	_, err := Load(v)
	assert.Error(t, err)
}
