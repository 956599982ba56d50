package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Media queue configuration
	Queue QueueConfig `mapstructure:"queue"`

	// Audio output configuration
	Playback PlaybackConfig `mapstructure:"playback"`

	// Media download configuration
	Download DownloadConfig `mapstructure:"download"`

	// Prometheus endpoint configuration
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// QueueConfig holds the limits of the media queue stages
type QueueConfig struct {
	SourceConcurrency   int `mapstructure:"source_concurrency"`
	DownloadConcurrency int `mapstructure:"download_concurrency"`
	DecodeConcurrency   int `mapstructure:"decode_concurrency"`
}

// PlaybackConfig holds audio output configuration
type PlaybackConfig struct {
	SampleRate    int           `mapstructure:"sample_rate"`
	BufferSize    time.Duration `mapstructure:"buffer_size"`
	ClockInterval time.Duration `mapstructure:"clock_interval"`
	AutoRewind    bool          `mapstructure:"auto_rewind"`
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
}

// DownloadConfig holds media download configuration
type DownloadConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // empty disables the endpoint
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("queue.source_concurrency", 2)
	v.SetDefault("queue.download_concurrency", 2)
	v.SetDefault("queue.decode_concurrency", 2)
	v.SetDefault("playback.sample_rate", 44100)
	v.SetDefault("playback.buffer_size", "100ms")
	v.SetDefault("playback.clock_interval", "50ms")
	v.SetDefault("playback.auto_rewind", false)
	v.SetDefault("playback.ffmpeg_path", "")
	v.SetDefault("download.timeout", "30s")
	v.SetDefault("download.cache_ttl", "10m")
	v.SetDefault("metrics.listen", "")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load reads the configuration through v
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Read config file
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tutti")
		v.AddConfigPath("/etc/tutti")
	}

	// Allow environment variables
	v.SetEnvPrefix("TUTTI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		slog.Debug("No config file found, using defaults and environment variables")
	} else {
		slog.Debug("Using config file", slog.String("file", v.ConfigFileUsed()))
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown log level %q", c.Logging.Level)}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown log format %q", c.Logging.Format)}
	}

	limits := []struct {
		field string
		value int
	}{
		{"queue.source_concurrency", c.Queue.SourceConcurrency},
		{"queue.download_concurrency", c.Queue.DownloadConcurrency},
		{"queue.decode_concurrency", c.Queue.DecodeConcurrency},
	}
	for _, limit := range limits {
		if limit.value < 1 {
			return &ConfigError{Field: limit.field, Message: "concurrency must be at least 1"}
		}
	}

	if c.Playback.SampleRate <= 0 {
		return &ConfigError{Field: "playback.sample_rate", Message: "sample rate must be positive"}
	}
	if c.Playback.BufferSize <= 0 {
		return &ConfigError{Field: "playback.buffer_size", Message: "buffer size must be positive"}
	}
	if c.Playback.ClockInterval <= 0 {
		return &ConfigError{Field: "playback.clock_interval", Message: "clock interval must be positive"}
	}
	if c.Download.Timeout <= 0 {
		return &ConfigError{Field: "download.timeout", Message: "download timeout must be positive"}
	}
	if c.Download.CacheTTL < 0 {
		return &ConfigError{Field: "download.cache_ttl", Message: "cache TTL cannot be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
