package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures rotated log file output
type FileOptions struct {
	// Path of the log file. Empty disables file output.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Options configures the global logger
type Options struct {
	Level  string
	Format string // json or text
	File   FileOptions
	// Console receives every record. Defaults to stdout.
	Console io.Writer
}

// Setup configures the global logger based on the provided configuration
func Setup(level, format string) error {
	_, err := SetupWithOptions(Options{Level: level, Format: format})
	return err
}

// SetupWithOptions configures the global logger and returns a closer for the
// log file, if any
func SetupWithOptions(opts Options) (io.Closer, error) {
	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	out := console
	var closer io.Closer = nopCloser{}
	if opts.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file := &lumberjack.Logger{
			Filename:   opts.File.Path,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   opts.File.Compress,
		}
		out = io.MultiWriter(console, file)
		closer = file
	}

	// Create handler based on format
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	slog.SetDefault(slog.New(handler))

	return closer, nil
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger with a component field
func WithComponent(component string) *slog.Logger {
	return slog.With("component", component)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
