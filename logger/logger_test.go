package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetupJSONConsole(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	_, err := SetupWithOptions(Options{Level: "warn", Format: "json", Console: &buf})
	require.NoError(t, err)

	slog.Info("hidden")
	WithComponent("track").Warn("visible", slog.Int("n", 1))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "visible", record["msg"])
	assert.Equal(t, "track", record["component"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestSetupWritesFile(t *testing.T) {
	restoreDefault(t)
	path := filepath.Join(t.TempDir(), "logs", "tutti.log")
	var console bytes.Buffer

	closer, err := SetupWithOptions(Options{
		Level:   "info",
		Format:  "text",
		Console: &console,
		File:    FileOptions{Path: path, MaxSizeMB: 1},
	})
	require.NoError(t, err)

	slog.Info("to both outputs")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both outputs")
	assert.Contains(t, console.String(), "to both outputs")
}
