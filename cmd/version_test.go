package cmd

import (
	"bytes"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "tutti version dev")
}

func TestResolveVersionFromBuildInfo(t *testing.T) {
	info := &debug.BuildInfo{
		GoVersion: "go1.24.0",
		Main:      debug.Module{Path: "tutti", Version: "v1.2.0"},
		Deps:      []*debug.Module{{Path: beepModule, Version: "v2.1.1"}},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	v := resolveVersion(info, true)
	assert.Equal(t, versionInfo{
		Version:   "v1.2.0",
		GitCommit: "abc123",
		BuildDate: "2026-10-01T12:00:00Z",
		GoVersion: "go1.24.0",
		Modified:  true,
		Beep:      "v2.1.1",
	}, v)

	var buf bytes.Buffer
	v.write(&buf)
	assert.Contains(t, buf.String(), "Git commit: abc123 (modified)\n")
	assert.Contains(t, buf.String(), "Audio backend: beep v2.1.1\n")
}

func TestResolveVersionWithoutBuildInfo(t *testing.T) {
	v := resolveVersion(nil, false)
	assert.Equal(t, "dev", v.Version)
	assert.Equal(t, "unknown", v.GitCommit)
	assert.Equal(t, "unknown", v.Beep)
}
