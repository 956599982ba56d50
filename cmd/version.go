package cmd

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Version information, set during build. Empty or default values are
	// filled from the module build info.
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const beepModule = "github.com/gopxl/beep/v2"

// versionInfo describes the running binary
type versionInfo struct {
	Version   string
	GitCommit string
	BuildDate string
	GoVersion string
	Modified  bool
	Beep      string
}

// resolveVersion merges the linker-provided values with info
func resolveVersion(info *debug.BuildInfo, ok bool) versionInfo {
	v := versionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		Beep:      "unknown",
	}
	if !ok || info == nil {
		return v
	}

	v.GoVersion = info.GoVersion
	if v.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if v.GitCommit == "unknown" {
				v.GitCommit = s.Value
			}
		case "vcs.time":
			if v.BuildDate == "unknown" {
				v.BuildDate = s.Value
			}
		case "vcs.modified":
			v.Modified = s.Value == "true"
		}
	}
	for _, dep := range info.Deps {
		if dep.Path == beepModule {
			v.Beep = dep.Version
		}
	}
	return v
}

func (v versionInfo) write(w io.Writer) {
	commit := v.GitCommit
	if v.Modified {
		commit += " (modified)"
	}
	fmt.Fprintf(w, "tutti version %s\n", v.Version)
	fmt.Fprintf(w, "Git commit: %s\n", commit)
	fmt.Fprintf(w, "Built: %s\n", v.BuildDate)
	if v.GoVersion != "" {
		fmt.Fprintf(w, "Go: %s\n", v.GoVersion)
	}
	fmt.Fprintf(w, "Audio backend: beep %s\n", v.Beep)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the tutti version, the commit and build date it was built from, and the audio backend in use.",
	Run: func(cmd *cobra.Command, args []string) {
		resolveVersion(debug.ReadBuildInfo()).write(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
