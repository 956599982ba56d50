package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"tutti/config"
	"tutti/logger"
	"tutti/multitrack"

	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Commands for managing and validating tutti configuration and session files.",
}

// configValidateCmd validates the current configuration
var configValidateCmd = &cobra.Command{
	Use:   "validate [session.yaml]",
	Short: "Validate configuration",
	Long: `Validate the current configuration file and environment variables.
When a session file is given, its track configuration is validated too.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup basic logging for validation
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		// Load configuration
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// Validate configuration
		if err := cfg.Validate(); err != nil {
			slog.Error("Configuration validation failed", slog.Any("error", err))
			return err
		}

		if len(args) == 1 {
			tracks, err := multitrack.LoadTrackConfiguration(args[0])
			if err != nil {
				slog.Error("Session validation failed", slog.String("path", args[0]), slog.Any("error", err))
				return err
			}
			slog.Info("Session is valid", slog.String("path", args[0]), slog.Int("tracks", len(tracks.Tracks)))
		}

		slog.Info("Configuration is valid")
		fmt.Fprintln(cmd.OutOrStdout(), "✅ Configuration is valid")
		return nil
	},
}

// configShowCmd shows the current configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current configuration values from file and environment variables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup basic logging
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		// Load configuration
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintf(w, "  Queue:\n")
	fmt.Fprintf(w, "    Source concurrency: %d\n", cfg.Queue.SourceConcurrency)
	fmt.Fprintf(w, "    Download concurrency: %d\n", cfg.Queue.DownloadConcurrency)
	fmt.Fprintf(w, "    Decode concurrency: %d\n", cfg.Queue.DecodeConcurrency)
	fmt.Fprintf(w, "  Playback:\n")
	fmt.Fprintf(w, "    Sample rate: %d\n", cfg.Playback.SampleRate)
	fmt.Fprintf(w, "    Buffer size: %s\n", cfg.Playback.BufferSize)
	fmt.Fprintf(w, "    Clock interval: %s\n", cfg.Playback.ClockInterval)
	fmt.Fprintf(w, "    Auto rewind: %t\n", cfg.Playback.AutoRewind)
	fmt.Fprintf(w, "    FFmpeg: %s\n", orNone(cfg.Playback.FFmpegPath))
	fmt.Fprintf(w, "  Download:\n")
	fmt.Fprintf(w, "    Timeout: %s\n", cfg.Download.Timeout)
	fmt.Fprintf(w, "    Cache TTL: %s\n", cfg.Download.CacheTTL)
	fmt.Fprintf(w, "  Metrics:\n")
	fmt.Fprintf(w, "    Listen: %s\n", orNone(cfg.Metrics.Listen))
	fmt.Fprintf(w, "  Logging:\n")
	fmt.Fprintf(w, "    Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "    Format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "    File: %s\n", orNone(cfg.Logging.File))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
