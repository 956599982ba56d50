package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutti/config"
	"tutti/logger"
	"tutti/multitrack"
	"tutti/session"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <session.yaml>",
	Short: "Play a session",
	Long: `Load every track of a session and play them in sync.

On a terminal the keyboard controls the transport:

  space  start / pause        s      stop
  r      rewind               ←/→    seek 5s
  m      mute                 +/-    gain
  1-9    solo track           0      clear solo
  a      toggle auto rewind   q      quit

Without a terminal, playback starts once every track is loaded and the command
exits when it stops.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Bool("watch", false, "reapply gains, mute and solo when the session file changes")
	playCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	playCmd.Flags().Bool("auto-rewind", false, "restart from the beginning when starting at the end")

	viper.BindPFlag("metrics.listen", playCmd.Flags().Lookup("metrics-addr"))
	viper.BindPFlag("playback.auto_rewind", playCmd.Flags().Lookup("auto-rewind"))
}

// runPlay plays the session file given as argument
func runPlay(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	stdin := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdin)

	// Setup logging
	out := newConsole(cmd.OutOrStdout(), interactive)
	closer, err := logger.SetupWithOptions(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File: logger.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		},
		Console: out,
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closer.Close()
	defer out.Close()

	watch, _ := cmd.Flags().GetBool("watch")
	playStates := make(chan multitrack.PlayState, 16)
	opts := session.Options{
		Interactive: true,
		Watch:       watch,
		Listener: multitrack.Listener{
			OnPlayStateChanged: func(state multitrack.PlayState) {
				select {
				case playStates <- state:
				default:
				}
			},
		},
	}

	var engagement *keyboardEngagement
	if interactive {
		engagement = &keyboardEngagement{}
		opts.Engagement = engagement
	}

	s, err := session.New(cfg, args[0], opts)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.Start(); err != nil {
		_ = s.Stop()
		return fmt.Errorf("failed to start session: %w", err)
	}

	var keys <-chan []key
	if interactive {
		state, err := term.MakeRaw(stdin)
		if err != nil {
			_ = s.Stop()
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer term.Restore(stdin, state)
		keys = readKeys(os.Stdin)
	}

	// Setup graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	ticker := time.NewTicker(cfg.Playback.ClockInterval)
	defer ticker.Stop()

	ready := s.Ready()
	var runErr error
loop:
	for {
		select {
		case sig := <-signalChan:
			slog.Info("Received signal, shutting down", slog.String("signal", sig.String()))
			break loop
		case err := <-s.Error():
			slog.Error("Session failed", slog.Any("error", err))
			runErr = err
			break loop
		case <-ready:
			ready = nil
			if !interactive {
				s.Player().Start()
			}
		case state := <-playStates:
			if !interactive && state == multitrack.PlayStateStopped {
				break loop
			}
		case pressed, ok := <-keys:
			if !ok {
				break loop
			}
			engagement.Engage()
			for _, k := range pressed {
				if apply(s.Player(), k) {
					break loop
				}
			}
		case <-ticker.C:
			out.SetStatus(s.Status().String())
		}
	}

	if err := s.Stop(); err != nil {
		return fmt.Errorf("failed to stop session gracefully: %w", err)
	}
	return runErr
}

// readKeys forwards decoded key presses until r fails
func readKeys(r io.Reader) <-chan []key {
	keys := make(chan []key)
	go func() {
		defer close(keys)

		buf := make([]byte, 16)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				keys <- parseKeys(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	return keys
}
