// Package session wires the components needed to play one track
// configuration file and manages their lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/prometheus/client_golang/prometheus"

	"tutti/audioctx"
	"tutti/config"
	"tutti/logger"
	"tutti/media"
	"tutti/mediaqueue"
	"tutti/multitrack"
	"tutti/playback"
)

// Options configures a Session
type Options struct {
	// Interactive enables the audio output. A non-interactive session never
	// obtains an output context.
	Interactive bool
	// Engagement reports user interactions that may activate the output
	Engagement audioctx.Engagement
	// Factory creates the output context. Defaults to the system speaker.
	Factory audioctx.Factory
	// Downloader defaults to a caching HTTP downloader
	Downloader mediaqueue.Downloader
	// Registry collects the queue metrics. Defaults to a fresh registry.
	Registry *prometheus.Registry
	// Watch reapplies the mix whenever the session file changes
	Watch bool

	Listener          multitrack.Listener
	OnPositionChanged func(time.Duration)
}

// Session represents the running application state
type Session struct {
	config   *config.Config
	path     string
	opts     Options
	logger   *slog.Logger
	registry *prometheus.Registry
	queue    *mediaqueue.MediaQueue
	cache    *audioctx.Cache
	player   *multitrack.Player
	watcher  *Watcher
	metrics  *MetricsServer
	monitor  *Monitor

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	errorChan chan error
	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
}

// New creates a new Session for the track configuration file at path
func New(cfg *config.Config, path string, opts Options) (*Session, error) {
	tracks, err := multitrack.LoadTrackConfiguration(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		config:    cfg,
		path:      path,
		opts:      opts,
		logger:    logger.WithComponent("session"),
		registry:  opts.Registry,
		ctx:       ctx,
		cancel:    cancel,
		errorChan: make(chan error, 10),
		ready:     make(chan struct{}),
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	queueMetrics, err := mediaqueue.NewMetrics(s.registry)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register queue metrics: %w", err)
	}
	s.queue = mediaqueue.New(mediaqueue.Options{
		SourceConcurrency:   cfg.Queue.SourceConcurrency,
		DownloadConcurrency: cfg.Queue.DownloadConcurrency,
		DecodeConcurrency:   cfg.Queue.DecodeConcurrency,
		Metrics:             queueMetrics,
	})

	factory := opts.Factory
	if factory == nil {
		factory = speakerFactory(cfg.Playback)
	}
	s.cache = audioctx.New(audioctx.Options{
		Interactive: opts.Interactive,
		Factory:     factory,
		Engagement:  opts.Engagement,
	})

	downloader := opts.Downloader
	if downloader == nil {
		downloader = media.NewCachingDownloader(media.NewHTTPDownloader(cfg.Download.Timeout), cfg.Download.CacheTTL)
	}

	s.player = multitrack.NewPlayer(tracks, multitrack.Env{
		Queue:      s.queue,
		Downloader: downloader,
		Decoder:    media.ContextDecoder{},
		Contexts:   audioctx.NewProvider(s.cache),
	}, multitrack.PlayerOptions{
		AutoRewind:        cfg.Playback.AutoRewind,
		ClockInterval:     cfg.Playback.ClockInterval,
		Listener:          s.listener(),
		OnPositionChanged: opts.OnPositionChanged,
	})

	if cfg.Metrics.Listen != "" {
		s.metrics = NewMetricsServer(cfg.Metrics.Listen, s.registry)
	}
	s.monitor = NewMonitor(s, time.Minute, &s.wg)

	return s, nil
}

func speakerFactory(cfg config.PlaybackConfig) audioctx.Factory {
	var ffmpeg *playback.FFmpegDecoder
	if cfg.FFmpegPath != "" {
		ffmpeg = playback.NewFFmpegDecoder(cfg.FFmpegPath)
	}
	return func() (playback.Context, error) {
		return playback.NewSpeakerContext(playback.SpeakerOptions{
			SampleRate: beep.SampleRate(cfg.SampleRate),
			BufferSize: cfg.BufferSize,
			FFmpeg:     ffmpeg,
		}), nil
	}
}

// Start activates the output, begins loading every track and starts the
// optional watcher and metrics endpoint
func (s *Session) Start() error {
	s.logger.Info("Starting session", slog.String("path", s.path), slog.Int("tracks", len(s.player.Tracks())))

	// starting the session is itself a user interaction
	if err := s.cache.Resume(s.ctx); err != nil {
		s.logger.Info("Audio output waits for user engagement", slog.Any("error", err))
	}

	if s.opts.Watch {
		w, err := NewWatcher(s.path)
		if err != nil {
			return fmt.Errorf("failed to watch session file: %w", err)
		}
		s.watcher = w
		s.wg.Add(1)
		go s.watch()
	}

	if s.metrics != nil {
		s.metrics.Start(&s.wg, s.errorChan)
	}

	s.monitor.Start(s.ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.player.Load(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Session failed to load", slog.Any("error", err))
		}
	}()

	return nil
}

// Stop releases every component and waits for background work to finish
func (s *Session) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping session")
		s.cancel()
		s.player.Dispose()

		if s.watcher != nil {
			err = s.watcher.Close()
		}
		if s.metrics != nil {
			if stopErr := s.metrics.Stop(); stopErr != nil && err == nil {
				err = stopErr
			}
		}

		s.wg.Wait()
		s.cache.Dispose()
		s.logger.Info("Session stopped")
	})
	return err
}

// Player returns the session player
func (s *Session) Player() *multitrack.Player {
	return s.player
}

// Cache returns the audio context cache
func (s *Session) Cache() *audioctx.Cache {
	return s.cache
}

// Queue returns the media queue
func (s *Session) Queue() *mediaqueue.MediaQueue {
	return s.queue
}

// Ready is closed once every track is loaded
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Error returns the error channel for monitoring errors
func (s *Session) Error() <-chan error {
	return s.errorChan
}

// Reload reads the session file again and applies gains, mute flags and
// solo. Changes to the track list require a new session.
func (s *Session) Reload() error {
	tracks, err := multitrack.LoadTrackConfiguration(s.path)
	if err != nil {
		return err
	}

	current := s.player.Tracks()
	if len(tracks.Tracks) != len(current) {
		return fmt.Errorf("track count changed from %d to %d, restart to apply", len(current), len(tracks.Tracks))
	}
	for i, tc := range tracks.Tracks {
		if tc.SourceURL != current[i].SourceURL() {
			return fmt.Errorf("source of track %d changed, restart to apply", i)
		}
	}

	for i, tc := range tracks.Tracks {
		current[i].SetGainParams(tc.ResolvedGainParams())
	}
	s.player.SetSoloTrackIndex(tracks.SoloTrackIndex)

	s.logger.Info("Session reloaded", slog.String("path", s.path))
	return nil
}

func (s *Session) watch() {
	defer s.wg.Done()

	for {
		select {
		case _, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("Failed to reload session", slog.Any("error", err))
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Session watcher error", slog.Any("error", err))
		case <-s.ctx.Done():
			return
		}
	}
}

// listener tracks readiness and faults before handing events on
func (s *Session) listener() multitrack.Listener {
	next := s.opts.Listener
	return multitrack.Listener{
		OnStateChanged: func(state multitrack.State, err error) {
			switch state {
			case multitrack.StateReady:
				s.readyOnce.Do(func() {
					s.logger.Info("Session ready")
					close(s.ready)
				})
			case multitrack.StateFaulted:
				s.report(fmt.Errorf("failed to load session: %w", err))
			}
			if next.OnStateChanged != nil {
				next.OnStateChanged(state, err)
			}
		},
		OnPlayStateChanged: func(state multitrack.PlayState) {
			s.logger.Debug("Play state changed", slog.String("state", state.String()))
			if next.OnPlayStateChanged != nil {
				next.OnPlayStateChanged(state)
			}
		},
	}
}

func (s *Session) report(err error) {
	select {
	case s.errorChan <- err:
	default:
		s.logger.Error("Dropped session error", slog.Any("error", err))
	}
}
