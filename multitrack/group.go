package multitrack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// GroupOptions configures a TrackGroup
type GroupOptions struct {
	AutoRewind bool
	// GainParams defaults to DefaultGainParams
	GainParams *GainParams
	Listener   Listener
}

// TrackGroup plays its tracks as one unit. The first configured track is the
// master track: its duration, position and play state stand for the group.
type TrackGroup struct {
	id       string
	tracks   []*Track
	master   *Track
	logger   *slog.Logger
	dispatch dispatcher

	mu             sync.Mutex
	listener       Listener
	configuration  TrackConfiguration
	autoRewind     bool
	gainParams     GainParams
	soloTrackIndex int
	state          State
	playState      PlayState
	err            error
	disposing      bool
}

// NewTrackGroup creates a group owning one track per configured source
func NewTrackGroup(cfg TrackConfiguration, env Env, opts GroupOptions) *TrackGroup {
	env = env.withDefaults()

	gainParams := DefaultGainParams()
	if opts.GainParams != nil {
		gainParams = *opts.GainParams
	}

	g := &TrackGroup{
		id:             env.NewID(),
		listener:       opts.Listener,
		configuration:  cfg,
		autoRewind:     opts.AutoRewind,
		gainParams:     gainParams,
		soloTrackIndex: cfg.SoloTrackIndex,
		state:          StateCreated,
		playState:      PlayStateStopped,
	}
	g.logger = env.Logger.With(slog.String("component", "track-group"), slog.String("group_id", g.id))

	trackListener := Listener{
		OnStateChanged:     func(State, error) { g.handleTrackStateChanged() },
		OnPlayStateChanged: func(PlayState) { g.handleTrackPlayStateChanged() },
	}
	g.tracks = make([]*Track, len(cfg.Tracks))
	for i, tc := range cfg.Tracks {
		g.tracks[i] = NewTrack(tc, env, trackListener)
	}
	if len(g.tracks) > 0 {
		g.master = g.tracks[0]
	}

	g.mu.Lock()
	g.applyGainLocked()
	g.mu.Unlock()

	return g
}

// ID returns the unique group id
func (g *TrackGroup) ID() string { return g.id }

// Tracks returns the owned tracks in configuration order
func (g *TrackGroup) Tracks() []*Track {
	return append([]*Track(nil), g.tracks...)
}

// TrackConfiguration returns the configuration the group was built from
func (g *TrackGroup) TrackConfiguration() TrackConfiguration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.configuration
}

// State returns the aggregate load state
func (g *TrackGroup) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// PlayState returns the play state of the master track
func (g *TrackGroup) PlayState() PlayState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playState
}

// Error returns the error of the first faulted track
func (g *TrackGroup) Error() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Duration returns the master track duration once every track is ready
func (g *TrackGroup) Duration() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.durationLocked()
}

func (g *TrackGroup) durationLocked() time.Duration {
	if g.state != StateReady || g.master == nil {
		return 0
	}
	return g.master.Duration()
}

// Position returns the master track position
func (g *TrackGroup) Position() time.Duration {
	if g.master == nil {
		return 0
	}
	return g.master.Position()
}

// SetPosition seeks every track
func (g *TrackGroup) SetPosition(position time.Duration) {
	for _, t := range g.tracks {
		t.SetPosition(position)
	}
}

// AutoRewind reports whether starting at the end restarts from the beginning
func (g *TrackGroup) AutoRewind() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.autoRewind
}

// SetAutoRewind changes the auto-rewind policy
func (g *TrackGroup) SetAutoRewind(autoRewind bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autoRewind = autoRewind
}

// GainParams returns the group gain and mute flag
func (g *TrackGroup) GainParams() GainParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gainParams
}

// SetGainParams changes the group gain and mute flag
func (g *TrackGroup) SetGainParams(p GainParams) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gainParams = p
	g.applyGainLocked()
}

// SoloTrackIndex returns the soloed track or NoSolo
func (g *TrackGroup) SoloTrackIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.soloTrackIndex
}

// SetSoloTrackIndex makes only the track at index audible. NoSolo makes every
// track audible again.
func (g *TrackGroup) SetSoloTrackIndex(index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.soloTrackIndex = index
	g.applyGainLocked()
}

func (g *TrackGroup) applyGainLocked() {
	value := g.gainParams.Value()
	for i, t := range g.tracks {
		if g.soloTrackIndex != NoSolo && i != g.soloTrackIndex {
			t.SetMasterGain(0)
		} else {
			t.SetMasterGain(value)
		}
	}
}

// Load loads every track in parallel and returns once all of them settled.
// Every track enters the loading state before any of them starts working.
// The returned error is the first failure; the group state follows the
// aggregate of the track states either way.
func (g *TrackGroup) Load(ctx context.Context) error {
	if g.State() == StateDisposed {
		return ErrDisposed
	}

	var eg errgroup.Group
	pending := make([]*Track, 0, len(g.tracks))
	for _, t := range g.tracks {
		proceed, err := t.beginLoad()
		if err != nil {
			eg.Go(func() error { return err })
		}
		if proceed {
			pending = append(pending, t)
		}
	}

	for _, t := range pending {
		eg.Go(func() error {
			return t.finishLoad(ctx)
		})
	}
	return eg.Wait()
}

// Start starts every track at the same position. A stopped group with
// auto-rewind that sits at or past its end starts from the beginning.
func (g *TrackGroup) Start() {
	g.start(nil)
}

// StartAt starts every track at position
func (g *TrackGroup) StartAt(position time.Duration) {
	g.start(&position)
}

func (g *TrackGroup) start(position *time.Duration) {
	g.mu.Lock()
	if g.state == StateDisposed {
		g.mu.Unlock()
		return
	}
	target := g.Position()
	if position != nil {
		target = *position
	}
	rewind := g.playState == PlayStateStopped && g.autoRewind && target >= g.durationLocked()
	g.mu.Unlock()

	if rewind {
		g.logger.Debug("Rewinding to the beginning")
		zero := time.Duration(0)
		position = &zero
	}

	for _, t := range g.tracks {
		t.start(position)
	}
}

// Pause pauses every track
func (g *TrackGroup) Pause() {
	for _, t := range g.tracks {
		t.Pause()
	}
}

// Stop stops every track
func (g *TrackGroup) Stop(moveToEnd bool) {
	for _, t := range g.tracks {
		t.Stop(moveToEnd)
	}
}

// Dispose stops and disposes every track. The group cannot be used
// afterwards.
func (g *TrackGroup) Dispose() {
	g.mu.Lock()
	if g.state == StateDisposed || g.disposing {
		g.mu.Unlock()
		return
	}
	g.disposing = true
	g.mu.Unlock()

	g.Stop(false)

	g.mu.Lock()
	if g.playState != PlayStateStopped {
		g.playState = PlayStateStopped
		g.dispatch.enqueue(g.listener.playStateChanged(PlayStateStopped))
	}
	g.state = StateDisposed
	g.err = nil
	g.soloTrackIndex = NoSolo
	g.configuration = TrackConfiguration{}
	g.dispatch.enqueue(g.listener.stateChanged(StateDisposed, nil))
	g.listener = Listener{}
	g.mu.Unlock()

	for _, t := range g.tracks {
		t.Dispose()
	}

	g.logger.Debug("Track group disposed")
	g.dispatch.flush()
}

func (g *TrackGroup) handleTrackStateChanged() {
	g.mu.Lock()
	if g.state == StateDisposed || g.disposing {
		g.mu.Unlock()
		return
	}

	var (
		seen       = make(map[State]bool, 5)
		firstError error
	)
	for _, t := range g.tracks {
		seen[t.State()] = true
		if err := t.Error(); err != nil && firstError == nil {
			firstError = err
		}
	}

	if seen[StateDisposed] {
		g.mu.Unlock()
		g.Dispose()
		return
	}

	switch {
	case seen[StateFaulted]:
		g.changeStateLocked(StateFaulted, firstError)
	case seen[StateLoading]:
		g.changeStateLocked(StateLoading, nil)
	case seen[StateCreated]:
		g.changeStateLocked(StateCreated, nil)
	default:
		g.changeStateLocked(StateReady, nil)
	}
	g.mu.Unlock()
	g.dispatch.flush()
}

func (g *TrackGroup) handleTrackPlayStateChanged() {
	g.mu.Lock()
	if g.state == StateDisposed || g.disposing || g.master == nil {
		g.mu.Unlock()
		return
	}

	if state := g.master.PlayState(); state != g.playState {
		g.playState = state
		g.dispatch.enqueue(g.listener.playStateChanged(state))
	}
	g.mu.Unlock()
	g.dispatch.flush()
}

func (g *TrackGroup) changeStateLocked(state State, err error) {
	if g.state == state && sameError(g.err, err) {
		return
	}
	g.state = state
	g.err = err
	g.logger.Debug("Track group state changed", slog.String("state", state.String()))
	g.dispatch.enqueue(g.listener.stateChanged(state, err))
}
