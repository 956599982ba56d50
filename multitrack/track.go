package multitrack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"tutti/mediaqueue"
	"tutti/playback"
)

var errNoContextProvider = errors.New("no audio context provider configured")

// Track plays a single source within a fractional playback range
type Track struct {
	id          string
	name        string
	sourceURL   string
	customProps map[string]any
	env         Env
	logger      *slog.Logger
	dispatch    dispatcher

	mu            sync.Mutex
	listener      Listener
	playbackRange PlaybackRange
	gainParams    GainParams
	masterGain    float64
	state         State
	playState     PlayState
	err           error

	pc     playback.Context
	buffer playback.Buffer
	source playback.SourceNode
	gain   playback.GainNode

	trackDuration time.Duration
	rangeStart    time.Duration
	rangeEnd      time.Duration
	rangeDuration time.Duration

	// position in full-track coordinates to resume from while not started
	lastStop    time.Duration
	hasLastStop bool
	// device time at which position zero of the track would have played
	startTime time.Duration
}

// NewTrack creates a new Track in the created state
func NewTrack(cfg TrackConfig, env Env, listener Listener) *Track {
	env = env.withDefaults()

	name := cfg.Name
	if name == "" {
		name = NameFromURL(cfg.SourceURL)
	}

	t := &Track{
		id:            env.NewID(),
		name:          name,
		sourceURL:     cfg.SourceURL,
		customProps:   maps.Clone(cfg.CustomProps),
		env:           env,
		listener:      listener,
		playbackRange: cfg.ResolvedPlaybackRange(),
		gainParams:    cfg.ResolvedGainParams(),
		masterGain:    1,
		state:         StateCreated,
		playState:     PlayStateStopped,
	}
	t.logger = env.Logger.With(
		slog.String("component", "track"),
		slog.String("track_id", t.id),
		slog.String("track_name", t.name))

	return t
}

// ID returns the unique track id
func (t *Track) ID() string { return t.id }

// Name returns the configured or derived display name
func (t *Track) Name() string { return t.name }

// SourceURL returns where the track is loaded from
func (t *Track) SourceURL() string { return t.sourceURL }

// CustomProps returns the free-form properties of the track configuration
func (t *Track) CustomProps() map[string]any { return t.customProps }

// PlaybackRange returns the configured fractional range
func (t *Track) PlaybackRange() PlaybackRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playbackRange
}

// State returns the load state
func (t *Track) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// PlayState returns the transport state
func (t *Track) PlayState() PlayState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playState
}

// Error returns the load error of a faulted track
func (t *Track) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Duration returns the length of the playback range, zero until loaded
func (t *Track) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rangeDuration
}

// Position returns the playback position relative to the range start
func (t *Track) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked()
}

// SetPosition seeks. A started track keeps playing from the new position;
// otherwise only the resume point moves.
func (t *Track) SetPosition(position time.Duration) {
	t.mu.Lock()
	if t.playState == PlayStateStarted {
		t.startLocked(&position)
		t.mu.Unlock()
		t.dispatch.flush()
		return
	}
	defer t.mu.Unlock()

	if t.pc == nil {
		return
	}

	inTrack := min(max(position+t.rangeStart, t.rangeStart), t.trackDuration)
	t.startTime = t.pc.CurrentTime() - inTrack
	t.lastStop = inTrack
	t.hasLastStop = true
}

// GainParams returns the track gain and mute flag
func (t *Track) GainParams() GainParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gainParams
}

// SetGainParams changes the track gain and mute flag
func (t *Track) SetGainParams(p GainParams) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gainParams = p
	t.applyGainLocked()
}

// MasterGain returns the multiplier supplied by the owning group
func (t *Track) MasterGain() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.masterGain
}

// SetMasterGain changes the multiplier supplied by the owning group
func (t *Track) SetMasterGain(g float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.masterGain = g
	t.applyGainLocked()
}

// Load downloads and decodes the source through the media queue and waits
// for the output context. Failures are also reported through the faulted
// state. Loading a track that is loading or ready does nothing. A track
// disposed while loading drops the result silently.
func (t *Track) Load(ctx context.Context) error {
	proceed, err := t.beginLoad()
	if !proceed {
		return err
	}
	return t.finishLoad(ctx)
}

// beginLoad enters the loading state. It reports whether the caller should
// go on with finishLoad.
func (t *Track) beginLoad() (bool, error) {
	t.mu.Lock()
	switch t.state {
	case StateDisposed:
		t.mu.Unlock()
		return false, ErrDisposed
	case StateLoading, StateReady:
		t.mu.Unlock()
		return false, nil
	}
	t.changeStateLocked(StateLoading, nil)
	t.mu.Unlock()
	t.dispatch.flush()
	return true, nil
}

func (t *Track) finishLoad(ctx context.Context) error {
	t.logger.Debug("Loading track", slog.String("source_url", t.sourceURL))

	if t.env.Contexts == nil {
		return t.fail(errNoContextProvider)
	}

	buf, err := t.env.Queue.DownloadAndDecode(ctx, mediaqueue.Request{
		SourceURL:       t.sourceURL,
		Downloader:      t.env.Downloader,
		Decoder:         t.env.Decoder,
		ContextProvider: t.env.Contexts,
	})
	if err != nil {
		return t.fail(err)
	}

	t.mu.Lock()
	if t.state == StateDisposed {
		t.mu.Unlock()
		return nil
	}
	t.buffer = buf
	t.trackDuration = buf.Duration()
	t.rangeStart = scale(t.trackDuration, t.playbackRange[0])
	t.rangeEnd = scale(t.trackDuration, t.playbackRange[1])
	t.rangeDuration = t.rangeEnd - t.rangeStart
	t.mu.Unlock()

	pc, err := t.env.Contexts.WaitForContext(ctx)
	if err != nil {
		return t.fail(fmt.Errorf("failed to obtain audio context: %w", err))
	}

	t.mu.Lock()
	if t.state == StateDisposed {
		t.mu.Unlock()
		return nil
	}
	t.pc = pc
	t.changeStateLocked(StateReady, nil)
	t.mu.Unlock()
	t.dispatch.flush()

	t.logger.Debug("Track ready", slog.Duration("duration", t.Duration()))
	return nil
}

func (t *Track) fail(err error) error {
	t.mu.Lock()
	if t.state == StateDisposed {
		t.mu.Unlock()
		return nil
	}
	t.changeStateLocked(StateFaulted, err)
	t.mu.Unlock()
	t.dispatch.flush()

	t.logger.Warn("Track failed to load", slog.Any("error", err))
	return err
}

// Start plays from the resume point, or from the range start
func (t *Track) Start() {
	t.start(nil)
}

// StartAt plays from position, relative to the range start. A started track
// re-seeks without a gap.
func (t *Track) StartAt(position time.Duration) {
	t.start(&position)
}

func (t *Track) start(position *time.Duration) {
	t.mu.Lock()
	t.startLocked(position)
	t.mu.Unlock()
	t.dispatch.flush()
}

func (t *Track) startLocked(position *time.Duration) {
	if t.state != StateReady {
		return
	}
	if t.playState == PlayStateStarted && position == nil {
		return
	}

	var offset time.Duration
	switch {
	case position != nil:
		offset = *position + t.rangeStart
	case t.hasLastStop:
		offset = t.lastStop
	default:
		offset = t.rangeStart
	}
	offset = max(offset, 0)

	if offset >= t.rangeEnd {
		t.stopLocked(true)
		return
	}

	t.releaseSourceLocked()

	source := t.pc.CreateBufferSource(t.buffer)
	source.SetOnEnded(func() { t.handleEnded(source) })

	t.gain = t.pc.CreateGain()
	t.gain.SetValue(t.effectiveGainLocked())
	source.Connect(t.gain)

	now := t.pc.CurrentTime()
	t.source = source
	t.hasLastStop = false
	t.lastStop = 0
	t.startTime = now - offset
	source.Start(now, offset, t.rangeEnd-offset)

	if t.playState != PlayStateStarted {
		t.changePlayStateLocked(PlayStateStarted)
	}
}

// Pause stops output and keeps the position. Only a started track pauses.
func (t *Track) Pause() {
	t.mu.Lock()
	if t.playState != PlayStateStarted {
		t.mu.Unlock()
		return
	}

	t.lastStop = t.positionInTrackLocked()
	t.hasLastStop = true
	t.releaseSourceLocked()
	t.startTime = 0
	t.changePlayStateLocked(PlayStatePausing)
	t.mu.Unlock()
	t.dispatch.flush()
}

// Stop halts playback. With moveToEnd the resume point becomes the range end,
// otherwise it is the current position.
func (t *Track) Stop(moveToEnd bool) {
	t.mu.Lock()
	t.stopLocked(moveToEnd)
	t.mu.Unlock()
	t.dispatch.flush()
}

func (t *Track) stopLocked(moveToEnd bool) {
	if t.state == StateDisposed {
		return
	}

	if t.pc != nil {
		if moveToEnd {
			t.lastStop = t.rangeEnd
		} else {
			t.lastStop = t.positionInTrackLocked()
		}
		t.hasLastStop = true
	}
	t.releaseSourceLocked()
	t.startTime = 0

	if t.playState != PlayStateStopped {
		t.changePlayStateLocked(PlayStateStopped)
	}
}

// handleEnded stops a track whose source reached the end of the range
func (t *Track) handleEnded(source playback.SourceNode) {
	t.mu.Lock()
	if t.source != source {
		t.mu.Unlock()
		return
	}
	t.stopLocked(true)
	t.mu.Unlock()
	t.dispatch.flush()
}

// Dispose stops playback and releases the buffer and output nodes. The track
// cannot be used afterwards.
func (t *Track) Dispose() {
	t.mu.Lock()
	if t.state == StateDisposed {
		t.mu.Unlock()
		return
	}

	t.releaseSourceLocked()
	t.gain = nil
	t.buffer = nil
	t.pc = nil
	t.err = nil
	t.startTime = 0
	t.lastStop = 0
	t.hasLastStop = false
	t.playState = PlayStateStopped
	t.changeStateLocked(StateDisposed, nil)
	t.listener = Listener{}
	t.mu.Unlock()
	t.dispatch.flush()
}

func (t *Track) releaseSourceLocked() {
	if t.source == nil {
		return
	}
	t.source.SetOnEnded(nil)
	t.source.Stop()
	t.source = nil
}

func (t *Track) positionInTrackLocked() time.Duration {
	switch {
	case t.playState == PlayStateStarted && t.pc != nil:
		return t.pc.CurrentTime() - t.startTime
	case t.hasLastStop:
		return t.lastStop
	default:
		return t.rangeStart
	}
}

func (t *Track) positionLocked() time.Duration {
	return min(max(t.positionInTrackLocked()-t.rangeStart, 0), t.rangeDuration)
}

func (t *Track) effectiveGainLocked() float64 {
	return t.masterGain * t.gainParams.Value()
}

func (t *Track) applyGainLocked() {
	if t.gain == nil {
		return
	}

	value := t.effectiveGainLocked()
	if t.gain.Value() == value {
		return
	}

	if t.playState == PlayStateStarted {
		t.gain.SetTargetAtTime(value, t.pc.CurrentTime(), GainDecayDuration)
	} else {
		t.gain.SetValue(value)
	}
}

func (t *Track) changeStateLocked(state State, err error) {
	t.state = state
	t.err = err
	t.dispatch.enqueue(t.listener.stateChanged(state, err))
}

func (t *Track) changePlayStateLocked(state PlayState) {
	t.playState = state
	t.dispatch.enqueue(t.listener.playStateChanged(state))
}

func scale(d time.Duration, fraction float64) time.Duration {
	return time.Duration(float64(d) * fraction)
}
