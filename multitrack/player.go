package multitrack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tutti/clock"
)

// PlayerOptions configures a Player
type PlayerOptions struct {
	AutoRewind bool
	// GainParams defaults to DefaultGainParams
	GainParams *GainParams
	// AutoLoad starts loading right after construction when Interactive is set
	AutoLoad    bool
	Interactive bool
	// ClockInterval defaults to clock.DefaultInterval
	ClockInterval time.Duration

	Listener          Listener
	OnPositionChanged func(position time.Duration)
}

// Player binds a TrackGroup to a polling clock. While the group plays, the
// clock reports position changes; identical consecutive positions are
// reported once.
type Player struct {
	id       string
	clock    *clock.Clock
	group    *TrackGroup
	logger   *slog.Logger
	dispatch dispatcher

	mu                sync.Mutex
	listener          Listener
	onPositionChanged func(time.Duration)
	lastReported      time.Duration
	disposed          bool
}

// NewPlayer creates a new Player
func NewPlayer(cfg TrackConfiguration, env Env, opts PlayerOptions) *Player {
	env = env.withDefaults()

	p := &Player{
		id:                env.NewID(),
		listener:          opts.Listener,
		onPositionChanged: opts.OnPositionChanged,
	}
	p.logger = env.Logger.With(slog.String("component", "player"), slog.String("player_id", p.id))
	p.clock = clock.New(opts.ClockInterval, p.reportPosition)
	p.group = NewTrackGroup(cfg, env, GroupOptions{
		AutoRewind: opts.AutoRewind,
		GainParams: opts.GainParams,
		Listener: Listener{
			OnStateChanged:     p.handleGroupStateChanged,
			OnPlayStateChanged: p.handleGroupPlayStateChanged,
		},
	})
	p.lastReported = p.group.Position()

	if opts.AutoLoad && opts.Interactive {
		go func() {
			if err := p.Load(context.Background()); err != nil {
				p.logger.Warn("Automatic load failed", slog.Any("error", err))
			}
		}()
	}

	return p
}

// ID returns the unique player id
func (p *Player) ID() string { return p.id }

// Group returns the owned track group
func (p *Player) Group() *TrackGroup { return p.group }

// Tracks returns the tracks in configuration order
func (p *Player) Tracks() []*Track { return p.group.Tracks() }

// TrackConfiguration returns the configuration the player was built from
func (p *Player) TrackConfiguration() TrackConfiguration { return p.group.TrackConfiguration() }

// State returns the aggregate load state
func (p *Player) State() State { return p.group.State() }

// PlayState returns the transport state
func (p *Player) PlayState() PlayState { return p.group.PlayState() }

// Error returns the error of the first faulted track
func (p *Player) Error() error { return p.group.Error() }

// Duration returns the playable duration once ready
func (p *Player) Duration() time.Duration { return p.group.Duration() }

// Position returns the current position
func (p *Player) Position() time.Duration { return p.group.Position() }

// SetPosition seeks and reports the new position right away
func (p *Player) SetPosition(position time.Duration) {
	p.group.SetPosition(position)
	p.reportPosition()
}

// AutoRewind reports whether starting at the end restarts from the beginning
func (p *Player) AutoRewind() bool { return p.group.AutoRewind() }

// SetAutoRewind changes the auto-rewind policy
func (p *Player) SetAutoRewind(autoRewind bool) { p.group.SetAutoRewind(autoRewind) }

// GainParams returns the group gain and mute flag
func (p *Player) GainParams() GainParams { return p.group.GainParams() }

// SetGainParams changes the group gain and mute flag
func (p *Player) SetGainParams(params GainParams) { p.group.SetGainParams(params) }

// SoloTrackIndex returns the soloed track or NoSolo
func (p *Player) SoloTrackIndex() int { return p.group.SoloTrackIndex() }

// SetSoloTrackIndex solos the track at index, or clears solo with NoSolo
func (p *Player) SetSoloTrackIndex(index int) { p.group.SetSoloTrackIndex(index) }

// Load loads every track
func (p *Player) Load(ctx context.Context) error {
	return p.group.Load(ctx)
}

// Start starts playback and the position clock
func (p *Player) Start() {
	p.group.Start()
	if p.group.PlayState() == PlayStateStarted {
		p.clock.Start(true)
	}
}

// Pause pauses playback and reports the final position
func (p *Player) Pause() {
	p.group.Pause()
	p.clock.Stop(true)
}

// Stop stops playback and reports the final position
func (p *Player) Stop() {
	p.group.Stop(false)
	p.clock.Stop(true)
}

// Dispose releases the clock and the group
func (p *Player) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.mu.Unlock()

	p.clock.Dispose()
	p.group.Dispose()

	p.mu.Lock()
	p.lastReported = 0
	p.listener = Listener{}
	p.onPositionChanged = nil
	p.mu.Unlock()
	p.dispatch.flush()
}

func (p *Player) reportPosition() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}

	position := p.group.Position()
	if position != p.lastReported {
		p.lastReported = position
		if fn := p.onPositionChanged; fn != nil {
			p.dispatch.enqueue(func() { fn(position) })
		}
	}
	p.mu.Unlock()
	p.dispatch.flush()
}

func (p *Player) handleGroupStateChanged(state State, err error) {
	if state == StateFaulted || state == StateDisposed {
		p.clock.Stop(false)
	}

	p.mu.Lock()
	p.dispatch.enqueue(p.listener.stateChanged(state, err))
	p.mu.Unlock()
	p.dispatch.flush()
}

func (p *Player) handleGroupPlayStateChanged(state PlayState) {
	if state == PlayStateStarted {
		p.clock.Start(true)
	} else {
		p.clock.Stop(true)
	}

	p.mu.Lock()
	p.dispatch.enqueue(p.listener.playStateChanged(state))
	p.mu.Unlock()
	p.dispatch.flush()
}
