// Package multitrack plays several audio sources as one synchronized unit.
//
// A Track plays a single source. A TrackGroup aggregates tracks into one
// transport with shared mixing, and a Player binds a group to a polling clock
// that reports position changes.
package multitrack

import (
	"errors"
	"time"
)

// GainDecayDuration is the time constant of gain ramps during playback
const GainDecayDuration = 15 * time.Millisecond

// NoSolo disables solo mixing
const NoSolo = -1

// ErrDisposed is returned by operations on a disposed instance
var ErrDisposed = errors.New("cannot use a disposed instance")

// State is the load lifecycle of a track or group
type State int

const (
	StateCreated State = iota
	StateLoading
	StateReady
	StateFaulted
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFaulted:
		return "faulted"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// PlayState is the transport state of a track or group
type PlayState int

const (
	PlayStateStopped PlayState = iota
	PlayStateStarted
	PlayStatePausing
)

func (s PlayState) String() string {
	switch s {
	case PlayStateStopped:
		return "stopped"
	case PlayStateStarted:
		return "started"
	case PlayStatePausing:
		return "pausing"
	default:
		return "unknown"
	}
}

// Listener receives transitions. Nil fields are skipped.
type Listener struct {
	OnStateChanged     func(state State, err error)
	OnPlayStateChanged func(state PlayState)
}

func (l Listener) stateChanged(state State, err error) func() {
	fn := l.OnStateChanged
	return func() {
		if fn != nil {
			fn(state, err)
		}
	}
}

func (l Listener) playStateChanged(state PlayState) func() {
	fn := l.OnPlayStateChanged
	return func() {
		if fn != nil {
			fn(state)
		}
	}
}

// sameError reports whether a and b are the same error value
func sameError(a, b error) bool {
	return errors.Is(a, b) && errors.Is(b, a)
}
