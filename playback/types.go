package playback

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed context
	ErrClosed = errors.New("audio context is closed")

	// ErrUnsupportedFormat is returned when raw bytes cannot be decoded
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// ContextState describes whether an output context is producing audio
type ContextState int

const (
	StateSuspended ContextState = iota
	StateRunning
	StateClosed
)

func (s ContextState) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Context is an audio output device. It owns a monotonic device clock and
// creates the nodes that make up an output graph.
type Context interface {
	// State returns the current activation state
	State() ContextState

	// Resume activates the context. A context that cannot be activated stays
	// suspended; callers must check State afterwards.
	Resume(ctx context.Context) error

	// Close releases the device. A closed context cannot be resumed.
	Close() error

	// CurrentTime returns the device clock. It only advances while running.
	CurrentTime() time.Duration

	// OnStateChange registers fn to be called whenever State changes.
	OnStateChange(fn func(ContextState)) (cancel func())

	// DecodeAudioData decodes raw encoded bytes into a playable buffer
	DecodeAudioData(ctx context.Context, data []byte) (Buffer, error)

	// CreateBufferSource creates a one-shot playback node bound to buf
	CreateBufferSource(buf Buffer) SourceNode

	// CreateGain creates a gain node with unity gain
	CreateGain() GainNode
}

// Buffer is decoded audio ready for playback
type Buffer interface {
	Duration() time.Duration
}

// SourceNode plays a Buffer once. It cannot be restarted after Stop or after
// reaching its end.
type SourceNode interface {
	// SetOnEnded sets the callback fired when playback reaches its natural end.
	// It is never fired as a result of Stop. A nil fn detaches the callback.
	SetOnEnded(fn func())

	// Connect routes the node's output through gain
	Connect(gain GainNode)

	// Start schedules playback at device time when, beginning offset into the
	// buffer and lasting at most duration.
	Start(when, offset, duration time.Duration)

	// Stop halts playback immediately
	Stop()
}

// GainNode scales the signal passing through it
type GainNode interface {
	// Value returns the gain at the current device time
	Value() float64

	// SetValue changes the gain immediately and cancels any pending ramp
	SetValue(v float64)

	// SetTargetAtTime starts an exponential approach to target beginning at
	// device time startTime. timeConstant is the time to cover ~63% of the
	// remaining distance.
	SetTargetAtTime(target float64, startTime, timeConstant time.Duration)
}
