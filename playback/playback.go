package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"tutti/logger"
)

// DefaultSampleRate is the output rate used when none is configured
const DefaultSampleRate = beep.SampleRate(44100)

// SpeakerOptions configures a SpeakerContext
type SpeakerOptions struct {
	SampleRate beep.SampleRate
	BufferSize time.Duration
	// FFmpeg decodes formats the built-in decoders do not understand. Nil
	// disables the fallback.
	FFmpeg *FFmpegDecoder
}

// SpeakerContext is a Context that renders through the system speaker. All
// nodes are mixed into a single graph whose sample counter is the device
// clock.
type SpeakerContext struct {
	sampleRate beep.SampleRate
	bufferSize time.Duration
	ffmpeg     *FFmpegDecoder
	graph      *graph
	logger     *slog.Logger

	mu          sync.RWMutex
	state       ContextState
	initialized bool
	observers   map[uint64]func(ContextState)
	nextID      uint64

	// replaced in tests so no audio hardware is needed
	initSpeaker  func(beep.SampleRate, int) error
	playSpeaker  func(beep.Streamer)
	closeSpeaker func()
}

var _ Context = (*SpeakerContext)(nil)

// NewSpeakerContext creates a new suspended SpeakerContext. The speaker is
// only opened by the first Resume.
func NewSpeakerContext(opts SpeakerOptions) *SpeakerContext {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100 * time.Millisecond
	}

	return &SpeakerContext{
		sampleRate:   opts.SampleRate,
		bufferSize:   opts.BufferSize,
		ffmpeg:       opts.FFmpeg,
		graph:        newGraph(),
		logger:       logger.WithComponent("speaker"),
		state:        StateSuspended,
		observers:    make(map[uint64]func(ContextState)),
		initSpeaker:  speaker.Init,
		playSpeaker:  func(s beep.Streamer) { speaker.Play(s) },
		closeSpeaker: speaker.Close,
	}
}

// SampleRate returns the output sample rate
func (c *SpeakerContext) SampleRate() beep.SampleRate {
	return c.sampleRate
}

// State returns the current activation state
func (c *SpeakerContext) State() ContextState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Resume opens the speaker on first use and un-pauses the graph
func (c *SpeakerContext) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateRunning:
		c.mu.Unlock()
		return nil
	}

	if !c.initialized {
		if err := c.initSpeaker(c.sampleRate, c.sampleRate.N(c.bufferSize)); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		c.initialized = true
		c.playSpeaker(c.graph)
	}

	c.graph.setPaused(false)
	observers := c.setStateLocked(StateRunning)
	c.mu.Unlock()

	c.logger.Debug("Audio context running", slog.Int("sample_rate", int(c.sampleRate)))
	notify(observers, StateRunning)
	return nil
}

// Suspend pauses the graph and freezes the device clock. Observers see the
// transition the same way they would see an external interruption.
func (c *SpeakerContext) Suspend() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		if c.state == StateClosed {
			return ErrClosed
		}
		return nil
	}

	c.graph.setPaused(true)
	observers := c.setStateLocked(StateSuspended)
	c.mu.Unlock()

	notify(observers, StateSuspended)
	return nil
}

// Close stops all output and releases the speaker
func (c *SpeakerContext) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}

	c.graph.setPaused(true)
	c.graph.clear()
	if c.initialized {
		c.closeSpeaker()
		c.initialized = false
	}
	observers := c.setStateLocked(StateClosed)
	c.mu.Unlock()

	c.logger.Debug("Audio context closed")
	notify(observers, StateClosed)
	return nil
}

// CurrentTime returns the number of seconds rendered while running
func (c *SpeakerContext) CurrentTime() time.Duration {
	return c.sampleRate.D(int(c.graph.frames.Load()))
}

// OnStateChange registers fn for state transitions
func (c *SpeakerContext) OnStateChange(fn func(ContextState)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.observers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// CreateBufferSource creates a one-shot playback node for buf
func (c *SpeakerContext) CreateBufferSource(buf Buffer) SourceNode {
	return &sourceNode{ctx: c, buffer: asPCM(buf)}
}

// CreateGain creates a unity gain node
func (c *SpeakerContext) CreateGain() GainNode {
	return &gainNode{ctx: c, value: 1}
}

func (c *SpeakerContext) setStateLocked(state ContextState) []func(ContextState) {
	c.state = state
	observers := make([]func(ContextState), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	return observers
}

func notify(observers []func(ContextState), state ContextState) {
	for _, fn := range observers {
		fn(state)
	}
}

// graph mixes every active node. Its frame counter only advances while
// unpaused and serves as the device clock.
type graph struct {
	mu     sync.Mutex
	mixer  *beep.Mixer
	ctrl   *beep.Ctrl
	frames atomic.Int64
}

func newGraph() *graph {
	mixer := &beep.Mixer{}
	return &graph{
		mixer: mixer,
		ctrl:  &beep.Ctrl{Streamer: mixer, Paused: true},
	}
}

// Stream implements beep.Streamer
func (g *graph) Stream(samples [][2]float64) (n int, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ctrl.Paused {
		clear(samples)
		return len(samples), true
	}

	n, _ = g.ctrl.Stream(samples)
	clear(samples[n:])
	g.frames.Add(int64(len(samples)))
	return len(samples), true
}

// Err implements beep.Streamer
func (g *graph) Err() error {
	return nil
}

func (g *graph) add(s *nodeStreamer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s.frame = g.frames.Load()
	g.mixer.Add(s)
}

func (g *graph) setPaused(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ctrl.Paused = paused
}

func (g *graph) clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mixer.Clear()
}
