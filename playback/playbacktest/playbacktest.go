// Package playbacktest provides a deterministic playback.Context for tests.
// Its clock only moves when Advance is called and nodes never produce sound.
package playbacktest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tutti/playback"
)

// Buffer is a decoded buffer of fixed length
type Buffer struct {
	Length time.Duration
}

// Duration implements playback.Buffer
func (b *Buffer) Duration() time.Duration {
	return b.Length
}

// Context is a manual playback.Context. The default decoder parses the raw
// bytes as a Go duration string, so "10s" decodes into a ten second buffer.
type Context struct {
	mu        sync.Mutex
	now       time.Duration
	state     playback.ContextState
	observers map[uint64]func(playback.ContextState)
	nextID    uint64
	sources   []*SourceNode
	gains     []*GainNode

	// ResumeState is the state entered by Resume, running unless changed
	ResumeState playback.ContextState
	// ResumeErr is returned by Resume when set
	ResumeErr error
	// Decode replaces the default duration-string decoder
	Decode func(data []byte) (playback.Buffer, error)
}

var _ playback.Context = (*Context)(nil)

// New creates a suspended manual context
func New() *Context {
	return &Context{
		state:       playback.StateSuspended,
		observers:   make(map[uint64]func(playback.ContextState)),
		ResumeState: playback.StateRunning,
	}
}

// NewRunning creates a manual context that is already running
func NewRunning() *Context {
	c := New()
	c.state = playback.StateRunning
	return c
}

// Advance moves the device clock forward
func (c *Context) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Interrupt suspends the context as if the device was taken away
func (c *Context) Interrupt() {
	c.setState(playback.StateSuspended)
}

// Sources returns every node created so far, oldest first
func (c *Context) Sources() []*SourceNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*SourceNode(nil), c.sources...)
}

// LastSource returns the most recently created node
func (c *Context) LastSource() *SourceNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sources) == 0 {
		return nil
	}
	return c.sources[len(c.sources)-1]
}

// Gains returns every gain node created so far, oldest first
func (c *Context) Gains() []*GainNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*GainNode(nil), c.gains...)
}

// State implements playback.Context
func (c *Context) State() playback.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume implements playback.Context
func (c *Context) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.ResumeErr != nil {
		return c.ResumeErr
	}
	if c.State() == playback.StateClosed {
		return playback.ErrClosed
	}
	c.setState(c.ResumeState)
	return nil
}

// Close implements playback.Context
func (c *Context) Close() error {
	c.setState(playback.StateClosed)
	return nil
}

// CurrentTime implements playback.Context
func (c *Context) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// OnStateChange implements playback.Context
func (c *Context) OnStateChange(fn func(playback.ContextState)) (cancel func()) {
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

// Observers returns the number of registered state observers
func (c *Context) Observers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

// DecodeAudioData implements playback.Context
func (c *Context) DecodeAudioData(ctx context.Context, data []byte) (playback.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Decode != nil {
		return c.Decode(data)
	}

	d, err := time.ParseDuration(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", playback.ErrUnsupportedFormat, err)
	}
	return &Buffer{Length: d}, nil
}

// CreateBufferSource implements playback.Context
func (c *Context) CreateBufferSource(buf playback.Buffer) playback.SourceNode {
	c.mu.Lock()
	defer c.mu.Unlock()

	node := &SourceNode{Buffer: buf}
	c.sources = append(c.sources, node)
	return node
}

// CreateGain implements playback.Context
func (c *Context) CreateGain() playback.GainNode {
	c.mu.Lock()
	defer c.mu.Unlock()

	node := &GainNode{value: 1}
	c.gains = append(c.gains, node)
	return node
}

func (c *Context) setState(state playback.ContextState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	observers := make([]func(playback.ContextState), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

// SourceNode records how it was driven
type SourceNode struct {
	Buffer playback.Buffer

	mu       sync.Mutex
	onEnded  func()
	gain     *GainNode
	started  bool
	stopped  bool
	when     time.Duration
	offset   time.Duration
	duration time.Duration
}

// SetOnEnded implements playback.SourceNode
func (n *SourceNode) SetOnEnded(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onEnded = fn
}

// Connect implements playback.SourceNode
func (n *SourceNode) Connect(gain playback.GainNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gain, _ = gain.(*GainNode)
}

// Start implements playback.SourceNode
func (n *SourceNode) Start(when, offset, duration time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.started = true
	n.when = when
	n.offset = offset
	n.duration = duration
}

// Stop implements playback.SourceNode
func (n *SourceNode) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
}

// End simulates the node reaching its natural end. The callback fires
// synchronously unless the node was stopped or never started.
func (n *SourceNode) End() {
	n.mu.Lock()
	fn := n.onEnded
	fire := n.started && !n.stopped
	n.stopped = true
	n.mu.Unlock()

	if fire && fn != nil {
		fn()
	}
}

// Started reports whether Start was called
func (n *SourceNode) Started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}

// Stopped reports whether Stop was called or the node ended
func (n *SourceNode) Stopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}

// Schedule returns the arguments passed to Start
func (n *SourceNode) Schedule() (when, offset, duration time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.when, n.offset, n.duration
}

// Gain returns the gain node the source was connected to
func (n *SourceNode) Gain() *GainNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gain
}

// Ramp is one recorded SetTargetAtTime call
type Ramp struct {
	Target       float64
	StartTime    time.Duration
	TimeConstant time.Duration
}

// GainNode applies ramps instantly: Value reports the ramp target
type GainNode struct {
	mu    sync.Mutex
	value float64
	ramps []Ramp
	sets  int
}

// Value implements playback.GainNode
func (g *GainNode) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// SetValue implements playback.GainNode
func (g *GainNode) SetValue(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
	g.sets++
}

// SetTargetAtTime implements playback.GainNode
func (g *GainNode) SetTargetAtTime(target float64, startTime, timeConstant time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = target
	g.ramps = append(g.ramps, Ramp{Target: target, StartTime: startTime, TimeConstant: timeConstant})
}

// Ramps returns the recorded ramps
func (g *GainNode) Ramps() []Ramp {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Ramp(nil), g.ramps...)
}

// Sets returns how many times SetValue was called
func (g *GainNode) Sets() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sets
}
