// Package clock provides the fixed-interval polling timer that drives
// periodic position reports.
package clock

import (
	"sync"
	"time"
)

// DefaultInterval is the tick interval used when none is configured
const DefaultInterval = 50 * time.Millisecond

// Clock invokes a tick callback at a fixed interval until stopped. Ticks never
// overlap: the next tick is only scheduled once the current one returned, and
// an immediate tick requested while another is running runs right after it on
// the same goroutine.
type Clock struct {
	interval time.Duration
	onTick   func()

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	ticking    bool
	rerun      bool
}

// New creates a new Clock. A non-positive interval selects DefaultInterval.
func New(interval time.Duration, onTick func()) *Clock {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if onTick == nil {
		onTick = func() {}
	}

	return &Clock{
		interval: interval,
		onTick:   onTick,
	}
}

// Interval returns the tick interval
func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Running reports whether recurring ticks are scheduled
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Start begins recurring ticks. When tickImmediately is set the callback runs
// once synchronously before the first interval elapses. Starting a running
// clock does nothing.
func (c *Clock) Start(tickImmediately bool) {
	if c.Running() {
		return
	}

	if tickImmediately {
		c.tick()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		return
	}

	c.generation++
	generation := c.generation
	c.timer = time.AfterFunc(c.interval, func() { c.handleTick(generation) })
}

// Stop cancels recurring ticks. When tickImmediately is set the callback runs
// once synchronously first.
func (c *Clock) Stop(tickImmediately bool) {
	if tickImmediately {
		c.tick()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.generation++
	}
}

// Dispose stops the clock
func (c *Clock) Dispose() {
	c.Stop(false)
}

func (c *Clock) handleTick(generation uint64) {
	if !c.current(generation) {
		return
	}

	c.tick()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil && c.generation == generation {
		c.timer.Reset(c.interval)
	}
}

// tick runs onTick unless a tick is in flight, in which case that tick runs
// it once more when it returns
func (c *Clock) tick() {
	c.mu.Lock()
	if c.ticking {
		c.rerun = true
		c.mu.Unlock()
		return
	}
	c.ticking = true
	c.mu.Unlock()

	for {
		c.onTick()

		c.mu.Lock()
		if !c.rerun {
			c.ticking = false
			c.mu.Unlock()
			return
		}
		c.rerun = false
		c.mu.Unlock()
	}
}

func (c *Clock) current(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil && c.generation == generation
}
