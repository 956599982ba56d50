// Package audioctx shares one audio output context per process. Activation is
// gated on user engagement: a context that cannot reach the running state is
// discarded and the cache waits for the next interaction to retry.
package audioctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tutti/logger"
	"tutti/playback"
)

var (
	// ErrEngagementRequired is returned when the context could not be
	// activated outside a user interaction
	ErrEngagementRequired = errors.New("audio context has to be resumed during a user interaction")

	// ErrDisposed is returned by operations on a disposed cache
	ErrDisposed = errors.New("cannot use a disposed instance")
)

// Factory creates a new, not yet activated, output context
type Factory func() (playback.Context, error)

// Engagement reports direct user interactions such as key presses
type Engagement interface {
	// Arm registers fn to run on the next interactions until disarm is called
	Arm(fn func()) (disarm func())
}

// Subscription identifies a registered subscriber
type Subscription uint64

// Options configures a Cache
type Options struct {
	// Interactive selects the real cache. Without a user-facing surface the
	// cache never produces a context.
	Interactive bool
	Factory     Factory
	Engagement  Engagement
	Logger      *slog.Logger
}

type cache interface {
	Context() playback.Context
	Subscribe(fn func()) (Subscription, error)
	Unsubscribe(s Subscription) error
	Resume(ctx context.Context) error
	Dispose()
}

// Cache owns the process-wide output context
type Cache struct {
	inner cache
}

// New creates a new Cache
func New(opts Options) *Cache {
	if !opts.Interactive || opts.Factory == nil {
		return &Cache{inner: headlessCache{}}
	}
	return &Cache{inner: newInteractiveCache(opts)}
}

// Context returns the active context or nil
func (c *Cache) Context() playback.Context {
	return c.inner.Context()
}

// Subscribe registers fn to be called whenever context availability changes
func (c *Cache) Subscribe(fn func()) (Subscription, error) {
	return c.inner.Subscribe(fn)
}

// Unsubscribe removes a subscriber
func (c *Cache) Unsubscribe(s Subscription) error {
	return c.inner.Unsubscribe(s)
}

// Resume creates and activates the context if none exists
func (c *Cache) Resume(ctx context.Context) error {
	return c.inner.Resume(ctx)
}

// Dispose releases the context and all subscribers
func (c *Cache) Dispose() {
	c.inner.Dispose()
}

// headlessCache stands in when nothing can ever engage the user
type headlessCache struct{}

func (headlessCache) Context() playback.Context { return nil }

func (headlessCache) Subscribe(func()) (Subscription, error) { return 0, nil }

func (headlessCache) Unsubscribe(Subscription) error { return nil }

func (headlessCache) Resume(context.Context) error { return nil }

func (headlessCache) Dispose() {}

type interactiveCache struct {
	factory    Factory
	engagement Engagement
	logger     *slog.Logger

	mu          sync.Mutex
	disposed    bool
	current     playback.Context
	cancelWatch func()
	subscribers map[Subscription]func()
	nextID      Subscription
	disarm      func()
}

func newInteractiveCache(opts Options) *interactiveCache {
	log := opts.Logger
	if log == nil {
		log = logger.WithComponent("audio-context")
	}

	c := &interactiveCache{
		factory:     opts.Factory,
		engagement:  opts.Engagement,
		logger:      log,
		subscribers: make(map[Subscription]func()),
	}

	c.mu.Lock()
	c.armLocked()
	c.mu.Unlock()

	return c
}

func (c *interactiveCache) Context() playback.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *interactiveCache) Subscribe(fn func()) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return 0, ErrDisposed
	}

	c.nextID++
	c.subscribers[c.nextID] = fn
	return c.nextID, nil
}

func (c *interactiveCache) Unsubscribe(s Subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}

	delete(c.subscribers, s)
	return nil
}

func (c *interactiveCache) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.current != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	candidate, err := c.factory()
	if err != nil {
		c.mu.Lock()
		if c.current == nil {
			c.tearDownLocked()
			c.armLocked()
		}
		c.mu.Unlock()
		return fmt.Errorf("failed to create audio context: %w", err)
	}
	resumeErr := candidate.Resume(ctx)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		_ = candidate.Close()
		return ErrDisposed
	}
	if c.current != nil {
		c.mu.Unlock()
		_ = candidate.Close()
		return nil
	}

	c.tearDownLocked()

	if resumeErr != nil || candidate.State() != playback.StateRunning {
		c.armLocked()
		c.mu.Unlock()
		_ = candidate.Close()

		if resumeErr != nil {
			return fmt.Errorf("%w: %w", ErrEngagementRequired, resumeErr)
		}
		return ErrEngagementRequired
	}

	c.current = candidate
	c.cancelWatch = candidate.OnStateChange(func(state playback.ContextState) {
		c.handleStateChange(candidate, state)
	})
	subscribers := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("Audio context is running")
	notifyAll(subscribers)
	return nil
}

func (c *interactiveCache) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}

	c.disposed = true
	c.tearDownLocked()
	clear(c.subscribers)
	current := c.current
	cancel := c.cancelWatch
	c.current = nil
	c.cancelWatch = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if current != nil {
		_ = current.Close()
	}
}

// handleStateChange releases a context that stopped running on its own
func (c *interactiveCache) handleStateChange(pc playback.Context, state playback.ContextState) {
	if state == playback.StateRunning {
		return
	}

	c.mu.Lock()
	if c.current != pc {
		c.mu.Unlock()
		return
	}

	c.current = nil
	cancel := c.cancelWatch
	c.cancelWatch = nil
	c.armLocked()
	subscribers := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Warn("Audio context was interrupted", slog.String("state", state.String()))

	if cancel != nil {
		cancel()
	}
	_ = pc.Close()
	notifyAll(subscribers)
}

// handleEngagement retries activation from inside a user interaction
func (c *interactiveCache) handleEngagement() {
	if err := c.Resume(context.Background()); err != nil {
		c.logger.Info("Audio context could not be resumed", slog.Any("error", err))
	}
}

func (c *interactiveCache) armLocked() {
	if c.engagement == nil || c.disarm != nil || c.disposed {
		return
	}
	c.disarm = c.engagement.Arm(c.handleEngagement)
}

func (c *interactiveCache) tearDownLocked() {
	if c.disarm != nil {
		c.disarm()
		c.disarm = nil
	}
}

func (c *interactiveCache) snapshotLocked() []func() {
	subscribers := make([]func(), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}
	return subscribers
}

func notifyAll(subscribers []func()) {
	for _, fn := range subscribers {
		fn()
	}
}
