package audioctx

import (
	"context"
	"sync"

	"tutti/playback"
)

// Provider hands out the cached context, waiting for it if necessary
type Provider struct {
	cache *Cache
}

// NewProvider creates a new Provider backed by cache
func NewProvider(cache *Cache) *Provider {
	return &Provider{cache: cache}
}

// WaitForContext returns the active context, blocking until one becomes
// available or ctx is done. Each call resolves at most once.
func (p *Provider) WaitForContext(ctx context.Context) (playback.Context, error) {
	if pc := p.cache.Context(); pc != nil {
		return pc, nil
	}

	ready := make(chan playback.Context, 1)
	var once sync.Once
	sub, err := p.cache.Subscribe(func() {
		pc := p.cache.Context()
		if pc == nil {
			return
		}
		once.Do(func() { ready <- pc })
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.cache.Unsubscribe(sub) }()

	// the context may have arrived before the subscription was in place
	if pc := p.cache.Context(); pc != nil {
		return pc, nil
	}

	select {
	case pc := <-ready:
		return pc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
