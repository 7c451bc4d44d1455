// Package memory provides the in-process leaderboard cache.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
)

// Observer receives cache hit and miss notifications.
type Observer interface {
	CacheHit(boardKey string)
	CacheMiss(boardKey string)
}

type item struct {
	value   *leaderboard.Standings
	expires time.Time
}

// BoardCache is a TTL map safe for concurrent use. Expired items are dropped
// lazily on Get; StartJanitor adds an optional background sweep.
type BoardCache struct {
	mu    sync.RWMutex
	items map[string]item

	// gens counts invalidations per scope. A key's generation is the sum
	// over leaderboard.KeyScopes, so it moves whenever a covering scope does.
	gens map[string]uint64

	now      func() time.Time
	observer Observer
}

// Option configures a BoardCache.
type Option func(*BoardCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *BoardCache) { c.now = now }
}

// WithObserver reports hits and misses.
func WithObserver(o Observer) Option {
	return func(c *BoardCache) { c.observer = o }
}

// NewBoardCache creates an empty cache.
func NewBoardCache(opts ...Option) *BoardCache {
	c := &BoardCache{
		items: make(map[string]item),
		gens:  make(map[string]uint64),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ leaderboard.Cache = (*BoardCache)(nil)

// Get returns the cached standings unless they expired.
func (c *BoardCache) Get(_ context.Context, key string) (*leaderboard.Standings, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if ok && !c.now().Before(it.expires) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the item.
		if cur, still := c.items[key]; still && !c.now().Before(cur.expires) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		ok = false
	}

	if c.observer != nil {
		if ok {
			c.observer.CacheHit(key)
		} else {
			c.observer.CacheMiss(key)
		}
	}
	if !ok {
		return nil, false
	}
	return it.value, true
}

// Generation returns the key's invalidation generation.
func (c *BoardCache) Generation(_ context.Context, key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation(key)
}

// generation must be called with mu held.
func (c *BoardCache) generation(key string) uint64 {
	var g uint64
	for _, scope := range leaderboard.KeyScopes(key) {
		g += c.gens[scope]
	}
	return g
}

// Set stores standings for ttl. The value is dropped when the key was
// invalidated after gen was taken. A non-positive ttl removes the key instead.
func (c *BoardCache) Set(_ context.Context, key string, value *leaderboard.Standings, ttl time.Duration, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.items, key)
		return
	}
	if c.generation(key) != gen {
		return
	}
	c.items[key] = item{value: value, expires: c.now().Add(ttl)}
}

// Invalidate removes key and every key nested under it, and moves their
// generation so fills started before the call are discarded.
func (c *BoardCache) Invalidate(_ context.Context, keyOrPrefix string) {
	nested := keyOrPrefix + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[keyOrPrefix]++
	for k := range c.items {
		if k == keyOrPrefix || strings.HasPrefix(k, nested) {
			delete(c.items, k)
		}
	}
}

// Len returns the number of stored items, expired ones included.
func (c *BoardCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Sweep drops expired items and returns how many were removed.
func (c *BoardCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, it := range c.items {
		if !now.Before(it.expires) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is done.
func (c *BoardCache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// NoopCache never stores anything.
type NoopCache struct{}

var _ leaderboard.Cache = NoopCache{}

// Get always misses.
func (NoopCache) Get(context.Context, string) (*leaderboard.Standings, bool) { return nil, false }

// Generation is always zero.
func (NoopCache) Generation(context.Context, string) uint64 { return 0 }

// Set discards the value.
func (NoopCache) Set(context.Context, string, *leaderboard.Standings, time.Duration, uint64) {}

// Invalidate does nothing.
func (NoopCache) Invalidate(context.Context, string) {}
