package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the lifetime of an entry when Config.TTL is not set.
const DefaultTTL = 5 * time.Minute

// Hooks observe cache activity. All fields are optional.
type Hooks struct {
	OnHit        func(key string)
	OnMiss       func(key string)
	OnInvalidate func(keys []string)
}

// Config configures a [Cache].
type Config struct {
	TTL time.Duration
	// Now is the clock used to stamp and age entries. Nil means time.Now.
	Now   func() time.Time
	Hooks Hooks
}

type entry struct {
	value    any
	storedAt time.Time
}

// Cache is a process-local keyed store with a fixed TTL. Safe for concurrent use.
type Cache struct {
	ttl   time.Duration
	now   func() time.Time
	hooks Hooks

	mu      sync.RWMutex
	entries map[string]entry
	// A fetch started before an invalidation of its key must not repopulate it.
	epoch map[string]uint64
	gen   uint64
	group singleflight.Group
}

func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		ttl:     cfg.TTL,
		now:     cfg.Now,
		hooks:   cfg.Hooks,
		entries: make(map[string]entry),
		epoch:   make(map[string]uint64),
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Read returns the entry for key when younger than the TTL. Otherwise it calls fetch,
// stores the result stamped with the current time and returns it. Errors are returned
// and never stored.
//
// Concurrent misses on one key share a single fetch. That fetch runs detached from
// every caller's cancellation and must bound itself; each caller stops waiting when
// its own ctx ends and gets ctx.Err().
func (c *Cache) Read(ctx context.Context, key string, fetch func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		if c.hooks.OnHit != nil {
			c.hooks.OnHit(key)
		}
		return v, nil
	}
	if c.hooks.OnMiss != nil {
		c.hooks.OnMiss(key)
	}

	startGen, startEpoch := c.epochOf(key)
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		v, err := fetch(detached)
		if err != nil {
			return nil, err
		}
		c.store(key, v, startGen, startEpoch)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns a fresh entry without fetching.
func (c *Cache) Peek(key string) (any, bool) {
	return c.lookup(key)
}

// Set stores value under key, stamped now.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: c.now()}
}

// Invalidate removes the named entries.
func (c *Cache) Invalidate(keys ...string) {
	if len(keys) == 0 {
		return
	}
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
		c.epoch[k]++
		c.group.Forget(k)
	}
	c.mu.Unlock()

	if c.hooks.OnInvalidate != nil {
		c.hooks.OnInvalidate(keys)
	}
}

// InvalidateAll removes every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.entries = make(map[string]entry)
	c.gen++
	for _, k := range keys {
		c.group.Forget(k)
	}
	c.mu.Unlock()

	if c.hooks.OnInvalidate != nil {
		c.hooks.OnInvalidate(keys)
	}
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) epochOf(key string) (uint64, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen, c.epoch[key]
}

func (c *Cache) store(key string, value any, startGen, startEpoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != startGen || c.epoch[key] != startEpoch {
		return
	}
	c.entries[key] = entry{value: value, storedAt: c.now()}
}

// Get is [Cache.Read] with a typed fetch. A stored value of another type is an error.
func Get[T any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Read(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: entry %q holds %T", key, v)
	}
	return typed, nil
}
