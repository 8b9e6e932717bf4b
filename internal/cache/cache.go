package cache

import (
	"context"
	"sync"
	"time"
)

// Observer is told about every lookup outcome
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Store is a TTL cache keyed by string
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, v T)
	Delete(ctx context.Context, key string)
}

type entry[T any] struct {
	val T
	exp time.Time
}

// Memory is a process-local TTL cache safe for concurrent readers and
// writers
type Memory[T any] struct {
	mu  sync.RWMutex
	m   map[string]entry[T]
	ttl time.Duration
	obs Observer
	now func() time.Time
}

// NewMemory creates a Memory cache. obs may be nil.
func NewMemory[T any](ttl time.Duration, obs Observer) *Memory[T] {
	return &Memory[T]{m: make(map[string]entry[T]), ttl: ttl, obs: obs, now: time.Now}
}

func (c *Memory[T]) Get(_ context.Context, key string) (T, bool) {
	var zero T
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.exp) {
		if c.obs != nil {
			c.obs.CacheMiss()
		}
		return zero, false
	}
	if c.obs != nil {
		c.obs.CacheHit()
	}
	return e.val, true
}

func (c *Memory[T]) Set(_ context.Context, key string, v T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.m[key] = entry[T]{val: v, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Memory[T]) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Purge drops expired entries and returns how many were removed
func (c *Memory[T]) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries, expired ones included
func (c *Memory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Tiered checks a local cache before a shared one and fills the local
// cache from shared hits
type Tiered[T any] struct {
	local  Store[T]
	shared Store[T]
}

// NewTiered layers local over shared. A nil shared store leaves only the
// local tier.
func NewTiered[T any](local, shared Store[T]) Store[T] {
	if shared == nil {
		return local
	}
	return &Tiered[T]{local: local, shared: shared}
}

func (t *Tiered[T]) Get(ctx context.Context, key string) (T, bool) {
	if v, ok := t.local.Get(ctx, key); ok {
		return v, true
	}
	v, ok := t.shared.Get(ctx, key)
	if ok {
		t.local.Set(ctx, key, v)
	}
	return v, ok
}

func (t *Tiered[T]) Set(ctx context.Context, key string, v T) {
	t.local.Set(ctx, key, v)
	t.shared.Set(ctx, key, v)
}

func (t *Tiered[T]) Delete(ctx context.Context, key string) {
	t.local.Delete(ctx, key)
	t.shared.Delete(ctx, key)
}
