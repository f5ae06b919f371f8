// Package sessions implements the per-thread back-end session cache
//: a small table, keyed by framing format (plus a gzip-extra
// variant flag where relevant), of lazily-created accelerator session
// handles.
//
// The original design ties the cache's lifetime to the owning OS thread,
// torn down when that thread exits. Go exposes no goroutine-exit hook, so
// this is adapted to an explicit, caller-owned Cache: one per logical
// worker goroutine, created once and threaded through that goroutine's
// calls (typically via context.Context, see WithCache/FromContext), with
// Close releasing every session it holds in last-acquired-first-released
// order. A runtime.AddCleanup hook backstops callers that forget to Close
// explicitly, approximating "destroyed when the thread exits" — see
// DESIGN.md.
package sessions

import (
	"context"
	"runtime"
	"sync"
)

// Handle is anything a back-end session cache can own and must tear down.
type Handle interface {
	Close() error
}

// Cache is a lazily-populated, ordered table of accelerator session
// handles, indexed by K (typically a (format.Framing, gzipExtra) pair).
// Sessions are never shared between Caches — callers must not hand the
// same Cache to two concurrently-running goroutines.
type Cache[K comparable, H Handle] struct {
	mu      sync.Mutex
	order   []K
	handles map[K]H
	closed  bool
}

// New returns an empty Cache and arms a best-effort finalizer that closes
// any still-open sessions if the Cache is garbage collected without an
// explicit Close.
func New[K comparable, H Handle]() *Cache[K, H] {
	c := &Cache[K, H]{handles: make(map[K]H)}
	runtime.AddCleanup(c, func(h map[K]H) {
		for _, handle := range h {
			handle.Close()
		}
	}, c.handles)
	return c
}

// GetOrCreate returns the cached handle for key, lazily invoking create
// if no session exists yet. A creation failure is not cached — the next
// call retries — and is reported to the caller, who must route the
// request to software for this call.
func (c *Cache[K, H]) GetOrCreate(key K, create func() (H, error)) (H, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles[key]; ok {
		return h, nil
	}
	h, err := create()
	if err != nil {
		var zero H
		return zero, err
	}
	c.handles[key] = h
	c.order = append(c.order, key)
	return h, nil
}

// Evict tears down and removes the session for key, if present. Used for
// the zlib-on-ACCEL-A special rule: a non-end-of-stream
// decompression leaves the session in a state the accelerator cannot
// partially reset, so the session must be recreated on next use.
func (c *Cache[K, H]) Evict(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[key]
	if !ok {
		return
	}
	h.Close()
	delete(c.handles, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Close tears down every held session in strict last-acquired,
// first-released order and marks the Cache unusable.
func (c *Cache[K, H]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for i := len(c.order) - 1; i >= 0; i-- {
		if h, ok := c.handles[c.order[i]]; ok {
			h.Close()
		}
	}
	clear(c.handles) // the GC cleanup holds this map; leave it nothing to close again
	c.handles = nil
	c.order = nil
}

// ctxKey is an unexported context key type so this package's context
// value never collides with another package's.
type ctxKey[K comparable, H Handle] struct{}

// WithCache attaches cache to ctx for later retrieval by FromContext.
func WithCache[K comparable, H Handle](ctx context.Context, cache *Cache[K, H]) context.Context {
	return context.WithValue(ctx, ctxKey[K, H]{}, cache)
}

// FromContext retrieves a Cache attached by WithCache. If none is present
// it returns a fresh Cache without attaching it to ctx, so every such call
// yields a different Cache; only a Cache attached with WithCache is shared
// across calls on the same context.
func FromContext[K comparable, H Handle](ctx context.Context) *Cache[K, H] {
	if c, ok := ctx.Value(ctxKey[K, H]{}).(*Cache[K, H]); ok {
		return c
	}
	return New[K, H]()
}
