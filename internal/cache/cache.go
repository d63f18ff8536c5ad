// Package cache provides a read-through LRU cache fronting storage.Backend
// lookups by ID, the way internal/core/ledger/manager's LedgerCache fronts
// ledger reads: an hashicorp/golang-lru generic cache keyed by ID, with
// hit/miss counters. singleflight collapses concurrent misses for the same
// ID into one loader call, so a burst of requests for a not-yet-cached
// account only hits storage once.
package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Loader fetches the value for id on a cache miss.
type Loader[V any] func(ctx context.Context, id string) (V, bool, error)

// Cache is a read-through LRU cache keyed by record ID.
type Cache[V any] struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, V]
	group  singleflight.Group
	load   Loader[V]
	hits   uint64
	misses uint64
}

// New builds a Cache of the given size backed by load. size must be
// positive.
func New[V any](size int, load Loader[V]) (*Cache[V], error) {
	c, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{lru: c, load: load}, nil
}

// Get returns the cached value for id, loading it through Loader on a
// miss. Concurrent Get calls for the same id share one Loader invocation.
func (c *Cache[V]) Get(ctx context.Context, id string) (V, bool, error) {
	c.mu.Lock()
	if v, ok := c.lru.Get(id); ok {
		c.hits++
		c.mu.Unlock()
		return v, true, nil
	}
	c.misses++
	c.mu.Unlock()

	type result struct {
		v  V
		ok bool
	}
	r, err, _ := c.group.Do(id, func() (any, error) {
		v, ok, err := c.load(ctx, id)
		if err != nil {
			return result{}, err
		}
		if ok {
			c.mu.Lock()
			c.lru.Add(id, v)
			c.mu.Unlock()
		}
		return result{v, ok}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	res := r.(result)
	return res.v, res.ok, nil
}

// Invalidate drops id from the cache, e.g. after an update that changes
// its stored fields.
func (c *Cache[V]) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}

// Stats reports cumulative hit/miss counts.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Stats returns the cache's current hit/miss counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}
