// Package cache provides a TTL read-through cache for idempotent capability
// results. Lookups happen before a wrapped call is attempted; store failures
// degrade to direct computation and never block the caller.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"conductor/pkg/logx"
)

// Entry is a single cached value. Entries are never mutated in place; a
// refresh replaces the entry wholesale.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the backing store for cache entries. Implementations must be safe
// for concurrent use. Errors from a Store are advisory: the read-through
// layer logs them and falls back to computing the value directly.
type Store interface {
	Get(key string) (Entry, bool, error)
	Set(entry Entry) error
	Delete(key string) error
}

// Stats counts cache outcomes since process start.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Degraded int64 `json:"degraded"`
}

// ComputeFunc produces the value for a key on a miss.
type ComputeFunc func(ctx context.Context) (json.RawMessage, error)

// Cache is the read-through layer over a Store.
type Cache struct {
	store  Store
	logger *logx.Logger

	mu       sync.Mutex
	hits     int64
	misses   int64
	degraded int64
}

// New creates a read-through cache over the given store.
func New(store Store) *Cache {
	return &Cache{
		store:  store,
		logger: logx.NewLogger("cache"),
	}
}

// GetOrCompute returns the cached value for key if present and unexpired,
// otherwise invokes compute, stores the result, and returns it. The boolean
// reports whether the value came from the cache. A store failure on either
// the read or the write path degrades to direct computation; compute errors
// are returned to the caller and nothing is stored.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (json.RawMessage, bool, error) {
	entry, found, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("cache read for %s failed, degrading to compute: %v", key, err)
		c.count(&c.degraded)
	} else if found && !entry.Expired(time.Now()) {
		c.count(&c.hits)
		return entry.Value, true, nil
	} else {
		c.count(&c.misses)
	}

	value, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}

	if ttl > 0 {
		setErr := c.store.Set(Entry{
			Key:       key,
			Value:     value,
			ExpiresAt: time.Now().Add(ttl),
		})
		if setErr != nil {
			// Population failure must not block the caller.
			c.logger.Warn("cache write for %s failed: %v", key, setErr)
			c.count(&c.degraded)
		}
	}

	return value, false, nil
}

// Invalidate removes the entry for key, if any.
func (c *Cache) Invalidate(key string) {
	if err := c.store.Delete(key); err != nil {
		c.logger.Warn("cache invalidate for %s failed: %v", key, err)
	}
}

// Stats returns a snapshot of hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{Hits: c.hits, Misses: c.misses, Degraded: c.degraded}
}

func (c *Cache) count(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}
