package metadata

import (
	"context"
	"sync"
	"time"
)

// Cache is an in-memory key/value cache with per-entry expiry.
// Callers choose the TTL on every Set and may invalidate entries explicitly.
type Cache[V any] struct {
	mu       sync.RWMutex
	items    map[string]cacheItem[V]
	maxItems int
	now      func() time.Time
}

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewCache creates a cache holding at most maxItems entries.
func NewCache[V any](maxItems int) *Cache[V] {
	if maxItems <= 0 {
		maxItems = 1000
	}
	return &Cache[V]{
		items:    make(map[string]cacheItem[V]),
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Get retrieves an unexpired item from the cache.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || !c.now().Before(item.expiresAt) {
		var zero V
		return zero, false
	}
	return item.value, true
}

// Set stores value under key until ttl elapses. A non-positive ttl removes the key.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.items, key)
		return
	}

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		c.evictLocked()
	}

	c.items[key] = cacheItem[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Invalidate removes a single key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all items from the cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheItem[V])
}

// Len returns the number of stored items, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Prune removes expired items and returns how many were dropped.
func (c *Cache[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked()
}

// RunJanitor prunes expired items every interval until ctx is done.
func (c *Cache[V]) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}

func (c *Cache[V]) pruneLocked() int {
	now := c.now()
	n := 0
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// evictLocked drops expired items, then the entries closest to expiry until
// a tenth of the capacity is free.
func (c *Cache[V]) evictLocked() {
	c.pruneLocked()
	if len(c.items) < c.maxItems {
		return
	}

	toRemove := c.maxItems / 10
	if toRemove < 1 {
		toRemove = 1
	}

	for ; toRemove > 0 && len(c.items) > 0; toRemove-- {
		var (
			oldestKey string
			oldestAt  time.Time
			first     = true
		)
		for key, item := range c.items {
			if first || item.expiresAt.Before(oldestAt) {
				oldestKey, oldestAt, first = key, item.expiresAt, false
			}
		}
		delete(c.items, oldestKey)
	}
}
