// Package memory provides in-process implementations of the storage ports.
package memory

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/felixgeelhaar/repoagent/domain/cache"
)

// DefaultMaxSize is the entry limit when none is configured.
const DefaultMaxSize = 1024

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e cacheEntry) isExpired() bool {
	if e.expiresAt.IsZero() {
		return false
	}
	return time.Now().After(e.expiresAt)
}

// Cache is an in-memory implementation of cache.Cache with LRU eviction
// and per-entry TTL.
type Cache struct {
	entries *lru.Cache[string, cacheEntry]
	maxSize int
	hits    atomic.Int64
	misses  atomic.Int64
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithMaxSize sets the maximum number of entries.
func WithMaxSize(size int) CacheOption {
	return func(c *Cache) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// NewCache creates a new in-memory cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(c)
	}
	// lru.New only fails for a non-positive size.
	c.entries, _ = lru.New[string, cacheEntry](c.maxSize)
	return c
}

// Get retrieves a value from the cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	if entry.isExpired() {
		c.entries.Remove(key)
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

// Set stores a value in the cache, evicting the least recently used entry
// when full.
func (c *Cache) Set(ctx context.Context, key string, value []byte, opts cache.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return cache.ErrInvalidKey
	}

	entry := cacheEntry{value: append([]byte(nil), value...)}
	if opts.TTL > 0 {
		entry.expiresAt = time.Now().Add(opts.TTL)
	}
	c.entries.Add(key, entry)
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.entries.Remove(key)
	return nil
}

// Exists checks if a key exists in the cache without touching its recency.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	entry, ok := c.entries.Peek(key)
	return ok && !entry.isExpired(), nil
}

// Clear removes all entries from the cache.
func (c *Cache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.entries.Purge()
	return nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	return cache.Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Size:    int64(c.entries.Len()),
		MaxSize: int64(c.maxSize),
	}
}

// Size returns the current number of entries.
func (c *Cache) Size() int {
	return c.entries.Len()
}

var (
	_ cache.Cache         = (*Cache)(nil)
	_ cache.StatsProvider = (*Cache)(nil)
)
