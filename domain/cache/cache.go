// Package cache provides the domain interface for the observation cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores successful observations of cacheable specs.
// Implementations may be in-memory, Badger, Redis, or any other backend.
type Cache interface {
	// Get retrieves a cached value by key.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given key and options.
	Set(ctx context.Context, key string, value []byte, opts SetOptions) error

	// Delete removes a cached entry by key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error
}

// SetOptions configures how a value is stored in the cache.
type SetOptions struct {
	// TTL is the time-to-live for the cached entry.
	// Zero means no expiration.
	TTL time.Duration
}

// Stats provides cache statistics.
type Stats struct {
	Hits    int64
	Misses  int64
	Size    int64
	MaxSize int64 // 0 = unlimited
}

// StatsProvider is an optional interface for caches that support statistics.
type StatsProvider interface {
	Stats() Stats
}

// Key derives the cache key of an observation. args must be canonical
// (keys sorted, defaults applied). revision identifies the repository
// snapshot the observation was computed from.
func Key(action string, args []byte, revision string) string {
	h := sha256.New()
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write(args)
	h.Write([]byte{0})
	h.Write([]byte(revision))
	return action + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}
