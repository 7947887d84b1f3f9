// Package cache stores serialized responses for a limited time.
// Entries are a derived view of the database and may vanish at any moment.
package cache

import (
	"context"
	"time"
)

// Store a key value store with per-entry expiry
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Key builds the cache key from a request path and an already canonical query
func Key(prefix, path, query string) string {
	return prefix + path + "?" + query
}

// New returns a redis store when url is set, the in-process store otherwise
func New(url string) (Store, error) {
	if url == "" {
		return NewMemoryStore(), nil
	}
	return NewRedisStore(url)
}
