package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a generic key/value cache with per-entry TTL support.
//
// Implementations must treat backend outages as their own error values;
// callers (the user directory in particular) downgrade any non-ErrMiss
// error to a miss so the backing store remains authoritative even when
// the cache is fully unavailable.
type Store interface {
	// Get retrieves the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for at most ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
