package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore implements Store with an in-process expirable LRU cache.
// It is used when no Redis server is configured and in tests.
type MemoryStore struct {
	cache *lru.LRU[string, []byte]
}

// NewMemoryStore creates an in-memory cache holding at most maxEntries
// entries, each expiring after ttl. The expirable LRU applies a single
// TTL cache-wide, so per-call TTLs passed to Set are ignored; the
// directory uses one fixed TTL anyway.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries < 10 {
		maxEntries = 10
	}
	return &MemoryStore{
		cache: lru.NewLRU[string, []byte](maxEntries, nil, ttl),
	}
}

// Get retrieves a value or ErrMiss.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return value, nil
}

// Set stores a value. The cache-wide TTL applies; see NewMemoryStore.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.cache.Add(key, value)
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}
