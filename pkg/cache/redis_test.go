package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		store, _ := newTestRedisStore(t)

		err := store.Set(ctx, "user:id:42", []byte(`{"id":42}`), time.Hour)
		require.NoError(t, err)

		data, err := store.Get(ctx, "user:id:42")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"id":42}`), data)
	})

	t.Run("miss returns ErrMiss", func(t *testing.T) {
		store, _ := newTestRedisStore(t)

		_, err := store.Get(ctx, "user:email:nobody@example.com")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("set applies ttl", func(t *testing.T) {
		store, mr := newTestRedisStore(t)

		require.NoError(t, store.Set(ctx, "user:google:sub-1", []byte("v"), time.Hour))

		ttl := mr.TTL("user:google:sub-1")
		assert.Equal(t, time.Hour, ttl)

		mr.FastForward(2 * time.Hour)

		_, err := store.Get(ctx, "user:google:sub-1")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("delete removes key", func(t *testing.T) {
		store, _ := newTestRedisStore(t)

		require.NoError(t, store.Set(ctx, "user:id:7", []byte("v"), time.Hour))
		require.NoError(t, store.Delete(ctx, "user:id:7"))

		_, err := store.Get(ctx, "user:id:7")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("ping", func(t *testing.T) {
		store, _ := newTestRedisStore(t)
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("server down surfaces error", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		mr.Close()

		_, err := store.Get(ctx, "user:id:1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMiss)
	})
}

func TestNewRedisStoreConnectionFailure(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}
