package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		store := NewMemoryStore(100, time.Minute)

		err := store.Set(ctx, "user:id:1", []byte(`{"id":1}`), time.Minute)
		require.NoError(t, err)

		data, err := store.Get(ctx, "user:id:1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"id":1}`), data)
	})

	t.Run("miss returns ErrMiss", func(t *testing.T) {
		store := NewMemoryStore(100, time.Minute)

		_, err := store.Get(ctx, "user:id:404")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("delete removes entry", func(t *testing.T) {
		store := NewMemoryStore(100, time.Minute)

		require.NoError(t, store.Set(ctx, "user:google:abc", []byte("x"), time.Minute))
		require.NoError(t, store.Delete(ctx, "user:google:abc"))

		_, err := store.Get(ctx, "user:google:abc")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("delete missing key is not an error", func(t *testing.T) {
		store := NewMemoryStore(100, time.Minute)
		assert.NoError(t, store.Delete(ctx, "never-set"))
	})

	t.Run("entries expire", func(t *testing.T) {
		store := NewMemoryStore(100, 20*time.Millisecond)

		require.NoError(t, store.Set(ctx, "user:id:2", []byte("v"), time.Minute))
		time.Sleep(60 * time.Millisecond)

		_, err := store.Get(ctx, "user:id:2")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("tiny maxEntries is clamped", func(t *testing.T) {
		store := NewMemoryStore(1, time.Minute)

		for _, key := range []string{"a", "b", "c", "d", "e"} {
			require.NoError(t, store.Set(ctx, key, []byte(key), time.Minute))
		}
		// With the minimum capacity of 10 nothing should have been evicted.
		for _, key := range []string{"a", "b", "c", "d", "e"} {
			_, err := store.Get(ctx, key)
			assert.NoError(t, err)
		}
	})
}
