package identity

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestResolve(t *testing.T) {
	resolver := NewResolver(testLogger())

	t.Run("full claim set", func(t *testing.T) {
		claims, err := resolver.Resolve(map[string]interface{}{
			"sub":     "108256341",
			"email":   "alice@example.com",
			"name":    "Alice Example",
			"picture": "https://lh3.example.com/alice.jpg",
			"locale":  "en-US",
		})
		require.NoError(t, err)

		assert.Equal(t, "108256341", claims.Subject)
		assert.Equal(t, "alice@example.com", claims.Email)
		assert.Equal(t, "Alice Example", claims.DisplayName)
		assert.Equal(t, "https://lh3.example.com/alice.jpg", claims.PictureURL)
		assert.Equal(t, "en-US", claims.Locale)
	})

	t.Run("subject only", func(t *testing.T) {
		claims, err := resolver.Resolve(map[string]interface{}{"sub": "108256341"})
		require.NoError(t, err)

		assert.Equal(t, "108256341", claims.Subject)
		assert.Empty(t, claims.Email)
		assert.Empty(t, claims.DisplayName)
	})

	t.Run("non-string optional claims are ignored", func(t *testing.T) {
		claims, err := resolver.Resolve(map[string]interface{}{
			"sub":   "108256341",
			"email": 42,
			"name":  true,
		})
		require.NoError(t, err)

		assert.Equal(t, "108256341", claims.Subject)
		assert.Empty(t, claims.Email)
		assert.Empty(t, claims.DisplayName)
	})

	t.Run("missing subject fails after retries", func(t *testing.T) {
		_, err := resolver.Resolve(map[string]interface{}{"email": "alice@example.com"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrResolutionFailed)
	})

	t.Run("whitespace subject fails", func(t *testing.T) {
		_, err := resolver.Resolve(map[string]interface{}{"sub": "   "})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrResolutionFailed)
	})

	t.Run("non-string subject fails", func(t *testing.T) {
		_, err := resolver.Resolve(map[string]interface{}{"sub": 12345})
		assert.ErrorIs(t, err, ErrResolutionFailed)
	})

	t.Run("nil claim map fails", func(t *testing.T) {
		_, err := resolver.Resolve(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrResolutionFailed)
	})
}

func TestResolveNilLogger(t *testing.T) {
	resolver := NewResolver(nil)
	claims, err := resolver.Resolve(map[string]interface{}{"sub": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", claims.Subject)
}
