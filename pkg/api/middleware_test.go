package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(requestIDHeader)
	}))

	t.Run("generates id when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/auth/status", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(requestIDHeader))
	})

	t.Run("keeps caller-supplied id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/auth/status", nil)
		req.Header.Set(requestIDHeader, "req-from-gateway")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-from-gateway", seen)
		assert.Equal(t, "req-from-gateway", rec.Header().Get(requestIDHeader))
	})
}

func TestLoggingMiddleware(t *testing.T) {
	handler := LoggingMiddleware(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/auth/status", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
