package rest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

type stubStore struct {
	err error
}

func (that stubStore) Ping(context.Context) error {
	return that.err
}

func serve(store pinger, path string, origin string) *httptest.ResponseRecorder {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	handler := Handler(NewPingHandler(logger, store), []string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestPingHandler(t *testing.T) {
	rec := serve(stubStore{}, "/ping", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestHealthHandler(t *testing.T) {
	t.Run("Store reachable", func(t *testing.T) {
		// When: the store answers
		rec := serve(stubStore{}, "/healthz", "http://localhost:3000")

		// Then: healthy, CORS allowed for the configured origin
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","store":"ok"}`, rec.Body.String())
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Store down", func(t *testing.T) {
		// When: the store fails
		rec := serve(stubStore{err: errStoreDown}, "/healthz", "http://evil.example")

		// Then: degraded, foreign origins get no CORS header
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"degraded","store":"store down"}`, rec.Body.String())
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
