package classifier

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/rps-online/internal/gesture"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(slog.New(slog.NewJSONHandler(io.Discard, nil)), server.URL+"/", time.Second)
}

func TestClient_Classify(t *testing.T) {
	t.Run("Decodes predictions", func(t *testing.T) {
		// Given: a classifier that sees a rock
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/predict", r.URL.Path)
			_, _ = w.Write([]byte(`[{"className":"PIEDRA","probability":0.91},{"className":"Indeterminado","probability":0.09}]`))
		})

		// When: classifying
		predictions, err := client.Classify(context.Background())

		// Then: both predictions are returned
		require.NoError(t, err)
		assert.Equal(t, []gesture.Prediction{
			{Label: "PIEDRA", Confidence: 0.91},
			{Label: "Indeterminado", Confidence: 0.09},
		}, predictions)
	})

	t.Run("Non 200 is an error", func(t *testing.T) {
		// Given: a classifier without a camera
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		// When: classifying
		_, err := client.Classify(context.Background())

		// Then: the status is reported
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})
}

func TestClient_Ready(t *testing.T) {
	// Given: a healthy classifier
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	// Then: the detector is ready
	assert.True(t, client.Ready(context.Background()))

	// And: an unreachable classifier is not
	unreachable := New(slog.New(slog.NewJSONHandler(io.Discard, nil)), "http://127.0.0.1:1", 100*time.Millisecond)
	assert.False(t, unreachable.Ready(context.Background()))
}
