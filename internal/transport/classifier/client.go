package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rocketscienceinc/rps-online/internal/gesture"
)

var ErrUnexpectedStatus = errors.New("unexpected classifier status")

// Client talks to the gesture classifier that owns the camera.
//
//	GET <url>/health  -> 200 while a detector is attached and streaming
//	GET <url>/predict -> [{"className": "PIEDRA", "probability": 0.93}, ...]
type Client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
}

func New(logger *slog.Logger, baseURL string, timeout time.Duration) *Client {
	return &Client{
		logger:  logger.With("component", "classifier"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Ready - checks the detector is attached and streaming.
func (that *Client) Ready(ctx context.Context) bool {
	log := that.logger.With("method", "Ready")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, that.baseURL+"/health", nil)
	if err != nil {
		log.Error("failed to build request", "error", err)
		return false
	}

	resp, err := that.http.Do(req)
	if err != nil {
		log.Debug("classifier is not reachable", "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Classify - returns predictions for the current camera frame.
func (that *Client) Classify(ctx context.Context) ([]gesture.Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, that.baseURL+"/predict", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := that.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var predictions []gesture.Prediction
	if err = json.NewDecoder(resp.Body).Decode(&predictions); err != nil {
		return nil, fmt.Errorf("failed to decode predictions: %w", err)
	}

	return predictions, nil
}
