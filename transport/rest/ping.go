package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

type PingHandler interface {
	PingHandler(w http.ResponseWriter, _ *http.Request)
	HealthHandler(w http.ResponseWriter, r *http.Request)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

type pingHandler struct {
	logger *slog.Logger
	store  pinger
}

func NewPingHandler(logger *slog.Logger, store pinger) PingHandler {
	return &pingHandler{
		logger: logger.With("component", "rest"),
		store:  store,
	}
}

func (that *pingHandler) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// HealthHandler - reports whether the shared store answers.
func (that *pingHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status, response := http.StatusOK, healthResponse{Status: "ok", Store: "ok"}
	if err := that.store.Ping(ctx); err != nil {
		that.logger.Warn("store is not reachable", "method", "HealthHandler", "error", err)
		status, response = http.StatusServiceUnavailable, healthResponse{Status: "degraded", Store: err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		that.logger.Error("failed to write health response", "error", err)
	}
}
