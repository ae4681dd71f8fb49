package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/rps-online/internal/usecase"
)

const actionNarration = "narration"

type NarrationPayload struct {
	Text  string `json:"text"`
	Audio []byte `json:"audio,omitempty"`
}

// Hub fans events out to every open presentation connection.
type Hub struct {
	logger *slog.Logger

	connectionsMutex sync.RWMutex
	connections      map[string]*connection
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger.With("component", "hub"),
		connections: make(map[string]*connection),
	}
}

// Present - sends a game event to all connections.
func (that *Hub) Present(event usecase.Event) {
	that.broadcast(event.Type, event.Payload)
}

// Play - forwards synthesized speech, the browser plays it.
func (that *Hub) Play(_ context.Context, text string, audio []byte) error {
	that.broadcast(actionNarration, NarrationPayload{Text: text, Audio: audio})
	return nil
}

func (that *Hub) Count() int {
	that.connectionsMutex.RLock()
	defer that.connectionsMutex.RUnlock()

	return len(that.connections)
}

func (that *Hub) add(conn *connection) {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	that.connections[conn.id] = conn
}

// remove - returns how many connections are left.
func (that *Hub) remove(conn *connection) int {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	delete(that.connections, conn.id)

	return len(that.connections)
}

func (that *Hub) broadcast(action string, payload any) {
	log := that.logger.With("method", "broadcast", "action", action)

	that.connectionsMutex.RLock()
	targets := make([]*connection, 0, len(that.connections))
	for _, conn := range that.connections {
		targets = append(targets, conn)
	}
	that.connectionsMutex.RUnlock()

	for _, conn := range targets {
		if err := conn.send(action, payload); err != nil {
			log.Warn("failed to deliver event", "connection", conn.id, "error", err)
		}
	}
}
