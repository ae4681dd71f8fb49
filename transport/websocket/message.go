package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rocketscienceinc/rps-online/internal/entity"
	"github.com/rocketscienceinc/rps-online/internal/usecase"
)

const writeWait = 10 * time.Second

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outgoing struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

type ModePayload struct {
	Mode string `json:"mode"`
}

type RoomPayload struct {
	Code        string `json:"code,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type ResponsePayload struct {
	Mode  string             `json:"mode,omitempty"`
	Room  *usecase.RoomInfo  `json:"room,omitempty"`
	Score *entity.MatchScore `json:"score,omitempty"`
	Error string             `json:"error,omitempty"`
}

// connection is one browser tab. Writes are serialized, reads happen in the server loop.
type connection struct {
	id      string
	conn    *websocket.Conn
	limiter *rate.Limiter

	writeMutex sync.Mutex
}

func (that *connection) send(action string, payload any) error {
	that.writeMutex.Lock()
	defer that.writeMutex.Unlock()

	if err := that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := that.conn.WriteJSON(outgoing{Action: action, Payload: payload}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *connection) sendError(action string, err error) error {
	return that.send(action, ResponsePayload{Error: err.Error()})
}
