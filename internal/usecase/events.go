package usecase

import (
	"github.com/rocketscienceinc/rps-online/internal/entity"
)

// Event types sent to the presentation layer.
const (
	EventCountdown       = "countdown"
	EventGesture         = "gesture"
	EventOpponentGesture = "opponent-gesture"
	EventPlayers         = "players"
	EventCanStart        = "can-start"
	EventResult          = "result"
	EventError           = "error"
	EventRoomCreated     = "room-created"
	EventRoomJoined      = "room-joined"
	EventRoomClosed      = "room-closed"
	EventRoomExpired     = "room-expired"
	EventScore           = "score"
)

// Reasons carried by room-closed.
const (
	ReasonLeft        = "left"
	ReasonRoomDeleted = "room-deleted"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Presenter renders events. It is called from several goroutines.
type Presenter interface {
	Present(event Event)
}

// Narrator speaks texts without blocking the caller.
type Narrator interface {
	Say(text string)
}

type CountdownPayload struct {
	// Value 0 is the "go" signal.
	Value int `json:"value"`
}

type GesturePayload struct {
	Gesture entity.Gesture `json:"gesture"`
	Glyph   string         `json:"glyph"`
}

type OpponentGesturePayload struct {
	Ready   bool           `json:"ready"`
	Gesture entity.Gesture `json:"gesture,omitempty"`
}

type ResultPayload struct {
	Outcome         entity.Outcome    `json:"outcome"`
	LocalGesture    entity.Gesture    `json:"localGesture"`
	OpponentGesture entity.Gesture    `json:"opponentGesture"`
	Score           entity.MatchScore `json:"score"`
	Text            string            `json:"text"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type RoomPayload struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participantId,omitempty"`
	IsHost        bool   `json:"isHost,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type PlayerView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Ready       bool   `json:"ready"`
	Score       int    `json:"score"`
	IsHost      bool   `json:"isHost"`
	IsLocal     bool   `json:"isLocal"`
}

type PlayersPayload struct {
	Players []PlayerView `json:"players"`
}

type CanStartPayload struct {
	Enabled bool `json:"enabled"`
}

func gestureEvent(gesture entity.Gesture) Event {
	return Event{Type: EventGesture, Payload: GesturePayload{Gesture: gesture, Glyph: gesture.Glyph()}}
}

func scoreEvent(score entity.MatchScore) Event {
	return Event{Type: EventScore, Payload: score}
}
