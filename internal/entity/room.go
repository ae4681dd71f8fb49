package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	StatusWaiting = "waiting"
	StatusReady   = "ready"
	StatusPlaying = "playing"

	RoundErrorInvalidGesture = "invalid-gesture"
	RoundErrorStore          = "store-error"

	RoomCodeLength   = 6
	RoomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	MaxParticipants = 2
)

var ErrMalformedRoomCode = errors.New("room code must be 6 characters from A-Z and 0-9")

// Room is the shared document both clients read and write through the store.
type Room struct {
	Code       string                  `json:"code"`
	HostID     string                  `json:"hostId"`
	Status     string                  `json:"status"`
	CreatedAt  int64                   `json:"createdAt,omitempty"`
	Players    map[string]*Participant `json:"players,omitempty"`
	RoundState Round                   `json:"roundState"`
}

// Participant is owned by the room. Only its own client writes gesture and ready,
// the host additionally writes score.
type Participant struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Gesture     *Gesture `json:"gesture"`
	Ready       bool     `json:"ready"`
	Score       int      `json:"score"`
	IsHost      bool     `json:"isHost,omitempty"`
	JoinedAt    int64    `json:"joinedAt,omitempty"`
}

// Round is reset between rounds. Only the host writes it.
type Round struct {
	IsPlaying    bool         `json:"isPlaying"`
	Countdown    *int         `json:"countdown"`
	Seq          int          `json:"seq"`
	RoundsPlayed int          `json:"roundsPlayed"`
	Result       *RoundResult `json:"result"`
	Error        *string      `json:"error"`
	ErrorSeq     int          `json:"errorSeq"`
}

// RoundResult is computed from the anchor participant's perspective.
type RoundResult struct {
	Seq          int     `json:"seq"`
	AnchorID     string  `json:"anchorId"`
	Outcome      Outcome `json:"outcome"`
	Gesture1     Gesture `json:"gesture1"`
	Gesture2     Gesture `json:"gesture2"`
	Score1       int     `json:"score1"`
	Score2       int     `json:"score2"`
	RoundsPlayed int     `json:"roundsPlayed"`
}

// NormalizeRoomCode - upper-cases user input and validates it against the room code alphabet.
func NormalizeRoomCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	if len(normalized) != RoomCodeLength {
		return "", fmt.Errorf("%w: got %q", ErrMalformedRoomCode, code)
	}

	for _, char := range normalized {
		if !strings.ContainsRune(RoomCodeAlphabet, char) {
			return "", fmt.Errorf("%w: got %q", ErrMalformedRoomCode, code)
		}
	}

	return normalized, nil
}

func (that *Room) PlayerCount() int {
	return len(that.Players)
}

func (that *Room) IsFull() bool {
	return that.PlayerCount() >= MaxParticipants
}

// OrderedParticipants returns participants in join order.
func (that *Room) OrderedParticipants() []*Participant {
	return OrderParticipants(that.Players)
}

// Anchor - the first participant who joined. Results are stored from its perspective.
func (that *Room) Anchor() *Participant {
	ordered := that.OrderedParticipants()
	if len(ordered) == 0 {
		return nil
	}
	return ordered[0]
}

// Opponent returns the other participant, if any.
func (that *Room) Opponent(participantID string) *Participant {
	for id, participant := range that.Players {
		if id != participantID {
			return participant
		}
	}
	return nil
}

// OrderParticipants sorts by server join timestamp, ties broken by id.
func OrderParticipants(players map[string]*Participant) []*Participant {
	ordered := make([]*Participant, 0, len(players))
	for id, participant := range players {
		if participant == nil {
			continue
		}
		if participant.ID == "" {
			participant.ID = id
		}
		ordered = append(ordered, participant)
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].JoinedAt != ordered[j].JoinedAt {
			return ordered[i].JoinedAt < ordered[j].JoinedAt
		}
		return ordered[i].ID < ordered[j].ID
	})

	return ordered
}

// HasGesture reports whether the participant published something in the gesture field.
func (that *Participant) HasGesture() bool {
	return that.Gesture != nil && *that.Gesture != ""
}

// IsIdle - no countdown, no round running and nothing left from the previous round.
func (that *Round) IsIdle() bool {
	return !that.IsPlaying && that.Countdown == nil && that.Result == nil && that.Error == nil
}

// IsAnchor reports whether the participant is the one the result is stored for.
func (that *RoundResult) IsAnchor(participantID string) bool {
	return that.AnchorID == participantID
}

// ForParticipant converts an anchor-perspective result to the given side.
func (that *RoundResult) ForParticipant(isAnchor bool) (Outcome, MatchScore, Gesture, Gesture) {
	if isAnchor {
		return that.Outcome, MatchScore{
			LocalWins:    that.Score1,
			OpponentWins: that.Score2,
			RoundsPlayed: that.RoundsPlayed,
		}, that.Gesture1, that.Gesture2
	}

	return that.Outcome.Invert(), MatchScore{
		LocalWins:    that.Score2,
		OpponentWins: that.Score1,
		RoundsPlayed: that.RoundsPlayed,
	}, that.Gesture2, that.Gesture1
}
