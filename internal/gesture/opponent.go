package gesture

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand/v2"

	"github.com/rocketscienceinc/rps-online/internal/entity"
)

// Opponent produces the second gesture of a local round.
type Opponent interface {
	Throw(ctx context.Context) (entity.Gesture, error)
}

// ScriptedOpponent throws uniformly random gestures.
type ScriptedOpponent struct{}

func (ScriptedOpponent) Throw(context.Context) (entity.Gesture, error) {
	return RandomGesture(), nil
}

// RandomGesture - uses crypto/rand and falls back to math/rand when it is unavailable.
func RandomGesture() entity.Gesture {
	count := len(entity.GestureOrder)

	index, err := rand.Int(rand.Reader, big.NewInt(int64(count)))
	if err != nil {
		return entity.GestureOrder[mrand.IntN(count)]
	}

	return entity.GestureOrder[index.Int64()]
}

// DetectorOpponent reads a second local detector once per round.
type DetectorOpponent struct {
	capturer *Capturer
}

func NewDetectorOpponent(capturer *Capturer) *DetectorOpponent {
	return &DetectorOpponent{capturer: capturer}
}

func (that *DetectorOpponent) Throw(ctx context.Context) (entity.Gesture, error) {
	gesture, err := that.capturer.Once(ctx)
	if err != nil {
		return entity.NoGesture, fmt.Errorf("second detector: %w", err)
	}

	return gesture, nil
}
