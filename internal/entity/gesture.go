package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Gesture values are the class labels produced by the gesture classifier.
type Gesture string

const (
	Rock     Gesture = "PIEDRA"
	Paper    Gesture = "PAPEL"
	Scissors Gesture = "TIJERA"

	// NoGesture is the classifier label for a frame without a clear hand shape.
	NoGesture Gesture = "Indeterminado"
)

var ErrUnknownGesture = errors.New("unknown gesture")

// GestureOrder is the cyclic dominance order: every gesture beats the one right before it.
// Changing the order changes who beats whom.
var GestureOrder = [3]Gesture{Rock, Paper, Scissors}

type gestureInfo struct {
	name  string
	glyph string
}

var gestures = map[Gesture]gestureInfo{
	Rock:     {name: "Piedra", glyph: "✊"},
	Paper:    {name: "Papel", glyph: "✋"},
	Scissors: {name: "Tijera", glyph: "✌️"},
}

var gestureAliases = map[string]Gesture{
	"piedra":   Rock,
	"rock":     Rock,
	"papel":    Paper,
	"paper":    Paper,
	"tijera":   Scissors,
	"tijeras":  Scissors,
	"scissors": Scissors,
}

// ParseGesture - maps a classifier label or a common alias to a Gesture.
func ParseGesture(label string) (Gesture, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))

	if gesture, ok := gestureAliases[normalized]; ok {
		return gesture, nil
	}

	if normalized == strings.ToLower(string(NoGesture)) {
		return NoGesture, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownGesture, label)
}

// IsValid reports whether the gesture is one of the three playable values.
func (that Gesture) IsValid() bool {
	_, ok := gestures[that]
	return ok
}

func (that Gesture) Name() string {
	if info, ok := gestures[that]; ok {
		return info.name
	}
	return string(that)
}

func (that Gesture) Glyph() string {
	if info, ok := gestures[that]; ok {
		return info.glyph
	}
	return "👤"
}

// Index returns the position in GestureOrder or -1.
func (that Gesture) Index() int {
	for i, gesture := range GestureOrder {
		if gesture == that {
			return i
		}
	}
	return -1
}

// GesturePtr - helper for optional gesture fields.
func GesturePtr(gesture Gesture) *Gesture {
	return &gesture
}
