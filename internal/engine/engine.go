package engine

import (
	"fmt"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
	"github.com/rocketscienceinc/rps-online/internal/entity"
)

const gestureCount = len(entity.GestureOrder)

// Resolve - decides a round from a's point of view.
// OutcomeWin means a wins, OutcomeLoss means b wins.
// A missing or indeterminate gesture is never guessed: apperror.ErrIndeterminateGesture is returned.
func Resolve(a, b entity.Gesture) (entity.Outcome, error) {
	if err := validateGesture(a); err != nil {
		return "", fmt.Errorf("first gesture: %w", err)
	}

	if err := validateGesture(b); err != nil {
		return "", fmt.Errorf("second gesture: %w", err)
	}

	switch (a.Index() - b.Index() + gestureCount) % gestureCount {
	case 0:
		return entity.OutcomeTie, nil
	case 1:
		return entity.OutcomeWin, nil
	default:
		return entity.OutcomeLoss, nil
	}
}

// ResolvePtr - same as Resolve for optional gesture fields read from the room.
func ResolvePtr(a, b *entity.Gesture) (entity.Outcome, error) {
	if a == nil || b == nil {
		return "", apperror.ErrIndeterminateGesture
	}

	return Resolve(*a, *b)
}

// validateGesture - checks the gesture can take part in a round.
func validateGesture(gesture entity.Gesture) error {
	if gesture == "" || gesture == entity.NoGesture || !gesture.IsValid() {
		return fmt.Errorf("%w: %q", apperror.ErrIndeterminateGesture, gesture)
	}

	return nil
}
