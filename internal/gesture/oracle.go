package gesture

import (
	"context"

	"github.com/rocketscienceinc/rps-online/internal/entity"
)

// DefaultThreshold - a label is accepted only above this confidence.
const DefaultThreshold = 0.5

// Prediction is one label with its confidence as returned by the classifier.
type Prediction struct {
	Label      string  `json:"className"`
	Confidence float64 `json:"probability"`
}

// Oracle is the gesture classifier behind the camera.
type Oracle interface {
	// Ready reports whether a detector is attached and streaming.
	Ready(ctx context.Context) bool
	// Classify returns predictions for the current frame.
	Classify(ctx context.Context) ([]Prediction, error)
}

// Pick - returns the most confident known gesture strictly above the threshold.
// The "no gesture" label and unknown labels never win. NoGesture is returned when nothing qualifies.
func Pick(predictions []Prediction, threshold float64) entity.Gesture {
	best := entity.NoGesture
	bestConfidence := threshold

	for _, prediction := range predictions {
		gesture, err := entity.ParseGesture(prediction.Label)
		if err != nil || gesture == entity.NoGesture {
			continue
		}

		if prediction.Confidence > bestConfidence {
			best = gesture
			bestConfidence = prediction.Confidence
		}
	}

	return best
}
