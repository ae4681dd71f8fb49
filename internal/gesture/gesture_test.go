package gesture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
	"github.com/rocketscienceinc/rps-online/internal/entity"
)

var errCameraLost = errors.New("camera lost")

type mockOracle struct {
	mock.Mock
}

func (that *mockOracle) Ready(ctx context.Context) bool {
	return that.Called(ctx).Bool(0)
}

func (that *mockOracle) Classify(ctx context.Context) ([]Prediction, error) {
	args := that.Called(ctx)
	predictions, _ := args.Get(0).([]Prediction)
	return predictions, args.Error(1)
}

func newTestCapturer(oracle Oracle) *Capturer {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewCapturer(logger, oracle, clockwork.NewRealClock(), DefaultThreshold, DefaultCaptureAttempts, time.Millisecond)
}

func TestPick(t *testing.T) {
	t.Run("Highest confidence above threshold wins", func(t *testing.T) {
		// Given: predictions with one clear winner
		predictions := []Prediction{
			{Label: "PIEDRA", Confidence: 0.2},
			{Label: "PAPEL", Confidence: 0.7},
			{Label: "TIJERA", Confidence: 0.1},
		}

		// When: picking
		gesture := Pick(predictions, DefaultThreshold)

		// Then: paper is chosen
		assert.Equal(t, entity.Paper, gesture)
	})

	t.Run("Threshold is strict", func(t *testing.T) {
		// Given: a prediction exactly at the threshold
		predictions := []Prediction{{Label: "PIEDRA", Confidence: 0.5}}

		// When: picking
		gesture := Pick(predictions, DefaultThreshold)

		// Then: nothing qualifies
		assert.Equal(t, entity.NoGesture, gesture)
	})

	t.Run("No gesture label never wins", func(t *testing.T) {
		// Given: the no gesture label is the most confident one
		predictions := []Prediction{
			{Label: "Indeterminado", Confidence: 0.9},
			{Label: "TIJERA", Confidence: 0.6},
		}

		// When: picking
		gesture := Pick(predictions, DefaultThreshold)

		// Then: the best real gesture is used
		assert.Equal(t, entity.Scissors, gesture)
	})

	t.Run("Unknown labels are ignored", func(t *testing.T) {
		// When: the classifier returns an unexpected class
		gesture := Pick([]Prediction{{Label: "LAGARTO", Confidence: 0.99}}, DefaultThreshold)

		// Then: it is indeterminate
		assert.Equal(t, entity.NoGesture, gesture)
	})
}

func TestCapturer_Capture(t *testing.T) {
	ctx := context.Background()

	t.Run("Retries until a confident gesture", func(t *testing.T) {
		// Given: two blurry frames followed by a clear rock
		oracle := &mockOracle{}
		oracle.On("Classify", mock.Anything).Return([]Prediction{{Label: "PIEDRA", Confidence: 0.3}}, nil).Twice()
		oracle.On("Classify", mock.Anything).Return([]Prediction{{Label: "PIEDRA", Confidence: 0.8}}, nil).Once()

		// When: capturing
		gesture, err := newTestCapturer(oracle).Capture(ctx)

		// Then: rock is captured on the third attempt
		require.NoError(t, err)
		assert.Equal(t, entity.Rock, gesture)
		oracle.AssertNumberOfCalls(t, "Classify", 3)
	})

	t.Run("Gives up after five attempts", func(t *testing.T) {
		// Given: the classifier never sees a hand
		oracle := &mockOracle{}
		oracle.On("Classify", mock.Anything).Return([]Prediction{{Label: "Indeterminado", Confidence: 0.99}}, nil)

		// When: capturing
		gesture, err := newTestCapturer(oracle).Capture(ctx)

		// Then: the capture is indeterminate and exactly five attempts were made
		require.ErrorIs(t, err, apperror.ErrIndeterminateGesture)
		assert.Equal(t, entity.NoGesture, gesture)
		oracle.AssertNumberOfCalls(t, "Classify", DefaultCaptureAttempts)
	})

	t.Run("Classifier errors count as failed attempts", func(t *testing.T) {
		// Given: a broken classifier
		oracle := &mockOracle{}
		oracle.On("Classify", mock.Anything).Return(nil, errCameraLost)

		// When: capturing
		_, err := newTestCapturer(oracle).Capture(ctx)

		// Then: capture ends indeterminate
		require.ErrorIs(t, err, apperror.ErrIndeterminateGesture)
		oracle.AssertNumberOfCalls(t, "Classify", DefaultCaptureAttempts)
	})
}

func TestOpponents(t *testing.T) {
	t.Run("Scripted opponent covers every gesture", func(t *testing.T) {
		// Given: many throws
		seen := make(map[entity.Gesture]int)
		for range 300 {
			gesture, err := ScriptedOpponent{}.Throw(context.Background())
			require.NoError(t, err)
			seen[gesture]++
		}

		// Then: only valid gestures, all three present
		assert.Len(t, seen, 3)
		for gesture := range seen {
			assert.True(t, gesture.IsValid())
		}
	})

	t.Run("Detector opponent asks once", func(t *testing.T) {
		// Given: a second detector that sees nothing
		oracle := &mockOracle{}
		oracle.On("Classify", mock.Anything).Return([]Prediction{{Label: "PAPEL", Confidence: 0.2}}, nil).Once()

		// When: it throws
		gesture, err := NewDetectorOpponent(newTestCapturer(oracle)).Throw(context.Background())

		// Then: the result is indeterminate without retries
		require.NoError(t, err)
		assert.Equal(t, entity.NoGesture, gesture)
		oracle.AssertExpectations(t)
	})
}
