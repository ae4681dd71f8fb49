package gesture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
	"github.com/rocketscienceinc/rps-online/internal/entity"
	"github.com/rocketscienceinc/rps-online/internal/pkg"
)

const (
	DefaultCaptureAttempts = 5
	DefaultCaptureInterval = 500 * time.Millisecond
)

var errNoClearGesture = errors.New("no gesture above threshold")

// Capturer reads the oracle until it gets a confident gesture or runs out of attempts.
type Capturer struct {
	logger *slog.Logger
	oracle Oracle
	clock  clockwork.Clock

	threshold float64
	attempts  int
	interval  time.Duration
}

func NewCapturer(logger *slog.Logger, oracle Oracle, clock clockwork.Clock, threshold float64, attempts int, interval time.Duration) *Capturer {
	if attempts < 1 {
		attempts = 1
	}

	return &Capturer{
		logger: logger.With("component", "capturer"),
		oracle: oracle,
		clock:  clock,

		threshold: threshold,
		attempts:  attempts,
		interval:  interval,
	}
}

// Once - asks the oracle a single time. NoGesture means nothing was confident enough.
func (that *Capturer) Once(ctx context.Context) (entity.Gesture, error) {
	predictions, err := that.oracle.Classify(ctx)
	if err != nil {
		return entity.NoGesture, fmt.Errorf("failed to classify frame: %w", err)
	}

	return Pick(predictions, that.threshold), nil
}

// Capture - retries Once with a fixed interval. Returns apperror.ErrIndeterminateGesture when all attempts fail.
func (that *Capturer) Capture(ctx context.Context) (entity.Gesture, error) {
	log := that.logger.With("method", "Capture")

	var captured entity.Gesture
	operation := func() error {
		gesture, err := that.Once(ctx)
		if err != nil {
			return err
		}

		if !gesture.IsValid() {
			return errNoClearGesture
		}

		captured = gesture
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(that.interval), uint64(that.attempts-1)),
		ctx,
	)

	notify := func(err error, next time.Duration) {
		log.Debug("capture attempt failed", "error", err, "next", next)
	}

	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, pkg.BackoffClock{Clock: that.clock}.NewTimer()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entity.NoGesture, fmt.Errorf("capture interrupted: %w", ctxErr)
		}

		return entity.NoGesture, fmt.Errorf("%w after %d attempts: %w", apperror.ErrIndeterminateGesture, that.attempts, err)
	}

	return captured, nil
}
