package pkg

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// Sleep - waits for d on the given clock or until the context is done.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
	}

	return nil
}

// BackoffClock adapts a clockwork clock to the backoff package, so retries follow a fake clock in tests.
type BackoffClock struct {
	Clock clockwork.Clock
}

func (that BackoffClock) Now() time.Time {
	return that.Clock.Now()
}

// NewTimer - creates a backoff.Timer driven by the clock.
func (that BackoffClock) NewTimer() backoff.Timer {
	return &backoffTimer{clock: that.Clock}
}

type backoffTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (that *backoffTimer) Start(duration time.Duration) {
	if that.timer == nil {
		that.timer = that.clock.NewTimer(duration)
		return
	}
	that.timer.Reset(duration)
}

func (that *backoffTimer) Stop() {
	if that.timer != nil {
		that.timer.Stop()
	}
}

func (that *backoffTimer) C() <-chan time.Time {
	return that.timer.Chan()
}
