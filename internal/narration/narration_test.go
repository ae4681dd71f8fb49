package narration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/rps-online/internal/entity"
)

var errProviderBusy = errors.New("too many concurrent requests")

type recordingAnnouncer struct {
	mu       sync.Mutex
	texts    []string
	inFlight atomic.Int32
	overlap  atomic.Bool
	fail     bool
}

func (that *recordingAnnouncer) Announce(_ context.Context, text string) error {
	if that.inFlight.Add(1) > 1 {
		that.overlap.Store(true)
	}
	defer that.inFlight.Add(-1)

	time.Sleep(5 * time.Millisecond)

	that.mu.Lock()
	that.texts = append(that.texts, text)
	that.mu.Unlock()

	if that.fail {
		return errProviderBusy
	}
	return nil
}

func (that *recordingAnnouncer) spoken() []string {
	that.mu.Lock()
	defer that.mu.Unlock()
	return append([]string(nil), that.texts...)
}

func TestQueue(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	t.Run("Texts are announced one at a time in order", func(t *testing.T) {
		// Given: a running queue
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		announcer := &recordingAnnouncer{}
		queue := NewQueue(logger, announcer, 8, time.Second)
		go queue.Run(ctx)

		// When: several texts are enqueued at once
		queue.Say("uno")
		queue.Say("dos")
		queue.Say("tres")

		// Then: all of them are spoken in order without overlap
		require.Eventually(t, func() bool { return len(announcer.spoken()) == 3 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"uno", "dos", "tres"}, announcer.spoken())
		assert.False(t, announcer.overlap.Load())
	})

	t.Run("Failures do not stop the queue", func(t *testing.T) {
		// Given: a provider that always fails
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		announcer := &recordingAnnouncer{fail: true}
		queue := NewQueue(logger, announcer, 8, time.Second)
		go queue.Run(ctx)

		// When: two texts are enqueued
		queue.Say("uno")
		queue.Say("dos")

		// Then: the second one is still attempted
		require.Eventually(t, func() bool { return len(announcer.spoken()) == 2 }, time.Second, 5*time.Millisecond)
	})

	t.Run("Full queue drops instead of blocking", func(t *testing.T) {
		// Given: a queue nobody drains
		queue := NewQueue(logger, &recordingAnnouncer{}, 1, time.Second)

		// When: more texts than capacity are enqueued
		queue.Say("uno")
		queue.Say("dos")

		// Then: the caller was not blocked and only one text is buffered
		assert.Len(t, queue.texts, 1)
	})
}

func TestResultText(t *testing.T) {
	t.Run("Win", func(t *testing.T) {
		text := ResultText(OnlineOpponent, entity.OutcomeWin, entity.Scissors, entity.Rock)
		assert.Equal(t, "Tu oponente eligió Tijera. Tú elegiste Piedra. ¡Ganaste esta ronda!", text)
	})

	t.Run("Loss", func(t *testing.T) {
		text := ResultText(SystemOpponent, entity.OutcomeLoss, entity.Paper, entity.Rock)
		assert.Equal(t, "Sistema eligió Papel. Tú elegiste Piedra. Sistema gana esta ronda.", text)
	})

	t.Run("Tie", func(t *testing.T) {
		text := ResultText(SystemOpponent, entity.OutcomeTie, entity.Paper, entity.Paper)
		assert.Equal(t, "Empate. Sistema eligió Papel. Tú elegiste Papel.", text)
	})

	t.Run("Error tag", func(t *testing.T) {
		assert.Equal(t, InvalidGestureText, ErrorText(entity.RoundErrorInvalidGesture))
		assert.Equal(t, StoreErrorText, ErrorText(entity.RoundErrorStore))
	})
}
