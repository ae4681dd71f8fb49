package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
	"github.com/rocketscienceinc/rps-online/internal/entity"
	"github.com/rocketscienceinc/rps-online/internal/gesture"
	"github.com/rocketscienceinc/rps-online/internal/narration"
)

type fixedOpponent entity.Gesture

func (that fixedOpponent) Throw(context.Context) (entity.Gesture, error) {
	return entity.Gesture(that), nil
}

func TestLocalMatch_Play(t *testing.T) {
	ctx := context.Background()

	t.Run("Rock beats the system's scissors", func(t *testing.T) {
		// Given: the camera shows rock, the system throws scissors
		c := newClient(entity.Rock, clockwork.NewRealClock())
		match := NewLocalMatch(c.deps, fixedOpponent(entity.Scissors), narration.SystemOpponent)

		// When: a round is played
		report, err := match.Play(ctx)

		// Then: the local player wins and the score is recorded
		require.NoError(t, err)
		assert.Equal(t, entity.OutcomeWin, report.Outcome)
		assert.Equal(t, entity.MatchScore{LocalWins: 1, RoundsPlayed: 1}, match.Score())
		assert.Equal(t, StateIdle, match.State())

		assert.Equal(t, []int{3, 2, 1, 0}, c.presenter.countdown())
		assert.Equal(t, 1, c.presenter.count(EventResult))
		assert.Equal(t, []string{"Sistema eligió Tijera. Tú elegiste Piedra. ¡Ganaste esta ronda!"}, c.narrator.said())
	})

	t.Run("Second local detector as the opponent", func(t *testing.T) {
		// Given: camera one shows rock, camera two shows paper
		c := newClient(entity.Rock, clockwork.NewRealClock())
		second := newFakeOracle(entity.Paper)
		opponent := gesture.NewDetectorOpponent(gesture.NewCapturer(testLogger(), second, clockwork.NewRealClock(), gesture.DefaultThreshold, 1, time.Millisecond))
		match := NewLocalMatch(c.deps, opponent, narration.LocalOpponent)

		// When: two rounds are played
		_, err := match.Play(ctx)
		require.NoError(t, err)
		second.show(entity.Rock)
		report, err := match.Play(ctx)
		require.NoError(t, err)

		// Then: one loss and one tie
		assert.Equal(t, entity.OutcomeTie, report.Outcome)
		assert.Equal(t, entity.MatchScore{OpponentWins: 1, RoundsPlayed: 2}, match.Score())
	})

	t.Run("Camera not ready", func(t *testing.T) {
		c := newClient(entity.Rock, clockwork.NewRealClock())
		c.oracle.setReady(false)
		match := NewLocalMatch(c.deps, fixedOpponent(entity.Rock), narration.SystemOpponent)

		_, err := match.Play(ctx)

		require.ErrorIs(t, err, apperror.ErrCameraNotReady)
		assert.Empty(t, c.presenter.countdown())
	})

	t.Run("No clear gesture leaves the score alone", func(t *testing.T) {
		// Given: the camera sees nothing clear
		c := newClient(entity.NoGesture, clockwork.NewRealClock())
		match := NewLocalMatch(c.deps, fixedOpponent(entity.Rock), narration.SystemOpponent)

		// When: a round is played
		_, err := match.Play(ctx)

		// Then: the round is indeterminate
		require.ErrorIs(t, err, apperror.ErrIndeterminateGesture)
		assert.Equal(t, entity.MatchScore{}, match.Score())
		require.Equal(t, 1, c.presenter.count(EventError))
		assert.Equal(t, narration.LocalIndeterminateText, c.presenter.ofType(EventError)[0].Payload.(ErrorPayload).Message)
		assert.Zero(t, c.presenter.count(EventResult))
	})

	t.Run("One round at a time", func(t *testing.T) {
		// Given: a slow countdown
		c := newClient(entity.Rock, clockwork.NewRealClock())
		c.deps.Timings.CountdownTick = 50 * time.Millisecond
		match := NewLocalMatch(c.deps, fixedOpponent(entity.Paper), narration.SystemOpponent)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = match.Play(ctx)
		}()
		require.Eventually(t, match.Busy, waitFor, time.Millisecond)

		// When: playing or resetting during the round
		_, playErr := match.Play(ctx)
		resetErr := match.ResetScore()

		// Then: both are rejected
		require.ErrorIs(t, playErr, apperror.ErrMatchInProgress)
		require.ErrorIs(t, resetErr, apperror.ErrMatchInProgress)

		wg.Wait()
		assert.Equal(t, entity.MatchScore{OpponentWins: 1, RoundsPlayed: 1}, match.Score())
	})
}

func TestLocalMatch_ResetScore(t *testing.T) {
	// Given: a match with one round played
	c := newClient(entity.Scissors, clockwork.NewRealClock())
	match := NewLocalMatch(c.deps, fixedOpponent(entity.Paper), narration.SystemOpponent)
	_, err := match.Play(context.Background())
	require.NoError(t, err)

	// When: the score is reset
	require.NoError(t, match.ResetScore())

	// Then: it is zero and the presenter was told
	assert.Equal(t, entity.MatchScore{}, match.Score())
	scores := c.presenter.ofType(EventScore)
	require.NotEmpty(t, scores)
	assert.Equal(t, entity.MatchScore{}, scores[len(scores)-1].Payload)
}
