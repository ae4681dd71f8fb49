package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
	"github.com/rocketscienceinc/rps-online/internal/engine"
	"github.com/rocketscienceinc/rps-online/internal/entity"
	"github.com/rocketscienceinc/rps-online/internal/gesture"
	"github.com/rocketscienceinc/rps-online/internal/narration"
	"github.com/rocketscienceinc/rps-online/internal/pkg"
)

// Local match states.
const (
	StateIdle      = "idle"
	StateCountdown = "countdown"
	StateCapturing = "capturing"
	StateResolved  = "resolved"
)

// Deps are the collaborators shared by local matches and online sessions.
type Deps struct {
	Logger    *slog.Logger
	Oracle    gesture.Oracle
	Capturer  *gesture.Capturer
	Narrator  Narrator
	Presenter Presenter
	Clock     clockwork.Clock
	Timings   Timings
}

// RoundReport is the outcome of one local round.
type RoundReport struct {
	Local    entity.Gesture    `json:"local"`
	Opponent entity.Gesture    `json:"opponent"`
	Outcome  entity.Outcome    `json:"outcome"`
	Score    entity.MatchScore `json:"score"`
}

// LocalMatch plays rounds against a scripted opponent or a second local detector. No network.
type LocalMatch struct {
	logger       *slog.Logger
	deps         Deps
	opponent     gesture.Opponent
	opponentName string

	mu    sync.Mutex
	state string
	score entity.MatchScore
}

func NewLocalMatch(deps Deps, opponent gesture.Opponent, opponentName string) *LocalMatch {
	return &LocalMatch{
		logger:       deps.Logger.With("component", "local-match", "opponent", opponentName),
		deps:         deps,
		opponent:     opponent,
		opponentName: opponentName,

		state: StateIdle,
	}
}

func (that *LocalMatch) State() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state
}

func (that *LocalMatch) Busy() bool {
	return that.State() != StateIdle
}

func (that *LocalMatch) Score() entity.MatchScore {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.score
}

// ResetScore - explicit user action, only between rounds.
func (that *LocalMatch) ResetScore() error {
	that.mu.Lock()
	if that.state != StateIdle {
		that.mu.Unlock()
		return apperror.ErrMatchInProgress
	}
	that.score.Reset()
	score := that.score
	that.mu.Unlock()

	that.deps.Presenter.Present(scoreEvent(score))

	return nil
}

// Play - runs one round: countdown, capture, resolve. Blocks until the match is idle again.
func (that *LocalMatch) Play(ctx context.Context) (*RoundReport, error) {
	log := that.logger.With("method", "Play")

	if that.Busy() {
		return nil, apperror.ErrMatchInProgress
	}

	if !that.deps.Oracle.Ready(ctx) {
		return nil, apperror.ErrCameraNotReady
	}

	if !that.transition(StateIdle, StateCountdown) {
		return nil, apperror.ErrMatchInProgress
	}
	defer that.setState(StateIdle)

	if err := that.countdown(ctx); err != nil {
		return nil, fmt.Errorf("countdown interrupted: %w", err)
	}

	that.setState(StateCapturing)

	if err := pkg.Sleep(ctx, that.deps.Clock, that.deps.Timings.LocalSettle); err != nil {
		return nil, fmt.Errorf("capture interrupted: %w", err)
	}

	local, err := that.deps.Capturer.Once(ctx)
	if err != nil {
		log.Warn("local capture failed", "error", err)
		local = entity.NoGesture
	}

	opponent, err := that.opponent.Throw(ctx)
	if err != nil {
		log.Warn("opponent capture failed", "error", err)
		opponent = entity.NoGesture
	}

	that.setState(StateResolved)

	outcome, err := engine.Resolve(local, opponent)
	if err != nil {
		that.deps.Presenter.Present(Event{Type: EventError, Payload: ErrorPayload{
			Code:    entity.RoundErrorInvalidGesture,
			Message: narration.LocalIndeterminateText,
		}})
		that.deps.Narrator.Say(narration.LocalIndeterminateText)

		return nil, fmt.Errorf("round not resolved: %w", err)
	}

	that.mu.Lock()
	that.score.Record(outcome)
	score := that.score
	that.mu.Unlock()

	text := narration.ResultText(that.opponentName, outcome, opponent, local)

	that.deps.Presenter.Present(gestureEvent(local))
	that.deps.Presenter.Present(Event{Type: EventOpponentGesture, Payload: OpponentGesturePayload{Ready: true, Gesture: opponent}})
	that.deps.Presenter.Present(Event{Type: EventResult, Payload: ResultPayload{
		Outcome:         outcome,
		LocalGesture:    local,
		OpponentGesture: opponent,
		Score:           score,
		Text:            text,
	}})
	that.deps.Presenter.Present(scoreEvent(score))
	that.deps.Narrator.Say(text)

	log.Info("round resolved", "local", local, "opponent", opponent, "outcome", outcome)

	return &RoundReport{Local: local, Opponent: opponent, Outcome: outcome, Score: score}, nil
}

// countdown - 3, 2, 1 one tick apart, then "go" held briefly.
func (that *LocalMatch) countdown(ctx context.Context) error {
	timings := that.deps.Timings

	for value := timings.CountdownStart; value >= 1; value-- {
		that.deps.Presenter.Present(Event{Type: EventCountdown, Payload: CountdownPayload{Value: value}})

		if err := pkg.Sleep(ctx, that.deps.Clock, timings.CountdownTick); err != nil {
			return err
		}
	}

	that.deps.Presenter.Present(Event{Type: EventCountdown, Payload: CountdownPayload{Value: 0}})

	return pkg.Sleep(ctx, that.deps.Clock, timings.GoHold)
}

func (that *LocalMatch) transition(from, to string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.state != from {
		return false
	}
	that.state = to

	return true
}

func (that *LocalMatch) setState(state string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.state = state
}
