package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
	"github.com/rocketscienceinc/rps-online/internal/entity"
)

// Game modes.
const (
	ModeSystem = "system"
	ModePlayer = "player"
	ModeOnline = "online"
)

// GameUseCase is what the presentation bridge drives.
type GameUseCase interface {
	Mode() string
	SetMode(mode string) error

	Start(ctx context.Context) error
	Score() entity.MatchScore
	ResetScore() error

	CreateRoom(ctx context.Context, displayName string) (*RoomInfo, error)
	JoinRoom(ctx context.Context, code, displayName string) (*RoomInfo, error)
	Leave(ctx context.Context) error
	Cleanup(signal string)
}

type localMatch interface {
	Play(ctx context.Context) (*RoundReport, error)
	Busy() bool
	Score() entity.MatchScore
	ResetScore() error
}

type onlineSession interface {
	CreateRoom(ctx context.Context, displayName string) (*RoomInfo, error)
	JoinRoom(ctx context.Context, code, displayName string) (*RoomInfo, error)
	StartRound(ctx context.Context) error
	Leave(ctx context.Context) error
	Cleanup(signal string)
	InRoom() bool
	Busy() bool
	Score() entity.MatchScore
}

type gameUseCase struct {
	matches map[string]localMatch
	session onlineSession

	mu   sync.Mutex
	mode string
}

// NewGameUseCase - player may be nil when no second detector is configured.
func NewGameUseCase(system, player localMatch, session onlineSession) GameUseCase {
	matches := map[string]localMatch{ModeSystem: system}
	if player != nil {
		matches[ModePlayer] = player
	}

	return &gameUseCase{
		matches: matches,
		session: session,
		mode:    ModeSystem,
	}
}

func (that *gameUseCase) Mode() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.mode
}

// SetMode - only one mode is active. Switching is rejected while a round runs or a room is open.
func (that *gameUseCase) SetMode(mode string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if mode == that.mode {
		return nil
	}

	if !that.available(mode) {
		return fmt.Errorf("%w: %q", apperror.ErrUnknownMode, mode)
	}

	if that.busyLocked() || that.session.InRoom() {
		return apperror.ErrModeLocked
	}

	that.mode = mode

	return nil
}

// Start - a local round in local modes, a host round online.
func (that *gameUseCase) Start(ctx context.Context) error {
	mode := that.Mode()

	if mode == ModeOnline {
		return that.session.StartRound(ctx)
	}

	if _, err := that.matches[mode].Play(ctx); err != nil {
		return fmt.Errorf("could not play round: %w", err)
	}

	return nil
}

func (that *gameUseCase) Score() entity.MatchScore {
	mode := that.Mode()

	if mode == ModeOnline {
		return that.session.Score()
	}

	return that.matches[mode].Score()
}

// ResetScore - local modes only. The online score lives in the room.
func (that *gameUseCase) ResetScore() error {
	mode := that.Mode()

	if mode == ModeOnline {
		return apperror.ErrWrongMode
	}

	return that.matches[mode].ResetScore()
}

func (that *gameUseCase) CreateRoom(ctx context.Context, displayName string) (*RoomInfo, error) {
	if that.Mode() != ModeOnline {
		return nil, apperror.ErrWrongMode
	}

	return that.session.CreateRoom(ctx, displayName)
}

func (that *gameUseCase) JoinRoom(ctx context.Context, code, displayName string) (*RoomInfo, error) {
	if that.Mode() != ModeOnline {
		return nil, apperror.ErrWrongMode
	}

	return that.session.JoinRoom(ctx, code, displayName)
}

func (that *gameUseCase) Leave(ctx context.Context) error {
	return that.session.Leave(ctx)
}

// Cleanup - page lifecycle signals. Leaving a room is the only thing to clean up.
func (that *gameUseCase) Cleanup(signal string) {
	that.session.Cleanup(signal)
}

func (that *gameUseCase) available(mode string) bool {
	if mode == ModeOnline {
		return true
	}

	_, ok := that.matches[mode]

	return ok
}

func (that *gameUseCase) busyLocked() bool {
	if that.session.Busy() {
		return true
	}

	for _, match := range that.matches {
		if match.Busy() {
			return true
		}
	}

	return false
}
