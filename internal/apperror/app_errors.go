package apperror

import "errors"

// precondition failures, reported to the initiating user without touching shared state.
var (
	ErrCameraNotReady   = errors.New("camera is not ready, initialize the detector first")
	ErrInvalidRoomCode  = errors.New("invalid room code")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomInProgress   = errors.New("room already in progress")
	ErrRoomFull         = errors.New("room is full")
	ErrNotEnoughPlayers = errors.New("waiting for the second player")
	ErrNotHost          = errors.New("only the host can do this")
	ErrNotInRoom        = errors.New("not connected to a room")
	ErrAlreadyInRoom    = errors.New("already connected to a room")
	ErrRoundInProgress  = errors.New("round is already in progress")
	ErrMatchInProgress  = errors.New("match round is already running")
	ErrModeLocked       = errors.New("cannot switch mode while a round is running or a room is open")
	ErrWrongMode        = errors.New("not available in the current game mode")
	ErrUnknownMode      = errors.New("unknown game mode")
)

var (
	ErrTimeout              = errors.New("operation timed out, check the connection to the shared store")
	ErrIndeterminateGesture = errors.New("no clear gesture was detected")
	ErrPermissionDenied     = errors.New("permission denied by the shared store, check its credentials and access rules")
	ErrRoomCodeExhausted    = errors.New("could not find a free room code")
	ErrRoomClosed           = errors.New("room was closed")
)
