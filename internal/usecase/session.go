package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
	"github.com/rocketscienceinc/rps-online/internal/engine"
	"github.com/rocketscienceinc/rps-online/internal/entity"
	"github.com/rocketscienceinc/rps-online/internal/narration"
	"github.com/rocketscienceinc/rps-online/internal/pkg"
	"github.com/rocketscienceinc/rps-online/internal/repository/storage"
)

const (
	DefaultHostName  = "Jugador 1 (Anfitrión)"
	DefaultGuestName = "Jugador 2"
)

var (
	errWaitingForGestures = errors.New("waiting for both gestures")
	errPeerLeft           = errors.New("opponent left during the round")
)

type roomRepository interface {
	Exists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, code string, host *entity.Participant) error
	Get(ctx context.Context, code string) (*entity.Room, error)
	Delete(ctx context.Context, code string) error
	Players(ctx context.Context, code string) (map[string]*entity.Participant, error)
	AddParticipant(ctx context.Context, code string, participant *entity.Participant) error
	RemoveParticipant(ctx context.Context, code, participantID string) error
	SetStatus(ctx context.Context, code, status string) error
	SetGesture(ctx context.Context, code, participantID string, gesture entity.Gesture) error

	BeginRound(ctx context.Context, code string, seq int, participantIDs []string) error
	SetCountdown(ctx context.Context, code string, value *int) error
	SetPlaying(ctx context.Context, code string, playing bool) error
	PublishResult(ctx context.Context, code string, result *entity.RoundResult, scores map[string]int) error
	ResetRound(ctx context.Context, code string, participantIDs []string) error
	AbortRound(ctx context.Context, code, tag string, errorSeq int, participantIDs []string) error
	ClearResult(ctx context.Context, code string) error
	ClearError(ctx context.Context, code string) error

	WatchPlayers(ctx context.Context, code string, handler func(map[string]*entity.Participant)) (storage.Subscription, error)
	WatchPlayerChanges(ctx context.Context, code string, handler func(string, *entity.Participant)) (storage.Subscription, error)
	WatchRound(ctx context.Context, code string, handler func(*entity.Round)) (storage.Subscription, error)
	WatchHost(ctx context.Context, code string, handler func(hostID string)) (storage.Subscription, error)
}

// RoomInfo describes the room the session is attached to.
type RoomInfo struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participantId"`
	IsHost        bool   `json:"isHost"`
}

// roomState is everything the session knows about one room. Handlers of an old room compare
// their roomState with Session.room and do nothing once it was replaced or detached.
type roomState struct {
	code          string
	participantID string
	isHost        bool

	ctx    context.Context
	cancel context.CancelFunc
	subs   []storage.Subscription
	expiry clockwork.Timer

	players       map[string]*entity.Participant
	round         entity.Round
	lastCountdown *int
	canStart      *bool

	roundRunning  bool
	capturedSeq   int
	lastResultSeq int
	lastErrorSeq  int
	score         entity.MatchScore
}

func (that *roomState) info() *RoomInfo {
	return &RoomInfo{Code: that.code, ParticipantID: that.participantID, IsHost: that.isHost}
}

// participantIDs - join order.
func (that *roomState) participantIDs() []string {
	ordered := entity.OrderParticipants(that.players)

	ids := make([]string, 0, len(ordered))
	for _, participant := range ordered {
		ids = append(ids, participant.ID)
	}

	return ids
}

// Session synchronizes one local participant with a peer through a shared room.
// The host drives the round. Guests write only their own participant entry and the room status.
type Session struct {
	logger *slog.Logger
	deps   Deps
	rooms  roomRepository

	wg sync.WaitGroup

	mu      sync.Mutex
	room    *roomState
	pending bool
	// left keeps a room whose remote cleanup failed, so the next Leave retries it.
	left *roomState
}

func NewSession(deps Deps, rooms roomRepository) *Session {
	return &Session{
		logger: deps.Logger.With("component", "session"),
		deps:   deps,
		rooms:  rooms,
	}
}

// Room - the current room, nil when not connected.
func (that *Session) Room() *RoomInfo {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.room == nil {
		return nil
	}

	return that.room.info()
}

func (that *Session) InRoom() bool {
	return that.Room() != nil
}

// Busy reports whether a round is running in the current room.
func (that *Session) Busy() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.room != nil && (that.room.roundRunning || that.room.round.IsPlaying || that.room.round.Countdown != nil)
}

// Score - the local participant's view of the match score.
func (that *Session) Score() entity.MatchScore {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.room == nil {
		return entity.MatchScore{}
	}

	return that.room.score
}

// CreateRoom - host path. Writes the whole room in one bounded write and starts watching it.
func (that *Session) CreateRoom(ctx context.Context, displayName string) (*RoomInfo, error) {
	log := that.logger.With("method", "CreateRoom")

	if err := that.acquire(); err != nil {
		return nil, err
	}
	defer that.release()

	opCtx, cancel := context.WithTimeout(ctx, that.deps.Timings.OperationTimeout)
	defer cancel()

	code, err := that.freeRoomCode(opCtx)
	if err != nil {
		return nil, operationError("create room", err)
	}

	if displayName == "" {
		displayName = DefaultHostName
	}

	host := &entity.Participant{
		ID:          pkg.GenerateParticipantID(that.deps.Clock.Now()),
		DisplayName: displayName,
		IsHost:      true,
	}

	if err = that.rooms.Create(opCtx, code, host); err != nil {
		that.discardRoom(code)
		return nil, operationError("create room", err)
	}

	state := &roomState{
		code:          code,
		participantID: host.ID,
		isHost:        true,
		players:       map[string]*entity.Participant{host.ID: host},
	}

	if err = that.attach(opCtx, state); err != nil {
		that.discardRoom(code)
		return nil, operationError("watch room", err)
	}

	that.mu.Lock()
	if that.room == state {
		state.expiry = that.deps.Clock.AfterFunc(that.deps.Timings.RoomInactivity, func() {
			that.expire(state)
		})
	}
	that.mu.Unlock()

	log.Info("room created", "code", code, "participant", host.ID)
	that.deps.Presenter.Present(Event{Type: EventRoomCreated, Payload: RoomPayload{
		Code:          code,
		ParticipantID: host.ID,
		IsHost:        true,
	}})

	return state.info(), nil
}

// JoinRoom - guest path. The code is validated before any store access.
func (that *Session) JoinRoom(ctx context.Context, rawCode, displayName string) (*RoomInfo, error) {
	log := that.logger.With("method", "JoinRoom")

	code, err := entity.NormalizeRoomCode(rawCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrInvalidRoomCode, err)
	}

	if err = that.acquire(); err != nil {
		return nil, err
	}
	defer that.release()

	opCtx, cancel := context.WithTimeout(ctx, that.deps.Timings.OperationTimeout)
	defer cancel()

	room, err := that.rooms.Get(opCtx, code)
	if err != nil {
		return nil, operationError("join room", err)
	}

	if room.Status == entity.StatusPlaying {
		return nil, apperror.ErrRoomInProgress
	}

	if room.IsFull() {
		return nil, apperror.ErrRoomFull
	}

	if displayName == "" {
		displayName = DefaultGuestName
	}

	guest := &entity.Participant{
		ID:          pkg.GenerateParticipantID(that.deps.Clock.Now()),
		DisplayName: displayName,
	}

	if err = that.rooms.AddParticipant(opCtx, code, guest); err != nil {
		return nil, operationError("join room", err)
	}

	players := room.Players
	if players == nil {
		players = make(map[string]*entity.Participant)
	}
	players[guest.ID] = guest

	state := &roomState{
		code:          code,
		participantID: guest.ID,
		players:       players,
		round:         room.RoundState,
		capturedSeq:   room.RoundState.Seq,
		lastErrorSeq:  room.RoundState.ErrorSeq,
	}
	if room.RoundState.Result != nil {
		state.lastResultSeq = room.RoundState.Result.Seq
	}

	if err = that.attach(opCtx, state); err != nil {
		that.removeParticipant(code, guest.ID)
		return nil, operationError("watch room", err)
	}

	if err = that.rooms.SetStatus(opCtx, code, entity.StatusReady); err != nil {
		log.Warn("failed to mark room ready", "code", code, "error", err)
	}

	log.Info("room joined", "code", code, "participant", guest.ID)
	that.deps.Presenter.Present(Event{Type: EventRoomJoined, Payload: RoomPayload{
		Code:          code,
		ParticipantID: guest.ID,
	}})

	return state.info(), nil
}

// StartRound - host only. Checks the preconditions and runs the round in the background.
func (that *Session) StartRound(ctx context.Context) error {
	that.mu.Lock()
	state := that.room
	err := that.startableLocked(state)
	that.mu.Unlock()

	if err != nil {
		return err
	}

	if !that.deps.Oracle.Ready(ctx) {
		return apperror.ErrCameraNotReady
	}

	that.mu.Lock()
	if err = that.startableLocked(state); err != nil {
		that.mu.Unlock()
		return err
	}
	state.roundRunning = true
	seq := state.round.Seq + 1
	ids := state.participantIDs()
	that.mu.Unlock()

	that.updateCanStart(state)
	that.background(state, func(ctx context.Context) {
		that.hostRound(ctx, state, seq, ids)
	})

	return nil
}

// Leave - host deletes the room, a guest removes itself and deletes the room when nobody is left.
// Calling it again is harmless and retries a cleanup that failed before.
func (that *Session) Leave(ctx context.Context) error {
	that.mu.Lock()
	state := that.room
	if state != nil {
		that.detachLocked(state)
	} else {
		state = that.left
	}
	that.left = nil
	that.mu.Unlock()

	if state == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, that.deps.Timings.OperationTimeout)
	defer cancel()

	if err := that.cleanupRemote(opCtx, state); err != nil {
		that.mu.Lock()
		if that.room == nil {
			that.left = state
		}
		that.mu.Unlock()

		return operationError("leave room", err)
	}

	that.deps.Presenter.Present(Event{Type: EventRoomClosed, Payload: RoomPayload{Code: state.code, Reason: ReasonLeft}})

	return nil
}

// Cleanup - leave on page hide or unload. Both signals may fire, the second one is a no-op.
func (that *Session) Cleanup(signal string) {
	log := that.logger.With("method", "Cleanup", "signal", signal)

	if err := that.Leave(context.Background()); err != nil {
		log.Error("room cleanup failed", "error", err)
	}
}

// Close - leaves the room and waits for background work.
func (that *Session) Close(ctx context.Context) error {
	err := that.Leave(ctx)
	that.wg.Wait()

	return err
}

func (that *Session) cleanupRemote(ctx context.Context, state *roomState) error {
	if state.isHost {
		return that.rooms.Delete(ctx, state.code)
	}

	if err := that.rooms.RemoveParticipant(ctx, state.code, state.participantID); err != nil {
		return err
	}

	players, err := that.rooms.Players(ctx, state.code)
	if err != nil {
		return err
	}

	if len(players) == 0 {
		return that.rooms.Delete(ctx, state.code)
	}

	return nil
}

func (that *Session) acquire() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.room != nil || that.pending {
		return apperror.ErrAlreadyInRoom
	}
	that.pending = true

	return nil
}

func (that *Session) release() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.pending = false
}

// freeRoomCode - a generated code that no stored room uses yet.
func (that *Session) freeRoomCode(ctx context.Context) (string, error) {
	for range that.deps.Timings.RoomCodeRetries + 1 {
		code := pkg.GenerateRoomCode()

		exists, err := that.rooms.Exists(ctx, code)
		if err != nil {
			return "", err
		}

		if !exists {
			return code, nil
		}
	}

	return "", apperror.ErrRoomCodeExhausted
}

// attach - makes state the current room and subscribes to it.
func (that *Session) attach(ctx context.Context, state *roomState) error {
	state.ctx, state.cancel = context.WithCancel(context.WithoutCancel(ctx))

	that.mu.Lock()
	that.room = state
	that.left = nil
	that.mu.Unlock()

	watches := []func() (storage.Subscription, error){
		func() (storage.Subscription, error) {
			return that.rooms.WatchPlayers(ctx, state.code, func(players map[string]*entity.Participant) {
				that.onPlayers(state, players)
			})
		},
		func() (storage.Subscription, error) {
			return that.rooms.WatchPlayerChanges(ctx, state.code, func(id string, participant *entity.Participant) {
				that.onPlayerChanged(state, id, participant)
			})
		},
		func() (storage.Subscription, error) {
			return that.rooms.WatchRound(ctx, state.code, func(round *entity.Round) {
				that.onRound(state, round)
			})
		},
		func() (storage.Subscription, error) {
			return that.rooms.WatchHost(ctx, state.code, func(hostID string) {
				that.onHost(state, hostID)
			})
		},
	}

	for _, watch := range watches {
		sub, err := watch()
		if err != nil {
			that.mu.Lock()
			that.detachLocked(state)
			that.mu.Unlock()

			return err
		}

		that.mu.Lock()
		state.subs = append(state.subs, sub)
		if that.room != state {
			that.mu.Unlock()
			sub.Close()
			return apperror.ErrRoomClosed
		}
		that.mu.Unlock()
	}

	return nil
}

// detachLocked - stops everything tied to the room. Caller holds the lock.
func (that *Session) detachLocked(state *roomState) {
	if that.room == state {
		that.room = nil
	}

	if state.cancel != nil {
		state.cancel()
	}

	for _, sub := range state.subs {
		sub.Close()
	}
	state.subs = nil

	if state.expiry != nil {
		state.expiry.Stop()
	}
}

func (that *Session) background(state *roomState, fn func(ctx context.Context)) {
	that.wg.Add(1)
	go func() {
		defer that.wg.Done()
		fn(state.ctx)
	}()
}

// discardRoom - best effort removal of a half created room.
func (that *Session) discardRoom(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), that.deps.Timings.OperationTimeout)
	defer cancel()

	if err := that.rooms.Delete(ctx, code); err != nil {
		that.logger.Warn("failed to remove half created room", "code", code, "error", err)
	}
}

func (that *Session) removeParticipant(code, participantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), that.deps.Timings.OperationTimeout)
	defer cancel()

	if err := that.rooms.RemoveParticipant(ctx, code, participantID); err != nil {
		that.logger.Warn("failed to remove participant", "code", code, "participant", participantID, "error", err)
	}
}

// expire - 30 minutes after creation a room that never filled up is deleted.
func (that *Session) expire(state *roomState) {
	log := that.logger.With("method", "expire", "code", state.code)

	that.mu.Lock()
	current := that.room == state
	that.mu.Unlock()

	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), that.deps.Timings.OperationTimeout)
	defer cancel()

	players, err := that.rooms.Players(ctx, state.code)
	if err != nil {
		log.Error("failed to check room membership", "error", err)
		return
	}

	if len(players) >= entity.MaxParticipants {
		return
	}

	that.mu.Lock()
	if that.room != state {
		that.mu.Unlock()
		return
	}
	that.detachLocked(state)
	that.mu.Unlock()

	if err = that.rooms.Delete(ctx, state.code); err != nil {
		err = operationError("delete inactive room", err)
		log.Error("failed to delete inactive room, leaving retries it", "error", err)

		that.mu.Lock()
		if that.room == nil {
			that.left = state
		}
		that.mu.Unlock()

		that.deps.Presenter.Present(Event{Type: EventError, Payload: ErrorPayload{Message: err.Error()}})
		return
	}

	log.Info("inactive room deleted")
	that.deps.Presenter.Present(Event{Type: EventRoomExpired, Payload: RoomPayload{Code: state.code}})
}

func (that *Session) startableLocked(state *roomState) error {
	switch {
	case state == nil || that.room != state:
		return apperror.ErrNotInRoom
	case !state.isHost:
		return apperror.ErrNotHost
	case len(state.players) < entity.MaxParticipants:
		return apperror.ErrNotEnoughPlayers
	case state.roundRunning || !state.round.IsIdle():
		return apperror.ErrRoundInProgress
	}

	return nil
}

func (that *Session) onPlayers(state *roomState, players map[string]*entity.Participant) {
	that.mu.Lock()
	if that.room != state {
		that.mu.Unlock()
		return
	}
	state.players = players

	views := make([]PlayerView, 0, len(players))
	for _, participant := range entity.OrderParticipants(players) {
		views = append(views, PlayerView{
			ID:          participant.ID,
			DisplayName: participant.DisplayName,
			Ready:       participant.Ready,
			Score:       participant.Score,
			IsHost:      participant.IsHost,
			IsLocal:     participant.ID == state.participantID,
		})
	}
	that.mu.Unlock()

	that.deps.Presenter.Present(Event{Type: EventPlayers, Payload: PlayersPayload{Players: views}})
	that.updateCanStart(state)
}

func (that *Session) onPlayerChanged(state *roomState, id string, participant *entity.Participant) {
	that.mu.Lock()
	current := that.room == state
	that.mu.Unlock()

	if !current || id == state.participantID {
		return
	}

	that.deps.Presenter.Present(Event{Type: EventOpponentGesture, Payload: OpponentGesturePayload{
		Ready: participant != nil && participant.Ready,
	}})
}

func (that *Session) onRound(state *roomState, round *entity.Round) {
	if round == nil {
		return
	}

	that.mu.Lock()
	if that.room != state {
		that.mu.Unlock()
		return
	}

	state.round = *round

	countdownChanged := !equalCountdown(state.lastCountdown, round.Countdown)
	state.lastCountdown = round.Countdown

	startCapture := !state.isHost && round.IsPlaying && round.Seq > state.capturedSeq
	if startCapture {
		state.capturedSeq = round.Seq
	}
	that.mu.Unlock()

	if countdownChanged && round.Countdown != nil {
		that.deps.Presenter.Present(Event{Type: EventCountdown, Payload: CountdownPayload{Value: *round.Countdown}})
	}

	if startCapture {
		seq := round.Seq
		that.background(state, func(ctx context.Context) {
			that.guestCapture(ctx, state, seq)
		})
	}

	if round.Result != nil {
		that.consumeResult(state, round.Result)
	}

	if round.Error != nil {
		that.consumeError(state, round.ErrorSeq, *round.Error)
	}

	that.updateCanStart(state)
}

// onHost - the host id disappears only when the room document was deleted.
func (that *Session) onHost(state *roomState, hostID string) {
	if hostID != "" {
		return
	}

	that.mu.Lock()
	if that.room != state {
		that.mu.Unlock()
		return
	}
	that.detachLocked(state)
	that.mu.Unlock()

	that.logger.Info("room was deleted remotely", "code", state.code)
	that.deps.Presenter.Present(Event{Type: EventRoomClosed, Payload: RoomPayload{Code: state.code, Reason: ReasonRoomDeleted}})
}

// consumeResult - shows a result once per round sequence, from the local participant's side.
func (that *Session) consumeResult(state *roomState, result *entity.RoundResult) bool {
	that.mu.Lock()
	if that.room != state || result.Seq <= state.lastResultSeq {
		that.mu.Unlock()
		return false
	}
	state.lastResultSeq = result.Seq

	outcome, score, local, opponent := result.ForParticipant(result.IsAnchor(state.participantID))
	state.score = score
	that.mu.Unlock()

	text := narration.ResultText(narration.OnlineOpponent, outcome, opponent, local)

	that.deps.Presenter.Present(Event{Type: EventResult, Payload: ResultPayload{
		Outcome:         outcome,
		LocalGesture:    local,
		OpponentGesture: opponent,
		Score:           score,
		Text:            text,
	}})
	that.deps.Presenter.Present(scoreEvent(score))
	that.deps.Narrator.Say(text)

	return true
}

// consumeError - shows a round error once per error sequence.
func (that *Session) consumeError(state *roomState, errorSeq int, tag string) bool {
	that.mu.Lock()
	if that.room != state || errorSeq <= state.lastErrorSeq {
		that.mu.Unlock()
		return false
	}
	state.lastErrorSeq = errorSeq
	that.mu.Unlock()

	text := narration.ErrorText(tag)

	that.deps.Presenter.Present(Event{Type: EventError, Payload: ErrorPayload{Code: tag, Message: text}})
	that.deps.Narrator.Say(text)

	return true
}

// updateCanStart - tells the host whether a round may start. Sent only on change.
func (that *Session) updateCanStart(state *roomState) {
	that.mu.Lock()
	if that.room != state || !state.isHost {
		that.mu.Unlock()
		return
	}
	eligible := that.startableLocked(state) == nil
	that.mu.Unlock()

	enabled := eligible && that.deps.Oracle.Ready(state.ctx)

	that.mu.Lock()
	if that.room != state || (state.canStart != nil && *state.canStart == enabled) {
		that.mu.Unlock()
		return
	}
	state.canStart = &enabled
	that.mu.Unlock()

	that.deps.Presenter.Present(Event{Type: EventCanStart, Payload: CanStartPayload{Enabled: enabled}})
}

// hostRound - countdown, capture, reconcile, publish. Runs on the room context.
func (that *Session) hostRound(ctx context.Context, state *roomState, seq int, ids []string) {
	log := that.logger.With("method", "hostRound", "code", state.code, "seq", seq)

	defer func() {
		that.mu.Lock()
		state.roundRunning = false
		that.mu.Unlock()

		that.updateCanStart(state)
	}()

	if err := that.rooms.BeginRound(ctx, state.code, seq, ids); err != nil {
		that.roundFailed(ctx, state, ids, "begin round", err)
		return
	}

	if err := that.replicateCountdown(ctx, state); err != nil {
		that.roundFailed(ctx, state, ids, "replicate countdown", err)
		return
	}

	if err := that.captureOwn(ctx, state, that.deps.Timings.HostSettle); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("host capture failed, aborting round", "error", err)
		that.abortRound(ctx, state, ids, entity.RoundErrorInvalidGesture)
		return
	}

	room, err := that.awaitGestures(ctx, state)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("gestures not available, aborting round", "error", err)
		that.abortRound(ctx, state, ids, entity.RoundErrorInvalidGesture)
		return
	}

	anchor := room.Anchor()
	other := room.Opponent(anchor.ID)

	outcome, err := engine.ResolvePtr(anchor.Gesture, other.Gesture)
	if err != nil {
		log.Warn("round not resolvable, aborting round", "error", err)
		that.abortRound(ctx, state, ids, entity.RoundErrorInvalidGesture)
		return
	}

	score1, score2 := anchor.Score, other.Score
	switch outcome {
	case entity.OutcomeWin:
		score1++
	case entity.OutcomeLoss:
		score2++
	}

	that.mu.Lock()
	roundsPlayed := state.round.RoundsPlayed + 1
	that.mu.Unlock()

	result := &entity.RoundResult{
		Seq:          seq,
		AnchorID:     anchor.ID,
		Outcome:      outcome,
		Gesture1:     *anchor.Gesture,
		Gesture2:     *other.Gesture,
		Score1:       score1,
		Score2:       score2,
		RoundsPlayed: roundsPlayed,
	}

	if err = that.rooms.PublishResult(ctx, state.code, result, map[string]int{anchor.ID: score1, other.ID: score2}); err != nil {
		that.roundFailed(ctx, state, ids, "publish result", err)
		return
	}

	if err = that.rooms.ResetRound(ctx, state.code, ids); err != nil {
		that.roundFailed(ctx, state, ids, "reset round", err)
		return
	}

	log.Info("round resolved", "outcome", outcome, "anchor", anchor.ID)

	if err = pkg.Sleep(ctx, that.deps.Clock, that.deps.Timings.ClearDelay); err != nil {
		return
	}

	if err = that.rooms.ClearResult(ctx, state.code); err != nil {
		log.Error("failed to clear result", "error", err)
	}
}

// replicateCountdown - every tick is its own write so both clients show it.
func (that *Session) replicateCountdown(ctx context.Context, state *roomState) error {
	timings := that.deps.Timings

	for value := timings.CountdownStart; value >= 0; value-- {
		if err := that.rooms.SetCountdown(ctx, state.code, &value); err != nil {
			return err
		}

		delay := timings.CountdownTick
		if value == 0 {
			delay = timings.GoHold
		}

		if err := pkg.Sleep(ctx, that.deps.Clock, delay); err != nil {
			return err
		}
	}

	if err := that.rooms.SetCountdown(ctx, state.code, nil); err != nil {
		return err
	}

	return that.rooms.SetPlaying(ctx, state.code, true)
}

// captureOwn - settles, captures with retries and publishes the local gesture.
// Nothing is published when no clear gesture was found.
func (that *Session) captureOwn(ctx context.Context, state *roomState, settle time.Duration) error {
	if err := pkg.Sleep(ctx, that.deps.Clock, settle); err != nil {
		return err
	}

	captured, err := that.deps.Capturer.Capture(ctx)
	if err != nil {
		return err
	}

	that.deps.Presenter.Present(gestureEvent(captured))

	return that.rooms.SetGesture(ctx, state.code, state.participantID, captured)
}

func (that *Session) guestCapture(ctx context.Context, state *roomState, seq int) {
	log := that.logger.With("method", "guestCapture", "code", state.code, "seq", seq)

	if err := pkg.Sleep(ctx, that.deps.Clock, that.deps.Timings.GuestSettle); err != nil {
		return
	}

	captured, err := that.deps.Capturer.Capture(ctx)
	if err != nil {
		log.Warn("no gesture captured, the host will abort the round", "error", err)
		return
	}

	that.mu.Lock()
	stillPlaying := that.room == state && state.round.Seq == seq && state.round.IsPlaying
	that.mu.Unlock()

	if !stillPlaying {
		log.Debug("round ended before the gesture was captured")
		return
	}

	that.deps.Presenter.Present(gestureEvent(captured))

	if err = that.rooms.SetGesture(ctx, state.code, state.participantID, captured); err != nil {
		log.Error("failed to publish gesture", "error", err)
	}
}

// awaitGestures - polls until both participants published a gesture, with a hard deadline.
// Returns the room as read when both gestures were present.
func (that *Session) awaitGestures(ctx context.Context, state *roomState) (*entity.Room, error) {
	log := that.logger.With("method", "awaitGestures", "code", state.code)
	timings := that.deps.Timings

	var ready *entity.Room
	operation := func() error {
		room, err := that.rooms.Get(ctx, state.code)
		if err != nil {
			if errors.Is(err, apperror.ErrRoomNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}

		participants := room.OrderedParticipants()
		if len(participants) < entity.MaxParticipants {
			return backoff.Permanent(errPeerLeft)
		}

		if !participants[0].HasGesture() || !participants[1].HasGesture() {
			return errWaitingForGestures
		}

		ready = room
		return nil
	}

	policy := &backoff.ExponentialBackOff{
		InitialInterval:     timings.ReconcileInitial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         timings.ReconcileMax,
		MaxElapsedTime:      timings.ReconcileDeadline,
		Stop:                backoff.Stop,
		Clock:               pkg.BackoffClock{Clock: that.deps.Clock},
	}
	policy.Reset()

	notify := func(err error, next time.Duration) {
		log.Debug("gestures not ready yet", "error", err, "next", next)
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(policy, ctx), notify, pkg.BackoffClock{Clock: that.deps.Clock}.NewTimer())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrIndeterminateGesture, err)
	}

	return ready, nil
}

// roundFailed - a round write did not reach the store. The host sees the cause,
// both sides get the round aborted so the room does not stay mid round.
func (that *Session) roundFailed(ctx context.Context, state *roomState, ids []string, stage string, err error) {
	if ctx.Err() != nil {
		return
	}

	err = operationError(stage, err)
	that.logger.Error("round write failed, aborting round", "code", state.code, "error", err)

	that.deps.Presenter.Present(Event{Type: EventError, Payload: ErrorPayload{Code: entity.RoundErrorStore, Message: err.Error()}})
	that.abortRound(ctx, state, ids, entity.RoundErrorStore)
}

// abortRound - publishes the error tag and resets the round for both sides.
func (that *Session) abortRound(ctx context.Context, state *roomState, ids []string, tag string) {
	log := that.logger.With("method", "abortRound", "code", state.code, "tag", tag)

	that.mu.Lock()
	errorSeq := max(state.round.ErrorSeq, state.lastErrorSeq) + 1
	that.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, that.deps.Timings.OperationTimeout)
	err := that.rooms.AbortRound(writeCtx, state.code, tag, errorSeq, ids)
	cancel()

	if err != nil {
		log.Error("failed to abort round", "error", err)
		return
	}

	if err = pkg.Sleep(ctx, that.deps.Clock, that.deps.Timings.ClearDelay); err != nil {
		return
	}

	if err = that.rooms.ClearError(ctx, state.code); err != nil {
		log.Error("failed to clear round error", "error", err)
	}
}

func equalCountdown(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

// operationError - deadline failures of store operations are reported as timeouts.
func operationError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperror.ErrTimeout) {
		return fmt.Errorf("%w: %s: %w", apperror.ErrTimeout, operation, err)
	}

	return fmt.Errorf("%s: %w", operation, err)
}
