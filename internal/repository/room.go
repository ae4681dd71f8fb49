package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
	"github.com/rocketscienceinc/rps-online/internal/entity"
	"github.com/rocketscienceinc/rps-online/internal/repository/storage"
)

const roomsRoot = "rooms"

// RoomRepository maps the room document onto tree paths: rooms/<code>/{hostId,status,createdAt,players,roundState}.
type RoomRepository struct {
	tree storage.Tree
}

func NewRoomRepository(tree storage.Tree) *RoomRepository {
	return &RoomRepository{
		tree: tree,
	}
}

func roomPath(code string, fields ...string) string {
	return strings.Join(append([]string{roomsRoot, code}, fields...), "/")
}

func participantDoc(participant *entity.Participant) map[string]any {
	return map[string]any{
		"id":          participant.ID,
		"displayName": participant.DisplayName,
		"gesture":     participant.Gesture,
		"ready":       participant.Ready,
		"score":       participant.Score,
		"isHost":      participant.IsHost,
		"joinedAt":    storage.ServerTimestamp,
	}
}

// resetFields - clears the round and every listed participant's gesture.
// Only removals touch participant paths, so a participant who left in the meantime is not recreated.
func resetFields(updates map[string]any, participantIDs []string) map[string]any {
	updates["status"] = entity.StatusReady
	updates["roundState/isPlaying"] = false
	updates["roundState/countdown"] = nil

	for _, id := range participantIDs {
		updates["players/"+id+"/gesture"] = nil
		updates["players/"+id+"/ready"] = nil
	}

	return updates
}

// Exists - checks if a room with the code is stored.
func (that *RoomRepository) Exists(ctx context.Context, code string) (bool, error) {
	found, err := that.tree.Get(ctx, roomPath(code, "hostId"), nil)
	if err != nil {
		return false, fmt.Errorf("failed to check room %s: %w", code, err)
	}

	return found, nil
}

// Create - writes the whole initial room document in one write.
func (that *RoomRepository) Create(ctx context.Context, code string, host *entity.Participant) error {
	room := map[string]any{
		"code":      code,
		"hostId":    host.ID,
		"status":    entity.StatusWaiting,
		"createdAt": storage.ServerTimestamp,
		"players": map[string]any{
			host.ID: participantDoc(host),
		},
		"roundState": map[string]any{
			"isPlaying":    false,
			"seq":          0,
			"roundsPlayed": 0,
			"errorSeq":     0,
		},
	}

	if err := that.tree.Set(ctx, roomPath(code), room); err != nil {
		return fmt.Errorf("failed to create room %s: %w", code, err)
	}

	return nil
}

// Get - reads the room once.
func (that *RoomRepository) Get(ctx context.Context, code string) (*entity.Room, error) {
	var room entity.Room

	found, err := that.tree.Get(ctx, roomPath(code), &room)
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", code, err)
	}

	if !found || room.HostID == "" {
		return nil, apperror.ErrRoomNotFound
	}

	room.Code = code
	for id, participant := range room.Players {
		if participant != nil && participant.ID == "" {
			participant.ID = id
		}
	}

	return &room, nil
}

func (that *RoomRepository) Delete(ctx context.Context, code string) error {
	if err := that.tree.Remove(ctx, roomPath(code)); err != nil {
		return fmt.Errorf("failed to delete room %s: %w", code, err)
	}

	return nil
}

func (that *RoomRepository) Players(ctx context.Context, code string) (map[string]*entity.Participant, error) {
	players := make(map[string]*entity.Participant)

	if _, err := that.tree.Get(ctx, roomPath(code, "players"), &players); err != nil {
		return nil, fmt.Errorf("failed to get players of %s: %w", code, err)
	}

	return players, nil
}

func (that *RoomRepository) AddParticipant(ctx context.Context, code string, participant *entity.Participant) error {
	if err := that.tree.Set(ctx, roomPath(code, "players", participant.ID), participantDoc(participant)); err != nil {
		return fmt.Errorf("failed to add participant %s to %s: %w", participant.ID, code, err)
	}

	return nil
}

func (that *RoomRepository) RemoveParticipant(ctx context.Context, code, participantID string) error {
	if err := that.tree.Remove(ctx, roomPath(code, "players", participantID)); err != nil {
		return fmt.Errorf("failed to remove participant %s from %s: %w", participantID, code, err)
	}

	return nil
}

func (that *RoomRepository) SetStatus(ctx context.Context, code, status string) error {
	if err := that.tree.Set(ctx, roomPath(code, "status"), status); err != nil {
		return fmt.Errorf("failed to set status of %s: %w", code, err)
	}

	return nil
}

// SetGesture - publishes the participant's own gesture and marks it ready.
func (that *RoomRepository) SetGesture(ctx context.Context, code, participantID string, gesture entity.Gesture) error {
	err := that.tree.Update(ctx, roomPath(code, "players", participantID), map[string]any{
		"gesture": gesture,
		"ready":   true,
	})
	if err != nil {
		return fmt.Errorf("failed to set gesture of %s: %w", participantID, err)
	}

	return nil
}

// BeginRound - host only. Opens round seq with leftovers of the previous round cleared.
func (that *RoomRepository) BeginRound(ctx context.Context, code string, seq int, participantIDs []string) error {
	updates := resetFields(make(map[string]any), participantIDs)
	updates["status"] = entity.StatusPlaying
	updates["roundState/seq"] = seq
	updates["roundState/result"] = nil
	updates["roundState/error"] = nil

	if err := that.tree.Update(ctx, roomPath(code), updates); err != nil {
		return fmt.Errorf("failed to begin round %d in %s: %w", seq, code, err)
	}

	return nil
}

// SetCountdown - host only. nil clears the countdown.
func (that *RoomRepository) SetCountdown(ctx context.Context, code string, value *int) error {
	var countdown any
	if value != nil {
		countdown = *value
	}

	if err := that.tree.Set(ctx, roomPath(code, "roundState", "countdown"), countdown); err != nil {
		return fmt.Errorf("failed to set countdown of %s: %w", code, err)
	}

	return nil
}

// SetPlaying - host only.
func (that *RoomRepository) SetPlaying(ctx context.Context, code string, playing bool) error {
	if err := that.tree.Set(ctx, roomPath(code, "roundState", "isPlaying"), playing); err != nil {
		return fmt.Errorf("failed to set playing flag of %s: %w", code, err)
	}

	return nil
}

// PublishResult - host only. Writes the anchor-perspective result with both new scores.
func (that *RoomRepository) PublishResult(ctx context.Context, code string, result *entity.RoundResult, scores map[string]int) error {
	updates := map[string]any{
		"roundState/result":       result,
		"roundState/roundsPlayed": result.RoundsPlayed,
	}

	for id, score := range scores {
		updates["players/"+id+"/score"] = score
	}

	if err := that.tree.Update(ctx, roomPath(code), updates); err != nil {
		return fmt.Errorf("failed to publish result of round %d in %s: %w", result.Seq, code, err)
	}

	return nil
}

// ResetRound - host only. Makes the room ready for the next round.
func (that *RoomRepository) ResetRound(ctx context.Context, code string, participantIDs []string) error {
	if err := that.tree.Update(ctx, roomPath(code), resetFields(make(map[string]any), participantIDs)); err != nil {
		return fmt.Errorf("failed to reset round in %s: %w", code, err)
	}

	return nil
}

// AbortRound - host only. Publishes the error and resets the round in the same write.
func (that *RoomRepository) AbortRound(ctx context.Context, code, tag string, errorSeq int, participantIDs []string) error {
	updates := resetFields(make(map[string]any), participantIDs)
	updates["roundState/error"] = tag
	updates["roundState/errorSeq"] = errorSeq

	if err := that.tree.Update(ctx, roomPath(code), updates); err != nil {
		return fmt.Errorf("failed to abort round in %s: %w", code, err)
	}

	return nil
}

// ClearResult - host only.
func (that *RoomRepository) ClearResult(ctx context.Context, code string) error {
	if err := that.tree.Remove(ctx, roomPath(code, "roundState", "result")); err != nil {
		return fmt.Errorf("failed to clear result in %s: %w", code, err)
	}

	return nil
}

// ClearError - host only.
func (that *RoomRepository) ClearError(ctx context.Context, code string) error {
	if err := that.tree.Remove(ctx, roomPath(code, "roundState", "error")); err != nil {
		return fmt.Errorf("failed to clear error in %s: %w", code, err)
	}

	return nil
}

// WatchPlayers - membership of the room. An empty map means nobody is left.
func (that *RoomRepository) WatchPlayers(ctx context.Context, code string, handler func(map[string]*entity.Participant)) (storage.Subscription, error) {
	sub, err := that.tree.Subscribe(ctx, roomPath(code, "players"), func(raw []byte) {
		players := make(map[string]*entity.Participant)
		if err := json.Unmarshal(raw, &players); err != nil || players == nil {
			players = make(map[string]*entity.Participant)
		}
		handler(players)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch players of %s: %w", code, err)
	}

	return sub, nil
}

// WatchPlayerChanges - per participant changes. A removed participant is delivered as nil.
func (that *RoomRepository) WatchPlayerChanges(ctx context.Context, code string, handler func(string, *entity.Participant)) (storage.Subscription, error) {
	sub, err := storage.SubscribeChildren(ctx, that.tree, roomPath(code, "players"), func(id string, raw []byte) {
		var participant *entity.Participant
		if err := json.Unmarshal(raw, &participant); err != nil {
			return
		}
		if participant != nil && participant.ID == "" {
			participant.ID = id
		}
		handler(id, participant)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch player changes of %s: %w", code, err)
	}

	return sub, nil
}

// WatchRound - the round sub-document. nil means the room has no round state.
func (that *RoomRepository) WatchRound(ctx context.Context, code string, handler func(*entity.Round)) (storage.Subscription, error) {
	sub, err := that.tree.Subscribe(ctx, roomPath(code, "roundState"), func(raw []byte) {
		var round *entity.Round
		if err := json.Unmarshal(raw, &round); err != nil {
			return
		}
		handler(round)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch round of %s: %w", code, err)
	}

	return sub, nil
}

// WatchHost - an empty host id means the room was deleted.
func (that *RoomRepository) WatchHost(ctx context.Context, code string, handler func(hostID string)) (storage.Subscription, error) {
	sub, err := that.tree.Subscribe(ctx, roomPath(code, "hostId"), func(raw []byte) {
		var hostID string
		_ = json.Unmarshal(raw, &hostID)
		handler(hostID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch host of %s: %w", code, err)
	}

	return sub, nil
}

// Ping - checks the store is reachable.
func (that *RoomRepository) Ping(ctx context.Context) error {
	if err := that.tree.Ping(ctx); err != nil {
		return fmt.Errorf("room store is not reachable: %w", err)
	}

	return nil
}
