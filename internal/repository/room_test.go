package repository

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
	"github.com/rocketscienceinc/rps-online/internal/repository/storage"
	"github.com/rocketscienceinc/rps-online/testing/suite"
)

const testCode = "AB12C9"

func newMemoryRepository() *RoomRepository {
	return NewRoomRepository(storage.NewMemoryTree(clockwork.NewRealClock()))
}

func host() *entity.Participant {
	return &entity.Participant{ID: "host", DisplayName: "Jugador 1 (Anfitrión)", IsHost: true}
}

func guest() *entity.Participant {
	return &entity.Participant{ID: "guest", DisplayName: "Jugador 2"}
}

func TestRoomRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Create_Success", func(t *testing.T) {
		repo := newMemoryRepository()

		// When: the host creates a room
		err := repo.Create(ctx, testCode, host())
		require.NoError(t, err)

		// Then: the room is waiting with the host as the only participant
		room, err := repo.Get(ctx, testCode)
		require.NoError(t, err)
		assert.Equal(t, testCode, room.Code)
		assert.Equal(t, "host", room.HostID)
		assert.Equal(t, entity.StatusWaiting, room.Status)
		assert.NotZero(t, room.CreatedAt)
		require.Len(t, room.Players, 1)
		assert.True(t, room.Players["host"].IsHost)
		assert.NotZero(t, room.Players["host"].JoinedAt)
		assert.True(t, room.RoundState.IsIdle())
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		repo := newMemoryRepository()

		// When: reading a room that was never created
		room, err := repo.Get(ctx, "ZZZZZZ")

		// Then: the room is not found
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)
		assert.Nil(t, room)

		exists, err := repo.Exists(ctx, "ZZZZZZ")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestRoomRepository_Membership(t *testing.T) {
	ctx := context.Background()

	// Given: a room with host and guest
	repo := newMemoryRepository()
	require.NoError(t, repo.Create(ctx, testCode, host()))
	require.NoError(t, repo.AddParticipant(ctx, testCode, guest()))

	// When: reading the room
	room, err := repo.Get(ctx, testCode)
	require.NoError(t, err)

	// Then: the host joined first and is the anchor
	assert.True(t, room.IsFull())
	assert.Equal(t, "host", room.Anchor().ID)
	assert.Equal(t, "guest", room.Opponent("host").ID)

	// When: the guest leaves
	require.NoError(t, repo.RemoveParticipant(ctx, testCode, "guest"))

	// Then: only the host is left
	players, err := repo.Players(ctx, testCode)
	require.NoError(t, err)
	assert.Len(t, players, 1)

	// When: the room is deleted twice
	require.NoError(t, repo.Delete(ctx, testCode))
	require.NoError(t, repo.Delete(ctx, testCode))

	// Then: it is unreachable
	_, err = repo.Get(ctx, testCode)
	require.ErrorIs(t, err, apperror.ErrRoomNotFound)
}

func TestRoomRepository_RoundLifecycle(t *testing.T) {
	ctx := context.Background()
	ids := []string{"host", "guest"}

	// Given: a full room where both participants published a gesture
	repo := newMemoryRepository()
	require.NoError(t, repo.Create(ctx, testCode, host()))
	require.NoError(t, repo.AddParticipant(ctx, testCode, guest()))
	require.NoError(t, repo.BeginRound(ctx, testCode, 1, ids))

	three := 3
	require.NoError(t, repo.SetCountdown(ctx, testCode, &three))
	require.NoError(t, repo.SetCountdown(ctx, testCode, nil))
	require.NoError(t, repo.SetPlaying(ctx, testCode, true))
	require.NoError(t, repo.SetGesture(ctx, testCode, "host", entity.Rock))
	require.NoError(t, repo.SetGesture(ctx, testCode, "guest", entity.Scissors))

	room, err := repo.Get(ctx, testCode)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPlaying, room.Status)
	assert.True(t, room.RoundState.IsPlaying)
	assert.Equal(t, 1, room.RoundState.Seq)
	assert.Equal(t, entity.Rock, *room.Players["host"].Gesture)
	assert.True(t, room.Players["guest"].Ready)

	// When: the host publishes the result and resets the round
	result := &entity.RoundResult{
		Seq: 1, AnchorID: "host", Outcome: entity.OutcomeWin,
		Gesture1: entity.Rock, Gesture2: entity.Scissors, Score1: 1, Score2: 0, RoundsPlayed: 1,
	}
	require.NoError(t, repo.PublishResult(ctx, testCode, result, map[string]int{"host": 1, "guest": 0}))
	require.NoError(t, repo.ResetRound(ctx, testCode, ids))

	// Then: the result stays until cleared and gestures are gone
	room, err = repo.Get(ctx, testCode)
	require.NoError(t, err)
	assert.Equal(t, result, room.RoundState.Result)
	assert.Equal(t, 1, room.RoundState.RoundsPlayed)
	assert.False(t, room.RoundState.IsPlaying)
	assert.Equal(t, 1, room.Players["host"].Score)
	assert.Nil(t, room.Players["host"].Gesture)
	assert.False(t, room.Players["guest"].Ready)

	require.NoError(t, repo.ClearResult(ctx, testCode))
	room, err = repo.Get(ctx, testCode)
	require.NoError(t, err)
	assert.True(t, room.RoundState.IsIdle())
}

func TestRoomRepository_AbortRound(t *testing.T) {
	ctx := context.Background()
	ids := []string{"host", "guest"}

	// Given: a round where only the host published a gesture
	repo := newMemoryRepository()
	require.NoError(t, repo.Create(ctx, testCode, host()))
	require.NoError(t, repo.AddParticipant(ctx, testCode, guest()))
	require.NoError(t, repo.BeginRound(ctx, testCode, 1, ids))
	require.NoError(t, repo.SetPlaying(ctx, testCode, true))
	require.NoError(t, repo.SetGesture(ctx, testCode, "host", entity.Paper))

	// When: the host aborts
	require.NoError(t, repo.AbortRound(ctx, testCode, entity.RoundErrorInvalidGesture, 1, ids))

	// Then: the error is published and the round reset
	room, err := repo.Get(ctx, testCode)
	require.NoError(t, err)
	require.NotNil(t, room.RoundState.Error)
	assert.Equal(t, entity.RoundErrorInvalidGesture, *room.RoundState.Error)
	assert.Equal(t, 1, room.RoundState.ErrorSeq)
	assert.False(t, room.RoundState.IsPlaying)
	assert.Nil(t, room.Players["host"].Gesture)
	assert.Zero(t, room.Players["host"].Score)

	require.NoError(t, repo.ClearError(ctx, testCode))
	room, err = repo.Get(ctx, testCode)
	require.NoError(t, err)
	assert.Nil(t, room.RoundState.Error)
}

func TestRoomRepository_ResetAfterLeave(t *testing.T) {
	ctx := context.Background()
	ids := []string{"host", "guest"}

	// Given: a round begun with both participants
	repo := newMemoryRepository()
	require.NoError(t, repo.Create(ctx, testCode, host()))
	require.NoError(t, repo.AddParticipant(ctx, testCode, guest()))
	require.NoError(t, repo.BeginRound(ctx, testCode, 1, ids))
	require.NoError(t, repo.SetGesture(ctx, testCode, "guest", entity.Rock))

	// When: the guest leaves and the host resets and aborts with the old ids
	require.NoError(t, repo.RemoveParticipant(ctx, testCode, "guest"))
	require.NoError(t, repo.ResetRound(ctx, testCode, ids))
	require.NoError(t, repo.AbortRound(ctx, testCode, entity.RoundErrorInvalidGesture, 1, ids))

	// Then: the guest stays gone and the room can be joined again
	room, err := repo.Get(ctx, testCode)
	require.NoError(t, err)
	assert.Len(t, room.Players, 1)
	assert.NotContains(t, room.Players, "guest")
	assert.False(t, room.IsFull())
	assert.Equal(t, "Jugador 1 (Anfitrión)", room.Players["host"].DisplayName)
}

func TestRoomRepository_Watch(t *testing.T) {
	ctx := context.Background()

	// Given: a created room and watchers on players, round and host
	repo := newMemoryRepository()
	require.NoError(t, repo.Create(ctx, testCode, host()))

	var (
		mu        sync.Mutex
		counts    []int
		countdown []int
		hosts     []string
		changed   []string
	)

	players, err := repo.WatchPlayers(ctx, testCode, func(players map[string]*entity.Participant) {
		mu.Lock()
		defer mu.Unlock()
		counts = append(counts, len(players))
	})
	require.NoError(t, err)
	defer players.Close()

	round, err := repo.WatchRound(ctx, testCode, func(round *entity.Round) {
		mu.Lock()
		defer mu.Unlock()
		if round != nil && round.Countdown != nil {
			countdown = append(countdown, *round.Countdown)
		}
	})
	require.NoError(t, err)
	defer round.Close()

	hostWatch, err := repo.WatchHost(ctx, testCode, func(hostID string) {
		mu.Lock()
		defer mu.Unlock()
		hosts = append(hosts, hostID)
	})
	require.NoError(t, err)
	defer hostWatch.Close()

	changes, err := repo.WatchPlayerChanges(ctx, testCode, func(id string, participant *entity.Participant) {
		mu.Lock()
		defer mu.Unlock()
		if participant != nil && participant.Ready {
			changed = append(changed, id)
		}
	})
	require.NoError(t, err)
	defer changes.Close()

	// When: a guest joins, the host counts down, the guest gets ready and the room is deleted
	require.NoError(t, repo.AddParticipant(ctx, testCode, guest()))
	for value := 3; value >= 0; value-- {
		require.NoError(t, repo.SetCountdown(ctx, testCode, &value))
	}
	require.NoError(t, repo.SetGesture(ctx, testCode, "guest", entity.Paper))
	require.NoError(t, repo.Delete(ctx, testCode))

	// Then: every watcher saw its part
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(hosts) == 2 && len(countdown) == 4 && len(changed) == 1 && len(counts) == 4
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3, 2, 1, 0}, countdown)
	assert.Equal(t, []string{"host", ""}, hosts)
	assert.Equal(t, []string{"guest"}, changed)
	assert.Equal(t, []int{1, 2, 2, 0}, counts)
}

func TestRoomRepository_Redis(t *testing.T) {
	ctx, st := suite.New(t)

	repo := NewRoomRepository(storage.NewRedisTree(st.Logger, st.Storage, "rps:", time.Minute))

	// Given: a room created by the host
	require.NoError(t, repo.Create(ctx, testCode, host()))
	require.NoError(t, repo.AddParticipant(ctx, testCode, guest()))

	// When: the guest publishes its gesture
	require.NoError(t, repo.SetGesture(ctx, testCode, "guest", entity.Scissors))

	// Then: the room round-trips through Redis
	room, err := repo.Get(ctx, testCode)
	require.NoError(t, err)
	assert.Equal(t, "host", room.Anchor().ID)
	require.NotNil(t, room.Players["guest"].Gesture)
	assert.Equal(t, entity.Scissors, *room.Players["guest"].Gesture)

	// And: deleting the room makes it unreachable
	require.NoError(t, repo.Delete(ctx, testCode))
	exists, err := repo.Exists(ctx, testCode)
	require.NoError(t, err)
	assert.False(t, exists)
}
