package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/gomoku-backend/internal/apperror"
)

func TestNewRoom(t *testing.T) {
	// Given: a fresh room
	now := time.Now()
	room := NewRoom("room-1", "host-1", "friday night", PrivateType, now)

	// Then: the host is the only player and the room is waiting
	assert.Equal(t, StatusWaiting, room.Status)
	assert.Equal(t, RematchNone, room.RematchState)
	assert.Equal(t, "host-1", room.HostID())
	assert.True(t, room.HasPlayer("host-1"))
	assert.False(t, room.IsFull())
}

func TestRoom_AddPlayer(t *testing.T) {
	now := time.Now()

	t.Run("Second player fills the room", func(t *testing.T) {
		// Given: a waiting room with one player
		room := NewRoom("room-1", "host-1", "", PublicType, now)

		// When: a second player joins
		err := room.AddPlayer("guest-1", now)

		// Then: the room is full and still waiting
		require.NoError(t, err)
		assert.True(t, room.IsFull())
		assert.True(t, room.IsWaiting())
		assert.False(t, room.PlayerByID("guest-1").IsHost)
	})

	t.Run("Returns ErrRoomFull for a third player", func(t *testing.T) {
		// Given: a full room
		room := NewRoom("room-1", "host-1", "", PublicType, now)
		require.NoError(t, room.AddPlayer("guest-1", now))

		// When: one more player tries to join
		err := room.AddPlayer("guest-2", now)

		// Then: the join is rejected
		assert.ErrorIs(t, err, apperror.ErrRoomFull)
	})

	t.Run("Returns ErrRoomNotWaiting once playing", func(t *testing.T) {
		// Given: a room already in a match
		room := NewRoom("room-1", "host-1", "", PublicType, now)
		room.StartMatch("match-1")

		// When: a player tries to join
		err := room.AddPlayer("guest-1", now)

		// Then: the join is rejected
		assert.ErrorIs(t, err, apperror.ErrRoomNotWaiting)
	})
}

func TestRoom_RemovePlayer(t *testing.T) {
	now := time.Now()

	t.Run("Removes an existing player", func(t *testing.T) {
		room := NewRoom("room-1", "host-1", "", PublicType, now)
		require.NoError(t, room.AddPlayer("guest-1", now))

		err := room.RemovePlayer("guest-1")

		require.NoError(t, err)
		assert.False(t, room.HasPlayer("guest-1"))
	})

	t.Run("Returns ErrNotAPlayer for a stranger", func(t *testing.T) {
		room := NewRoom("room-1", "host-1", "", PublicType, now)

		err := room.RemovePlayer("stranger")

		assert.ErrorIs(t, err, apperror.ErrNotAPlayer)
	})
}

func TestRoom_MarkReady(t *testing.T) {
	now := time.Now()

	t.Run("Both ready only when the room is full", func(t *testing.T) {
		// Given: a waiting room with only the host, already ready
		room := NewRoom("room-1", "host-1", "", PublicType, now)
		require.NoError(t, room.MarkReady("host-1"))

		// Then: a lone ready player does not start anything
		assert.False(t, room.BothReady())

		// When: the second player joins and readies up
		require.NoError(t, room.AddPlayer("guest-1", now))
		require.NoError(t, room.MarkReady("guest-1"))

		// Then: the room is ready to start
		assert.True(t, room.BothReady())
	})

	t.Run("Returns ErrAlreadyReady on a second ready", func(t *testing.T) {
		room := NewRoom("room-1", "host-1", "", PublicType, now)
		require.NoError(t, room.MarkReady("host-1"))

		err := room.MarkReady("host-1")

		assert.ErrorIs(t, err, apperror.ErrAlreadyReady)
	})

	t.Run("Returns ErrNotAPlayer for a stranger", func(t *testing.T) {
		room := NewRoom("room-1", "host-1", "", PublicType, now)

		err := room.MarkReady("stranger")

		assert.ErrorIs(t, err, apperror.ErrNotAPlayer)
	})

	t.Run("Returns ErrRoomNotWaiting once playing", func(t *testing.T) {
		room := NewRoom("room-1", "host-1", "", PublicType, now)
		require.NoError(t, room.AddPlayer("guest-1", now))
		room.StartMatch("match-1")

		err := room.MarkReady("guest-1")

		assert.ErrorIs(t, err, apperror.ErrRoomNotWaiting)
	})
}

func TestRoom_Complete(t *testing.T) {
	now := time.Now()

	newPlayingRoom := func() *Room {
		room := NewRoom("room-1", "host-1", "", PublicType, now)
		require.NoError(t, room.AddPlayer("guest-1", now))
		room.StartMatch("match-1")
		return room
	}

	t.Run("Assigns win and lose results", func(t *testing.T) {
		// Given: a playing room
		room := newPlayingRoom()

		// When: the host wins
		room.Complete("host-1", now)

		// Then: results are mirrored and the room is finished
		assert.True(t, room.IsFinished())
		assert.Equal(t, ResultWin, room.PlayerByID("host-1").Result)
		assert.Equal(t, ResultLose, room.PlayerByID("guest-1").Result)
		require.NotNil(t, room.GameEndedAt)
	})

	t.Run("Empty winner means draw for both", func(t *testing.T) {
		room := newPlayingRoom()

		room.Complete("", now)

		assert.Equal(t, ResultDraw, room.PlayerByID("host-1").Result)
		assert.Equal(t, ResultDraw, room.PlayerByID("guest-1").Result)
	})

	t.Run("Second completion changes nothing", func(t *testing.T) {
		// Given: a room already completed with a host win
		room := newPlayingRoom()
		room.Complete("host-1", now)

		// When: completing again with a different outcome
		room.Complete("guest-1", now.Add(time.Minute))

		// Then: the first outcome stands
		assert.Equal(t, ResultWin, room.PlayerByID("host-1").Result)
		assert.Equal(t, ResultLose, room.PlayerByID("guest-1").Result)
	})
}

func TestRoom_Rematch(t *testing.T) {
	now := time.Now()

	newFinishedRoom := func() *Room {
		room := NewRoom("room-1", "host-1", "", PublicType, now)
		require.NoError(t, room.AddPlayer("guest-1", now))
		room.StartMatch("match-1")
		room.Complete("host-1", now)
		return room
	}

	t.Run("Request and accept happy path", func(t *testing.T) {
		// Given: a finished room
		room := newFinishedRoom()

		// When: the loser requests and the winner accepts
		require.NoError(t, room.RequestRematch("guest-1"))
		require.NoError(t, room.AcceptRematch("host-1", "room-2"))

		// Then: the negotiation is closed and points at the follow-up room
		assert.Equal(t, RematchAccepted, room.RematchState)
		assert.Equal(t, "room-2", room.NewRoomID)
	})

	t.Run("Request before the game finished is rejected", func(t *testing.T) {
		room := NewRoom("room-1", "host-1", "", PublicType, now)
		require.NoError(t, room.AddPlayer("guest-1", now))
		room.StartMatch("match-1")

		err := room.RequestRematch("guest-1")

		assert.ErrorIs(t, err, apperror.ErrGameNotFinished)
	})

	t.Run("Second request is rejected", func(t *testing.T) {
		room := newFinishedRoom()
		require.NoError(t, room.RequestRematch("guest-1"))

		err := room.RequestRematch("host-1")

		assert.ErrorIs(t, err, apperror.ErrAlreadyRequested)
	})

	t.Run("Accept without a request is rejected", func(t *testing.T) {
		room := newFinishedRoom()

		err := room.AcceptRematch("host-1", "room-2")

		assert.ErrorIs(t, err, apperror.ErrNoRematchRequest)
	})

	t.Run("Requester cannot accept their own request", func(t *testing.T) {
		room := newFinishedRoom()
		require.NoError(t, room.RequestRematch("guest-1"))

		err := room.AcceptRematch("guest-1", "room-2")

		assert.ErrorIs(t, err, apperror.ErrOwnRematchAccept)
	})

	t.Run("Strangers cannot take part", func(t *testing.T) {
		room := newFinishedRoom()

		assert.ErrorIs(t, room.RequestRematch("stranger"), apperror.ErrNotAPlayer)

		require.NoError(t, room.RequestRematch("guest-1"))
		assert.ErrorIs(t, room.AcceptRematch("stranger", "room-2"), apperror.ErrNotAPlayer)
	})
}

func TestRoom_Reopen(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	// Given: a finished room with results and ready flags set
	room := NewRoom("room-1", "host-1", "old name", PrivateType, now)
	require.NoError(t, room.AddPlayer("guest-1", now))
	require.NoError(t, room.MarkReady("host-1"))
	require.NoError(t, room.MarkReady("guest-1"))
	room.StartMatch("match-1")
	room.Complete("host-1", now)

	// When: reopening for a rematch
	next := room.Reopen("room-2", later)

	// Then: the follow-up room keeps players and host but resets all state
	assert.Equal(t, "room-2", next.ID)
	assert.Equal(t, StatusWaiting, next.Status)
	assert.Equal(t, "host-1", next.HostID())
	assert.True(t, next.HasPlayer("guest-1"))
	assert.Empty(t, next.MatchID)
	assert.Equal(t, RematchNone, next.RematchState)

	for _, player := range next.Players {
		assert.False(t, player.Ready)
		assert.Empty(t, player.Result)
	}
}
