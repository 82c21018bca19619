package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/gomoku-backend/internal/apperror"
	"github.com/rocketscienceinc/gomoku-backend/internal/entity"
	"github.com/rocketscienceinc/gomoku-backend/testing/suite"
)

func TestRoomRepository_Create(t *testing.T) {
	t.Run("Create_Success", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		// Given: a fresh private room
		room := entity.NewRoom("room-1", "host-1", "", entity.PrivateType, time.Now())
		room.JoinCode = "AB12"

		// When: Create is called
		err := roomRepo.Create(ctx, room)

		// Then: the room is stored and the host is bound to it
		require.NoError(t, err)

		stored, err := roomRepo.GetByID(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, "host-1", stored.HostID())

		boundID, err := roomRepo.ActiveRoomID(ctx, "host-1")
		require.NoError(t, err)
		assert.Equal(t, "room-1", boundID)
	})

	t.Run("Create_HostAlreadyBound", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		// Given: the host already owns a room
		first := entity.NewRoom("room-1", "host-1", "", entity.PublicType, time.Now())
		require.NoError(t, roomRepo.Create(ctx, first))

		// When: the same host opens a second room
		second := entity.NewRoom("room-2", "host-1", "", entity.PublicType, time.Now())
		err := roomRepo.Create(ctx, second)

		// Then: the create is rejected
		assert.ErrorIs(t, err, apperror.ErrUserAlreadyInRoom)
	})

	t.Run("Create_JoinCodeTaken", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		// Given: a room holding the join code
		first := entity.NewRoom("room-1", "host-1", "", entity.PrivateType, time.Now())
		first.JoinCode = "AB12"
		require.NoError(t, roomRepo.Create(ctx, first))

		// When: a different host reuses the code
		second := entity.NewRoom("room-2", "host-2", "", entity.PrivateType, time.Now())
		second.JoinCode = "AB12"
		err := roomRepo.Create(ctx, second)

		// Then: the collision is reported for a retry
		assert.ErrorIs(t, err, ErrJoinCodeTaken)
	})
}

func TestRoomRepository_GetByJoinCode(t *testing.T) {
	t.Run("GetByJoinCode_Success", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		room := entity.NewRoom("room-1", "host-1", "", entity.PrivateType, time.Now())
		room.JoinCode = "XY34"
		require.NoError(t, roomRepo.Create(ctx, room))

		// When: resolving the join code
		found, err := roomRepo.GetByJoinCode(ctx, "XY34")

		// Then: the right room comes back
		require.NoError(t, err)
		assert.Equal(t, "room-1", found.ID)
	})

	t.Run("GetByJoinCode_NotFound", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		_, err := roomRepo.GetByJoinCode(ctx, "ZZZZ")

		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})
}

func TestRoomRepository_Update(t *testing.T) {
	t.Run("Update_JoinBindsPlayer", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		room := entity.NewRoom("room-1", "host-1", "", entity.PublicType, time.Now())
		require.NoError(t, roomRepo.Create(ctx, room))

		// When: a second player joins through Update
		updated, err := roomRepo.Update(ctx, "room-1", func(r *entity.Room) error {
			return r.AddPlayer("guest-1", time.Now())
		}, "guest-1")

		// Then: the room is full and the joiner is bound
		require.NoError(t, err)
		assert.True(t, updated.IsFull())

		boundID, err := roomRepo.ActiveRoomID(ctx, "guest-1")
		require.NoError(t, err)
		assert.Equal(t, "room-1", boundID)
	})

	t.Run("Update_JoinerAlreadyBoundElsewhere", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		// Given: two rooms, the second player hosting their own
		require.NoError(t, roomRepo.Create(ctx, entity.NewRoom("room-1", "host-1", "", entity.PublicType, time.Now())))
		require.NoError(t, roomRepo.Create(ctx, entity.NewRoom("room-2", "host-2", "", entity.PublicType, time.Now())))

		// When: that player tries to join the first room
		_, err := roomRepo.Update(ctx, "room-1", func(r *entity.Room) error {
			return r.AddPlayer("host-2", time.Now())
		}, "host-2")

		// Then: the join is rejected
		assert.ErrorIs(t, err, apperror.ErrUserAlreadyInRoom)
	})

	t.Run("Update_LastLeaverDeletesWaitingRoom", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		room := entity.NewRoom("room-1", "host-1", "", entity.PrivateType, time.Now())
		room.JoinCode = "AB12"
		require.NoError(t, roomRepo.Create(ctx, room))

		// When: the only player leaves
		updated, err := roomRepo.Update(ctx, "room-1", func(r *entity.Room) error {
			return r.RemovePlayer("host-1")
		}, "host-1")

		// Then: the room, its join code and the binding are gone
		require.NoError(t, err)
		assert.Nil(t, updated)

		_, err = roomRepo.GetByID(ctx, "room-1")
		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)

		_, err = roomRepo.GetByJoinCode(ctx, "AB12")
		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)

		boundID, err := roomRepo.ActiveRoomID(ctx, "host-1")
		require.NoError(t, err)
		assert.Empty(t, boundID)
	})

	t.Run("Update_NotFound", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		_, err := roomRepo.Update(ctx, "missing", func(r *entity.Room) error { return nil })

		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})

	t.Run("Update_FinishClearsBindings", func(t *testing.T) {
		ctx, st := suite.New(t)

		roomRepo := NewRoomRepository(st.Redis)

		room := entity.NewRoom("room-1", "host-1", "", entity.PublicType, time.Now())
		require.NoError(t, roomRepo.Create(ctx, room))
		_, err := roomRepo.Update(ctx, "room-1", func(r *entity.Room) error {
			return r.AddPlayer("guest-1", time.Now())
		}, "guest-1")
		require.NoError(t, err)

		// When: the room finishes
		_, err = roomRepo.Update(ctx, "room-1", func(r *entity.Room) error {
			r.StartMatch("match-1")
			r.Complete("host-1", time.Now())
			return nil
		})
		require.NoError(t, err)

		// Then: both players are free to enter new rooms
		for _, userID := range []string{"host-1", "guest-1"} {
			boundID, err := roomRepo.ActiveRoomID(ctx, userID)
			require.NoError(t, err)
			assert.Empty(t, boundID)
		}
	})
}

func TestRoomRepository_UpdateWithMatch(t *testing.T) {
	ctx, st := suite.New(t)

	roomRepo := NewRoomRepository(st.Redis)
	matchRepo := NewMatchRepository(st.Redis)

	room := entity.NewRoom("room-1", "host-1", "", entity.PublicType, time.Now())
	require.NoError(t, roomRepo.Create(ctx, room))
	_, err := roomRepo.Update(ctx, "room-1", func(r *entity.Room) error {
		return r.AddPlayer("guest-1", time.Now())
	}, "guest-1")
	require.NoError(t, err)

	// When: the room starts a match in one transaction
	updated, match, err := roomRepo.UpdateWithMatch(ctx, "room-1", func(r *entity.Room) (*entity.Match, error) {
		m := entity.NewMatch("match-1", r.ID, "host-1", "guest-1", time.Now())
		r.StartMatch(m.ID)
		return m, nil
	})

	// Then: both the room and the match are persisted
	require.NoError(t, err)
	assert.True(t, updated.IsPlaying())
	assert.Equal(t, "match-1", match.ID)

	stored, err := matchRepo.GetByID(ctx, "match-1")
	require.NoError(t, err)
	assert.True(t, stored.IsOngoing())
	assert.Equal(t, "host-1", stored.PlayerBlack)
}

func TestRoomRepository_OldestWaitingPublicIDs(t *testing.T) {
	ctx, st := suite.New(t)

	roomRepo := NewRoomRepository(st.Redis)

	// Given: two waiting public rooms created in order and one private
	base := time.Now()
	first := entity.NewRoom("room-1", "host-1", "", entity.PublicType, base)
	second := entity.NewRoom("room-2", "host-2", "", entity.PublicType, base.Add(time.Second))
	private := entity.NewRoom("room-3", "host-3", "", entity.PrivateType, base)
	private.JoinCode = "AB12"

	require.NoError(t, roomRepo.Create(ctx, first))
	require.NoError(t, roomRepo.Create(ctx, second))
	require.NoError(t, roomRepo.Create(ctx, private))

	// When: listing the waiting queue
	ids, err := roomRepo.OldestWaitingPublicIDs(ctx)

	// Then: only public rooms appear, oldest first
	require.NoError(t, err)
	assert.Equal(t, []string{"room-1", "room-2"}, ids)

	// When: the oldest room fills up
	_, err = roomRepo.Update(ctx, "room-1", func(r *entity.Room) error {
		return r.AddPlayer("guest-1", time.Now())
	}, "guest-1")
	require.NoError(t, err)

	// Then: it leaves the queue
	ids, err = roomRepo.OldestWaitingPublicIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"room-2"}, ids)
}

func TestRoomRepository_CreateLinked(t *testing.T) {
	ctx, st := suite.New(t)

	roomRepo := NewRoomRepository(st.Redis)

	// Given: a finished room with a pending rematch request
	room := entity.NewRoom("room-1", "host-1", "", entity.PublicType, time.Now())
	require.NoError(t, roomRepo.Create(ctx, room))
	_, err := roomRepo.Update(ctx, "room-1", func(r *entity.Room) error {
		return r.AddPlayer("guest-1", time.Now())
	}, "guest-1")
	require.NoError(t, err)
	_, err = roomRepo.Update(ctx, "room-1", func(r *entity.Room) error {
		r.StartMatch("match-1")
		r.Complete("host-1", time.Now())
		return r.RequestRematch("guest-1")
	})
	require.NoError(t, err)

	// When: the opponent accepts and the follow-up room is created
	oldRoom, newRoom, err := roomRepo.CreateLinked(ctx, "room-1", func(r *entity.Room) (*entity.Room, error) {
		if err := r.AcceptRematch("host-1", "room-2"); err != nil {
			return nil, err
		}
		return r.Reopen("room-2", time.Now()), nil
	})

	// Then: both rooms are stored and the players are bound to the new one
	require.NoError(t, err)
	assert.Equal(t, entity.RematchAccepted, oldRoom.RematchState)
	assert.Equal(t, "room-2", oldRoom.NewRoomID)
	assert.Equal(t, "room-2", newRoom.ID)
	assert.True(t, newRoom.IsWaiting())

	stored, err := roomRepo.GetByID(ctx, "room-2")
	require.NoError(t, err)
	assert.True(t, stored.HasPlayer("host-1"))
	assert.True(t, stored.HasPlayer("guest-1"))

	for _, userID := range []string{"host-1", "guest-1"} {
		boundID, err := roomRepo.ActiveRoomID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "room-2", boundID)
	}
}
