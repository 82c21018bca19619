package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/gomoku-backend/internal/broadcast"
	"github.com/rocketscienceinc/gomoku-backend/internal/repository"
	"github.com/rocketscienceinc/gomoku-backend/internal/repository/storage"
)

// testEnv wires the full service stack against an in-process redis and a
// throwaway sqlite file.
type testEnv struct {
	rooms    RoomService
	gameplay GameplayService

	roomRepo repository.RoomRepository
	archive  repository.ArchiveRepository
	users    repository.UserRepository
}

func newTestEnv(t *testing.T) (context.Context, *testEnv) {
	t.Helper()

	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	sqliteStorage, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, sqliteStorage.Init(ctx))
	t.Cleanup(func() {
		_ = sqliteStorage.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	roomRepo := repository.NewRoomRepository(client)
	matchRepo := repository.NewMatchRepository(client)
	moveRepo := repository.NewMoveRepository(client)
	userRepo := repository.NewUserRepository(sqliteStorage.Connection)
	archiveRepo := repository.NewArchiveRepository(sqliteStorage.Connection)

	broadcaster := broadcast.New(logger, client)

	gameplay := NewGameplayService(logger, roomRepo, matchRepo, moveRepo, archiveRepo, broadcaster)
	rooms := NewRoomService(logger, roomRepo, userRepo, gameplay, broadcaster)

	env := &testEnv{
		rooms:    rooms,
		gameplay: gameplay,
		roomRepo: roomRepo,
		archive:  archiveRepo,
		users:    userRepo,
	}

	for _, user := range []struct{ id, name string }{
		{"host-1", "Alice"},
		{"guest-1", "Bob"},
		{"user-3", "Carol"},
	} {
		require.NoError(t, userRepo.Save(ctx, user.id, user.name))
	}

	return ctx, env
}

// startPlayingRoom matches two players through the public queue and
// readies both, returning the playing room's id. The first caller hosts
// and therefore plays black.
func startPlayingRoom(t *testing.T, ctx context.Context, env *testEnv) string {
	t.Helper()

	room, err := env.rooms.FindOrCreatePublicRoom(ctx, "host-1")
	require.NoError(t, err)

	joined, err := env.rooms.FindOrCreatePublicRoom(ctx, "guest-1")
	require.NoError(t, err)
	require.Equal(t, room.ID, joined.ID)

	_, err = env.rooms.MarkReady(ctx, room.ID, "host-1")
	require.NoError(t, err)

	started, err := env.rooms.MarkReady(ctx, room.ID, "guest-1")
	require.NoError(t, err)
	require.True(t, started.IsPlaying())

	return room.ID
}
