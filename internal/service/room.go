package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rocketscienceinc/gomoku-backend/internal/apperror"
	"github.com/rocketscienceinc/gomoku-backend/internal/broadcast"
	"github.com/rocketscienceinc/gomoku-backend/internal/entity"
	"github.com/rocketscienceinc/gomoku-backend/internal/pkg"
	"github.com/rocketscienceinc/gomoku-backend/internal/repository"
)

// joinCodeAttempts bounds retries on join code collisions.
const joinCodeAttempts = 5

type RoomService interface {
	CreateRoom(ctx context.Context, hostID, name, visibility string) (*entity.Room, error)
	JoinRoom(ctx context.Context, roomID, userID string) (*entity.Room, error)
	JoinByCode(ctx context.Context, code, userID string) (*entity.Room, error)
	FindOrCreatePublicRoom(ctx context.Context, userID string) (*entity.Room, error)

	MarkReady(ctx context.Context, roomID, userID string) (*entity.Room, error)
	LeaveRoom(ctx context.Context, roomID, userID string) (*entity.Room, error)

	RequestRematch(ctx context.Context, roomID, userID string) (*entity.Room, error)
	AcceptRematch(ctx context.Context, roomID, userID string) (*entity.Room, error)

	CompleteGame(ctx context.Context, roomID, winnerID string) (*entity.Room, error)
	GetRoom(ctx context.Context, roomID string) (*entity.Room, error)
	ActiveRoom(ctx context.Context, userID string) (*entity.Room, error)
}

type roomUserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type roomSurrenderer interface {
	Surrender(ctx context.Context, roomID, userID string) (*entity.Room, error)
}

type roomService struct {
	logger *slog.Logger

	roomRepo    repository.RoomRepository
	users       roomUserDirectory
	gameplay    roomSurrenderer
	broadcaster broadcast.Broadcaster
}

func NewRoomService(
	logger *slog.Logger,
	roomRepo repository.RoomRepository,
	users roomUserDirectory,
	gameplay roomSurrenderer,
	broadcaster broadcast.Broadcaster,
) RoomService {
	return &roomService{
		logger:      logger.With("component", "room"),
		roomRepo:    roomRepo,
		users:       users,
		gameplay:    gameplay,
		broadcaster: broadcaster,
	}
}

func (that *roomService) CreateRoom(ctx context.Context, hostID, name, visibility string) (*entity.Room, error) {
	if visibility != entity.PublicType && visibility != entity.PrivateType {
		return nil, fmt.Errorf("%w: %q", apperror.ErrInvalidVisibility, visibility)
	}

	if err := that.ensureUser(ctx, hostID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	var room *entity.Room

	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		room = entity.NewRoom(pkg.NewRoomID(), hostID, name, visibility, now)
		if visibility == entity.PrivateType {
			room.JoinCode = pkg.GenerateJoinCode()
		}

		err := that.roomRepo.Create(ctx, room)
		if errors.Is(err, repository.ErrJoinCodeTaken) {
			continue
		}

		if err != nil {
			return nil, err
		}

		that.broadcaster.PublishRoom(ctx, room)

		return room, nil
	}

	return nil, fmt.Errorf("failed to create room: %w", repository.ErrJoinCodeTaken)
}

func (that *roomService) JoinRoom(ctx context.Context, roomID, userID string) (*entity.Room, error) {
	if err := that.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	room, err := that.roomRepo.Update(ctx, roomID, func(room *entity.Room) error {
		if room.HasPlayer(userID) {
			return nil
		}

		return room.AddPlayer(userID, now)
	}, userID)
	if err != nil {
		return nil, err
	}

	that.broadcaster.PublishRoom(ctx, room)

	return room, nil
}

func (that *roomService) JoinByCode(ctx context.Context, code, userID string) (*entity.Room, error) {
	room, err := that.roomRepo.GetByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}

	return that.JoinRoom(ctx, room.ID, userID)
}

// FindOrCreatePublicRoom is the matchmaking entry point: join the oldest
// public room still waiting for an opponent, or open a fresh one. The
// capacity check runs inside the room transaction, so two concurrent
// callers cannot overfill the same room.
func (that *roomService) FindOrCreatePublicRoom(ctx context.Context, userID string) (*entity.Room, error) {
	if err := that.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	boundID, err := that.roomRepo.ActiveRoomID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if boundID != "" {
		return nil, apperror.ErrUserAlreadyInRoom
	}

	ids, err := that.roomRepo.OldestWaitingPublicIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	for _, id := range ids {
		room, err := that.roomRepo.Update(ctx, id, func(room *entity.Room) error {
			return room.AddPlayer(userID, now)
		}, userID)

		switch {
		case err == nil:
			that.broadcaster.PublishRoom(ctx, room)
			return room, nil
		case errors.Is(err, apperror.ErrRoomFull),
			errors.Is(err, apperror.ErrRoomNotWaiting),
			errors.Is(err, apperror.ErrRoomNotFound):
			// raced by another joiner, try the next room
			continue
		default:
			return nil, err
		}
	}

	return that.CreateRoom(ctx, userID, "", entity.PublicType)
}

// MarkReady flips the caller's ready flag; the second ready of a full room
// starts the match in the same transaction, so a double start is
// impossible. The host takes black and moves first.
func (that *roomService) MarkReady(ctx context.Context, roomID, userID string) (*entity.Room, error) {
	now := time.Now().UTC()

	room, _, err := that.roomRepo.UpdateWithMatch(ctx, roomID, func(room *entity.Room) (*entity.Match, error) {
		if err := room.MarkReady(userID); err != nil {
			return nil, err
		}

		if !room.BothReady() {
			return nil, nil
		}

		hostID := room.HostID()

		var opponentID string
		for _, player := range room.Players {
			if !player.IsHost {
				opponentID = player.UserID
			}
		}

		match := entity.NewMatch(pkg.NewMatchID(), room.ID, hostID, opponentID, now)
		room.StartMatch(match.ID)

		return match, nil
	})
	if err != nil {
		return nil, err
	}

	that.broadcaster.PublishRoom(ctx, room)

	return room, nil
}

// LeaveRoom always succeeds unilaterally for the caller: in a waiting room
// the player is removed (the room is deleted when emptied), mid-game it is
// a surrender, and on a finished room it is a no-op.
func (that *roomService) LeaveRoom(ctx context.Context, roomID, userID string) (*entity.Room, error) {
	room, err := that.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if !room.HasPlayer(userID) {
		return nil, apperror.ErrNotAPlayer
	}

	if room.IsFinished() {
		return room, nil
	}

	if room.IsPlaying() {
		return that.gameplay.Surrender(ctx, roomID, userID)
	}

	updated, err := that.roomRepo.Update(ctx, roomID, func(room *entity.Room) error {
		if !room.IsWaiting() {
			return apperror.ErrRoomNotWaiting
		}

		return room.RemovePlayer(userID)
	}, userID)

	// the room switched to playing between the read and the update
	if errors.Is(err, apperror.ErrRoomNotWaiting) {
		return that.gameplay.Surrender(ctx, roomID, userID)
	}

	if err != nil {
		return nil, err
	}

	if updated != nil {
		that.broadcaster.PublishRoom(ctx, updated)
	}

	return updated, nil
}

func (that *roomService) RequestRematch(ctx context.Context, roomID, userID string) (*entity.Room, error) {
	room, err := that.roomRepo.Update(ctx, roomID, func(room *entity.Room) error {
		return room.RequestRematch(userID)
	})
	if err != nil {
		return nil, err
	}

	that.broadcaster.PublishRoom(ctx, room)

	return room, nil
}

// AcceptRematch closes the negotiation: the old room is linked to a
// brand-new waiting room holding the same two players, nobody ready. Room
// ids are never reused.
func (that *roomService) AcceptRematch(ctx context.Context, roomID, userID string) (*entity.Room, error) {
	now := time.Now().UTC()
	newRoomID := pkg.NewRoomID()

	oldRoom, newRoom, err := that.roomRepo.CreateLinked(ctx, roomID, func(room *entity.Room) (*entity.Room, error) {
		if err := room.AcceptRematch(userID, newRoomID); err != nil {
			return nil, err
		}

		return room.Reopen(newRoomID, now), nil
	})
	if err != nil {
		return nil, err
	}

	that.broadcaster.PublishRoom(ctx, oldRoom)
	that.broadcaster.PublishRoom(ctx, newRoom)

	return newRoom, nil
}

// CompleteGame is the idempotent finalization hook: a second call on an
// already finished room changes nothing.
func (that *roomService) CompleteGame(ctx context.Context, roomID, winnerID string) (*entity.Room, error) {
	now := time.Now().UTC()

	room, err := that.roomRepo.Update(ctx, roomID, func(room *entity.Room) error {
		room.Complete(winnerID, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	that.broadcaster.PublishRoom(ctx, room)

	return room, nil
}

func (that *roomService) GetRoom(ctx context.Context, roomID string) (*entity.Room, error) {
	return that.roomRepo.GetByID(ctx, roomID)
}

// ActiveRoom returns the room the user is currently bound to, or nil when
// the user has no active room.
func (that *roomService) ActiveRoom(ctx context.Context, userID string) (*entity.Room, error) {
	roomID, err := that.roomRepo.ActiveRoomID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if roomID == "" {
		return nil, nil
	}

	room, err := that.roomRepo.GetByID(ctx, roomID)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return room, nil
}

func (that *roomService) ensureUser(ctx context.Context, userID string) error {
	exists, err := that.users.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}

	if !exists {
		return fmt.Errorf("%w: %s", apperror.ErrUserNotFound, userID)
	}

	return nil
}
