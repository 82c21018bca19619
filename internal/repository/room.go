package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/gomoku-backend/internal/apperror"
	"github.com/rocketscienceinc/gomoku-backend/internal/entity"
)

// ErrJoinCodeTaken signals a join code collision; the caller retries with a
// freshly generated code.
var ErrJoinCodeTaken = errors.New("join code is already taken")

// txAttempts bounds optimistic transaction retries under contention.
const txAttempts = 5

const publicWaitingKey = "rooms:public:waiting"

func roomKey(id string) string        { return "room:" + id }
func bindingKey(userID string) string { return "binding:" + userID }
func joinCodeKey(code string) string  { return "joincode:" + code }

type RoomRepository interface {
	Create(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	GetByJoinCode(ctx context.Context, code string) (*entity.Room, error)

	// Update applies fn to the room inside an optimistic transaction.
	// bindUsers are users whose room binding must stay consistent with the
	// mutation (joining or leaving players).
	Update(ctx context.Context, id string, fn func(*entity.Room) error, bindUsers ...string) (*entity.Room, error)

	// UpdateWithMatch persists the room and a match in one transaction;
	// fn may return a nil match when nothing beyond the room changed.
	UpdateWithMatch(ctx context.Context, id string, fn func(*entity.Room) (*entity.Match, error)) (*entity.Room, *entity.Match, error)

	// CreateLinked atomically finalizes a rematch negotiation: fn mutates
	// the finished room and returns the follow-up room, both written
	// together with the player bindings of the new room.
	CreateLinked(ctx context.Context, id string, fn func(*entity.Room) (*entity.Room, error)) (*entity.Room, *entity.Room, error)

	OldestWaitingPublicIDs(ctx context.Context) ([]string, error)
	ActiveRoomID(ctx context.Context, userID string) (string, error)
}

type dbRoom struct {
	client *redis.Client
}

func NewRoomRepository(client *redis.Client) RoomRepository {
	return &dbRoom{
		client: client,
	}
}

func (that *dbRoom) Create(ctx context.Context, room *entity.Room) error {
	hostID := room.HostID()

	watched := []string{roomKey(room.ID), bindingKey(hostID)}
	if room.JoinCode != "" {
		watched = append(watched, joinCodeKey(room.JoinCode))
	}

	err := that.client.Watch(ctx, func(tx *redis.Tx) error {
		bound, err := tx.Get(ctx, bindingKey(hostID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to check binding: %w", err)
		}

		if bound != "" {
			return apperror.ErrUserAlreadyInRoom
		}

		if room.JoinCode != "" {
			if _, err = tx.Get(ctx, joinCodeKey(room.JoinCode)).Result(); err == nil {
				return ErrJoinCodeTaken
			} else if !errors.Is(err, redis.Nil) {
				return fmt.Errorf("failed to check join code: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := writeRoom(ctx, pipe, room); err != nil {
				return err
			}

			pipe.Set(ctx, bindingKey(hostID), room.ID, 0)

			if room.JoinCode != "" {
				pipe.Set(ctx, joinCodeKey(room.JoinCode), room.ID, 0)
			}

			syncWaitingQueue(ctx, pipe, room)

			return nil
		})

		return err
	}, watched...)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	return nil
}

func (that *dbRoom) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	response, err := that.client.Get(ctx, roomKey(id)).Result()

	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room by ID: %w", err)
	}

	return unmarshalRoom([]byte(response))
}

func (that *dbRoom) GetByJoinCode(ctx context.Context, code string) (*entity.Room, error) {
	id, err := that.client.Get(ctx, joinCodeKey(code)).Result()

	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to resolve join code: %w", err)
	}

	return that.GetByID(ctx, id)
}

func (that *dbRoom) Update(ctx context.Context, id string, fn func(*entity.Room) error, bindUsers ...string) (*entity.Room, error) {
	var updated *entity.Room

	err := that.updateInTx(ctx, id, bindUsers, func(tx *redis.Tx, room *entity.Room) (*entity.Match, error) {
		if err := fn(room); err != nil {
			return nil, err
		}

		updated = room

		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	// a waiting room emptied by the mutation was deleted
	if len(updated.Players) == 0 && updated.IsWaiting() {
		return nil, nil
	}

	return updated, nil
}

func (that *dbRoom) UpdateWithMatch(ctx context.Context, id string, fn func(*entity.Room) (*entity.Match, error)) (*entity.Room, *entity.Match, error) {
	var (
		room  *entity.Room
		match *entity.Match
	)

	err := that.updateInTx(ctx, id, nil, func(tx *redis.Tx, current *entity.Room) (*entity.Match, error) {
		m, err := fn(current)
		if err != nil {
			return nil, err
		}

		room = current
		match = m

		return m, nil
	})
	if err != nil {
		return nil, nil, err
	}

	return room, match, nil
}

func (that *dbRoom) CreateLinked(ctx context.Context, id string, fn func(*entity.Room) (*entity.Room, error)) (*entity.Room, *entity.Room, error) {
	existing, err := that.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	watched := []string{roomKey(id)}
	for _, player := range existing.Players {
		watched = append(watched, bindingKey(player.UserID))
	}

	var (
		oldRoom *entity.Room
		newRoom *entity.Room
	)

	for attempt := 0; attempt < txAttempts; attempt++ {
		err = that.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := readRoom(ctx, tx, id)
			if err != nil {
				return err
			}

			for _, player := range current.Players {
				bound, err := tx.Get(ctx, bindingKey(player.UserID)).Result()
				if err != nil && !errors.Is(err, redis.Nil) {
					return fmt.Errorf("failed to check binding: %w", err)
				}

				if bound != "" {
					return apperror.ErrUserAlreadyInRoom
				}
			}

			next, err := fn(current)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if err := writeRoom(ctx, pipe, current); err != nil {
					return err
				}

				if err := writeRoom(ctx, pipe, next); err != nil {
					return err
				}

				for _, player := range next.Players {
					pipe.Set(ctx, bindingKey(player.UserID), next.ID, 0)
				}

				syncWaitingQueue(ctx, pipe, next)

				return nil
			})
			if err != nil {
				return err
			}

			oldRoom = current
			newRoom = next

			return nil
		}, watched...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			return nil, nil, err
		}

		return oldRoom, newRoom, nil
	}

	return nil, nil, fmt.Errorf("room update contended: %w", err)
}

func (that *dbRoom) OldestWaitingPublicIDs(ctx context.Context) ([]string, error) {
	ids, err := that.client.ZRange(ctx, publicWaitingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting public rooms: %w", err)
	}

	return ids, nil
}

func (that *dbRoom) ActiveRoomID(ctx context.Context, userID string) (string, error) {
	id, err := that.client.Get(ctx, bindingKey(userID)).Result()

	if errors.Is(err, redis.Nil) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to get binding: %w", err)
	}

	return id, nil
}

// updateInTx runs a room mutation under WATCH, keeping the side indexes
// (bindings, join code, public waiting queue) in step with the room state
// within the same transaction pipeline.
func (that *dbRoom) updateInTx(ctx context.Context, id string, bindUsers []string, fn func(*redis.Tx, *entity.Room) (*entity.Match, error)) error {
	watched := []string{roomKey(id)}
	for _, userID := range bindUsers {
		watched = append(watched, bindingKey(userID))
	}

	var err error

	for attempt := 0; attempt < txAttempts; attempt++ {
		err = that.client.Watch(ctx, func(tx *redis.Tx) error {
			room, err := readRoom(ctx, tx, id)
			if err != nil {
				return err
			}

			before := playerSet(room)

			for _, userID := range bindUsers {
				bound, err := tx.Get(ctx, bindingKey(userID)).Result()
				if err != nil && !errors.Is(err, redis.Nil) {
					return fmt.Errorf("failed to check binding: %w", err)
				}

				if bound != "" && bound != id {
					return apperror.ErrUserAlreadyInRoom
				}
			}

			match, err := fn(tx, room)
			if err != nil {
				return err
			}

			after := playerSet(room)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if len(room.Players) == 0 && room.IsWaiting() {
					deleteRoom(ctx, pipe, room)
				} else if err := writeRoom(ctx, pipe, room); err != nil {
					return err
				}

				if match != nil {
					if err := writeMatch(ctx, pipe, match); err != nil {
						return err
					}
				}

				// bindings follow membership: joined players gain one,
				// departed players and players of a finished room lose it
				for userID := range after {
					if _, ok := before[userID]; !ok {
						pipe.Set(ctx, bindingKey(userID), room.ID, 0)
					}
				}

				for userID := range before {
					if _, ok := after[userID]; !ok {
						pipe.Del(ctx, bindingKey(userID))
					}
				}

				if room.IsFinished() {
					for userID := range after {
						pipe.Del(ctx, bindingKey(userID))
					}
				}

				syncWaitingQueue(ctx, pipe, room)

				return nil
			})

			return err
		}, watched...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return fmt.Errorf("room update contended: %w", err)
}

func readRoom(ctx context.Context, tx *redis.Tx, id string) (*entity.Room, error) {
	raw, err := tx.Get(ctx, roomKey(id)).Result()

	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return unmarshalRoom([]byte(raw))
}

func writeRoom(ctx context.Context, pipe redis.Pipeliner, room *entity.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("could not marshal room: %w", err)
	}

	pipe.Set(ctx, roomKey(room.ID), raw, 0)

	return nil
}

func deleteRoom(ctx context.Context, pipe redis.Pipeliner, room *entity.Room) {
	pipe.Del(ctx, roomKey(room.ID))

	if room.JoinCode != "" {
		pipe.Del(ctx, joinCodeKey(room.JoinCode))
	}

	pipe.ZRem(ctx, publicWaitingKey, room.ID)
}

// syncWaitingQueue keeps the matchmaking index consistent: only public
// rooms still waiting for a second player are listed.
func syncWaitingQueue(ctx context.Context, pipe redis.Pipeliner, room *entity.Room) {
	if room.IsPublic() && room.IsWaiting() && !room.IsFull() && len(room.Players) > 0 {
		pipe.ZAdd(ctx, publicWaitingKey, redis.Z{
			Score:  float64(room.CreatedAt.UnixNano()),
			Member: room.ID,
		})

		return
	}

	pipe.ZRem(ctx, publicWaitingKey, room.ID)
}

func playerSet(room *entity.Room) map[string]struct{} {
	set := make(map[string]struct{}, len(room.Players))
	for _, player := range room.Players {
		set[player.UserID] = struct{}{}
	}

	return set
}

func unmarshalRoom(raw []byte) (*entity.Room, error) {
	var room entity.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}

	return &room, nil
}
