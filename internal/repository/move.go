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

// ErrLedgerConflict reports that another move was appended between the
// caller's snapshot and its write. The caller re-validates against the new
// ledger state; it never blindly retries the same move.
var ErrLedgerConflict = errors.New("move ledger changed concurrently")

func movesKey(matchID string) string { return "moves:" + matchID }

type MoveRepository interface {
	// Append writes the move as entry move.Sequence, guaranteeing sequence
	// uniqueness: the write commits only if the ledger still holds exactly
	// move.Sequence-1 entries. When the move resolves the match, the final
	// match and room states are persisted in the same transaction.
	Append(ctx context.Context, move *entity.Move, match *entity.Match, room *entity.Room) error

	List(ctx context.Context, matchID string) ([]*entity.Move, error)
	Count(ctx context.Context, matchID string) (int, error)
}

type dbMove struct {
	client *redis.Client
}

func NewMoveRepository(client *redis.Client) MoveRepository {
	return &dbMove{
		client: client,
	}
}

func (that *dbMove) Append(ctx context.Context, move *entity.Move, match *entity.Match, room *entity.Room) error {
	moveJSON, err := json.Marshal(move)
	if err != nil {
		return fmt.Errorf("could not marshal move: %w", err)
	}

	key := movesKey(move.MatchID)

	// the match key is watched as well so that a concurrent surrender or
	// abort finalizing the match aborts this append
	err = that.client.Watch(ctx, func(tx *redis.Tx) error {
		rawMatch, err := tx.Get(ctx, matchKey(move.MatchID)).Result()
		if errors.Is(err, redis.Nil) {
			return apperror.ErrMatchNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read match: %w", err)
		}

		var stored entity.Match
		if err = json.Unmarshal([]byte(rawMatch), &stored); err != nil {
			return fmt.Errorf("failed to unmarshal match: %w", err)
		}

		if !stored.IsOngoing() {
			return apperror.ErrMatchNotOngoing
		}

		length, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to read ledger length: %w", err)
		}

		if int(length) != move.Sequence-1 {
			return ErrLedgerConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, moveJSON)

			if !match.IsOngoing() {
				if err := writeMatch(ctx, pipe, match); err != nil {
					return err
				}

				if err := writeRoom(ctx, pipe, room); err != nil {
					return err
				}

				for _, player := range room.Players {
					pipe.Del(ctx, bindingKey(player.UserID))
				}
			}

			return nil
		})

		return err
	}, key, matchKey(move.MatchID))

	if errors.Is(err, redis.TxFailedErr) {
		return ErrLedgerConflict
	}

	return err
}

func (that *dbMove) List(ctx context.Context, matchID string) ([]*entity.Move, error) {
	raws, err := that.client.LRange(ctx, movesKey(matchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	moves := make([]*entity.Move, 0, len(raws))
	for _, raw := range raws {
		var move entity.Move
		if err = json.Unmarshal([]byte(raw), &move); err != nil {
			return nil, fmt.Errorf("failed to unmarshal move: %w", err)
		}

		moves = append(moves, &move)
	}

	return moves, nil
}

func (that *dbMove) Count(ctx context.Context, matchID string) (int, error) {
	length, err := that.client.LLen(ctx, movesKey(matchID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count moves: %w", err)
	}

	return int(length), nil
}
