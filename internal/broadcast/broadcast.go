package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/gomoku-backend/internal/entity"
)

// Topic names pushed over the gateway. Socket sessions subscribe to both
// patterns and fan messages out to their connections.
func RoomTopic(roomID string) string { return "room/" + roomID }
func GameTopic(roomID string) string { return "game/" + roomID }

const (
	RoomPattern = "room/*"
	GamePattern = "game/*"
)

func IsRoomTopic(topic string) bool { return strings.HasPrefix(topic, "room/") }
func IsGameTopic(topic string) bool { return strings.HasPrefix(topic, "game/") }

// GameEvent is the move-event payload.
type GameEvent struct {
	RoomID           string   `json:"room_id"`
	MatchID          string   `json:"match_id"`
	X                int      `json:"x"`
	Y                int      `json:"y"`
	PlayerID         string   `json:"player_id"`
	Symbol           string   `json:"symbol"`
	MoveNumber       int      `json:"move_number"`
	NextTurnPlayerID string   `json:"next_turn_player_id,omitempty"`
	Board            []string `json:"board"`
	Result           string   `json:"result,omitempty"`
	WinnerID         string   `json:"winner_id,omitempty"`
}

// Broadcaster delivers state-change notifications. Delivery is best-effort
// and at-least-once; a failed publish never rolls back the mutation it
// announces, so both methods log instead of returning errors.
type Broadcaster interface {
	PublishRoom(ctx context.Context, room *entity.Room)
	PublishGame(ctx context.Context, event *GameEvent)
}

type redisBroadcaster struct {
	logger *slog.Logger
	client *redis.Client
}

func New(logger *slog.Logger, client *redis.Client) Broadcaster {
	return &redisBroadcaster{
		logger: logger.With("component", "broadcast"),
		client: client,
	}
}

func (that *redisBroadcaster) PublishRoom(ctx context.Context, room *entity.Room) {
	if err := that.publish(ctx, RoomTopic(room.ID), room); err != nil {
		that.logger.Error("failed to publish room event", "roomID", room.ID, "error", err)
	}
}

func (that *redisBroadcaster) PublishGame(ctx context.Context, event *GameEvent) {
	if err := that.publish(ctx, GameTopic(event.RoomID), event); err != nil {
		that.logger.Error("failed to publish game event", "roomID", event.RoomID, "error", err)
	}
}

func (that *redisBroadcaster) publish(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal payload: %w", err)
	}

	if err = that.client.Publish(ctx, topic, raw).Err(); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	return nil
}
