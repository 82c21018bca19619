package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceTTL is how long a heartbeat keeps a user listed as online.
const presenceTTL = 90 * time.Second

func presenceKey(userID string) string { return "presence:" + userID }

// PresenceRepository tracks who currently holds an open session. It is
// display-only information and never affects game-state decisions.
type PresenceRepository interface {
	Heartbeat(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type dbPresence struct {
	client *redis.Client
}

func NewPresenceRepository(client *redis.Client) PresenceRepository {
	return &dbPresence{
		client: client,
	}
}

func (that *dbPresence) Heartbeat(ctx context.Context, userID string) error {
	if err := that.client.Set(ctx, presenceKey(userID), "1", presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	return nil
}

func (that *dbPresence) Offline(ctx context.Context, userID string) error {
	if err := that.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}

	return nil
}

func (that *dbPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	count, err := that.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}

	return count > 0, nil
}
