package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/gomoku-backend/internal/apperror"
)

// UserRepository is the user directory the core consults. Account
// management itself lives outside this service; user ids arrive already
// authenticated.
type UserRepository interface {
	Save(ctx context.Context, id, displayName string) error
	Exists(ctx context.Context, id string) (bool, error)
	DisplayName(ctx context.Context, id string) (string, error)
}

type userRepository struct {
	conn *sql.DB
}

func NewUserRepository(conn *sql.DB) UserRepository {
	return &userRepository{
		conn: conn,
	}
}

func (that *userRepository) Save(ctx context.Context, id, displayName string) error {
	query := `INSERT INTO users (id, display_name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name`

	if _, err := that.conn.ExecContext(ctx, query, id, displayName); err != nil {
		return fmt.Errorf("can't save user: %w", err)
	}

	return nil
}

func (that *userRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT 1 FROM users WHERE id = ?`

	var one int

	err := that.conn.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("can't check user: %w", err)
	}

	return true, nil
}

func (that *userRepository) DisplayName(ctx context.Context, id string) (string, error) {
	query := `SELECT display_name FROM users WHERE id = ?`

	var name string

	err := that.conn.QueryRowContext(ctx, query, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperror.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("can't find user: %w", err)
	}

	return name, nil
}
