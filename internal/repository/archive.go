package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rocketscienceinc/gomoku-backend/internal/entity"
)

// ArchivedMatch is the flattened history row kept for statistics.
type ArchivedMatch struct {
	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	PlayerBlack string `json:"player_black"`
	PlayerWhite string `json:"player_white"`
	Result      string `json:"result"`
	WinnerID    string `json:"winner_id,omitempty"`
	Moves       int    `json:"moves"`
	StartedAt   string `json:"started_at"`
	EndedAt     string `json:"ended_at"`
}

// ArchiveRepository persists resolved matches. Aborted matches are never
// archived and therefore never counted in statistics.
type ArchiveRepository interface {
	SaveResult(ctx context.Context, match *entity.Match, moves int) error
	Recent(ctx context.Context, limit int) ([]*ArchivedMatch, error)
}

type archiveRepository struct {
	conn *sql.DB
}

func NewArchiveRepository(conn *sql.DB) ArchiveRepository {
	return &archiveRepository{
		conn: conn,
	}
}

func (that *archiveRepository) SaveResult(ctx context.Context, match *entity.Match, moves int) error {
	if match.IsOngoing() || match.IsAborted() {
		return nil
	}

	query := `INSERT INTO matches (id, room_id, player_black, player_white, result, winner_id, moves, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			result = excluded.result,
			winner_id = excluded.winner_id,
			moves = excluded.moves,
			ended_at = excluded.ended_at`

	_, err := that.conn.ExecContext(ctx, query,
		match.ID, match.RoomID,
		match.PlayerBlack, match.PlayerWhite,
		match.Result, match.WinnerID,
		moves, match.StartedAt, match.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("can't archive match: %w", err)
	}

	return nil
}

func (that *archiveRepository) Recent(ctx context.Context, limit int) ([]*ArchivedMatch, error) {
	query := `SELECT id, room_id, player_black, player_white, result, COALESCE(winner_id, ''), moves, started_at, ended_at
		FROM matches ORDER BY ended_at DESC LIMIT ?`

	rows, err := that.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("can't list archived matches: %w", err)
	}
	defer rows.Close()

	var matches []*ArchivedMatch

	for rows.Next() {
		var m ArchivedMatch
		if err = rows.Scan(&m.ID, &m.RoomID, &m.PlayerBlack, &m.PlayerWhite, &m.Result, &m.WinnerID, &m.Moves, &m.StartedAt, &m.EndedAt); err != nil {
			return nil, fmt.Errorf("can't scan archived match: %w", err)
		}

		matches = append(matches, &m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read archived matches: %w", err)
	}

	return matches, nil
}
