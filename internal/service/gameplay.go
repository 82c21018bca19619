package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/gomoku-backend/internal/apperror"
	"github.com/rocketscienceinc/gomoku-backend/internal/broadcast"
	"github.com/rocketscienceinc/gomoku-backend/internal/entity"
	"github.com/rocketscienceinc/gomoku-backend/internal/gomoku"
	"github.com/rocketscienceinc/gomoku-backend/internal/repository"
)

// moveAttempts bounds re-validation rounds when two moves race for the
// same ledger slot; the loser of the race resolves to a typed conflict on
// the next round.
const moveAttempts = 3

// GameState is the snapshot returned to callers after every gameplay
// operation and by state queries.
type GameState struct {
	Room             *entity.Room  `json:"room"`
	Match            *entity.Match `json:"match,omitempty"`
	Board            []string      `json:"board"`
	Moves            int           `json:"moves"`
	LastMove         *entity.Move  `json:"last_move,omitempty"`
	NextTurnPlayerID string        `json:"next_turn_player_id,omitempty"`
}

type GameplayService interface {
	MakeMove(ctx context.Context, roomID, userID string, x, y int) (*GameState, error)
	Surrender(ctx context.Context, roomID, userID string) (*entity.Room, error)
	Abort(ctx context.Context, roomID string) (*entity.Room, error)
	State(ctx context.Context, roomID string) (*GameState, error)
}

type gameplayRoomRepo interface {
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	UpdateWithMatch(ctx context.Context, id string, fn func(*entity.Room) (*entity.Match, error)) (*entity.Room, *entity.Match, error)
}

type gameplayMatchRepo interface {
	GetByID(ctx context.Context, id string) (*entity.Match, error)
}

type gameplayMoveRepo interface {
	Append(ctx context.Context, move *entity.Move, match *entity.Match, room *entity.Room) error
	List(ctx context.Context, matchID string) ([]*entity.Move, error)
}

type gameplayArchive interface {
	SaveResult(ctx context.Context, match *entity.Match, moves int) error
}

type gameplayService struct {
	logger *slog.Logger

	roomRepo    gameplayRoomRepo
	matchRepo   gameplayMatchRepo
	moveRepo    gameplayMoveRepo
	archive     gameplayArchive
	broadcaster broadcast.Broadcaster
}

func NewGameplayService(
	logger *slog.Logger,
	roomRepo gameplayRoomRepo,
	matchRepo gameplayMatchRepo,
	moveRepo gameplayMoveRepo,
	archive gameplayArchive,
	broadcaster broadcast.Broadcaster,
) GameplayService {
	return &gameplayService{
		logger:      logger.With("component", "gameplay"),
		roomRepo:    roomRepo,
		matchRepo:   matchRepo,
		moveRepo:    moveRepo,
		archive:     archive,
		broadcaster: broadcaster,
	}
}

func (that *gameplayService) MakeMove(ctx context.Context, roomID, userID string, x, y int) (*GameState, error) {
	var err error

	for attempt := 0; attempt < moveAttempts; attempt++ {
		var state *GameState

		state, err = that.tryMove(ctx, roomID, userID, x, y)
		if errors.Is(err, repository.ErrLedgerConflict) {
			continue
		}

		if err != nil {
			return nil, err
		}

		return state, nil
	}

	return nil, fmt.Errorf("move contended: %w", err)
}

// tryMove validates one move against the current ledger snapshot and
// appends it. The append commits only if the snapshot is still current,
// so exactly one of two racing moves is accepted.
func (that *gameplayService) tryMove(ctx context.Context, roomID, userID string, x, y int) (*GameState, error) {
	room, match, moves, err := that.ongoingMatch(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if !match.HasPlayer(userID) {
		return nil, apperror.ErrNotAPlayer
	}

	if match.TurnPlayer(len(moves)) != userID {
		return nil, apperror.ErrNotYourTurn
	}

	if !gomoku.InBounds(x, y) {
		return nil, fmt.Errorf("%w: (%d,%d)", apperror.ErrInvalidCell, x, y)
	}

	board := replayBoard(match, moves)
	if !gomoku.IsLegalMove(board, x, y) {
		return nil, apperror.ErrCellOccupied
	}

	now := time.Now().UTC()
	stone := match.StoneOf(userID)
	gomoku.ApplyMove(board, x, y, stone)

	move := &entity.Move{
		MatchID:   match.ID,
		PlayerID:  userID,
		X:         x,
		Y:         y,
		Sequence:  len(moves) + 1,
		Timestamp: now,
	}

	switch {
	case gomoku.CheckWin(board, x, y, stone):
		match.Finish(winResult(stone), userID, now)
		room.Complete(userID, now)
	case gomoku.CheckDraw(board):
		match.Finish(entity.ResultMatchDraw, "", now)
		room.Complete("", now)
	}

	if err = that.moveRepo.Append(ctx, move, match, room); err != nil {
		return nil, err
	}

	state := newGameState(room, match, board, move.Sequence, move)

	that.broadcaster.PublishGame(ctx, &broadcast.GameEvent{
		RoomID:           room.ID,
		MatchID:          match.ID,
		X:                x,
		Y:                y,
		PlayerID:         userID,
		Symbol:           stone,
		MoveNumber:       move.Sequence,
		NextTurnPlayerID: state.NextTurnPlayerID,
		Board:            board[:],
		Result:           terminalResult(match),
		WinnerID:         match.WinnerID,
	})

	if !match.IsOngoing() {
		that.broadcaster.PublishRoom(ctx, room)
		that.archiveMatch(ctx, match, move.Sequence)
	}

	return state, nil
}

func (that *gameplayService) Surrender(ctx context.Context, roomID, userID string) (*entity.Room, error) {
	now := time.Now().UTC()

	room, match, err := that.roomRepo.UpdateWithMatch(ctx, roomID, func(room *entity.Room) (*entity.Match, error) {
		if !room.IsPlaying() || room.MatchID == "" {
			return nil, apperror.ErrMatchNotFound
		}

		match, err := that.matchRepo.GetByID(ctx, room.MatchID)
		if err != nil {
			return nil, fmt.Errorf("failed to get match: %w", err)
		}

		if !match.IsOngoing() {
			return nil, apperror.ErrMatchNotOngoing
		}

		if !match.HasPlayer(userID) {
			return nil, apperror.ErrNotAPlayer
		}

		winnerID := match.Opponent(userID)
		match.Finish(winResult(match.StoneOf(winnerID)), winnerID, now)
		room.Complete(winnerID, now)

		return match, nil
	})
	if err != nil {
		return nil, err
	}

	that.broadcaster.PublishRoom(ctx, room)

	moves, err := that.moveRepo.List(ctx, match.ID)
	if err != nil {
		that.logger.Error("failed to count moves for archive", "matchID", match.ID, "error", err)
		moves = nil
	}

	that.archiveMatch(ctx, match, len(moves))

	return room, nil
}

// Abort tears down an in-flight match without a winner. Aborted matches
// never reach the archive.
func (that *gameplayService) Abort(ctx context.Context, roomID string) (*entity.Room, error) {
	now := time.Now().UTC()

	room, _, err := that.roomRepo.UpdateWithMatch(ctx, roomID, func(room *entity.Room) (*entity.Match, error) {
		if !room.IsPlaying() || room.MatchID == "" {
			return nil, apperror.ErrMatchNotFound
		}

		match, err := that.matchRepo.GetByID(ctx, room.MatchID)
		if err != nil {
			return nil, fmt.Errorf("failed to get match: %w", err)
		}

		if !match.IsOngoing() {
			return nil, apperror.ErrMatchNotOngoing
		}

		match.Finish(entity.ResultAborted, "", now)
		room.Close(now)

		return match, nil
	})
	if err != nil {
		return nil, err
	}

	that.broadcaster.PublishRoom(ctx, room)

	return room, nil
}

func (that *gameplayService) State(ctx context.Context, roomID string) (*GameState, error) {
	room, err := that.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if room.MatchID == "" {
		return &GameState{Room: room, Board: (&gomoku.Board{})[:]}, nil
	}

	match, err := that.matchRepo.GetByID(ctx, room.MatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	moves, err := that.moveRepo.List(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moves: %w", err)
	}

	var last *entity.Move
	if len(moves) > 0 {
		last = moves[len(moves)-1]
	}

	return newGameState(room, match, replayBoard(match, moves), len(moves), last), nil
}

func (that *gameplayService) ongoingMatch(ctx context.Context, roomID string) (*entity.Room, *entity.Match, []*entity.Move, error) {
	room, err := that.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, nil, err
	}

	if !room.IsPlaying() || room.MatchID == "" {
		return nil, nil, nil, apperror.ErrMatchNotFound
	}

	match, err := that.matchRepo.GetByID(ctx, room.MatchID)
	if err != nil {
		return nil, nil, nil, err
	}

	if !match.IsOngoing() {
		return nil, nil, nil, apperror.ErrMatchNotOngoing
	}

	moves, err := that.moveRepo.List(ctx, match.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to list moves: %w", err)
	}

	return room, match, moves, nil
}

func (that *gameplayService) archiveMatch(ctx context.Context, match *entity.Match, moves int) {
	if err := that.archive.SaveResult(ctx, match, moves); err != nil {
		that.logger.Error("failed to archive match", "matchID", match.ID, "error", err)
	}
}

func replayBoard(match *entity.Match, moves []*entity.Move) *gomoku.Board {
	placements := make([]gomoku.Placement, 0, len(moves))
	for _, move := range moves {
		placements = append(placements, gomoku.Placement{
			X:     move.X,
			Y:     move.Y,
			Stone: match.StoneOf(move.PlayerID),
		})
	}

	return gomoku.Replay(placements)
}

func newGameState(room *entity.Room, match *entity.Match, board *gomoku.Board, moves int, last *entity.Move) *GameState {
	state := &GameState{
		Room:     room,
		Match:    match,
		Board:    board[:],
		Moves:    moves,
		LastMove: last,
	}

	if match != nil && match.IsOngoing() {
		state.NextTurnPlayerID = match.TurnPlayer(moves)
	}

	return state
}

func winResult(stone string) string {
	if stone == gomoku.StoneBlack {
		return entity.ResultBlackWin
	}

	return entity.ResultWhiteWin
}

func terminalResult(match *entity.Match) string {
	if match.IsOngoing() {
		return ""
	}

	return match.Result
}
