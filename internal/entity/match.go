package entity

import (
	"time"

	"github.com/rocketscienceinc/gomoku-backend/internal/gomoku"
)

const (
	ResultOngoing   = "ongoing"
	ResultBlackWin  = "black_win"
	ResultWhiteWin  = "white_win"
	ResultMatchDraw = "draw"
	ResultAborted   = "aborted"
)

// Match is one playthrough bound to a room. The host always plays black
// and moves first.
type Match struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"room_id"`
	PlayerBlack string     `json:"player_black"`
	PlayerWhite string     `json:"player_white"`
	Result      string     `json:"result"`
	WinnerID    string     `json:"winner_id,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

func NewMatch(id, roomID, blackID, whiteID string, now time.Time) *Match {
	return &Match{
		ID:          id,
		RoomID:      roomID,
		PlayerBlack: blackID,
		PlayerWhite: whiteID,
		Result:      ResultOngoing,
		StartedAt:   now,
	}
}

func (that *Match) IsOngoing() bool { return that.Result == ResultOngoing }
func (that *Match) IsAborted() bool { return that.Result == ResultAborted }

func (that *Match) HasPlayer(userID string) bool {
	return userID == that.PlayerBlack || userID == that.PlayerWhite
}

func (that *Match) Opponent(userID string) string {
	if userID == that.PlayerBlack {
		return that.PlayerWhite
	}

	return that.PlayerBlack
}

func (that *Match) StoneOf(userID string) string {
	switch userID {
	case that.PlayerBlack:
		return gomoku.StoneBlack
	case that.PlayerWhite:
		return gomoku.StoneWhite
	default:
		return gomoku.EmptyCell
	}
}

func (that *Match) PlayerOf(stone string) string {
	if stone == gomoku.StoneBlack {
		return that.PlayerBlack
	}

	return that.PlayerWhite
}

// TurnPlayer derives whose turn it is from ledger parity: black plays the
// odd sequence numbers.
func (that *Match) TurnPlayer(movesMade int) string {
	if movesMade%2 == 0 {
		return that.PlayerBlack
	}

	return that.PlayerWhite
}

// Finish resolves the match into a terminal result. winnerID is empty for
// draws and aborts.
func (that *Match) Finish(result, winnerID string, now time.Time) {
	that.Result = result
	that.WinnerID = winnerID
	that.EndedAt = &now
}
