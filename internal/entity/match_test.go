package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rocketscienceinc/gomoku-backend/internal/gomoku"
)

func TestMatch_TurnPlayer(t *testing.T) {
	match := NewMatch("match-1", "room-1", "black-1", "white-1", time.Now())

	t.Run("Black opens the game", func(t *testing.T) {
		// Given: no moves made yet
		// Then: black is to move
		assert.Equal(t, "black-1", match.TurnPlayer(0))
	})

	t.Run("Turn alternates by ledger parity", func(t *testing.T) {
		assert.Equal(t, "white-1", match.TurnPlayer(1))
		assert.Equal(t, "black-1", match.TurnPlayer(2))
		assert.Equal(t, "white-1", match.TurnPlayer(224))
	})
}

func TestMatch_Stones(t *testing.T) {
	match := NewMatch("match-1", "room-1", "black-1", "white-1", time.Now())

	assert.Equal(t, gomoku.StoneBlack, match.StoneOf("black-1"))
	assert.Equal(t, gomoku.StoneWhite, match.StoneOf("white-1"))
	assert.Equal(t, gomoku.EmptyCell, match.StoneOf("stranger"))

	assert.Equal(t, "black-1", match.PlayerOf(gomoku.StoneBlack))
	assert.Equal(t, "white-1", match.PlayerOf(gomoku.StoneWhite))

	assert.Equal(t, "white-1", match.Opponent("black-1"))
	assert.Equal(t, "black-1", match.Opponent("white-1"))
}

func TestMatch_Finish(t *testing.T) {
	t.Run("Win stores result and winner", func(t *testing.T) {
		// Given: an ongoing match
		match := NewMatch("match-1", "room-1", "black-1", "white-1", time.Now())
		assert.True(t, match.IsOngoing())

		// When: black wins
		match.Finish(ResultBlackWin, "black-1", time.Now())

		// Then: the match is terminal with the winner recorded
		assert.False(t, match.IsOngoing())
		assert.Equal(t, ResultBlackWin, match.Result)
		assert.Equal(t, "black-1", match.WinnerID)
		assert.NotNil(t, match.EndedAt)
	})

	t.Run("Draw has no winner", func(t *testing.T) {
		match := NewMatch("match-1", "room-1", "black-1", "white-1", time.Now())

		match.Finish(ResultMatchDraw, "", time.Now())

		assert.Equal(t, ResultMatchDraw, match.Result)
		assert.Empty(t, match.WinnerID)
	})

	t.Run("Abort is terminal but not a result", func(t *testing.T) {
		match := NewMatch("match-1", "room-1", "black-1", "white-1", time.Now())

		match.Finish(ResultAborted, "", time.Now())

		assert.True(t, match.IsAborted())
		assert.False(t, match.IsOngoing())
	})
}

func TestMatch_HasPlayer(t *testing.T) {
	match := NewMatch("match-1", "room-1", "black-1", "white-1", time.Now())

	assert.True(t, match.HasPlayer("black-1"))
	assert.True(t, match.HasPlayer("white-1"))
	assert.False(t, match.HasPlayer("stranger"))
}
