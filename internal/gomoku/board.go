package gomoku

const (
	BoardSize  = 15
	TotalCells = BoardSize * BoardSize
	WinLength  = 5

	StoneBlack = "B"
	StoneWhite = "W"

	EmptyCell = ""
)

// Board is a flat 15x15 grid addressed as y*BoardSize+x. It is always
// derived by replaying the move ledger, never mutated in place by callers.
type Board [TotalCells]string

// Placement is a single stone drop used when replaying a ledger.
type Placement struct {
	X     int
	Y     int
	Stone string
}

// axes through a cell: horizontal, vertical and the two diagonals.
var axes = [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

func InBounds(x, y int) bool {
	return x >= 0 && x < BoardSize && y >= 0 && y < BoardSize
}

func (that *Board) At(x, y int) string {
	return that[y*BoardSize+x]
}

func (that *Board) set(x, y int, stone string) {
	that[y*BoardSize+x] = stone
}

// IsLegalMove reports whether the cell is on the board and unoccupied.
func IsLegalMove(board *Board, x, y int) bool {
	return InBounds(x, y) && board.At(x, y) == EmptyCell
}

// ApplyMove occupies the cell. Legality must be checked by the caller.
func ApplyMove(board *Board, x, y int, stone string) {
	board.set(x, y, stone)
}

// Replay folds an ordered move sequence into a fresh board.
func Replay(placements []Placement) *Board {
	board := &Board{}
	for _, p := range placements {
		board.set(p.X, p.Y, p.Stone)
	}

	return board
}

// CheckWin scans the four axes through the just-played cell and reports
// whether any of them carries a run of WinLength or more equal stones.
// A move completing several axes at once is still a single win.
func CheckWin(board *Board, x, y int, stone string) bool {
	for _, axis := range axes {
		run := 1
		run += countRun(board, x, y, axis[0], axis[1], stone)
		run += countRun(board, x, y, -axis[0], -axis[1], stone)

		if run >= WinLength {
			return true
		}
	}

	return false
}

// CheckDraw reports whether every cell is occupied. It is only meaningful
// after CheckWin returned false for the last move.
func CheckDraw(board *Board) bool {
	for _, cell := range board {
		if cell == EmptyCell {
			return false
		}
	}

	return true
}

func countRun(board *Board, x, y, dx, dy int, stone string) int {
	count := 0
	for {
		x += dx
		y += dy

		if !InBounds(x, y) || board.At(x, y) != stone {
			return count
		}

		count++
	}
}
