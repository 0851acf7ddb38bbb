// Package gomoku implements the rules.Game capability for free-style gomoku
// (five-in-a-row, no overline restriction) at two board sizes, 9x9 and
// 15x15. Stones are never removed, so the side to move is derived from
// stone counts rather than stored, keeping Position a small comparable
// value.
package gomoku

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/nullmove/veritas/rules"
)

const (
	winLength = 5
	// maxCells backs every Position regardless of board size; a Game
	// instance only ever reads/writes the first size*size of them.
	maxCells = 15 * 15
)

// Cell is the occupant of one intersection.
type Cell uint8

const (
	Empty Cell = iota
	First
	Second
)

func cellFor(p rules.Player) Cell {
	if p == rules.First {
		return First
	}
	return Second
}

// Position is the board. Cells beyond size*size of whichever Game produced
// it are always Empty and never read.
type Position struct {
	Cells [maxCells]Cell
}

// Move is the flat index of the intersection played.
type Move int16

// Game implements rules.Game[Position, Move] for one board size.
type Game struct {
	size int
}

// New9 returns the 9x9 gomoku rules capability.
func New9() *Game { return &Game{size: 9} }

// New15 returns the 15x15 gomoku rules capability.
func New15() *Game { return &Game{size: 15} }

func (g *Game) Name() string {
	if g.size == 9 {
		return "gomoku9"
	}
	return "gomoku15"
}

func (g *Game) DefaultPosition() Position { return Position{} }

func (g *Game) cells() int { return g.size * g.size }

func (g *Game) counts(pos Position) (first, second int) {
	for i := 0; i < g.cells(); i++ {
		switch pos.Cells[i] {
		case First:
			first++
		case Second:
			second++
		}
	}
	return
}

// ToMove derives the side on move from stone parity: equal counts means
// First (who always opens) is to move.
func (g *Game) ToMove(pos Position) rules.Player {
	first, second := g.counts(pos)
	if first <= second {
		return rules.First
	}
	return rules.Second
}

var lineDirections = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

func (g *Game) hasFiveInARow(pos Position, want Cell) bool {
	size := g.size
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			if pos.Cells[row*size+col] != want {
				continue
			}
			for _, d := range lineDirections {
				count := 1
				for step := 1; step < winLength; step++ {
					nr, nc := row+d[0]*step, col+d[1]*step
					if nr < 0 || nr >= size || nc < 0 || nc >= size || pos.Cells[nr*size+nc] != want {
						break
					}
					count++
				}
				if count >= winLength {
					return true
				}
			}
		}
	}
	return false
}

// Outcome checks for a completed five-in-a-row for either side, then a full
// board (draw); otherwise the game is ongoing.
func (g *Game) Outcome(pos Position) rules.Outcome {
	if g.hasFiveInARow(pos, First) {
		return rules.FirstWin
	}
	if g.hasFiveInARow(pos, Second) {
		return rules.SecondWin
	}
	first, second := g.counts(pos)
	if first+second == g.cells() {
		return rules.Draw
	}
	return rules.Ongoing
}

func (g *Game) MakeMove(pos *Position, move Move) {
	if pos.Cells[move] != Empty {
		panic("gomoku: illegal move, cell already occupied")
	}
	pos.Cells[move] = cellFor(g.ToMove(*pos))
}

func (g *Game) GenerateMoves(pos Position, sink rules.MoveSink[Move]) {
	for i := 0; i < g.cells(); i++ {
		if pos.Cells[i] == Empty {
			if sink(Move(i)) {
				return
			}
		}
	}
}

// FillFeatureMap marks one bit per occupied cell: plane 0 for the side to
// move's stones, plane 1 for the opponent's.
func (g *Game) FillFeatureMap(pos Position, sink rules.FeatureSink) {
	mover := cellFor(g.ToMove(pos))
	n := g.cells()
	for i := 0; i < n; i++ {
		switch pos.Cells[i] {
		case Empty:
		case mover:
			sink(i)
		default:
			sink(i + n)
		}
	}
}

func (g *Game) TensorDims(batchSize int) []int { return []int{batchSize, 2 * g.cells()} }

func (g *Game) PolicyDim() int { return g.cells() }

func (g *Game) MovePolicyIndex(move Move) int { return int(move) }

func (g *Game) squareName(m Move) string {
	row, col := int(m)/g.size, int(m)%g.size
	return string(rune('a'+col)) + itoa(row+1)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (g *Game) parseSquare(s string) (Move, error) {
	if len(s) < 2 {
		return 0, errors.Errorf("gomoku: malformed square %q", s)
	}
	col := int(s[0] - 'a')
	row := 0
	for _, ch := range s[1:] {
		if ch < '0' || ch > '9' {
			return 0, errors.Errorf("gomoku: malformed square %q", s)
		}
		row = row*10 + int(ch-'0')
	}
	row--
	if col < 0 || col >= g.size || row < 0 || row >= g.size {
		return 0, errors.Errorf("gomoku: square %q out of range", s)
	}
	return Move(row*g.size + col), nil
}

func (g *Game) ParseMove(text string) (Move, error) { return g.parseSquare(strings.TrimSpace(text)) }

func (g *Game) FormatMove(move Move) string { return g.squareName(move) }

func cellChar(c Cell) byte {
	switch c {
	case First:
		return 'x'
	case Second:
		return 'o'
	default:
		return '-'
	}
}

// FEN renders the board one row per line (row 0 first), joined by '/',
// followed by the side to move.
func (g *Game) FEN(pos Position) string {
	var sb strings.Builder
	for row := 0; row < g.size; row++ {
		for col := 0; col < g.size; col++ {
			sb.WriteByte(cellChar(pos.Cells[row*g.size+col]))
		}
		if row < g.size-1 {
			sb.WriteByte('/')
		}
	}
	sb.WriteByte(' ')
	if g.ToMove(pos) == rules.First {
		sb.WriteByte('x')
	} else {
		sb.WriteByte('o')
	}
	return sb.String()
}

// ParseFEN is the inverse of FEN; the trailing side character is validated
// against, but not stored separately from, the board's stone-count parity.
func (g *Game) ParseFEN(text string) (Position, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return Position{}, errors.Errorf("gomoku: malformed fen %q", text)
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != g.size {
		return Position{}, errors.Errorf("gomoku: fen %q does not have %d rows", text, g.size)
	}
	var pos Position
	for row, rowStr := range rows {
		if len(rowStr) != g.size {
			return Position{}, errors.Errorf("gomoku: row %q is not %d cells wide", rowStr, g.size)
		}
		for col, ch := range []byte(rowStr) {
			switch ch {
			case 'x':
				pos.Cells[row*g.size+col] = First
			case 'o':
				pos.Cells[row*g.size+col] = Second
			case '-':
				pos.Cells[row*g.size+col] = Empty
			default:
				return Position{}, errors.Errorf("gomoku: unknown cell %q", string(ch))
			}
		}
	}
	var wantSide rules.Player
	switch fields[1] {
	case "x":
		wantSide = rules.First
	case "o":
		wantSide = rules.Second
	default:
		return Position{}, errors.Errorf("gomoku: unknown side to move %q", fields[1])
	}
	if g.ToMove(pos) != wantSide {
		return Position{}, errors.Errorf("gomoku: fen side to move %q disagrees with stone counts", fields[1])
	}
	return pos, nil
}
