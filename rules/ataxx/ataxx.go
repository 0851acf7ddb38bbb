// Package ataxx implements the 7x7 Ataxx rules.Game capability: clone
// moves (place adjacent to a friendly stone) and jump moves (relocate a
// stone two cells away), with infection of adjacent enemy stones on either
// kind of move.
package ataxx

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/nullmove/veritas/rules"
)

const (
	boardSize = 7
	numCells  = boardSize * boardSize

	// PolicyDim is 49 clone targets plus one jump move per (source, offset)
	// pair, where offset ranges over the 16 cells at Chebyshev distance 2.
	PolicyDim = numCells + numCells*len(jumpOffsets)
)

// Cell is the occupant of one square.
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

// Position is the 7x7 board plus the side to move. Infection changes the
// stone counts arbitrarily, so unlike placement games the mover cannot be
// derived from the board and must be carried explicitly. The zero value of
// Mover is First, matching the default position.
type Position struct {
	Cells [numCells]Cell
	Mover rules.Player
}

// Move is either a clone (From == cloneFrom, a new stone appears at To) or a
// jump (a stone relocates from From to To). Clone moves don't encode which
// neighbor supplied the new stone because the resulting board is identical
// regardless of which one did.
type Move struct {
	From int8
	To   int8
}

const cloneFrom int8 = -1

var jumpOffsets = [16][2]int8{
	{-2, -2}, {-2, -1}, {-2, 0}, {-2, 1}, {-2, 2},
	{-1, -2}, {-1, 2},
	{0, -2}, {0, 2},
	{1, -2}, {1, 2},
	{2, -2}, {2, -1}, {2, 0}, {2, 1}, {2, 2},
}

func offsetIndex(dr, dc int8) int {
	for i, o := range jumpOffsets {
		if o[0] == dr && o[1] == dc {
			return i
		}
	}
	panic("ataxx: not a legal jump offset")
}

// Game implements rules.Game[Position, Move].
type Game struct{}

// New returns the 7x7 Ataxx rules capability.
func New() *Game { return &Game{} }

func (*Game) Name() string { return "ataxx" }

// DefaultPosition returns the standard start: each player owns two opposite
// corners.
func (*Game) DefaultPosition() Position {
	var pos Position
	pos.Cells[square(0, 0)] = First
	pos.Cells[square(boardSize-1, boardSize-1)] = First
	pos.Cells[square(0, boardSize-1)] = Second
	pos.Cells[square(boardSize-1, 0)] = Second
	return pos
}

func square(row, col int) int { return row*boardSize + col }

func (g *Game) counts(pos Position) (first, second int) {
	for _, c := range pos.Cells {
		switch c {
		case First:
			first++
		case Second:
			second++
		}
	}
	return
}

func (g *Game) ToMove(pos Position) rules.Player { return pos.Mover }

// Outcome reports the realized result: a side with zero stones loses
// immediately; otherwise the game ends when the board is full or neither
// side has a legal move, with more stones winning.
func (g *Game) Outcome(pos Position) rules.Outcome {
	first, second := g.counts(pos)
	if first == 0 {
		return rules.SecondWin
	}
	if second == 0 {
		return rules.FirstWin
	}
	if first+second == numCells || !(g.hasMove(pos, rules.First) || g.hasMove(pos, rules.Second)) {
		switch {
		case first > second:
			return rules.FirstWin
		case second > first:
			return rules.SecondWin
		default:
			return rules.Draw
		}
	}
	return rules.Ongoing
}

func (g *Game) hasMove(pos Position, side rules.Player) bool {
	found := false
	g.generateMovesFor(pos, side, func(Move) bool {
		found = true
		return true
	})
	return found
}

// MakeMove applies move, infecting every adjacent enemy stone around the
// destination, then advances the side to move. If the resulting position
// leaves the new side to move with no legal move (but the game is not yet
// over), the turn is silently passed back, mirroring Ataxx's standard
// forced-pass rule without needing a pass move in the policy space.
func (g *Game) MakeMove(pos *Position, move Move) {
	mover := pos.Mover
	if move.From != cloneFrom {
		pos.Cells[move.From] = Empty
	}
	pos.Cells[move.To] = cellFor(mover)
	g.infect(pos, move.To, mover)

	pos.Mover = mover.Other()
	if g.Outcome(*pos) == rules.Ongoing && !g.hasMove(*pos, pos.Mover) {
		pos.Mover = mover
	}
}

func (g *Game) infect(pos *Position, at int8, mover rules.Player) {
	row, col := int(at)/boardSize, int(at)%boardSize
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			nr, nc := row+dr, col+dc
			if nr < 0 || nr >= boardSize || nc < 0 || nc >= boardSize {
				continue
			}
			idx := square(nr, nc)
			if pos.Cells[idx] != Empty {
				pos.Cells[idx] = cellFor(mover)
			}
		}
	}
}

// GenerateMoves yields the legal moves of the side on move. MakeMove's
// forced-pass handling guarantees that side has at least one move in every
// non-terminal position.
func (g *Game) GenerateMoves(pos Position, sink rules.MoveSink[Move]) {
	g.generateMovesFor(pos, pos.Mover, sink)
}

func (g *Game) generateMovesFor(pos Position, side rules.Player, sink rules.MoveSink[Move]) {
	want := cellFor(side)
	var clonedTo [numCells]bool
	for idx, c := range pos.Cells {
		if c != want {
			continue
		}
		row, col := idx/boardSize, idx%boardSize
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				if dr == 0 && dc == 0 {
					continue
				}
				nr, nc := row+dr, col+dc
				if nr < 0 || nr >= boardSize || nc < 0 || nc >= boardSize {
					continue
				}
				target := square(nr, nc)
				if pos.Cells[target] != Empty || clonedTo[target] {
					continue
				}
				clonedTo[target] = true
				if sink(Move{From: cloneFrom, To: int8(target)}) {
					return
				}
			}
		}
		for _, off := range jumpOffsets {
			nr, nc := row+int(off[0]), col+int(off[1])
			if nr < 0 || nr >= boardSize || nc < 0 || nc >= boardSize {
				continue
			}
			target := square(nr, nc)
			if pos.Cells[target] != Empty {
				continue
			}
			if sink(Move{From: int8(idx), To: int8(target)}) {
				return
			}
		}
	}
}

// FillFeatureMap marks one bit per occupied cell: plane 0 for the side to
// move's stones, plane 1 for the opponent's.
func (g *Game) FillFeatureMap(pos Position, sink rules.FeatureSink) {
	mover := cellFor(pos.Mover)
	for idx, c := range pos.Cells {
		switch c {
		case mover:
			sink(idx)
		case Empty:
		default:
			sink(idx + numCells)
		}
	}
}

func (g *Game) TensorDims(batchSize int) []int { return []int{batchSize, 2 * numCells} }

func (g *Game) PolicyDim() int { return PolicyDim }

// MovePolicyIndex maps a clone move to its target square (0..48) and a jump
// move to 49 + from*16 + offsetIndex(to-from).
func (g *Game) MovePolicyIndex(move Move) int {
	if move.From == cloneFrom {
		return int(move.To)
	}
	fr, fc := int(move.From)/boardSize, int(move.From)%boardSize
	tr, tc := int(move.To)/boardSize, int(move.To)%boardSize
	return numCells + int(move.From)*len(jumpOffsets) + offsetIndex(int8(tr-fr), int8(tc-fc))
}

func squareName(idx int8) string {
	row, col := int(idx)/boardSize, int(idx)%boardSize
	return fmt.Sprintf("%c%d", 'a'+col, row+1)
}

func parseSquare(s string) (int8, error) {
	if len(s) != 2 {
		return 0, errors.Errorf("ataxx: malformed square %q", s)
	}
	col := int(s[0] - 'a')
	row := int(s[1] - '1')
	if col < 0 || col >= boardSize || row < 0 || row >= boardSize {
		return 0, errors.Errorf("ataxx: square %q out of range", s)
	}
	return int8(square(row, col)), nil
}

// ParseMove reads a single square ("c3") as a clone move or two concatenated
// squares ("c3e5") as a jump.
func (g *Game) ParseMove(text string) (Move, error) {
	switch len(text) {
	case 2:
		to, err := parseSquare(text)
		if err != nil {
			return Move{}, err
		}
		return Move{From: cloneFrom, To: to}, nil
	case 4:
		from, err := parseSquare(text[:2])
		if err != nil {
			return Move{}, err
		}
		to, err := parseSquare(text[2:])
		if err != nil {
			return Move{}, err
		}
		return Move{From: from, To: to}, nil
	default:
		return Move{}, errors.Errorf("ataxx: malformed move %q", text)
	}
}

// FormatMove renders a clone move as its target square, a jump as
// from-square followed by to-square.
func (g *Game) FormatMove(move Move) string {
	if move.From == cloneFrom {
		return squareName(move.To)
	}
	return squareName(move.From) + squareName(move.To)
}

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

// FEN renders the board one row per rank (rank 7 first), joined by '/',
// followed by the side to move.
func (g *Game) FEN(pos Position) string {
	var sb strings.Builder
	for row := boardSize - 1; row >= 0; row-- {
		for col := 0; col < boardSize; col++ {
			sb.WriteByte(cellChar(pos.Cells[square(row, col)]))
		}
		if row > 0 {
			sb.WriteByte('/')
		}
	}
	sb.WriteByte(' ')
	if pos.Mover == rules.First {
		sb.WriteByte('x')
	} else {
		sb.WriteByte('o')
	}
	return sb.String()
}

// ParseFEN is the inverse of FEN.
func (g *Game) ParseFEN(text string) (Position, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return Position{}, errors.Errorf("ataxx: malformed fen %q", text)
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != boardSize {
		return Position{}, errors.Errorf("ataxx: fen %q does not have %d ranks", text, boardSize)
	}
	var pos Position
	for i, rowStr := range rows {
		row := boardSize - 1 - i
		if len(rowStr) != boardSize {
			return Position{}, errors.Errorf("ataxx: rank %q is not %d cells wide", rowStr, boardSize)
		}
		for col, ch := range []byte(rowStr) {
			switch ch {
			case 'x':
				pos.Cells[square(row, col)] = First
			case 'o':
				pos.Cells[square(row, col)] = Second
			case '-':
				pos.Cells[square(row, col)] = Empty
			default:
				return Position{}, errors.Errorf("ataxx: unknown cell %q", string(ch))
			}
		}
	}
	switch fields[1] {
	case "x":
		pos.Mover = rules.First
	case "o":
		pos.Mover = rules.Second
	default:
		return Position{}, errors.Errorf("ataxx: unknown side to move %q", fields[1])
	}
	return pos, nil
}
