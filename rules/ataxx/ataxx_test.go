package ataxx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullmove/veritas/rules"
)

func TestDefaultPositionToMoveIsFirst(t *testing.T) {
	r := require.New(t)
	g := New()
	pos := g.DefaultPosition()
	r.Equal(rules.First, g.ToMove(pos))
	r.Equal(rules.Ongoing, g.Outcome(pos))
}

func TestGenerateMovesFromDefaultPositionIncludesCloneAndJump(t *testing.T) {
	r := require.New(t)
	g := New()
	pos := g.DefaultPosition()

	var clones, jumps int
	g.GenerateMoves(pos, func(m Move) bool {
		if m.From == cloneFrom {
			clones++
		} else {
			jumps++
		}
		return false
	})
	r.Greater(clones, 0)
	r.Greater(jumps, 0)
}

func TestMakeMoveCloneInfectsAdjacentEnemy(t *testing.T) {
	r := require.New(t)
	g := New()
	pos := g.DefaultPosition()

	// (0,0) is First; (0,1) is empty and adjacent to it. A Second stone at
	// (0,2) is adjacent to (0,1), so cloning there infects it.
	pos.Cells[square(0, 2)] = Second
	move := Move{From: cloneFrom, To: int8(square(0, 1))}
	g.MakeMove(&pos, move)
	r.Equal(First, pos.Cells[square(0, 1)])
	r.Equal(First, pos.Cells[square(0, 2)])
	r.Equal(rules.Second, g.ToMove(pos))
}

func TestMakeMoveJumpVacatesSource(t *testing.T) {
	r := require.New(t)
	g := New()
	pos := g.DefaultPosition()

	from := int8(square(0, 0))
	to := int8(square(2, 0))
	g.MakeMove(&pos, Move{From: from, To: to})
	r.Equal(Empty, pos.Cells[from])
	r.Equal(First, pos.Cells[to])
}

func TestMovePolicyIndexRoundTripsThroughOffsets(t *testing.T) {
	r := require.New(t)
	g := New()
	seen := make(map[int]bool)
	for from := 0; from < numCells; from++ {
		row, col := from/boardSize, from%boardSize
		for _, off := range jumpOffsets {
			nr, nc := row+int(off[0]), col+int(off[1])
			if nr < 0 || nr >= boardSize || nc < 0 || nc >= boardSize {
				continue
			}
			m := Move{From: int8(from), To: int8(square(nr, nc))}
			idx := g.MovePolicyIndex(m)
			r.False(seen[idx], "policy index %d reused", idx)
			seen[idx] = true
			r.GreaterOrEqual(idx, numCells)
			r.Less(idx, PolicyDim)
		}
	}
}

func TestFormatParseMoveRoundTrip(t *testing.T) {
	r := require.New(t)
	g := New()

	clone := Move{From: cloneFrom, To: int8(square(3, 3))}
	text := g.FormatMove(clone)
	r.Len(text, 2)
	parsed, err := g.ParseMove(text)
	r.NoError(err)
	r.Equal(clone, parsed)

	jump := Move{From: int8(square(0, 0)), To: int8(square(2, 1))}
	text = g.FormatMove(jump)
	r.Len(text, 4)
	parsed, err = g.ParseMove(text)
	r.NoError(err)
	r.Equal(jump, parsed)
}

func TestFENRoundTrip(t *testing.T) {
	r := require.New(t)
	g := New()
	pos := g.DefaultPosition()

	fen := g.FEN(pos)
	parsed, err := g.ParseFEN(fen)
	r.NoError(err)
	r.Equal(pos, parsed)
}

func TestMakeMovePassesTurnBackWhenOpponentIsStuck(t *testing.T) {
	r := require.New(t)
	g := New()

	// Wall Second's lone corner stone in with First stones covering every
	// clone and jump target, leaving the rest of the board open for First.
	var pos Position
	pos.Cells[square(0, 0)] = Second
	for row := 0; row <= 2; row++ {
		for col := 0; col <= 2; col++ {
			if row == 0 && col == 0 {
				continue
			}
			pos.Cells[square(row, col)] = First
		}
	}
	pos.Mover = rules.First
	r.Equal(rules.Ongoing, g.Outcome(pos))

	g.MakeMove(&pos, Move{From: cloneFrom, To: int8(square(3, 3))})
	r.Equal(rules.First, g.ToMove(pos), "turn passes back when Second has no move")
}

func TestOutcomeFirstWinsWhenSecondHasNoStones(t *testing.T) {
	r := require.New(t)
	g := New()
	var pos Position
	pos.Cells[0] = First
	r.Equal(rules.FirstWin, g.Outcome(pos))
}

func TestFillFeatureMapOnlyMarksOccupiedCells(t *testing.T) {
	r := require.New(t)
	g := New()
	pos := g.DefaultPosition()

	var bits int
	g.FillFeatureMap(pos, func(int) { bits++ })
	r.Equal(4, bits, "four stones on the board, one bit per stone")
}
