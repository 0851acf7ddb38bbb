package gomoku

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullmove/veritas/rules"
)

func TestDefaultPositionIsEmptyAndFirstToMove(t *testing.T) {
	r := require.New(t)
	g := New9()
	pos := g.DefaultPosition()
	r.Equal(rules.First, g.ToMove(pos))
	r.Equal(rules.Ongoing, g.Outcome(pos))
}

func TestMakeMoveAlternatesSideToMove(t *testing.T) {
	r := require.New(t)
	g := New9()
	pos := g.DefaultPosition()
	g.MakeMove(&pos, Move(0))
	r.Equal(First, pos.Cells[0])
	r.Equal(rules.Second, g.ToMove(pos))
}

func TestMakeMoveOnOccupiedCellPanics(t *testing.T) {
	r := require.New(t)
	g := New9()
	pos := g.DefaultPosition()
	g.MakeMove(&pos, Move(0))
	r.Panics(func() { g.MakeMove(&pos, Move(0)) })
}

func TestOutcomeDetectsFiveInARowHorizontally(t *testing.T) {
	r := require.New(t)
	g := New9()
	var pos Position
	for col := 0; col < 5; col++ {
		pos.Cells[0*9+col] = First
	}
	pos.Cells[1*9+0] = Second
	pos.Cells[1*9+1] = Second
	pos.Cells[1*9+2] = Second
	pos.Cells[1*9+3] = Second
	r.Equal(rules.FirstWin, g.Outcome(pos))
}

func TestOutcomeDetectsFiveInARowDiagonally(t *testing.T) {
	r := require.New(t)
	g := New15()
	var pos Position
	for i := 0; i < 5; i++ {
		pos.Cells[i*15+i] = Second
	}
	r.Equal(rules.SecondWin, g.Outcome(pos))
}

func TestGenerateMovesExcludesOccupiedCells(t *testing.T) {
	r := require.New(t)
	g := New9()
	pos := g.DefaultPosition()
	g.MakeMove(&pos, Move(5))

	var seen bool
	g.GenerateMoves(pos, func(m Move) bool {
		if m == Move(5) {
			seen = true
		}
		return false
	})
	r.False(seen)
}

func TestFormatParseMoveRoundTrip(t *testing.T) {
	r := require.New(t)
	g := New15()
	m := Move(15*3 + 7)
	text := g.FormatMove(m)
	parsed, err := g.ParseMove(text)
	r.NoError(err)
	r.Equal(m, parsed)
}

func TestFENRoundTrip(t *testing.T) {
	r := require.New(t)
	g := New9()
	pos := g.DefaultPosition()
	g.MakeMove(&pos, Move(10))
	g.MakeMove(&pos, Move(20))

	fen := g.FEN(pos)
	parsed, err := g.ParseFEN(fen)
	r.NoError(err)
	r.Equal(pos, parsed)
}

func TestNamesDistinguishBoardSizes(t *testing.T) {
	r := require.New(t)
	r.Equal("gomoku9", New9().Name())
	r.Equal("gomoku15", New15().Name())
	r.Equal(81, New9().PolicyDim())
	r.Equal(225, New15().PolicyDim())
}

func TestFillFeatureMapOnlyMarksOccupiedCells(t *testing.T) {
	r := require.New(t)
	g := New9()
	pos := g.DefaultPosition()
	g.MakeMove(&pos, Move(1))
	g.MakeMove(&pos, Move(2))

	var bits int
	g.FillFeatureMap(pos, func(int) { bits++ })
	r.Equal(2, bits)
}
