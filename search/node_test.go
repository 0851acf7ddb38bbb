package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullmove/veritas/arena"
	"github.com/nullmove/veritas/rules"
)

func TestExpandSoftmaxSumsToOne(t *testing.T) {
	r := require.New(t)
	game := nimGame{}
	pos := nimPosition{stones: 5, mover: rules.First}

	n := newNode[int](arena.Null(), 0)
	rawPolicy := make([]float32, nimPolicyDim)
	rawPolicy[1] = 2.0
	rawPolicy[2] = -1.0

	expand(game, &n, pos, rawPolicy)

	r.True(n.Expanded())
	r.Len(n.Edges, 2) // moves 1 and 2 are both legal from 5 stones

	var total float32
	for _, e := range n.Edges {
		r.GreaterOrEqual(e.Prior, float32(0))
		r.LessOrEqual(e.Prior, float32(1))
		total += e.Prior
	}
	r.InDelta(1.0, total, 1e-5)
}

func TestExpandMarksTerminalOutcome(t *testing.T) {
	r := require.New(t)
	game := nimGame{}
	pos := nimPosition{stones: 0, mover: rules.Second} // first just took the last stone

	n := newNode[int](arena.Null(), 0)
	expand(game, &n, pos, make([]float32, nimPolicyDim))

	r.True(n.TerminalChecked())
	r.True(n.IsTerminal())
	r.Equal(rules.FirstWin, n.Bounds.Upper)
	r.Equal(rules.FirstWin, n.Bounds.Lower)
	r.Empty(n.Edges)
}

func TestExpandNonTerminalIsNotMarkedTerminal(t *testing.T) {
	r := require.New(t)
	game := nimGame{}
	pos := nimPosition{stones: 3, mover: rules.First}

	n := newNode[int](arena.Null(), 0)
	expand(game, &n, pos, make([]float32, nimPolicyDim))

	r.True(n.TerminalChecked())
	r.False(n.IsTerminal())
}

func TestAddVisitAccumulatesWinrate(t *testing.T) {
	r := require.New(t)
	n := newNode[int](arena.Null(), 0)

	n.AddVisit(1.0)
	n.AddVisit(0.0)
	n.AddVisit(1.0)

	r.Equal(uint32(3), n.Visits)
	r.InDelta(2.0/3.0, n.Winrate(), 1e-9)
	r.GreaterOrEqual(n.WL, 0.0)
	r.LessOrEqual(n.WL, float64(n.Visits))
}
