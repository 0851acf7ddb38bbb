package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullmove/veritas/arena"
)

func TestSelectBestTiesBreakToLowestEdgeIndex(t *testing.T) {
	r := require.New(t)
	tr := NewTree[int]()
	root := tr.ensureRoot()
	tr.Get(root).Edges = []Edge[int]{
		{Move: 0, Prior: 1.0 / 3},
		{Move: 1, Prior: 1.0 / 3},
		{Move: 2, Prior: 1.0 / 3},
	}

	sel := selectBest(tr, DefaultParams(), root)

	r.Equal(0, sel.edgeIndex)
	r.True(sel.child.IsNull())
}

func TestSelectBestPrefersHigherPrior(t *testing.T) {
	r := require.New(t)
	tr := NewTree[int]()
	root := tr.ensureRoot()
	tr.Get(root).Edges = []Edge[int]{
		{Move: 0, Prior: 0.1},
		{Move: 1, Prior: 0.8},
		{Move: 2, Prior: 0.1},
	}

	sel := selectBest(tr, DefaultParams(), root)

	r.Equal(1, sel.edgeIndex)
}

func TestSelectBestPrefersExpandedChildWithHighWinrate(t *testing.T) {
	r := require.New(t)
	tr := NewTree[int]()
	root := tr.ensureRoot()
	tr.Get(root).Edges = []Edge[int]{
		{Move: 0, Prior: 0.5},
		{Move: 1, Prior: 0.5},
	}
	tr.Get(root).Visits = 10

	child := tr.appendChild(root, 0)
	cn := tr.Get(child)
	cn.WL = 9
	cn.Visits = 10 // winrate 0.9, a strong, well-explored child

	// Both edges are expanded with equal priors and visits, so only the Q
	// term separates them; a dangling edge would instead score FPU + c*prior.
	weak := tr.appendChild(root, 1)
	wn := tr.Get(weak)
	wn.WL = 1
	wn.Visits = 10 // winrate 0.1

	sel := selectBest(tr, DefaultParams(), root)

	r.Equal(0, sel.edgeIndex)
	r.Equal(child, sel.child)
}

func TestSelectBestPanicsOnUnexpandedNode(t *testing.T) {
	r := require.New(t)
	tr := NewTree[int]()
	root := tr.ensureRoot()

	r.Panics(func() { selectBest(tr, DefaultParams(), root) })
}

func TestSelectBestDanglingUsesFirstPlayUrgency(t *testing.T) {
	r := require.New(t)
	tr := NewTree[int]()
	root := tr.ensureRoot()
	tr.Get(root).Edges = []Edge[int]{
		{Move: 0, Prior: 0.5},
		{Move: 1, Prior: 0.5},
	}

	sel := selectBest(tr, DefaultParams(), root)
	r.True(sel.child == arena.Null())
}
