package search

import "github.com/nullmove/veritas/rules"

// BestMoveByRollouts walks the sibling list of the root and returns the
// move of the child with the most visits, ties broken by first-seen
// sibling order. Unvisited (dangling) edges do not participate.
func BestMoveByRollouts[Move any](t *Tree[Move]) (move Move, ok bool) {
	root := t.Get(t.Root())
	if root.Edges == nil {
		return move, false
	}

	bestVisits := int64(-1)
	child := root.Child
	for !child.IsNull() {
		childNode := t.Get(child)
		if int64(childNode.Visits) > bestVisits {
			bestVisits = int64(childNode.Visits)
			move = root.Edges[childNode.EdgeIndex].Move
			ok = true
		}
		child = childNode.Sibling
	}
	return move, ok
}

// RootDistribution returns a vector of length policyDim, where slot i holds
// the visit count of the root's child attached to the edge whose
// MovePolicyIndex is i, or 0 if no child has been instantiated for that
// edge. The caller supplies policyDim and the index function so this stays
// independent of any one rules.Game.
func RootDistribution[Move any](t *Tree[Move], policyDim int, moveIndex func(Move) int) []uint64 {
	dist := make([]uint64, policyDim)
	root := t.Get(t.Root())
	if root.Edges == nil {
		return dist
	}
	child := root.Child
	for !child.IsNull() {
		childNode := t.Get(child)
		move := root.Edges[childNode.EdgeIndex].Move
		dist[moveIndex(move)] = uint64(childNode.Visits)
		child = childNode.Sibling
	}
	return dist
}

// PV extracts the principal variation from the root: repeatedly pick the
// child with the largest visit count, append its move, descend; stop at a
// node with no edges or no visited children.
func PV[Move any](t *Tree[Move]) []Move {
	var pv []Move
	cur := t.Root()
	for {
		node := t.Get(cur)
		if node.Edges == nil {
			return pv
		}
		bestVisits := uint32(0)
		bestChild := cur
		found := false
		child := node.Child
		for !child.IsNull() {
			childNode := t.Get(child)
			if childNode.Visits > bestVisits || !found {
				bestVisits = childNode.Visits
				bestChild = child
				found = true
			}
			child = childNode.Sibling
		}
		if !found || bestVisits == 0 {
			return pv
		}
		childNode := t.Get(bestChild)
		pv = append(pv, node.Edges[childNode.EdgeIndex].Move)
		cur = bestChild
	}
}

// rootWinrate reports the root's current winrate, or 0.5 if it has not
// been visited yet.
func rootWinrate[Move any](t *Tree[Move]) float64 {
	root := t.Get(t.Root())
	if root.Visits == 0 {
		return 0.5
	}
	return root.Winrate()
}

// valueFromOutcome synthesizes the backpropagation value for a terminal
// node directly from the game outcome: draw -> 0.5, winner on move -> 0.0,
// winner just moved -> 1.0.
func valueFromOutcome(outcome rules.Outcome, toMove rules.Player) float64 {
	switch outcome {
	case rules.Draw:
		return 0.5
	case rules.FirstWin:
		if toMove == rules.First {
			return 0.0
		}
		return 1.0
	case rules.SecondWin:
		if toMove == rules.Second {
			return 0.0
		}
		return 1.0
	default:
		panic("search: valueFromOutcome called on a non-terminal outcome")
	}
}
