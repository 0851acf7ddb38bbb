package search

import (
	"github.com/chewxy/math32"

	"github.com/nullmove/veritas/arena"
)

// selection is the result of choosing the best edge at a node: the chosen
// edge's index, and the handle of its child if one has already been
// instantiated (the null handle for a dangling edge).
type selection struct {
	edgeIndex int
	child     arena.Handle
}

// selectBest implements the PUCT selection rule with first-play-urgency,
// walking the sibling-linked child list against the node's edge array: an
// edge with an instantiated child scores Q + U from the child's own
// statistics, a dangling edge scores FPU + exploration on its prior alone.
func selectBest[Move any](t *Tree[Move], params Params, nodeHandle arena.Handle) selection {
	node := t.Get(nodeHandle)
	edges := node.Edges
	if edges == nil {
		panic("search: attempted to select the best edge of an unexpanded node")
	}

	explorationFactor := float32(params.CPuct) * math32.Sqrt(float32(node.Visits+1))

	var firstPlayUrgency float32 = 0.5
	if node.Visits > 0 {
		firstPlayUrgency = float32(1 - node.Winrate())
	}

	type scored struct {
		edgeIndex int
		child     arena.Handle
		value     float32
		hasChild  bool
	}
	values := make([]scored, len(edges))

	child := node.Child
	for !child.IsNull() {
		childNode := t.Get(child)
		edgeIdx := childNode.EdgeIndex
		q := float32(childNode.Winrate())
		u := explorationFactor * edges[edgeIdx].Prior / (1 + float32(childNode.Visits))
		values[edgeIdx] = scored{edgeIndex: edgeIdx, child: child, value: q + u, hasChild: true}
		child = childNode.Sibling
	}

	bestIdx := 0
	bestValue := math32.Inf(-1)
	bestChild := arena.Null()
	for i, e := range edges {
		var value float32
		var handle arena.Handle
		if values[i].hasChild {
			value = values[i].value
			handle = values[i].child
		} else {
			value = firstPlayUrgency + explorationFactor*e.Prior
			handle = arena.Null()
		}
		if value > bestValue {
			bestValue = value
			bestIdx = i
			bestChild = handle
		}
	}

	return selection{edgeIndex: bestIdx, child: bestChild}
}
