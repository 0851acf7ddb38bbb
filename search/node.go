// Package search implements an MCTS-PUCT search tree and the engine loop
// that drives it. The tree is arena-allocated (arena.Arena) and addressed
// by arena.Handle; the engine is generic over any rules.Game[Position,
// Move], so one search implementation serves every registered game.
package search

import (
	"github.com/chewxy/math32"

	"github.com/nullmove/veritas/arena"
	"github.com/nullmove/veritas/rules"
)

// Edge is immutable once created: the move it represents from the
// side-to-move's perspective at the parent position, and its prior
// probability from the policy head.
type Edge[Move any] struct {
	Move  Move
	Prior float32
}

// terminalState tracks whether a node's game-over status has been checked
// yet: unknown until the first check, then settled one way or the other.
type terminalState uint8

const (
	terminalUnknown terminalState = iota
	nonTerminal
	isTerminal
)

// Bounds is the upper/lower bound of the game-result lattice for a node.
// For terminal nodes both bounds collapse to the realized outcome.
type Bounds struct {
	Upper rules.Outcome
	Lower rules.Outcome
}

// Node is the mutable per-position search record. Edges is nil until the
// node has been expanded (visited >= 1 and the network has produced a
// policy).
type Node[Move any] struct {
	WL        float64 // accumulated value in [0, visits], perspective: the player who just moved into this position
	Edges     []Edge[Move]
	Parent    arena.Handle
	Child     arena.Handle // first instantiated child
	Sibling   arena.Handle // next instantiated child of the same parent
	EdgeIndex int          // index within Parent's Edges identifying the move that produced this node
	Visits    uint32
	terminal  terminalState
	Bounds    Bounds
}

// newNode creates an unexpanded, unvisited node.
func newNode[Move any](parent arena.Handle, edgeIndex int) Node[Move] {
	return Node[Move]{
		Parent:    parent,
		Child:     arena.Null(),
		Sibling:   arena.Null(),
		EdgeIndex: edgeIndex,
		Bounds:    Bounds{Upper: rules.Ongoing, Lower: rules.Ongoing},
	}
}

// Expanded reports whether this node has an edge list yet.
func (n *Node[Move]) Expanded() bool { return n.Edges != nil }

// IsTerminal reports whether this node's game-over status has been checked
// and found to be over. Before the status is checked (terminalUnknown) this
// is false. The status is recorded when the node is expanded; the engine's
// terminal short-circuit takes effect on the next visit after that.
func (n *Node[Move]) IsTerminal() bool { return n.terminal == isTerminal }

// TerminalChecked reports whether the game-over check has run at all.
func (n *Node[Move]) TerminalChecked() bool { return n.terminal != terminalUnknown }

// Winrate returns WL/Visits. Callers must ensure Visits > 0.
func (n *Node[Move]) Winrate() float64 {
	return n.WL / float64(n.Visits)
}

// AddVisit accumulates one backpropagated value into this node.
func (n *Node[Move]) AddVisit(value float64) {
	n.WL += value
	n.Visits++
}

// markOutcome records the outcome of the position this node represents,
// marking it terminal iff the game has actually ended.
func (n *Node[Move]) markOutcome(outcome rules.Outcome) {
	n.terminal = nonTerminal
	if outcome != rules.Ongoing {
		n.terminal = isTerminal
		n.Bounds = Bounds{Upper: outcome, Lower: outcome}
	}
}

// expand constructs a node's edge list from the legal moves of pos and the
// raw policy logits produced by the network: gather (move, logit) pairs,
// subtract the maximum logit, exponentiate, normalize by the sum. A
// probability outside [0,1] after that is a programming defect and panics
// rather than propagating.
func expand[Position any, Move comparable](game rules.Game[Position, Move], n *Node[Move], pos Position, rawPolicy []float32) {
	var moves []Edge[Move]
	game.GenerateMoves(pos, func(m Move) bool {
		logit := rawPolicy[game.MovePolicyIndex(m)]
		moves = append(moves, Edge[Move]{Move: m, Prior: logit})
		return false
	})

	if len(moves) > 0 {
		maxLogit := moves[0].Prior
		for _, e := range moves[1:] {
			if e.Prior > maxLogit {
				maxLogit = e.Prior
			}
		}
		var total float32
		for i := range moves {
			moves[i].Prior = math32.Exp(moves[i].Prior - maxLogit)
			total += moves[i].Prior
		}
		for i := range moves {
			moves[i].Prior /= total
			if moves[i].Prior < 0 || moves[i].Prior > 1 {
				panic("search: illegal move probability outside [0,1] after softmax")
			}
		}
	}

	n.Edges = moves
	n.markOutcome(game.Outcome(pos))
}
