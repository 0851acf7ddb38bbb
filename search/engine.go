package search

import (
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/nullmove/veritas/arena"
	"github.com/nullmove/veritas/rules"
)

// Evaluator is the search engine's view of the network: submit one
// position's sparse feature map, block until a policy/value pair comes
// back. Concrete batching lives in package eval; Engine only needs this
// much of it, keeping the two packages decoupled.
type Evaluator interface {
	Evaluate(features []int, policyDim int) (policy []float32, value float32, err error)
}

// Engine drives one search: select/expand/evaluate/backpropagate until a
// Limits bound is hit or Stop is called. One Engine owns one Tree and is
// not safe for concurrent use by more than one goroutine at a time — the
// self-play generator gives each worker its own Engine.
type Engine[Position any, Move comparable] struct {
	game   rules.Game[Position, Move]
	tree   *Tree[Move]
	eval   Evaluator
	params Params
	logger *log.Logger

	rootPos Position
	stopCh  chan struct{}
}

// NewEngine constructs an Engine around a game, its evaluator, and search
// parameters. logger may be nil, in which case periodic reports are
// skipped.
func NewEngine[Position any, Move comparable](game rules.Game[Position, Move], eval Evaluator, params Params, logger *log.Logger) *Engine[Position, Move] {
	return &Engine[Position, Move]{
		game:    game,
		tree:    NewTree[Move](),
		eval:    eval,
		params:  params,
		logger:  logger,
		rootPos: game.DefaultPosition(),
		stopCh:  make(chan struct{}, 1),
	}
}

// SetPosition replaces the position the next Go call searches from and
// discards any stop request left over from a previous search. The tree does
// not persist across searches; there is no tree reuse between moves.
func (e *Engine[Position, Move]) SetPosition(pos Position) {
	e.rootPos = pos
	select {
	case <-e.stopCh:
	default:
	}
}

// Tree exposes the underlying search tree, mainly for the self-play root
// distribution and for tests.
func (e *Engine[Position, Move]) Tree() *Tree[Move] { return e.tree }

// Stop requests that a running Go call return at its next iteration
// boundary. Safe to call from another goroutine.
func (e *Engine[Position, Move]) Stop() {
	select {
	case e.stopCh <- struct{}{}:
	default:
	}
}

// Report is one line of the periodic progress output a caller may render
// (the protocol layer turns these into "info" lines).
type Report struct {
	Nodes     uint64
	ElapsedMs uint64
	Winrate   float64
	PV        []string
}

// ReportFunc is called every 1024 iterations while a search runs, and once
// more right before Go returns. nil disables progress callbacks.
type ReportFunc func(Report)

// Go runs the search loop until limits is exhausted or Stop is called,
// then returns the move with the most root visits. The root is always
// expanded first regardless of limits, so every searched root has at least
// one visit even under `go nodes 0`.
func (e *Engine[Position, Move]) Go(limits Limits, onReport ReportFunc) (Move, error) {
	var zero Move
	e.tree.Reset()
	root := e.tree.ensureRoot()
	start := time.Now()

	if err := e.expandAndBackprop(root, e.rootPos); err != nil {
		return zero, errors.Wrap(err, "search: mandatory root expansion")
	}

	sideIsFirst := e.game.ToMove(e.rootPos) == rules.First

	// The node budget counts playouts; the mandatory root expansion above
	// is not charged against it.
	var playouts uint64

	for {
		if e.tree.Get(root).IsTerminal() {
			break
		}

		elapsed := uint64(time.Since(start).Milliseconds())
		if limits.IsOutOfTime(playouts, elapsed, sideIsFirst) {
			break
		}

		select {
		case <-e.stopCh:
			goto stopped
		default:
		}

		if err := e.playout(); err != nil {
			return zero, errors.Wrap(err, "search: playout")
		}
		playouts++

		if playouts%1024 == 0 {
			rep := e.reportNow(uint64(time.Since(start).Milliseconds()))
			if onReport != nil {
				onReport(rep)
			}
			e.logReport(rep)
		}
	}
stopped:

	finalReport := e.reportNow(uint64(time.Since(start).Milliseconds()))
	if onReport != nil {
		onReport(finalReport)
	}
	e.logReport(finalReport)

	if move, ok := BestMoveByRollouts(e.tree); ok {
		return move, nil
	}
	if move, ok := e.highestPriorMove(); ok {
		return move, nil
	}
	return zero, errors.New("search: root position has no legal moves")
}

func (e *Engine[Position, Move]) reportNow(elapsedMs uint64) Report {
	root := e.tree.Get(e.tree.Root())
	pv := PV(e.tree)
	formatted := make([]string, len(pv))
	for i, m := range pv {
		formatted[i] = e.game.FormatMove(m)
	}
	winrate := 0.5
	if root.Visits > 0 {
		winrate = root.Winrate()
	}
	return Report{Nodes: uint64(e.tree.Len()), ElapsedMs: elapsedMs, Winrate: winrate, PV: formatted}
}

// logReport writes one progress line through the engine's logger. A nil
// logger makes this a no-op.
func (e *Engine[Position, Move]) logReport(rep Report) {
	if e.logger == nil {
		return
	}
	e.logger.Printf("nodes %d time %dms winrate %.4f pv %v", rep.Nodes, rep.ElapsedMs, rep.Winrate, rep.PV)
}

// highestPriorMove falls back to the root's highest raw-policy legal move
// when no child has ever been visited, as under `go nodes 0`.
func (e *Engine[Position, Move]) highestPriorMove() (move Move, ok bool) {
	root := e.tree.Get(e.tree.Root())
	if len(root.Edges) == 0 {
		return move, false
	}
	best := root.Edges[0]
	for _, edge := range root.Edges[1:] {
		if edge.Prior > best.Prior {
			best = edge
		}
	}
	return best.Move, true
}

// playout performs one selection/expansion/evaluation/backpropagation
// cycle starting at the root. It mutates a local copy of the root position
// as it descends, never touching e.rootPos.
func (e *Engine[Position, Move]) playout() error {
	pos := e.rootPos
	h := e.tree.Root()

	for {
		node := e.tree.Get(h)

		if node.IsTerminal() {
			value := valueFromOutcome(node.Bounds.Upper, e.game.ToMove(pos))
			e.backprop(h, value)
			return nil
		}

		if !node.Expanded() {
			return e.expandAndBackprop(h, pos)
		}

		sel := selectBest(e.tree, e.params, h)
		edge := node.Edges[sel.edgeIndex]
		e.game.MakeMove(&pos, edge.Move)

		if sel.child.IsNull() {
			child := e.tree.appendChild(h, sel.edgeIndex)
			return e.expandAndBackprop(child, pos)
		}
		h = sel.child
	}
}

// expandAndBackprop evaluates pos through the network, expands h with the
// resulting policy, and backpropagates the resulting value up the tree
// from h.
func (e *Engine[Position, Move]) expandAndBackprop(h arena.Handle, pos Position) error {
	var features []int
	e.game.FillFeatureMap(pos, func(i int) { features = append(features, i) })

	policy, value, err := e.eval.Evaluate(features, e.game.PolicyDim())
	if err != nil {
		return err
	}

	expandNode(e.game, e.tree, h, pos, policy)

	// The network reports P(side-to-move-at-pos wins); a node's own WL is
	// kept in the perspective of the player who just moved into it, i.e.
	// the opponent of that side. A freshly-expanded node takes the network
	// value even when it turned out terminal; the exact outcome value only
	// kicks in on the short-circuit the next time selection reaches it.
	e.backprop(h, 1-float64(value))
	return nil
}

// backprop credits value to h and every ancestor up to the root, flipping
// perspective (1 - value) at each step up the tree.
func (e *Engine[Position, Move]) backprop(h arena.Handle, value float64) {
	for !h.IsNull() {
		node := e.tree.Get(h)
		node.AddVisit(value)
		value = 1 - value
		h = node.Parent
	}
}
