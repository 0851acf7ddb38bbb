package search

import (
	"strconv"

	"github.com/nullmove/veritas/rules"
)

// nimPosition is a minimal stand-in game for exercising the generic search
// package without depending on a concrete rules.Game implementation: N
// stones, each turn take 1 or 2, whoever takes the last stone wins. Small
// enough to reason about exhaustively in tests.
type nimPosition struct {
	stones int
	mover  rules.Player
}

type nimGame struct{}

const nimPolicyDim = 3 // index 0 unused, 1 and 2 are the two legal move sizes

func (nimGame) Name() string { return "nim" }

func (nimGame) DefaultPosition() nimPosition {
	return nimPosition{stones: 5, mover: rules.First}
}

func (nimGame) ToMove(pos nimPosition) rules.Player { return pos.mover }

func (nimGame) Outcome(pos nimPosition) rules.Outcome {
	if pos.stones > 0 {
		return rules.Ongoing
	}
	// The player about to move never got to: their opponent took the last
	// stone on the prior ply.
	if pos.mover == rules.First {
		return rules.SecondWin
	}
	return rules.FirstWin
}

func (nimGame) MakeMove(pos *nimPosition, move int) {
	pos.stones -= move
	if pos.stones < 0 {
		panic("nimGame: illegal move")
	}
	pos.mover = pos.mover.Other()
}

func (nimGame) GenerateMoves(pos nimPosition, sink rules.MoveSink[int]) {
	for _, m := range []int{1, 2} {
		if m <= pos.stones {
			if sink(m) {
				return
			}
		}
	}
}

func (nimGame) FillFeatureMap(pos nimPosition, sink rules.FeatureSink) {
	sink(pos.stones)
}

func (nimGame) TensorDims(batchSize int) []int { return []int{batchSize, 1} }

func (nimGame) PolicyDim() int { return nimPolicyDim }

func (nimGame) MovePolicyIndex(move int) int { return move }

func (nimGame) ParseMove(text string) (int, error) { return strconv.Atoi(text) }

func (nimGame) FormatMove(move int) string { return strconv.Itoa(move) }

func (nimGame) FEN(pos nimPosition) string {
	mover := "f"
	if pos.mover == rules.Second {
		mover = "s"
	}
	return strconv.Itoa(pos.stones) + mover
}

func (nimGame) ParseFEN(text string) (nimPosition, error) {
	mover := rules.First
	if len(text) > 0 && text[len(text)-1] == 's' {
		mover = rules.Second
		text = text[:len(text)-1]
	} else if len(text) > 0 {
		text = text[:len(text)-1]
	}
	stones, err := strconv.Atoi(text)
	return nimPosition{stones: stones, mover: mover}, err
}

var _ rules.Game[nimPosition, int] = nimGame{}

// uniformEvaluator always returns an even policy over nimPolicyDim slots
// and a fixed value, regardless of which features were submitted.
type uniformEvaluator struct {
	value float32
}

func (e uniformEvaluator) Evaluate(features []int, policyDim int) ([]float32, float32, error) {
	policy := make([]float32, policyDim)
	for i := range policy {
		policy[i] = 1
	}
	return policy, e.value, nil
}
