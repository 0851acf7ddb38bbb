package datagen

import (
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullmove/veritas/rules"
	"github.com/nullmove/veritas/search"
)

// nimPosition mirrors search's own internal nimGame fixture (not
// exported from that package, so datagen keeps a copy small enough to
// reason about exhaustively): N stones, take 1 or 2, last to move wins.
type nimPosition struct {
	stones int
	mover  rules.Player
}

type nimGame struct{}

const nimPolicyDim = 3

func (nimGame) Name() string { return "nim" }

// stones is deliberately larger than the random opening's longest possible
// length (9 plies) so every generated game still has moves left for the
// search loop to record after the opening phase.
func (nimGame) DefaultPosition() nimPosition { return nimPosition{stones: 40, mover: rules.First} }

func (nimGame) ToMove(pos nimPosition) rules.Player { return pos.mover }

func (nimGame) Outcome(pos nimPosition) rules.Outcome {
	if pos.stones > 0 {
		return rules.Ongoing
	}
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

func (nimGame) FillFeatureMap(pos nimPosition, sink rules.FeatureSink) { sink(pos.stones) }

// One feature slot per possible stone count, 0 through 40.
func (nimGame) TensorDims(batchSize int) []int { return []int{batchSize, 41} }

func (nimGame) PolicyDim() int { return nimPolicyDim }

func (nimGame) MovePolicyIndex(move int) int { return move }

func (nimGame) ParseMove(text string) (int, error) { return strconv.Atoi(text) }

func (nimGame) FormatMove(move int) string { return strconv.Itoa(move) }

func (nimGame) FEN(pos nimPosition) string { return strconv.Itoa(pos.stones) }

func (nimGame) ParseFEN(text string) (nimPosition, error) {
	stones, err := strconv.Atoi(text)
	return nimPosition{stones: stones, mover: rules.First}, err
}

var _ rules.Game[nimPosition, int] = nimGame{}

type uniformEvaluator struct{}

func (uniformEvaluator) Evaluate(features []int, policyDim int) ([]float32, float32, error) {
	policy := make([]float32, policyDim)
	for i := range policy {
		policy[i] = 1
	}
	return policy, 0.5, nil
}

func TestRunProducesAlignedCSVFiles(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()

	clients := []search.Evaluator{uniformEvaluator{}, uniformEvaluator{}}

	g := New[nimPosition, int](nimGame{}, clients, dir, nil)
	err := g.Run(300 * time.Millisecond)
	r.NoError(err)

	r.Greater(g.Games(), uint64(0))
	r.Greater(g.Positions(), uint64(0))

	for _, name := range []string{"positions.csv", "policy-target.csv", "value-target.csv"} {
		info, err := os.Stat(dir + "/" + name)
		r.NoError(err)
		r.Greater(info.Size(), int64(0))
	}

	raw, err := os.ReadFile(dir + "/positions.csv")
	r.NoError(err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	r.Equal(g.Positions(), uint64(len(lines)))
	for _, line := range lines {
		cells := strings.Split(line, ",")
		r.Len(cells, 41)
		ones := 0
		for _, c := range cells {
			r.Contains([]string{"0", "1"}, c)
			if c == "1" {
				ones++
			}
		}
		// nim marks exactly one feature bit per ply.
		r.Equal(1, ones)
	}
}

func TestValueTargetMatchesWinnerPerspective(t *testing.T) {
	r := require.New(t)
	r.Equal(1.0, valueTarget(rules.FirstWin, rules.First))
	r.Equal(0.0, valueTarget(rules.FirstWin, rules.Second))
	r.Equal(0.5, valueTarget(rules.Draw, rules.First))
	r.Equal(0.0, valueTarget(rules.SecondWin, rules.First))
	r.Equal(1.0, valueTarget(rules.SecondWin, rules.Second))
}
