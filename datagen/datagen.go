// Package datagen implements the self-play data generator: N worker
// threads each own an Engine and one evaluator client, play games
// continuously, and ship completed games to a single writer goroutine that
// emits three aligned CSV files (positions, policy targets, value
// targets). Line N of each file refers to the same ply.
package datagen

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"

	"github.com/nullmove/veritas/rules"
	"github.com/nullmove/veritas/search"
)

// searchNodes is the fixed node budget every self-play worker searches to.
const searchNodes = 800

type plyRecord struct {
	features     []int
	distribution []uint64
	toMove       rules.Player
}

type gameRecord struct {
	plies   []plyRecord
	outcome rules.Outcome
}

// Generator drives self-play data generation for one game. Position and
// Move mirror whichever rules.Game it was built for.
type Generator[Position any, Move comparable] struct {
	game    rules.Game[Position, Move]
	clients []search.Evaluator
	outDir  string
	logger  *log.Logger

	games     uint64
	positions uint64
}

// New builds a Generator with one client per worker thread; len(clients)
// is the number of self-play workers, all sharing one evaluator. outDir is
// the directory the three CSV files are written under; it is created if
// missing.
func New[Position any, Move comparable](game rules.Game[Position, Move], clients []search.Evaluator, outDir string, logger *log.Logger) *Generator[Position, Move] {
	return &Generator[Position, Move]{game: game, clients: clients, outDir: outDir, logger: logger}
}

// Games returns the number of completed games so far. Safe for concurrent
// use while Run is in progress; the counters are telemetry, not
// synchronization.
func (g *Generator[Position, Move]) Games() uint64 { return atomic.LoadUint64(&g.games) }

// Positions returns the number of recorded plies so far.
func (g *Generator[Position, Move]) Positions() uint64 { return atomic.LoadUint64(&g.positions) }

// Run starts len(clients) worker goroutines and one writer goroutine,
// plays self-play games until budget elapses, then waits for every game
// already shipped to the writer to be written and returns. A game that a
// worker finishes after the budget has elapsed may be discarded instead of
// shipped. Writer errors are aggregated rather than first-wins.
func (g *Generator[Position, Move]) Run(budget time.Duration) error {
	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		return errors.Wrapf(err, "datagen: creating output directory %q", g.outDir)
	}

	stopCh := make(chan struct{})
	timer := time.AfterFunc(budget, func() { close(stopCh) })
	defer timer.Stop()

	games := make(chan gameRecord, len(g.clients))
	var wg sync.WaitGroup
	for i, client := range g.clients {
		wg.Add(1)
		go func(id int, client search.Evaluator) {
			defer wg.Done()
			g.worker(id, client, games, stopCh)
		}(i, client)
	}

	var writeErr error
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeErr = g.writeLoop(games)
	}()

	wg.Wait()
	close(games)
	<-writerDone

	var merr *multierror.Error
	if writeErr != nil {
		merr = multierror.Append(merr, errors.Wrap(writeErr, "datagen: writer"))
	}
	return merr.ErrorOrNil()
}

func (g *Generator[Position, Move]) worker(id int, client search.Evaluator, games chan<- gameRecord, stopCh <-chan struct{}) {
	rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano()) ^ uint64(id)*0x9E3779B97F4A7C15))
	engine := search.NewEngine[Position, Move](g.game, client, search.DefaultParams(), nil)
	limits := search.NodeLimit(searchNodes)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		record := g.playOneGame(engine, limits, rng)

		select {
		case games <- record:
		case <-stopCh:
			return
		}

		// Counted only once shipped, so the counters never run ahead of
		// what the writer will actually emit.
		atomic.AddUint64(&g.positions, uint64(len(record.plies)))
		n := atomic.AddUint64(&g.games, 1)
		if id == 0 && g.logger != nil && n%128 == 0 {
			g.logger.Printf("datagen: %d games, %d positions", n, atomic.LoadUint64(&g.positions))
		}
	}
}

// playOneGame seeds a uniformly random opening of 8 + Uniform{0,1} plies
// for diversity, then alternates SetPosition/Go/play until the game ends.
func (g *Generator[Position, Move]) playOneGame(engine *search.Engine[Position, Move], limits search.Limits, rng *rand.Rand) gameRecord {
	pos := g.game.DefaultPosition()

	openingPlies := 8 + rng.Intn(2)
	for i := 0; i < openingPlies; i++ {
		if g.game.Outcome(pos) != rules.Ongoing {
			break
		}
		var moves []Move
		g.game.GenerateMoves(pos, func(m Move) bool {
			moves = append(moves, m)
			return false
		})
		if len(moves) == 0 {
			break
		}
		g.game.MakeMove(&pos, moves[rng.Intn(len(moves))])
	}

	var record gameRecord
	for {
		outcome := g.game.Outcome(pos)
		if outcome != rules.Ongoing {
			record.outcome = outcome
			return record
		}

		engine.SetPosition(pos)
		move, err := engine.Go(limits, nil)
		if err != nil {
			record.outcome = rules.Draw
			return record
		}

		tree := engine.Tree()
		dist := search.RootDistribution(tree, g.game.PolicyDim(), g.game.MovePolicyIndex)

		var features []int
		g.game.FillFeatureMap(pos, func(k int) { features = append(features, k) })

		record.plies = append(record.plies, plyRecord{
			features:     features,
			distribution: dist,
			toMove:       g.game.ToMove(pos),
		})

		g.game.MakeMove(&pos, move)
	}
}

// writeLoop is the single writer: it receives complete games and, for
// every recorded ply, emits one aligned line to each of the three output
// files.
func (g *Generator[Position, Move]) writeLoop(games <-chan gameRecord) error {
	positionsFile, err := os.Create(filepath.Join(g.outDir, "positions.csv"))
	if err != nil {
		return errors.Wrap(err, "opening positions.csv")
	}
	defer positionsFile.Close()
	policyFile, err := os.Create(filepath.Join(g.outDir, "policy-target.csv"))
	if err != nil {
		return errors.Wrap(err, "opening policy-target.csv")
	}
	defer policyFile.Close()
	valueFile, err := os.Create(filepath.Join(g.outDir, "value-target.csv"))
	if err != nil {
		return errors.Wrap(err, "opening value-target.csv")
	}
	defer valueFile.Close()

	positionsW := bufio.NewWriter(positionsFile)
	policyW := bufio.NewWriter(policyFile)
	valueW := bufio.NewWriter(valueFile)

	featureWidth := 1
	for _, d := range g.game.TensorDims(1)[1:] {
		featureWidth *= d
	}

	for record := range games {
		for _, ply := range record.plies {
			writeCSVIndicator(positionsW, ply.features, featureWidth)
			writeCSVDistribution(policyW, ply.distribution)
			fmt.Fprintf(valueW, "%.1f\n", valueTarget(record.outcome, ply.toMove))
		}
	}

	var merr *multierror.Error
	if err := positionsW.Flush(); err != nil {
		merr = multierror.Append(merr, errors.Wrap(err, "flushing positions.csv"))
	}
	if err := policyW.Flush(); err != nil {
		merr = multierror.Append(merr, errors.Wrap(err, "flushing policy-target.csv"))
	}
	if err := valueW.Flush(); err != nil {
		merr = multierror.Append(merr, errors.Wrap(err, "flushing value-target.csv"))
	}
	return merr.ErrorOrNil()
}

// writeCSVIndicator renders the sparse feature indices as a dense 0/1
// indicator row of the full feature width.
func writeCSVIndicator(w *bufio.Writer, features []int, width int) {
	row := make([]byte, width)
	for _, k := range features {
		row[k] = 1
	}
	for i, bit := range row {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('0' + bit)
	}
	w.WriteByte('\n')
}

// writeCSVDistribution renders the raw per-slot visit counts with 3
// decimal places. The counts are deliberately not normalized; consumers
// that want a probability distribution divide by the row sum themselves.
func writeCSVDistribution(w *bufio.Writer, dist []uint64) {
	for i, v := range dist {
		if i > 0 {
			w.WriteByte(',')
		}
		fmt.Fprintf(w, "%.3f", float64(v))
	}
	w.WriteByte('\n')
}

// valueTarget is 1.0 if toMove ultimately won, 0.0 if it lost, 0.5 for a
// draw.
func valueTarget(outcome rules.Outcome, toMove rules.Player) float64 {
	switch outcome {
	case rules.Draw:
		return 0.5
	case rules.FirstWin:
		if toMove == rules.First {
			return 1.0
		}
		return 0.0
	case rules.SecondWin:
		if toMove == rules.Second {
			return 1.0
		}
		return 0.0
	default:
		panic("datagen: valueTarget called on a non-terminal outcome")
	}
}
