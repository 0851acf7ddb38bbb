// Command engine is veritas's entry point: with no arguments it starts
// the protocol loop on the default game; subcommands select data
// generation, a protocol loop bound to a specific game, or an interactive
// human-vs-engine session.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/nullmove/veritas/datagen"
	"github.com/nullmove/veritas/eval"
	"github.com/nullmove/veritas/eval/onnxexec"
	"github.com/nullmove/veritas/protocol"
	"github.com/nullmove/veritas/rules"
	"github.com/nullmove/veritas/rules/ataxx"
	"github.com/nullmove/veritas/rules/gomoku"
	"github.com/nullmove/veritas/search"
)

const defaultModelPath = "./model.onnx"

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) == 0 {
		if err := runProtocol[ataxx.Position, ataxx.Move](ataxx.New(), defaultModelPath, os.Stdin, os.Stdout); err != nil {
			log.Fatalf("engine: %+v", err)
		}
		return
	}

	var err error
	switch args[0] {
	case "datagen":
		err = dispatchDatagen(args[1:])
	case "ugi", "uai", "uci":
		err = dispatchProtocol(args[1:])
	case "play":
		err = dispatchPlay(args[1:])
	default:
		err = errors.Errorf("unknown subcommand: %s", args[0])
	}
	if err != nil {
		log.Fatalf("engine: %+v", err)
	}
}

// loadExecutor opens the ONNX model at modelPath.
func loadExecutor(modelPath string, policyDim int) (*onnxexec.Executor, error) {
	session, err := onnxexec.Load(modelPath, onnxexec.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return onnxexec.NewExecutor(session, policyDim), nil
}

func dispatchDatagen(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: engine datagen GAME N MS [MODEL]")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.Wrap(err, "parsing N")
	}
	ms, err := strconv.Atoi(args[2])
	if err != nil {
		return errors.Wrap(err, "parsing MS")
	}
	modelPath := defaultModelPath
	if len(args) > 3 {
		modelPath = args[3]
	}
	budget := time.Duration(ms) * time.Millisecond

	switch args[0] {
	case "ataxx":
		return runDatagen[ataxx.Position, ataxx.Move](ataxx.New(), modelPath, n, budget)
	case "gomoku9":
		return runDatagen[gomoku.Position, gomoku.Move](gomoku.New9(), modelPath, n, budget)
	case "gomoku15":
		return runDatagen[gomoku.Position, gomoku.Move](gomoku.New15(), modelPath, n, budget)
	default:
		return errors.Errorf("unknown game: %s", args[0])
	}
}

func dispatchProtocol(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: engine ugi|uai|uci GAME [MODEL]")
	}
	modelPath := defaultModelPath
	if len(args) > 1 {
		modelPath = args[1]
	}

	switch args[0] {
	case "ataxx":
		return runProtocol[ataxx.Position, ataxx.Move](ataxx.New(), modelPath, os.Stdin, os.Stdout)
	case "gomoku9":
		return runProtocol[gomoku.Position, gomoku.Move](gomoku.New9(), modelPath, os.Stdin, os.Stdout)
	case "gomoku15":
		return runProtocol[gomoku.Position, gomoku.Move](gomoku.New15(), modelPath, os.Stdin, os.Stdout)
	default:
		return errors.Errorf("unknown game: %s", args[0])
	}
}

func dispatchPlay(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: engine play GAME [MODEL]")
	}
	modelPath := defaultModelPath
	if len(args) > 1 {
		modelPath = args[1]
	}

	switch args[0] {
	case "ataxx":
		return runPlay[ataxx.Position, ataxx.Move](ataxx.New(), modelPath)
	case "gomoku9":
		return runPlay[gomoku.Position, gomoku.Move](gomoku.New9(), modelPath)
	case "gomoku15":
		return runPlay[gomoku.Position, gomoku.Move](gomoku.New15(), modelPath)
	default:
		return errors.Errorf("unknown game: %s", args[0])
	}
}

func runProtocol[Position any, Move comparable](game rules.Game[Position, Move], modelPath string, in *os.File, out *os.File) error {
	executor, err := loadExecutor(modelPath, game.PolicyDim())
	if err != nil {
		return errors.Wrap(err, "loading model")
	}

	evaluator, clients := eval.NewEvaluator(executor, game.TensorDims, game.PolicyDim(), 1, nil)
	go evaluator.Run()
	defer evaluator.Close()

	p := protocol.New[Position, Move](game, clients[0], out)
	p.Run(in)
	return nil
}

func runDatagen[Position any, Move comparable](game rules.Game[Position, Move], modelPath string, numThreads int, budget time.Duration) error {
	executor, err := loadExecutor(modelPath, game.PolicyDim())
	if err != nil {
		return errors.Wrap(err, "loading model")
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	evaluator, clients := eval.NewEvaluator(executor, game.TensorDims, game.PolicyDim(), numThreads, logger)
	go evaluator.Run()
	defer evaluator.Close()

	outDir := "data/" + time.Now().Format("2006-01-02-15-04-05")
	gen := datagen.New[Position, Move](game, toEvaluators(clients), outDir, logger)
	return gen.Run(budget)
}

func toEvaluators(clients []*eval.Client) []search.Evaluator {
	out := make([]search.Evaluator, len(clients))
	for i, c := range clients {
		out[i] = c
	}
	return out
}

// runPlay is the interactive human-vs-engine loop: prompt for who moves
// first, then alternate engine searches and moves typed on stdin.
func runPlay[Position any, Move comparable](game rules.Game[Position, Move], modelPath string) error {
	executor, err := loadExecutor(modelPath, game.PolicyDim())
	if err != nil {
		return errors.Wrap(err, "loading model")
	}

	evaluator, clients := eval.NewEvaluator(executor, game.TensorDims, game.PolicyDim(), 1, nil)
	go evaluator.Run()
	defer evaluator.Close()

	engine := search.NewEngine[Position, Move](game, clients[0], search.DefaultParams(), nil)
	pos := game.DefaultPosition()

	fmt.Println("Would you like to move first? (y/n)")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	userFirst := scanner.Text() == "y"

	printBoard(game, pos)
	for game.Outcome(pos) == rules.Ongoing {
		engineTurn := (game.ToMove(pos) == rules.First) != userFirst
		if engineTurn {
			engine.SetPosition(pos)
			move, err := engine.Go(search.NodeLimit(800), nil)
			if err != nil {
				return errors.Wrap(err, "search")
			}
			fmt.Printf("engine plays %s\n", game.FormatMove(move))
			game.MakeMove(&pos, move)
		} else {
			fmt.Println("your move:")
			scanner.Scan()
			move, err := game.ParseMove(scanner.Text())
			if err != nil {
				fmt.Printf("could not parse move: %v\n", err)
				continue
			}
			legal := false
			game.GenerateMoves(pos, func(m Move) bool {
				if m == move {
					legal = true
					return true
				}
				return false
			})
			if !legal {
				fmt.Println("illegal move")
				continue
			}
			game.MakeMove(&pos, move)
		}
		printBoard(game, pos)
	}

	switch outcome := game.Outcome(pos); {
	case outcome == rules.Draw:
		fmt.Println("the game is a draw")
	case (outcome == rules.FirstWin) == userFirst:
		fmt.Println("you win!")
	default:
		fmt.Println("the engine wins!")
	}
	return nil
}

func printBoard[Position any, Move comparable](game rules.Game[Position, Move], pos Position) {
	fmt.Println(game.FEN(pos))
}
