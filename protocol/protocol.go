// Package protocol implements the line-oriented universal game interface:
// a stdin-reader goroutine feeds trimmed command lines (or "quit" on EOF)
// over a channel to a single dispatch loop that drives one Engine bound to
// one rules.Game.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/muesli/termenv"

	"github.com/nullmove/veritas/rules"
	"github.com/nullmove/veritas/search"
)

// Name, Version, and Author populate the ugi/uai/uci handshake.
const (
	Name    = "Veritas"
	Version = "1.0.0"
	Author  = "nullmove"
)

// Protocol owns one game's search state across a stdin/stdout session.
type Protocol[Position any, Move comparable] struct {
	game   rules.Game[Position, Move]
	eval   search.Evaluator
	engine *search.Engine[Position, Move]
	params search.Params

	pos Position
	out io.Writer
	clr colorizer
}

// New builds a Protocol around game, starting from its default position.
func New[Position any, Move comparable](game rules.Game[Position, Move], eval search.Evaluator, out io.Writer) *Protocol[Position, Move] {
	params := search.DefaultParams()
	return &Protocol[Position, Move]{
		game:   game,
		eval:   eval,
		engine: search.NewEngine[Position, Move](game, eval, params, nil),
		params: params,
		pos:    game.DefaultPosition(),
		out:    out,
		clr:    newColorizer(out),
	}
}

// Run reads lines from in until EOF or a "quit" command, dispatching each
// to the matching protocol command. It returns when the loop exits
// normally (quit received or input closed).
func (p *Protocol[Position, Move]) Run(in io.Reader) {
	lines := make(chan string)
	go stdinReader(in, lines)

	fmt.Fprintf(p.out, "%s %s by %s\n", Name, Version, Author)
	for line := range lines {
		if p.dispatch(strings.TrimSpace(line), lines) {
			return
		}
	}
}

func stdinReader(in io.Reader, lines chan<- string) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	lines <- "quit"
	close(lines)
}

// dispatch handles one command line, returning true iff the loop should
// exit (the "quit" command, possibly received mid-search). lines is the
// live command stream, consumed by goSearch while a search runs so that
// any incoming command interrupts it.
func (p *Protocol[Position, Move]) dispatch(line string, lines <-chan string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "isready":
		fmt.Fprintln(p.out, "readyok")
	case "ugi", "uai", "uci":
		p.handshake(fields[0])
	case "uginewgame", "ucinewgame", "uainewgame":
		p.pos = p.game.DefaultPosition()
	case "show":
		p.show()
	case "position":
		p.position(fields[1:])
	case "play":
		p.play(fields[1:])
	case "go":
		return p.goSearch(strings.Join(fields[1:], " "), lines)
	case "query":
		p.query(fields[1:])
	case "setoption":
		p.setOption(fields[1:])
	case "stop":
		// No-op: while a search runs, goSearch consumes every incoming
		// line itself and calls Engine.Stop.
	case "quit":
		return true
	default:
		fmt.Fprintf(p.out, "info string unknown command: %s\n", line)
	}
	return false
}

func (p *Protocol[Position, Move]) handshake(proto string) {
	fmt.Fprintf(p.out, "id name %s %s\n", Name, Version)
	fmt.Fprintf(p.out, "id author %s\n", Author)
	fmt.Fprintf(p.out, "%sok\n", proto)
}

func (p *Protocol[Position, Move]) show() {
	fmt.Fprintf(p.out, "info string %s\n", p.game.FEN(p.pos))
	for _, line := range p.clr.render(p.game.FEN(p.pos)) {
		fmt.Fprintf(p.out, "info string %s\n", line)
	}
}

func (p *Protocol[Position, Move]) position(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(p.out, "info string position requires a subcommand")
		return
	}

	i := 1
	switch args[0] {
	case "startpos":
		p.pos = p.game.DefaultPosition()
	case "fen":
		var fenWords []string
		for i < len(args) && args[i] != "moves" {
			fenWords = append(fenWords, args[i])
			i++
		}
		pos, err := p.game.ParseFEN(strings.Join(fenWords, " "))
		if err != nil {
			fmt.Fprintf(p.out, "info string %v\n", err)
			return
		}
		p.pos = pos
	default:
		fmt.Fprintf(p.out, "info string unknown position subcommand: %s\n", args[0])
		return
	}

	if i < len(args) && args[i] == "moves" {
		for _, text := range args[i+1:] {
			move, ok := p.legalMove(text)
			if !ok {
				fmt.Fprintf(p.out, "info string illegal move in position command: %s\n", text)
				return
			}
			p.game.MakeMove(&p.pos, move)
		}
	}
}

func (p *Protocol[Position, Move]) legalMove(text string) (move Move, ok bool) {
	parsed, err := p.game.ParseMove(text)
	if err != nil {
		return move, false
	}
	p.game.GenerateMoves(p.pos, func(m Move) bool {
		if m == parsed {
			move, ok = m, true
			return true
		}
		return false
	})
	return move, ok
}

func (p *Protocol[Position, Move]) play(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(p.out, "info string play requires exactly one move")
		return
	}
	move, ok := p.legalMove(args[0])
	if !ok {
		fmt.Fprintf(p.out, "info string illegal move: %s\n", args[0])
		return
	}
	p.game.MakeMove(&p.pos, move)
}

// goSearch runs one search, streaming info lines from the report callback
// and finishing with bestmove. While the search runs, any line arriving on
// the command stream stops it; a "quit" line additionally makes goSearch
// return true so the dispatch loop exits after bestmove is printed.
func (p *Protocol[Position, Move]) goSearch(limitsText string, lines <-chan string) (quit bool) {
	limits, err := search.ParseLimits(limitsText)
	if err != nil {
		fmt.Fprintf(p.out, "info string %v\n", err)
		return false
	}

	p.engine.SetPosition(p.pos)

	type searchResult struct {
		move Move
		err  error
	}
	done := make(chan searchResult, 1)
	go func() {
		move, err := p.engine.Go(limits, func(r search.Report) {
			var nps uint64
			if r.ElapsedMs > 0 {
				nps = r.Nodes * 1000 / r.ElapsedMs
			}
			fmt.Fprintf(p.out, "info nodes %d time %d nps %d winrate %.3f pv %s\n",
				r.Nodes, r.ElapsedMs, nps, r.Winrate, strings.Join(r.PV, " "))
		})
		done <- searchResult{move: move, err: err}
	}()

	for {
		select {
		case res := <-done:
			if res.err != nil {
				fmt.Fprintf(p.out, "info string search failed: %v\n", res.err)
				return quit
			}
			fmt.Fprintf(p.out, "bestmove %s\n", p.game.FormatMove(res.move))
			return quit
		case line, ok := <-lines:
			if !ok {
				quit = true
				lines = nil
			} else if strings.TrimSpace(line) == "quit" {
				quit = true
			}
			p.engine.Stop()
		}
	}
}

func (p *Protocol[Position, Move]) query(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(p.out, "info string query requires exactly one argument")
		return
	}
	switch args[0] {
	case "gameover":
		fmt.Fprintf(p.out, "response %t\n", p.game.Outcome(p.pos) != rules.Ongoing)
	case "p1turn":
		fmt.Fprintf(p.out, "response %t\n", p.game.ToMove(p.pos) == rules.First)
	case "result":
		switch p.game.Outcome(p.pos) {
		case rules.FirstWin:
			fmt.Fprintln(p.out, "response p1win")
		case rules.SecondWin:
			fmt.Fprintln(p.out, "response p2win")
		case rules.Draw:
			fmt.Fprintln(p.out, "response draw")
		default:
			fmt.Fprintln(p.out, "response none")
		}
	default:
		fmt.Fprintf(p.out, "info string unknown query: %s\n", args[0])
	}
}

func (p *Protocol[Position, Move]) setOption(args []string) {
	if len(args) == 4 && args[0] == "name" && args[1] == "cpuct" && args[2] == "value" {
		v, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			fmt.Fprintf(p.out, "info string %v\n", err)
			return
		}
		p.params.CPuct = v
		p.engine = search.NewEngine[Position, Move](p.game, p.eval, p.params, nil)
		return
	}
	fmt.Fprintf(p.out, "info string unknown option: %s\n", strings.Join(args, " "))
}

// colorizer renders a FEN's board section as one colored line per rank,
// falling back to plain text when the output isn't a color-capable
// terminal.
type colorizer struct {
	output *termenv.Output
	plain  bool
}

func newColorizer(out io.Writer) colorizer {
	o := termenv.NewOutput(out)
	return colorizer{output: o, plain: o.Profile == termenv.Ascii}
}

func (c colorizer) render(fen string) []string {
	board := fen
	if i := strings.IndexByte(fen, ' '); i >= 0 {
		board = fen[:i]
	}
	rows := strings.Split(board, "/")
	lines := make([]string, len(rows))
	for i, row := range rows {
		var sb strings.Builder
		for _, ch := range row {
			sb.WriteString(c.cell(ch))
		}
		lines[i] = sb.String()
	}
	return lines
}

func (c colorizer) cell(ch rune) string {
	if c.plain {
		return string(ch)
	}
	switch ch {
	case 'x':
		return c.output.String(string(ch)).Foreground(c.output.Color("1")).String()
	case 'o':
		return c.output.String(string(ch)).Foreground(c.output.Color("4")).String()
	default:
		return c.output.String(string(ch)).Faint().String()
	}
}
