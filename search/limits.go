package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// clock is either a fixed per-move budget or a dynamic base+increment
// clock.
type clock struct {
	set bool

	// fixed
	fixedMillis uint64

	// dynamic
	p1Base, p1Inc uint64
	p2Base, p2Inc uint64
	dynamic       bool
}

// timeLimit returns the millisecond budget for the side on move. Dynamic
// clocks allocate base/20 + 3*increment/4, clipped so at least 50ms of
// base remains unspent.
func (c clock) timeLimit(isFirst bool) uint64 {
	if !c.dynamic {
		return c.fixedMillis
	}
	ourBase, ourInc := c.p1Base, c.p1Inc
	if !isFirst {
		ourBase, ourInc = c.p2Base, c.p2Inc
	}
	budget := ourBase/20 + 3*ourInc/4
	if ourBase < 50 {
		return budget
	}
	if cap := ourBase - 50; budget > cap {
		return cap
	}
	return budget
}

// Limits composes an optional node cap and an optional clock.
type Limits struct {
	hasNodes bool
	nodes    uint64
	time     clock
}

// NodeLimit returns a Limits bounding the search to the given node count.
func NodeLimit(nodes uint64) Limits {
	return Limits{hasNodes: true, nodes: nodes}
}

// MoveTime returns a Limits bounding the search to a fixed time budget.
func MoveTime(millis uint64) Limits {
	return Limits{time: clock{set: true, fixedMillis: millis}}
}

// DynamicTime returns a Limits using a per-player base+increment clock.
func DynamicTime(p1Base, p1Inc, p2Base, p2Inc uint64) Limits {
	return Limits{time: clock{set: true, dynamic: true, p1Base: p1Base, p1Inc: p1Inc, p2Base: p2Base, p2Inc: p2Inc}}
}

// Infinite returns a Limits with no bound at all; the search runs until
// stopped externally.
func Infinite() Limits {
	return Limits{}
}

// Merge combines two Limits, taking rhs's value wherever it is set, else
// lhs's — a right-biased merge.
func (lhs Limits) Merge(rhs Limits) Limits {
	out := lhs
	if rhs.hasNodes {
		out.hasNodes = true
		out.nodes = rhs.nodes
	}
	if rhs.time.set {
		out.time = rhs.time
	}
	return out
}

// IsOutOfTime reports whether any configured bound has been reached.
func (l Limits) IsOutOfTime(nodesSearched, elapsedMillis uint64, sideIsFirst bool) bool {
	if l.hasNodes && nodesSearched >= l.nodes {
		return true
	}
	if l.time.set && elapsedMillis >= l.time.timeLimit(sideIsFirst) {
		return true
	}
	return false
}

// ParseLimits parses a go-command limits string: a sequence of `nodes N`,
// `movetime MS`, `p1time MS p2time MS p1inc MS p2inc MS`, and `infinite`,
// later specifiers overriding earlier ones field-wise.
func ParseLimits(s string) (Limits, error) {
	words := strings.Fields(s)
	out := Infinite()

	next := func(i *int, what string) (string, error) {
		*i++
		if *i >= len(words) {
			return "", errors.Errorf("nothing after %q token", what)
		}
		return words[*i], nil
	}
	parseUint := func(s, what string) (uint64, error) {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid value for %q", what)
		}
		return v, nil
	}
	expectLiteral := func(i *int, want string) error {
		got, err := next(i, want)
		if err != nil {
			return err
		}
		if got != want {
			return errors.Errorf("expected %q token, found %q", want, got)
		}
		return nil
	}

	for i := 0; i < len(words); i++ {
		switch words[i] {
		case "nodes":
			v, err := next(&i, "nodes")
			if err != nil {
				return Limits{}, err
			}
			n, err := parseUint(v, "nodes")
			if err != nil {
				return Limits{}, err
			}
			out = out.Merge(NodeLimit(n))
		case "movetime":
			v, err := next(&i, "movetime")
			if err != nil {
				return Limits{}, err
			}
			ms, err := parseUint(v, "movetime")
			if err != nil {
				return Limits{}, err
			}
			out = out.Merge(MoveTime(ms))
		case "p1time":
			p1t, err := next(&i, "p1time")
			if err != nil {
				return Limits{}, err
			}
			if err := expectLiteral(&i, "p2time"); err != nil {
				return Limits{}, err
			}
			p2t, err := next(&i, "p2time")
			if err != nil {
				return Limits{}, err
			}
			if err := expectLiteral(&i, "p1inc"); err != nil {
				return Limits{}, err
			}
			p1i, err := next(&i, "p1inc")
			if err != nil {
				return Limits{}, err
			}
			if err := expectLiteral(&i, "p2inc"); err != nil {
				return Limits{}, err
			}
			p2i, err := next(&i, "p2inc")
			if err != nil {
				return Limits{}, err
			}
			p1tv, err := parseUint(p1t, "p1time")
			if err != nil {
				return Limits{}, err
			}
			p2tv, err := parseUint(p2t, "p2time")
			if err != nil {
				return Limits{}, err
			}
			p1iv, err := parseUint(p1i, "p1inc")
			if err != nil {
				return Limits{}, err
			}
			p2iv, err := parseUint(p2i, "p2inc")
			if err != nil {
				return Limits{}, err
			}
			out = out.Merge(DynamicTime(p1tv, p1iv, p2tv, p2iv))
		case "infinite":
			out = out.Merge(Infinite())
		default:
			return Limits{}, errors.Errorf("unexpected token: %q", words[i])
		}
	}
	return out, nil
}

// String renders the limits back into the grammar ParseLimits accepts,
// mainly useful for logging.
func (l Limits) String() string {
	var parts []string
	if l.hasNodes {
		parts = append(parts, fmt.Sprintf("nodes %d", l.nodes))
	}
	if l.time.set {
		if l.time.dynamic {
			parts = append(parts, fmt.Sprintf("p1time %d p2time %d p1inc %d p2inc %d", l.time.p1Base, l.time.p2Base, l.time.p1Inc, l.time.p2Inc))
		} else {
			parts = append(parts, fmt.Sprintf("movetime %d", l.time.fixedMillis))
		}
	}
	if len(parts) == 0 {
		return "infinite"
	}
	return strings.Join(parts, " ")
}
