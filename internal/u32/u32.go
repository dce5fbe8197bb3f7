// Package u32 implements the generic field-extraction match: each test
// reads a 32-bit word from the packet, transforms it through a short chain
// of mask, shift and indirect-load steps, and checks the result against a
// set of value ranges.
//
// Evaluation never allocates and never reads outside the packet. A chain
// that would read out of bounds makes its own test fail without affecting
// the other tests of the match.
package u32

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/xtmatch/xtmatch/internal/packet"
	"github.com/xtmatch/xtmatch/internal/valuerange"
)

// MaxSize bounds every list in a match record; lists hold at most
// MaxSize+1 entries.
const MaxSize = 10

var (
	ErrTooMany     = errors.New("too many elements")
	ErrEmptyChain  = errors.New("chain has no location")
	ErrEmptyRanges = errors.New("test has no value range")
	ErrBadOperator = errors.New("unknown operator")
)

// Op is a chain operator.
type Op uint8

const (
	OpAnd Op = iota
	OpLeftShift
	OpRightShift
	OpAt
)

func (o Op) String() string {
	switch o {
	case OpAnd:
		return "&"
	case OpLeftShift:
		return "<<"
	case OpRightShift:
		return ">>"
	case OpAt:
		return "@"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

func (o Op) valid() bool {
	return o <= OpAt
}

// Step applies Op with Operand to the running value.
type Step struct {
	Op      Op
	Operand uint32
}

// ATMode selects how the AT operator forms its read offset.
type ATMode uint8

const (
	// ATAbsolute reads at value+operand.
	ATAbsolute ATMode = iota
	// ATCumulative keeps a base that every AT step advances by the current
	// value and reads at base+operand, as netfilter does.
	ATCumulative
)

func (m ATMode) String() string {
	if m == ATCumulative {
		return "cumulative"
	}
	return "absolute"
}

// ParseATMode accepts "absolute" or "cumulative"; an empty string is absolute.
func ParseATMode(s string) (ATMode, error) {
	switch s {
	case "", "absolute":
		return ATAbsolute, nil
	case "cumulative":
		return ATCumulative, nil
	default:
		return 0, fmt.Errorf("unknown at mode %q", s)
	}
}

// Test is one chain plus the ranges its result must fall in. The chain
// always starts with a literal packet offset.
type Test struct {
	Offset uint32

	steps   [MaxSize]Step
	nsteps  uint8
	ranges  [MaxSize + 1]valuerange.Range
	nranges uint8
}

// NewTest builds a test reading at offset, applying steps in order and
// accepting values in any of ranges.
func NewTest(offset uint32, steps []Step, ranges []valuerange.Range) (Test, error) {
	var t Test
	if len(steps) > MaxSize {
		return t, fmt.Errorf("%w: %d steps, want at most %d", ErrTooMany, len(steps), MaxSize)
	}
	if len(ranges) == 0 {
		return t, ErrEmptyRanges
	}
	if len(ranges) > MaxSize+1 {
		return t, fmt.Errorf("%w: %d ranges, want at most %d", ErrTooMany, len(ranges), MaxSize+1)
	}
	for _, s := range steps {
		if !s.Op.valid() {
			return t, fmt.Errorf("%w: %d", ErrBadOperator, s.Op)
		}
	}

	t.Offset = offset
	t.nsteps = uint8(copy(t.steps[:], steps))
	t.nranges = uint8(copy(t.ranges[:], ranges))
	return t, nil
}

// Steps returns the chain after the initial offset.
func (t *Test) Steps() []Step {
	return t.steps[:t.nsteps]
}

func (t *Test) Ranges() []valuerange.Range {
	return t.ranges[:t.nranges]
}

// Matches reports whether the chain evaluates in bounds and its result
// falls in one of the ranges.
func (t *Test) Matches(p packet.View, mode ATMode) bool {
	v, err := Evaluate(t, p, mode)
	if err != nil {
		return false
	}
	return valuerange.Match(v, t.Ranges())
}

// Matcher is implemented by every u32 backend.
type Matcher interface {
	Matches(p packet.View) bool
}

// Match is an OR of up to MaxSize+1 tests, optionally inverted. It holds
// no mutable state and may be shared between goroutines.
type Match struct {
	tests  [MaxSize + 1]Test
	ntests uint8
	Invert bool
	mode   ATMode
}

var _ Matcher = (*Match)(nil)

type Option func(*Match)

// WithATMode sets how AT steps address the packet.
func WithATMode(mode ATMode) Option {
	return func(m *Match) {
		m.mode = mode
	}
}

func NewMatch(tests []Test, invert bool, opts ...Option) (*Match, error) {
	if len(tests) > MaxSize+1 {
		return nil, fmt.Errorf("%w: %d tests, want at most %d", ErrTooMany, len(tests), MaxSize+1)
	}
	m := &Match{Invert: invert}
	m.ntests = uint8(copy(m.tests[:], tests))
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Match) Tests() []Test {
	return m.tests[:m.ntests]
}

func (m *Match) ATMode() ATMode {
	return m.mode
}

// Matches is true when at least one test matches, flipped by Invert.
func (m *Match) Matches(p packet.View) bool {
	matched := false
	for i := uint8(0); i < m.ntests; i++ {
		if m.tests[i].Matches(p, m.mode) {
			matched = true
			break
		}
	}
	return matched != m.Invert
}

func (m *Match) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("tests", int(m.ntests)),
		slog.Bool("invert", m.Invert),
		slog.String("at_mode", m.mode.String()),
	)
}
