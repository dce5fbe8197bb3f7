package u32

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xtmatch/xtmatch/internal/valuerange"
)

// ErrSyntax wraps every expression parse failure.
var ErrSyntax = errors.New("invalid u32 expression")

// Parse compiles a textual match:
//
//	match    := ["!"] test { "||" test }
//	test     := location "=" range { "," range }
//	location := number { op number }          op := "&" | "<<" | ">>" | "@"
//	range    := number [ ":" number ]
//
// Numbers take C notation: 0x hex, leading 0 octal, otherwise decimal.
// For example "6 & 0xFF = 17 || 0 >> 22 & 0x3C @ 0 >> 16 = 53" matches UDP
// or any packet whose transport source port is 53.
func Parse(expr string, opts ...Option) (*Match, error) {
	p := &parser{src: expr}

	p.skipSpace()
	invert := false
	if p.peek() == '!' {
		invert = true
		p.pos++
	}

	var tests []Test
	for {
		t, err := p.test()
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
		if len(tests) > MaxSize+1 {
			return nil, fmt.Errorf("%w: more than %d tests", ErrTooMany, MaxSize+1)
		}

		p.skipSpace()
		if p.eof() {
			break
		}
		if !p.consume("||") {
			if p.consume("&&") {
				return nil, p.errorf("tests combine with \"||\"")
			}
			return nil, p.errorf("expected \"||\"")
		}
	}

	return NewMatch(tests, invert, opts...)
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: at %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) consume(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *parser) number() (uint32, error) {
	p.skipSpace()
	start := p.pos
	if p.peek() == '0' && p.pos+1 < len(p.src) && (p.src[p.pos+1] == 'x' || p.src[p.pos+1] == 'X') {
		p.pos += 2
	}
	for !p.eof() && isNumberByte(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected number")
	}
	text := p.src[start:p.pos]
	digits, base := text, 10
	switch {
	case len(text) > 1 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X'):
		digits, base = text[2:], 16
	case len(text) > 1 && text[0] == '0':
		digits, base = text[1:], 8
	}
	n, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		p.pos = start
		return 0, p.errorf("bad number %q", text)
	}
	return uint32(n), nil
}

func isNumberByte(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func (p *parser) op() (Op, bool) {
	switch {
	case p.consume("&&"):
		// "&&" belongs to the caller; rewind.
		p.pos -= 2
		return 0, false
	case p.consume("&"):
		return OpAnd, true
	case p.consume("<<"):
		return OpLeftShift, true
	case p.consume(">>"):
		return OpRightShift, true
	case p.consume("@"):
		return OpAt, true
	}
	return 0, false
}

func (p *parser) test() (Test, error) {
	offset, err := p.number()
	if err != nil {
		return Test{}, err
	}

	var steps []Step
	for {
		op, ok := p.op()
		if !ok {
			break
		}
		operand, err := p.number()
		if err != nil {
			return Test{}, err
		}
		if len(steps) == MaxSize {
			return Test{}, fmt.Errorf("%w: more than %d locations", ErrTooMany, MaxSize+1)
		}
		steps = append(steps, Step{Op: op, Operand: operand})
	}

	if !p.consume("=") {
		return Test{}, p.errorf("expected \"=\"")
	}

	var ranges []valuerange.Range
	for {
		lo, err := p.number()
		if err != nil {
			return Test{}, err
		}
		hi := lo
		if p.consume(":") {
			if hi, err = p.number(); err != nil {
				return Test{}, err
			}
		}
		if len(ranges) == MaxSize+1 {
			return Test{}, fmt.Errorf("%w: more than %d values", ErrTooMany, MaxSize+1)
		}
		ranges = append(ranges, valuerange.Range{Min: lo, Max: hi})
		if !p.consume(",") {
			break
		}
	}

	return NewTest(offset, steps, ranges)
}
