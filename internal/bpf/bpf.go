// Package bpf compiles u32 matches to classic BPF.
//
// Each test becomes its own program returning 1 on match and 0 otherwise.
// A load past the end of the packet aborts a classic BPF program with 0,
// which is exactly the out-of-bounds rule of the native evaluator, so the
// two backends agree on every packet.
package bpf

import (
	"fmt"
	"strings"

	netbpf "golang.org/x/net/bpf"

	"github.com/xtmatch/xtmatch/internal/packet"
	"github.com/xtmatch/xtmatch/internal/u32"
)

// baseSlot is the scratch slot holding the cumulative AT base.
const baseSlot = 0

// Program is the classic BPF form of one u32 test.
type Program []netbpf.Instruction

// CompileTest translates t. Operators outside the known set emit nothing,
// mirroring the native evaluator.
func CompileTest(t *u32.Test, mode u32.ATMode) Program {
	var prog Program
	if mode == u32.ATCumulative && hasAt(t) {
		// the kernel checker rejects reads of unwritten scratch slots
		prog = append(prog,
			netbpf.LoadConstant{Dst: netbpf.RegX, Val: 0},
			netbpf.StoreScratch{Src: netbpf.RegX, N: baseSlot},
		)
	}
	prog = append(prog, netbpf.LoadAbsolute{Off: t.Offset, Size: 4})

	// indexes of jumps that must land on the final "ret 0"
	var fails []int

	for _, step := range t.Steps() {
		switch step.Op {
		case u32.OpAnd:
			prog = append(prog, netbpf.ALUOpConstant{Op: netbpf.ALUOpAnd, Val: step.Operand})
		case u32.OpLeftShift:
			prog = append(prog, shift(netbpf.ALUOpShiftLeft, step.Operand))
		case u32.OpRightShift:
			prog = append(prog, shift(netbpf.ALUOpShiftRight, step.Operand))
		case u32.OpAt:
			if mode == u32.ATCumulative {
				// A = base + A, failing on wrap, then base = A.
				prog = append(prog,
					netbpf.LoadScratch{Dst: netbpf.RegX, N: baseSlot},
					netbpf.ALUOpX{Op: netbpf.ALUOpAdd},
				)
				fails = append(fails, len(prog))
				prog = append(prog,
					netbpf.JumpIfX{Cond: netbpf.JumpLessThan},
					netbpf.StoreScratch{Src: netbpf.RegA, N: baseSlot},
				)
			}
			prog = append(prog,
				netbpf.TAX{},
				netbpf.LoadIndirect{Off: step.Operand, Size: 4},
			)
		}
	}

	ranges := t.Ranges()
	for k, r := range ranges {
		// below min: try the next range; at most max: match
		prog = append(prog,
			netbpf.JumpIf{Cond: netbpf.JumpLessThan, Val: r.Min, SkipTrue: 1},
			netbpf.JumpIf{Cond: netbpf.JumpLessOrEqual, Val: r.Max, SkipTrue: uint8(2*(len(ranges)-k) - 1)},
		)
	}

	retFalse := len(prog)
	prog = append(prog, netbpf.RetConstant{Val: 0}, netbpf.RetConstant{Val: 1})

	for _, i := range fails {
		prog[i] = netbpf.JumpIfX{Cond: netbpf.JumpLessThan, SkipTrue: uint8(retFalse - i - 1)}
	}
	return prog
}

func hasAt(t *u32.Test) bool {
	for _, step := range t.Steps() {
		if step.Op == u32.OpAt {
			return true
		}
	}
	return false
}

// shift turns counts of 32 or more, which the kernel checker rejects, into
// a zeroing AND.
func shift(op netbpf.ALUOp, n uint32) netbpf.Instruction {
	if n >= 32 {
		return netbpf.ALUOpConstant{Op: netbpf.ALUOpAnd, Val: 0}
	}
	return netbpf.ALUOpConstant{Op: op, Val: n}
}

// Bytecode renders p in the "count,code jt jf k,..." form accepted by
// iptables -m bpf --bytecode.
func (p Program) Bytecode() (string, error) {
	raw, err := netbpf.Assemble(p)
	if err != nil {
		return "", fmt.Errorf("bpf.Assemble: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", len(raw))
	for _, ins := range raw {
		fmt.Fprintf(&sb, ",%d %d %d %d", ins.Op, ins.Jt, ins.Jf, ins.K)
	}
	return sb.String(), nil
}

// Matcher evaluates a u32 match through the BPF virtual machine.
type Matcher struct {
	programs []Program
	vms      []*netbpf.VM
	invert   bool
}

var _ u32.Matcher = (*Matcher)(nil)

func NewMatcher(m *u32.Match) (*Matcher, error) {
	tests := m.Tests()
	bm := &Matcher{
		programs: make([]Program, 0, len(tests)),
		vms:      make([]*netbpf.VM, 0, len(tests)),
		invert:   m.Invert,
	}
	for i := range tests {
		prog := CompileTest(&tests[i], m.ATMode())
		vm, err := netbpf.NewVM(prog)
		if err != nil {
			return nil, fmt.Errorf("test %d: bpf.NewVM: %w", i, err)
		}
		bm.programs = append(bm.programs, prog)
		bm.vms = append(bm.vms, vm)
	}
	return bm, nil
}

func (m *Matcher) Programs() []Program {
	return m.programs
}

// Matches is true when any program accepts p, flipped by the invert flag.
func (m *Matcher) Matches(p packet.View) bool {
	data := p.Bytes()
	matched := false
	for _, vm := range m.vms {
		if n, err := vm.Run(data); err == nil && n > 0 {
			matched = true
			break
		}
	}
	return matched != m.invert
}
