package u32

import (
	"math"

	"github.com/xtmatch/xtmatch/internal/packet"
)

// Evaluate runs the chain of t over p and returns the extracted value.
// It fails with packet.ErrOutOfBounds when any read leaves the packet.
func Evaluate(t *Test, p packet.View, mode ATMode) (uint32, error) {
	val, err := p.Uint32(t.Offset)
	if err != nil {
		return 0, err
	}

	var base uint32
	for i := uint8(0); i < t.nsteps; i++ {
		step := t.steps[i]
		switch step.Op {
		case OpAnd:
			val &= step.Operand
		case OpLeftShift:
			// Go defines shifts of 32 or more as zero.
			val <<= step.Operand
		case OpRightShift:
			val >>= step.Operand
		case OpAt:
			offset := uint64(val) + uint64(step.Operand)
			if mode == ATCumulative {
				next := uint64(base) + uint64(val)
				if next > math.MaxUint32 {
					return 0, packet.ErrOutOfBounds
				}
				base = uint32(next)
				offset = next + uint64(step.Operand)
			}
			if offset > math.MaxUint32 {
				return 0, packet.ErrOutOfBounds
			}
			if val, err = p.Uint32(uint32(offset)); err != nil {
				return 0, err
			}
		}
	}
	return val, nil
}
