package u32

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xtmatch/xtmatch/internal/valuerange"
)

// ErrShortBuffer is returned when decoding fewer than SizeOfInfo bytes.
var ErrShortBuffer = errors.New("buffer too short for u32 record")

// LocationElement is struct xt_u32_location_element. NextOp names the
// operator applied with the number of the following element.
type LocationElement struct {
	Number uint32
	NextOp uint8
	_      [3]byte
}

// ValueElement is struct xt_u32_value_element.
type ValueElement struct {
	Min uint32
	Max uint32
}

// TestInfo is struct xt_u32_test.
type TestInfo struct {
	Location [MaxSize + 1]LocationElement
	Value    [MaxSize + 1]ValueElement
	NNums    uint8
	NValues  uint8
	_        [2]byte
}

// Info is struct xt_u32 as exchanged with the rule loader, in host byte
// order with C padding.
type Info struct {
	Tests  [MaxSize + 1]TestInfo
	NTests uint8
	Invert uint8
	_      [2]byte
}

// SizeOfInfo is sizeof(struct xt_u32).
const SizeOfInfo = 1984

func (info *Info) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(SizeOfInfo)
	if err := binary.Write(&buf, binary.NativeEndian, info); err != nil {
		return nil, fmt.Errorf("binary.Write: %w", err)
	}
	return buf.Bytes(), nil
}

func (info *Info) UnmarshalBinary(data []byte) error {
	if len(data) < SizeOfInfo {
		return fmt.Errorf("%w: got %d, want >= %d", ErrShortBuffer, len(data), SizeOfInfo)
	}
	if err := binary.Read(bytes.NewReader(data[:SizeOfInfo]), binary.NativeEndian, info); err != nil {
		return fmt.Errorf("binary.Read: %w", err)
	}
	return nil
}

// Compile validates a loader record and converts it to a Match.
func Compile(info *Info, opts ...Option) (*Match, error) {
	if int(info.NTests) > MaxSize+1 {
		return nil, fmt.Errorf("%w: ntests %d", ErrTooMany, info.NTests)
	}

	tests := make([]Test, 0, info.NTests)
	for i := 0; i < int(info.NTests); i++ {
		ti := &info.Tests[i]
		if ti.NNums == 0 {
			return nil, fmt.Errorf("test %d: %w", i, ErrEmptyChain)
		}
		if int(ti.NNums) > MaxSize+1 {
			return nil, fmt.Errorf("test %d: %w: nnums %d", i, ErrTooMany, ti.NNums)
		}
		if int(ti.NValues) > MaxSize+1 {
			return nil, fmt.Errorf("test %d: %w: nvalues %d", i, ErrTooMany, ti.NValues)
		}

		steps := make([]Step, 0, ti.NNums-1)
		for j := 1; j < int(ti.NNums); j++ {
			steps = append(steps, Step{
				Op:      Op(ti.Location[j-1].NextOp),
				Operand: ti.Location[j].Number,
			})
		}
		ranges := make([]valuerange.Range, 0, ti.NValues)
		for j := 0; j < int(ti.NValues); j++ {
			ranges = append(ranges, valuerange.Range{Min: ti.Value[j].Min, Max: ti.Value[j].Max})
		}

		t, err := NewTest(ti.Location[0].Number, steps, ranges)
		if err != nil {
			return nil, fmt.Errorf("test %d: %w", i, err)
		}
		tests = append(tests, t)
	}

	return NewMatch(tests, info.Invert != 0, opts...)
}

// Info converts m back to the loader record.
func (m *Match) Info() *Info {
	info := &Info{NTests: m.ntests}
	if m.Invert {
		info.Invert = 1
	}
	for i := range m.Tests() {
		t := &m.tests[i]
		ti := &info.Tests[i]

		ti.Location[0].Number = t.Offset
		for j, s := range t.Steps() {
			ti.Location[j].NextOp = uint8(s.Op)
			ti.Location[j+1].Number = s.Operand
		}
		ti.NNums = t.nsteps + 1

		for j, r := range t.Ranges() {
			ti.Value[j] = ValueElement{Min: r.Min, Max: r.Max}
		}
		ti.NValues = t.nranges
	}
	return info
}
