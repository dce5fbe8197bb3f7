package u32

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtmatch/xtmatch/internal/packet"
	"github.com/xtmatch/xtmatch/internal/valuerange"
)

func mustTest(t *testing.T, offset uint32, steps ...Step) *Test {
	t.Helper()
	test, err := NewTest(offset, steps, []valuerange.Range{{Min: 0, Max: 0xffffffff}})
	require.NoError(t, err)
	return &test
}

func words(vs ...uint32) packet.Raw {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.BigEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func TestEvaluateSingleOffset(t *testing.T) {
	data := packet.Raw{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}

	for offset := uint32(0); offset+4 <= data.Len(); offset++ {
		got, err := Evaluate(mustTest(t, offset), data, ATAbsolute)
		require.NoError(t, err)
		assert.Equal(t, binary.BigEndian.Uint32(data[offset:]), got, "offset %d", offset)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	data := words(0x00000008, 0xcafe0000, 0x00000004, 0xdeadbeef)
	test := mustTest(t, 0, Step{OpAt, 0}, Step{OpRightShift, 1}, Step{OpAt, 4})

	first, err := Evaluate(test, data, ATAbsolute)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := Evaluate(test, data, ATAbsolute)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestEvaluateAt(t *testing.T) {
	tests := []struct {
		name    string
		data    packet.Raw
		want    uint32
		wantErr bool
	}{
		// V=4, W read at 8
		{"in bounds", words(4, 0, 0xdeadbeef), 0xdeadbeef, false},
		// V=0, W read at 4
		{"zero pointer", words(0, 0x11223344), 0x11223344, false},
		// V=8 reads at 12 in a 12 byte packet
		{"past end", words(8, 0, 0), 0, true},
		// V+4 wraps a 32 bit offset
		{"wrap", words(0xfffffffe, 0, 0), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(mustTest(t, 0, Step{OpAt, 4}), tt.data, ATAbsolute)
			if tt.wantErr {
				assert.ErrorIs(t, err, packet.ErrOutOfBounds)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateOperators(t *testing.T) {
	data := words(0x80f0000f)

	tests := []struct {
		name string
		step Step
		want uint32
	}{
		{"and zero", Step{OpAnd, 0}, 0},
		{"and ones", Step{OpAnd, 0xffffffff}, 0x80f0000f},
		{"and mask", Step{OpAnd, 0x0000ffff}, 0x0000000f},
		{"lsh 4", Step{OpLeftShift, 4}, 0x0f0000f0},
		{"lsh 31", Step{OpLeftShift, 31}, 0x80000000},
		{"lsh 32", Step{OpLeftShift, 32}, 0},
		{"lsh 33", Step{OpLeftShift, 33}, 0},
		{"lsh max", Step{OpLeftShift, 0xffffffff}, 0},
		{"rsh 4", Step{OpRightShift, 4}, 0x080f0000},
		{"rsh is logical", Step{OpRightShift, 31}, 1},
		{"rsh 32", Step{OpRightShift, 32}, 0},
		{"rsh 64", Step{OpRightShift, 64}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(mustTest(t, 0, tt.step), data, ATAbsolute)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateUnknownOperatorIsNoop(t *testing.T) {
	test := mustTest(t, 0)
	test.steps[0] = Step{Op: 9, Operand: 1}
	test.nsteps = 1

	got, err := Evaluate(test, words(42), ATAbsolute)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got)
}

func TestEvaluateBoundary(t *testing.T) {
	data := make(packet.Raw, 20)

	_, err := Evaluate(mustTest(t, data.Len()-4), data, ATAbsolute)
	assert.NoError(t, err)

	_, err = Evaluate(mustTest(t, data.Len()-3), data, ATAbsolute)
	assert.ErrorIs(t, err, packet.ErrOutOfBounds)
}

func TestEvaluateTransportHeader(t *testing.T) {
	// IPv4 header with IHL 6 (one option word) then ports 1234 -> 53.
	data := words(0x46000020, 0, 0, 0, 0, 0, 1234<<16|53, 0)

	// skip the IP header, read the port word
	test := mustTest(t, 0,
		Step{OpRightShift, 22},
		Step{OpAnd, 0x3c},
		Step{OpAt, 0},
		Step{OpRightShift, 16},
	)
	got, err := Evaluate(test, data, ATAbsolute)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), got)
}

func TestEvaluateCumulative(t *testing.T) {
	// 0: pointer 8, 8: pointer 4, 12: answer
	data := words(8, 0, 4, 0x0000abcd, 0x0000ffff)
	test := mustTest(t, 0, Step{OpAt, 0}, Step{OpAt, 0})

	// base 8 then base 12
	got, err := Evaluate(test, data, ATCumulative)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0000abcd), got)

	// absolute reads at 8 then at 4
	got, err = Evaluate(test, data, ATAbsolute)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got)
}

func TestEvaluateCumulativeSingleAtMatchesAbsolute(t *testing.T) {
	data := words(4, 0, 0x01020304)
	test := mustTest(t, 0, Step{OpAt, 4})

	abs, err := Evaluate(test, data, ATAbsolute)
	require.NoError(t, err)
	cum, err := Evaluate(test, data, ATCumulative)
	require.NoError(t, err)
	assert.Equal(t, abs, cum)
}

func TestEvaluateCumulativeOverflow(t *testing.T) {
	// base becomes 4, then 4+0xffffffff wraps
	data := words(4, 0xffffffff)
	test := mustTest(t, 0, Step{OpAt, 0}, Step{OpAt, 0})

	_, err := Evaluate(test, data, ATCumulative)
	assert.ErrorIs(t, err, packet.ErrOutOfBounds)
}
