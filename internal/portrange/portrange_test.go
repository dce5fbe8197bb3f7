package portrange

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtmatch/xtmatch/internal/packet"
	"github.com/xtmatch/xtmatch/internal/packet/packettest"
)

func udp(t *testing.T, sport, dport uint16) *packet.Packet {
	t.Helper()
	p, err := packet.New(packettest.UDPv4(t, sport, dport, nil))
	require.NoError(t, err)
	return p
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		sport  uint16
		dport  uint16
		want   bool
	}{
		{"exact source", Record{Src: Range{80, 80}, Dst: Any}, 80, 1234, true},
		{"exact source inverted", Record{Src: Range{80, 80}, Dst: Any, InvertSrc: true}, 80, 1234, false},
		{"other source inverted", Record{Src: Range{80, 80}, Dst: Any, InvertSrc: true}, 81, 1234, true},
		{"privileged to any", Record{Src: Range{1, 1023}, Dst: Range{1, 65535}}, 22, 54321, true},
		{"source miss", Record{Src: Range{1, 1023}, Dst: Range{1, 65535}}, 2222, 54321, false},
		{"destination miss", Record{Src: Any, Dst: Range{53, 53}}, 2222, 54, false},
		{"destination inverted", Record{Src: Any, Dst: Range{53, 53}, InvertDst: true}, 2222, 54, true},
		{"both inverted", Record{Src: Range{0, 0}, Dst: Range{0, 0}, InvertSrc: true, InvertDst: true}, 1, 1, true},
		{"range edges", Record{Src: Range{100, 200}, Dst: Range{100, 200}}, 100, 200, true},
		{"reversed range", Record{Src: Range{200, 100}, Dst: Any}, 150, 1, false},
		{"unconstrained", Unconstrained(), 0, 65535, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.record.Matches(udp(t, tt.sport, tt.dport))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Min: 1024, Max: 65535}
	assert.False(t, r.Contains(1023))
	assert.True(t, r.Contains(1024))
	assert.True(t, r.Contains(65535))
	assert.False(t, Range{Min: 10, Max: 9}.Contains(9))
	assert.True(t, Any.Contains(0))
}

func TestMatchesTCP(t *testing.T) {
	p, err := packet.New(packettest.TCPv4(t, 22, 54321, nil))
	require.NoError(t, err)

	r := Record{Src: Range{1, 1023}, Dst: Range{1, 65535}}
	got, err := r.Matches(p)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestProtocolMismatch(t *testing.T) {
	r := Unconstrained()

	icmp, err := packet.New(packettest.ICMPv4(t))
	require.NoError(t, err)

	for _, p := range []packet.View{icmp, packet.Raw{1, 2, 3, 4}, packet.Raw(nil)} {
		got, err := r.Matches(p)
		assert.ErrorIs(t, err, ErrProtocolMismatch)
		assert.False(t, got)
	}
}

func TestIsUnconstrained(t *testing.T) {
	r := Unconstrained()
	assert.True(t, r.IsUnconstrained())

	r.InvertDst = true
	assert.False(t, r.IsUnconstrained())

	var zero Record
	assert.False(t, zero.IsUnconstrained())
}

func TestInfo(t *testing.T) {
	assert.Equal(t, SizeOfInfo, binary.Size(Info{}))

	r := Record{Src: Range{1, 1023}, Dst: Range{53, 53}, InvertDst: true}
	b, err := r.Info().MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, SizeOfInfo)

	assert.Equal(t, uint16(1), binary.NativeEndian.Uint16(b[0:]))
	assert.Equal(t, uint16(1023), binary.NativeEndian.Uint16(b[2:]))
	assert.Equal(t, uint16(53), binary.NativeEndian.Uint16(b[4:]))
	assert.Equal(t, uint16(53), binary.NativeEndian.Uint16(b[6:]))
	assert.Equal(t, InvertDestFlag, b[8])

	var info Info
	require.NoError(t, info.UnmarshalBinary(b))
	got, err := Compile(&info)
	require.NoError(t, err)
	assert.Equal(t, r, *got)

	assert.ErrorIs(t, info.UnmarshalBinary(b[:SizeOfInfo-1]), ErrShortBuffer)

	info.InvFlags = 0x04
	_, err = Compile(&info)
	assert.ErrorIs(t, err, ErrBadFlags)
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec       string
		want       Range
		wantInvert bool
		wantErr    bool
	}{
		{"", Any, false, false},
		{"80", Range{80, 80}, false, false},
		{" ! 80", Range{80, 80}, true, false},
		{"1:1023", Range{1, 1023}, false, false},
		{":1023", Range{0, 1023}, false, false},
		{"1024:", Range{1024, 65535}, false, false},
		{":", Any, false, false},
		{"!1024:", Range{1024, 65535}, true, false},
		{"0:65535", Any, false, false},
		{"1023:1", Range{}, false, true},
		{"65536", Range{}, false, true},
		{"-1", Range{}, false, true},
		{"!", Range{}, false, true},
		{"no-such-service-name", Range{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, invert, err := ParseSpec("udp", tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantInvert, invert)
		})
	}
}

func TestParseSpecServiceName(t *testing.T) {
	want, err := net.LookupPort("tcp", "ssh")
	if err != nil {
		t.Skipf("no service database: %v", err)
	}

	got, _, err := ParseSpec("tcp", "ssh:1023")
	require.NoError(t, err)
	assert.Equal(t, Range{uint16(want), 1023}, got)
}

func TestParse(t *testing.T) {
	r, err := Parse("udp", "", "!53")
	require.NoError(t, err)
	assert.Equal(t, Record{Src: Any, Dst: Range{53, 53}, InvertDst: true}, *r)

	_, err = Parse("udp", "2:1", "")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Parse("udp", "", "x:y:z")
	assert.ErrorIs(t, err, ErrInvalidRange)
}
