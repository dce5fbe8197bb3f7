package packet

import (
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtmatch/xtmatch/internal/packet/packettest"
)

func TestRawUint32(t *testing.T) {
	r := Raw{0x00, 0x00, 0x00, 0x0f, 0xde, 0xad, 0xbe, 0xef}

	tests := []struct {
		offset  uint32
		want    uint32
		wantErr bool
	}{
		{0, 0x0000000f, false},
		{4, 0xdeadbeef, false},
		{2, 0x000fdead, false},
		{5, 0, true},
		{8, 0, true},
		{0xfffffffe, 0, true},
		{0xffffffff, 0, true},
	}

	for _, tt := range tests {
		got, err := r.Uint32(tt.offset)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrOutOfBounds, "offset %d", tt.offset)
			continue
		}
		assert.NoError(t, err, "offset %d", tt.offset)
		assert.Equal(t, tt.want, got, "offset %d", tt.offset)
	}

	_, ok := r.SourcePort()
	assert.False(t, ok)
	assert.Equal(t, uint32(8), r.Len())
}

func TestBoundary(t *testing.T) {
	data := make([]byte, 32)
	r := Raw(data)

	_, err := r.Uint32(r.Len() - 4)
	assert.NoError(t, err)

	_, err = r.Uint32(r.Len() - 3)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestNewPacket(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		proto     layers.IPProtocol
		ipv6      bool
		wantPorts bool
		sport     uint16
		dport     uint16
	}{
		{"udp v4", packettest.UDPv4(t, 5353, 53, []byte("query")), layers.IPProtocolUDP, false, true, 5353, 53},
		{"tcp v4", packettest.TCPv4(t, 40000, 443, nil), layers.IPProtocolTCP, false, true, 40000, 443},
		{"udp v6", packettest.UDPv6(t, 123, 124, nil), layers.IPProtocolUDP, true, true, 123, 124},
		{"icmp v4", packettest.ICMPv4(t), layers.IPProtocolICMPv4, false, false, 0, 0},
		{"first fragment", packettest.FragmentV4(t, 7, 9, 0, true), layers.IPProtocolUDP, false, true, 7, 9},
		{"later fragment", packettest.FragmentV4(t, 7, 9, 10, false), layers.IPProtocolUDP, false, false, 0, 0},
		{"udp v6 destination options", packettest.UDPv6Destination(t, 1234, 53), layers.IPProtocolUDP, true, true, 1234, 53},
		{"first fragment v6", packettest.FragmentV6(t, 7, 9, 0, true), layers.IPProtocolUDP, true, true, 7, 9},
		{"later fragment v6", packettest.FragmentV6(t, 7, 9, 2, false), layers.IPProtocolUDP, true, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.data)
			require.NoError(t, err)

			assert.Equal(t, tt.proto, p.Protocol)
			assert.Equal(t, tt.ipv6, p.IsIPv6)
			assert.Equal(t, uint32(len(tt.data)), p.Len())

			sport, ok := p.SourcePort()
			assert.Equal(t, tt.wantPorts, ok)
			dport, ok := p.DestPort()
			assert.Equal(t, tt.wantPorts, ok)
			if tt.wantPorts {
				assert.Equal(t, tt.sport, sport)
				assert.Equal(t, tt.dport, dport)
			}
		})
	}
}

func TestNewPacketFragmentFlag(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"v4 first", packettest.FragmentV4(t, 7, 9, 0, true), false},
		{"v4 later", packettest.FragmentV4(t, 7, 9, 10, false), true},
		{"v6 first", packettest.FragmentV6(t, 7, 9, 0, true), false},
		{"v6 later", packettest.FragmentV6(t, 7, 9, 2, true), true},
		{"v6 extension header", packettest.UDPv6Destination(t, 7, 9), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Fragment)
		})
	}
}

func TestNewPacketReadsFromNetworkHeader(t *testing.T) {
	data := packettest.UDPv4(t, 1, 2, nil)
	p, err := New(data)
	require.NoError(t, err)

	// version 4, IHL 5
	word, err := p.Uint32(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x45), word>>24)

	// ports sit right after the 20 byte header
	word, err = p.Uint32(20)
	require.NoError(t, err)
	assert.Equal(t, uint32(1<<16|2), word)
}

func TestNewPacketRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short v4", []byte{0x45, 0, 0, 20}},
		{"short v6", append([]byte{0x60}, make([]byte, 20)...)},
		{"not ip", append([]byte{0x10}, make([]byte, 40)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestTruncatedTransportKeepsPacket(t *testing.T) {
	data := packettest.TCPv4(t, 1000, 2000, nil)
	// keep the IP header and only 6 bytes of TCP
	p, err := New(data[:26])
	require.NoError(t, err)
	assert.Equal(t, layers.IPProtocolTCP, p.Protocol)

	_, ok := p.SourcePort()
	assert.False(t, ok)
}
