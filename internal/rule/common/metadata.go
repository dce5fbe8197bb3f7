package common

import (
	"log/slog"
	"net"

	"github.com/google/gopacket/layers"

	"github.com/xtmatch/xtmatch/internal/packet"
)

// Metadata is what the rules see of one packet.
type Metadata struct {
	Packet   packet.View
	Protocol layers.IPProtocol
	// Fragment is set for non-first IP fragments.
	Fragment bool
	// Index is the packet's position in its input.
	Index int
	// SrcIP and DstIP are nil when the packet did not decode.
	SrcIP net.IP
	DstIP net.IP

	decoded *packet.Packet
}

// NewMetadata decodes data as an IP packet. Data that does not decode is
// still matched, as raw bytes without a protocol.
func NewMetadata(index int, data []byte) *Metadata {
	p, err := packet.New(data)
	if err != nil {
		slog.Debug("packet.New", slog.Int("index", index), slog.Any("error", err))
		return &Metadata{Packet: packet.Raw(data), Index: index}
	}
	return &Metadata{
		Packet:   p,
		Protocol: p.Protocol,
		Fragment: p.Fragment,
		Index:    index,
		SrcIP:    p.SrcIP,
		DstIP:    p.DstIP,
		decoded:  p,
	}
}

func (m *Metadata) LogValue() slog.Value {
	if m.decoded != nil {
		return slog.GroupValue(
			slog.Int("index", m.Index),
			slog.Any("packet", m.decoded),
		)
	}
	return slog.GroupValue(
		slog.Int("index", m.Index),
		slog.Int("len", int(m.Packet.Len())),
	)
}
