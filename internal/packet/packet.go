package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// ErrOutOfBounds is returned when a read would go past the captured data.
var ErrOutOfBounds = errors.New("read past end of packet")

// View is a read-only window over one packet, starting at the network
// header. Implementations must not be mutated while a match is running.
type View interface {
	// Uint32 reads four bytes big-endian at offset.
	Uint32(offset uint32) (uint32, error)
	// Len is the number of captured bytes.
	Len() uint32
	SourcePort() (uint16, bool)
	DestPort() (uint16, bool)
	// Bytes exposes the captured data. Callers must treat it as read-only.
	Bytes() []byte
}

// Raw is a View over bare bytes that carry no transport information.
type Raw []byte

var _ View = Raw(nil)

func (r Raw) Uint32(offset uint32) (uint32, error) {
	return readUint32(r, offset)
}

func (r Raw) Len() uint32 {
	return clampLen(len(r))
}

func (Raw) SourcePort() (uint16, bool) {
	return 0, false
}

func (Raw) DestPort() (uint16, bool) {
	return 0, false
}

func (r Raw) Bytes() []byte {
	return r
}

// Packet is a View over an IPv4 or IPv6 packet whose transport ports have
// been decoded when present.
type Packet struct {
	data []byte

	Protocol layers.IPProtocol
	IsIPv6   bool
	// Fragment is set for every fragment but the first; those carry no
	// transport header.
	Fragment bool
	SrcIP    net.IP
	DstIP    net.IP

	srcPort  uint16
	dstPort  uint16
	hasPorts bool
}

var _ View = (*Packet)(nil)

// New decodes data, which must start at the IP header. Transport decoding
// failures are not errors: the packet is returned without ports.
func New(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, errors.New("empty packet")
	}

	packet := &Packet{data: data}

	var (
		ip4       layers.IPv4
		ip6       layers.IPv6
		ext       layers.IPv6ExtensionSkipper
		frag      ipv6Fragment
		tcp       layers.TCP
		udp       layers.UDP
		decoded   []gopacket.LayerType
		layerType gopacket.LayerType
	)

	switch version := data[0] >> 4; version {
	case 4:
		if len(data) < ipv4.HeaderLen {
			return nil, fmt.Errorf("packet is less than %d bytes", ipv4.HeaderLen)
		}
		layerType = layers.LayerTypeIPv4
	case 6:
		if len(data) < ipv6.HeaderLen {
			return nil, fmt.Errorf("packet is less than %d bytes", ipv6.HeaderLen)
		}
		layerType = layers.LayerTypeIPv6
		packet.IsIPv6 = true
	default:
		return nil, fmt.Errorf("packet is not ip, version: %d", version)
	}

	// frag comes after ext so that it owns the fragment header type.
	parser := gopacket.NewDecodingLayerParser(layerType, &ip4, &ip6, &ext, &frag, &tcp, &udp)
	parser.IgnoreUnsupported = true

	err := parser.DecodeLayers(data, &decoded)
	if len(decoded) == 0 {
		return nil, fmt.Errorf("parser.DecodeLayers: %w", err)
	}

	for _, lt := range decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			packet.Protocol = ip4.Protocol
			packet.SrcIP = ip4.SrcIP
			packet.DstIP = ip4.DstIP
			packet.Fragment = ip4.FragOffset != 0
		case layers.LayerTypeIPv6:
			packet.Protocol = ip6.NextHeader
			if ip6.HopByHop != nil {
				packet.Protocol = ip6.HopByHop.NextHeader
			}
			packet.SrcIP = ip6.SrcIP
			packet.DstIP = ip6.DstIP
		case layers.LayerTypeIPv6Fragment:
			packet.Protocol = frag.NextHeader
			packet.Fragment = frag.offset() != 0
		case layers.LayerTypeIPv6HopByHop, layers.LayerTypeIPv6Routing, layers.LayerTypeIPv6Destination:
			packet.Protocol = ext.NextHeader
		case layers.LayerTypeTCP:
			packet.setPorts(uint16(tcp.SrcPort), uint16(tcp.DstPort))
		case layers.LayerTypeUDP:
			packet.setPorts(uint16(udp.SrcPort), uint16(udp.DstPort))
		}
	}

	// later fragments carry no transport header, whatever decoded after them
	if packet.Fragment {
		packet.srcPort, packet.dstPort, packet.hasPorts = 0, 0, false
	}

	// gopacket hands any IPv4 packet with MF set to its fragment layer, but
	// the first fragment still carries the transport header.
	if !packet.IsIPv6 && !packet.hasPorts && !packet.Fragment &&
		ip4.Flags&layers.IPv4MoreFragments != 0 {
		packet.decodeTransport(ip4.Payload)
	}

	return packet, nil
}

// ipv6Fragment skips the IPv6 fragment header and keeps its offset.
type ipv6Fragment struct {
	layers.IPv6ExtensionSkipper
}

func (f *ipv6Fragment) CanDecode() gopacket.LayerClass {
	return layers.LayerTypeIPv6Fragment
}

// offset is the fragment offset in 8-byte units.
func (f *ipv6Fragment) offset() uint16 {
	if len(f.Contents) < 4 {
		return 0
	}
	return binary.BigEndian.Uint16(f.Contents[2:4]) >> 3
}

func (p *Packet) decodeTransport(payload []byte) {
	switch p.Protocol {
	case layers.IPProtocolTCP:
		var tcp layers.TCP
		if err := tcp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err == nil {
			p.setPorts(uint16(tcp.SrcPort), uint16(tcp.DstPort))
		}
	case layers.IPProtocolUDP:
		var udp layers.UDP
		if err := udp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err == nil {
			p.setPorts(uint16(udp.SrcPort), uint16(udp.DstPort))
		}
	}
}

func (p *Packet) setPorts(src, dst uint16) {
	p.srcPort = src
	p.dstPort = dst
	p.hasPorts = true
}

func (p *Packet) Uint32(offset uint32) (uint32, error) {
	return readUint32(p.data, offset)
}

func (p *Packet) Len() uint32 {
	return clampLen(len(p.data))
}

func (p *Packet) SourcePort() (uint16, bool) {
	return p.srcPort, p.hasPorts
}

func (p *Packet) DestPort() (uint16, bool) {
	return p.dstPort, p.hasPorts
}

func (p *Packet) Bytes() []byte {
	return p.data
}

func (p *Packet) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("proto", p.Protocol.String()),
		slog.String("src", p.SrcIP.String()),
		slog.String("dst", p.DstIP.String()),
		slog.Int("len", len(p.data)),
	}
	if p.hasPorts {
		attrs = append(attrs,
			slog.Int("sport", int(p.srcPort)),
			slog.Int("dport", int(p.dstPort)),
		)
	}
	return slog.GroupValue(attrs...)
}

func readUint32(b []byte, offset uint32) (uint32, error) {
	if uint64(offset)+4 > uint64(len(b)) {
		return 0, ErrOutOfBounds
	}
	return binary.BigEndian.Uint32(b[offset:]), nil
}

func clampLen(n int) uint32 {
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}
