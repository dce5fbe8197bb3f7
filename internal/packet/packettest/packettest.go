// Package packettest builds wire-format packets for tests.
package packettest

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	SrcIPv4 = net.IPv4(192, 168, 1, 10)
	DstIPv4 = net.IPv4(10, 0, 0, 1)
	SrcIPv6 = net.ParseIP("2001:db8::10")
	DstIPv6 = net.ParseIP("2001:db8::1")
)

var serializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    SrcIPv4,
		DstIP:    DstIPv4,
	}
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buffer := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buffer, serializeOpts, ls...); err != nil {
		t.Fatalf("gopacket.SerializeLayers: %v", err)
	}
	return buffer.Bytes()
}

// UDPv4 returns an IPv4/UDP packet.
func UDPv4(t testing.TB, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	_ = udp.SetNetworkLayerForChecksum(ip)
	return serialize(t, ip, udp, gopacket.Payload(payload))
}

// TCPv4 returns an IPv4/TCP SYN packet.
func TCPv4(t testing.TB, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     1000,
		SYN:     true,
		Window:  65535,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)
	return serialize(t, ip, tcp, gopacket.Payload(payload))
}

// UDPv6 returns an IPv6/UDP packet.
func UDPv6(t testing.TB, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      SrcIPv6,
		DstIP:      DstIPv6,
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	_ = udp.SetNetworkLayerForChecksum(ip)
	return serialize(t, ip, udp, gopacket.Payload(payload))
}

// ICMPv4 returns an IPv4 echo request.
func ICMPv4(t testing.TB) []byte {
	t.Helper()
	ip := ipv4(layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       1,
		Seq:      1,
	}
	return serialize(t, ip, icmp)
}

// FragmentV4 returns an IPv4/UDP fragment. A zero offset with more set is
// the first fragment and still carries the UDP header.
func FragmentV4(t testing.TB, sport, dport uint16, offset uint16, more bool) []byte {
	t.Helper()
	ip := ipv4(layers.IPProtocolUDP)
	ip.FragOffset = offset
	if more {
		ip.Flags = layers.IPv4MoreFragments
	}
	if offset != 0 {
		return serialize(t, ip, gopacket.Payload(make([]byte, 16)))
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	_ = udp.SetNetworkLayerForChecksum(ip)
	return serialize(t, ip, udp, gopacket.Payload(make([]byte, 16)))
}

func ipv6(next layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: next,
		SrcIP:      SrcIPv6,
		DstIP:      DstIPv6,
	}
}

func udpFor(t testing.TB, ip gopacket.NetworkLayer, sport, dport uint16) []byte {
	t.Helper()
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	_ = udp.SetNetworkLayerForChecksum(ip)
	return serialize(t, udp, gopacket.Payload(make([]byte, 8)))
}

// UDPv6Destination returns an IPv6/UDP packet with a Destination Options
// header, holding a single PadN option, before the UDP header.
func UDPv6Destination(t testing.TB, sport, dport uint16) []byte {
	t.Helper()
	ip := ipv6(layers.IPProtocolIPv6Destination)
	ext := []byte{byte(layers.IPProtocolUDP), 0, 1, 4, 0, 0, 0, 0}
	payload := append(ext, udpFor(t, ip, sport, dport)...)
	return serialize(t, ip, gopacket.Payload(payload))
}

// FragmentV6 returns an IPv6/UDP fragment. offset is in 8-byte units; a
// zero offset still carries the UDP header.
func FragmentV6(t testing.TB, sport, dport uint16, offset uint16, more bool) []byte {
	t.Helper()
	ip := ipv6(layers.IPProtocolIPv6Fragment)
	field := offset << 3
	if more {
		field |= 1
	}
	ext := []byte{byte(layers.IPProtocolUDP), 0, byte(field >> 8), byte(field), 0, 0, 0, 1}
	body := make([]byte, 16)
	if offset == 0 {
		body = udpFor(t, ip, sport, dport)
	}
	return serialize(t, ip, gopacket.Payload(append(ext, body...)))
}
