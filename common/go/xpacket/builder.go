package xpacket

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// LayerBuilder produces a single serializable layer.
type LayerBuilder interface {
	Build() (gopacket.SerializableLayer, error)
}

// ===== Ethernet Layer =====

type EthernetBuilder struct {
	layer *layers.Ethernet
}

// Ether creates an Ethernet layer builder.
//
// Unless overridden the frame is addressed to broadcast from the zero MAC,
// which matches what a crafting tool does when the destination cannot be
// resolved.
func Ether(opts ...EtherOption) *EthernetBuilder {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstMAC:       BroadcastMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}

	for _, opt := range opts {
		opt(eth)
	}

	return &EthernetBuilder{layer: eth}
}

func (b *EthernetBuilder) Build() (gopacket.SerializableLayer, error) {
	return b.layer, nil
}

type EtherOption func(*layers.Ethernet)

func EtherSrc(mac net.HardwareAddr) EtherOption {
	return func(eth *layers.Ethernet) {
		if len(mac) != 0 {
			eth.SrcMAC = mac
		}
	}
}

func EtherDst(mac net.HardwareAddr) EtherOption {
	return func(eth *layers.Ethernet) {
		if len(mac) != 0 {
			eth.DstMAC = mac
		}
	}
}

// ===== IPv4 Layer =====

type IPv4Builder struct {
	layer *layers.IPv4
	err   error
}

// IPv4 creates an IPv4 layer builder with TTL 64 and identification 1.
func IPv4(opts ...IPv4Option) *IPv4Builder {
	ip := &layers.IPv4{
		Version: 4,
		IHL:     5,
		TTL:     64,
		Id:      1,
	}

	builder := &IPv4Builder{layer: ip}
	for _, opt := range opts {
		opt(builder)
	}

	return builder
}

func (b *IPv4Builder) Build() (gopacket.SerializableLayer, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.layer, nil
}

type IPv4Option func(*IPv4Builder)

func IPSrc(ip string) IPv4Option {
	return func(builder *IPv4Builder) {
		addr, err := parseIPv4(ip)
		if err != nil {
			builder.err = fmt.Errorf("invalid source address: %w", err)
			return
		}
		builder.layer.SrcIP = addr
	}
}

func IPDst(ip string) IPv4Option {
	return func(builder *IPv4Builder) {
		addr, err := parseIPv4(ip)
		if err != nil {
			builder.err = fmt.Errorf("invalid destination address: %w", err)
			return
		}
		builder.layer.DstIP = addr
	}
}

func IPTTL(ttl uint8) IPv4Option {
	return func(builder *IPv4Builder) {
		builder.layer.TTL = ttl
	}
}

func parseIPv4(ip string) (net.IP, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, err
	}
	if !addr.Is4() {
		return nil, fmt.Errorf("%s is not an IPv4 address", ip)
	}

	b := addr.As4()
	return net.IP(b[:]), nil
}

// ===== TCP Layer =====

type TCPBuilder struct {
	layer *layers.TCP
}

// TCP creates a TCP layer builder carrying a bare SYN with window 8192.
func TCP(opts ...TCPOption) *TCPBuilder {
	tcp := &layers.TCP{
		DataOffset: 5,
		SrcPort:    20,
		DstPort:    80,
		SYN:        true,
		Window:     8192,
	}

	builder := &TCPBuilder{layer: tcp}
	for _, opt := range opts {
		opt(builder)
	}

	return builder
}

func (b *TCPBuilder) Build() (gopacket.SerializableLayer, error) {
	return b.layer, nil
}

type TCPOption func(*TCPBuilder)

func TCPSport(port uint16) TCPOption {
	return func(builder *TCPBuilder) {
		builder.layer.SrcPort = layers.TCPPort(port)
	}
}

func TCPDport(port uint16) TCPOption {
	return func(builder *TCPBuilder) {
		builder.layer.DstPort = layers.TCPPort(port)
	}
}

// TCPFlags replaces the flags with the given letters, e.g. "S", "SA", "FA".
func TCPFlags(flags string) TCPOption {
	return func(builder *TCPBuilder) {
		l := builder.layer
		l.FIN, l.SYN, l.RST, l.PSH, l.ACK, l.URG = false, false, false, false, false, false

		for _, flag := range flags {
			switch flag {
			case 'F':
				l.FIN = true
			case 'S':
				l.SYN = true
			case 'R':
				l.RST = true
			case 'P':
				l.PSH = true
			case 'A':
				l.ACK = true
			case 'U':
				l.URG = true
			}
		}
	}
}

// ===== UDP Layer =====

type UDPBuilder struct {
	layer *layers.UDP
}

// UDP creates a UDP layer builder with both ports set to 53.
func UDP(opts ...UDPOption) *UDPBuilder {
	udp := &layers.UDP{
		SrcPort: 53,
		DstPort: 53,
	}

	builder := &UDPBuilder{layer: udp}
	for _, opt := range opts {
		opt(builder)
	}

	return builder
}

func (b *UDPBuilder) Build() (gopacket.SerializableLayer, error) {
	return b.layer, nil
}

type UDPOption func(*UDPBuilder)

func UDPSport(port uint16) UDPOption {
	return func(builder *UDPBuilder) {
		builder.layer.SrcPort = layers.UDPPort(port)
	}
}

func UDPDport(port uint16) UDPOption {
	return func(builder *UDPBuilder) {
		builder.layer.DstPort = layers.UDPPort(port)
	}
}

// ===== Payload =====

type payloadBuilder []byte

// Payload appends raw bytes after the last protocol layer.
func Payload(data []byte) LayerBuilder {
	return payloadBuilder(data)
}

func (b payloadBuilder) Build() (gopacket.SerializableLayer, error) {
	return gopacket.Payload(b), nil
}
