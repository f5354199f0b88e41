package xpacket

import (
	"fmt"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// DefaultSerializeOptions recompute lengths and checksums, the way a packet
// crafting tool fills in fields the caller left unset.
var DefaultSerializeOptions = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// Serialize stacks the layers produced by the builders into frame bytes.
//
// EtherType and IP protocol numbers are inferred from the layer order, and
// transport layers are bound to the preceding network layer for checksum
// computation.
func Serialize(builders ...LayerBuilder) ([]byte, error) {
	serialLayers := make([]gopacket.SerializableLayer, 0, len(builders))
	for _, builder := range builders {
		layer, err := builder.Build()
		if err != nil {
			return nil, err
		}
		serialLayers = append(serialLayers, layer)
	}

	bindLayers(serialLayers)

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, DefaultSerializeOptions, serialLayers...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}

	return buf.Bytes(), nil
}

// NewPacket serializes the layers and decodes them back into a packet.
func NewPacket(builders ...LayerBuilder) (gopacket.Packet, error) {
	data, err := Serialize(builders...)
	if err != nil {
		return nil, err
	}

	pkt := ParseEtherPacket(data)
	if pkt.ErrorLayer() != nil {
		return nil, fmt.Errorf("failed to parse packet: %v", pkt.ErrorLayer().Error())
	}

	return pkt, nil
}

// ParseEtherPacket decodes an Ethernet frame.
func ParseEtherPacket(data []byte) gopacket.Packet {
	// Pad the packet with zero bytes to align its size at 60 bytes
	// https://github.com/google/gopacket/issues/361
	if len(data) < 60 {
		var zeros [60]byte
		data = append(data[:len(data):len(data)], zeros[:60-len(data)]...)
	}

	return gopacket.NewPacket(
		data,
		layers.LayerTypeEthernet,
		gopacket.Default,
	)
}

func bindLayers(serialLayers []gopacket.SerializableLayer) {
	for idx, layer := range serialLayers {
		if idx+1 >= len(serialLayers) {
			break
		}
		next := serialLayers[idx+1]

		switch l := layer.(type) {
		case *layers.Ethernet:
			switch next.(type) {
			case *layers.IPv4:
				l.EthernetType = layers.EthernetTypeIPv4
			case *layers.IPv6:
				l.EthernetType = layers.EthernetTypeIPv6
			case *layers.ARP:
				l.EthernetType = layers.EthernetTypeARP
			}
		case *layers.IPv4:
			if l.Protocol != 0 {
				continue
			}
			switch next.(type) {
			case *layers.TCP:
				l.Protocol = layers.IPProtocolTCP
			case *layers.UDP:
				l.Protocol = layers.IPProtocolUDP
			case *layers.ICMPv4:
				l.Protocol = layers.IPProtocolICMPv4
			}
		}
	}

	var network gopacket.NetworkLayer
	for _, layer := range serialLayers {
		if nl, ok := layer.(gopacket.NetworkLayer); ok {
			network = nl
			continue
		}
		if network == nil {
			continue
		}

		switch tl := layer.(type) {
		case *layers.TCP:
			_ = tl.SetNetworkLayerForChecksum(network)
		case *layers.UDP:
			_ = tl.SetNetworkLayerForChecksum(network)
		}
	}
}
