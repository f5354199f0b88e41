package traffic

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket/layers"

	"github.com/zoomcap/zoomcap-p4/common/go/xpacket"
)

// Flow is a single IPv4 frame template: transport protocol and endpoints.
type Flow struct {
	Protocol layers.IPProtocol
	Src      netip.AddrPort
	Dst      netip.AddrPort
}

func udp(src string, dst string) Flow {
	return Flow{
		Protocol: layers.IPProtocolUDP,
		Src:      netip.MustParseAddrPort(src),
		Dst:      netip.MustParseAddrPort(dst),
	}
}

func tcp(src string, dst string) Flow {
	return Flow{
		Protocol: layers.IPProtocolTCP,
		Src:      netip.MustParseAddrPort(src),
		Dst:      netip.MustParseAddrPort(dst),
	}
}

var catalog = map[Category][]Flow{
	CategoryServer: {
		udp("10.0.2.24:14922", "3.7.35.15:8801"),
		tcp("140.180.5.5:28329", "3.7.35.15:8801"),
		tcp("3.7.35.15:8801", "10.0.2.24:28329"),
	},
	CategoryStun: {
		udp("140.180.9.9:30300", "3.7.35.15:3478"),
	},
	CategoryP2P: {
		udp("140.180.9.9:30300", "3.50.33.3:29299"),
		udp("3.50.33.3:29299", "10.0.2.24:30300"),
	},
	CategoryOther: {
		udp("3.3.3.3:34324", "4.4.4.4:64442"),
		udp("3.5.8.33:5444", "4.4.10.11:2232"),
		tcp("3.5.8.33:5444", "4.4.10.11:2232"),
	},
}

// Flows returns the frame templates of a category in sending order.
func Flows(c Category) ([]Flow, error) {
	if c == CategoryAll {
		var out []Flow
		for _, category := range Categories() {
			out = append(out, catalog[category]...)
		}
		return out, nil
	}

	flows, ok := catalog[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	return flows, nil
}

// Layers returns the builders of the frame. Empty MAC addresses keep the
// builder defaults.
func (f Flow) Layers(src net.HardwareAddr, dst net.HardwareAddr) ([]xpacket.LayerBuilder, error) {
	out := []xpacket.LayerBuilder{
		xpacket.Ether(xpacket.EtherSrc(src), xpacket.EtherDst(dst)),
		xpacket.IPv4(xpacket.IPSrc(f.Src.Addr().String()), xpacket.IPDst(f.Dst.Addr().String())),
	}

	switch f.Protocol {
	case layers.IPProtocolUDP:
		out = append(out, xpacket.UDP(xpacket.UDPSport(f.Src.Port()), xpacket.UDPDport(f.Dst.Port())))
	case layers.IPProtocolTCP:
		out = append(out, xpacket.TCP(xpacket.TCPSport(f.Src.Port()), xpacket.TCPDport(f.Dst.Port())))
	default:
		return nil, fmt.Errorf("unsupported protocol %s", f.Protocol)
	}

	return out, nil
}

// Frame serializes the frame.
func (f Flow) Frame(src net.HardwareAddr, dst net.HardwareAddr) ([]byte, error) {
	builders, err := f.Layers(src, dst)
	if err != nil {
		return nil, err
	}
	return xpacket.Serialize(builders...)
}

func (f Flow) String() string {
	return fmt.Sprintf("%s %s > %s", f.Protocol, f.Src, f.Dst)
}
