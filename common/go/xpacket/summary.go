package xpacket

import (
	"fmt"
	"net"
	"strings"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Summary renders a packet as a single line of slash-separated layer names,
// with the innermost protocol carrying its addressing details, e.g.
//
//	Ether / IP / UDP 140.180.9.9:30300 > 3.7.35.15:3478
//	Ether / IP / TCP 140.180.5.5:28329 > 3.7.35.15:8801 S
func Summary(pkt gopacket.Packet) string {
	var (
		parts   []string
		src     string
		dst     string
		proto   string
		netIdx  = -1
		hasNext bool
	)

	for _, layer := range pkt.Layers() {
		switch l := layer.(type) {
		case *layers.Ethernet:
			parts = append(parts, "Ether")
		case *layers.Dot1Q:
			parts = append(parts, "802.1Q")
		case *layers.ARP:
			parts = append(parts, arpSummary(l))
		case *layers.IPv4:
			src, dst, proto = l.SrcIP.String(), l.DstIP.String(), strings.ToLower(l.Protocol.String())
			netIdx = len(parts)
			hasNext = false
			parts = append(parts, "IP")
		case *layers.IPv6:
			src, dst, proto = "["+l.SrcIP.String()+"]", "["+l.DstIP.String()+"]", strings.ToLower(l.NextHeader.String())
			netIdx = len(parts)
			hasNext = false
			parts = append(parts, "IPv6")
		case *layers.UDP:
			hasNext = true
			parts = append(parts, fmt.Sprintf("UDP %s:%d > %s:%d", src, l.SrcPort, dst, l.DstPort))
		case *layers.TCP:
			hasNext = true
			parts = append(parts, fmt.Sprintf("TCP %s:%d > %s:%d %s", src, l.SrcPort, dst, l.DstPort, TCPFlagString(l)))
		case *layers.ICMPv4:
			hasNext = true
			parts = append(parts, fmt.Sprintf("ICMP %s > %s %s", src, dst, l.TypeCode))
		case *gopacket.Payload, *gopacket.DecodeFailure:
			hasNext = true
			parts = append(parts, "Raw")
		default:
			hasNext = true
			parts = append(parts, layer.LayerType().String())
		}
	}

	// A bare network layer describes itself instead of naming itself.
	if netIdx >= 0 && !hasNext {
		parts[netIdx] = fmt.Sprintf("%s > %s %s", src, dst, proto)
	}

	return strings.Join(parts, " / ")
}

// TCPFlagString returns the set TCP flags as letters in FSRPAUECN order.
func TCPFlagString(tcp *layers.TCP) string {
	flags := []struct {
		set    bool
		letter byte
	}{
		{tcp.FIN, 'F'},
		{tcp.SYN, 'S'},
		{tcp.RST, 'R'},
		{tcp.PSH, 'P'},
		{tcp.ACK, 'A'},
		{tcp.URG, 'U'},
		{tcp.ECE, 'E'},
		{tcp.CWR, 'C'},
		{tcp.NS, 'N'},
	}

	var b strings.Builder
	for _, f := range flags {
		if f.set {
			b.WriteByte(f.letter)
		}
	}
	return b.String()
}

func arpSummary(arp *layers.ARP) string {
	switch arp.Operation {
	case layers.ARPRequest:
		return fmt.Sprintf("ARP who has %s says %s",
			net.IP(arp.DstProtAddress), net.IP(arp.SourceProtAddress))
	case layers.ARPReply:
		return fmt.Sprintf("ARP is at %s says %s",
			net.HardwareAddr(arp.SourceHwAddress), net.IP(arp.SourceProtAddress))
	default:
		return "ARP"
	}
}
