package xpacket

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func TestNewPacketUDP(t *testing.T) {
	pkt, err := NewPacket(
		Ether(),
		IPv4(IPSrc("140.180.9.9"), IPDst("3.7.35.15")),
		UDP(UDPSport(30300), UDPDport(3478)),
	)
	require.NoError(t, err)

	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.Equal(t, BroadcastMAC, eth.DstMAC)
	require.Equal(t, layers.EthernetTypeIPv4, eth.EthernetType)

	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.Equal(t, "140.180.9.9", ip.SrcIP.String())
	require.Equal(t, "3.7.35.15", ip.DstIP.String())
	require.Equal(t, layers.IPProtocolUDP, ip.Protocol)
	require.Equal(t, uint8(64), ip.TTL)
	require.Equal(t, uint16(1), ip.Id)
	require.Equal(t, uint16(28), ip.Length)

	udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.Equal(t, layers.UDPPort(30300), udp.SrcPort)
	require.Equal(t, layers.UDPPort(3478), udp.DstPort)
	require.Equal(t, uint16(8), udp.Length)
	require.NotZero(t, udp.Checksum)
}

func TestNewPacketTCPDefaults(t *testing.T) {
	src := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}

	pkt, err := NewPacket(
		Ether(EtherSrc(src)),
		IPv4(IPSrc("140.180.5.5"), IPDst("3.7.35.15")),
		TCP(TCPSport(28329), TCPDport(8801)),
	)
	require.NoError(t, err)

	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.Equal(t, src, eth.SrcMAC)

	tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	require.True(t, tcp.SYN)
	require.False(t, tcp.ACK)
	require.Equal(t, uint16(8192), tcp.Window)
	require.Equal(t, uint8(5), tcp.DataOffset)
	require.Equal(t, "S", TCPFlagString(tcp))
}

func TestSerializeRejectsBadAddress(t *testing.T) {
	_, err := Serialize(Ether(), IPv4(IPSrc("10.0.2")), UDP())
	require.Error(t, err)

	_, err = Serialize(Ether(), IPv4(IPDst("::1")), UDP())
	require.Error(t, err)
}

func TestSerializeIsDeterministic(t *testing.T) {
	build := func() []byte {
		data, err := Serialize(
			Ether(),
			IPv4(IPSrc("3.5.8.33"), IPDst("4.4.10.11")),
			TCP(TCPSport(5444), TCPDport(2232)),
		)
		require.NoError(t, err)
		return data
	}

	if diff := cmp.Diff(build(), build()); diff != "" {
		t.Fatalf("frames differ (-first +second):\n%s", diff)
	}
}

func TestTCPFlags(t *testing.T) {
	pkt, err := NewPacket(
		Ether(),
		IPv4(IPSrc("3.7.35.15"), IPDst("10.0.2.24")),
		TCP(TCPFlags("SA")),
	)
	require.NoError(t, err)

	tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	require.Equal(t, "SA", TCPFlagString(tcp))
}

func TestIPTTL(t *testing.T) {
	pkt, err := NewPacket(
		Ether(),
		IPv4(IPSrc("10.0.2.24"), IPDst("3.7.35.15"), IPTTL(1)),
		UDP(),
	)
	require.NoError(t, err)

	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.Equal(t, uint8(1), ip.TTL)
}
