package traffic

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/zoomcap/zoomcap-p4/common/go/xerror"
	"github.com/zoomcap/zoomcap-p4/common/go/xpacket"
)

func TestParseCategory(t *testing.T) {
	for _, name := range []string{"server", "stun", "p2p", "other", "all"} {
		c, err := ParseCategory(name)
		require.NoError(t, err)
		require.Equal(t, name, c.String())
	}

	for _, name := range []string{"", "Server", "rtp"} {
		_, err := ParseCategory(name)
		require.ErrorIs(t, err, ErrUnknownCategory)
	}
}

func TestFlows(t *testing.T) {
	tests := []struct {
		category Category
		expected []string
	}{
		{
			category: CategoryServer,
			expected: []string{
				"UDP 10.0.2.24:14922 > 3.7.35.15:8801",
				"TCP 140.180.5.5:28329 > 3.7.35.15:8801",
				"TCP 3.7.35.15:8801 > 10.0.2.24:28329",
			},
		},
		{
			category: CategoryStun,
			expected: []string{
				"UDP 140.180.9.9:30300 > 3.7.35.15:3478",
			},
		},
		{
			category: CategoryP2P,
			expected: []string{
				"UDP 140.180.9.9:30300 > 3.50.33.3:29299",
				"UDP 3.50.33.3:29299 > 10.0.2.24:30300",
			},
		},
		{
			category: CategoryOther,
			expected: []string{
				"UDP 3.3.3.3:34324 > 4.4.4.4:64442",
				"UDP 3.5.8.33:5444 > 4.4.10.11:2232",
				"TCP 3.5.8.33:5444 > 4.4.10.11:2232",
			},
		},
	}

	var all []string
	for _, tt := range tests {
		t.Run(tt.category.String(), func(t *testing.T) {
			flows, err := Flows(tt.category)
			require.NoError(t, err)

			var got []string
			for _, flow := range flows {
				got = append(got, flow.String())
			}
			require.Equal(t, tt.expected, got)
		})
		all = append(all, tt.expected...)
	}

	flows, err := Flows(CategoryAll)
	require.NoError(t, err)
	require.Len(t, flows, len(all))
	for idx, flow := range flows {
		require.Equal(t, all[idx], flow.String())
	}

	_, err = Flows("video")
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestFlowFrameDefaults(t *testing.T) {
	src := xerror.Unwrap(net.ParseMAC("02:00:00:00:00:01"))

	flows, err := Flows(CategoryServer)
	require.NoError(t, err)

	data, err := flows[1].Frame(src, nil)
	require.NoError(t, err)

	pkt := xpacket.ParseEtherPacket(data)
	require.Nil(t, pkt.ErrorLayer())

	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.Equal(t, src, eth.SrcMAC)
	require.Equal(t, xpacket.BroadcastMAC, eth.DstMAC)

	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.Equal(t, uint8(64), ip.TTL)
	require.Equal(t, uint16(1), ip.Id)
	require.Equal(t, "140.180.5.5", ip.SrcIP.String())
	require.Equal(t, "3.7.35.15", ip.DstIP.String())

	tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	require.Equal(t, layers.TCPPort(28329), tcp.SrcPort)
	require.Equal(t, layers.TCPPort(8801), tcp.DstPort)
	require.True(t, tcp.SYN)
	require.False(t, tcp.ACK)
	require.Equal(t, uint16(8192), tcp.Window)
	require.Zero(t, tcp.Seq)
}

func TestFlowUnsupportedProtocol(t *testing.T) {
	flow := udp("1.1.1.1:1", "2.2.2.2:2")
	flow.Protocol = layers.IPProtocolICMPv4

	_, err := flow.Frame(nil, nil)
	require.Error(t, err)
}
