package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/zoomcap/zoomcap-p4/traffic"
)

func countFrames(t *testing.T, path string) (int, []*layers.Ethernet) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	src, _, err := traffic.OpenPcapReader(f)
	require.NoError(t, err)

	var eth []*layers.Ethernet
	for {
		data, _, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		l := &layers.Ethernet{}
		require.NoError(t, l.DecodeFromBytes(data, gopacket.NilDecodeFeedback))
		eth = append(eth, l)
	}
	return len(eth), eth
}

func TestSendToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pcap")

	err := runSend(&sendCmd{
		Type:      "server",
		SrcMAC:    "02:00:00:00:00:01",
		WritePath: path,
	})
	require.NoError(t, err)

	n, eth := countFrames(t, path)
	require.Equal(t, 3, n)
	require.Equal(t, "02:00:00:00:00:01", eth[0].SrcMAC.String())
	require.Equal(t, "ff:ff:ff:ff:ff:ff", eth[0].DstMAC.String())
}

func TestSendUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.pcap")

	require.NoError(t, runSend(&sendCmd{Type: "video", WritePath: path}))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestSendRejectsBadMAC(t *testing.T) {
	err := runSend(&sendCmd{
		Type:      "stun",
		DstMAC:    "not-a-mac",
		WritePath: filepath.Join(t.TempDir(), "stun.pcap"),
	})
	require.Error(t, err)
}

func TestReceiveFromFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "all.pcap")
	output := filepath.Join(dir, "recorded.pcap")

	require.NoError(t, runSend(&sendCmd{Type: "all", WritePath: input}))

	err := runReceive(&receiveCmd{
		ReadPath:  input,
		WritePath: output,
		SnapLen:   "64KB",
	})
	require.NoError(t, err)

	n, _ := countFrames(t, output)
	require.Equal(t, 9, n)
}

func TestReceiveRejectsBadSnapLen(t *testing.T) {
	err := runReceive(&receiveCmd{ReadPath: "unused.pcap", SnapLen: "lots"})
	require.Error(t, err)
}
