package traffic

import (
	"fmt"
	"io"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
)

// DefaultSnapLen is the capture length used unless configured otherwise.
const DefaultSnapLen = 64 * datasize.KB

// PcapWriter records Ethernet frames into a pcap stream.
type PcapWriter struct {
	w   *pcapgo.Writer
	now func() time.Time
}

// NewPcapWriter writes the pcap file header and returns a writer appending
// frames after it.
func NewPcapWriter(w io.Writer, snaplen datasize.ByteSize) (*PcapWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(uint32(snaplen.Bytes()), layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}

	return &PcapWriter{
		w:   pw,
		now: time.Now,
	}, nil
}

// WritePacketData records a frame stamped with the current time.
func (m *PcapWriter) WritePacketData(data []byte) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     m.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	return m.WritePacket(ci, data)
}

// WritePacket records a captured frame keeping its metadata.
func (m *PcapWriter) WritePacket(ci gopacket.CaptureInfo, data []byte) error {
	if err := m.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

// OpenPcapReader opens a pcap stream for sniffing.
func OpenPcapReader(r io.Reader) (gopacket.PacketDataSource, layers.LinkType, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return reader, reader.LinkType(), nil
}
