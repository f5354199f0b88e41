//go:build linux

package traffic

import (
	"errors"
	"fmt"
	"net"

	"github.com/c2h5oh/datasize"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/mdlayher/packet"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
)

var _ PacketWriter = (*InterfaceWriter)(nil)

// frameConn is the part of a raw packet socket used for sending.
type frameConn interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
	Close() error
}

// InterfaceWriter sends complete Ethernet frames on a link.
type InterfaceWriter struct {
	conn frameConn
}

// OpenSender opens a raw AF_PACKET socket for sending frames on the
// interface.
func OpenSender(name string) (*InterfaceWriter, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to find interface %q: %w", name, err)
	}

	// Protocol 0 binds the socket without subscribing to any incoming
	// frames.
	conn, err := packet.Listen(ifi, packet.Raw, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %q: %w", name, err)
	}

	return &InterfaceWriter{conn: conn}, nil
}

// WritePacketData sends a frame, addressed to its own destination MAC.
func (m *InterfaceWriter) WritePacketData(data []byte) error {
	if len(data) < 14 {
		return errors.New("frame is shorter than an Ethernet header")
	}

	addr := &packet.Addr{HardwareAddr: net.HardwareAddr(data[:6])}
	n, err := m.conn.WriteTo(data, addr)
	if err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("short write: sent %d of %d bytes", n, len(data))
	}
	return nil
}

// Close closes the socket.
func (m *InterfaceWriter) Close() error {
	return m.conn.Close()
}

// InterfaceMAC returns the hardware address of a link, warning when the
// link is not up.
func InterfaceMAC(name string, log *zap.SugaredLogger) (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to find interface %q: %w", name, err)
	}

	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		log.Warnw("interface is down", "interface", name, "state", attrs.OperState.String())
	}

	return attrs.HardwareAddr, nil
}

// OpenInterface opens a capture handle on the interface that, in promiscuous
// mode, sees every frame on the link.
func OpenInterface(name string, snaplen datasize.ByteSize) (*pcapgo.EthernetHandle, error) {
	handle, err := pcapgo.NewEthernetHandle(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %q: %w", name, err)
	}

	if err := handle.SetCaptureLength(int(snaplen.Bytes())); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set capture length on %q: %w", name, err)
	}
	if err := handle.SetPromiscuous(true); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to enable promiscuous mode on %q: %w", name, err)
	}

	return handle, nil
}
