package traffic

import (
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/zoomcap/zoomcap-p4/common/go/xpacket"
)

// PacketWriter puts raw frames on a link or into a capture file.
type PacketWriter interface {
	WritePacketData(data []byte) error
}

type generatorOptions struct {
	Log    *zap.SugaredLogger
	Output io.Writer
	SrcMAC net.HardwareAddr
	DstMAC net.HardwareAddr
}

func newGeneratorOptions() *generatorOptions {
	return &generatorOptions{
		Log:    zap.NewNop().Sugar(),
		Output: io.Discard,
		DstMAC: xpacket.BroadcastMAC,
	}
}

// GeneratorOption is a function that configures the Generator.
type GeneratorOption func(*generatorOptions)

// WithLog sets the logger for the Generator.
func WithLog(log *zap.SugaredLogger) GeneratorOption {
	return func(o *generatorOptions) {
		o.Log = log
	}
}

// WithOutput sets where a line per sent frame is printed.
func WithOutput(w io.Writer) GeneratorOption {
	return func(o *generatorOptions) {
		o.Output = w
	}
}

// WithSrcMAC sets the source MAC of generated frames, usually the MAC of
// the sending interface.
func WithSrcMAC(mac net.HardwareAddr) GeneratorOption {
	return func(o *generatorOptions) {
		o.SrcMAC = mac
	}
}

// WithDstMAC sets the destination MAC of generated frames, broadcast by
// default.
func WithDstMAC(mac net.HardwareAddr) GeneratorOption {
	return func(o *generatorOptions) {
		if len(mac) != 0 {
			o.DstMAC = mac
		}
	}
}

// Generator sends the frames of a category, one at a time, in catalog
// order.
type Generator struct {
	w      PacketWriter
	out    io.Writer
	srcMAC net.HardwareAddr
	dstMAC net.HardwareAddr
	log    *zap.SugaredLogger
}

// NewGenerator creates a Generator writing frames to w.
func NewGenerator(w PacketWriter, options ...GeneratorOption) *Generator {
	opts := newGeneratorOptions()
	for _, o := range options {
		o(opts)
	}

	return &Generator{
		w:      w,
		out:    opts.Output,
		srcMAC: opts.SrcMAC,
		dstMAC: opts.DstMAC,
		log:    opts.Log,
	}
}

// Send writes every frame of the category and returns how many were sent.
//
// An unknown category sends nothing.
func (m *Generator) Send(category Category) (int, error) {
	flows, err := Flows(category)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, flow := range flows {
		data, err := flow.Frame(m.srcMAC, m.dstMAC)
		if err != nil {
			return sent, fmt.Errorf("failed to build %s frame: %w", flow, err)
		}

		if err := m.w.WritePacketData(data); err != nil {
			return sent, fmt.Errorf("failed to send %s frame: %w", flow, err)
		}
		sent++

		m.log.Debugw("sent frame", "category", category, "flow", flow.String(), "size", len(data))
		fmt.Fprintf(m.out, "Sent %s\n", xpacket.Summary(xpacket.ParseEtherPacket(data)))
	}

	m.log.Infow("sent frames", "category", category, "count", sent)
	return sent, nil
}
