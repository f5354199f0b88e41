package traffic

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gopacket/gopacket"
	"go.uber.org/zap"

	"github.com/zoomcap/zoomcap-p4/common/go/xpacket"
)

type snifferOptions struct {
	Log    *zap.SugaredLogger
	Output io.Writer
	Record *PcapWriter
}

func newSnifferOptions() *snifferOptions {
	return &snifferOptions{
		Log:    zap.NewNop().Sugar(),
		Output: os.Stdout,
	}
}

// SnifferOption is a function that configures the Sniffer.
type SnifferOption func(*snifferOptions)

// WithSnifferLog sets the logger for the Sniffer.
func WithSnifferLog(log *zap.SugaredLogger) SnifferOption {
	return func(o *snifferOptions) {
		o.Log = log
	}
}

// WithSummaryOutput sets where frame summaries are printed, stdout by
// default.
func WithSummaryOutput(w io.Writer) SnifferOption {
	return func(o *snifferOptions) {
		o.Output = w
	}
}

// WithRecord additionally records every frame.
func WithRecord(w *PcapWriter) SnifferOption {
	return func(o *snifferOptions) {
		o.Record = w
	}
}

// Sniffer prints a one-line summary of every received frame.
type Sniffer struct {
	out    io.Writer
	record *PcapWriter
	count  int
	log    *zap.SugaredLogger
}

// NewSniffer creates a new Sniffer.
func NewSniffer(options ...SnifferOption) *Sniffer {
	opts := newSnifferOptions()
	for _, o := range options {
		o(opts)
	}

	return &Sniffer{
		out:    opts.Output,
		record: opts.Record,
		log:    opts.Log,
	}
}

// Run reads frames from src until it is exhausted or ctx is canceled.
//
// A live source is never exhausted, so Run only returns on cancellation.
func (m *Sniffer) Run(ctx context.Context, src gopacket.PacketDataSource, decoder gopacket.Decoder) error {
	packets := gopacket.NewPacketSource(src, decoder).Packets()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-packets:
			if !ok {
				m.log.Infow("packet source exhausted", "count", m.count)
				return nil
			}
			if err := m.handle(pkt); err != nil {
				return err
			}
		}
	}
}

func (m *Sniffer) handle(pkt gopacket.Packet) error {
	m.count++
	fmt.Fprintln(m.out, xpacket.Summary(pkt))

	if m.record == nil {
		return nil
	}
	return m.record.WritePacket(pkt.Metadata().CaptureInfo, pkt.Data())
}

// Count returns the number of frames seen so far.
func (m *Sniffer) Count() int {
	return m.count
}
