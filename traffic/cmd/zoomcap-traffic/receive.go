package main

import (
	"context"
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoomcap/zoomcap-p4/common/go/xcmd"
	"github.com/zoomcap/zoomcap-p4/traffic"
)

type receiveCmd struct {
	Interface string
	ReadPath  string
	WritePath string
	SnapLen   string
}

func newReceiveCmd() *cobra.Command {
	cmd := &receiveCmd{}

	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive packets on a network interface and print their summaries",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			exit(runReceive(cmd))
		},
	}

	flags := receiveCmd.Flags()
	flags.StringVarP(&cmd.Interface, "interface", "i", "veth3", "Interface on which packets are received")
	flags.StringVar(&cmd.ReadPath, "read", "", "Read packets from this pcap file instead of the interface")
	flags.StringVar(&cmd.WritePath, "write", "", "Also record received packets to this pcap file")
	flags.StringVar(&cmd.SnapLen, "snaplen", traffic.DefaultSnapLen.String(), "Maximum number of bytes captured per packet, e.g. 1500B or 64KB")

	return receiveCmd
}

func runReceive(cmd *receiveCmd) error {
	var snaplen datasize.ByteSize
	if err := snaplen.UnmarshalText([]byte(cmd.SnapLen)); err != nil {
		return fmt.Errorf("invalid snap length %q: %w", cmd.SnapLen, err)
	}

	log, err := initLogging()
	if err != nil {
		return err
	}
	defer log.Sync()

	var (
		src     gopacket.PacketDataSource
		decoder gopacket.Decoder = layers.LinkTypeEthernet
	)
	if cmd.ReadPath != "" {
		f, err := os.Open(cmd.ReadPath)
		if err != nil {
			return fmt.Errorf("failed to open pcap file: %w", err)
		}
		defer f.Close()

		reader, linkType, err := traffic.OpenPcapReader(f)
		if err != nil {
			return err
		}
		src, decoder = reader, linkType
	} else {
		handle, err := traffic.OpenInterface(cmd.Interface, snaplen)
		if err != nil {
			return err
		}
		defer handle.Close()
		src = handle
	}

	options := []traffic.SnifferOption{
		traffic.WithSnifferLog(log),
		traffic.WithSummaryOutput(os.Stdout),
	}
	if cmd.WritePath != "" {
		f, err := os.Create(cmd.WritePath)
		if err != nil {
			return fmt.Errorf("failed to create pcap file: %w", err)
		}
		defer f.Close()

		record, err := traffic.NewPcapWriter(f, snaplen)
		if err != nil {
			return err
		}
		options = append(options, traffic.WithRecord(record))
	}

	sniffer := traffic.NewSniffer(options...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		defer cancel()
		return sniffer.Run(ctx, src, decoder)
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		if xcmd.IsInterrupted(err) {
			log.Infof("caught signal: %v", err)
			return err
		}
		return nil
	})

	err = wg.Wait()
	log.Infow("sniffer stopped", "count", sniffer.Count())
	return err
}
