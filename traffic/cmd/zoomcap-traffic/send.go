package main

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoomcap/zoomcap-p4/traffic"
)

type sendCmd struct {
	Interface string
	Type      string
	SrcMAC    string
	DstMAC    string
	WritePath string
}

func newSendCmd() *cobra.Command {
	cmd := &sendCmd{}

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send packets to a network interface; designed to test the zoom capture program",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			exit(runSend(cmd))
		},
	}

	flags := sendCmd.Flags()
	flags.StringVarP(&cmd.Interface, "interface", "i", "veth1", "Interface on which packets are sent")
	flags.StringVarP(&cmd.Type, "type", "t", "", "Type of packet. Options: server, stun, p2p, other, all (required)")
	flags.StringVar(&cmd.SrcMAC, "src-mac", "", "Source MAC address [default: interface address]")
	flags.StringVar(&cmd.DstMAC, "dst-mac", "", "Destination MAC address [default: broadcast]")
	flags.StringVar(&cmd.WritePath, "write", "", "Write packets to this pcap file instead of sending them")
	sendCmd.MarkFlagRequired("type")

	return sendCmd
}

func runSend(cmd *sendCmd) error {
	category, err := traffic.ParseCategory(cmd.Type)
	if errors.Is(err, traffic.ErrUnknownCategory) {
		fmt.Println("INVALID ARGUMENT: Packet type not recognized.")
		return nil
	}

	log, err := initLogging()
	if err != nil {
		return err
	}
	defer log.Sync()

	options := []traffic.GeneratorOption{
		traffic.WithLog(log),
		traffic.WithOutput(os.Stdout),
	}

	if cmd.DstMAC != "" {
		mac, err := net.ParseMAC(cmd.DstMAC)
		if err != nil {
			return fmt.Errorf("invalid destination MAC: %w", err)
		}
		options = append(options, traffic.WithDstMAC(mac))
	}

	var w traffic.PacketWriter
	if cmd.WritePath != "" {
		f, err := os.Create(cmd.WritePath)
		if err != nil {
			return fmt.Errorf("failed to create pcap file: %w", err)
		}
		defer f.Close()

		if w, err = traffic.NewPcapWriter(f, traffic.DefaultSnapLen); err != nil {
			return err
		}
	} else {
		sender, err := traffic.OpenSender(cmd.Interface)
		if err != nil {
			return err
		}
		defer sender.Close()
		w = sender
	}

	srcMAC, err := sourceMAC(cmd, log)
	if err != nil {
		return err
	}
	options = append(options, traffic.WithSrcMAC(srcMAC))

	_, err = traffic.NewGenerator(w, options...).Send(category)
	return err
}

// sourceMAC returns the MAC given on the command line or, when sending to an
// interface, the interface address.
func sourceMAC(cmd *sendCmd, log *zap.SugaredLogger) (net.HardwareAddr, error) {
	if cmd.SrcMAC != "" {
		mac, err := net.ParseMAC(cmd.SrcMAC)
		if err != nil {
			return nil, fmt.Errorf("invalid source MAC: %w", err)
		}
		return mac, nil
	}
	if cmd.WritePath != "" {
		return nil, nil
	}
	return traffic.InterfaceMAC(cmd.Interface, log)
}
