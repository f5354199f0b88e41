package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zoomcap/zoomcap-p4/common/go/logging"
	"github.com/zoomcap/zoomcap-p4/common/go/xcmd"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "zoomcap-traffic",
	Short: "Send test traffic to and sniff traffic from the zoom capture switch",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.AddCommand(newSendCmd(), newReceiveCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func initLogging() (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level

	log, _, err := logging.Init(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return log, nil
}

// exit reports a fatal error the same way for every subcommand.
func exit(err error) {
	if err == nil || xcmd.IsInterrupted(err) {
		return
	}

	fmt.Printf("ERROR: %v\n", err)
	os.Exit(1)
}
