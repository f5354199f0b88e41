package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/zoomcap/zoomcap-p4/common/go/logging"
	"github.com/zoomcap/zoomcap-p4/common/go/xcmd"
	"github.com/zoomcap/zoomcap-p4/controlplane/ontas"
)

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the optional configuration file.
	ConfigPath string
	// Program is the P4 main program path.
	Program string
	// Endpoint is the runtime gRPC address.
	Endpoint string
	// Prefixes is the list of IP prefixes to anonymize.
	Prefixes string
	// P4InfoPath and DeviceConfigPath, when set, are pushed before binding.
	P4InfoPath       string
	DeviceConfigPath string
	// LogLevel overrides the configured logging level.
	LogLevel string
	// EgressPort is the port zoom packets are sent to.
	EgressPort uint64
}

func newRootCmd() (*cobra.Command, *Cmd) {
	cmd := &Cmd{}

	rootCmd := &cobra.Command{
		Use:     "zoomcap-ontas [flags] EGRESS_PORT",
		Short:   "Program egress forwarding and ONTAS anonymization tables of the zoom capture pipeline",
		Example: `  zoomcap-ontas -p src/zoom_capture_anony.p4 4 -i "['140.180.0.0/16','128.112.0.0/24']"`,
		Version: ontas.Version(),
		Args:    cobra.ExactArgs(1),
		Run: func(rawCmd *cobra.Command, args []string) {
			port, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				fmt.Printf("ERROR: invalid egress port %q: %v\n", args[0], err)
				os.Exit(1)
			}
			cmd.EgressPort = port

			if err := run(rawCmd, cmd); err != nil {
				fmt.Println(exitMessage(err))
				os.Exit(1)
			}
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	flags.StringVarP(&cmd.Program, "p4", "p", "src/zoom_capture_anony.p4", "P4 main program path")
	flags.StringVarP(&cmd.Endpoint, "grpc", "g", "localhost:50052", "gRPC address")
	flags.StringVarP(&cmd.Prefixes, "ip", "i", "", "IP prefixes in list format (e.g., ['1.2.3.4/16', '2.3.4.5/24']) (required)")
	flags.StringVar(&cmd.P4InfoPath, "p4info", "", "P4Info file to push before binding")
	flags.StringVar(&cmd.DeviceConfigPath, "device-config", "", "Device config binary to push together with --p4info")
	flags.StringVar(&cmd.LogLevel, "log-level", "", "Logging level (debug, info, warn, error)")
	rootCmd.MarkFlagRequired("ip")

	return rootCmd, cmd
}

func main() {
	rootCmd, _ := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

// exitMessage formats the error a run ends with. An interrupt may leave the
// tables half programmed, so it is reported like any other failure.
func exitMessage(err error) string {
	if xcmd.IsInterrupted(err) {
		return "ERROR: interrupted"
	}
	return fmt.Sprintf("ERROR: %v", err)
}

// loadConfig merges the configuration file, if any, with explicitly set
// flags. Flags win.
func loadConfig(rawCmd *cobra.Command, cmd *Cmd) (*ontas.Config, error) {
	cfg := ontas.DefaultConfig()
	if cmd.ConfigPath != "" {
		var err error
		if cfg, err = ontas.LoadConfig(cmd.ConfigPath); err != nil {
			return nil, err
		}
	}

	flags := rawCmd.Flags()
	if cmd.ConfigPath == "" || flags.Changed("p4") {
		cfg.Program = cmd.Program
	}
	if cmd.ConfigPath == "" || flags.Changed("grpc") {
		cfg.Endpoint = cmd.Endpoint
	}
	if flags.Changed("p4info") {
		cfg.P4InfoPath = cmd.P4InfoPath
	}
	if flags.Changed("device-config") {
		cfg.DeviceConfigPath = cmd.DeviceConfigPath
	}
	if cmd.LogLevel != "" {
		level, err := zapcore.ParseLevel(cmd.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(rawCmd *cobra.Command, cmd *Cmd) error {
	cfg, err := loadConfig(rawCmd, cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	prefixes, err := ontas.ParsePrefixList(cmd.Prefixes)
	if err != nil {
		return err
	}

	fmt.Printf("p4_path: %s\n", cfg.Program)
	fmt.Printf("p4_name: %s\n", cfg.ProgramName())
	fmt.Printf("grpc: %s\n", cfg.Endpoint)
	fmt.Printf("egress_port: %d\n", cmd.EgressPort)
	fmt.Printf("anony ip prefixes: %s\n", cmd.Prefixes)

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	provisioner := ontas.NewProvisioner(cfg, ontas.WithLog(log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		defer cancel()
		return provisioner.Run(ctx, cmd.EgressPort, prefixes)
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		if xcmd.IsInterrupted(err) {
			log.Infof("caught signal: %v", err)
			return err
		}
		return nil
	})

	return wg.Wait()
}
