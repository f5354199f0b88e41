package ontas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/zoomcap/zoomcap-p4/controlplane/p4rt"
)

type options struct {
	Log         *zap.SugaredLogger
	Output      io.Writer
	DialOptions []grpc.DialOption
}

func newOptions() *options {
	return &options{
		Log:    zap.NewNop().Sugar(),
		Output: os.Stdout,
	}
}

// ProvisionerOption is a function that configures the Provisioner.
type ProvisionerOption func(*options)

// WithLog sets the logger for the Provisioner.
func WithLog(log *zap.SugaredLogger) ProvisionerOption {
	return func(o *options) {
		o.Log = log
	}
}

// WithOutput sets where table dumps are printed, stdout by default.
func WithOutput(w io.Writer) ProvisionerOption {
	return func(o *options) {
		o.Output = w
	}
}

// WithDialOptions passes extra gRPC dial options to the runtime client.
func WithDialOptions(opts ...grpc.DialOption) ProvisionerOption {
	return func(o *options) {
		o.DialOptions = append(o.DialOptions, opts...)
	}
}

// Provisioner programs the forwarding and anonymization tables of the zoom
// capture pipeline.
//
// Every run flushes the tables it owns before writing, so running it again
// with the same arguments leaves the device in the same state.
type Provisioner struct {
	cfg         *Config
	out         io.Writer
	dialOptions []grpc.DialOption
	log         *zap.SugaredLogger
}

// NewProvisioner creates a new Provisioner using specified config.
func NewProvisioner(cfg *Config, options ...ProvisionerOption) *Provisioner {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Provisioner{
		cfg:         cfg,
		out:         opts.Output,
		dialOptions: opts.DialOptions,
		log:         opts.Log,
	}
}

// Run connects to the configured switch, binds the pipeline and provisions
// it.
func (m *Provisioner) Run(ctx context.Context, egressPort uint64, prefixes []string) error {
	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return m.Provision(ctx, client, egressPort, prefixes)
}

func (m *Provisioner) connect(ctx context.Context) (*p4rt.Client, error) {
	connectCtx := ctx
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	client, err := p4rt.Connect(connectCtx, m.cfg.Endpoint,
		p4rt.WithLog(m.log),
		p4rt.WithDeviceID(m.cfg.DeviceID),
		p4rt.WithElectionID(m.cfg.ClientID),
		p4rt.WithDialOptions(m.dialOptions...),
	)
	if err != nil {
		return nil, err
	}

	if err := m.bind(connectCtx, client); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

func (m *Provisioner) bind(ctx context.Context, client *p4rt.Client) error {
	if m.cfg.P4InfoPath != "" {
		p4info, err := p4rt.LoadP4Info(m.cfg.P4InfoPath)
		if err != nil {
			return err
		}

		var deviceConfig []byte
		if m.cfg.DeviceConfigPath != "" {
			deviceConfig, err = os.ReadFile(m.cfg.DeviceConfigPath)
			if err != nil {
				return fmt.Errorf("failed to read device config: %w", err)
			}
		}

		if err := client.SetPipeline(ctx, p4info, deviceConfig); err != nil {
			return err
		}
	}

	if _, err := client.BindPipeline(ctx, m.cfg.ProgramName()); err != nil {
		return err
	}
	return nil
}

// Provision programs the tables through an already bound client.
//
// Failures to program the send_pkt and IP tables are fatal. Anonymization
// tables are optional: absent ones are skipped and any other failure only
// produces a warning.
func (m *Provisioner) Provision(ctx context.Context, client *p4rt.Client, egressPort uint64, prefixes []string) error {
	target := p4rt.Target{
		DeviceID: client.DeviceID(),
		PipeID:   p4rt.PipeAll,
	}

	table, err := client.Table(SendPktTable)
	if err != nil {
		return err
	}
	err = m.program(ctx, table, target,
		[]p4rt.KeyField{p4rt.Exact(SendPktKey, 1)},
		SendPktAction,
		[]p4rt.DataField{p4rt.Param(SendPktPortParam, egressPort)},
	)
	if err != nil {
		return err
	}

	if err := m.provisionAnonTables(ctx, client, target); err != nil {
		m.log.Warnw("either cannot find anonymization tables or failed to add entries to them",
			zap.Error(err),
		)
	}

	return m.provisionIPTables(ctx, client, target, prefixes)
}

// program replaces the contents of a table with a single entry and prints
// the result.
func (m *Provisioner) program(
	ctx context.Context,
	table *p4rt.Table,
	target p4rt.Target,
	keys []p4rt.KeyField,
	action string,
	data []p4rt.DataField,
) error {
	n, err := table.Flush(ctx, target)
	if err != nil {
		return err
	}
	if err := table.Add(ctx, target, keys, action, data); err != nil {
		return err
	}

	m.log.Infow("programmed table",
		"table", table.Name(),
		"flushed", n,
		"keys", keys,
		"action", action,
		"data", data,
	)

	return table.Print(ctx, m.out, target)
}

func (m *Provisioner) provisionAnonTables(ctx context.Context, client *p4rt.Client, target p4rt.Target) error {
	for idx, anon := range AnonTables {
		table, err := client.Table(anon.Table)
		if errors.Is(err, p4rt.ErrTableNotFound) {
			m.log.Infow("anonymization table is not present in the program, skipping", "table", anon.Table)
			continue
		}
		if err == nil {
			err = m.program(ctx, table, target,
				[]p4rt.KeyField{p4rt.Exact(AnonKey, 1)},
				anon.Action,
				nil,
			)
		}
		if err != nil {
			return errors.Join(
				fmt.Errorf("table %q: %w", anon.Table, err),
				skippedError(AnonTables[idx+1:]),
			)
		}
	}

	return nil
}

func skippedError(tables []AnonTable) error {
	if len(tables) == 0 {
		return nil
	}

	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Table)
	}
	return fmt.Errorf("not programmed: %s", strings.Join(names, ", "))
}

// ipTable is one of the prefix hash tables.
type ipTable struct {
	name   string
	key    string
	action string
	table  *p4rt.Table
}

func (m *Provisioner) provisionIPTables(
	ctx context.Context,
	client *p4rt.Client,
	target p4rt.Target,
	prefixes []string,
) error {
	tables := []*ipTable{
		{name: SrcIPTable, key: SrcIPKey, action: SrcIPAction},
		{name: DstIPTable, key: DstIPKey, action: DstIPAction},
	}

	for _, t := range tables {
		table, err := client.Table(t.name)
		switch {
		case errors.Is(err, p4rt.ErrTableNotFound):
			m.log.Warnw("IP hash table is not present in the program, skipping", "table", t.name)
			continue
		case err != nil:
			return err
		}

		if _, err := table.Flush(ctx, target); err != nil {
			return err
		}
		t.table = table
	}

	for _, p := range prefixes {
		spec, err := ParsePrefix(p)
		if err != nil {
			m.log.Warnw("skipping IP prefix", "prefix", p, zap.Error(err))
			continue
		}

		first, last := spec.Range()
		for _, t := range tables {
			if t.table == nil {
				continue
			}

			err := t.table.Add(ctx, target,
				[]p4rt.KeyField{p4rt.Ternary(t.key, uint64(spec.Key()), uint64(spec.Mask1))},
				t.action,
				[]p4rt.DataField{
					p4rt.Param(Mask1Param, uint64(spec.Mask1)),
					p4rt.Param(Mask2Param, uint64(spec.Mask2)),
				},
			)
			if err != nil {
				return err
			}
		}

		m.log.Infow("added IP prefix",
			"prefix", spec.Prefix,
			"range", fmt.Sprintf("%s-%s", first, last),
			"mask1", fmt.Sprintf("%#010x", spec.Mask1),
			"mask2", fmt.Sprintf("%#010x", spec.Mask2),
		)
	}

	for _, t := range tables {
		if t.table == nil {
			continue
		}
		if err := t.table.Print(ctx, m.out, target); err != nil {
			return err
		}
	}

	return nil
}
