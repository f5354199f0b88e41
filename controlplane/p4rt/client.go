package p4rt

import (
	"context"
	"errors"
	"fmt"
	"io"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/zoomcap/zoomcap-p4/common/go/xgrpc"
)

// Client is a runtime control-plane client bound to a single device.
//
// The client holds the primary role for its election id while the stream
// channel opened by Connect stays up; Close releases it.
type Client struct {
	conn       *grpc.ClientConn
	rt         p4v1.P4RuntimeClient
	stream     p4v1.P4Runtime_StreamChannelClient
	stop       context.CancelFunc
	deviceID   uint64
	electionID *p4v1.Uint128
	info       *Info
	log        *zap.SugaredLogger
}

// Connect dials the control-plane endpoint and performs arbitration.
func Connect(ctx context.Context, endpoint string, options ...Option) (*Client, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(xgrpc.ClientLogInterceptor(opts.Log)),
		grpc.WithChainStreamInterceptor(xgrpc.StreamClientLogInterceptor(opts.Log)),
	}, opts.DialOptions...)

	conn, err := grpc.NewClient(endpoint, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	c := &Client{
		conn:       conn,
		rt:         p4v1.NewP4RuntimeClient(conn),
		deviceID:   opts.DeviceID,
		electionID: &p4v1.Uint128{High: 0, Low: opts.ElectionID},
		log:        opts.Log,
	}

	if err := c.arbitrate(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// arbitrate opens the stream channel and asks to become the primary client.
func (m *Client) arbitrate(ctx context.Context) error {
	// The stream must outlive ctx: losing it drops the primary role.
	streamCtx, stop := context.WithCancel(context.Background())
	m.stop = stop

	stream, err := m.rt.StreamChannel(streamCtx)
	if err != nil {
		return fmt.Errorf("failed to open stream channel: %w", err)
	}
	m.stream = stream

	req := &p4v1.StreamMessageRequest{
		Update: &p4v1.StreamMessageRequest_Arbitration{
			Arbitration: &p4v1.MasterArbitrationUpdate{
				DeviceId:   m.deviceID,
				ElectionId: m.electionID,
			},
		},
	}
	if err := stream.Send(req); err != nil {
		return fmt.Errorf("failed to send arbitration request: %w", err)
	}

	type recvResult struct {
		msg *p4v1.StreamMessageResponse
		err error
	}
	ch := make(chan recvResult, 1)
	go func() {
		msg, err := stream.Recv()
		ch <- recvResult{msg: msg, err: err}
	}()

	var msg *p4v1.StreamMessageResponse
	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("failed to receive arbitration response: %w", r.err)
		}
		msg = r.msg
	case <-ctx.Done():
		return fmt.Errorf("arbitration: %w", ctx.Err())
	}

	arbitration := msg.GetArbitration()
	if arbitration == nil {
		return fmt.Errorf("unexpected stream message while waiting for arbitration: %T", msg.GetUpdate())
	}
	if code := codes.Code(arbitration.GetStatus().GetCode()); code != codes.OK {
		return fmt.Errorf("client with election id %d is not primary for device %d: %s: %s",
			m.electionID.GetLow(), m.deviceID, code, arbitration.GetStatus().GetMessage())
	}

	m.log.Debugw("became primary client",
		"device_id", m.deviceID,
		"election_id", m.electionID.GetLow(),
	)

	go m.drainStream()
	return nil
}

// drainStream consumes unsolicited stream messages until the stream ends.
func (m *Client) drainStream() {
	for {
		msg, err := m.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.log.Debugw("stream channel closed", zap.Error(err))
			}
			return
		}
		m.log.Debugw("ignoring stream message", "type", fmt.Sprintf("%T", msg.GetUpdate()))
	}
}

// Close releases the primary role and the connection.
func (m *Client) Close() error {
	if m.stream != nil {
		_ = m.stream.CloseSend()
	}
	if m.stop != nil {
		m.stop()
	}
	return m.conn.Close()
}

// DeviceID returns the device the client is bound to.
func (m *Client) DeviceID() uint64 {
	return m.deviceID
}

// SetPipeline pushes a compiled program to the device and commits it.
func (m *Client) SetPipeline(ctx context.Context, p4info *p4config.P4Info, deviceConfig []byte) error {
	req := &p4v1.SetForwardingPipelineConfigRequest{
		DeviceId:   m.deviceID,
		ElectionId: m.electionID,
		Action:     p4v1.SetForwardingPipelineConfigRequest_VERIFY_AND_COMMIT,
		Config: &p4v1.ForwardingPipelineConfig{
			P4Info:         p4info,
			P4DeviceConfig: deviceConfig,
		},
	}

	if _, err := m.rt.SetForwardingPipelineConfig(ctx, req); err != nil {
		return fmt.Errorf("failed to set forwarding pipeline config: %w", err)
	}

	m.log.Infow("pushed forwarding pipeline config",
		"program", p4info.GetPkgInfo().GetName(),
		"device_config_size", len(deviceConfig),
	)
	return nil
}

// BindPipeline fetches the P4Info of the program running on the device and
// checks that it belongs to the named program.
//
// An empty name, or a P4Info without package name, skips the check.
func (m *Client) BindPipeline(ctx context.Context, name string) (*Info, error) {
	req := &p4v1.GetForwardingPipelineConfigRequest{
		DeviceId:     m.deviceID,
		ResponseType: p4v1.GetForwardingPipelineConfigRequest_P4INFO_AND_COOKIE,
	}

	resp, err := m.rt.GetForwardingPipelineConfig(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get forwarding pipeline config: %w", err)
	}

	p4info := resp.GetConfig().GetP4Info()
	if p4info == nil {
		return nil, fmt.Errorf("device %d has no forwarding pipeline config", m.deviceID)
	}

	info := NewInfo(p4info)
	switch {
	case name == "":
	case info.Name() == "":
		m.log.Warnw("P4Info carries no program name, binding anyway", "program", name)
	case info.Name() != name:
		return nil, fmt.Errorf("device %d runs program %q, not %q", m.deviceID, info.Name(), name)
	}

	m.info = info
	m.log.Infow("bound pipeline",
		"program", name,
		"tables", len(p4info.GetTables()),
		"actions", len(p4info.GetActions()),
	)

	return info, nil
}

// Info returns the bound pipeline, or nil before BindPipeline.
func (m *Client) Info() *Info {
	return m.info
}

// Table looks up a table of the bound pipeline.
//
// Returns an error wrapping ErrTableNotFound if the program has no such
// table.
func (m *Client) Table(name string) (*Table, error) {
	if m.info == nil {
		return nil, ErrNotBound
	}

	table, err := m.info.FindTable(name)
	if err != nil {
		return nil, err
	}

	return &Table{
		name:   name,
		table:  table,
		client: m,
	}, nil
}

func (m *Client) write(ctx context.Context, updates []*p4v1.Update) error {
	req := &p4v1.WriteRequest{
		DeviceId:   m.deviceID,
		ElectionId: m.electionID,
		Updates:    updates,
		Atomicity:  p4v1.WriteRequest_ROLLBACK_ON_ERROR,
	}

	if _, err := m.rt.Write(ctx, req); err != nil {
		return writeError(err)
	}
	return nil
}

func (m *Client) read(ctx context.Context, entities ...*p4v1.Entity) ([]*p4v1.Entity, error) {
	req := &p4v1.ReadRequest{
		DeviceId: m.deviceID,
		Entities: entities,
	}

	stream, err := m.rt.Read(ctx, req)
	if err != nil {
		return nil, err
	}

	var out []*p4v1.Entity
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, resp.GetEntities()...)
	}
}
