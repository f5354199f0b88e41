package mock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"go.uber.org/zap"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

// Switch is an in-memory runtime control-plane target.
//
// It keeps table entries for a single device and enforces the parts of the
// runtime contract provisioning depends on: arbitration, election id checks
// on writes, insert/delete key semantics and all-or-nothing batches.
type Switch struct {
	p4v1.UnimplementedP4RuntimeServer

	mu           sync.Mutex
	deviceID     uint64
	p4info       *p4config.P4Info
	deviceConfig []byte
	primary      *p4v1.Uint128
	// owner is the stream holding the primary role, nil when the role is
	// preset or free.
	owner p4v1.P4Runtime_StreamChannelServer
	// tables maps table id to entries keyed by their canonical match key.
	tables   map[uint32]map[string]*p4v1.TableEntry
	failures map[uint32]codes.Code
	writes   int
	log      *zap.SugaredLogger
}

// NewSwitch creates a mock switch running the given program.
//
// A nil P4Info leaves the switch without a pipeline until
// SetForwardingPipelineConfig is called.
func NewSwitch(cfg SwitchConfig, p4info *p4config.P4Info, options ...Option) *Switch {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &Switch{
		deviceID: cfg.DeviceID,
		p4info:   p4info,
		primary:  cfg.PrimaryElectionID,
		tables:   map[uint32]map[string]*p4v1.TableEntry{},
		failures: map[uint32]codes.Code{},
		log:      opts.Log,
	}
}

// InjectFailure makes every write touching the named table fail with code.
func (m *Switch) InjectFailure(table string, code codes.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.tableID(table)
	if !ok {
		return fmt.Errorf("no table %q", table)
	}
	m.failures[id] = code
	return nil
}

// Entries returns a snapshot of the named table's entries ordered by key.
func (m *Switch) Entries(table string) []*p4v1.TableEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.tableID(table)
	if !ok {
		return nil
	}
	return m.snapshot(id)
}

// WriteCount returns the number of accepted Write requests.
func (m *Switch) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writes
}

// Populate inserts entries directly, bypassing arbitration.
func (m *Switch) Populate(entries ...*p4v1.TableEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, te := range entries {
		if err := m.apply(m.tables, p4v1.Update_INSERT, te); err != nil {
			return err
		}
	}
	return nil
}

func (m *Switch) tableID(name string) (uint32, bool) {
	for _, table := range m.p4info.GetTables() {
		p := table.GetPreamble()
		if p.GetName() == name || p.GetAlias() == name {
			return p.GetId(), true
		}
	}
	return 0, false
}

func (m *Switch) findTable(id uint32) *p4config.Table {
	for _, table := range m.p4info.GetTables() {
		if table.GetPreamble().GetId() == id {
			return table
		}
	}
	return nil
}

func (m *Switch) snapshot(id uint32) []*p4v1.TableEntry {
	keys := make([]string, 0, len(m.tables[id]))
	for key := range m.tables[id] {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]*p4v1.TableEntry, 0, len(keys))
	for _, key := range keys {
		out = append(out, proto.Clone(m.tables[id][key]).(*p4v1.TableEntry))
	}
	return out
}

func (m *Switch) checkDevice(id uint64) error {
	if id != m.deviceID {
		return status.Errorf(codes.NotFound, "unknown device %d", id)
	}
	return nil
}

// StreamChannel implements arbitration: the highest election id wins.
func (m *Switch) StreamChannel(stream p4v1.P4Runtime_StreamChannelServer) error {
	defer func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.owner == stream {
			m.primary = nil
			m.owner = nil
		}
	}()

	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		arbitration := req.GetArbitration()
		if arbitration == nil {
			m.log.Debugw("ignoring stream message", "type", fmt.Sprintf("%T", req.GetUpdate()))
			continue
		}
		if err := m.checkDevice(arbitration.GetDeviceId()); err != nil {
			return err
		}

		resp := m.arbitrate(stream, arbitration)
		if err := stream.Send(resp); err != nil {
			return err
		}
	}
}

func (m *Switch) arbitrate(
	stream p4v1.P4Runtime_StreamChannelServer,
	req *p4v1.MasterArbitrationUpdate,
) *p4v1.StreamMessageResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	electionID := req.GetElectionId()
	code := codes.OK
	if m.primary != nil && compareUint128(electionID, m.primary) < 0 {
		code = codes.AlreadyExists
	} else {
		m.primary = electionID
		m.owner = stream
	}

	m.log.Debugw("arbitration",
		"device_id", req.GetDeviceId(),
		"election_id", electionID.GetLow(),
		"code", code.String(),
	)

	return &p4v1.StreamMessageResponse{
		Update: &p4v1.StreamMessageResponse_Arbitration{
			Arbitration: &p4v1.MasterArbitrationUpdate{
				DeviceId:   req.GetDeviceId(),
				ElectionId: m.primary,
				Status:     &rpcstatus.Status{Code: int32(code)},
			},
		},
	}
}

// SetForwardingPipelineConfig installs a new program and drops all entries.
func (m *Switch) SetForwardingPipelineConfig(
	ctx context.Context,
	req *p4v1.SetForwardingPipelineConfigRequest,
) (*p4v1.SetForwardingPipelineConfigResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkDevice(req.GetDeviceId()); err != nil {
		return nil, err
	}
	if !proto.Equal(req.GetElectionId(), m.primary) {
		return nil, status.Error(codes.PermissionDenied, "not primary")
	}
	if req.GetConfig().GetP4Info() == nil {
		return nil, status.Error(codes.InvalidArgument, "missing P4Info")
	}

	switch req.GetAction() {
	case p4v1.SetForwardingPipelineConfigRequest_VERIFY:
		return &p4v1.SetForwardingPipelineConfigResponse{}, nil
	case p4v1.SetForwardingPipelineConfigRequest_VERIFY_AND_COMMIT,
		p4v1.SetForwardingPipelineConfigRequest_VERIFY_AND_SAVE:
	default:
		return nil, status.Errorf(codes.Unimplemented, "action %s is not supported", req.GetAction())
	}

	m.p4info = req.GetConfig().GetP4Info()
	m.deviceConfig = req.GetConfig().GetP4DeviceConfig()
	m.tables = map[uint32]map[string]*p4v1.TableEntry{}
	m.failures = map[uint32]codes.Code{}

	return &p4v1.SetForwardingPipelineConfigResponse{}, nil
}

// GetForwardingPipelineConfig returns the installed program.
func (m *Switch) GetForwardingPipelineConfig(
	ctx context.Context,
	req *p4v1.GetForwardingPipelineConfigRequest,
) (*p4v1.GetForwardingPipelineConfigResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkDevice(req.GetDeviceId()); err != nil {
		return nil, err
	}
	if m.p4info == nil {
		return nil, status.Error(codes.FailedPrecondition, "no forwarding pipeline config")
	}

	cfg := &p4v1.ForwardingPipelineConfig{}
	switch req.GetResponseType() {
	case p4v1.GetForwardingPipelineConfigRequest_ALL:
		cfg.P4Info = m.p4info
		cfg.P4DeviceConfig = m.deviceConfig
	case p4v1.GetForwardingPipelineConfigRequest_P4INFO_AND_COOKIE:
		cfg.P4Info = m.p4info
	case p4v1.GetForwardingPipelineConfigRequest_DEVICE_CONFIG_AND_COOKIE:
		cfg.P4DeviceConfig = m.deviceConfig
	}

	return &p4v1.GetForwardingPipelineConfigResponse{Config: cfg}, nil
}

// Write applies a batch with rollback-on-error semantics.
func (m *Switch) Write(ctx context.Context, req *p4v1.WriteRequest) (*p4v1.WriteResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkDevice(req.GetDeviceId()); err != nil {
		return nil, err
	}
	if m.primary == nil || !proto.Equal(req.GetElectionId(), m.primary) {
		return nil, status.Error(codes.PermissionDenied, "not primary")
	}
	if req.GetAtomicity() == p4v1.WriteRequest_DATAPLANE_ATOMIC {
		return nil, status.Error(codes.Unimplemented, "dataplane atomic writes are not supported")
	}

	staged := m.cloneTables()
	results := make([]error, len(req.GetUpdates()))
	failed := false
	for idx, update := range req.GetUpdates() {
		te := update.GetEntity().GetTableEntry()
		if te == nil {
			results[idx] = status.Error(codes.Unimplemented, "only table entries are supported")
		} else if code, ok := m.failures[te.GetTableId()]; ok {
			results[idx] = status.Error(code, "injected failure")
		} else {
			results[idx] = m.apply(staged, update.GetType(), te)
		}
		failed = failed || results[idx] != nil
	}

	if failed {
		return nil, batchError(results)
	}

	m.tables = staged
	m.writes++
	return &p4v1.WriteResponse{}, nil
}

// Read returns table entries; table id 0 selects every table.
func (m *Switch) Read(req *p4v1.ReadRequest, stream p4v1.P4Runtime_ReadServer) error {
	m.mu.Lock()
	if err := m.checkDevice(req.GetDeviceId()); err != nil {
		m.mu.Unlock()
		return err
	}

	resp := &p4v1.ReadResponse{}
	for _, entity := range req.GetEntities() {
		te := entity.GetTableEntry()
		if te == nil {
			m.mu.Unlock()
			return status.Error(codes.Unimplemented, "only table entries can be read")
		}

		ids := []uint32{te.GetTableId()}
		if te.GetTableId() == 0 {
			ids = ids[:0]
			for _, table := range m.p4info.GetTables() {
				ids = append(ids, table.GetPreamble().GetId())
			}
		} else if m.findTable(te.GetTableId()) == nil {
			m.mu.Unlock()
			return status.Errorf(codes.NotFound, "unknown table id %d", te.GetTableId())
		}

		for _, id := range ids {
			for _, entry := range m.snapshot(id) {
				resp.Entities = append(resp.Entities, &p4v1.Entity{
					Entity: &p4v1.Entity_TableEntry{TableEntry: entry},
				})
			}
		}
	}
	m.mu.Unlock()

	return stream.Send(resp)
}

func (m *Switch) cloneTables() map[uint32]map[string]*p4v1.TableEntry {
	out := make(map[uint32]map[string]*p4v1.TableEntry, len(m.tables))
	for id, entries := range m.tables {
		copied := make(map[string]*p4v1.TableEntry, len(entries))
		for key, te := range entries {
			copied[key] = te
		}
		out[id] = copied
	}
	return out
}

func (m *Switch) apply(tables map[uint32]map[string]*p4v1.TableEntry, typ p4v1.Update_Type, te *p4v1.TableEntry) error {
	table := m.findTable(te.GetTableId())
	if table == nil {
		return status.Errorf(codes.NotFound, "unknown table id %d", te.GetTableId())
	}

	key, err := m.entryKey(table, te)
	if err != nil {
		return err
	}

	entries := tables[te.GetTableId()]
	if entries == nil {
		entries = map[string]*p4v1.TableEntry{}
		tables[te.GetTableId()] = entries
	}

	_, exists := entries[key]
	switch typ {
	case p4v1.Update_INSERT:
		if exists {
			return status.Error(codes.AlreadyExists, "entry already exists")
		}
		if size := table.GetSize(); size > 0 && int64(len(entries)) >= size {
			return status.Error(codes.ResourceExhausted, "table is full")
		}
		entries[key] = proto.Clone(te).(*p4v1.TableEntry)
	case p4v1.Update_MODIFY:
		if !exists {
			return status.Error(codes.NotFound, "entry does not exist")
		}
		entries[key] = proto.Clone(te).(*p4v1.TableEntry)
	case p4v1.Update_DELETE:
		if !exists {
			return status.Error(codes.NotFound, "entry does not exist")
		}
		delete(entries, key)
	default:
		return status.Errorf(codes.InvalidArgument, "unsupported update type %s", typ)
	}

	return nil
}

// entryKey validates the match of an entry and returns its canonical form.
func (m *Switch) entryKey(table *p4config.Table, te *p4v1.TableEntry) (string, error) {
	match := slices.Clone(te.GetMatch())
	slices.SortFunc(match, func(a, b *p4v1.FieldMatch) int {
		return int(a.GetFieldId()) - int(b.GetFieldId())
	})

	needsPriority := false
	for _, field := range table.GetMatchFields() {
		switch field.GetMatchType() {
		case p4config.MatchField_TERNARY, p4config.MatchField_RANGE, p4config.MatchField_OPTIONAL:
			needsPriority = true
		}
	}
	if needsPriority && te.GetPriority() <= 0 {
		return "", status.Error(codes.InvalidArgument, "entries of this table require a priority")
	}
	if !needsPriority && te.GetPriority() != 0 {
		return "", status.Error(codes.InvalidArgument, "entries of this table cannot have a priority")
	}

	for _, fm := range match {
		if ternary := fm.GetTernary(); ternary != nil {
			if !maskedValue(ternary.GetValue(), ternary.GetMask()) {
				return "", status.Errorf(codes.InvalidArgument,
					"field %d: ternary value has bits outside the mask", fm.GetFieldId())
			}
		}
	}

	key, err := proto.MarshalOptions{Deterministic: true}.Marshal(&p4v1.TableEntry{
		TableId:  te.GetTableId(),
		Match:    match,
		Priority: te.GetPriority(),
	})
	if err != nil {
		return "", status.Errorf(codes.Internal, "failed to encode key: %v", err)
	}

	return string(key), nil
}

// maskedValue reports whether value has no bits set outside of mask.
func maskedValue(value []byte, mask []byte) bool {
	// Right-align both byte strings.
	width := max(len(value), len(mask))
	v := append(bytes.Repeat([]byte{0}, width-len(value)), value...)
	k := append(bytes.Repeat([]byte{0}, width-len(mask)), mask...)

	for idx := range v {
		if v[idx]&^k[idx] != 0 {
			return false
		}
	}
	return true
}

func compareUint128(a, b *p4v1.Uint128) int {
	switch {
	case a.GetHigh() != b.GetHigh():
		if a.GetHigh() < b.GetHigh() {
			return -1
		}
		return 1
	case a.GetLow() < b.GetLow():
		return -1
	case a.GetLow() > b.GetLow():
		return 1
	default:
		return 0
	}
}

// batchError builds the error of a failed batch the way runtime servers do:
// an UNKNOWN status with one detail per update.
func batchError(results []error) error {
	st := status.New(codes.Unknown, "write batch failed")

	details := make([]protoadapt.MessageV1, 0, len(results))
	for _, err := range results {
		s, _ := status.FromError(err)
		details = append(details, &p4v1.Error{
			CanonicalCode: int32(s.Code()),
			Message:       s.Message(),
		})
	}

	withDetails, err := st.WithDetails(details...)
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}
