package mock

import (
	"context"
	"io"
	"testing"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

func testP4Info() *p4config.P4Info {
	return &p4config.P4Info{
		PkgInfo: &p4config.PkgInfo{Name: "mock_prog"},
		Tables: []*p4config.Table{
			{
				Preamble: &p4config.Preamble{Id: 1, Name: "Ingress.exact_tb", Alias: "exact_tb"},
				MatchFields: []*p4config.MatchField{
					{Id: 1, Name: "meta.flag", Bitwidth: 8, Match: &p4config.MatchField_MatchType_{MatchType: p4config.MatchField_EXACT}},
				},
				ActionRefs: []*p4config.ActionRef{{Id: 10}},
			},
			{
				Preamble: &p4config.Preamble{Id: 2, Name: "Egress.ternary_tb", Alias: "ternary_tb"},
				MatchFields: []*p4config.MatchField{
					{Id: 1, Name: "hdr.ipv4.src_addr", Bitwidth: 32, Match: &p4config.MatchField_MatchType_{MatchType: p4config.MatchField_TERNARY}},
				},
				ActionRefs: []*p4config.ActionRef{{Id: 10}},
			},
		},
		Actions: []*p4config.Action{
			{Preamble: &p4config.Preamble{Id: 10, Name: "Ingress.noop", Alias: "noop"}},
		},
	}
}

type testEnv struct {
	sw     *Switch
	client p4v1.P4RuntimeClient
}

func newTestEnv(t *testing.T, cfg SwitchConfig) *testEnv {
	t.Helper()

	sw := NewSwitch(cfg, testP4Info(), WithLog(zaptest.NewLogger(t).Sugar()))
	srv := NewServer(sw)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-srv.Done()
	})

	conn, err := grpc.NewClient(Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		srv.DialOption(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testEnv{sw: sw, client: p4v1.NewP4RuntimeClient(conn)}
}

func (m *testEnv) arbitrate(t *testing.T, electionID uint64) (codes.Code, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := m.client.StreamChannel(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(&p4v1.StreamMessageRequest{
		Update: &p4v1.StreamMessageRequest_Arbitration{
			Arbitration: &p4v1.MasterArbitrationUpdate{
				ElectionId: &p4v1.Uint128{Low: electionID},
			},
		},
	}))

	resp, err := stream.Recv()
	require.NoError(t, err)
	return codes.Code(resp.GetArbitration().GetStatus().GetCode()), cancel
}

func exactEntry(flag byte) *p4v1.TableEntry {
	return &p4v1.TableEntry{
		TableId: 1,
		Match: []*p4v1.FieldMatch{{
			FieldId:        1,
			FieldMatchType: &p4v1.FieldMatch_Exact_{Exact: &p4v1.FieldMatch_Exact{Value: []byte{flag}}},
		}},
		Action: &p4v1.TableAction{Type: &p4v1.TableAction_Action{Action: &p4v1.Action{ActionId: 10}}},
	}
}

func update(typ p4v1.Update_Type, te *p4v1.TableEntry) *p4v1.Update {
	return &p4v1.Update{
		Type:   typ,
		Entity: &p4v1.Entity{Entity: &p4v1.Entity_TableEntry{TableEntry: te}},
	}
}

func TestArbitration(t *testing.T) {
	env := newTestEnv(t, SwitchConfig{PrimaryElectionID: &p4v1.Uint128{Low: 5}})

	code, cancel := env.arbitrate(t, 1)
	defer cancel()
	require.Equal(t, codes.AlreadyExists, code)

	code, cancel = env.arbitrate(t, 7)
	defer cancel()
	require.Equal(t, codes.OK, code)
}

func TestWriteRequiresPrimary(t *testing.T) {
	env := newTestEnv(t, SwitchConfig{})

	_, err := env.client.Write(context.Background(), &p4v1.WriteRequest{
		ElectionId: &p4v1.Uint128{Low: 1},
		Updates:    []*p4v1.Update{update(p4v1.Update_INSERT, exactEntry(1))},
	})
	require.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestWriteRollsBackFailedBatch(t *testing.T) {
	env := newTestEnv(t, SwitchConfig{})
	code, cancel := env.arbitrate(t, 1)
	defer cancel()
	require.Equal(t, codes.OK, code)

	ctx := context.Background()
	election := &p4v1.Uint128{Low: 1}

	_, err := env.client.Write(ctx, &p4v1.WriteRequest{
		ElectionId: election,
		Updates:    []*p4v1.Update{update(p4v1.Update_INSERT, exactEntry(1))},
		Atomicity:  p4v1.WriteRequest_ROLLBACK_ON_ERROR,
	})
	require.NoError(t, err)

	// The duplicate insert fails, so the first update must not stick.
	_, err = env.client.Write(ctx, &p4v1.WriteRequest{
		ElectionId: election,
		Updates: []*p4v1.Update{
			update(p4v1.Update_INSERT, exactEntry(2)),
			update(p4v1.Update_INSERT, exactEntry(1)),
		},
		Atomicity: p4v1.WriteRequest_ROLLBACK_ON_ERROR,
	})
	require.Error(t, err)

	st := status.Convert(err)
	require.Equal(t, codes.Unknown, st.Code())
	require.Len(t, st.Details(), 2)
	require.Equal(t, int32(codes.AlreadyExists), st.Details()[1].(*p4v1.Error).GetCanonicalCode())

	require.Len(t, env.sw.Entries("exact_tb"), 1)
	require.Equal(t, 1, env.sw.WriteCount())
}

func TestTernaryValidation(t *testing.T) {
	env := newTestEnv(t, SwitchConfig{})

	te := &p4v1.TableEntry{
		TableId: 2,
		Match: []*p4v1.FieldMatch{{
			FieldId: 1,
			FieldMatchType: &p4v1.FieldMatch_Ternary_{Ternary: &p4v1.FieldMatch_Ternary{
				Value: []byte{0x8c, 0xb4, 0x01, 0x00},
				Mask:  []byte{0xff, 0xff, 0x00, 0x00},
			}},
		}},
		Priority: 1,
	}
	err := env.sw.Populate(te)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	te.Match[0].GetTernary().Value = []byte{0x8c, 0xb4, 0x00, 0x00}
	te.Priority = 0
	err = env.sw.Populate(te)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	te.Priority = 1
	require.NoError(t, env.sw.Populate(te))
}

func TestReadAllTables(t *testing.T) {
	env := newTestEnv(t, SwitchConfig{})
	require.NoError(t, env.sw.Populate(exactEntry(1), exactEntry(2)))

	stream, err := env.client.Read(context.Background(), &p4v1.ReadRequest{
		Entities: []*p4v1.Entity{{Entity: &p4v1.Entity_TableEntry{TableEntry: &p4v1.TableEntry{}}}},
	})
	require.NoError(t, err)

	var entities []*p4v1.Entity
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		entities = append(entities, resp.GetEntities()...)
	}
	require.Len(t, entities, 2)
}

func TestGetForwardingPipelineConfig(t *testing.T) {
	env := newTestEnv(t, SwitchConfig{})

	resp, err := env.client.GetForwardingPipelineConfig(context.Background(), &p4v1.GetForwardingPipelineConfigRequest{
		ResponseType: p4v1.GetForwardingPipelineConfigRequest_P4INFO_AND_COOKIE,
	})
	require.NoError(t, err)
	require.Equal(t, "mock_prog", resp.GetConfig().GetP4Info().GetPkgInfo().GetName())

	_, err = env.client.GetForwardingPipelineConfig(context.Background(), &p4v1.GetForwardingPipelineConfigRequest{
		DeviceId: 3,
	})
	require.Equal(t, codes.NotFound, status.Code(err))
}
