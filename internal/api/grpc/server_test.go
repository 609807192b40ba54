package grpcapi

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"accountability-call-service/internal/observability"
	"accountability-call-service/internal/observability/metrics"
	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/transcript"
)

func startServer(t *testing.T) (*Client, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	lis := bufconn.Listen(1 << 20)

	g := grpc.NewServer(grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)))
	Register(g, session.NewManager(session.Options{Metrics: m}))
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn), m
}

func TestPushSnapshotAndGetView(t *testing.T) {
	client, m := startServer(t)
	ctx := context.Background()

	view, err := client.PushSnapshot(ctx, session.Snapshot{
		Room: "goggins-room",
		Participants: []transcript.Participant{{
			Identity:   "goggins-agent",
			Name:       "Goggins",
			Kind:       transcript.KindAgent,
			Attributes: transcript.StringAttributes(map[string]string{transcript.AgentStateKey: "speaking"}),
		}},
		Transcriptions: transcript.Events{
			{ID: "a", Text: "Who's gonna carry the boats?", Final: transcript.Bool(true),
				ParticipantInfo: &transcript.ParticipantInfo{Identity: "goggins-agent"}, Timestamp: 1700000000000},
			{SegmentID: "b", Message: "Me", IsFinal: transcript.Bool(false),
				ParticipantInfo: &transcript.ParticipantInfo{Identity: "user"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), view.Sequence)
	assert.Equal(t, "speaking", view.AgentState)
	require.Len(t, view.Segments, 2)
	assert.True(t, view.Segments[0].IsAgent)
	assert.Equal(t, int64(1700000000000), view.Segments[0].Timestamp)
	assert.Equal(t, "b", view.Segments[1].ID)
	assert.Equal(t, "Me", view.Segments[1].Text)
	assert.True(t, view.InProgress)

	got, err := client.GetView(ctx, "goggins-room")
	require.NoError(t, err)
	assert.Equal(t, view.Sequence, got.Sequence)
	assert.Equal(t, view.Text, got.Text)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCTotal.WithLabelValues(PushSnapshotMethod, "OK")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("grpc")))
}

func TestPushSnapshot_MissingRoom(t *testing.T) {
	client, _ := startServer(t)

	_, err := client.PushSnapshot(context.Background(), session.Snapshot{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetView_Errors(t *testing.T) {
	client, m := startServer(t)
	ctx := context.Background()

	_, err := client.GetView(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetView(ctx, "nobody-here")
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCTotal.WithLabelValues(GetViewMethod, "NotFound")))
}

func TestPushSnapshot_NonArrayTranscriptions(t *testing.T) {
	srv := &Server{sessions: session.NewManager(session.Options{Metrics: metrics.NewMetrics(prometheus.NewRegistry())})}

	in, err := structpb.NewStruct(map[string]any{
		"room":           "r",
		"transcriptions": map[string]any{"id": "not-a-list"},
	})
	require.NoError(t, err)

	out, err := srv.PushSnapshot(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, out.GetFields()["segments"].GetListValue().GetValues())
	assert.Equal(t, "", out.GetFields()["text"].GetStringValue())
}
