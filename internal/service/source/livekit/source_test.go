package livekit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountability-call-service/internal/observability/metrics"
	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/transcript"
)

type fakeLister struct {
	mu    sync.Mutex
	infos []*livekit.ParticipantInfo
	err   error
	calls int
}

func (f *fakeLister) ListParticipants(_ context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &livekit.ListParticipantsResponse{Participants: f.infos}, nil
}

func (f *fakeLister) set(infos ...*livekit.ParticipantInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos = infos
}

type snapshotSink struct {
	ch chan session.Snapshot
}

func (s *snapshotSink) Push(_ context.Context, snap session.Snapshot) {
	s.ch <- snap
}

func next(t *testing.T, sink *snapshotSink) session.Snapshot {
	t.Helper()
	select {
	case snap := <-sink.ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot pushed")
		return session.Snapshot{}
	}
}

func agentInfo(state string) *livekit.ParticipantInfo {
	return &livekit.ParticipantInfo{
		Identity:   "goggins-agent",
		Name:       "Goggins",
		Kind:       livekit.ParticipantInfo_AGENT,
		Attributes: map[string]string{transcript.AgentStateKey: state},
	}
}

func TestEventsFromSegments(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	events := EventsFromSegments([]*lksdk.TranscriptionSegment{
		{ID: "SG_1", Text: "who's gonna", Final: false},
		nil,
		{ID: "SG_1", Text: "who's gonna carry the boats", Final: true},
	}, "goggins-agent", now)

	require.Len(t, events, 2)
	assert.Equal(t, "SG_1", events[0].ID)
	assert.False(t, *events[0].Final)
	assert.True(t, *events[1].Final)
	assert.Equal(t, "goggins-agent", events[1].Speaker())
	assert.Equal(t, now.UnixMilli(), events[1].Timestamp)

	anonymous := EventsFromSegments([]*lksdk.TranscriptionSegment{{ID: "x"}}, "", now)
	assert.Nil(t, anonymous[0].ParticipantInfo)
}

func TestParticipantsFromInfo(t *testing.T) {
	got := ParticipantsFromInfo([]*livekit.ParticipantInfo{
		{Identity: "transcript-observer"},
		{Identity: "user-1", Name: "Alice", Kind: livekit.ParticipantInfo_STANDARD},
		agentInfo("thinking"),
		{Identity: "sip-1", Kind: livekit.ParticipantInfo_SIP},
		nil,
	}, "transcript-observer")

	require.Len(t, got, 3)
	assert.Equal(t, transcript.KindStandard, got[0].Kind)
	assert.Equal(t, transcript.KindAgent, got[1].Kind)
	assert.Equal(t, transcript.KindSIP, got[2].Kind)
	assert.Equal(t, transcript.StateThinking, transcript.NewRoster(got).AgentState())
	assert.Equal(t, transcript.AttributesNone, got[0].Attributes.Kind())
}

func TestSource_PushesTranscriptionsAndRoster(t *testing.T) {
	lister := &fakeLister{}
	lister.set(&livekit.ParticipantInfo{Identity: "user-1"}, agentInfo("listening"))

	src := newSource(Config{Room: "goggins-room", RosterRefresh: 5 * time.Millisecond}, nil, lister,
		metrics.NewMetrics(prometheus.NewRegistry()))
	sink := &snapshotSink{ch: make(chan session.Snapshot, 64)}

	ctx, cancel := context.WithCancel(context.Background())
	src.done = make(chan struct{})
	go src.run(ctx, sink)
	defer func() {
		cancel()
		<-src.done
	}()

	first := next(t, sink)
	assert.Equal(t, "goggins-room", first.Room)
	assert.Equal(t, "livekit", first.Origin)
	require.Len(t, first.Participants, 2)

	src.handleTranscription([]*lksdk.TranscriptionSegment{{ID: "SG_1", Text: "stay hard", Final: true}}, "goggins-agent")
	var withText session.Snapshot
	require.Eventually(t, func() bool {
		select {
		case withText = <-sink.ch:
			return len(withText.Transcriptions) == 1
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, "stay hard", withText.Transcriptions[0].Text)

	lister.set(&livekit.ParticipantInfo{Identity: "user-1"}, agentInfo("speaking"))
	require.Eventually(t, func() bool {
		select {
		case snap := <-sink.ch:
			return transcript.NewRoster(snap.Participants).AgentState() == transcript.StateSpeaking
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond)
}

func TestSource_ConnectionStateChanges(t *testing.T) {
	lister := &fakeLister{}
	src := newSource(Config{Room: "r", RosterRefresh: time.Hour}, nil, lister, metrics.NewMetrics(prometheus.NewRegistry()))
	sink := &snapshotSink{ch: make(chan session.Snapshot, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	src.done = make(chan struct{})
	go src.run(ctx, sink)
	defer func() {
		cancel()
		<-src.done
	}()

	next(t, sink)
	src.setConnection(session.ConnectionReconnecting)
	assert.Equal(t, session.ConnectionReconnecting, next(t, sink).ConnectionState)
}

func TestSource_RosterErrorsAreCounted(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	lister := &fakeLister{err: errors.New("unauthorized")}
	src := newSource(Config{Room: "r"}, nil, lister, m)

	assert.False(t, src.refreshRoster(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceErrors.WithLabelValues("livekit")))
}

type failingTokens struct{}

func (failingTokens) ObserverToken(string, string) (string, error) {
	return "", errors.New("no credentials")
}

func TestSource_StartFailsWithoutToken(t *testing.T) {
	src := newSource(Config{Room: "r"}, failingTokens{}, &fakeLister{}, metrics.NewMetrics(prometheus.NewRegistry()))
	err := src.Start(context.Background(), &snapshotSink{ch: make(chan session.Snapshot, 1)})
	assert.ErrorContains(t, err, "observer token")
	assert.NoError(t, src.Close())
}
