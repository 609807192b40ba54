package mock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/service/source"
	"accountability-call-service/internal/transcript"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []session.Snapshot
}

func (r *recordingSink) Push(_ context.Context, snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recordingSink) all() []session.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Snapshot(nil), r.snaps...)
}

var _ source.Source = (*Source)(nil)

func TestPlan_OneFinalPerUtterance(t *testing.T) {
	cfg := DefaultConfig("room")
	steps := plan(cfg, 0)

	finals := 0
	for _, st := range steps {
		if *st.event.Final {
			finals++
		}
	}
	assert.Equal(t, len(DefaultUtterances), finals)

	first := steps[0]
	assert.Equal(t, "mock-0-0", first.event.ID)
	assert.Equal(t, cfg.AgentIdentity, first.event.Speaker())
	assert.Equal(t, transcript.StateSpeaking, first.state)

	segments := transcript.Collapse(transcript.DeriveSegments(eventsOf(steps)))
	require.Len(t, segments, len(DefaultUtterances))
	for i, seg := range segments {
		assert.True(t, seg.Final)
		assert.Equal(t, DefaultUtterances[i].Final, seg.Text)
	}
}

func TestPlan_RoundsUseDistinctIDs(t *testing.T) {
	cfg := DefaultConfig("room")
	a := plan(cfg, 0)
	b := plan(cfg, 1)
	assert.NotEqual(t, a[0].event.ID, b[0].event.ID)
}

func TestPlan_UserLineStates(t *testing.T) {
	cfg := DefaultConfig("room")
	cfg.Utterances = []SimulatedUtterance{{Speaker: SpeakerUser, Partials: []string{"I"}, Final: "I did"}}

	steps := plan(cfg, 0)
	require.Len(t, steps, 2)
	assert.Equal(t, transcript.StateListening, steps[0].state)
	assert.Equal(t, transcript.StateThinking, steps[1].state)
	assert.Equal(t, "user", steps[1].event.Speaker())
}

func eventsOf(steps []step) []transcript.TranscriptionEvent {
	out := make([]transcript.TranscriptionEvent, len(steps))
	for i, st := range steps {
		out[i] = st.event
	}
	return out
}

func TestSource_RunsScriptOnce(t *testing.T) {
	cfg := DefaultConfig("goggins-room")
	cfg.Interval = time.Millisecond
	cfg.Loop = false
	src := New(cfg)
	sink := &recordingSink{}

	require.NoError(t, src.Start(context.Background(), sink))
	select {
	case <-src.done:
	case <-time.After(5 * time.Second):
		t.Fatal("script did not finish")
	}
	require.NoError(t, src.Close())

	snaps := sink.all()
	require.Len(t, snaps, len(plan(cfg, 0))+1)

	initial := snaps[0]
	assert.Equal(t, session.ConnectionConnected, initial.ConnectionState)
	assert.Empty(t, initial.Transcriptions)
	assert.Equal(t, "mock", initial.Origin)

	last := snaps[len(snaps)-1]
	segments := transcript.Collapse(transcript.DeriveSegments(last.Transcriptions))
	require.Len(t, segments, len(DefaultUtterances))
	assert.False(t, transcript.InProgress(segments))

	roster := transcript.NewRoster(last.Participants)
	require.NotNil(t, roster.Agent())
	assert.Equal(t, transcript.StateListening, roster.AgentState())
}

func TestSource_CloseStopsLoop(t *testing.T) {
	cfg := DefaultConfig("goggins-room")
	cfg.Interval = time.Millisecond
	src := New(cfg)

	require.NoError(t, src.Start(context.Background(), &recordingSink{}))
	assert.Error(t, src.Start(context.Background(), &recordingSink{}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, src.Close())

	select {
	case <-src.done:
	default:
		t.Fatal("expected run loop to have exited")
	}
}

func TestSource_CloseBeforeStart(t *testing.T) {
	assert.NoError(t, New(DefaultConfig("room")).Close())
}
