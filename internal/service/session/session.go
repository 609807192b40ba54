package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"accountability-call-service/internal/models"
	"accountability-call-service/internal/observability/logging"
	"accountability-call-service/internal/observability/metrics"
	"accountability-call-service/internal/service/segment"
	"accountability-call-service/internal/transcript"
)

// Publisher receives new transcript revisions and agent state changes.
// *events.Publisher satisfies it.
type Publisher interface {
	PublishPartial(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
	PublishAgentState(ctx context.Context, key string, event any) error
}

// Broadcaster pushes views to live clients. *broadcast.Hub satisfies it.
type Broadcaster interface {
	Broadcast(room string, payload any)
}

// Validator checks outbound events. *schema.Validator satisfies it.
type Validator interface {
	Validate(event any) error
}

// Options wires a Session to its collaborators. Nil collaborators are skipped.
type Options struct {
	MaxPartials int
	Publisher   Publisher
	Broadcaster Broadcaster
	Validator   Validator
	Revisions   *segment.Generator
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Revisions == nil {
		o.Revisions = segment.New()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.DefaultMetrics
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Session holds the derived state of one room. Apply is serialized, so
// snapshots for a room are processed one at a time in arrival order.
type Session struct {
	room    string
	opts    Options
	tracker *segment.Tracker
	logger  zerolog.Logger

	mu        sync.Mutex
	sequence  uint64
	lastState transcript.AgentState
	view      View
	hasView   bool
	closed    bool
}

// New creates a session for room.
func New(room string, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		room:      room,
		opts:      opts,
		tracker:   segment.NewTracker(opts.MaxPartials),
		logger:    logging.WithRoom(room),
		lastState: transcript.StateListening,
	}
	s.tracker.OnDrop(func(id, reason string) {
		s.opts.Metrics.RecordSegmentDropped(reason)
		l := logging.WithSegment(room, id)
		l.Warn().Str("reason", reason).Msg("Segment dropped")
	})
	return s
}

// Room returns the room name.
func (s *Session) Room() string {
	return s.room
}

// Apply derives the view for snap, publishes what changed since the previous
// snapshot and broadcasts the view. Publishing failures are logged, not returned.
func (s *Session) Apply(ctx context.Context, snap Snapshot) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	now := s.opts.Now()

	segments := transcript.DeriveSegments(snap.Transcriptions)
	roster := transcript.NewRoster(snap.Participants)

	agent := roster.Agent()
	agentIdentity := ""
	if agent != nil {
		agentIdentity = agent.Identity
	}
	state := transcript.AgentStateOf(agent)

	if !s.closed {
		before := s.tracker.Len()
		emissions := s.tracker.Observe(segments)
		for i := s.tracker.Len() - before; i > 0; i-- {
			s.opts.Metrics.RecordSegmentCreated()
		}
		for _, e := range emissions {
			s.publishEmission(ctx, e, roster, agentIdentity, now)
		}
		if state != s.lastState {
			s.publishAgentState(ctx, agentIdentity, state, now)
		}
	}
	s.lastState = state

	connection := snap.ConnectionState
	if connection == "" {
		connection = ConnectionConnected
		if s.hasView {
			connection = s.view.ConnectionState
		}
	}

	visible := transcript.Collapse(segments)
	s.sequence++
	view := View{
		Room:            s.room,
		Sequence:        s.sequence,
		ConnectionState: connection,
		AgentConnected:  agent != nil,
		AgentIdentity:   agentIdentity,
		AgentState:      string(state),
		AgentSpeaking:   state.Speaking(),
		Segments:        Attribute(visible, roster, agentIdentity),
		Text:            transcript.TranscriptText(visible),
		InProgress:      transcript.InProgress(visible),
		UpdatedAt:       now.UTC(),
	}
	s.view = view
	s.hasView = true

	if s.opts.Broadcaster != nil {
		s.opts.Broadcaster.Broadcast(s.room, view)
	}

	origin := snap.Origin
	if origin == "" {
		origin = "unknown"
	}
	s.opts.Metrics.RecordSnapshot(origin, len(snap.Transcriptions), len(segments), time.Since(start).Seconds())
	return view
}

func (s *Session) publishEmission(ctx context.Context, e segment.Emission, roster transcript.Roster, agentIdentity string, now time.Time) {
	ts := e.Segment.Timestamp
	if ts <= 0 {
		ts = now.UnixMilli()
	}
	isAgent := isAgentSpeaker(roster, e.Segment.Speaker, agentIdentity)
	revision := s.opts.Revisions.Next(s.room)

	var (
		event   any
		publish func(context.Context, string, any) error
	)
	switch e.Kind {
	case segment.EmissionFinal:
		event = models.TranscriptFinal{
			EventType:  models.EventTypeFinal,
			Room:       s.room,
			RevisionID: revision,
			SegmentID:  e.Segment.ID,
			Speaker:    e.Segment.Speaker,
			IsAgent:    isAgent,
			Text:       e.Segment.Text,
			Timestamp:  ts,
		}
		s.opts.Metrics.RecordFinalTranscript()
		s.opts.Metrics.RecordSegmentCompleted()
		if s.opts.Publisher != nil {
			publish = s.opts.Publisher.PublishFinal
		}
	default:
		event = models.TranscriptPartial{
			EventType:  models.EventTypePartial,
			Room:       s.room,
			RevisionID: revision,
			SegmentID:  e.Segment.ID,
			Speaker:    e.Segment.Speaker,
			IsAgent:    isAgent,
			Text:       e.Segment.Text,
			Timestamp:  ts,
		}
		s.opts.Metrics.RecordPartialTranscript()
		if s.opts.Publisher != nil {
			publish = s.opts.Publisher.PublishPartial
		}
	}

	s.logger.Debug().
		Str("segmentId", e.Segment.ID).
		Str("kind", e.Kind.String()).
		Str("speaker", e.Segment.Speaker).
		Bool("isAgent", isAgent).
		Msg("Segment revision")

	s.send(ctx, publish, event, e.Segment.ID)
}

func (s *Session) publishAgentState(ctx context.Context, agentIdentity string, state transcript.AgentState, now time.Time) {
	event := models.AgentStateChanged{
		EventType:     models.EventTypeAgentState,
		Room:          s.room,
		RevisionID:    s.opts.Revisions.Next(s.room),
		AgentIdentity: agentIdentity,
		State:         string(state),
		Previous:      string(s.lastState),
		Timestamp:     now.UnixMilli(),
	}
	s.opts.Metrics.RecordAgentState(string(state))

	s.logger.Info().
		Str("agent", agentIdentity).
		Str("state", string(state)).
		Str("previous", string(s.lastState)).
		Msg("Agent state changed")

	var publish func(context.Context, string, any) error
	if s.opts.Publisher != nil {
		publish = s.opts.Publisher.PublishAgentState
	}
	s.send(ctx, publish, event, "")
}

func (s *Session) send(ctx context.Context, publish func(context.Context, string, any) error, event any, segmentID string) {
	if s.opts.Validator != nil {
		if err := s.opts.Validator.Validate(event); err != nil {
			s.logger.Error().Err(err).Str("segmentId", segmentID).Msg("Event failed validation, not published")
			return
		}
	}
	if publish == nil {
		return
	}
	if err := publish(ctx, s.room, event); err != nil {
		s.logger.Error().Err(err).Str("segmentId", segmentID).Msg("Failed to publish event")
	}
}

// View returns the most recent view.
func (s *Session) View() (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view, s.hasView
}

// Run applies snapshots from in until ctx is done or in is closed.
func (s *Session) Run(ctx context.Context, in <-chan Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			s.Apply(ctx, snap)
		}
	}
}

// Close ends publishing for the session. Segments that never became final
// are dropped. Later snapshots still update the view but publish nothing.
func (s *Session) Close() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.closed = true
	dropped := s.tracker.Close()
	s.logger.Info().Int("droppedSegments", dropped).Uint64("snapshots", s.sequence).Msg("Session closed")
	return dropped
}
