// Package livekit observes a LiveKit room: it joins as a hidden, subscribe-only
// participant, records every transcription the room forwards and keeps the
// roster (with agent attributes) fresh from the room service API.
package livekit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/rs/zerolog"

	"accountability-call-service/internal/observability/logging"
	"accountability-call-service/internal/observability/metrics"
	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/service/source"
	"accountability-call-service/internal/transcript"
)

// RosterLister lists room participants. *lksdk.RoomServiceClient satisfies it.
type RosterLister interface {
	ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error)
}

// TokenSource signs the observer's join token. *token.Issuer satisfies it.
type TokenSource interface {
	ObserverToken(room, identity string) (string, error)
}

// Config holds LiveKit source configuration.
type Config struct {
	URL              string
	APIKey           string
	APISecret        string
	Room             string
	ObserverIdentity string
	RosterRefresh    time.Duration
	MaxEvents        int
}

// Source implements source.Source for a LiveKit room.
type Source struct {
	cfg      Config
	tokens   TokenSource
	roster   RosterLister
	recorder *source.Recorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	changed chan struct{}
	refresh chan struct{}

	mu     sync.Mutex
	room   *lksdk.Room
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a LiveKit source. The roster is read through a room service
// client built from cfg.
func New(cfg Config, tokens TokenSource, m *metrics.Metrics) *Source {
	return newSource(cfg, tokens, lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret), m)
}

func newSource(cfg Config, tokens TokenSource, roster RosterLister, m *metrics.Metrics) *Source {
	if cfg.RosterRefresh <= 0 {
		cfg.RosterRefresh = time.Second
	}
	if cfg.ObserverIdentity == "" {
		cfg.ObserverIdentity = "transcript-observer"
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Source{
		cfg:      cfg,
		tokens:   tokens,
		roster:   roster,
		recorder: source.NewRecorder(cfg.Room, "livekit", cfg.MaxEvents),
		metrics:  m,
		logger:   logging.WithParticipant(cfg.Room, cfg.ObserverIdentity),
		changed:  make(chan struct{}, 1),
		refresh:  make(chan struct{}, 1),
	}
}

// Start joins the room and begins pushing snapshots.
func (s *Source) Start(ctx context.Context, sink source.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("livekit source already started")
	}

	jwt, err := s.tokens.ObserverToken(s.cfg.Room, s.cfg.ObserverIdentity)
	if err != nil {
		return fmt.Errorf("observer token: %w", err)
	}

	room, err := lksdk.ConnectToRoomWithToken(s.cfg.URL, jwt, s.callbacks(), lksdk.WithAutoSubscribe(false))
	if err != nil {
		s.metrics.RecordSourceError("livekit")
		return fmt.Errorf("connect to room %s: %w", s.cfg.Room, err)
	}
	s.room = room
	s.recorder.SetConnectionState(session.ConnectionConnected)

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, sink)

	s.logger.Info().Str("url", s.cfg.URL).Msg("Joined LiveKit room as observer")
	return nil
}

func (s *Source) callbacks() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			s.logger.Debug().Str("identity", rp.Identity()).Msg("Participant connected")
			s.requestRefresh()
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			s.logger.Debug().Str("identity", rp.Identity()).Msg("Participant disconnected")
			s.requestRefresh()
		},
		OnReconnecting: func() {
			s.setConnection(session.ConnectionReconnecting)
		},
		OnReconnected: func() {
			s.setConnection(session.ConnectionConnected)
			s.requestRefresh()
		},
		OnDisconnected: func() {
			s.setConnection(session.ConnectionDisconnected)
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTranscriptionReceived: func(segments []*lksdk.TranscriptionSegment, p lksdk.Participant, _ lksdk.TrackPublication) {
				speaker := ""
				if p != nil {
					speaker = p.Identity()
				}
				s.handleTranscription(segments, speaker)
			},
		},
	}
}

func (s *Source) handleTranscription(segments []*lksdk.TranscriptionSegment, speaker string) {
	events := EventsFromSegments(segments, speaker, time.Now())
	if len(events) == 0 {
		return
	}
	s.recorder.Append(events...)
	s.notify()
}

func (s *Source) setConnection(state string) {
	s.logger.Info().Str("connectionState", state).Msg("Room connection state changed")
	s.recorder.SetConnectionState(state)
	s.notify()
}

func (s *Source) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Source) requestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// run owns all pushes so snapshots reach the sink one at a time.
func (s *Source) run(ctx context.Context, sink source.Sink) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.RosterRefresh)
	defer ticker.Stop()

	s.refreshRoster(ctx)
	sink.Push(ctx, s.recorder.Snapshot())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.refreshRoster(ctx) {
				sink.Push(ctx, s.recorder.Snapshot())
			}
		case <-s.refresh:
			s.refreshRoster(ctx)
			sink.Push(ctx, s.recorder.Snapshot())
		case <-s.changed:
			sink.Push(ctx, s.recorder.Snapshot())
		}
	}
}

// refreshRoster reloads participants. It reports whether the roster changed.
func (s *Source) refreshRoster(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := s.roster.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: s.cfg.Room})
	if err != nil {
		s.metrics.RecordSourceError("livekit")
		s.logger.Warn().Err(err).Msg("Failed to list participants")
		return false
	}

	participants := ParticipantsFromInfo(resp.GetParticipants(), s.cfg.ObserverIdentity)
	before := s.recorder.Snapshot().Participants
	if sameRoster(before, participants) {
		return false
	}
	s.recorder.SetParticipants(participants)
	return true
}

func sameRoster(a, b []transcript.Participant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Identity != b[i].Identity || a[i].Name != b[i].Name || a[i].Kind != b[i].Kind {
			return false
		}
		as, aok := a[i].Attributes.Lookup(transcript.AgentStateKey)
		bs, bok := b[i].Attributes.Lookup(transcript.AgentStateKey)
		if as != bs || aok != bok {
			return false
		}
	}
	return true
}

// Close leaves the room and stops pushing.
func (s *Source) Close() error {
	s.mu.Lock()
	cancel, done, room := s.cancel, s.done, s.room
	s.room = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if room != nil {
		room.Disconnect()
		s.logger.Info().Msg("Left LiveKit room")
	}
	return nil
}
