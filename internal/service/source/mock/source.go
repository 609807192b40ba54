// Package mock provides a scripted call source for running without LiveKit.
// It simulates an accountability call: each utterance arrives as progressive
// partial transcripts followed by exactly one final, and the agent's state
// attribute follows who is talking.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/service/source"
	"accountability-call-service/internal/transcript"
)

// Speaker selects who says an utterance.
type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerAgent
)

// SimulatedUtterance is one line of the script.
type SimulatedUtterance struct {
	Speaker  Speaker
	Partials []string // progressive partial transcripts
	Final    string
}

// DefaultUtterances is a short accountability check-in.
var DefaultUtterances = []SimulatedUtterance{
	{
		Speaker:  SpeakerAgent,
		Partials: []string{"Alright", "Alright, what did", "Alright, what did you get done"},
		Final:    "Alright, what did you get done today?",
	},
	{
		Speaker:  SpeakerUser,
		Partials: []string{"I skipped", "I skipped my run", "I skipped my run this morning"},
		Final:    "I skipped my run this morning.",
	},
	{
		Speaker:  SpeakerAgent,
		Partials: []string{"You skipped", "You skipped it. Why"},
		Final:    "You skipped it. Why?",
	},
	{
		Speaker:  SpeakerUser,
		Partials: []string{"I was", "I was tired"},
		Final:    "I was tired.",
	},
	{
		Speaker:  SpeakerAgent,
		Partials: []string{"Tired is", "Tired is a feeling", "Tired is a feeling, not a fact"},
		Final:    "Tired is a feeling, not a fact. Go run tonight. Stay hard.",
	},
}

// Config holds mock source configuration.
type Config struct {
	Room          string
	Interval      time.Duration
	MaxEvents     int
	UserIdentity  string
	AgentIdentity string
	Utterances    []SimulatedUtterance
	Loop          bool
}

// DefaultConfig returns a looping script for room.
func DefaultConfig(room string) Config {
	return Config{
		Room:          room,
		Interval:      400 * time.Millisecond,
		MaxEvents:     source.DefaultMaxEvents,
		UserIdentity:  "user",
		AgentIdentity: "goggins-agent",
		Utterances:    DefaultUtterances,
		Loop:          true,
	}
}

// step is one scripted change: a transcription revision and the agent state
// that holds while it is shown.
type step struct {
	event transcript.TranscriptionEvent
	state transcript.AgentState
}

// plan expands utterances into steps. Ids are prefixed with round so a looped
// script never reuses a segment id.
func plan(cfg Config, round int) []step {
	var steps []step
	for i, u := range cfg.Utterances {
		id := fmt.Sprintf("mock-%d-%d", round, i)
		speaker := cfg.UserIdentity
		partialState, finalState := transcript.StateListening, transcript.StateThinking
		if u.Speaker == SpeakerAgent {
			speaker = cfg.AgentIdentity
			partialState, finalState = transcript.StateSpeaking, transcript.StateListening
		}
		for _, p := range u.Partials {
			steps = append(steps, step{event: event(id, speaker, p, false), state: partialState})
		}
		steps = append(steps, step{event: event(id, speaker, u.Final, true), state: finalState})
	}
	return steps
}

func event(id, speaker, text string, final bool) transcript.TranscriptionEvent {
	return transcript.TranscriptionEvent{
		ID:              id,
		Text:            text,
		Final:           transcript.Bool(final),
		ParticipantInfo: &transcript.ParticipantInfo{Identity: speaker},
	}
}

// Source implements source.Source with a scripted conversation.
type Source struct {
	cfg      Config
	recorder *source.Recorder

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a mock source.
func New(cfg Config) *Source {
	if cfg.Interval <= 0 {
		cfg.Interval = 400 * time.Millisecond
	}
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	return &Source{
		cfg:      cfg,
		recorder: source.NewRecorder(cfg.Room, "mock", cfg.MaxEvents),
	}
}

func (s *Source) participants(state transcript.AgentState) []transcript.Participant {
	return []transcript.Participant{
		{Identity: s.cfg.UserIdentity, Name: "You", Kind: transcript.KindStandard},
		{
			Identity:   s.cfg.AgentIdentity,
			Name:       "Goggins",
			Kind:       transcript.KindAgent,
			Attributes: transcript.StringAttributes(map[string]string{transcript.AgentStateKey: string(state)}),
		},
	}
}

// Start pushes the connected room and then one scripted step per interval.
func (s *Source) Start(ctx context.Context, sink source.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("mock source already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.recorder.SetConnectionState(session.ConnectionConnected)
	s.recorder.SetParticipants(s.participants(transcript.StateInitializing))
	sink.Push(ctx, s.recorder.Snapshot())

	go s.run(ctx, sink)

	log.Info().
		Str("room", s.cfg.Room).
		Dur("interval", s.cfg.Interval).
		Int("utterances", len(s.cfg.Utterances)).
		Msg("Mock source started")
	return nil
}

func (s *Source) run(ctx context.Context, sink source.Sink) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for round := 0; ; round++ {
		for _, st := range plan(s.cfg, round) {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			ev := st.event
			ev.Timestamp = time.Now().UnixMilli()
			s.recorder.Append(ev)
			s.recorder.SetParticipants(s.participants(st.state))
			sink.Push(ctx, s.recorder.Snapshot())
		}
		if !s.cfg.Loop {
			return
		}
	}
}

// Close stops the script and waits for the running goroutine.
func (s *Source) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
