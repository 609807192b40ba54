package source

import (
	"sync"

	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/transcript"
)

// DefaultMaxEvents bounds the transcription list kept per room.
const DefaultMaxEvents = 1000

// Recorder accumulates the observed state of one room and produces
// immutable snapshots of it. Safe for concurrent use.
type Recorder struct {
	room      string
	origin    string
	maxEvents int

	mu           sync.Mutex
	connection   string
	participants []transcript.Participant
	events       transcript.Events
}

// NewRecorder creates a recorder. maxEvents <= 0 uses DefaultMaxEvents.
func NewRecorder(room, origin string, maxEvents int) *Recorder {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Recorder{
		room:       room,
		origin:     origin,
		maxEvents:  maxEvents,
		connection: session.ConnectionConnecting,
	}
}

// Append adds transcription events in arrival order. When the list grows past
// the bound the oldest events are discarded.
func (r *Recorder) Append(events ...transcript.TranscriptionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	if over := len(r.events) - r.maxEvents; over > 0 {
		r.events = append(transcript.Events(nil), r.events[over:]...)
	}
}

// SetParticipants replaces the roster.
func (r *Recorder) SetParticipants(participants []transcript.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = append([]transcript.Participant(nil), participants...)
}

// SetConnectionState records the connection state reported with the next snapshot.
func (r *Recorder) SetConnectionState(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connection = state
}

// Len returns the number of events held.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Snapshot copies the current state.
func (r *Recorder) Snapshot() session.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return session.Snapshot{
		Room:            r.room,
		ConnectionState: r.connection,
		Participants:    append([]transcript.Participant(nil), r.participants...),
		Transcriptions:  append(transcript.Events{}, r.events...),
		Origin:          r.origin,
	}
}
