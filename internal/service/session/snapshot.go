// Package session applies call snapshots to per-room state: it derives the
// transcript view, publishes new revisions and broadcasts the view.
package session

import (
	"time"

	"accountability-call-service/internal/transcript"
)

// Connection states reported by sources.
const (
	ConnectionConnected    = "connected"
	ConnectionConnecting   = "connecting"
	ConnectionReconnecting = "reconnecting"
	ConnectionDisconnected = "disconnected"
)

// Snapshot is the immutable input pushed by a source on every change of the
// room: the current roster and the current transcription list.
type Snapshot struct {
	Room            string                   `json:"room"`
	ConnectionState string                   `json:"connectionState,omitempty"`
	Participants    []transcript.Participant `json:"participants,omitempty"`
	Transcriptions  transcript.Events        `json:"transcriptions"`

	// Origin names the producer for metrics. Not part of the wire form.
	Origin string `json:"-"`
}

// AttributedSegment is a segment with its speaker resolved against the roster.
type AttributedSegment struct {
	transcript.Segment
	IsAgent     bool   `json:"isAgent"`
	SpeakerName string `json:"speakerName,omitempty"`
}

// View is what the browser renders for a room.
type View struct {
	Room            string              `json:"room"`
	Sequence        uint64              `json:"sequence"`
	ConnectionState string              `json:"connectionState"`
	AgentConnected  bool                `json:"agentConnected"`
	AgentIdentity   string              `json:"agentIdentity,omitempty"`
	AgentState      string              `json:"agentState"`
	AgentSpeaking   bool                `json:"agentSpeaking"`
	Segments        []AttributedSegment `json:"segments"`
	Text            string              `json:"text"`
	InProgress      bool                `json:"inProgress"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Attribute marks each segment as agent or user speech. A segment is the
// agent's when its speaker is an agent participant in the roster, or when the
// speaker identity equals agentIdentity.
func Attribute(segments []transcript.Segment, roster transcript.Roster, agentIdentity string) []AttributedSegment {
	out := make([]AttributedSegment, 0, len(segments))
	for _, s := range segments {
		a := AttributedSegment{
			Segment: s,
			IsAgent: isAgentSpeaker(roster, s.Speaker, agentIdentity),
		}
		if p, ok := roster.Lookup(s.Speaker); ok {
			a.SpeakerName = p.DisplayName()
		}
		out = append(out, a)
	}
	return out
}

func isAgentSpeaker(roster transcript.Roster, speaker, agentIdentity string) bool {
	if speaker == "" {
		return false
	}
	if p, ok := roster.Lookup(speaker); ok && p.Kind == transcript.KindAgent {
		return true
	}
	return speaker == agentIdentity
}
