// Package models defines the payloads published for a call transcript.
package models

// Event types carried in the eventType field and the Kafka header.
const (
	EventTypePartial    = "call.transcript.partial"
	EventTypeFinal      = "call.transcript.final"
	EventTypeAgentState = "call.agent.state"
)

// TranscriptPartial is a provisional revision of a segment.
type TranscriptPartial struct {
	EventType  string `json:"eventType"`
	Room       string `json:"room"`
	RevisionID string `json:"revisionId"`
	SegmentID  string `json:"segmentId"`
	Speaker    string `json:"speaker,omitempty"`
	IsAgent    bool   `json:"isAgent"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// TranscriptFinal is the final text of a segment. Published once per segment.
type TranscriptFinal struct {
	EventType  string `json:"eventType"`
	Room       string `json:"room"`
	RevisionID string `json:"revisionId"`
	SegmentID  string `json:"segmentId"`
	Speaker    string `json:"speaker,omitempty"`
	IsAgent    bool   `json:"isAgent"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// AgentStateChanged is published when the agent's derived state changes.
type AgentStateChanged struct {
	EventType     string `json:"eventType"`
	Room          string `json:"room"`
	RevisionID    string `json:"revisionId"`
	AgentIdentity string `json:"agentIdentity,omitempty"`
	State         string `json:"state"`
	Previous      string `json:"previous"`
	Timestamp     int64  `json:"timestamp"`
}
