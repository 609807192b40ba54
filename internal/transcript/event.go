// Package transcript turns raw transcription events and participant records
// into renderable transcript segments and a coarse agent activity state.
//
// Everything here is a pure function of its input. Callers push fresh
// snapshots and recompute; nothing is cached between calls.
package transcript

import (
	"bytes"
	"encoding/json"
)

// TranscriptionEvent is one transcription update as reported by the
// real-time client. The same utterance may appear many times with revised
// text while it is still being recognized.
type TranscriptionEvent struct {
	ID              string           `json:"id,omitempty"`
	SegmentID       string           `json:"segmentId,omitempty"`
	Text            string           `json:"text,omitempty"`
	Message         string           `json:"message,omitempty"`
	Final           *bool            `json:"final,omitempty"`
	IsFinal         *bool            `json:"isFinal,omitempty"`
	ParticipantInfo *ParticipantInfo `json:"participantInfo,omitempty"`
	Timestamp       int64            `json:"timestamp,omitempty"`
}

// ParticipantInfo identifies the speaker of an event.
type ParticipantInfo struct {
	Identity string `json:"identity,omitempty"`
}

// Speaker returns the speaker identity, or "" when the event carries none.
func (e TranscriptionEvent) Speaker() string {
	if e.ParticipantInfo == nil {
		return ""
	}
	return e.ParticipantInfo.Identity
}

// Events is an event list with lenient JSON decoding. Decoding never fails:
// a value that is not an array decodes to an empty list.
type Events []TranscriptionEvent

// UnmarshalJSON implements json.Unmarshaler.
func (ev *Events) UnmarshalJSON(data []byte) error {
	*ev = DecodeEvents(data)
	return nil
}

// DecodeEvents decodes a JSON array of transcription events. Anything that is
// not an array yields an empty list. Fields with the wrong JSON type are
// treated as absent, so a malformed element degrades instead of being dropped.
func DecodeEvents(raw []byte) Events {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
		return Events{}
	}

	out := make(Events, 0, len(elems))
	for _, elem := range elems {
		out = append(out, decodeEvent(elem))
	}
	return out
}

func decodeEvent(raw json.RawMessage) TranscriptionEvent {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return TranscriptionEvent{}
	}

	ev := TranscriptionEvent{
		ID:        looseString(fields["id"]),
		SegmentID: looseString(fields["segmentId"]),
		Text:      strictString(fields["text"]),
		Message:   strictString(fields["message"]),
		Final:     optionalBool(fields["final"]),
		IsFinal:   optionalBool(fields["isFinal"]),
	}

	var ts int64
	if json.Unmarshal(fields["timestamp"], &ts) == nil {
		ev.Timestamp = ts
	}

	var info map[string]json.RawMessage
	if json.Unmarshal(fields["participantInfo"], &info) == nil && info != nil {
		ev.ParticipantInfo = &ParticipantInfo{Identity: strictString(info["identity"])}
	}
	return ev
}

// looseString accepts a JSON string or number. Numeric ids keep their literal form.
func looseString(raw json.RawMessage) string {
	if s := strictString(raw); s != "" {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if len(raw) > 0 && dec.Decode(&n) == nil {
		return n.String()
	}
	return ""
}

func strictString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func optionalBool(raw json.RawMessage) *bool {
	var b bool
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil {
		return nil
	}
	// JSON null unmarshals into a bool without error and leaves it untouched.
	if string(bytes.TrimSpace(raw)) == "null" {
		return nil
	}
	return &b
}

// Bool returns a pointer to b. Sources use it to fill the optional finality fields.
func Bool(b bool) *bool {
	return &b
}
