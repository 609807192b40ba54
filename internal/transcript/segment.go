package transcript

import (
	"fmt"
	"strings"
)

// fallbackIDPrefix tags ids synthesized from an event's position in the batch.
const fallbackIDPrefix = "transcript-"

// Segment is one renderable unit of transcript text.
type Segment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Speaker   string `json:"speaker,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// DeriveSegments maps events to segments one to one, preserving order.
// Events sharing an id are not merged; renderers key on Segment.ID so a later
// revision replaces an earlier partial one.
func DeriveSegments(events []TranscriptionEvent) []Segment {
	segments := make([]Segment, 0, len(events))
	for i, ev := range events {
		segments = append(segments, Segment{
			ID:        resolveID(ev, i),
			Text:      resolveText(ev),
			Final:     resolveFinal(ev),
			Speaker:   ev.Speaker(),
			Timestamp: ev.Timestamp,
		})
	}
	return segments
}

// DeriveSegmentsJSON decodes raw as an event list and derives its segments.
// A value that is not a JSON array yields no segments.
func DeriveSegmentsJSON(raw []byte) []Segment {
	return DeriveSegments(DecodeEvents(raw))
}

func resolveID(ev TranscriptionEvent, index int) string {
	switch {
	case ev.ID != "":
		return ev.ID
	case ev.SegmentID != "":
		return ev.SegmentID
	default:
		return fmt.Sprintf("%s%d", fallbackIDPrefix, index)
	}
}

func resolveText(ev TranscriptionEvent) string {
	if ev.Text != "" {
		return ev.Text
	}
	return ev.Message
}

// resolveFinal treats an event with no finality information as final.
func resolveFinal(ev TranscriptionEvent) bool {
	switch {
	case ev.Final != nil:
		return *ev.Final
	case ev.IsFinal != nil:
		return *ev.IsFinal
	default:
		return true
	}
}

// Collapse keeps the latest revision of each segment id, positioned where
// the id first appeared.
func Collapse(segments []Segment) []Segment {
	index := make(map[string]int, len(segments))
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if i, ok := index[s.ID]; ok {
			out[i] = s
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}

// TranscriptText joins the non-blank segment texts with newlines.
func TranscriptText(segments []Segment) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		lines = append(lines, s.Text)
	}
	return strings.Join(lines, "\n")
}

// InProgress reports whether the most recent segment is still a partial result.
func InProgress(segments []Segment) bool {
	if len(segments) == 0 {
		return false
	}
	return !segments[len(segments)-1].Final
}
