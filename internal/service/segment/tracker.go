package segment

import (
	"sync"

	"github.com/rs/zerolog/log"

	"accountability-call-service/internal/transcript"
)

// EmissionKind says which topic an emission belongs on.
type EmissionKind int

const (
	EmissionPartial EmissionKind = iota
	EmissionFinal
)

func (k EmissionKind) String() string {
	if k == EmissionFinal {
		return "final"
	}
	return "partial"
}

// Emission is a segment revision that has not been published before.
type Emission struct {
	Kind    EmissionKind
	Segment transcript.Segment
}

// DefaultMaxPartials caps partial revisions per segment.
const DefaultMaxPartials = 500

type tracked struct {
	lifecycle *Lifecycle
	lastText  string
	partials  int
}

// Tracker remembers every segment id seen in a session. Snapshots carry the
// whole transcription list each time; Observe reports only what changed.
// Tracking across snapshots relies on ids that are stable upstream: the
// positional fallback ids (transcript-<i>) shift when the list changes shape,
// so a new utterance landing on an id already final is never published.
type Tracker struct {
	mu          sync.Mutex
	maxPartials int
	segments    map[string]*tracked
	order       []string
	onDrop      func(id, reason string)
}

// NewTracker creates a tracker. maxPartials <= 0 disables the cap.
func NewTracker(maxPartials int) *Tracker {
	return &Tracker{
		maxPartials: maxPartials,
		segments:    make(map[string]*tracked),
	}
}

// OnDrop registers a hook called whenever a segment is dropped.
func (t *Tracker) OnDrop(fn func(id, reason string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDrop = fn
}

// Observe returns the emissions implied by a snapshot's segments. Only the
// latest revision of each id is considered, so stale revisions still present
// earlier in the list are never republished.
func (t *Tracker) Observe(segments []transcript.Segment) []Emission {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Emission
	for _, seg := range transcript.Collapse(segments) {
		tr, ok := t.segments[seg.ID]
		if !ok {
			tr = &tracked{lifecycle: NewLifecycle(seg.ID)}
			t.segments[seg.ID] = tr
			t.order = append(t.order, seg.ID)
		}

		if seg.Final {
			if err := tr.lifecycle.EmitFinal(); err != nil {
				continue
			}
			tr.lastText = seg.Text
			out = append(out, Emission{Kind: EmissionFinal, Segment: seg})
			continue
		}

		if ok && seg.Text == tr.lastText {
			continue
		}
		if err := tr.lifecycle.EmitPartial(); err != nil {
			continue
		}
		tr.partials++
		if t.maxPartials > 0 && tr.partials > t.maxPartials {
			t.drop(tr, "max partials exceeded")
			continue
		}
		tr.lastText = seg.Text
		out = append(out, Emission{Kind: EmissionPartial, Segment: seg})
	}
	return out
}

// State returns the lifecycle state of id.
func (t *Tracker) State(id string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.segments[id]
	if !ok {
		return StateOpen, false
	}
	return tr.lifecycle.State(), true
}

// Len returns the number of distinct segment ids seen.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.segments)
}

// Close drops every segment that never became final and closes the rest.
// It returns the number of segments dropped.
func (t *Tracker) Close() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for _, id := range t.order {
		tr := t.segments[id]
		if tr.lifecycle.State() == StateOpen {
			if t.drop(tr, "session closed") {
				dropped++
			}
			continue
		}
		tr.lifecycle.Close()
	}
	return dropped
}

func (t *Tracker) drop(tr *tracked, reason string) bool {
	id := tr.lifecycle.ID()
	prev := tr.lifecycle.State()
	if !tr.lifecycle.Drop() {
		return false
	}
	log.Debug().
		Str("segmentId", id).
		Str("previousState", prev.String()).
		Str("reason", reason).
		Msg("Segment dropped")
	if t.onDrop != nil {
		t.onDrop(id, reason)
	}
	return true
}
