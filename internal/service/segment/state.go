// Package segment tracks transcript segments across successive snapshots so
// each revision is published once and each final exactly once.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a tracked segment.
type State int

const (
	// StateOpen - segment is still being recognized, partial revisions allowed.
	StateOpen State = iota
	// StateFinalEmitted - the final text has been published.
	StateFinalEmitted
	// StateClosed - session ended after the final was published.
	StateClosed
	// StateDropped - abandoned without a final. Terminal.
	StateDropped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateFinalEmitted:
		return "FINAL_EMITTED"
	case StateClosed:
		return "CLOSED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (CLOSED or DROPPED).
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateDropped
}

// Errors for invalid state transitions.
var (
	ErrSegmentClosed               = errors.New("segment is closed")
	ErrFinalAlreadyEmitted         = errors.New("final already emitted for this segment")
	ErrCannotEmitPartialAfterFinal = errors.New("cannot emit partial after final")
)

// Lifecycle is the state machine for one segment id.
// Safe for concurrent use.
//
//	OPEN ──EmitFinal()──> FINAL_EMITTED ──Close()──> CLOSED
//	  │
//	  ├── EmitPartial() any number of times
//	  └── Drop() ──> DROPPED
type Lifecycle struct {
	mu    sync.RWMutex
	id    string
	state State
}

// NewLifecycle creates a lifecycle in OPEN state.
func NewLifecycle(id string) *Lifecycle {
	return &Lifecycle{
		id:    id,
		state: StateOpen,
	}
}

// ID returns the segment id.
func (l *Lifecycle) ID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsClosed returns true if the segment is in a terminal state.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// IsDropped returns true if the segment was dropped.
func (l *Lifecycle) IsDropped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateDropped
}

// EmitPartial checks that a partial revision may be published.
func (l *Lifecycle) EmitPartial() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateOpen:
		return nil
	case StateFinalEmitted:
		return ErrCannotEmitPartialAfterFinal
	case StateClosed, StateDropped:
		return ErrSegmentClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// EmitFinal transitions OPEN to FINAL_EMITTED. It fails on every later call.
func (l *Lifecycle) EmitFinal() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateOpen:
		l.state = StateFinalEmitted
		return nil
	case StateFinalEmitted:
		return ErrFinalAlreadyEmitted
	case StateClosed, StateDropped:
		return ErrSegmentClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Close moves a segment to CLOSED unless it was dropped. Idempotent.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateDropped {
		l.state = StateClosed
	}
}

// Drop abandons the segment without a final.
// Returns false if the segment was already terminal.
func (l *Lifecycle) Drop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateDropped
	return true
}
