// Package source defines producers of call snapshots.
package source

import (
	"context"

	"accountability-call-service/internal/service/session"
)

// Sink receives snapshots. *session.Manager satisfies it.
type Sink interface {
	Push(ctx context.Context, snap session.Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap session.Snapshot)

// Push calls f.
func (f SinkFunc) Push(ctx context.Context, snap session.Snapshot) {
	f(ctx, snap)
}

// Source observes a call (a LiveKit room, a recording, a script) and pushes a
// snapshot to the sink whenever the roster or the transcription list changes.
type Source interface {
	// Start begins observing. It returns once the source is running.
	Start(ctx context.Context, sink Sink) error

	// Close stops the source and releases its resources.
	Close() error
}
