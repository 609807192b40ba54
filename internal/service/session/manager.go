package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrMissingRoom is returned for snapshots without a room name.
var ErrMissingRoom = errors.New("snapshot has no room")

// Manager keeps one Session per room.
type Manager struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions share opts.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Session returns the session for room, creating it on first use.
func (m *Manager) Session(room string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[room]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[room]; ok {
		return s
	}
	s = New(room, m.opts)
	m.sessions[room] = s
	m.opts.Metrics.RecordSessionOpened()
	log.Info().Str("room", room).Msg("Session opened")
	return s
}

// Apply routes snap to its room's session.
func (m *Manager) Apply(ctx context.Context, snap Snapshot) (View, error) {
	if snap.Room == "" {
		return View{}, ErrMissingRoom
	}
	return m.Session(snap.Room).Apply(ctx, snap), nil
}

// Push is the fire-and-forget form of Apply used by sources.
func (m *Manager) Push(ctx context.Context, snap Snapshot) {
	if _, err := m.Apply(ctx, snap); err != nil {
		log.Warn().Err(err).Str("origin", snap.Origin).Msg("Snapshot rejected")
	}
}

// View returns the latest view of room.
func (m *Manager) View(room string) (View, bool) {
	m.mu.RLock()
	s, ok := m.sessions[room]
	m.mu.RUnlock()
	if !ok {
		return View{}, false
	}
	return s.View()
}

// Rooms lists rooms with a session, sorted.
func (m *Manager) Rooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]string, 0, len(m.sessions))
	for room := range m.sessions {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Close closes and forgets the session of room.
func (m *Manager) Close(room string) {
	m.mu.Lock()
	s, ok := m.sessions[room]
	delete(m.sessions, room)
	m.mu.Unlock()
	if ok {
		s.Close()
		m.opts.Metrics.RecordSessionClosed()
	}
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	for _, room := range m.Rooms() {
		m.Close(room)
	}
}
