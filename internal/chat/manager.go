package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/move-it/website/internal/responder"
)

// resumeWindow is how long the dialogue state of a closed page session is
// kept for a reconnect under the same page id.
const resumeWindow = 2 * time.Minute

type liveSession struct {
	session *Session
	cancel  context.CancelFunc
}

type pageKey struct {
	visitorID string
	pageID    string
}

type parkedState struct {
	state    responder.State
	parkedAt time.Time
}

// SessionManager tracks the live chat sessions of each visitor, one per
// page load.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]liveSession
	parked map[pageKey]parkedState
	now    func() time.Time
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]liveSession),
		parked: make(map[pageKey]parkedState),
		now:    time.Now,
	}
}

// Get returns the live session for a visitor and page, or nil.
func (m *SessionManager) Get(visitorID, pageID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[visitorID]; ok {
		return sessions[pageID].session
	}
	return nil
}

// Count returns how many pages the visitor has open.
func (m *SessionManager) Count(visitorID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[visitorID])
}

// Register adds a session. cancel stops the connection serving it and may
// be nil. A session already registered under the same page id is closed and
// s takes over its dialogue state, as it does from a page session closed
// less than resumeWindow ago. Call Register before s.Initialize.
func (m *SessionManager) Register(s *Session, cancel context.CancelFunc) {
	key := pageKey{visitorID: s.visitorID, pageID: s.pageID}

	m.mu.Lock()
	if _, exists := m.active[s.visitorID]; !exists {
		m.active[s.visitorID] = make(map[string]liveSession)
	}
	existing, replaced := m.active[s.visitorID][s.pageID]
	m.active[s.visitorID][s.pageID] = liveSession{session: s, cancel: cancel}
	parked, resumable := m.parked[key]
	delete(m.parked, key)
	now := m.now()
	m.mu.Unlock()

	switch {
	case replaced && existing.session != s:
		s.restoreState(existing.session.State())
		existing.stop()
	case resumable && now.Sub(parked.parkedAt) < resumeWindow:
		s.restoreState(parked.state)
	}
	slog.Info("Chat session registered", "visitor_id", s.visitorID, "page_id", s.pageID)
}

// Unregister removes s if it is still the registered session for its page
// and keeps its dialogue state for a reconnect.
func (m *SessionManager) Unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, p := range m.parked {
		if now.Sub(p.parkedAt) >= resumeWindow {
			delete(m.parked, key)
		}
	}

	if sessions, ok := m.active[s.visitorID]; ok {
		if current, exists := sessions[s.pageID]; exists && current.session == s {
			delete(sessions, s.pageID)
			if len(sessions) == 0 {
				delete(m.active, s.visitorID)
			}
			m.parked[pageKey{visitorID: s.visitorID, pageID: s.pageID}] = parkedState{state: s.State(), parkedAt: now}
			slog.Info("Chat session unregistered", "visitor_id", s.visitorID, "page_id", s.pageID)
		}
	}
}

// CloseVisitor terminates every live session of a visitor.
func (m *SessionManager) CloseVisitor(visitorID string) {
	m.mu.Lock()
	sessions := m.active[visitorID]
	delete(m.active, visitorID)
	for key := range m.parked {
		if key.visitorID == visitorID {
			delete(m.parked, key)
		}
	}
	m.mu.Unlock()

	for pageID, live := range sessions {
		live.stop()
		slog.Info("Chat session closed", "visitor_id", visitorID, "page_id", pageID)
	}
}

// CloseAll terminates every live session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]map[string]liveSession)
	clear(m.parked)
	m.mu.Unlock()

	for _, sessions := range active {
		for _, live := range sessions {
			live.stop()
		}
	}
}

func (l liveSession) stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.session.Close()
}
