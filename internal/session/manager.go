// Package session tracks client conversation sessions and the WebSocket
// connections attached to them.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session is one client conversation bound to a provider.
type Session struct {
	ID           string                 `json:"id"`
	Provider     string                 `json:"provider"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastActiveAt time.Time              `json:"lastActiveAt"`
	Messages     int                    `json:"messages"`
	Data         map[string]interface{} `json:"data,omitempty"`

	conns map[string]struct{}
}

// Stats summarizes manager state for the status endpoint.
type Stats struct {
	Total       int            `json:"total"`
	Connections int            `json:"connections"`
	ByProvider  map[string]int `json:"byProvider"`
}

// Manager owns all live sessions. Sessions expire after ttl of inactivity.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byConn   map[string]string // connection id -> session id
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewManager creates a session manager. ttl <= 0 disables expiry.
func NewManager(ttl time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byConn:   make(map[string]string),
		ttl:      ttl,
		logger:   logger.With().Str("component", "session").Logger(),
	}
}

// Create starts a new session for the given provider.
func (m *Manager) Create(providerName string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		Provider:     providerName,
		CreatedAt:    now,
		LastActiveAt: now,
		Data:         make(map[string]interface{}),
		conns:        make(map[string]struct{}),
	}
	m.sessions[s.ID] = s
	m.logger.Debug().Str("session", s.ID).Str("provider", providerName).Msg("Session created")
	return s
}

// Get returns a session by id and refreshes its activity time. Expired
// sessions are removed and reported as missing.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.expired(s, time.Now()) {
		m.remove(s)
		return nil, false
	}
	s.LastActiveAt = time.Now()
	return s, true
}

// Touch refreshes a session's activity time and bumps its message count.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastActiveAt = time.Now()
		s.Messages++
	}
}

// AttachConn binds a connection to a session, creating the session when the
// id is unknown. Returns the session the connection now belongs to.
func (m *Manager) AttachConn(connID, sessionID, providerName string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || m.expired(s, time.Now()) {
		now := time.Now()
		s = &Session{
			ID:           uuid.NewString(),
			Provider:     providerName,
			CreatedAt:    now,
			LastActiveAt: now,
			Data:         make(map[string]interface{}),
			conns:        make(map[string]struct{}),
		}
		m.sessions[s.ID] = s
	}
	s.conns[connID] = struct{}{}
	s.LastActiveAt = time.Now()
	m.byConn[connID] = s.ID
	return s
}

// DetachConn unbinds a connection. The session itself stays until it expires.
func (m *Manager) DetachConn(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID, ok := m.byConn[connID]
	if !ok {
		return
	}
	delete(m.byConn, connID)
	if s, ok := m.sessions[sessionID]; ok {
		delete(s.conns, connID)
	}
}

// Remove deletes a session and its connection bindings.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	m.remove(s)
	return true
}

// CleanupExpired drops sessions idle past the ttl and returns how many were
// removed. Sessions with live connections are kept.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, s := range m.sessions {
		if m.expired(s, now) {
			m.remove(s)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info().Int("removed", removed).Msg("Expired sessions cleaned up")
	}
	return removed
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns snapshot copies of all sessions.
func (m *Manager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, *s)
	}
	return result
}

// GetStats aggregates session counts for reporting.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Total:       len(m.sessions),
		Connections: len(m.byConn),
		ByProvider:  make(map[string]int),
	}
	for _, s := range m.sessions {
		stats.ByProvider[s.Provider]++
	}
	return stats
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	if m.ttl <= 0 || len(s.conns) > 0 {
		return false
	}
	return now.Sub(s.LastActiveAt) > m.ttl
}

// remove must be called with the lock held.
func (m *Manager) remove(s *Session) {
	for connID := range s.conns {
		delete(m.byConn, connID)
	}
	delete(m.sessions, s.ID)
}
