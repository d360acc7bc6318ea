// Package session tracks open chatbot websocket connections.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// DefaultInactivityTimeout ends sockets that have been silent this long.
const DefaultInactivityTimeout = 10 * time.Minute

var ErrNotFound = errors.New("session not found")

// Session is one chat socket. Identity is the caller's email, empty for
// anonymous sockets.
type Session struct {
	ID              string    `json:"session_id"`
	Identity        string    `json:"-"`
	RemoteAddr      string    `json:"remote_addr,omitempty"`
	Status          Status    `json:"status"`
	ActiveRequestID string    `json:"active_request_id,omitempty"`
	MessageCount    int       `json:"message_count"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	now               func() time.Time
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = DefaultInactivityTimeout
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// SetExpireHook registers a callback run for every session the janitor ends.
// The hook runs outside the manager lock.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(identity, remoteAddr string) *Session {
	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		Identity:       identity,
		RemoteAddr:     remoteAddr,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	return m.update(sessionID, func(*Session) {})
}

// BeginMessage marks a chat message as in flight on the socket.
func (m *Manager) BeginMessage(sessionID, requestID string) error {
	return m.update(sessionID, func(s *Session) {
		s.ActiveRequestID = requestID
		s.MessageCount++
	})
}

func (m *Manager) FinishMessage(sessionID string) error {
	return m.update(sessionID, func(s *Session) {
		s.ActiveRequestID = ""
	})
}

func (m *Manager) update(sessionID string, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	fn(s)
	s.LastActivityAt = m.now()
	return nil
}

// End closes a session and forgets it.
func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.ActiveRequestID = ""
	s.LastActivityAt = m.now()
	delete(m.sessions, sessionID)
	return clone(s), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends idle sessions and drops sessions that ended more than
// one timeout ago. Sessions with a message in flight are never expired.
func (m *Manager) expireInactive() []*Session {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		idle := now.Sub(s.LastActivityAt)
		if s.Status == StatusEnded {
			if idle >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if s.ActiveRequestID != "" || idle < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
	return expired
}

// Janitor periodically expires idle sessions. It implements suture.Service.
type Janitor struct {
	Manager  *Manager
	Interval time.Duration
}

func (j Janitor) Serve(ctx context.Context) error {
	interval := j.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.Manager.expireInactive()
		}
	}
}

func (j Janitor) String() string { return "session-janitor" }

func clone(s *Session) *Session {
	c := *s
	return &c
}
