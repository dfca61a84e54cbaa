package service

import (
	"sync"

	"github.com/openconsole/authgate/pkg/backend"
	"github.com/openconsole/authgate/pkg/idx"
	"github.com/openconsole/authgate/pkg/jwtx"
)

// SessionManager tracks live browser sessions by id. Each session owns its
// backend token pair and refresh lifecycle.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[idx.ID]*backend.Session

	client backend.TokenExchanger
	codec  *jwtx.Codec
	opts   []backend.Option
}

func NewSessionManager(client backend.TokenExchanger, codec *jwtx.Codec, opts ...backend.Option) *SessionManager {
	return &SessionManager{
		sessions: make(map[idx.ID]*backend.Session),
		client:   client,
		codec:    codec,
		opts:     opts,
	}
}

// Create registers a fresh unauthenticated session and returns it.
func (m *SessionManager) Create() *backend.Session {
	sess := backend.NewSession(m.client, m.codec, m.opts...)

	m.mu.Lock()
	m.sessions[sess.ID()] = sess
	m.mu.Unlock()

	return sess
}

// Get returns the session for id, or nil when it does not exist.
func (m *SessionManager) Get(id idx.ID) *backend.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Remove signs the session out and drops it from the registry.
func (m *SessionManager) Remove(id idx.ID) {
	m.mu.Lock()
	sess := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if sess != nil {
		sess.SignOut()
	}
}

// Len reports the number of tracked sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap drops sessions whose refresh lifecycle has terminally expired.
func (m *SessionManager) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sess := range m.sessions {
		if sess.State() == backend.StateExpired {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
