/*
Package auth
File: sessions.go
Description:
    Bearer-token sessions. Tokens are opaque 128-bit UUIDs held in memory;
    any successful resolve refreshes the expiry, and a background sweep
    purges stale entries. Minting a token invalidates the user's previous
    one so at most one token per user is live.
*/

package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type session struct {
	userID    int64
	expiresAt time.Time
}

// SessionManager owns the token table.
type SessionManager struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
	byUser   map[int64]string

	done chan struct{}
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		ttl:      ttl,
		sessions: make(map[string]*session),
		byUser:   make(map[int64]string),
		done:     make(chan struct{}),
	}
}

// Mint issues a fresh token for the user, revoking any previous one.
func (m *SessionManager) Mint(userID int64) string {
	token := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byUser[userID]; ok {
		delete(m.sessions, old)
	}
	m.sessions[token] = &session{userID: userID, expiresAt: time.Now().Add(m.ttl)}
	m.byUser[userID] = token
	return token
}

// Resolve maps a token to its user and slides the expiry forward.
func (m *SessionManager) Resolve(token string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return 0, false
	}
	if time.Now().After(s.expiresAt) {
		delete(m.sessions, token)
		delete(m.byUser, s.userID)
		return 0, false
	}
	s.expiresAt = time.Now().Add(m.ttl)
	return s.userID, true
}

// Revoke drops a user's session, if any.
func (m *SessionManager) Revoke(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token, ok := m.byUser[userID]; ok {
		delete(m.sessions, token)
		delete(m.byUser, userID)
	}
}

// StartSweep runs the expiry sweep until Stop is called.
func (m *SessionManager) StartSweep(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *SessionManager) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if now.After(s.expiresAt) {
			delete(m.sessions, token)
			delete(m.byUser, s.userID)
		}
	}
}

// Stop terminates the sweep goroutine.
func (m *SessionManager) Stop() {
	close(m.done)
}
