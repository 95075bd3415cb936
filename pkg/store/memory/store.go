// Package memory provides an in-process session store used by tests and the
// local chat command.
package memory

import (
	"context"
	"sync"

	"storyline/pkg/session"
)

// Store keeps sessions in a map guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
}

// New returns an empty store.
func New() *Store {
	return &Store{sessions: make(map[string]session.Session)}
}

// Load returns a copy of the stored session so callers never alias the map.
func (s *Store) Load(_ context.Context, sessionID string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess.Clone(), nil
}

// Save stores a copy of the session.
func (s *Store) Save(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Create persists and returns a new empty-stack session.
func (s *Store) Create(_ context.Context, userID string) (session.Session, error) {
	sess := session.New(userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return sess, nil
}

// Delete removes a session; missing ids are ignored.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Len reports the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
