package session

import (
	"context"
	"sync"
)

// lockEntry pairs the per-session mutex with a reference count so idle
// entries can be dropped from the map.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locks serializes the load-execute-persist window per session. Two envelopes
// for the same session never mutate the stack concurrently; envelopes for
// different sessions proceed independently.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewLocks returns an empty lock table.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*lockEntry)}
}

func (l *Locks) acquire(sessionID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &lockEntry{}
		l.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

func (l *Locks) release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[sessionID]
	if !ok {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, sessionID)
	}
}

// WithLock runs fn while holding the session's lock.
func (l *Locks) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := l.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.release(sessionID)
	}()

	return fn(ctx)
}
