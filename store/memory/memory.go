// Package memory provides an in-memory session store, mainly for tests and
// single-process use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smallnest/reflectgo/store"
)

// MemorySessionStore implements store.SessionStore in memory.
// It is safe for concurrent use.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*store.Session
}

var _ store.SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*store.Session),
	}
}

// Save stores a session.
func (s *MemorySessionStore) Save(ctx context.Context, session *store.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	cp := *session
	s.mu.Lock()
	s.sessions[session.ID] = &cp
	s.mu.Unlock()
	return nil
}

// Load retrieves a session by ID.
func (s *MemorySessionStore) Load(ctx context.Context, sessionID string) (*store.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, sessionID)
	}

	cp := *session
	return &cp, nil
}

// List returns all sessions ordered by creation time.
func (s *MemorySessionStore) List(ctx context.Context) ([]*store.Session, error) {
	s.mu.RLock()
	out := make([]*store.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		cp := *session
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}
