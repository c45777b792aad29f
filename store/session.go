// Package store persists finished reflection runs as sessions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/reflectgo/reflection"
)

// ErrSessionNotFound is returned when a session ID is unknown to a store.
var ErrSessionNotFound = errors.New("session not found")

// Session is a persisted record of one finished reflection run.
type Session struct {
	ID             string               `json:"id"`
	FinalAnswer    string               `json:"final_answer"`
	Messages       []reflection.Message `json:"messages"`
	IterationsUsed int                  `json:"iterations_used"`
	Outcome        string               `json:"outcome"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// SessionStore defines the interface for session persistence.
type SessionStore interface {
	// Save stores a session, overwriting any existing record with the same ID.
	Save(ctx context.Context, session *Session) error

	// Load retrieves a session by ID.
	Load(ctx context.Context, sessionID string) (*Session, error)

	// List returns all sessions ordered by creation time.
	List(ctx context.Context) ([]*Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error
}

// RecordResult saves a finished run as a new session with a fresh ID.
func RecordResult(ctx context.Context, s SessionStore, result *reflection.Result) (*Session, error) {
	session := &Session{
		ID:             uuid.New().String(),
		FinalAnswer:    result.FinalAnswer,
		Messages:       result.Messages,
		IterationsUsed: result.IterationsUsed,
		Outcome:        string(result.Outcome),
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
