// Package sqlite provides a SQLite-backed session store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/reflectgo/store"
)

// SqliteSessionStore implements store.SessionStore using SQLite.
type SqliteSessionStore struct {
	db        *sql.DB
	tableName string
}

var _ store.SessionStore = (*SqliteSessionStore)(nil)

// SqliteOptions configuration for the SQLite connection.
type SqliteOptions struct {
	Path      string
	TableName string // Default "sessions"
}

// NewSqliteSessionStore creates a new SQLite session store and initializes
// its schema.
func NewSqliteSessionStore(opts SqliteOptions) (*SqliteSessionStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "sessions"
	}

	s := &SqliteSessionStore{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the sessions table if it doesn't exist.
func (s *SqliteSessionStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			final_answer TEXT NOT NULL,
			messages TEXT NOT NULL,
			iterations_used INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		);
	`, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqliteSessionStore) Close() error {
	return s.db.Close()
}

// Save stores a session.
func (s *SqliteSessionStore) Save(ctx context.Context, session *store.Session) error {
	messagesJSON, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, final_answer, messages, iterations_used, outcome, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			final_answer = excluded.final_answer,
			messages = excluded.messages,
			iterations_used = excluded.iterations_used,
			outcome = excluded.outcome,
			metadata = excluded.metadata,
			created_at = excluded.created_at
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		session.ID,
		session.FinalAnswer,
		string(messagesJSON),
		session.IterationsUsed,
		session.Outcome,
		string(metadataJSON),
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Load retrieves a session by ID.
func (s *SqliteSessionStore) Load(ctx context.Context, sessionID string) (*store.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, final_answer, messages, iterations_used, outcome, metadata, created_at
		FROM %s
		WHERE id = ?
	`, s.tableName)

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// List returns all sessions ordered by creation time.
func (s *SqliteSessionStore) List(ctx context.Context) ([]*store.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, final_answer, messages, iterations_used, outcome, metadata, created_at
		FROM %s
		ORDER BY created_at ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*store.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// Delete removes a session.
func (s *SqliteSessionStore) Delete(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	_, err := s.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*store.Session, error) {
	var session store.Session
	var messagesJSON string
	var metadataJSON sql.NullString

	err := row.Scan(
		&session.ID,
		&session.FinalAnswer,
		&messagesJSON,
		&session.IterationsUsed,
		&session.Outcome,
		&metadataJSON,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messagesJSON), &session.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &session, nil
}
