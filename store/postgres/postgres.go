// Package postgres provides a PostgreSQL-backed session store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/reflectgo/store"
)

// DBPool defines the interface for the database connection pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresSessionStore implements store.SessionStore using PostgreSQL.
type PostgresSessionStore struct {
	pool      DBPool
	tableName string
}

var _ store.SessionStore = (*PostgresSessionStore)(nil)

// PostgresOptions configuration for the Postgres connection.
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "sessions"
}

// NewPostgresSessionStore creates a new Postgres session store.
func NewPostgresSessionStore(ctx context.Context, opts PostgresOptions) (*PostgresSessionStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "sessions"
	}

	return &PostgresSessionStore{
		pool:      pool,
		tableName: tableName,
	}, nil
}

// NewPostgresSessionStoreWithPool creates a session store with an existing
// pool. Useful for testing with mocks.
func NewPostgresSessionStoreWithPool(pool DBPool, tableName string) *PostgresSessionStore {
	if tableName == "" {
		tableName = "sessions"
	}
	return &PostgresSessionStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the sessions table if it doesn't exist.
func (s *PostgresSessionStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			final_answer TEXT NOT NULL,
			messages JSONB NOT NULL,
			iterations_used INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresSessionStore) Close() {
	s.pool.Close()
}

// Save stores a session.
func (s *PostgresSessionStore) Save(ctx context.Context, session *store.Session) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			final_answer = EXCLUDED.final_answer,
			messages = EXCLUDED.messages,
			iterations_used = EXCLUDED.iterations_used,
			outcome = EXCLUDED.outcome,
			metadata = EXCLUDED.metadata,
			created_at = EXCLUDED.created_at
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		session.ID,
		session.FinalAnswer,
		messagesJSON,
		session.IterationsUsed,
		session.Outcome,
		metadataJSON,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Load retrieves a session by ID.
func (s *PostgresSessionStore) Load(ctx context.Context, sessionID string) (*store.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, final_answer, messages, iterations_used, outcome, metadata, created_at
		FROM %s
		WHERE id = $1
	`, s.tableName)

	session, err := scanSession(s.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// List returns all sessions ordered by creation time.
func (s *PostgresSessionStore) List(ctx context.Context) ([]*store.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, final_answer, messages, iterations_used, outcome, metadata, created_at
		FROM %s
		ORDER BY created_at ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query)
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
func (s *PostgresSessionStore) Delete(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*store.Session, error) {
	var session store.Session
	var messagesJSON []byte
	var metadataJSON []byte

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

	if err := json.Unmarshal(messagesJSON, &session.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
		if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &session, nil
}
