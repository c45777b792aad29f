// Package redis provides a Redis-backed session store.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/reflectgo/store"
)

// RedisSessionStore implements store.SessionStore using Redis.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.SessionStore = (*RedisSessionStore)(nil)

// RedisOptions configuration for the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "reflect:"
	TTL      time.Duration // Expiration for sessions, default 0 (no expiration)
}

// NewRedisSessionStore creates a new Redis session store.
func NewRedisSessionStore(opts RedisOptions) *RedisSessionStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "reflect:"
	}

	return &RedisSessionStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

// Close closes the underlying client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

func (s *RedisSessionStore) sessionKey(id string) string {
	return fmt.Sprintf("%ssession:%s", s.prefix, id)
}

func (s *RedisSessionStore) indexKey() string {
	return s.prefix + "sessions"
}

// Save stores a session.
func (s *RedisSessionStore) Save(ctx context.Context, session *store.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), session.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.indexKey(), s.ttl)
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Load retrieves a session by ID.
func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*store.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to load session from redis: %w", err)
	}

	var session store.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// List returns all sessions ordered by creation time.
func (s *RedisSessionStore) List(ctx context.Context) ([]*store.Session, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions from redis: %w", err)
	}

	sessions := make([]*store.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.Load(ctx, id)
		if err != nil {
			// Expired sessions may linger in the index.
			continue
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Delete removes a session.
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.indexKey(), sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}
