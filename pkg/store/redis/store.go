// Package redis provides a Redis-backed session store. Sessions are stored as
// JSON documents under a configurable key prefix with an optional TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"storyline/pkg/session"
)

const defaultPrefix = "storyline:session:"

// Store implements session.Store on top of Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the store.
type Option func(*Store)

// WithTTL sets an expiration for session documents. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix overrides the session key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to Redis and returns a store.
func New(addr, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient wraps an existing Redis client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// Load fetches and decodes the session document.
func (s *Store) Load(ctx context.Context, sessionID string) (session.Session, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return session.Session{}, fmt.Errorf("%w: undecodable session document: %v", session.ErrCorrupt, err)
	}
	return sess, nil
}

// Save writes the session document, refreshing the TTL when one is set.
func (s *Store) Save(ctx context.Context, sess session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Create persists and returns a new empty-stack session.
func (s *Store) Create(ctx context.Context, userID string) (session.Session, error) {
	sess := session.New(userID)
	if err := s.Save(ctx, sess); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// Delete removes the session document.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
