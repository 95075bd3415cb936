// Package sqlite provides a file-backed session store using the pure-Go
// sqlite driver. The dialogue stack is stored as a JSON column.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"storyline/pkg/session"
)

// Store implements session.Store on top of a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		stack TEXT NOT NULL DEFAULT '[]',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sessions table: %w", err)
	}

	return &Store{db: db}, nil
}

// Load fetches the session row and decodes its stack.
func (s *Store) Load(ctx context.Context, sessionID string) (session.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, stack FROM sessions WHERE id = ?`, sessionID)

	var sess session.Session
	var stackJSON string
	if err := row.Scan(&sess.ID, &sess.UserID, &stackJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("query session: %w", err)
	}

	if err := json.Unmarshal([]byte(stackJSON), &sess.Stack); err != nil {
		return session.Session{}, fmt.Errorf("%w: undecodable stack column: %v", session.ErrCorrupt, err)
	}
	return sess, nil
}

// Save upserts the session row.
func (s *Store) Save(ctx context.Context, sess session.Session) error {
	stack := sess.Stack
	if stack == nil {
		stack = []session.Frame{}
	}
	stackJSON, err := json.Marshal(stack)
	if err != nil {
		return fmt.Errorf("marshal stack: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, stack, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, stack = excluded.stack, updated_at = CURRENT_TIMESTAMP`,
		sess.ID, sess.UserID, string(stackJSON))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
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

// Delete removes the session row.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
