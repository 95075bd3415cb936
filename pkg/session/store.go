package session

import "context"

// Store is the durable session backend contract. Implementations must give
// read-your-writes consistency for a single session across consecutive calls;
// the engine reloads before every mutation and persists after it, never
// caching sessions between envelopes.
type Store interface {
	// Load returns the session for id, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (Session, error)
	// Save persists the full session document.
	Save(ctx context.Context, sess Session) error
	// Create persists and returns a new empty-stack session for the user.
	Create(ctx context.Context, userID string) (Session, error)
	// Delete removes the session; deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error
}
