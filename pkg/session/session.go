// Package session holds the durable per-user dialogue state: the session
// document, the dialogue stack operations, and the store contract adapters
// implement.
package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"storyline/pkg/story"
)

var (
	// ErrNotFound is returned by stores when no session exists for an id.
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt is returned when a loaded session document fails
	// validation against the story registry.
	ErrCorrupt = errors.New("corrupt session")
)

// Frame is one entry in a session's dialogue stack: a story and the step that
// will consume the next envelope.
type Frame struct {
	StoryID   string `json:"story_id"`
	StepIndex int    `json:"step_index"`
}

// Session is the durable record of one user's dialogue position. The last
// stack frame is the active one; an empty stack means the next envelope is
// matched against the registry from scratch.
type Session struct {
	ID     string  `json:"id"`
	UserID string  `json:"user_id"`
	Stack  []Frame `json:"stack"`
}

// New returns a fresh empty-stack session for the user.
func New(userID string) Session {
	return Session{ID: uuid.NewString(), UserID: userID}
}

// Clone returns a deep copy; stack mutations on the copy never alias the
// original.
func (s Session) Clone() Session {
	clone := s
	if s.Stack != nil {
		clone.Stack = make([]Frame, len(s.Stack))
		copy(clone.Stack, s.Stack)
	}
	return clone
}

// Idle reports whether the session has no story in progress.
func (s Session) Idle() bool {
	return len(s.Stack) == 0
}

// Validate checks a loaded session document before the engine trusts it.
// Every frame must reference a registered story and an in-range step index.
func (s Session) Validate(reg *story.Registry) error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty session id", ErrCorrupt)
	}

	for i, frame := range s.Stack {
		count, err := reg.StepCount(frame.StoryID)
		if err != nil {
			return fmt.Errorf("%w: frame %d references story %q: %v", ErrCorrupt, i, frame.StoryID, err)
		}
		if frame.StepIndex < 0 || frame.StepIndex >= count {
			return fmt.Errorf("%w: frame %d references step %d of story %q (%d steps)",
				ErrCorrupt, i, frame.StepIndex, frame.StoryID, count)
		}
	}
	return nil
}
