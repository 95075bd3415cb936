package session

import (
	"fmt"

	"storyline/pkg/story"
)

// Stack operations are pure transformations: each returns a new session value
// and leaves the receiver untouched. Persistence is the caller's concern,
// which keeps the stack logic testable without a store.

// ActiveFrame returns the last frame, the only one an envelope may advance.
func (s Session) ActiveFrame() (Frame, bool) {
	if len(s.Stack) == 0 {
		return Frame{}, false
	}
	return s.Stack[len(s.Stack)-1], true
}

// Push appends a frame for the story at step 0. Pushing onto a non-empty
// stack suspends the current frame; it resumes when the new story completes.
func (s Session) Push(reg *story.Registry, storyID string) (Session, error) {
	if _, ok := reg.Get(storyID); !ok {
		return s, fmt.Errorf("push story %q: %w", storyID, story.ErrUnknownStory)
	}

	next := s.Clone()
	next.Stack = append(next.Stack, Frame{StoryID: storyID})
	return next, nil
}

// Advance moves the active frame to its next step. When the story has no
// further step the frame is popped instead: the story is complete and the
// suspended parent frame, if any, becomes active again at its current index.
func (s Session) Advance(reg *story.Registry) (Session, error) {
	frame, ok := s.ActiveFrame()
	if !ok {
		return s, fmt.Errorf("advance: empty stack")
	}

	count, err := reg.StepCount(frame.StoryID)
	if err != nil {
		return s, fmt.Errorf("advance story %q: %w", frame.StoryID, story.ErrUnknownStory)
	}

	next := s.Clone()
	if frame.StepIndex+1 >= count {
		next.Stack = next.Stack[:len(next.Stack)-1]
		return next, nil
	}

	next.Stack[len(next.Stack)-1].StepIndex = frame.StepIndex + 1
	return next, nil
}

// Pop removes the active frame unconditionally.
func (s Session) Pop() Session {
	if len(s.Stack) == 0 {
		return s
	}

	next := s.Clone()
	next.Stack = next.Stack[:len(next.Stack)-1]
	return next
}

// ReplaceTop swaps the active frame for an explicit (story, step) target, the
// branch/goto used when a step transfers control instead of advancing.
func (s Session) ReplaceTop(reg *story.Registry, storyID string, stepIndex int) (Session, error) {
	if len(s.Stack) == 0 {
		return s, fmt.Errorf("replace top: empty stack")
	}

	count, err := reg.StepCount(storyID)
	if err != nil {
		return s, fmt.Errorf("branch to story %q: %w", storyID, story.ErrUnknownStory)
	}
	if stepIndex < 0 || stepIndex >= count {
		return s, fmt.Errorf("branch to story %q step %d: %w", storyID, stepIndex, story.ErrUnknownStep)
	}

	next := s.Clone()
	next.Stack[len(next.Stack)-1] = Frame{StoryID: storyID, StepIndex: stepIndex}
	return next, nil
}
