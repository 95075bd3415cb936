package processor

import "fmt"

// StepError reports that a step body failed. The session's stack is left
// exactly as it was, so the same continuation remains resumable on the next
// envelope.
type StepError struct {
	StoryID   string
	StepIndex int
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("story %q step %d: %v", e.StoryID, e.StepIndex, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
