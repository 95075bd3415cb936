package story

import "context"

// ResultKind classifies what a step asked the engine to do next.
type ResultKind int

const (
	// ResultContinue suspends the story at the next step until a future
	// envelope arrives.
	ResultContinue ResultKind = iota
	// ResultComplete ends the story; a suspended parent story, if any,
	// resumes at its current step.
	ResultComplete
	// ResultBranch transfers control to an explicit story and step instead
	// of the natural next step.
	ResultBranch
)

func (k ResultKind) String() string {
	switch k {
	case ResultContinue:
		return "continue"
	case ResultComplete:
		return "complete"
	case ResultBranch:
		return "branch"
	default:
		return "unknown"
	}
}

// StepResult is returned by a step body to direct the dialogue stack.
type StepResult struct {
	Kind        ResultKind
	BranchStory string
	BranchStep  int
}

// Continue requests resumption at the next step on the next envelope.
func Continue() StepResult {
	return StepResult{Kind: ResultContinue}
}

// Complete terminates the story.
func Complete() StepResult {
	return StepResult{Kind: ResultComplete}
}

// Branch transfers to the named story and step.
func Branch(storyID string, stepIndex int) StepResult {
	return StepResult{Kind: ResultBranch, BranchStory: storyID, BranchStep: stepIndex}
}

// Chat lets a step reply to the user the current envelope came from. The
// engine binds it to the right channel before the step runs; step bodies never
// touch channel adapters directly.
type Chat interface {
	// Say sends plain text back to the user.
	Say(ctx context.Context, text string) error
	// SayWithOptions sends text along with quick-reply options. Picking an
	// option delivers its payload as an option envelope.
	SayWithOptions(ctx context.Context, text string, options ...string) error
}

// StepFunc is one unit of story behavior, executed against one envelope.
// Steps are pure with respect to the dialogue stack: they report a StepResult
// and leave all stack mutation to the engine.
type StepFunc func(ctx context.Context, env Envelope, chat Chat) (StepResult, error)
