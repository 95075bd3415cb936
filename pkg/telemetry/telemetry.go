// Package telemetry reports engine activity to an analytics sink. The engine
// calls the Sink interface at well-defined points; implementations decide
// where the numbers go.
package telemetry

// Sink receives dialogue-engine events.
type Sink interface {
	// MessageReceived fires for every envelope entering the processor.
	MessageReceived(channel string)
	// StoryEntered fires when an idle session matches a trigger.
	StoryEntered(storyID string)
	// StepExecuted fires after a step body returns without error.
	StepExecuted(storyID string, stepIndex int)
	// StoryCompleted fires when a story's frame leaves the stack.
	StoryCompleted(storyID string)
	// Unhandled fires when no trigger matches an idle-session envelope.
	Unhandled(channel string)
	// ProcessingFailed fires when an envelope fails with an error.
	ProcessingFailed(channel string)
}

// Nop discards all events. It is the default sink.
type Nop struct{}

func (Nop) MessageReceived(string) {}

func (Nop) StoryEntered(string) {}

func (Nop) StepExecuted(string, int) {}

func (Nop) StoryCompleted(string) {}

func (Nop) Unhandled(string) {}

func (Nop) ProcessingFailed(string) {}
