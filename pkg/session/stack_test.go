package session

import (
	"context"
	"errors"
	"testing"

	"storyline/pkg/story"
)

func testRegistry(t *testing.T) *story.Registry {
	t.Helper()

	reg := story.NewRegistry()
	noop := func(context.Context, story.Envelope, story.Chat) (story.StepResult, error) {
		return story.Continue(), nil
	}

	greeting := story.Define("greeting", story.OnText("hi")).AddStep(noop).MustBuild()
	survey := story.Define("survey", story.OnText("survey")).
		AddStep(noop).
		AddStep(noop).
		AddStep(noop).
		MustBuild()

	if err := reg.Register(greeting); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(survey); err != nil {
		t.Fatal(err)
	}
	reg.Freeze()
	return reg
}

func TestPushStartsStoryAtStepZero(t *testing.T) {
	reg := testRegistry(t)
	sess := New("u1")

	next, err := sess.Push(reg, "survey")
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}

	frame, ok := next.ActiveFrame()
	if !ok {
		t.Fatal("expected an active frame")
	}
	if frame.StoryID != "survey" || frame.StepIndex != 0 {
		t.Fatalf("frame = %+v, want survey step 0", frame)
	}
	if !sess.Idle() {
		t.Fatal("push must not mutate the original session")
	}
}

func TestPushUnknownStoryFails(t *testing.T) {
	reg := testRegistry(t)
	sess := New("u1")

	_, err := sess.Push(reg, "missing")
	if !errors.Is(err, story.ErrUnknownStory) {
		t.Fatalf("err = %v, want ErrUnknownStory", err)
	}
}

func TestAdvanceMovesToNextStep(t *testing.T) {
	reg := testRegistry(t)
	sess, _ := New("u1").Push(reg, "survey")

	next, err := sess.Advance(reg)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	frame, _ := next.ActiveFrame()
	if frame.StepIndex != 1 {
		t.Fatalf("step index = %d, want 1", frame.StepIndex)
	}
}

func TestAdvancePastLastStepPopsFrame(t *testing.T) {
	reg := testRegistry(t)
	sess, _ := New("u1").Push(reg, "greeting")

	next, err := sess.Advance(reg)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if !next.Idle() {
		t.Fatalf("stack = %+v, want empty after completing single-step story", next.Stack)
	}
}

func TestCompletionResumesParentWithoutAdvancingIt(t *testing.T) {
	reg := testRegistry(t)

	sess, _ := New("u1").Push(reg, "survey")
	sess, _ = sess.Advance(reg) // survey at step 1
	sess, _ = sess.Push(reg, "greeting")

	// Completing the nested story must expose the parent at its
	// current index, not advance it.
	next, err := sess.Advance(reg)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	frame, ok := next.ActiveFrame()
	if !ok {
		t.Fatal("expected parent frame to become active")
	}
	if frame.StoryID != "survey" || frame.StepIndex != 1 {
		t.Fatalf("frame = %+v, want survey step 1", frame)
	}
}

func TestReplaceTopBranches(t *testing.T) {
	reg := testRegistry(t)
	sess, _ := New("u1").Push(reg, "greeting")

	next, err := sess.ReplaceTop(reg, "survey", 2)
	if err != nil {
		t.Fatalf("replace top failed: %v", err)
	}

	frame, _ := next.ActiveFrame()
	if frame.StoryID != "survey" || frame.StepIndex != 2 {
		t.Fatalf("frame = %+v, want survey step 2", frame)
	}
	if len(next.Stack) != 1 {
		t.Fatalf("stack depth = %d, want 1", len(next.Stack))
	}
}

func TestReplaceTopValidatesTarget(t *testing.T) {
	reg := testRegistry(t)
	sess, _ := New("u1").Push(reg, "greeting")

	if _, err := sess.ReplaceTop(reg, "missing", 0); !errors.Is(err, story.ErrUnknownStory) {
		t.Fatalf("err = %v, want ErrUnknownStory", err)
	}
	if _, err := sess.ReplaceTop(reg, "survey", 3); !errors.Is(err, story.ErrUnknownStep) {
		t.Fatalf("err = %v, want ErrUnknownStep", err)
	}
}

func TestPopOnEmptyStackIsNoop(t *testing.T) {
	sess := New("u1")
	if got := sess.Pop(); !got.Idle() {
		t.Fatal("expected pop on empty stack to stay empty")
	}
}

func TestValidate(t *testing.T) {
	reg := testRegistry(t)

	good := Session{ID: "s1", UserID: "u1", Stack: []Frame{{StoryID: "survey", StepIndex: 2}}}
	if err := good.Validate(reg); err != nil {
		t.Fatalf("expected valid session, got %v", err)
	}

	unknown := Session{ID: "s1", Stack: []Frame{{StoryID: "missing"}}}
	if err := unknown.Validate(reg); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}

	outOfRange := Session{ID: "s1", Stack: []Frame{{StoryID: "greeting", StepIndex: 1}}}
	if err := outOfRange.Validate(reg); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}

	noID := Session{Stack: nil}
	if err := noID.Validate(reg); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}
