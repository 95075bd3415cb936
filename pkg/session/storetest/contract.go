// Package storetest holds the behavioral contract every session.Store
// implementation must satisfy. Store packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"storyline/pkg/session"
)

// RunStoreContract exercises the session.Store contract against an empty
// store.
func RunStoreContract(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()

	// Missing sessions report ErrNotFound.
	if _, err := store.Load(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Load(missing) err = %v, want ErrNotFound", err)
	}

	// Create returns a persisted empty-stack session.
	created, err := store.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create returned a session without an id")
	}
	if !created.Idle() {
		t.Fatalf("new session stack = %+v, want empty", created.Stack)
	}

	loaded, err := store.Load(ctx, created.ID)
	if err != nil {
		t.Fatalf("Load after Create failed: %v", err)
	}
	if loaded.UserID != "user-1" {
		t.Fatalf("user id = %q, want %q", loaded.UserID, "user-1")
	}

	// Save is read-your-writes: a mutated stack comes back intact.
	loaded.Stack = []session.Frame{
		{StoryID: "survey", StepIndex: 1},
		{StoryID: "greeting", StepIndex: 0},
	}
	if err := store.Save(ctx, loaded); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := store.Load(ctx, created.ID)
	if err != nil {
		t.Fatalf("Load after Save failed: %v", err)
	}
	if len(reloaded.Stack) != 2 {
		t.Fatalf("stack depth = %d, want 2", len(reloaded.Stack))
	}
	if reloaded.Stack[0] != (session.Frame{StoryID: "survey", StepIndex: 1}) {
		t.Fatalf("frame 0 = %+v, want survey step 1", reloaded.Stack[0])
	}
	if reloaded.Stack[1] != (session.Frame{StoryID: "greeting", StepIndex: 0}) {
		t.Fatalf("frame 1 = %+v, want greeting step 0", reloaded.Stack[1])
	}

	// Delete removes the session; deleting again is not an error.
	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, created.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Load after Delete err = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("repeated Delete failed: %v", err)
	}
}
