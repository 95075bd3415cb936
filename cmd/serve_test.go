package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	channelpkg "storyline/pkg/channel"
	"storyline/pkg/config"
	"storyline/pkg/processor"
	"storyline/pkg/store/memory"
	"storyline/pkg/story"
)

type testAdapter struct{ name string }

func (a testAdapter) Name() string { return a.name }

func (a testAdapter) Run(_ context.Context, _ channelpkg.Handler) error { return nil }

func TestEnabledAdaptersRequiresAtLeastOneChannel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if _, err := enabledAdapters(cfg, nil); err == nil {
		t.Fatal("expected error when no channels are enabled")
	}
}

func TestEnabledChannelNames(t *testing.T) {
	t.Parallel()

	adapters := []channelpkg.Adapter{testAdapter{name: "telegram"}, testAdapter{name: "discord"}}
	if got := enabledChannelNames(adapters); got != "telegram,discord" {
		t.Fatalf("enabledChannelNames = %q, want %q", got, "telegram,discord")
	}
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	t.Parallel()

	store, err := openStore(config.StoreConfig{})
	if err != nil {
		t.Fatalf("openStore error: %v", err)
	}
	if store == nil {
		t.Fatal("expected a store")
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	t.Parallel()

	store, err := openStore(config.StoreConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sessions.db")},
	})
	if err != nil {
		t.Fatalf("openStore error: %v", err)
	}
	if store == nil {
		t.Fatal("expected a store")
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := openStore(config.StoreConfig{Driver: "dynamo"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := openStore(config.StoreConfig{Driver: "redis"}); err == nil {
		t.Fatal("expected error for redis driver without addr")
	}
	if _, err := openStore(config.StoreConfig{Driver: "sqlite"}); err == nil {
		t.Fatal("expected error for sqlite driver without path")
	}
}

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSender) Send(_ context.Context, _ story.UserRef, text string, _ ...string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) last(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		t.Fatal("no replies were sent")
	}
	return s.texts[len(s.texts)-1]
}

func demoProcessor(t *testing.T) (*processor.Processor, *recordingSender) {
	t.Helper()

	registry, err := demoStories()
	if err != nil {
		t.Fatalf("demoStories error: %v", err)
	}
	registry.Freeze()

	sender := &recordingSender{}
	senders := channelpkg.NewRegistry()
	senders.RegisterSender("cli", sender)

	proc, err := processor.New(registry, memory.New(), processor.WithSenders(senders))
	if err != nil {
		t.Fatalf("processor.New error: %v", err)
	}
	return proc, sender
}

func TestRescueKeepsAskingUntilLocationArrives(t *testing.T) {
	t.Parallel()

	proc, sender := demoProcessor(t)
	ctx := context.Background()
	user := story.UserRef{ID: "u1", Channel: "cli"}

	result, err := proc.Process(ctx, story.TextEnvelope(user, "cli:local", "SOS!"))
	if err != nil {
		t.Fatalf("Process(SOS!) error: %v", err)
	}
	if result.Outcome != processor.OutcomeActive {
		t.Fatalf("outcome after SOS! = %v, want active", result.Outcome)
	}

	// A plain text reply is not a location; the story must re-ask and keep
	// waiting instead of ending.
	result, err = proc.Process(ctx, story.TextEnvelope(user, "cli:local", "help me"))
	if err != nil {
		t.Fatalf("Process(help me) error: %v", err)
	}
	if result.Outcome != processor.OutcomeActive {
		t.Fatalf("outcome after re-ask = %v, want active", result.Outcome)
	}
	if got := sender.last(t); !strings.Contains(got, "still need your location") {
		t.Fatalf("reply = %q, want re-ask for location", got)
	}

	location := story.Envelope{
		User:      user,
		SessionID: "cli:local",
		Data:      story.Payload{Location: &story.Location{Lat: 60.17, Long: 24.94}},
	}
	result, err = proc.Process(ctx, location)
	if err != nil {
		t.Fatalf("Process(location) error: %v", err)
	}
	if result.Outcome != processor.OutcomeCompleted {
		t.Fatalf("outcome after location = %v, want completed", result.Outcome)
	}
	if got := sender.last(t); !strings.Contains(got, "sending help") {
		t.Fatalf("reply = %q, want rescue confirmation", got)
	}
}

func TestFeedbackKeepsAskingUntilOptionIsKnown(t *testing.T) {
	t.Parallel()

	proc, sender := demoProcessor(t)
	ctx := context.Background()
	user := story.UserRef{ID: "u1", Channel: "cli"}

	result, err := proc.Process(ctx, story.TextEnvelope(user, "cli:local", "feedback"))
	if err != nil {
		t.Fatalf("Process(feedback) error: %v", err)
	}
	if result.Outcome != processor.OutcomeActive {
		t.Fatalf("outcome after feedback = %v, want active", result.Outcome)
	}

	result, err = proc.Process(ctx, story.TextEnvelope(user, "cli:local", "maybe"))
	if err != nil {
		t.Fatalf("Process(maybe) error: %v", err)
	}
	if result.Outcome != processor.OutcomeActive {
		t.Fatalf("outcome after unknown answer = %v, want active", result.Outcome)
	}
	if got := sender.last(t); !strings.Contains(got, "pick one of the options") {
		t.Fatalf("reply = %q, want option re-ask", got)
	}

	result, err = proc.Process(ctx, story.TextEnvelope(user, "cli:local", "good"))
	if err != nil {
		t.Fatalf("Process(good) error: %v", err)
	}
	if result.Outcome != processor.OutcomeCompleted {
		t.Fatalf("outcome after good = %v, want completed", result.Outcome)
	}
	if got := sender.last(t); !strings.Contains(got, "Glad to hear it") {
		t.Fatalf("reply = %q, want thanks", got)
	}
}

func TestDemoStoriesRespondToTheirTriggers(t *testing.T) {
	t.Parallel()

	registry, err := demoStories()
	if err != nil {
		t.Fatalf("demoStories error: %v", err)
	}
	if registry.Len() != 4 {
		t.Fatalf("story count = %d, want 4", registry.Len())
	}

	user := story.UserRef{ID: "u1", Channel: "cli"}
	cases := map[string]story.Envelope{
		"welcome":  story.StartEnvelope(user, "s1"),
		"greeting": story.TextEnvelope(user, "s1", "hi there!"),
		"rescue":   story.TextEnvelope(user, "s1", "SOS!"),
		"feedback": story.TextEnvelope(user, "s1", "feedback"),
	}
	for wantID, env := range cases {
		def, ok := registry.FindByTrigger(env)
		if !ok {
			t.Fatalf("no story matched envelope for %s", wantID)
		}
		if def.ID() != wantID {
			t.Fatalf("matched %s, want %s", def.ID(), wantID)
		}
	}
}
