package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"storyline/pkg/story"
)

func envFor(sessionID, text string) story.Envelope {
	user := story.UserRef{ID: "u1", Channel: "test"}
	return story.TextEnvelope(user, sessionID, text)
}

func TestEnvelopesForOneSessionArriveInOrder(t *testing.T) {
	const count = 200

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	d := New(func(_ context.Context, env story.Envelope) error {
		mu.Lock()
		got = append(got, env.RawText())
		if len(got) == count {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	t.Cleanup(d.Close)

	ctx := context.Background()
	for i := 0; i < count; i++ {
		if err := d.Enqueue(ctx, envFor("s1", fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for envelopes")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, text := range got {
		if text != fmt.Sprintf("%d", i) {
			t.Fatalf("position %d got %q, want %q", i, text, fmt.Sprintf("%d", i))
		}
	}
}

func TestSessionsDrainConcurrently(t *testing.T) {
	// One session's slow envelope must not delay another session.
	release := make(chan struct{})
	slowStarted := make(chan struct{})
	fastDone := make(chan struct{})

	d := New(func(_ context.Context, env story.Envelope) error {
		switch env.SessionID {
		case "slow":
			close(slowStarted)
			<-release
		case "fast":
			close(fastDone)
		}
		return nil
	})
	t.Cleanup(d.Close)

	ctx := context.Background()
	if err := d.Enqueue(ctx, envFor("slow", "a")); err != nil {
		t.Fatal(err)
	}
	<-slowStarted

	if err := d.Enqueue(ctx, envFor("fast", "b")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fast session was blocked behind slow session")
	}
	close(release)
}

func TestWorkersRetireWhenQueueEmpties(t *testing.T) {
	processed := make(chan struct{}, 1)

	d := New(func(context.Context, story.Envelope) error {
		processed <- struct{}{}
		return nil
	})
	t.Cleanup(d.Close)

	if err := d.Enqueue(context.Background(), envFor("s1", "hello")); err != nil {
		t.Fatal(err)
	}
	<-processed

	deadline := time.After(2 * time.Second)
	for {
		d.mu.Lock()
		active := len(d.queues)
		d.mu.Unlock()
		if active == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("queue table size = %d, want 0", active)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestNoEnvelopeLostAcrossWorkerRetirement(t *testing.T) {
	// Each cycle drains the session's queue so the worker retires, then
	// enqueues again right at the retirement boundary. Every accepted
	// envelope must reach a worker; none may strand on a retired queue.
	const cycles = 300

	var mu sync.Mutex
	processed := 0
	ping := make(chan struct{}, 1)

	d := New(func(context.Context, story.Envelope) error {
		mu.Lock()
		processed++
		mu.Unlock()
		ping <- struct{}{}
		return nil
	})
	t.Cleanup(d.Close)

	ctx := context.Background()
	for i := 0; i < cycles; i++ {
		if err := d.Enqueue(ctx, envFor("s1", "hello")); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
		select {
		case <-ping:
		case <-time.After(2 * time.Second):
			t.Fatalf("cycle %d: envelope was accepted but never processed", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if processed != cycles {
		t.Fatalf("processed = %d, want %d", processed, cycles)
	}
}

func TestFullQueueSendersAreDrainedBeforeRetirement(t *testing.T) {
	// With a queue of one and a stalled worker, extra senders block for
	// capacity. Their reservations must keep the worker alive until every
	// envelope is delivered, after which the worker retires normally.
	const total = 4

	release := make(chan struct{})
	var mu sync.Mutex
	processed := 0

	d := New(func(context.Context, story.Envelope) error {
		<-release
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	}, WithQueueSize(1))
	t.Cleanup(d.Close)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Enqueue(ctx, envFor("s1", "hello")); err != nil {
				t.Errorf("enqueue failed: %v", err)
			}
		}()
	}

	close(release)
	wg.Wait()

	deadline := time.After(2 * time.Second)
	for {
		d.mu.Lock()
		active := len(d.queues)
		d.mu.Unlock()

		mu.Lock()
		count := processed
		mu.Unlock()

		if active == 0 && count == total {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("processed = %d (want %d), queue table size = %d (want 0)", count, total, active)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	d := New(func(context.Context, story.Envelope) error { return nil })
	d.Close()

	if err := d.Enqueue(context.Background(), envFor("s1", "hello")); err == nil {
		t.Fatal("expected enqueue to fail after close")
	}
}

func TestEnqueueRejectsMissingSessionID(t *testing.T) {
	d := New(func(context.Context, story.Envelope) error { return nil })
	t.Cleanup(d.Close)

	if err := d.Enqueue(context.Background(), story.Envelope{}); err == nil {
		t.Fatal("expected enqueue to reject envelope without session id")
	}
}

func TestEventsReachSubscribers(t *testing.T) {
	d := New(func(context.Context, story.Envelope) error { return nil })
	t.Cleanup(d.Close)

	events, unsubscribe := d.SubscribeEvents(context.Background(), 8)
	defer unsubscribe()

	ok := d.PublishEvent(context.Background(), Event{
		Type:      EventProcessed,
		SessionID: "s1",
		StoryID:   "greeting",
	})
	if !ok {
		t.Fatal("expected publish to succeed")
	}

	select {
	case event := <-events:
		if event.Type != EventProcessed || event.StoryID != "greeting" {
			t.Fatalf("event = %+v", event)
		}
		if event.At.IsZero() {
			t.Fatal("expected publish to stamp the event time")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	d := New(func(context.Context, story.Envelope) error { return nil })
	t.Cleanup(d.Close)

	_, unsubscribe := d.SubscribeEvents(context.Background(), 1)
	defer unsubscribe()

	// The buffer holds one event; the rest must drop without blocking.
	for i := 0; i < 10; i++ {
		if ok := d.PublishEvent(context.Background(), Event{Type: EventProcessed}); !ok {
			t.Fatal("expected publish to succeed")
		}
	}
}
