package dispatch

import (
	"context"
	"sync"
	"time"
)

// EventType classifies dispatcher outcome events.
type EventType string

const (
	EventProcessed EventType = "processed"
	EventUnhandled EventType = "unhandled"
	EventFailed    EventType = "failed"
)

// Event describes the outcome of one processed envelope. The gateway
// publishes these; status surfaces and tests subscribe.
type Event struct {
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	Channel   string    `json:"channel,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	StoryID   string    `json:"story_id,omitempty"`
	StepIndex int       `json:"step_index,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// PublishEvent fans an event out to all subscribers. Slow subscribers drop
// events instead of blocking the publisher.
func (d *Dispatcher) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-d.done:
		return false
	default:
	}

	d.mu.Lock()
	subs := make([]chan Event, 0, len(d.eventSubscribers))
	for _, ch := range d.eventSubscribers {
		subs = append(subs, ch)
	}
	d.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}

	return true
}

// SubscribeEvents returns a buffered event channel and an unsubscribe
// function. The channel closes on unsubscribe or dispatcher close.
func (d *Dispatcher) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultQueueSize
	}

	ch := make(chan Event, buffer)

	d.mu.Lock()
	select {
	case <-d.done:
		d.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := d.nextEventSubscriberID
	d.nextEventSubscriberID++
	d.eventSubscribers[id] = ch
	d.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			d.mu.Lock()
			if eventCh, ok := d.eventSubscribers[id]; ok {
				delete(d.eventSubscribers, id)
				close(eventCh)
			}
			d.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-d.done:
		}
	}()

	return ch, unsubscribe
}
