// Package channel defines the boundary between the dialogue engine and
// external messaging transports.
package channel

import (
	"context"
	"sync"

	"storyline/pkg/story"
)

// Handler consumes one normalized inbound envelope.
type Handler func(context.Context, story.Envelope) error

// Adapter bridges one external transport (for example Telegram) into the
// engine. Run normalizes raw channel payloads into envelopes and feeds them to
// the handler until the context is cancelled.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

// Sender delivers outbound messages to a user on one channel. Options are
// rendered as quick replies where the transport supports them; picking one
// comes back as an option envelope.
type Sender interface {
	Send(ctx context.Context, user story.UserRef, text string, options ...string) error
}

// Registry holds the attached channel senders. The engine resolves a sender
// by the channel name carried on an envelope's UserRef; it never inspects
// transport payloads itself.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

// NewRegistry returns an empty sender registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// RegisterSender attaches a sender under the channel name.
func (r *Registry) RegisterSender(name string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[name] = sender
}

// Sender returns the sender registered for the channel name.
func (r *Registry) Sender(name string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.senders[name]
	return sender, ok
}
