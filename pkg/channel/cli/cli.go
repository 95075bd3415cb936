// Package cli bridges a line-based reader/writer (normally stdin/stdout)
// into the engine. It backs the local chat command and doubles as a scripted
// transport in tests.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"storyline/pkg/channel"
	"storyline/pkg/story"
)

const channelName = "cli"

// Adapter reads one envelope per input line and prints replies to the writer.
type Adapter struct {
	in  io.Reader
	out io.Writer
	log *slog.Logger

	mu sync.Mutex
}

// New builds a CLI adapter over the given streams.
func New(in io.Reader, out io.Writer, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{in: in, out: out, log: log.With("component", "channel.cli")}
}

// Name returns the channel identifier.
func (a *Adapter) Name() string {
	return channelName
}

// User returns the fixed local user every CLI envelope is attributed to.
func (a *Adapter) User() story.UserRef {
	return story.UserRef{ID: "cli:local", ChannelUserID: "local", Channel: channelName}
}

// SessionID returns the session key for the local user.
func (a *Adapter) SessionID() string {
	return "cli:local"
}

// Run emits one session-start envelope, then one text envelope per input
// line, until EOF or cancellation.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	if err := handler(ctx, story.StartEnvelope(a.User(), a.SessionID())); err != nil {
		a.log.Error("Session-start envelope failed", "error", err)
	}

	// Scanning happens in its own goroutine so cancellation is observed
	// even while blocked waiting for the next line. The goroutine itself
	// stays parked in Scan until the reader yields, which is fine for the
	// process-bound streams this adapter runs on.
	lines := make(chan string)
	scanDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case lines <- scanner.Text():
			}
		}
		scanDone <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanDone:
			return err
		case line := <-lines:
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			env := story.TextEnvelope(a.User(), a.SessionID(), text)
			if err := handler(ctx, env); err != nil {
				a.log.Error("Envelope processing failed", "error", err)
			}
		}
	}
}

// Send prints the reply, rendering options as a bracketed list.
func (a *Adapter) Send(_ context.Context, _ story.UserRef, text string, options ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(options) == 0 {
		_, err := fmt.Fprintf(a.out, "%s\n", text)
		return err
	}

	_, err := fmt.Fprintf(a.out, "%s [%s]\n", text, strings.Join(options, " | "))
	return err
}
