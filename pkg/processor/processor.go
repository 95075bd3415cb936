// Package processor dispatches inbound envelopes against per-session dialogue
// state: it decides whether an envelope resumes an in-progress story or opens
// a new one, executes exactly one step, and persists the resulting stack.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storyline/pkg/channel"
	"storyline/pkg/session"
	"storyline/pkg/story"
	"storyline/pkg/telemetry"
)

// Outcome classifies the result of processing one envelope.
type Outcome int

const (
	// OutcomeUnhandled means no story matched an idle-session envelope.
	// This is a normal result, not an error; the channel may choose a
	// fallback response.
	OutcomeUnhandled Outcome = iota
	// OutcomeActive means a step ran and a story is awaiting the next
	// envelope.
	OutcomeActive
	// OutcomeCompleted means a step ran and the stack is now empty.
	OutcomeCompleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnhandled:
		return "unhandled"
	case OutcomeActive:
		return "active"
	case OutcomeCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Result describes what processing one envelope did.
type Result struct {
	Outcome   Outcome
	SessionID string
	StoryID   string
	StepIndex int
}

// SenderLookup resolves the outbound sender for a channel name. Satisfied by
// *channel.Registry.
type SenderLookup interface {
	Sender(name string) (channel.Sender, bool)
}

// Processor is the engine's dispatcher. All session mutation funnels through
// Process, which serializes the load-execute-persist window per session.
type Processor struct {
	registry *story.Registry
	store    session.Store
	locks    *session.Locks
	senders  SenderLookup
	sink     telemetry.Sink
	log      *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithTelemetry attaches an analytics sink.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(p *Processor) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithLogger sets the processor logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Processor) {
		if log != nil {
			p.log = log.With("component", "processor")
		}
	}
}

// WithSenders attaches the outbound sender registry steps reply through.
func WithSenders(senders SenderLookup) Option {
	return func(p *Processor) {
		p.senders = senders
	}
}

// New builds a processor over a frozen story registry and a session store.
func New(registry *story.Registry, store session.Store, opts ...Option) (*Processor, error) {
	if registry == nil {
		return nil, errors.New("story registry is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}

	p := &Processor{
		registry: registry,
		store:    store,
		locks:    session.NewLocks(),
		sink:     telemetry.Nop{},
		log:      slog.Default().With("component", "processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process routes one envelope: load session, execute at most one step,
// persist the new stack, report the outcome. Envelopes for the same session
// serialize; envelopes for different sessions run concurrently. On any error
// the persisted session is left unchanged.
func (p *Processor) Process(ctx context.Context, env story.Envelope) (Result, error) {
	if env.SessionID == "" {
		return Result{}, errors.New("envelope has no session id")
	}

	var result Result
	err := p.locks.WithLock(ctx, env.SessionID, func(ctx context.Context) error {
		var err error
		result, err = p.processLocked(ctx, env)
		return err
	})
	if err != nil {
		p.sink.ProcessingFailed(env.User.Channel)
	}
	return result, err
}

func (p *Processor) processLocked(ctx context.Context, env story.Envelope) (Result, error) {
	p.sink.MessageReceived(env.User.Channel)

	sess, err := p.loadOrCreate(ctx, env)
	if err != nil {
		return Result{}, err
	}
	if err := sess.Validate(p.registry); err != nil {
		p.log.Error("Session document failed validation", "session_id", sess.ID, "error", err)
		return Result{}, err
	}

	frame, active := sess.ActiveFrame()
	if !active {
		// Idle: the envelope must match a trigger to open a story.
		def, ok := p.registry.FindByTrigger(env)
		if !ok {
			p.sink.Unhandled(env.User.Channel)
			p.log.Debug("No story matched envelope", "session_id", sess.ID, "channel", env.User.Channel)
			return Result{Outcome: OutcomeUnhandled, SessionID: sess.ID}, nil
		}

		sess, err = sess.Push(p.registry, def.ID())
		if err != nil {
			return Result{}, err
		}
		frame, _ = sess.ActiveFrame()
		p.sink.StoryEntered(def.ID())
		p.log.Info("Story entered", "session_id", sess.ID, "story", def.ID())
	}
	// Active: the in-progress story owns this envelope unconditionally.
	// Triggers are never re-evaluated here, which is what distinguishes a
	// continuation message from the first message of a story.

	stepFn, err := p.registry.StepAt(frame.StoryID, frame.StepIndex)
	if err != nil {
		// A stale or corrupted frame slipped past validation; surface it
		// and leave the session untouched.
		p.log.Error("Stack frame resolves to no step", "session_id", sess.ID, "story", frame.StoryID, "step", frame.StepIndex)
		return Result{}, err
	}

	stepResult, stepErr := stepFn(ctx, env, p.chatFor(env.User))
	if stepErr != nil {
		return Result{}, &StepError{StoryID: frame.StoryID, StepIndex: frame.StepIndex, Err: stepErr}
	}
	if err := ctx.Err(); err != nil {
		// The step's asynchronous work was cancelled; persist nothing.
		return Result{}, err
	}

	p.sink.StepExecuted(frame.StoryID, frame.StepIndex)

	next, err := p.applyResult(sess, frame, stepResult)
	if err != nil {
		return Result{}, err
	}

	if err := p.store.Save(ctx, next); err != nil {
		return Result{}, fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	if len(next.Stack) < len(sess.Stack) {
		p.sink.StoryCompleted(frame.StoryID)
		p.log.Info("Story completed", "session_id", sess.ID, "story", frame.StoryID)
	}

	result := Result{SessionID: sess.ID, StoryID: frame.StoryID, StepIndex: frame.StepIndex}
	if next.Idle() {
		result.Outcome = OutcomeCompleted
	} else {
		result.Outcome = OutcomeActive
	}
	return result, nil
}

// loadOrCreate fetches the session document, initializing a fresh one the
// first time a session key is seen.
func (p *Processor) loadOrCreate(ctx context.Context, env story.Envelope) (session.Session, error) {
	sess, err := p.store.Load(ctx, env.SessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return session.Session{}, fmt.Errorf("load session %s: %w", env.SessionID, err)
	}

	sess = session.Session{ID: env.SessionID, UserID: env.User.ID}
	if err := p.store.Save(ctx, sess); err != nil {
		return session.Session{}, fmt.Errorf("initialize session %s: %w", env.SessionID, err)
	}
	p.log.Debug("Session created", "session_id", sess.ID, "user_id", sess.UserID)
	return sess, nil
}

// applyResult computes the new stack from a step's result. Pure; no
// persistence.
func (p *Processor) applyResult(sess session.Session, frame session.Frame, res story.StepResult) (session.Session, error) {
	switch res.Kind {
	case story.ResultContinue:
		return sess.Advance(p.registry)
	case story.ResultComplete:
		return sess.Pop(), nil
	case story.ResultBranch:
		return sess.ReplaceTop(p.registry, res.BranchStory, res.BranchStep)
	default:
		return sess, fmt.Errorf("story %q step %d returned unknown result kind %d", frame.StoryID, frame.StepIndex, res.Kind)
	}
}

func (p *Processor) chatFor(user story.UserRef) story.Chat {
	return boundChat{user: user, senders: p.senders}
}

// boundChat implements story.Chat for one envelope's user, resolving the
// outbound sender by the user's channel name.
type boundChat struct {
	user    story.UserRef
	senders SenderLookup
}

func (c boundChat) Say(ctx context.Context, text string) error {
	return c.send(ctx, text)
}

func (c boundChat) SayWithOptions(ctx context.Context, text string, options ...string) error {
	return c.send(ctx, text, options...)
}

func (c boundChat) send(ctx context.Context, text string, options ...string) error {
	if c.senders == nil {
		return fmt.Errorf("no sender registry attached")
	}
	sender, ok := c.senders.Sender(c.user.Channel)
	if !ok {
		return fmt.Errorf("no sender for channel %q", c.user.Channel)
	}
	return sender.Send(ctx, c.user, text, options...)
}
