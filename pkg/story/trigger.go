package story

// Trigger decides whether an envelope opens a story from an idle session.
// Matching is side-effect free and total: a non-match is a normal outcome.
type Trigger interface {
	Match(env Envelope) bool
}

type textTrigger struct {
	text string
}

// Match is case-sensitive equality against the raw text payload and fails
// closed when the envelope carries no text.
func (t textTrigger) Match(env Envelope) bool {
	if env.Data.Text == nil {
		return false
	}
	return env.Data.Text.Raw == t.text
}

// OnText triggers on exact text content.
func OnText(text string) Trigger {
	return textTrigger{text: text}
}

type optionTrigger struct {
	payload string
}

func (t optionTrigger) Match(env Envelope) bool {
	if env.Data.Option == "" {
		return false
	}
	return env.Data.Option == t.payload
}

// OnOption triggers on a structured option payload, for example a quick-reply
// or callback button press.
func OnOption(payload string) Trigger {
	return optionTrigger{payload: payload}
}

type startTrigger struct{}

// Match accepts only the synthetic session-start envelope, never an ordinary
// message.
func (startTrigger) Match(env Envelope) bool {
	return env.Data.SessionStart
}

// OnStart triggers once when a session is first seen.
func OnStart() Trigger {
	return startTrigger{}
}

type funcTrigger struct {
	fn func(Envelope) bool
}

func (t funcTrigger) Match(env Envelope) bool {
	if t.fn == nil {
		return false
	}
	return t.fn(env)
}

// OnFunc triggers on an arbitrary predicate over the envelope.
func OnFunc(fn func(Envelope) bool) Trigger {
	return funcTrigger{fn: fn}
}
