package story

// UserRef identifies the sender of an envelope. Channel names the adapter the
// message arrived through; ChannelUserID is the identifier that adapter uses
// for outbound sends.
type UserRef struct {
	ID            string `json:"id"`
	ChannelUserID string `json:"channel_user_id"`
	Channel       string `json:"channel"`
}

// Text is a raw text payload.
type Text struct {
	Raw string `json:"raw"`
}

// Location is a coordinate payload attached by channels that support it.
type Location struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Payload carries the primary content of one inbound message. At most one of
// Text, Option, or Location is set; SessionStart marks the synthetic envelope
// emitted once when a session is first seen.
type Payload struct {
	Text         *Text             `json:"text,omitempty"`
	Option       string            `json:"option,omitempty"`
	Location     *Location         `json:"location,omitempty"`
	SessionStart bool              `json:"session_start,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Envelope is the channel-agnostic representation of one inbound event.
// Adapters build envelopes; the engine never inspects channel payloads beyond
// this shape.
type Envelope struct {
	User      UserRef `json:"user"`
	SessionID string  `json:"session_id"`
	Data      Payload `json:"data"`
}

// RawText returns the text payload, or "" when the envelope carries none.
func (e Envelope) RawText() string {
	if e.Data.Text == nil {
		return ""
	}
	return e.Data.Text.Raw
}

// TextEnvelope builds a plain text envelope for the given user and session.
func TextEnvelope(user UserRef, sessionID string, text string) Envelope {
	return Envelope{
		User:      user,
		SessionID: sessionID,
		Data:      Payload{Text: &Text{Raw: text}},
	}
}

// StartEnvelope builds the synthetic session-start envelope.
func StartEnvelope(user UserRef, sessionID string) Envelope {
	return Envelope{
		User:      user,
		SessionID: sessionID,
		Data:      Payload{SessionStart: true},
	}
}
