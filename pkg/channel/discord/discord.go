// Package discord bridges Discord messages into dialogue envelopes over a
// gateway websocket session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"storyline/pkg/channel"
	"storyline/pkg/config"
	"storyline/pkg/story"
)

const channelName = "discord"

// Adapter listens for message-create events and sends replies for the
// engine. It implements both channel.Adapter and channel.Sender.
type Adapter struct {
	cfg     config.DiscordConfig
	session *discordgo.Session
	log     *slog.Logger
}

// NewAdapter validates Discord configuration and constructs an adapter
// instance.
func NewAdapter(cfg config.DiscordConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.discord.token is required")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("initialize discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:     cfg,
		session: session,
		log:     log.With("component", "channel.discord"),
	}, nil
}

// Name returns the channel identifier used in envelopes and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run opens the gateway session and forwards one envelope per inbound
// message until the context is cancelled. Messages from bots, including this
// one, are ignored.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	a.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		env, ok := envelopeFromMessage(m)
		if !ok {
			return
		}

		a.log.Info("Received message", "session_id", env.SessionID, "sender_id", env.User.ChannelUserID)

		if err := handler(ctx, env); err != nil {
			a.log.Error("Failed to process inbound message", "session_id", env.SessionID, "error", err)
		}
	})

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	a.log.Info("Discord channel started")

	<-ctx.Done()
	return a.session.Close()
}

// Send delivers a reply to the Discord channel the conversation lives in.
// Options render as a bracketed suffix since plain messages carry no buttons.
func (a *Adapter) Send(_ context.Context, user story.UserRef, text string, options ...string) error {
	channelID := strings.TrimPrefix(user.ID, "discord:")
	if channelID == "" {
		return errors.New("user reference has no discord channel id")
	}

	if len(options) > 0 {
		text = fmt.Sprintf("%s [%s]", text, strings.Join(options, " | "))
	}

	if _, err := a.session.ChannelMessageSend(channelID, text); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

// envelopeFromMessage converts one message-create event into an envelope.
// Sessions are keyed by Discord channel so threads of conversation survive
// across users in the same channel.
func envelopeFromMessage(m *discordgo.MessageCreate) (story.Envelope, bool) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return story.Envelope{}, false
	}

	text := strings.TrimSpace(m.Content)
	if text == "" {
		return story.Envelope{}, false
	}

	sessionID := sessionKey(m.ChannelID)
	user := story.UserRef{
		ID:            sessionID,
		ChannelUserID: m.Author.ID,
		Channel:       channelName,
	}
	return story.TextEnvelope(user, sessionID, text), true
}

// sessionKey maps one Discord channel to one dialogue session.
func sessionKey(channelID string) string {
	return "discord:" + channelID
}
