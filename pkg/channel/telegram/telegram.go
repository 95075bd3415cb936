// Package telegram bridges Telegram updates into dialogue envelopes. Text
// messages and shared locations arrive as message updates; option picks
// arrive as callback queries from inline keyboards.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"storyline/pkg/channel"
	"storyline/pkg/config"
	"storyline/pkg/story"
)

const channelName = "telegram"
const messagePreviewLimit = 240

// Adapter long-polls Telegram for updates and sends replies for the engine.
// It implements both channel.Adapter and channel.Sender.
type Adapter struct {
	cfg       config.TelegramConfig
	bot       *telego.Bot
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter
// instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		bot:       bot,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in envelopes and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and forwards one envelope per accepted
// update through the handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			if update.CallbackQuery != nil {
				a.handleCallback(ctx, handler, update.CallbackQuery)
				continue
			}
			if update.Message != nil {
				a.handleMessage(ctx, handler, update.Message)
			}
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, handler channel.Handler, message *telego.Message) {
	env, ok := envelopeFromMessage(message)
	if !ok {
		return
	}
	if !a.senderAllowed(env.User.ChannelUserID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", env.User.ChannelUserID)
		return
	}

	a.log.Info("Received message", "session_id", env.SessionID, "sender_id", env.User.ChannelUserID, "content", previewText(env.RawText()))

	if err := handler(ctx, env); err != nil {
		a.log.Error("Failed to process inbound message", "session_id", env.SessionID, "error", err)
	}
}

func (a *Adapter) handleCallback(ctx context.Context, handler channel.Handler, query *telego.CallbackQuery) {
	env, ok := envelopeFromCallback(query)
	if !ok {
		return
	}
	if !a.senderAllowed(env.User.ChannelUserID) {
		a.log.Debug("Ignoring callback from unauthorized sender", "sender_id", env.User.ChannelUserID)
		return
	}

	// Clear the client-side loading state before processing.
	if err := a.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID}); err != nil {
		a.log.Debug("Failed to answer callback query", "error", err)
	}

	a.log.Info("Received option", "session_id", env.SessionID, "sender_id", env.User.ChannelUserID, "option", env.Data.Option)

	if err := handler(ctx, env); err != nil {
		a.log.Error("Failed to process option", "session_id", env.SessionID, "error", err)
	}
}

// Send delivers a reply to the chat identified by the user reference. Options
// render as an inline keyboard whose buttons echo the option value back as a
// callback query.
func (a *Adapter) Send(ctx context.Context, user story.UserRef, text string, options ...string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(user.ChannelUserID), 10, 64)
	if err != nil {
		return fmt.Errorf("parse telegram chat id %q: %w", user.ChannelUserID, err)
	}

	params := tu.Message(tu.ID(chatID), text)
	if len(options) > 0 {
		rows := make([][]telego.InlineKeyboardButton, 0, len(options))
		for _, option := range options {
			rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton(option).WithCallbackData(option)))
		}
		params = params.WithReplyMarkup(tu.InlineKeyboard(rows...))
	}

	a.log.Info("Sending message", "chat_id", chatID, "content", previewText(text))

	if _, err := a.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// envelopeFromMessage converts one message update into an envelope. It
// reports false for updates without a sender or without text or location
// content.
func envelopeFromMessage(message *telego.Message) (story.Envelope, bool) {
	if message == nil || message.From == nil {
		return story.Envelope{}, false
	}

	text := strings.TrimSpace(message.Text)
	if text == "" && message.Location == nil {
		return story.Envelope{}, false
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	user := userRef(message.From.ID, chatID)

	if message.Location != nil {
		return story.Envelope{
			User:      user,
			SessionID: sessionKey(chatID),
			Data: story.Payload{
				Location: &story.Location{
					Lat:  message.Location.Latitude,
					Long: message.Location.Longitude,
				},
			},
		}, true
	}

	return story.TextEnvelope(user, sessionKey(chatID), text), true
}

// envelopeFromCallback converts an inline-keyboard callback into an option
// envelope. Callbacks are routed by sender, which matches the chat in the
// private conversations this channel serves.
func envelopeFromCallback(query *telego.CallbackQuery) (story.Envelope, bool) {
	if query == nil {
		return story.Envelope{}, false
	}

	data := strings.TrimSpace(query.Data)
	if data == "" {
		return story.Envelope{}, false
	}

	chatID := strconv.FormatInt(query.From.ID, 10)
	return story.Envelope{
		User:      userRef(query.From.ID, chatID),
		SessionID: sessionKey(chatID),
		Data:      story.Payload{Option: data},
	}, true
}

func userRef(senderID int64, chatID string) story.UserRef {
	return story.UserRef{
		ID:            sessionKey(chatID),
		ChannelUserID: strconv.FormatInt(senderID, 10),
		Channel:       channelName,
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// sessionKey maps one Telegram chat to one dialogue session.
func sessionKey(chatID string) string {
	return "telegram:" + strings.TrimSpace(chatID)
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
