// Package messenger serves a Facebook-Messenger-style webhook. Inbound
// events arrive as page webhook POSTs; replies go out through the Graph
// send API.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"storyline/pkg/channel"
	"storyline/pkg/config"
	"storyline/pkg/story"
)

const channelName = "messenger"

// textLimit is the Send API's maximum message text length.
const textLimit = 640

const startPayload = "GET_STARTED"

const defaultAPIBase = "https://graph.facebook.com/v2.6"
const defaultListen = ":8443"
const defaultWebhookPath = "/webhook"

// Adapter receives webhook events and sends replies for the engine. It
// implements both channel.Adapter and channel.Sender.
type Adapter struct {
	cfg     config.MessengerConfig
	client  *http.Client
	handler channel.Handler
	log     *slog.Logger
}

// NewAdapter validates Messenger configuration and constructs an adapter
// instance.
func NewAdapter(cfg config.MessengerConfig, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("channels.messenger.access_token is required")
	}
	if strings.TrimSpace(cfg.VerifyToken) == "" {
		return nil, errors.New("channels.messenger.verify_token is required")
	}

	if strings.TrimSpace(cfg.APIBase) == "" {
		cfg.APIBase = defaultAPIBase
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = defaultListen
	}
	if strings.TrimSpace(cfg.WebhookPath) == "" {
		cfg.WebhookPath = defaultWebhookPath
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With("component", "channel.messenger"),
	}, nil
}

// Name returns the channel identifier used in envelopes and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run serves the webhook endpoint until the context is cancelled.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	a.handler = handler

	server := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.log.Info("Messenger channel started", "listen", a.cfg.Listen, "path", a.cfg.WebhookPath)

	select {
	case err := <-errCh:
		return fmt.Errorf("messenger webhook server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// routes builds the webhook router. Split out so tests can drive it with
// httptest without binding a socket.
func (a *Adapter) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get(a.cfg.WebhookPath, a.handleVerify)
	router.Post(a.cfg.WebhookPath, a.handleWebhook)
	return router
}

// handleVerify answers the subscription handshake by echoing hub.challenge
// when the verify token matches.
func (a *Adapter) handleVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != a.cfg.VerifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, query.Get("hub.challenge"))
}

type webhookBody struct {
	Object string `json:"object"`
	Entry  []struct {
		Messaging []messagingEvent `json:"messaging"`
	} `json:"entry"`
}

type messagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		Text       string `json:"text"`
		QuickReply *struct {
			Payload string `json:"payload"`
		} `json:"quick_reply"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				Coordinates *struct {
					Lat  float64 `json:"lat"`
					Long float64 `json:"long"`
				} `json:"coordinates"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
	Postback *struct {
		Payload string `json:"payload"`
	} `json:"postback"`
}

// handleWebhook parses inbound page events and forwards one envelope per
// recognized messaging event. Unrecognized events are logged and skipped; the
// endpoint always acknowledges so the platform does not retry.
func (a *Adapter) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var body webhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if body.Object == "page" {
		for _, entry := range body.Entry {
			for _, event := range entry.Messaging {
				env, ok := envelopeFromEvent(event)
				if !ok {
					a.log.Debug("Skipping unrecognized messaging event")
					continue
				}
				if err := a.handler(r.Context(), env); err != nil {
					a.log.Error("Failed to process inbound event", "session_id", env.SessionID, "error", err)
				}
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

// envelopeFromEvent converts one messaging event into an envelope. Quick
// replies take precedence over message text, matching how the platform
// reports option picks.
func envelopeFromEvent(event messagingEvent) (story.Envelope, bool) {
	senderID := strings.TrimSpace(event.Sender.ID)
	if senderID == "" {
		return story.Envelope{}, false
	}

	user := story.UserRef{
		ID:            sessionKey(senderID),
		ChannelUserID: senderID,
		Channel:       channelName,
	}
	sessionID := sessionKey(senderID)

	if event.Postback != nil && event.Postback.Payload == startPayload {
		return story.StartEnvelope(user, sessionID), true
	}

	if event.Message == nil {
		return story.Envelope{}, false
	}

	if event.Message.QuickReply != nil && strings.TrimSpace(event.Message.QuickReply.Payload) != "" {
		return story.Envelope{
			User:      user,
			SessionID: sessionID,
			Data:      story.Payload{Option: event.Message.QuickReply.Payload},
		}, true
	}

	for _, attachment := range event.Message.Attachments {
		if attachment.Type != "location" || attachment.Payload.Coordinates == nil {
			continue
		}
		return story.Envelope{
			User:      user,
			SessionID: sessionID,
			Data: story.Payload{
				Location: &story.Location{
					Lat:  attachment.Payload.Coordinates.Lat,
					Long: attachment.Payload.Coordinates.Long,
				},
			},
		}, true
	}

	if text := strings.TrimSpace(event.Message.Text); text != "" {
		return story.TextEnvelope(user, sessionID, text), true
	}

	return story.Envelope{}, false
}

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message sendMessage `json:"message"`
}

type sendMessage struct {
	Text         string       `json:"text"`
	QuickReplies []quickReply `json:"quick_replies,omitempty"`
}

type quickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

// Send delivers a reply through the send API. Options render as text quick
// replies.
func (a *Adapter) Send(ctx context.Context, user story.UserRef, text string, options ...string) error {
	if len(text) > textLimit {
		return fmt.Errorf("message text exceeds %d characters", textLimit)
	}

	var payload sendRequest
	payload.Recipient.ID = user.ChannelUserID
	payload.Message.Text = text
	for _, option := range options {
		payload.Message.QuickReplies = append(payload.Message.QuickReplies, quickReply{
			ContentType: "text",
			Title:       option,
			Payload:     option,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", strings.TrimRight(a.cfg.APIBase, "/"), a.cfg.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send messenger message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("send messenger message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// sessionKey maps one Messenger user to one dialogue session.
func sessionKey(senderID string) string {
	return "messenger:" + senderID
}
