// Package fallback produces replies for messages no story claims.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"storyline/pkg/config"
	"storyline/pkg/story"
)

// Responder answers one unhandled envelope. An empty reply with nil error
// means stay silent.
type Responder interface {
	Reply(ctx context.Context, env story.Envelope) (string, error)
}

// Static answers every unhandled message with the same text.
type Static struct {
	Text string
}

// Reply returns the configured text.
func (s Static) Reply(context.Context, story.Envelope) (string, error) {
	return s.Text, nil
}

const defaultModel = "gpt-5-mini"
const defaultPrompt = "You are a concise assistant embedded in a chat bot. Answer the user's message in one or two sentences."
const requestTimeout = 30 * time.Second

// OpenAI answers unhandled messages with a model completion.
type OpenAI struct {
	client osdk.Client
	model  string
	prompt string
}

// NewOpenAI builds the model-backed responder. The API key comes from
// OPENAI_API_KEY.
func NewOpenAI(cfg config.OpenAIFallbackConfig) (*OpenAI, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY must be set for the openai fallback")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(requestTimeout),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	prompt := strings.TrimSpace(cfg.Prompt)
	if prompt == "" {
		prompt = defaultPrompt
	}

	return &OpenAI{
		client: osdk.NewClient(opts...),
		model:  model,
		prompt: prompt,
	}, nil
}

// Reply completes the envelope's text against the configured model. Non-text
// envelopes stay silent.
func (o *OpenAI) Reply(ctx context.Context, env story.Envelope) (string, error) {
	text := strings.TrimSpace(env.RawText())
	if text == "" {
		return "", nil
	}

	response, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        o.model,
		Instructions: osdk.String(o.prompt),
		Input:        responses.ResponseNewParamsInputUnion{OfString: osdk.String(text)},
	})
	if err != nil {
		return "", fmt.Errorf("fallback completion failed: %w", err)
	}

	reply := strings.TrimSpace(response.OutputText())
	if reply == "" {
		return "", errors.New("fallback completion returned no text")
	}
	return reply, nil
}

// FromConfig builds the responder named by config, or nil when no fallback
// is configured.
func FromConfig(cfg config.FallbackConfig) (Responder, error) {
	switch strings.TrimSpace(cfg.Provider) {
	case "":
		return nil, nil
	case "static":
		if strings.TrimSpace(cfg.Reply) == "" {
			return nil, errors.New("fallback.reply is required for the static provider")
		}
		return Static{Text: cfg.Reply}, nil
	case "openai":
		return NewOpenAI(cfg.OpenAI)
	default:
		return nil, fmt.Errorf("unsupported fallback provider %q", cfg.Provider)
	}
}
