package cmd

import (
	"context"
	"fmt"
	"strings"

	"storyline/pkg/story"
)

// demoStories builds the story set both runtime modes serve: a greeting, a
// rescue flow that waits for a shared location, and an options-driven
// feedback survey.
func demoStories() (*story.Registry, error) {
	registry := story.NewRegistry()

	welcome := story.Define("welcome", story.OnStart()).
		AddStep(func(ctx context.Context, _ story.Envelope, chat story.Chat) (story.StepResult, error) {
			if err := chat.Say(ctx, "Hi! Say 'hi there!' to greet me, 'SOS!' if you need help, or 'feedback' to rate this bot."); err != nil {
				return story.StepResult{}, err
			}
			return story.Complete(), nil
		}).
		MustBuild()

	greeting := story.Define("greeting", story.OnText("hi there!")).
		AddStep(func(ctx context.Context, _ story.Envelope, chat story.Chat) (story.StepResult, error) {
			if err := chat.Say(ctx, "Nice to see you!"); err != nil {
				return story.StepResult{}, err
			}
			return story.Complete(), nil
		}).
		MustBuild()

	rescue := story.Define("rescue", story.OnText("SOS!")).
		AddStep(func(ctx context.Context, _ story.Envelope, chat story.Chat) (story.StepResult, error) {
			if err := chat.Say(ctx, "Hold on! Share your location and the rescue team will be on the way!"); err != nil {
				return story.StepResult{}, err
			}
			return story.Continue(), nil
		}).
		AddStep(func(ctx context.Context, env story.Envelope, chat story.Chat) (story.StepResult, error) {
			if env.Data.Location == nil {
				if err := chat.Say(ctx, "I still need your location. Please share it."); err != nil {
					return story.StepResult{}, err
				}
				// Stay on this step: advancing past the last step would
				// end the story before the location arrives.
				return story.Branch("rescue", 1), nil
			}
			confirmation := fmt.Sprintf("Got it, sending help to %.4f, %.4f!", env.Data.Location.Lat, env.Data.Location.Long)
			if err := chat.Say(ctx, confirmation); err != nil {
				return story.StepResult{}, err
			}
			return story.Complete(), nil
		}).
		MustBuild()

	feedback := story.Define("feedback", story.OnText("feedback")).
		AddStep(func(ctx context.Context, _ story.Envelope, chat story.Chat) (story.StepResult, error) {
			if err := chat.SayWithOptions(ctx, "How was your experience?", "good", "bad"); err != nil {
				return story.StepResult{}, err
			}
			return story.Continue(), nil
		}).
		AddStep(func(ctx context.Context, env story.Envelope, chat story.Chat) (story.StepResult, error) {
			answer := env.Data.Option
			if answer == "" {
				answer = strings.ToLower(env.RawText())
			}

			switch answer {
			case "good":
				if err := chat.Say(ctx, "Glad to hear it, thanks!"); err != nil {
					return story.StepResult{}, err
				}
			case "bad":
				if err := chat.Say(ctx, "Sorry about that. We'll do better."); err != nil {
					return story.StepResult{}, err
				}
			default:
				if err := chat.SayWithOptions(ctx, "Please pick one of the options.", "good", "bad"); err != nil {
					return story.StepResult{}, err
				}
				// Keep waiting on this step until a known answer arrives.
				return story.Branch("feedback", 1), nil
			}
			return story.Complete(), nil
		}).
		MustBuild()

	for _, def := range []*story.Definition{welcome, greeting, rescue, feedback} {
		if err := registry.Register(def); err != nil {
			return nil, fmt.Errorf("register story %s: %w", def.ID(), err)
		}
	}

	return registry, nil
}
