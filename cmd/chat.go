package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"storyline/pkg/channel"
	"storyline/pkg/config"
	"storyline/pkg/logger"
	"storyline/pkg/processor"
	"storyline/pkg/story"
	"storyline/pkg/store/memory"
	"storyline/pkg/ui/chat"
)

const chatChannelName = "cli"

// tuiSender feeds engine replies into the chat view.
type tuiSender struct {
	replies chan chat.Reply
}

func (s *tuiSender) Send(_ context.Context, _ story.UserRef, text string, options ...string) error {
	s.replies <- chat.Reply{Text: text, Options: options}
	return nil
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the stories locally",
	Long:  "Starts an interactive terminal conversation against the story set using an in-memory session store.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		// Config is optional here; local chat works with defaults.
		logging := config.LoggingConfig{Level: "error"}
		if cfg, err := config.LoadConfig(); err == nil {
			logging = cfg.Logging
			if logging.Level == "" {
				logging.Level = "error"
			}
		}
		appLogger, err := logger.New(logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)

		registry, err := demoStories()
		if err != nil {
			fmt.Printf("failed to register stories: %v\n", err)
			return
		}
		registry.Freeze()

		sender := &tuiSender{replies: make(chan chat.Reply, 32)}
		senders := channel.NewRegistry()
		senders.RegisterSender(chatChannelName, sender)

		proc, err := processor.New(registry, memory.New(), processor.WithSenders(senders))
		if err != nil {
			fmt.Printf("failed to initialize processor: %v\n", err)
			return
		}

		user := story.UserRef{ID: "cli:local", ChannelUserID: "local", Channel: chatChannelName}
		const sessionID = "cli:local"

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		// Greet through the session-start story before the first prompt.
		if _, err := proc.Process(ctx, story.StartEnvelope(user, sessionID)); err != nil {
			fmt.Printf("failed to start conversation: %v\n", err)
			return
		}

		sendFn := func(ctx context.Context, text string) error {
			result, err := proc.Process(ctx, story.TextEnvelope(user, sessionID, text))
			if err != nil {
				return err
			}
			if result.Outcome == processor.OutcomeUnhandled {
				sender.replies <- chat.Reply{Text: "Sorry, I did not get that. Try 'hi there!', 'SOS!', or 'feedback'."}
			}
			return nil
		}

		info := chat.Info{Stories: registry.Len(), StoreDriver: "memory"}
		if err := chat.RunInteractive(ctx, sendFn, sender.replies, info); err != nil {
			fmt.Printf("chat failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
