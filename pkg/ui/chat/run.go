// Package chat renders an interactive terminal conversation against the
// engine. Outbound text goes through the send function; replies stream in on
// the replies channel, so a story may answer several times or not at all.
package chat

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SendFunc delivers one line of user input to the engine.
type SendFunc func(ctx context.Context, text string) error

// Reply is one outbound message from the engine.
type Reply struct {
	Text    string
	Options []string
}

// Info carries header metadata for the chat view.
type Info struct {
	Stories     int
	StoreDriver string
}

// RunInteractive runs the chat UI until the user quits or the replies
// channel closes.
func RunInteractive(ctx context.Context, sendFn SendFunc, replies <-chan Reply, info Info) error {
	model := newModel(ctx, sendFn, replies, info)
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("25")).
		Padding(1, 2)

	return style.Render("💬 Thanks for chatting")
}
