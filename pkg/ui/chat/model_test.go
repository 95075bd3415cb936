package chat

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestHandleViewportKeyPageUpDisablesFollowLog(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, nil, Info{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoBottom()
	m.followLog = true

	previousOffset := m.viewport.YOffset
	handled := m.handleViewportKey(tea.KeyMsg{Type: tea.KeyPgUp})
	if !handled {
		t.Fatal("expected page-up key to be handled")
	}
	if m.followLog {
		t.Fatal("expected followLog to be disabled after page-up")
	}
	if m.viewport.YOffset >= previousOffset {
		t.Fatalf("expected YOffset to decrease after page-up, got %d want < %d", m.viewport.YOffset, previousOffset)
	}
}

func TestHandleViewportKeyEndEnablesFollowLog(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, nil, Info{})
	m.viewport.Width = 40
	m.viewport.Height = 5
	m.viewport.SetContent(strings.Repeat("line\n", 40))
	m.viewport.GotoTop()
	m.followLog = false

	handled := m.handleViewportKey(tea.KeyMsg{Type: tea.KeyEnd})
	if !handled {
		t.Fatal("expected end key to be handled")
	}
	if !m.viewport.AtBottom() {
		t.Fatalf("expected viewport to reach bottom, got YOffset=%d", m.viewport.YOffset)
	}
	if !m.followLog {
		t.Fatal("expected followLog to re-enable at bottom")
	}
}

func TestRepliesAppendBotMessages(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, nil, Info{})

	updated, cmd := m.Update(replyMsg{reply: Reply{Text: "Pick one", Options: []string{"red", "blue"}}, open: true})
	m = updated.(*model)
	if cmd == nil {
		t.Fatal("expected a follow-up wait command after a reply")
	}
	if len(m.messages) != 1 || m.messages[0].role != "bot" {
		t.Fatalf("messages = %+v", m.messages)
	}
	if len(m.messages[0].options) != 2 {
		t.Fatalf("options = %v", m.messages[0].options)
	}
}

func TestIsExitCommand(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"exit", "/exit", " QUIT ", ":q"} {
		if !isExitCommand(input) {
			t.Fatalf("expected %q to be an exit command", input)
		}
	}
	if isExitCommand("hi there!") {
		t.Fatal("expected normal text to not be an exit command")
	}
}
