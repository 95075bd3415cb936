package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type chatMessage struct {
	role    string
	content string
	options []string
}

type replyMsg struct {
	reply Reply
	open  bool
}

type sendDoneMsg struct {
	err error
}

type model struct {
	ctx     context.Context
	sendFn  SendFunc
	replies <-chan Reply
	info    Info

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []chatMessage
	width     int
	height    int
	isReady   bool
	isSending bool
	lastErr   string
	followLog bool
}

func newModel(ctx context.Context, sendFn SendFunc, replies <-chan Reply, info Info) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something..."
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		ctx:       ctx,
		sendFn:    sendFn,
		replies:   replies,
		info:      info,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  vp,
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitReplyCmd(m.replies))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if isExitCommand(text) {
				return m, tea.Quit
			}

			m.lastErr = ""
			m.messages = append(m.messages, chatMessage{role: "user", content: text})
			m.input.SetValue("")
			m.isSending = true
			m.followLog = true
			m.refreshViewport(true)
			return m, tea.Batch(m.spinner.Tick, sendCmd(m.ctx, m.sendFn, text))
		}
	case replyMsg:
		if !typed.open {
			return m, tea.Quit
		}
		m.messages = append(m.messages, chatMessage{
			role:    "bot",
			content: typed.reply.Text,
			options: typed.reply.Options,
		})
		m.refreshViewport(false)
		return m, waitReplyCmd(m.replies)
	case sendDoneMsg:
		m.isSending = false
		if typed.err != nil {
			m.lastErr = typed.err.Error()
			m.messages = append(m.messages, chatMessage{role: "error", content: typed.err.Error()})
			m.refreshViewport(false)
		}
		return m, nil
	case spinner.TickMsg:
		if !m.isSending {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("💬 Storyline Chat")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"stories:%d · store:%s · turns:%d",
		m.info.Stories,
		displayOrNA(m.info.StoreDriver),
		conversationTurns(m.messages),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  Ctrl+C/Esc quit")
	if m.isSending {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s sending...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("🚨 last message failed - try again")
	}

	parts := []string{
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width - 2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("You") + " " + m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width - 2).Render(m.input.View()),
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 50 {
		w = 50
	}
	h := m.height - 10
	if h < 8 {
		h = 8
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	var sections []string
	for _, item := range m.messages {
		switch item.role {
		case "user":
			sections = append(sections, m.renderCard(
				m.theme.userTitle.Render("[ you ]"),
				m.theme.userBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		case "bot":
			body := strings.TrimSpace(item.content)
			if len(item.options) > 0 {
				chips := make([]string, 0, len(item.options))
				for _, option := range item.options {
					chips = append(chips, m.theme.optionChip.Render(option))
				}
				body = body + "\n\n" + strings.Join(chips, " ")
			}
			sections = append(sections, m.renderCard(
				m.theme.botTitle.Render("[ bot ]"),
				m.theme.botBox.Width(m.viewport.Width).Render(body),
			))
		case "error":
			sections = append(sections, m.renderCard(
				m.theme.errorTitle.Render("[ error ]"),
				m.theme.errorBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if previousOffset > maxOffset {
		previousOffset = maxOffset
	}
	m.viewport.SetYOffset(previousOffset)
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func max(a int, b int) int {
	if a > b {
		return a
	}

	return b
}

func waitReplyCmd(replies <-chan Reply) tea.Cmd {
	return func() tea.Msg {
		reply, open := <-replies
		return replyMsg{reply: reply, open: open}
	}
}

func sendCmd(ctx context.Context, sendFn SendFunc, text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: sendFn(ctx, text)}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func conversationTurns(messages []chatMessage) int {
	count := 0
	for _, message := range messages {
		if message.role == "user" {
			count++
		}
	}

	return count
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
