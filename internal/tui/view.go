package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatclient/internal/session"
)

const sidebarWidth = 32

type theme struct {
	root       lipgloss.Style
	panel      lipgloss.Style
	panelFocus lipgloss.Style
	panelTitle lipgloss.Style
	item       lipgloss.Style
	itemActive lipgloss.Style
	itemCursor lipgloss.Style
	date       lipgloss.Style
	user       lipgloss.Style
	assistant  lipgloss.Style
	pending    lipgloss.Style
	welcome    lipgloss.Style
	inputPanel lipgloss.Style
	footer     lipgloss.Style
	status     lipgloss.Style
	toastInfo  lipgloss.Style
	toastError lipgloss.Style
	helpText   lipgloss.Style
}

func newTheme() theme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		root: lipgloss.NewStyle().Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		panelFocus: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().Foreground(pink).Bold(true),
		item:       lipgloss.NewStyle(),
		itemActive: lipgloss.NewStyle().Foreground(mint).Bold(true),
		itemCursor: lipgloss.NewStyle().Reverse(true),
		date:       lipgloss.NewStyle().Foreground(muted),
		user:       lipgloss.NewStyle().Foreground(blue).Bold(true),
		assistant:  lipgloss.NewStyle().Foreground(mint).Bold(true),
		pending:    lipgloss.NewStyle().Foreground(muted).Italic(true),
		welcome:    lipgloss.NewStyle().Foreground(pink).Bold(true),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		footer:     lipgloss.NewStyle().Padding(0, 1),
		status:     lipgloss.NewStyle().Foreground(blue),
		toastInfo:  lipgloss.NewStyle().Foreground(mint).Bold(true),
		toastError: lipgloss.NewStyle().Foreground(pink).Bold(true),
		helpText:   lipgloss.NewStyle().Foreground(muted),
	}
}

func (m Model) View() string {
	sidebar := m.renderSidebar()
	main := m.renderMain()
	content := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
	return m.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left, content, m.renderInput(), m.renderFooter()))
}

func (m Model) contentHeight() int {
	return maxInt(6, m.height-8)
}

func (m Model) mainWidth() int {
	return maxInt(24, m.width-sidebarWidth-6)
}

func (m *Model) resize() {
	m.transcript.Width = maxInt(20, m.mainWidth()-4)
	m.transcript.Height = maxInt(3, m.contentHeight()-3)
	m.input.Width = maxInt(20, m.width-10)
}

func (m Model) renderSidebar() string {
	style := m.theme.panel
	if m.focus == focusSidebar {
		style = m.theme.panelFocus
	}

	var b strings.Builder
	b.WriteString(m.theme.panelTitle.Render("Conversations"))
	b.WriteString("\n")
	if len(m.snap.Conversations) == 0 {
		b.WriteString(m.theme.helpText.Render("No conversations yet."))
	}

	active := ""
	if m.snap.Active != nil {
		active = m.snap.Active.ID
	}
	now := m.now()
	for i, c := range m.snap.Conversations {
		title := truncate(c.Title, sidebarWidth-6)
		itemStyle := m.theme.item
		if c.ID == active {
			itemStyle = m.theme.itemActive
		}
		if m.focus == focusSidebar && i == m.cursor {
			itemStyle = itemStyle.Inherit(m.theme.itemCursor)
		}
		b.WriteString(itemStyle.Render(title))
		b.WriteString("\n")
		b.WriteString(m.theme.date.Render(formatDate(c.UpdatedAt, now)))
		b.WriteString("\n")
	}

	return style.Width(sidebarWidth).Height(m.contentHeight()).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderMain() string {
	style := m.theme.panel
	title := "New chat"
	if m.snap.Active != nil {
		title = m.snap.Active.Title
	}

	var body string
	switch m.snap.DisplayMode {
	case session.DisplayLoading:
		body = m.spinner.View() + " Loading messages..."
	case session.DisplayWelcome:
		body = m.theme.welcome.Render("How can I help you today?") + "\n\n" +
			m.theme.helpText.Render("Type a message below to start. Ctrl+N opens a new conversation, Tab switches to the list.")
	default:
		body = m.transcript.View()
		if m.snap.Sending {
			body += "\n" + m.spinner.View() + m.theme.pending.Render(" waiting for the assistant...")
		}
	}

	return style.Width(m.mainWidth()).Height(m.contentHeight()).Render(m.theme.panelTitle.Render(truncate(title, m.mainWidth()-4)) + "\n" + body)
}

// renderTranscript refreshes the viewport content, following the tail when it was at the bottom.
func (m *Model) renderTranscript() {
	atBottom := m.transcript.AtBottom()
	offset := m.transcript.YOffset

	width := maxInt(20, m.transcript.Width-2)
	var b strings.Builder
	for _, msg := range m.snap.Transcript {
		b.WriteString(m.messageHeader(msg))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Content))
		b.WriteString("\n\n")
	}
	m.transcript.SetContent(strings.TrimRight(b.String(), "\n"))

	if atBottom {
		m.transcript.GotoBottom()
	} else {
		m.transcript.SetYOffset(offset)
	}
}

func (m Model) messageHeader(msg chat.Message) string {
	ts := msg.CreatedAt.Local().Format("15:04")
	if msg.Role == chat.RoleUser {
		header := m.theme.user.Render("You") + " " + m.theme.date.Render(ts)
		if msg.IsProvisional() {
			header += m.theme.pending.Render(" · sending")
		}
		return header
	}
	return m.theme.assistant.Render("Assistant") + " " + m.theme.date.Render(ts)
}

func (m Model) renderInput() string {
	view := m.input.View()
	if m.submitBlocked() {
		view += "\n" + m.spinner.View() + m.theme.helpText.Render(" waiting for the reply, Enter is paused")
	}
	return m.theme.inputPanel.Width(maxInt(30, m.width-4)).Render(view)
}

func (m Model) renderFooter() string {
	var line string
	switch {
	case m.toast != nil && m.toast.Level == session.LevelError:
		line = m.theme.toastError.Render(m.toast.Title + ": " + m.toast.Description)
	case m.toast != nil:
		line = m.theme.toastInfo.Render(m.toast.Title + ": " + m.toast.Description)
	default:
		line = m.theme.status.Render(m.status)
	}
	hints := "Enter send · Ctrl+N new · Tab list · Ctrl+C quit"
	if m.focus == focusSidebar {
		hints = "↑/↓ move · Enter open · n new · d delete · Tab input · q quit"
	}
	return m.theme.footer.Render(line + "\n" + m.theme.helpText.Render(hints))
}

// formatDate renders a sidebar timestamp relative to now.
func formatDate(t, now time.Time) string {
	t = t.In(now.Location())
	age := now.Sub(t)
	switch {
	case age < 24*time.Hour:
		return t.Format("15:04")
	case age < 48*time.Hour:
		return "Yesterday"
	case age < 7*24*time.Hour:
		return t.Weekday().String()
	default:
		return t.Format("02/01")
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 1 || len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

