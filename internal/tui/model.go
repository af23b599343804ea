package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatclient/internal/session"
)

const toastTTL = 5 * time.Second

// Controller is the part of session.Controller the UI drives.
type Controller interface {
	Snapshot() session.Snapshot
	ListConversations(ctx context.Context) error
	SelectConversation(ctx context.Context, conv chat.Conversation) error
	CreateConversation(ctx context.Context) (chat.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	SendMessage(ctx context.Context, content string) error
}

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

type sessionChangedMsg struct {
	change session.Change
}

type notificationMsg struct {
	notification session.Notification
}

type opDoneMsg struct {
	op  string
	err error

	// conversationID is the conversation a send was submitted in.
	conversationID string
}

type toastExpiredMsg struct {
	seq int
}

// Model is the bubbletea model of the chat client.
type Model struct {
	ctrl Controller
	ctx  context.Context
	now  func() time.Time

	snap       session.Snapshot
	lastActive string
	cursor     int
	focus      focusArea
	submitting bool
	submitConv string
	confirmDel string
	status     string
	toast      *session.Notification
	toastSeq   int

	width  int
	height int

	input      textinput.Model
	transcript viewport.Model
	spinner    spinner.Model

	theme theme
}

// Option configures a Model.
type Option func(*Model)

// WithClock overrides the clock used for sidebar dates.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		m.now = now
	}
}

// New builds the UI over ctrl. ctx bounds every remote call the UI starts.
func New(ctx context.Context, ctrl Controller, opts ...Option) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Type a message and press Enter"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#01cdfe"))

	transcript := viewport.New(0, 0)
	transcript.MouseWheelEnabled = true

	m := Model{
		ctrl:       ctrl,
		ctx:        ctx,
		now:        time.Now,
		snap:       ctrl.Snapshot(),
		input:      input,
		transcript: transcript,
		spinner:    sp,
		theme:      newTheme(),
		status:     "loading conversations...",
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		m.run("list", m.ctrl.ListConversations),
	)
}

func (m Model) run(op string, f func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: f(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionChangedMsg:
		m.refresh()
	case opDoneMsg:
		m.finish(msg)
		m.refresh()
	case notificationMsg:
		n := msg.notification
		m.toast = &n
		m.toastSeq++
		seq := m.toastSeq
		return m, tea.Tick(toastTTL, func(time.Time) tea.Msg {
			return toastExpiredMsg{seq: seq}
		})
	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTranscript()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) finish(msg opDoneMsg) {
	if msg.op == "send" && msg.conversationID == m.submitConv {
		m.submitting = false
	}
	if msg.err != nil {
		log.Debug().Err(msg.err).Str("component", "tui").Str("op", msg.op).Msg("operation failed")
		m.status = msg.op + " failed"
		return
	}
	switch msg.op {
	case "list":
		m.status = "ready"
	case "create":
		m.status = "new conversation"
	case "delete":
		m.status = "conversation deleted"
	default:
		m.status = ""
	}
}

// refresh pulls the controller state and keeps the cursor on the active conversation.
func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()
	active := ""
	if m.snap.Active != nil {
		active = m.snap.Active.ID
	}
	if active != m.lastActive {
		m.lastActive = active
		for i, c := range m.snap.Conversations {
			if c.ID == active {
				m.cursor = i
				break
			}
		}
	}
	m.clampCursor()
	m.renderTranscript()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.snap.Conversations) {
		m.cursor = len(m.snap.Conversations) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) activeID() string {
	if m.snap.Active == nil {
		return ""
	}
	return m.snap.Active.ID
}

// submitBlocked reports whether enter must not submit. A send that creates its
// conversation blocks until it resolves.
func (m Model) submitBlocked() bool {
	if m.snap.Sending {
		return true
	}
	return m.submitting && (m.submitConv == "" || m.submitConv == m.activeID())
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.confirmDel != "" {
		id := m.confirmDel
		m.confirmDel = ""
		switch key {
		case "y", "Y", "enter":
			m.status = "deleting..."
			return m, m.run("delete", func(ctx context.Context) error {
				return m.ctrl.DeleteConversation(ctx, id)
			})
		case "ctrl+c":
			return m, tea.Quit
		}
		m.status = "delete canceled"
		return m, nil
	}

	switch key {
	case "ctrl+c":
		return m, tea.Quit
	case "tab", "shift+tab":
		if m.focus == focusInput {
			m.focus = focusSidebar
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return m, nil
	case "ctrl+n":
		return m, m.createCmd()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(key)
	}

	if key == "enter" {
		if m.submitBlocked() {
			return m, nil
		}
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return m, nil
		}
		m.input.Reset()
		m.submitting = true
		m.submitConv = m.activeID()
		m.status = "sending..."
		return m, m.sendCmd(m.submitConv, content)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSidebarKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		m.cursor--
		m.clampCursor()
	case "down", "j":
		m.cursor++
		m.clampCursor()
	case "n":
		return m, m.createCmd()
	case "enter":
		conv, ok := m.highlighted()
		if !ok {
			return m, nil
		}
		m.focus = focusInput
		m.input.Focus()
		return m, m.run("select", func(ctx context.Context) error {
			return m.ctrl.SelectConversation(ctx, conv)
		})
	case "d", "delete":
		conv, ok := m.highlighted()
		if !ok {
			return m, nil
		}
		m.confirmDel = conv.ID
		m.status = "delete \"" + conv.Title + "\"? (y/n)"
	}
	return m, nil
}

func (m Model) sendCmd(conversationID, content string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: "send", err: ctrl.SendMessage(ctx, content), conversationID: conversationID}
	}
}

func (m *Model) createCmd() tea.Cmd {
	m.focus = focusInput
	m.input.Focus()
	m.status = "creating conversation..."
	return m.run("create", func(ctx context.Context) error {
		_, err := m.ctrl.CreateConversation(ctx)
		return err
	})
}

func (m Model) highlighted() (chat.Conversation, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Conversations) {
		return chat.Conversation{}, false
	}
	return m.snap.Conversations[m.cursor], true
}
