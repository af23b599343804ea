package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/chatclient/internal/events"
	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatclient/internal/session"
)

type fakeController struct {
	snap     session.Snapshot
	sent     []string
	selected []string
	deleted  []string
	created  int
	sendErr  error
}

func (f *fakeController) Snapshot() session.Snapshot { return f.snap }

func (f *fakeController) ListConversations(context.Context) error { return nil }

func (f *fakeController) SelectConversation(_ context.Context, conv chat.Conversation) error {
	f.selected = append(f.selected, conv.ID)
	return nil
}

func (f *fakeController) CreateConversation(context.Context) (chat.Conversation, error) {
	f.created++
	return chat.Conversation{ID: "new", Title: chat.DefaultTitle}, nil
}

func (f *fakeController) DeleteConversation(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeController) SendMessage(_ context.Context, content string) error {
	f.sent = append(f.sent, content)
	return f.sendErr
}

func twoConversations() []chat.Conversation {
	return []chat.Conversation{
		{ID: "c1", Title: "first"},
		{ID: "c2", Title: "second"},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestEnterSendsTrimmedMessage(t *testing.T) {
	ctrl := &fakeController{}
	m := New(context.Background(), ctrl)
	m.input.SetValue("  hello  ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.True(t, m.submitting)
	require.Empty(t, m.input.Value())

	done := cmd()
	require.Equal(t, []string{"hello"}, ctrl.sent)
	require.Equal(t, opDoneMsg{op: "send"}, done)

	m, _ = update(t, m, done)
	require.False(t, m.submitting)
}

func TestEnterIgnoredWhileSending(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Sending: true}}
	m := New(context.Background(), ctrl)
	m.input.SetValue("second")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Equal(t, "second", m.input.Value())
	require.Empty(t, ctrl.sent)

	// typing keeps working, only submitting waits
	m.input.CursorEnd()
	m, _ = update(t, m, keyRunes("x"))
	require.Equal(t, "secondx", m.input.Value())
}

func TestEnterIgnoredWhileSubmitting(t *testing.T) {
	ctrl := &fakeController{}
	m := New(context.Background(), ctrl)
	m.input.SetValue("one")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	m.input.SetValue("two")
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
}

func TestSubmitLockFollowsConversation(t *testing.T) {
	a := chat.Conversation{ID: "a", Title: "a"}
	b := chat.Conversation{ID: "b", Title: "b"}
	ctrl := &fakeController{snap: session.Snapshot{
		Conversations: []chat.Conversation{a, b},
		Active:        &a,
		DisplayMode:   session.DisplayTranscript,
	}}
	m := New(context.Background(), ctrl)
	m.input.SetValue("for a")

	m, sendA := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, sendA)
	require.True(t, m.submitBlocked())

	ctrl.snap.Active = &b
	m, _ = update(t, m, sessionChangedMsg{})
	require.False(t, m.submitBlocked())

	m.input.SetValue("for b")
	m, sendB := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, sendB)

	// a finishing elsewhere does not unlock b
	m, _ = update(t, m, sendA())
	require.True(t, m.submitting)
	require.True(t, m.submitBlocked())

	m, _ = update(t, m, sendB())
	require.False(t, m.submitting)
	require.Equal(t, []string{"for a", "for b"}, ctrl.sent)
}

func TestBlankInputDoesNotSend(t *testing.T) {
	ctrl := &fakeController{}
	m := New(context.Background(), ctrl)
	m.input.SetValue("   ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.False(t, m.submitting)
}

func TestFailedSendReportsStatus(t *testing.T) {
	ctrl := &fakeController{sendErr: errors.New("boom")}
	m := New(context.Background(), ctrl)
	m.input.SetValue("hi")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())
	require.False(t, m.submitting)
	require.Equal(t, "send failed", m.status)
}

func TestSessionChangeRefreshesSnapshot(t *testing.T) {
	ctrl := &fakeController{}
	m := New(context.Background(), ctrl)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	require.Empty(t, m.snap.Conversations)

	active := twoConversations()[1]
	ctrl.snap = session.Snapshot{
		Conversations: twoConversations(),
		Active:        &active,
		DisplayMode:   session.DisplayWelcome,
	}
	m, _ = update(t, m, sessionChangedMsg{change: session.Change{Revision: 1}})

	require.Len(t, m.snap.Conversations, 2)
	require.Equal(t, 1, m.cursor)
	require.Contains(t, m.View(), "How can I help you today?")
}

func TestSidebarSelectAndDelete(t *testing.T) {
	ctrl := &fakeController{snap: session.Snapshot{Conversations: twoConversations()}}
	m := New(context.Background(), ctrl)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusSidebar, m.focus)

	m, _ = update(t, m, keyRunes("j"))
	require.Equal(t, 1, m.cursor)
	m, _ = update(t, m, keyRunes("j"))
	require.Equal(t, 1, m.cursor)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()
	require.Equal(t, []string{"c2"}, ctrl.selected)
	require.Equal(t, focusInput, m.focus)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = update(t, m, keyRunes("k"))
	m, cmd = update(t, m, keyRunes("d"))
	require.Nil(t, cmd)
	require.Equal(t, "c1", m.confirmDel)

	// anything but a confirmation cancels
	m, cmd = update(t, m, keyRunes("n"))
	require.Nil(t, cmd)
	require.Empty(t, m.confirmDel)
	require.Empty(t, ctrl.deleted)

	m, _ = update(t, m, keyRunes("d"))
	_, cmd = update(t, m, keyRunes("y"))
	require.NotNil(t, cmd)
	cmd()
	require.Equal(t, []string{"c1"}, ctrl.deleted)
}

func TestCtrlNCreatesConversation(t *testing.T) {
	ctrl := &fakeController{}
	m := New(context.Background(), ctrl)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	require.NotNil(t, cmd)
	require.Equal(t, opDoneMsg{op: "create"}, cmd())
	require.Equal(t, 1, ctrl.created)

	m, _ = update(t, m, opDoneMsg{op: "create"})
	require.Equal(t, "new conversation", m.status)
}

func TestToastExpires(t *testing.T) {
	m := New(context.Background(), &fakeController{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m, cmd := update(t, m, notificationMsg{notification: session.Notification{
		Level:       session.LevelError,
		Title:       "Message not sent",
		Description: "try again",
	}})
	require.NotNil(t, cmd)
	require.NotNil(t, m.toast)
	require.Contains(t, m.View(), "Message not sent: try again")

	// a newer toast outlives the timer of the older one
	m, _ = update(t, m, notificationMsg{notification: session.Notification{Level: session.LevelInfo, Title: "Saved"}})
	m, _ = update(t, m, toastExpiredMsg{seq: 1})
	require.NotNil(t, m.toast)

	m, _ = update(t, m, toastExpiredMsg{seq: 2})
	require.Nil(t, m.toast)
}

func TestViewShowsTranscriptAndPendingMarker(t *testing.T) {
	active := chat.Conversation{ID: "c1", Title: "first"}
	ctrl := &fakeController{snap: session.Snapshot{
		Conversations: []chat.Conversation{active},
		Active:        &active,
		DisplayMode:   session.DisplayTranscript,
		Sending:       true,
		Transcript: []chat.Message{
			{ID: chat.NewProvisionalID(), ConversationID: "c1", Role: chat.RoleUser, Content: "hello there"},
		},
	}}
	m := New(context.Background(), ctrl)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	view := m.View()
	require.Contains(t, view, "hello there")
	require.Contains(t, view, "sending")
	require.Contains(t, view, "waiting for the assistant")
}

func TestEnvelopeMsg(t *testing.T) {
	change := session.Change{Revision: 7, Reason: "messages_loaded"}
	require.Equal(t, sessionChangedMsg{change: change}, envelopeMsg(events.Envelope{Kind: events.KindChanged, Change: &change}))

	n := session.Notification{Level: session.LevelInfo, Title: "hi"}
	require.Equal(t, notificationMsg{notification: n}, envelopeMsg(events.Envelope{Kind: events.KindNotification, Notification: &n}))

	require.Nil(t, envelopeMsg(events.Envelope{Kind: events.KindChanged}))
	require.Nil(t, envelopeMsg(events.Envelope{Kind: "other"}))
}

func TestFormatDate(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) // a Friday

	cases := []struct {
		name string
		at   time.Time
		want string
	}{
		{"same day", now.Add(-2 * time.Hour), "10:00"},
		{"yesterday", now.Add(-30 * time.Hour), "Yesterday"},
		{"this week", now.Add(-3 * 24 * time.Hour), "Tuesday"},
		{"older", now.Add(-10 * 24 * time.Hour), "05/03"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, formatDate(tc.at, now))
		})
	}
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
