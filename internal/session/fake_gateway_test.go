package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

// fakeGateway is an in-memory remote store. Gates let a test hold a call open
// while it changes the session underneath.
type fakeGateway struct {
	mu            sync.Mutex
	conversations []chat.Conversation
	messages      map[string][]chat.Message
	seq           int

	listErr   error
	createErr error
	deleteErr error
	getErr    error
	sendErr   error
	renameErr error

	createdTitles []string
	renamed       map[string]string
	sends         []string

	sendStarted   chan string
	sendGate      chan struct{}
	getGateFor    string
	getStarted    chan string
	getGate       chan struct{}
	createStarted chan struct{}
	createGate    chan struct{}
}

func newFakeGateway(conversations ...chat.Conversation) *fakeGateway {
	g := &fakeGateway{
		messages: make(map[string][]chat.Message),
		renamed:  make(map[string]string),
	}
	g.conversations = append(g.conversations, conversations...)
	return g
}

func (g *fakeGateway) seed(convID string, contents ...string) []chat.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, content := range contents {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		g.seq++
		g.messages[convID] = append(g.messages[convID], chat.Message{
			ID:             chat.ConfirmedID(fmt.Sprintf("seed-%d", g.seq)),
			ConversationID: convID,
			Role:           role,
			Content:        content,
		})
	}
	return append([]chat.Message(nil), g.messages[convID]...)
}

func (g *fakeGateway) ListConversations(context.Context) ([]chat.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]chat.Conversation(nil), g.conversations...), nil
}

func (g *fakeGateway) CreateConversation(_ context.Context, title string) (chat.Conversation, error) {
	g.mu.Lock()
	started, gate := g.createStarted, g.createGate
	g.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return chat.Conversation{}, g.createErr
	}
	g.seq++
	g.createdTitles = append(g.createdTitles, title)
	c := chat.Conversation{ID: fmt.Sprintf("c-%d", g.seq), Title: title, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	g.conversations = append([]chat.Conversation{c}, g.conversations...)
	return c, nil
}

func (g *fakeGateway) DeleteConversation(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	kept := g.conversations[:0]
	for _, c := range g.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	g.conversations = kept
	delete(g.messages, id)
	return nil
}

// GetMessages reads the stored messages when the request arrives; a gated
// call answers with that read only once released.
func (g *fakeGateway) GetMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	g.mu.Lock()
	started, gate := g.getStarted, g.getGate
	gated := gate != nil && conversationID == g.getGateFor
	err := g.getErr
	messages := append([]chat.Message(nil), g.messages[conversationID]...)
	g.mu.Unlock()

	if gated {
		if started != nil {
			started <- conversationID
		}
		<-gate
	}

	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (g *fakeGateway) SendMessage(_ context.Context, conversationID, content string) (chat.Exchange, error) {
	g.mu.Lock()
	g.sends = append(g.sends, content)
	started, gate := g.sendStarted, g.sendGate
	g.mu.Unlock()

	if started != nil {
		started <- conversationID
	}
	if gate != nil {
		<-gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return chat.Exchange{}, g.sendErr
	}
	g.seq++
	ex := chat.Exchange{
		User: chat.Message{
			ID:             chat.ConfirmedID(fmt.Sprintf("u-%d", g.seq)),
			ConversationID: conversationID,
			Role:           chat.RoleUser,
			Content:        content,
		},
		Assistant: chat.Message{
			ID:             chat.ConfirmedID(fmt.Sprintf("a-%d", g.seq)),
			ConversationID: conversationID,
			Role:           chat.RoleAssistant,
			Content:        "echo: " + content,
		},
	}
	g.messages[conversationID] = append(g.messages[conversationID], ex.Messages()...)
	return ex, nil
}

func (g *fakeGateway) RenameConversation(_ context.Context, id, title string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.renameErr != nil {
		return g.renameErr
	}
	g.renamed[id] = title
	return nil
}

func (g *fakeGateway) sentContents() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.sends...)
}

func (g *fakeGateway) sendCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sends)
}

type recordingObserver struct {
	mu      sync.Mutex
	changes []Change
	notes   []Notification
}

func (r *recordingObserver) SessionChanged(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recordingObserver) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingObserver) notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func (r *recordingObserver) reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Reason)
	}
	return out
}
