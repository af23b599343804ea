package session

import (
	"context"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

// Gateway is the remote store the controller keeps the session consistent with.
// Every method either resolves or fails with a descriptive error.
type Gateway interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	CreateConversation(ctx context.Context, title string) (chat.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	GetMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	SendMessage(ctx context.Context, conversationID, content string) (chat.Exchange, error)
	RenameConversation(ctx context.Context, id, title string) error
}

// Level grades a user-visible notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a short message for the user, e.g. a toast.
type Notification struct {
	Level       Level  `json:"level"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Detail      string `json:"detail,omitempty"`
}

// Change describes one applied state transition.
type Change struct {
	Revision       uint64 `json:"revision"`
	Reason         string `json:"reason"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Observer receives state changes and notifications. Implementations must not
// block for long; they are called outside the controller lock.
type Observer interface {
	SessionChanged(Change)
	Notify(Notification)
}

type nopObserver struct{}

func (nopObserver) SessionChanged(Change) {}
func (nopObserver) Notify(Notification)   {}
