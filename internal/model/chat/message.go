package chat

import (
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of a conversation.
type Message struct {
	ID             MessageID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsProvisional reports whether the message is still waiting for the remote store.
func (m Message) IsProvisional() bool {
	return m.ID.IsProvisional()
}

// NewProvisionalUserMessage builds the placeholder shown while a send is outstanding.
func NewProvisionalUserMessage(conversationID, content string, now time.Time) Message {
	return Message{
		ID:             NewProvisionalID(),
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		CreatedAt:      now.UTC(),
	}
}

// Exchange is the confirmed result of one send: the user's turn and the reply to it.
type Exchange struct {
	User      Message
	Assistant Message
}

// Messages returns the exchange in send order.
func (e Exchange) Messages() []Message {
	return []Message{e.User, e.Assistant}
}
