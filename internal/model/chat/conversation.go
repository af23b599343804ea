package chat

import (
	"strings"
	"time"
)

// DefaultTitle is used for conversations created before their first message.
const DefaultTitle = "New conversation"

// titleTokens is how many words of the first message become the title.
const titleTokens = 5

// Conversation is a titled thread of messages owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WithTitle returns a copy of the conversation carrying the new title.
func (c Conversation) WithTitle(title string) Conversation {
	c.Title = title
	return c
}

// DeriveTitle builds a conversation title from the first words of a message.
func DeriveTitle(content string) string {
	fields := strings.Fields(content)
	if len(fields) > titleTokens {
		fields = fields[:titleTokens]
	}
	return strings.Join(fields, " ")
}
