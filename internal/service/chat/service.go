package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrTitleRequired        = errors.New("title is required")
	ErrMessageRequired      = errors.New("message is required")
)

// Responder produces the assistant's reply to the latest user message.
type Responder interface {
	Reply(ctx context.Context, history []chat.Message, userMessage string) (string, error)
}

// Service is the development store's in-memory conversation state.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
	now           func() time.Time
}

// NewService bootstraps an empty in-memory store.
func NewService() *Service {
	return &Service{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateConversation provisions a conversation for userID.
func (s *Service) CreateConversation(_ context.Context, userID, title string) (chat.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = chat.DefaultTitle
	}

	now := s.now()
	conversation := chat.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conversation.ID] = conversation
	s.messages[conversation.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return conversation, nil
}

// ListConversations returns the conversations of userID, most recently updated first.
func (s *Service) ListConversations(_ context.Context, userID string) []chat.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// GetConversation retrieves a conversation owned by userID.
func (s *Service) GetConversation(_ context.Context, userID, id string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return c, nil
}

// RenameConversation updates a conversation's title.
func (s *Service) RenameConversation(_ context.Context, userID, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrTitleRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return ErrConversationNotFound
	}
	c.Title = title
	c.UpdatedAt = s.now()
	s.conversations[id] = c
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Service) DeleteConversation(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

// LoadTranscript returns the stored messages of a conversation in order.
func (s *Service) LoadTranscript(_ context.Context, userID, id string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return nil, ErrConversationNotFound
	}

	messages := s.messages[id]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// SaveMessage appends a message with a fresh id and bumps the conversation.
func (s *Service) SaveMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[message.ConversationID]
	if !ok {
		return chat.Message{}, ErrConversationNotFound
	}

	message.ID = chat.ConfirmedID(uuid.NewString())
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}

	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], message)
	c.UpdatedAt = message.CreatedAt
	s.conversations[c.ID] = c
	return message, nil
}

// Exchange stores the user's message, asks responder for a reply and stores it.
// When the responder fails the user message is dropped again.
func (s *Service) Exchange(ctx context.Context, userID, conversationID, content string, responder Responder) (chat.Exchange, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return chat.Exchange{}, ErrMessageRequired
	}

	history, err := s.LoadTranscript(ctx, userID, conversationID)
	if err != nil {
		return chat.Exchange{}, err
	}

	user, err := s.SaveMessage(ctx, chat.Message{
		ConversationID: conversationID,
		Role:           chat.RoleUser,
		Content:        content,
	})
	if err != nil {
		return chat.Exchange{}, err
	}

	reply, err := responder.Reply(ctx, history, content)
	if err != nil {
		s.removeMessage(conversationID, user.ID)
		return chat.Exchange{}, err
	}

	assistant, err := s.SaveMessage(ctx, chat.Message{
		ConversationID: conversationID,
		Role:           chat.RoleAssistant,
		Content:        reply,
	})
	if err != nil {
		return chat.Exchange{}, err
	}

	return chat.Exchange{User: user, Assistant: assistant}, nil
}

func (s *Service) removeMessage(conversationID string, id chat.MessageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := s.messages[conversationID]
	for i, m := range messages {
		if m.ID == id {
			s.messages[conversationID] = append(messages[:i:i], messages[i+1:]...)
			return
		}
	}
}
