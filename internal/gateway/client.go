package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatclient/internal/session"
)

// maxErrorBody bounds how much of a failed response is read for its reason.
const maxErrorBody = 64 << 10

// Config describes how to reach the remote store.
type Config struct {
	BaseURL          string
	Token            string
	AllowOpaqueToken bool
	Timeout          time.Duration
}

// Client talks to the conversation REST API.
type Client struct {
	baseURL          *url.URL
	token            string
	allowOpaqueToken bool
	http             *http.Client
}

var _ session.Gateway = (*Client)(nil)

// New validates cfg and returns a Client.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("gateway base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid gateway base url %q", raw)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("unsupported gateway url scheme %q", base.Scheme)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:          base,
		token:            strings.TrimSpace(cfg.Token),
		allowOpaqueToken: cfg.AllowOpaqueToken,
		http:             httpClient,
	}, nil
}

// ListConversations returns the user's conversations, newest first.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	if err := c.do(ctx, opListConversations, http.MethodGet, "/chat/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateConversation creates a conversation titled title.
func (c *Client) CreateConversation(ctx context.Context, title string) (chat.Conversation, error) {
	var out chat.Conversation
	body := map[string]string{"title": title}
	if err := c.do(ctx, opCreateConversation, http.MethodPost, "/chat/conversations", body, &out); err != nil {
		return chat.Conversation{}, err
	}
	if out.ID == "" {
		return chat.Conversation{}, &Error{Op: opCreateConversation, Reason: "response carried no conversation id"}
	}
	return out, nil
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, opDeleteConversation, http.MethodDelete, conversationPath(id), nil, nil)
}

// GetMessages returns the transcript of a conversation in order.
func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var out []chat.Message
	if err := c.do(ctx, opGetMessages, http.MethodGet, conversationPath(conversationID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ConversationID == "" {
			out[i].ConversationID = conversationID
		}
	}
	return out, nil
}

// sendResponse accepts both the bare assistant message and the pair shape.
type sendResponse struct {
	chat.Message
	UserMessage      *chat.Message `json:"user_message"`
	AssistantMessage *chat.Message `json:"assistant_message"`
}

// SendMessage posts content and returns the confirmed exchange. When the
// remote only returns the reply, the user turn is rebuilt from the request.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (chat.Exchange, error) {
	body := map[string]string{
		"conversation_id": conversationID,
		"message":         content,
	}
	sentAt := time.Now().UTC()

	var resp sendResponse
	if err := c.do(ctx, opSendMessage, http.MethodPost, "/chat/message", body, &resp); err != nil {
		return chat.Exchange{}, err
	}

	assistant := resp.Message
	if resp.AssistantMessage != nil {
		assistant = *resp.AssistantMessage
	}
	if assistant.ID.IsZero() {
		return chat.Exchange{}, &Error{Op: opSendMessage, Reason: "response carried no assistant message"}
	}
	if assistant.ConversationID == "" {
		assistant.ConversationID = conversationID
	}
	if assistant.Role == "" {
		assistant.Role = chat.RoleAssistant
	}

	var user chat.Message
	if resp.UserMessage != nil && !resp.UserMessage.ID.IsZero() {
		user = *resp.UserMessage
		if user.ConversationID == "" {
			user.ConversationID = conversationID
		}
	} else {
		user = echoUserMessage(conversationID, content, assistant, sentAt)
	}

	return chat.Exchange{User: user, Assistant: assistant}, nil
}

// RenameConversation changes a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	return c.do(ctx, opRenameConversation, http.MethodPatch, conversationPath(id), map[string]string{"title": title}, nil)
}

func echoUserMessage(conversationID, content string, assistant chat.Message, sentAt time.Time) chat.Message {
	createdAt := sentAt
	if !assistant.CreatedAt.IsZero() && assistant.CreatedAt.Before(createdAt) {
		createdAt = assistant.CreatedAt
	}
	return chat.Message{
		ID:             chat.ConfirmedID("echo:" + assistant.ID.String()),
		ConversationID: conversationID,
		Role:           chat.RoleUser,
		Content:        content,
		CreatedAt:      createdAt,
	}
}

func conversationPath(id string) string {
	return "/chat/conversations/" + url.PathEscape(id)
}

func (c *Client) authHeader() (string, error) {
	if c.token == "" {
		return "", errors.New("no valid token, please log in again")
	}
	if !c.allowOpaqueToken && !strings.Contains(c.token, ".") {
		return "", errors.New("no valid token, please log in again")
	}
	return "Bearer " + c.token, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	auth, err := c.authHeader()
	if err != nil {
		return &Error{Op: op, Reason: err.Error()}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Reason: "could not encode request", cause: err}
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &Error{Op: op, Reason: "could not build request", cause: err}
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Reason: "service unavailable", cause: err}
	}
	defer resp.Body.Close()

	log.Debug().
		Str("component", "gateway").
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("remote call finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, Status: resp.StatusCode, Reason: readReason(resp.Body, defaultReasons[op])}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Reason: "could not decode response", cause: err}
	}
	return nil
}

// readReason extracts `detail` (or `error`, `message`) from a JSON error body.
func readReason(r io.Reader, fallback string) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return fallback
	}
	var payload struct {
		Detail  any    `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fallback
	}
	switch d := payload.Detail.(type) {
	case string:
		if strings.TrimSpace(d) != "" {
			return d
		}
	case nil:
	default:
		// Validation errors sometimes come back as structured detail.
		return fmt.Sprintf("%s: %v", fallback, d)
	}
	if payload.Error != "" {
		return payload.Error
	}
	if payload.Message != "" {
		return payload.Message
	}
	return fallback
}
