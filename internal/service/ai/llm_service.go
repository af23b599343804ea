package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatclient/internal/config"
	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

// Service answers user messages through an eino chain over a chat model.
type Service struct {
	chatModel    model.ChatModel
	systemPrompt string
	historyLimit int
	chain        compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the Ark chat model described by cfg and compiles the chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg.SystemPrompt, cfg.HistoryLimit)
}

// NewServiceWithModel compiles the chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, systemPrompt string, historyLimit int) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		systemPrompt: systemPrompt,
		historyLimit: historyLimit,
		chain:        runnable,
	}, nil
}

// Reply generates the assistant's answer to userMessage given the prior turns.
func (s *Service) Reply(ctx context.Context, history []chat.Message, userMessage string) (string, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(history, userMessage))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Debug().
		Str("component", "ai").
		Int("history", len(history)).
		Int("length", len(response.Content)).
		Msg("generated response")
	return strings.TrimSpace(response.Content), nil
}

func (s *Service) buildChainInput(history []chat.Message, userMessage string) map[string]any {
	return map[string]any{
		"system":  s.systemPrompt,
		"history": s.buildHistoryMessages(history),
		"query":   userMessage,
	}
}

func (s *Service) buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 || s.historyLimit == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > s.historyLimit {
		startIdx = len(messages) - s.historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
