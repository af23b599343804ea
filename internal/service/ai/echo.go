package ai

import (
	"context"
	"fmt"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

// Echo answers without a model. The devstore uses it when no Ark credentials are configured.
type Echo struct{}

func (Echo) Reply(_ context.Context, history []chat.Message, userMessage string) (string, error) {
	turn := 1
	for _, m := range history {
		if m.Role == chat.RoleUser {
			turn++
		}
	}
	return fmt.Sprintf("(turn %d) You said: %s", turn, userMessage), nil
}
