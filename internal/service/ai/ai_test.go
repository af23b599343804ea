package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

type fakeChatModel struct {
	reply string
	err   error
	input []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func history(contents ...string) []chat.Message {
	out := make([]chat.Message, 0, len(contents))
	for i, c := range contents {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		out = append(out, chat.Message{Role: role, Content: c})
	}
	return out
}

func TestEchoCountsTurns(t *testing.T) {
	reply, err := Echo{}.Reply(context.Background(), nil, "hello")
	require.NoError(t, err)
	require.Equal(t, "(turn 1) You said: hello", reply)

	reply, err = Echo{}.Reply(context.Background(), history("a", "b", "c", "d"), "again")
	require.NoError(t, err)
	require.Equal(t, "(turn 3) You said: again", reply)
}

func TestBuildHistoryMessagesKeepsMostRecent(t *testing.T) {
	s := &Service{historyLimit: 2}

	msgs := s.buildHistoryMessages(history("a", "b", "c", "d"))
	require.Len(t, msgs, 2)
	require.Equal(t, schema.User, msgs[0].Role)
	require.Equal(t, "c", msgs[0].Content)
	require.Equal(t, schema.Assistant, msgs[1].Role)
	require.Equal(t, "d", msgs[1].Content)

	s.historyLimit = 0
	require.Nil(t, s.buildHistoryMessages(history("a", "b")))
}

func TestReplyRunsChain(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChatModel{reply: "  answer  "}

	svc, err := NewServiceWithModel(ctx, fake, "be brief", 10)
	require.NoError(t, err)

	reply, err := svc.Reply(ctx, history("hi", "hello"), "how are you")
	require.NoError(t, err)
	require.Equal(t, "answer", reply)

	require.Len(t, fake.input, 4)
	require.Equal(t, schema.System, fake.input[0].Role)
	require.Equal(t, "be brief", fake.input[0].Content)
	require.Equal(t, "how are you", fake.input[3].Content)
}

func TestReplyWrapsModelError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("quota exceeded")

	svc, err := NewServiceWithModel(ctx, &fakeChatModel{err: boom}, "", 10)
	require.NoError(t, err)

	_, err = svc.Reply(ctx, nil, "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "quota exceeded")
}
