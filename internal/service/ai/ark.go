package ai

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
)

const arkHistoryLimit = 20

// ArkClient serves the widget through an eino chat model (Volcengine Ark).
// Ark has no server-side chat sessions, so conversations keep their history
// locally and replay it on each turn.
type ArkClient struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewArkClient compiles the prompt chain around chatModel.
func NewArkClient(ctx context.Context, chatModel model.ChatModel) (*ArkClient, error) {
	if chatModel == nil {
		return nil, errors.New("ark chat model is nil")
	}

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
		return nil, errors.Wrap(err, "compile ark chat chain")
	}

	return &ArkClient{chatModel: chatModel, chain: runnable}, nil
}

// StartConversation returns a history-keeping conversation. The model id is
// fixed by the Ark endpoint configuration.
func (c *ArkClient) StartConversation(_ context.Context, _ string, systemInstruction string) (Conversation, error) {
	return &arkConversation{chain: c.chain, system: systemInstruction}, nil
}

// Generate sends text as a lone user message.
func (c *ArkClient) Generate(ctx context.Context, _ string, text string) (Reply, error) {
	msg, err := c.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(text)})
	if err != nil {
		return Reply{}, errors.Wrap(err, "ark generate")
	}
	if msg == nil {
		return Reply{}, errors.New("ark returned an empty message")
	}
	return Reply{Text: msg.Content}, nil
}

type arkConversation struct {
	mu      sync.Mutex
	chain   compose.Runnable[map[string]any, *schema.Message]
	system  string
	history []*schema.Message
}

func (s *arkConversation) Send(ctx context.Context, text string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  s.system,
		"history": s.recentHistory(),
		"query":   text,
	})
	if err != nil {
		return Reply{}, errors.Wrap(err, "run ark chat chain")
	}
	if response == nil {
		return Reply{}, errors.New("ark returned an empty message")
	}

	s.history = append(s.history, schema.UserMessage(text), schema.AssistantMessage(response.Content, nil))
	return Reply{Text: response.Content}, nil
}

func (s *arkConversation) recentHistory() []*schema.Message {
	if len(s.history) <= arkHistoryLimit {
		return append([]*schema.Message(nil), s.history...)
	}
	return append([]*schema.Message(nil), s.history[len(s.history)-arkHistoryLimit:]...)
}
