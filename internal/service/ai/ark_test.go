package ai

import (
	"context"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatModel stands in for the Ark endpoint.
type fakeChatModel struct {
	mu     sync.Mutex
	inputs [][]*schema.Message
	err    error
	reply  string
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
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

func (f *fakeChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

func (f *fakeChatModel) lastInput(t *testing.T) []*schema.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.inputs)
	return f.inputs[len(f.inputs)-1]
}

func TestArkConversationReplaysHistory(t *testing.T) {
	fake := &fakeChatModel{reply: "Haan ji"}
	client, err := NewArkClient(context.Background(), fake)
	require.NoError(t, err)

	conv, err := client.StartConversation(context.Background(), "ignored", "Be concise.")
	require.NoError(t, err)

	reply, err := conv.Send(context.Background(), "PF registration?")
	require.NoError(t, err)
	assert.Equal(t, "Haan ji", reply.Text)

	first := fake.lastInput(t)
	require.Len(t, first, 2)
	assert.Equal(t, schema.System, first[0].Role)
	assert.Equal(t, "Be concise.", first[0].Content)
	assert.Equal(t, "PF registration?", first[1].Content)

	_, err = conv.Send(context.Background(), "Documents?")
	require.NoError(t, err)

	second := fake.lastInput(t)
	require.Len(t, second, 4)
	assert.Equal(t, schema.User, second[1].Role)
	assert.Equal(t, schema.Assistant, second[2].Role)
	assert.Equal(t, "Haan ji", second[2].Content)
	assert.Equal(t, "Documents?", second[3].Content)
}

func TestArkConversationFailureKeepsHistoryClean(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("quota exceeded")}
	client, err := NewArkClient(context.Background(), fake)
	require.NoError(t, err)

	conv, err := client.StartConversation(context.Background(), "", "sys")
	require.NoError(t, err)

	_, err = conv.Send(context.Background(), "hello")
	require.Error(t, err)

	fake.mu.Lock()
	fake.err = nil
	fake.reply = "ok"
	fake.mu.Unlock()

	_, err = conv.Send(context.Background(), "again")
	require.NoError(t, err)
	assert.Len(t, fake.lastInput(t), 2)
}

func TestArkGenerateSendsLoneUserMessage(t *testing.T) {
	fake := &fakeChatModel{reply: ""}
	client, err := NewArkClient(context.Background(), fake)
	require.NoError(t, err)

	reply, err := client.Generate(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Empty(t, reply.Text)

	input := fake.lastInput(t)
	require.Len(t, input, 1)
	assert.Equal(t, schema.User, input[0].Role)
}

func TestNewArkClientRejectsNilModel(t *testing.T) {
	_, err := NewArkClient(context.Background(), nil)
	assert.Error(t, err)
}
