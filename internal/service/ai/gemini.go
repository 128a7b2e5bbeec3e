package ai

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// GeminiOptions configures a Gemini API client.
type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiClient talks to the Gemini API through google.golang.org/genai.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient builds a client for the Gemini developer API.
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &GeminiClient{client: client}, nil
}

// StartConversation creates a chat session that keeps turn history.
func (c *GeminiClient) StartConversation(ctx context.Context, model, systemInstruction string) (Conversation, error) {
	var cfg *genai.GenerateContentConfig
	if systemInstruction != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		}
	}

	chat, err := c.client.Chats.Create(ctx, model, cfg, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "create gemini chat for model %s", model)
	}
	return &geminiConversation{chat: chat}, nil
}

// Generate runs a single-turn generateContent call.
func (c *GeminiClient) Generate(ctx context.Context, model, text string) (Reply, error) {
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(text), nil)
	if err != nil {
		return Reply{}, errors.Wrap(err, "gemini generate content")
	}
	return geminiReply(resp)
}

// geminiConversation serializes turns: the chat history is appended after
// each reply, so a second turn must see the first one's answer.
type geminiConversation struct {
	mu   sync.Mutex
	chat *genai.Chat
}

func (s *geminiConversation) Send(ctx context.Context, text string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return Reply{}, errors.Wrap(err, "gemini send message")
	}
	return geminiReply(resp)
}

func geminiReply(resp *genai.GenerateContentResponse) (Reply, error) {
	if resp == nil {
		return Reply{}, errors.New("gemini returned an empty response")
	}
	return Reply{Text: resp.Text()}, nil
}
