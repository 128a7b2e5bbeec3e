package ai

import (
	"context"

	"github.com/pkg/errors"

	"github.com/consultationhouse/site/backend/internal/config"
)

// NewClientFactory picks the backend named by cfg.Provider. The returned
// factory reads the credential on every call, so a missing key surfaces as
// a construction error at the time a client is needed.
func NewClientFactory(cfg config.AIConfig) (ClientFactory, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		opts := GeminiOptions{APIKey: cfg.GeminiAPIKey, BaseURL: cfg.GeminiBaseURL}
		return func(ctx context.Context) (Client, error) {
			return NewGeminiClient(ctx, opts)
		}, nil
	case config.ProviderArk:
		return func(ctx context.Context) (Client, error) {
			chatModel, err := cfg.NewChatModel(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "create ark chat model")
			}
			return NewArkClient(ctx, chatModel)
		}, nil
	default:
		return nil, errors.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
