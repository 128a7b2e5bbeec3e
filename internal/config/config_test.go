package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "AI_PROVIDER", "API_KEY", "GEMINI_API_KEY", "GEMINI_MODEL",
		"WIDGET_MAX_IN_FLIGHT", "WIDGET_SHUTDOWN_GRACE", "WIDGET_GREETING",
		"EVENTS_REDIS_ADDR", "PERSONA_FILE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Empty(t, cfg.AI.GeminiAPIKey)
	assert.Equal(t, 0, cfg.Widget.MaxInFlight)
	assert.Equal(t, 30*time.Second, cfg.Widget.ShutdownGrace)
	assert.True(t, cfg.Widget.Greeting)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.Events.RedisAddr)
}

func TestLoadGeminiKeyPrecedence(t *testing.T) {
	t.Setenv("API_KEY", "primary")
	t.Setenv("GEMINI_API_KEY", "secondary")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.AI.GeminiAPIKey)

	t.Setenv("API_KEY", "")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "secondary", cfg.AI.GeminiAPIKey)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("AI_PROVIDER", "ARK")
	t.Setenv("WIDGET_MAX_IN_FLIGHT", "2")
	t.Setenv("WIDGET_SHUTDOWN_GRACE", "5s")
	t.Setenv("WIDGET_GREETING", "false")
	t.Setenv("EVENTS_REDIS_ADDR", "localhost:6379")
	t.Setenv("ARK_MAX_TOKENS", "512")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, ProviderArk, cfg.AI.Provider)
	assert.Equal(t, 2, cfg.Widget.MaxInFlight)
	assert.Equal(t, 5*time.Second, cfg.Widget.ShutdownGrace)
	assert.False(t, cfg.Widget.Greeting)
	assert.Equal(t, "localhost:6379", cfg.Events.RedisAddr)
	require.NotNil(t, cfg.AI.MaxTokens)
	assert.Equal(t, 512, *cfg.AI.MaxTokens)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string][2]string{
		"port":          {"PORT", "80 80"},
		"provider":      {"AI_PROVIDER", "openai"},
		"in flight":     {"WIDGET_MAX_IN_FLIGHT", "-1"},
		"in flight nan": {"WIDGET_MAX_IN_FLIGHT", "many"},
		"grace":         {"WIDGET_SHUTDOWN_GRACE", "soon"},
		"greeting":      {"WIDGET_GREETING", "maybe"},
		"temperature":   {"ARK_TEMPERATURE", "hot"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestArkEnabled(t *testing.T) {
	assert.False(t, AIConfig{}.ArkEnabled())
	assert.True(t, AIConfig{Model: "ep-1", APIKey: "k"}.ArkEnabled())
	assert.True(t, AIConfig{Model: "ep-1", AccessKey: "a", SecretKey: "s"}.ArkEnabled())
	assert.False(t, AIConfig{Model: "ep-1", AccessKey: "a"}.ArkEnabled())
}

func TestModelNameFollowsProvider(t *testing.T) {
	gemini := AIConfig{Provider: ProviderGemini, GeminiModel: "gemini-2.5-pro", Model: "ep-123"}
	assert.Equal(t, "gemini-2.5-pro", gemini.ModelName())

	ark := AIConfig{Provider: ProviderArk, GeminiModel: "gemini-2.5-pro", Model: "ep-123"}
	assert.Equal(t, "ep-123", ark.ModelName())

	assert.Empty(t, AIConfig{Provider: ProviderGemini}.ModelName())
}
