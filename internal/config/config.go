package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"
)

// Provider names a generative backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderArk    Provider = "ark"
)

// Config aggregates the service configuration.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	Widget  WidgetConfig
	Events  EventsConfig
	Persona PersonaConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	widget, err := loadWidgetConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
		AI:     ai,
		Widget: widget,
		Events: EventsConfig{
			RedisAddr: strings.TrimSpace(os.Getenv("EVENTS_REDIS_ADDR")),
		},
		Persona: PersonaConfig{
			File: strings.TrimSpace(os.Getenv("PERSONA_FILE")),
		},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// loadServerConfig parses the listen address.
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, errors.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string
	Format string
}

// AIConfig describes the generative backend.
type AIConfig struct {
	Provider Provider

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// WidgetConfig tunes chat widget instances.
type WidgetConfig struct {
	// MaxInFlight bounds concurrent sends per widget; 0 means unbounded.
	MaxInFlight int
	// ShutdownGrace is how long the server waits for background sends on exit.
	ShutdownGrace time.Duration
	// Greeting seeds each transcript with the persona's greeting bubble.
	Greeting bool
}

// EventsConfig selects the widget event transport.
type EventsConfig struct {
	// RedisAddr enables Redis Streams when set; otherwise events stay in process.
	RedisAddr string
}

// PersonaConfig points at an optional YAML persona file.
type PersonaConfig struct {
	File string
}

// ModelName returns the model id the selected provider is configured with.
// Empty means each persona's own model.
func (c AIConfig) ModelName() string {
	if c.Provider == ProviderArk {
		return c.Model
	}
	return c.GeminiModel
}

// ArkEnabled reports whether Ark credentials are present.
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, errors.New("ark credentials or model missing: set ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := Provider(strings.ToLower(getEnvOrDefault("AI_PROVIDER", string(ProviderGemini))))
	if provider != ProviderGemini && provider != ProviderArk {
		return AIConfig{}, errors.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	geminiKey := strings.TrimSpace(os.Getenv("API_KEY"))
	if geminiKey == "" {
		geminiKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}

	return AIConfig{
		Provider:      provider,
		GeminiAPIKey:  geminiKey,
		GeminiModel:   strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
		GeminiBaseURL: strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("Model")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
	}, nil
}

func loadWidgetConfig() (WidgetConfig, error) {
	maxInFlight := 0
	if override, err := parseOptionalIntEnv("WIDGET_MAX_IN_FLIGHT"); err != nil {
		return WidgetConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return WidgetConfig{}, errors.Errorf("invalid WIDGET_MAX_IN_FLIGHT value %d: must be >= 0", *override)
		}
		maxInFlight = *override
	}

	grace := 30 * time.Second
	if raw := strings.TrimSpace(os.Getenv("WIDGET_SHUTDOWN_GRACE")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return WidgetConfig{}, errors.Wrapf(err, "invalid WIDGET_SHUTDOWN_GRACE value %q", raw)
		}
		grace = parsed
	}

	greeting, err := parseBoolEnv("WIDGET_GREETING", true)
	if err != nil {
		return WidgetConfig{}, err
	}

	return WidgetConfig{MaxInFlight: maxInFlight, ShutdownGrace: grace, Greeting: greeting}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s value %q", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	return &val, nil
}
