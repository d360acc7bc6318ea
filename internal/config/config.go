package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ONESKY_"

// Config contains all runtime settings for the volunteering backend.
type Config struct {
	BindAddr                 string        `koanf:"bind_addr"`
	ShutdownTimeout          time.Duration `koanf:"shutdown_timeout"`
	SessionInactivityTimeout time.Duration `koanf:"session_inactivity_timeout"`
	MetricsNamespace         string        `koanf:"metrics_namespace"`

	AllowAnyOrigin bool     `koanf:"allow_any_origin"`
	CORSOrigins    []string `koanf:"cors_origins"`
	ChatRateLimit  int      `koanf:"chat_rate_limit"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	DatabaseURL string `koanf:"database_url"`

	JWTSecret    string        `koanf:"jwt_secret"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	CookieSecure bool          `koanf:"cookie_secure"`

	// LLMProvider selects the chat oracle: auto, openai, gemini or mock.
	LLMProvider          string `koanf:"llm_provider"`
	OpenAIAPIKey         string `koanf:"openai_api_key"`
	OpenAIBaseURL        string `koanf:"openai_base_url"`
	RoutingModel         string `koanf:"routing_model"`
	ReplyModel           string `koanf:"reply_model"`
	EmbeddingModel       string `koanf:"embedding_model"`
	GeminiAPIKey         string `koanf:"gemini_api_key"`
	GeminiModel          string `koanf:"gemini_model"`
	GeminiEmbeddingModel string `koanf:"gemini_embedding_model"`
	LLMBreakerEnabled    bool   `koanf:"llm_breaker_enabled"`

	EmbeddingCacheDir         string        `koanf:"embedding_cache_dir"`
	EmbeddingBackfillInterval time.Duration `koanf:"embedding_backfill_interval"`

	ConcurrentCapabilities bool `koanf:"concurrent_capabilities"`
}

// New returns the defaults every other layer is applied on top of.
func New() Config {
	return Config{
		BindAddr:                 ":8080",
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		MetricsNamespace:         "onesky",
		ChatRateLimit:            30,
		LogLevel:                 "info",
		LogFormat:                "json",
		TokenTTL:                 time.Hour,
		LLMProvider:              "auto",
		OpenAIBaseURL:            "https://api.openai.com/v1",
		RoutingModel:             "gpt-5-nano",
		ReplyModel:               "gpt-4.1-nano",
		EmbeddingModel:           "text-embedding-3-small",
		GeminiModel:              "gemini-2.0-flash",
		GeminiEmbeddingModel:     "gemini-embedding-001",
		LLMBreakerEnabled:        true,
	}
}

// Load builds a Config by layering defaults, an optional YAML file named by
// ONESKY_CONFIG, and ONESKY_* environment variables (highest precedence).
func Load() (Config, error) {
	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %q: %w", path, err)
		}
	}

	// Empty variables keep the lower layer, matching unset ones.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "cors_origins" {
			return key, strings.Split(value, ",")
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.OpenAIAPIKey = strings.TrimSpace(c.OpenAIAPIKey)
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.OpenAIBaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAIBaseURL), "/")

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("ONESKY_BIND_ADDR must not be empty")
	}
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("ONESKY_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("ONESKY_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("ONESKY_TOKEN_TTL must be positive")
	}
	if c.ChatRateLimit < 0 {
		return fmt.Errorf("ONESKY_CHAT_RATE_LIMIT must be >= 0")
	}
	if c.EmbeddingBackfillInterval < 0 {
		return fmt.Errorf("ONESKY_EMBEDDING_BACKFILL_INTERVAL must be >= 0")
	}
	switch c.LLMProvider {
	case "auto", "mock":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("ONESKY_LLM_PROVIDER=openai requires ONESKY_OPENAI_API_KEY")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("ONESKY_LLM_PROVIDER=gemini requires ONESKY_GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("invalid ONESKY_LLM_PROVIDER: %q (expected auto|openai|gemini|mock)", c.LLMProvider)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid ONESKY_LOG_FORMAT: %q (expected json|console)", c.LogFormat)
	}
	return nil
}
