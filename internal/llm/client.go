package llm

import (
	"context"
	"fmt"
	"strings"
)

// Config controls provider selection.
type Config struct {
	Provider             string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	GeminiAPIKey         string
	GeminiModel          string
	GeminiEmbeddingModel string
}

// Clients is the resolved chat client and embedder plus the provider name.
type Clients struct {
	Provider string
	Chat     ChatClient
	Embedder Embedder
}

// New resolves the configured provider. In auto mode OpenAI is preferred,
// Gemini becomes its fallback when both keys are present, and the mock
// client is used when neither is.
func New(ctx context.Context, cfg Config) (Clients, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}

	newOpenAI := func() *OpenAIClient {
		return NewOpenAIClient(OpenAIConfig{
			BaseURL:        cfg.OpenAIBaseURL,
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.OpenAIModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
		})
	}
	newGemini := func() (*GeminiClient, error) {
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbeddingModel)
	}

	switch mode {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return Clients{}, fmt.Errorf("openai provider requires an API key")
		}
		c := newOpenAI()
		return Clients{Provider: "openai", Chat: c, Embedder: c}, nil
	case "gemini":
		c, err := newGemini()
		if err != nil {
			return Clients{}, err
		}
		return Clients{Provider: "gemini", Chat: c, Embedder: c}, nil
	case "mock":
		return Clients{Provider: "mock", Chat: NewMockClient(), Embedder: NewHashEmbedder(0)}, nil
	case "auto":
		return newAuto(cfg, newOpenAI, newGemini)
	default:
		return Clients{}, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newAuto(cfg Config, newOpenAI func() *OpenAIClient, newGemini func() (*GeminiClient, error)) (Clients, error) {
	var gemini *GeminiClient
	if cfg.GeminiAPIKey != "" {
		g, err := newGemini()
		if err != nil {
			return Clients{}, err
		}
		gemini = g
	}

	switch {
	case cfg.OpenAIAPIKey != "" && gemini != nil:
		oa := newOpenAI()
		return Clients{
			Provider: "openai+gemini",
			Chat:     NewFallbackClient(oa, gemini),
			Embedder: oa,
		}, nil
	case cfg.OpenAIAPIKey != "":
		oa := newOpenAI()
		return Clients{Provider: "openai", Chat: oa, Embedder: oa}, nil
	case gemini != nil:
		return Clients{Provider: "gemini", Chat: gemini, Embedder: gemini}, nil
	default:
		return Clients{Provider: "mock", Chat: NewMockClient(), Embedder: NewHashEmbedder(0)}, nil
	}
}
