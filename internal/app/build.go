package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/thejerf/suture/v4"

	"github.com/ent0n29/onesky/internal/assistant"
	"github.com/ent0n29/onesky/internal/auth"
	"github.com/ent0n29/onesky/internal/config"
	"github.com/ent0n29/onesky/internal/gamification"
	"github.com/ent0n29/onesky/internal/httpapi"
	"github.com/ent0n29/onesky/internal/llm"
	"github.com/ent0n29/onesky/internal/logging"
	"github.com/ent0n29/onesky/internal/memory"
	"github.com/ent0n29/onesky/internal/observability"
	"github.com/ent0n29/onesky/internal/semantic"
	"github.com/ent0n29/onesky/internal/session"
	"github.com/ent0n29/onesky/internal/store"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Store     *store.Postgres
	Sessions  *session.Manager
	Metrics   *observability.Metrics
	Embedder  llm.Embedder
	Provider  string
	Assistant *assistant.Router

	// Cleanup releases the database pool and the embedding cache.
	Cleanup func() error
}

// Build wires every component from cfg. The caller owns Cleanup.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("ONESKY_DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("ONESKY_JWT_SECRET is required")
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	prov, err := newProviders(ctx, cfg, metrics)
	if err != nil {
		return nil, err
	}

	db, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = prov.closeCache()
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		_ = db.Close()
		_ = prov.closeCache()
		return nil, fmt.Errorf("token manager init failed: %w", err)
	}

	router := assistant.NewRouter(prov.chat, db, prov.embedder, memory.NewStore(memory.DefaultWindowSize), assistant.Options{
		RoutingModel:           cfg.RoutingModel,
		ReplyModel:             cfg.ReplyModel,
		ConcurrentCapabilities: cfg.ConcurrentCapabilities,
		Metrics:                metrics,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	api := httpapi.New(httpapi.Deps{
		Config:    cfg,
		Store:     db,
		Tokens:    tokens,
		Assistant: router,
		Badges:    gamification.NewService(db, metrics),
		Sessions:  sessions,
		Metrics:   metrics,
	})

	cleanup := func() error {
		return errors.Join(db.Close(), prov.closeCache())
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Store:     db,
		Sessions:  sessions,
		Metrics:   metrics,
		Embedder:  prov.embedder,
		Provider:  prov.clients.Provider,
		Assistant: router,
		Cleanup:   cleanup,
	}, nil
}

type providers struct {
	clients    llm.Clients
	chat       llm.ChatClient
	embedder   llm.Embedder
	closeCache func() error
}

// newProviders resolves the chat client, wraps it in a circuit breaker and
// puts the badger cache in front of the embedder. Without a cache directory
// the cache lives in memory.
func newProviders(ctx context.Context, cfg config.Config, metrics *observability.Metrics) (providers, error) {
	clients, err := llm.New(ctx, llm.Config{
		Provider:             cfg.LLMProvider,
		OpenAIAPIKey:         cfg.OpenAIAPIKey,
		OpenAIBaseURL:        cfg.OpenAIBaseURL,
		OpenAIModel:          cfg.ReplyModel,
		OpenAIEmbeddingModel: cfg.EmbeddingModel,
		GeminiAPIKey:         cfg.GeminiAPIKey,
		GeminiModel:          cfg.GeminiModel,
		GeminiEmbeddingModel: cfg.GeminiEmbeddingModel,
	})
	if err != nil {
		return providers{}, fmt.Errorf("llm init failed: %w", err)
	}
	p := providers{
		clients:  clients,
		chat:     clients.Chat,
		embedder: clients.Embedder,
	}
	if cfg.LLMBreakerEnabled && clients.Provider != "mock" {
		p.chat = llm.NewBreakerClient(clients.Chat, llm.BreakerSettings{
			Name: clients.Provider,
			OnStateChange: func(name string, state gobreaker.State) {
				metrics.SetBreakerState(name, int(state))
				logging.Warn().Str("breaker", name).Str("state", state.String()).Msg("llm breaker state changed")
			},
		})
	}
	cache, err := semantic.OpenCache(cfg.EmbeddingCacheDir)
	if err != nil {
		return providers{}, fmt.Errorf("embedding cache init failed: %w", err)
	}
	p.embedder = semantic.NewCachedEmbedder(clients.Embedder, cache, clients.Provider+"/"+cfg.EmbeddingModel, 0)
	p.closeCache = cache.Close
	return p, nil
}

// RunBackfill embeds events once and exits. all re-embeds every event.
func RunBackfill(ctx context.Context, cfg config.Config, all bool) (semantic.BackfillResult, error) {
	if cfg.DatabaseURL == "" {
		return semantic.BackfillResult{}, errors.New("ONESKY_DATABASE_URL is required")
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	prov, err := newProviders(ctx, cfg, metrics)
	if err != nil {
		return semantic.BackfillResult{}, err
	}
	defer func() { _ = prov.closeCache() }()

	db, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return semantic.BackfillResult{}, fmt.Errorf("store init failed: %w", err)
	}
	defer func() { _ = db.Close() }()

	logging.Info().Str("provider", prov.clients.Provider).Bool("all", all).Msg("embedding events")
	return semantic.Backfill(ctx, db, prov.embedder, all, metrics)
}

// Supervisor assembles the long-running services: the HTTP server, the
// session janitor and, when an interval is set, the embedding backfill.
func (b *BuildResult) Supervisor() *suture.Supervisor {
	log := logging.Component("supervisor")
	sup := suture.New("onesky", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Interface("detail", e.Map()).Msg(e.String())
		},
		Timeout: b.Config.ShutdownTimeout,
	})

	server := &http.Server{
		Addr:              b.Config.BindAddr,
		Handler:           b.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	sup.Add(NewHTTPService(server, b.Config.ShutdownTimeout))
	sup.Add(session.Janitor{Manager: b.Sessions})
	if b.Config.EmbeddingBackfillInterval > 0 {
		sup.Add(&BackfillService{
			Store:    b.Store,
			Embedder: b.Embedder,
			Interval: b.Config.EmbeddingBackfillInterval,
			Metrics:  b.Metrics,
		})
	}
	return sup
}
