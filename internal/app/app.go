// Package app wires configuration into the running pipeline. Both the HTTP
// server and the CLI build their dependencies here so they behave the same.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/config"
	"github.com/fleveque/itemgen-service/internal/generation"
	"github.com/fleveque/itemgen-service/internal/llm"
	"github.com/fleveque/itemgen-service/internal/policy"
	"github.com/fleveque/itemgen-service/internal/resolver"
	"github.com/fleveque/itemgen-service/internal/search"
	"github.com/fleveque/itemgen-service/internal/server"
	"github.com/fleveque/itemgen-service/internal/service"
	"github.com/fleveque/itemgen-service/internal/storage"
)

// App holds every long-lived dependency.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Policy       *policy.DomainPolicy
	Resolver     *resolver.Resolver
	Search       search.Provider
	Orchestrator *search.Orchestrator
	Generate     *service.GenerateService
	Relay        *service.RelayService
	RunRepo      storage.RunRepository
	LLMCallRepo  storage.LLMCallRepository
	Providers    []string

	db *sqlx.DB
}

// NewLogger returns a development logger for "debug", production JSON otherwise.
func NewLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// New builds the full pipeline from cfg. The audit database is opened only
// when storage.database_path is set.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return nil, fmt.Errorf("loading domain policy: %w", err)
	}
	a.Policy = pol

	if cfg.Storage.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		db, err := storage.NewDatabase(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.db = db
		a.RunRepo = storage.NewRunRepository(db)
		a.LLMCallRepo = storage.NewLLMCallRepository(db)
	} else {
		logger.Warn("storage.database_path is empty, audit log disabled")
	}

	clients, err := llm.NewClients(ctx, cfg.LLM, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, c := range clients {
		a.Providers = append(a.Providers, c.ProviderName())
	}

	generator := generation.NewGenerator(clients, cfg.LLM.RatePerMinute, cfg.LLM.Timeout, a.LLMCallRepo, logger)

	provider, err := search.NewGoogleProvider(ctx, cfg.Search.Google.APIKey, cfg.Search.Google.CX, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Search = provider

	a.Resolver = resolver.NewDefault(pol, cfg.Probe, logger)
	a.Orchestrator = search.NewOrchestrator(provider, a.Resolver,
		cfg.Search.Stagger, cfg.Search.Timeout, cfg.Search.MaxResults, logger)

	a.Generate = service.NewGenerateService(generator, a.Orchestrator,
		resolver.NewProxyRewriter(cfg.Relay.BaseURL),
		service.GenerateOptions{
			DefaultCount:       cfg.Generation.DefaultCount,
			MaxCount:           cfg.Generation.MaxCount,
			PlaceholderBaseURL: cfg.Placeholder.BaseURL,
			MaxNameLength:      cfg.Placeholder.MaxNameLength,
		},
		a.RunRepo,
		logger,
	)

	a.Relay = service.NewRelayService(cfg.Relay, cfg.Probe.UserAgent, logger)

	return a, nil
}

// ServerDeps returns the route dependencies for the HTTP server.
func (a *App) ServerDeps() server.Deps {
	return server.Deps{
		Generator:   a.Generate,
		Relay:       a.Relay,
		RunRepo:     a.RunRepo,
		LLMCallRepo: a.LLMCallRepo,
		Providers:   a.Providers,
	}
}

// Close releases the database, if one was opened.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
