// Package app wires the store, model clients and services described by a
// configuration. The API server and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kamilpajak/nourish/internal/config"
	"github.com/kamilpajak/nourish/internal/consult"
	"github.com/kamilpajak/nourish/internal/database"
	"github.com/kamilpajak/nourish/internal/knowledge"
	"github.com/kamilpajak/nourish/internal/llm"
	"github.com/kamilpajak/nourish/internal/localstore"
	"github.com/sirupsen/logrus"
)

// Store is implemented by both the PostgreSQL and the SQLite backends.
type Store interface {
	consult.Store
	knowledge.Store
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Store     Store
	LLM       llm.Client   // nil when no API key is configured
	Embedder  llm.Embedder // nil when no embedding key is configured
	Service   *consult.Service
	Knowledge *knowledge.Bank
	Log       *logrus.Logger

	closeStore func()
}

// Open connects the configured store and builds the services. A missing
// model key is not an error: generation then fails with consult.ErrNoModel.
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	store, closeStore, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	client, err := NewLLM(cfg.LLM, logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	var embedder llm.Embedder
	if cfg.Embedding.APIKey != "" {
		embedder = llm.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	} else {
		logger.Debug("No embedding key configured; knowledge retrieval disabled")
	}

	bank := knowledge.NewBank(store, embedder, logger)
	svc := consult.NewService(consult.Config{
		Store:     store,
		LLM:       client,
		Knowledge: bank,
		Logger:    logger,
		GoldTopK:  cfg.Knowledge.TopK,
	})

	return &App{
		Config:     cfg,
		Store:      store,
		LLM:        client,
		Embedder:   embedder,
		Service:    svc,
		Knowledge:  bank,
		Log:        logger,
		closeStore: closeStore,
	}, nil
}

// Close releases the store.
func (a *App) Close() {
	if a.closeStore != nil {
		a.closeStore()
	}
}

// OpenStore opens PostgreSQL when cfg.URL is set, migrating first if
// AutoMigrate is on, and the SQLite file at cfg.Path otherwise.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (Store, func(), error) {
	if !cfg.Postgres() {
		store, err := localstore.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("path", store.Path()).Debug("Opened SQLite store")
		return store, func() { _ = store.Close() }, nil
	}

	if cfg.AutoMigrate {
		logger.Info("Running database migrations")
		if err := database.Migrate(cfg.URL); err != nil {
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	db, err := database.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Connected to PostgreSQL")
	return db, db.Close, nil
}

// NewLLM creates the guarded provider client. It returns (nil, nil) when
// the provider has no API key.
func NewLLM(cfg config.LLMConfig, logger *logrus.Logger) (llm.Client, error) {
	client, err := llm.New(cfg.Client())
	if errors.Is(err, llm.ErrMissingAPIKey) {
		logger.WithError(err).Info("No language model configured; generation disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return llm.NewGuarded(client, cfg.Guard(), logger), nil
}
