// Package app builds the Groundwork dependency graph from a config.
// It is shared by the HTTP server, the MCP server and the local CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/db"
	"github.com/raphaelgruber/groundwork/internal/embedding"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/parser"
	"github.com/raphaelgruber/groundwork/internal/retrieval"
	"github.com/raphaelgruber/groundwork/internal/service"
	"github.com/raphaelgruber/groundwork/internal/sources"
	"github.com/raphaelgruber/groundwork/internal/sqlitedb"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// App holds every service with its dependencies.
type App struct {
	Config  config.Config
	Store   store.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	Chat          *service.ChatService
	Search        *service.SearchService
	Ingest        *service.IngestService
	Backfill      *service.Backfiller
	Memories      *service.MemoryService
	Sources       *service.SourceService
	Conversations *service.ConversationService
	Jobs          *service.JobManager
}

// New connects the store and creates the providers and services.
//
// An embedding provider that cannot be created is not fatal: retrieval drops to
// keyword search and new rows stay unembedded until a backfill. A missing language
// model is fatal.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.New()

	st, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var embedder embedding.Embedder
	if client, err := embedding.New(cfg, m); err != nil {
		logger.Warn("embedding provider unavailable, using keyword search only", "provider", cfg.EmbedProvider, "error", err)
	} else {
		embedder = client
	}

	model, err := llm.New(ctx, cfg, m)
	if err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("create language model: %w", err)
	}

	return build(cfg, st, embedder, model, sources.DefaultRegistry(cfg), m, logger), nil
}

// NewWith assembles an App around existing collaborators. Tests use it with the
// SQLite store and fake providers.
func NewWith(cfg config.Config, st store.Store, embedder embedding.Embedder, gen service.Generator, fetcher service.DocumentFetcher, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return build(cfg, st, embedder, gen, fetcher, metrics.New(), logger)
}

func build(cfg config.Config, st store.Store, embedder embedding.Embedder, gen service.Generator, fetcher service.DocumentFetcher, m *metrics.Metrics, logger *slog.Logger) *App {
	var queryEmbedder retrieval.QueryEmbedder
	if embedder != nil {
		queryEmbedder = embedder
	}
	retriever := retrieval.New(st, queryEmbedder, retrieval.Options{
		MemoryLimit:   cfg.MemoryLimit,
		ChunkLimit:    cfg.ChunkLimit,
		VectorEnabled: cfg.VectorSearchEnabled,
		SearchTimeout: cfg.SearchTimeout,
	}, m, logger)

	jobs := service.NewJobManager(cfg.Concurrency, m, logger)

	return &App{
		Config:  cfg,
		Store:   st,
		Metrics: m,
		Logger:  logger,

		Chat: service.NewChatService(st, retriever, gen, service.ChatOptions{
			HistoryTurns:       cfg.HistoryTurns,
			HistoryTokenBudget: cfg.HistoryTokenBudget,
		}, m, logger),
		Search: service.NewSearchService(retriever),
		Ingest: service.NewIngestService(st, fetcher, embedder, parser.ChunkConfig{
			Size:    cfg.ChunkSize,
			Overlap: cfg.ChunkOverlap,
		}, m, logger),
		Backfill:      service.NewBackfiller(st, embedder, cfg.BackfillDelay, cfg.EmbedTimeout, m, logger),
		Memories:      service.NewMemoryService(st, embedder, jobs, logger),
		Sources:       service.NewSourceService(st),
		Conversations: service.NewConversationService(st),
		Jobs:          jobs,
	}
}

// OpenStore opens the configured backend. The SurrealDB schema is applied on connect.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		st, err := sqlitedb.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil

	case config.StoreSurrealDB, "":
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect surrealdb: %w", err)
		}
		if err := client.InitSchema(ctx, cfg.EmbedDimension); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("init schema: %w", err)
		}
		return client, nil
	}
	return nil, fmt.Errorf("unsupported store: %s", cfg.Store)
}

// SubmitIngest queues an ingestion job for a source. The job reports chunk progress.
func (a *App) SubmitIngest(scope models.Scope, sourceID string) *service.Job {
	return a.Jobs.Submit(service.JobIngest, sourceID, func(ctx context.Context, job *service.Job) (any, error) {
		res, err := a.Ingest.IngestWithProgress(ctx, scope, sourceID, func(done, total int) {
			a.Jobs.UpdateProgress(job, done, total)
		})
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, sources.ErrUnsupportedType) ||
			errors.Is(err, sources.ErrTooLarge) || errors.Is(err, sources.ErrLocalPath) {
			return res, service.Permanent(err)
		}
		return res, err
	})
}

// SubmitBackfill queues a backfill job. limit <= 0 uses the configured limit.
func (a *App) SubmitBackfill(scope models.Scope, limit int) *service.Job {
	if limit <= 0 {
		limit = a.Config.BackfillLimit
	}
	return a.Jobs.Submit(service.JobBackfill, scope.OwnerID, func(ctx context.Context, job *service.Job) (any, error) {
		res, err := a.Backfill.Run(ctx, service.BackfillOptions{
			Scope: scope,
			Limit: limit,
			OnProgress: func(done, total int) {
				a.Jobs.UpdateProgress(job, done, total)
			},
		})
		if errors.Is(err, service.ErrNoEmbedder) {
			return res, service.Permanent(err)
		}
		return res, err
	})
}

// Close stops the background jobs and closes the store.
func (a *App) Close(ctx context.Context) error {
	if err := a.Jobs.Shutdown(ctx); err != nil {
		a.Logger.Warn("jobs did not stop in time", "error", err)
	}
	return a.Store.Close(ctx)
}
