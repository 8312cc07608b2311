// Package retrieval finds the memories and knowledge chunks that ground a turn.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
	"golang.org/x/sync/errgroup"
)

// Store names used in logs, metrics and Result.Tiers.
const (
	StoreMemory    = "memory"
	StoreKnowledge = "knowledge"
)

// Searcher is the slice of store.Store the retriever needs.
type Searcher interface {
	SearchMemoriesByVector(ctx context.Context, scope models.Scope, embedding []float32, limit int) ([]models.MemoryHit, error)
	SearchMemoriesByKeyword(ctx context.Context, scope models.Scope, keywords []string, limit int) ([]models.MemoryHit, error)
	SearchChunksByVector(ctx context.Context, scope models.Scope, embedding []float32, limit int) ([]models.ChunkHit, error)
	SearchChunksByKeyword(ctx context.Context, scope models.Scope, keywords []string, limit int) ([]models.ChunkHit, error)
}

// QueryEmbedder turns the query into a vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options tunes retrieval.
type Options struct {
	MemoryLimit   int
	ChunkLimit    int
	VectorEnabled bool

	// SearchTimeout bounds each store call. Zero means no extra deadline.
	SearchTimeout time.Duration
}

// DefaultOptions returns the standard limits with vector search on.
func DefaultOptions() Options {
	return Options{MemoryLimit: 8, ChunkLimit: 6, VectorEnabled: true, SearchTimeout: 30 * time.Second}
}

// Result holds the fragments found for one query and the tier that served each store.
type Result struct {
	Memories   []models.MemoryHit
	Chunks     []models.ChunkHit
	MemoryTier models.Tier
	ChunkTier  models.Tier
}

// Tiers reports the serving tier per store.
func (r *Result) Tiers() map[string]models.Tier {
	return map[string]models.Tier{StoreMemory: r.MemoryTier, StoreKnowledge: r.ChunkTier}
}

// Retriever runs dual-tier search over memories and chunks.
type Retriever struct {
	store    Searcher
	embedder QueryEmbedder
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Retriever. embedder may be nil, which means keyword search only.
func New(s Searcher, embedder QueryEmbedder, opts Options, m *metrics.Metrics, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: s, embedder: embedder, opts: opts, metrics: m, logger: logger}
}

// Retrieve embeds the query once, then searches memories and chunks concurrently.
// A store falls back from vector to keyword search when the vector tier is skipped,
// fails or finds nothing. Retrieve only fails when both tiers fail for a store.
func (r *Retriever) Retrieve(ctx context.Context, scope models.Scope, query string) (*Result, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	embedding := r.embedQuery(ctx, query)
	keywords := store.Keywords(query)

	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, tier, err := searchStore(gctx, r, StoreMemory, embedding,
			func(ctx context.Context) ([]models.MemoryHit, error) {
				return r.store.SearchMemoriesByVector(ctx, scope, embedding, r.opts.MemoryLimit)
			},
			func(ctx context.Context) ([]models.MemoryHit, error) {
				return r.store.SearchMemoriesByKeyword(ctx, scope, keywords, r.opts.MemoryLimit)
			})
		res.Memories, res.MemoryTier = hits, tier
		return err
	})
	g.Go(func() error {
		hits, tier, err := searchStore(gctx, r, StoreKnowledge, embedding,
			func(ctx context.Context) ([]models.ChunkHit, error) {
				return r.store.SearchChunksByVector(ctx, scope, embedding, r.opts.ChunkLimit)
			},
			func(ctx context.Context) ([]models.ChunkHit, error) {
				return r.store.SearchChunksByKeyword(ctx, scope, keywords, r.opts.ChunkLimit)
			})
		res.Chunks, res.ChunkTier = hits, tier
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) []float32 {
	if r.embedder == nil || !r.opts.VectorEnabled {
		return nil
	}
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, using keyword search", "error", err)
		return nil
	}
	return emb
}

func (r *Retriever) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.SearchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.SearchTimeout)
}

var errVectorSkipped = errors.New("vector search skipped")

func searchStore[T any](
	ctx context.Context,
	r *Retriever,
	name string,
	embedding []float32,
	vector, keyword func(context.Context) ([]T, error),
) ([]T, models.Tier, error) {
	vectorErr := errVectorSkipped
	if len(embedding) > 0 {
		start := time.Now()
		sctx, cancel := r.withTimeout(ctx)
		hits, err := vector(sctx)
		cancel()
		r.metrics.ObserveCall(metrics.OpVectorSearch, time.Since(start))
		if err == nil && len(hits) > 0 {
			r.served(name, models.TierVector)
			return hits, models.TierVector, nil
		}
		vectorErr = err
		if err != nil {
			r.logger.Warn("vector search failed, falling back to keyword", "store", name, "error", err)
		}
	}

	start := time.Now()
	sctx, cancel := r.withTimeout(ctx)
	hits, err := keyword(sctx)
	cancel()
	r.metrics.ObserveCall(metrics.OpKeywordSearch, time.Since(start))

	switch {
	case err != nil && vectorErr != nil:
		r.logger.Error("both retrieval tiers failed", "store", name, "error", err)
		return nil, models.TierNone, fmt.Errorf("search %s: vector: %v; keyword: %w", name, vectorErr, err)
	case err != nil:
		r.logger.Warn("keyword search failed after empty vector search", "store", name, "error", err)
		r.served(name, models.TierNone)
		return nil, models.TierNone, nil
	case len(hits) == 0:
		r.served(name, models.TierNone)
		return hits, models.TierNone, nil
	}
	r.served(name, models.TierKeyword)
	return hits, models.TierKeyword, nil
}

func (r *Retriever) served(name string, tier models.Tier) {
	r.metrics.RecordTier(name, string(tier))
	r.logger.Debug("retrieval tier", "store", name, "tier", tier)
}
