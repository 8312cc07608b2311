package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/raphaelgruber/groundwork/internal/embedding"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"golang.org/x/time/rate"
)

const defaultBackfillLimit = 100

// ErrNoEmbedder is returned by a backfill run without an embedding provider.
var ErrNoEmbedder = errors.New("no embedding provider configured")

// BackfillStore is the slice of the store the backfiller reads and writes.
type BackfillStore interface {
	MemoriesWithoutEmbedding(ctx context.Context, scope models.Scope, limit int) ([]models.EmbeddingCandidate, error)
	ChunksWithoutEmbedding(ctx context.Context, scope models.Scope, limit int) ([]models.EmbeddingCandidate, error)
	SetMemoryEmbedding(ctx context.Context, id string, embedding []float32) error
	SetChunkEmbedding(ctx context.Context, id string, embedding []float32) error
}

// BackfillOptions configures one reconciliation run.
type BackfillOptions struct {
	Scope models.Scope
	// Limit caps the number of items processed. Defaults to 100.
	Limit int
	// OnProgress is called after every item with the number done and the total.
	OnProgress func(done, total int)
}

// BackfillResult counts the outcome of a run.
type BackfillResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Backfiller fills in missing memory and chunk embeddings, oldest first.
type Backfiller struct {
	store       BackfillStore
	embedder    embedding.Embedder
	delay       time.Duration
	itemTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewBackfiller creates a backfiller that waits delay between provider calls and
// gives every item itemTimeout to finish.
func NewBackfiller(s BackfillStore, e embedding.Embedder, delay, itemTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Backfiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{store: s, embedder: e, delay: delay, itemTimeout: itemTimeout, metrics: m, logger: logger}
}

// Run embeds up to opts.Limit unembedded rows. Cancellation is checked before each
// item; an item already in flight is allowed to finish. A failed candidate read and
// a missing provider are the only errors returned. Per-item failures are counted, not returned.
func (b *Backfiller) Run(ctx context.Context, opts BackfillOptions) (BackfillResult, error) {
	var res BackfillResult
	if ctx.Err() != nil {
		return res, nil
	}
	if b.embedder == nil {
		return res, ErrNoEmbedder
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultBackfillLimit
	}

	items, err := b.candidates(ctx, opts.Scope, limit)
	if err != nil {
		return BackfillResult{}, err
	}
	if len(items) == 0 {
		return res, nil
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if b.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(b.delay), 1)
	}

	b.logger.Info("backfill started", "items", len(items), "owner", opts.Scope.OwnerID)
	start := time.Now()

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		if b.fill(context.WithoutCancel(ctx), item) {
			res.Succeeded++
		} else {
			res.Failed++
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(items))
		}
	}

	b.logger.Info("backfill finished",
		"succeeded", res.Succeeded, "failed", res.Failed,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// candidates merges unembedded memories and chunks by creation time.
func (b *Backfiller) candidates(ctx context.Context, scope models.Scope, limit int) ([]models.EmbeddingCandidate, error) {
	mems, err := b.store.MemoriesWithoutEmbedding(ctx, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("read unembedded memories: %w", err)
	}
	chunks, err := b.store.ChunksWithoutEmbedding(ctx, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("read unembedded chunks: %w", err)
	}

	items := append(mems, chunks...)
	slices.SortStableFunc(items, func(a, b models.EmbeddingCandidate) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (b *Backfiller) fill(ctx context.Context, item models.EmbeddingCandidate) bool {
	if b.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.itemTimeout)
		defer cancel()
	}

	err := b.embedAndStore(ctx, item)
	b.metrics.RecordBackfill(item.Kind, err == nil)
	if err != nil {
		b.logger.Warn("backfill item failed", "kind", item.Kind, "id", item.ID, "error", err)
		return false
	}
	return true
}

func (b *Backfiller) embedAndStore(ctx context.Context, item models.EmbeddingCandidate) error {
	vec, err := b.embedder.Embed(ctx, item.Text)
	if err != nil {
		return err
	}
	switch item.Kind {
	case models.CandidateMemory:
		return b.store.SetMemoryEmbedding(ctx, item.ID, vec)
	case models.CandidateChunk:
		return b.store.SetChunkEmbedding(ctx, item.ID, vec)
	}
	return fmt.Errorf("unknown candidate kind %q", item.Kind)
}
