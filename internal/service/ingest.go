package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/groundwork/internal/embedding"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/parser"
	"github.com/raphaelgruber/groundwork/internal/sources"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// ErrNoChunksStored is returned when ingestion produced text but every chunk insert failed.
var ErrNoChunksStored = errors.New("no chunks stored")

// DocumentFetcher resolves a source to its text. *sources.Registry implements it.
type DocumentFetcher interface {
	Fetch(ctx context.Context, src models.KnowledgeSource) (*sources.Document, error)
}

// IngestResult summarizes an ingestion run. ChunksCreated includes the chunks stored
// without an embedding, which are also counted in ChunksUnembedded.
type IngestResult struct {
	ChunksCreated    int `json:"chunks_created"`
	ChunksFailed     int `json:"chunks_failed"`
	ChunksUnembedded int `json:"chunks_unembedded"`
}

// IngestService turns a registered source into embedded chunks.
type IngestService struct {
	store    store.Store
	fetcher  DocumentFetcher
	embedder embedding.Embedder
	chunking parser.ChunkConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewIngestService creates an ingest service. embedder may be nil, in which case every
// chunk is stored unembedded for a later backfill.
func NewIngestService(s store.Store, f DocumentFetcher, e embedding.Embedder, chunking parser.ChunkConfig, m *metrics.Metrics, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{store: s, fetcher: f, embedder: e, chunking: chunking, metrics: m, logger: logger}
}

// Ingest fetches, chunks and embeds a source, replacing its previous chunks.
func (s *IngestService) Ingest(ctx context.Context, scope models.Scope, sourceID string) (*IngestResult, error) {
	return s.IngestWithProgress(ctx, scope, sourceID, nil)
}

// IngestWithProgress is Ingest with a callback after every chunk.
//
// The source is held at processing while its chunks are deleted and recreated. It
// ends ready if at least one chunk was stored, otherwise error. The counts and the
// last error are written to the source metadata either way.
func (s *IngestService) IngestWithProgress(ctx context.Context, scope models.Scope, sourceID string, onProgress func(done, total int)) (*IngestResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	src, err := s.store.GetSource(ctx, scope, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if err := s.store.SetSourceStatus(ctx, src.ID, models.SourceStatusProcessing); err != nil {
		return nil, fmt.Errorf("mark source processing: %w", err)
	}

	start := time.Now()
	logger := s.logger.With("source_id", src.ID, "type", src.Type)
	res := &IngestResult{}

	doc, err := s.fetcher.Fetch(ctx, *src)
	if err != nil {
		s.finish(ctx, src.ID, res, err)
		return res, fmt.Errorf("fetch source: %w", err)
	}

	spans := parser.ChunkSpans(doc.Text, s.chunking)
	if len(spans) == 0 {
		s.finish(ctx, src.ID, res, sources.ErrNoText)
		return res, fmt.Errorf("chunk source: %w", sources.ErrNoText)
	}

	if removed, err := s.store.DeleteChunks(ctx, src.ID); err != nil {
		s.finish(ctx, src.ID, res, err)
		return res, fmt.Errorf("delete old chunks: %w", err)
	} else if removed > 0 {
		logger.Debug("removed previous chunks", "count", removed)
	}

	var (
		lastErr  error
		embedOff = s.embedder == nil
	)
	for i, span := range spans {
		if err := ctx.Err(); err != nil {
			res.ChunksFailed += len(spans) - i
			lastErr = err
			break
		}

		var vec []float32
		if !embedOff {
			vec, err = s.embedder.Embed(ctx, span.Text)
			if err != nil {
				logger.Warn("chunk embedding failed, storing unembedded", "index", i, "error", err)
				// A permanent provider error will not heal within this run.
				embedOff = llm.IsFatal(err)
				vec = nil
			}
		}

		_, err := s.store.InsertChunk(ctx, models.ChunkInput{
			SourceID:  src.ID,
			Index:     i,
			Content:   span.Text,
			Embedding: vec,
			Metadata:  map[string]any{"start": span.Start, "end": span.End},
		})
		if err != nil {
			logger.Warn("chunk insert failed", "index", i, "error", err)
			res.ChunksFailed++
			lastErr = err
		} else {
			res.ChunksCreated++
			if len(vec) == 0 {
				res.ChunksUnembedded++
			}
		}

		if onProgress != nil {
			onProgress(i+1, len(spans))
		}
	}

	if res.ChunksCreated == 0 && lastErr == nil {
		lastErr = ErrNoChunksStored
	}
	s.finish(ctx, src.ID, res, lastErr)
	s.metrics.RecordIngest(res.ChunksCreated, res.ChunksFailed, res.ChunksUnembedded)

	logger.Info("source ingested",
		"chunks_created", res.ChunksCreated,
		"chunks_failed", res.ChunksFailed,
		"chunks_unembedded", res.ChunksUnembedded,
		"duration_ms", time.Since(start).Milliseconds())

	if res.ChunksCreated == 0 {
		return res, fmt.Errorf("%w: %w", ErrNoChunksStored, lastErr)
	}
	return res, nil
}

// finish writes the final status and counts. It runs detached from ctx so a
// cancelled run never leaves the source stuck at processing.
func (s *IngestService) finish(ctx context.Context, sourceID string, res *IngestResult, lastErr error) {
	status := models.SourceStatusReady
	if res.ChunksCreated == 0 {
		status = models.SourceStatusError
	}

	meta := map[string]any{
		models.MetaChunkCount:       res.ChunksCreated,
		models.MetaChunksFailed:     res.ChunksFailed,
		models.MetaChunksUnembedded: res.ChunksUnembedded,
	}
	if lastErr != nil {
		meta[models.MetaLastError] = lastErr.Error()
	}

	err := s.store.FinishSourceSync(context.WithoutCancel(ctx), sourceID, models.SourceSync{
		Status:   status,
		Metadata: meta,
		SyncedAt: time.Now(),
	})
	if err != nil {
		s.logger.Error("failed to record source sync", "source_id", sourceID, "error", err)
	}
}
