package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

func firstSource(rows []sourceRow, op string) (*models.KnowledgeSource, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	s, err := rows[0].model()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &s, nil
}

// CreateSource registers a pending knowledge source.
func (c *Client) CreateSource(ctx context.Context, scope models.Scope, in models.SourceInput) (*models.KnowledgeSource, error) {
	name := in.Name
	if name == "" {
		name = in.Locator
	}
	rows, err := queryRows[sourceRow](ctx, c, `
		CREATE type::record("knowledge_source", $id) SET
			type = $type,
			name = $name,
			locator = $locator,
			status = "pending",
			version = 0,
			owner_id = $owner,
			project_id = $project,
			created_at = time::now(),
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{
		"id":      newID(),
		"type":    string(in.Type),
		"name":    name,
		"locator": in.Locator,
		"owner":   scope.OwnerID,
		"project": scope.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	return firstSource(rows, "create source")
}

// GetSource returns a source in scope.
func (c *Client) GetSource(ctx context.Context, scope models.Scope, id string) (*models.KnowledgeSource, error) {
	vars := map[string]any{"id": id}
	where := scopeFilter("", scope, vars)
	rows, err := queryRows[sourceRow](ctx, c,
		`SELECT * FROM type::record("knowledge_source", $id) WHERE `+where, vars)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return firstSource(rows, "source "+id)
}

// ListSources returns all sources in scope, newest first.
func (c *Client) ListSources(ctx context.Context, scope models.Scope) ([]models.KnowledgeSource, error) {
	vars := map[string]any{}
	where := scopeFilter("", scope, vars)
	rows, err := queryRows[sourceRow](ctx, c,
		`SELECT * FROM knowledge_source WHERE `+where+` ORDER BY created_at DESC`, vars)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	out := make([]models.KnowledgeSource, 0, len(rows))
	for _, r := range rows {
		s, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SetSourceStatus moves a source through its lifecycle.
func (c *Client) SetSourceStatus(ctx context.Context, id string, status models.SourceStatus) error {
	rows, err := queryRows[sourceRow](ctx, c,
		`UPDATE type::record("knowledge_source", $id) SET status = $status, updated_at = time::now() RETURN AFTER`,
		map[string]any{"id": id, "status": string(status)})
	if err != nil {
		return fmt.Errorf("set source status: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("source %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// FinishSourceSync records an ingestion outcome and bumps the version.
func (c *Client) FinishSourceSync(ctx context.Context, id string, sync models.SourceSync) error {
	meta := sync.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	rows, err := queryRows[sourceRow](ctx, c, `
		UPDATE type::record("knowledge_source", $id) SET
			status = $status,
			metadata = $metadata,
			last_synced_at = $synced,
			version += 1,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{
		"id":       id,
		"status":   string(sync.Status),
		"metadata": meta,
		"synced":   sync.SyncedAt,
	})
	if err != nil {
		return fmt.Errorf("finish source sync: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("source %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteChunks removes every chunk of a source and returns how many were deleted.
func (c *Client) DeleteChunks(ctx context.Context, sourceID string) (int, error) {
	rows, err := queryRows[chunkRow](ctx, c,
		`DELETE knowledge_chunk WHERE source = type::record("knowledge_source", $source) RETURN BEFORE`,
		map[string]any{"source": sourceID})
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return len(rows), nil
}

// InsertChunk stores one chunk. The embedding may be nil.
func (c *Client) InsertChunk(ctx context.Context, in models.ChunkInput) (*models.KnowledgeChunk, error) {
	vars := map[string]any{
		"id":      newID(),
		"source":  in.SourceID,
		"index":   in.Index,
		"content": in.Content,
	}
	// option<> fields reject NULL, so absent values are left out of the SET list.
	extra := ""
	if len(in.Embedding) > 0 {
		extra += ", embedding = $emb"
		vars["emb"] = in.Embedding
	}
	if len(in.Metadata) > 0 {
		extra += ", metadata = $metadata"
		vars["metadata"] = in.Metadata
	}

	rows, err := queryRows[chunkRow](ctx, c, `
		CREATE type::record("knowledge_chunk", $id) SET
			source = type::record("knowledge_source", $source),
			chunk_index = $index,
			content = $content,
			created_at = time::now()`+extra+`
		RETURN AFTER
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("insert chunk: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert chunk: no result returned")
	}
	ch, err := rows[0].model()
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChunks returns a source's chunks in order.
func (c *Client) ListChunks(ctx context.Context, sourceID string) ([]models.KnowledgeChunk, error) {
	rows, err := queryRows[chunkRow](ctx, c,
		`SELECT * FROM knowledge_chunk WHERE source = type::record("knowledge_source", $source) ORDER BY chunk_index ASC`,
		map[string]any{"source": sourceID})
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	out := make([]models.KnowledgeChunk, 0, len(rows))
	for _, r := range rows {
		ch, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// SetChunkEmbedding stores a computed vector.
func (c *Client) SetChunkEmbedding(ctx context.Context, id string, embedding []float32) error {
	rows, err := queryRows[chunkRow](ctx, c,
		`UPDATE type::record("knowledge_chunk", $id) SET embedding = $emb RETURN AFTER`,
		map[string]any{"id": id, "emb": embedding})
	if err != nil {
		return fmt.Errorf("set chunk embedding: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("chunk %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func chunkHits(rows []chunkRow) ([]models.ChunkHit, error) {
	hits := make([]models.ChunkHit, 0, len(rows))
	for _, r := range rows {
		ch, err := r.model()
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.ChunkHit{Chunk: ch, SourceName: r.SourceName, Score: r.Score})
	}
	return hits, nil
}

// SearchChunksByVector ranks embedded chunks of ready sources by cosine similarity.
func (c *Client) SearchChunksByVector(ctx context.Context, scope models.Scope, embedding []float32, limit int) ([]models.ChunkHit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("vector search: empty query embedding")
	}
	vars := map[string]any{"emb": embedding, "limit": limit}
	where := scopeFilter("source.", scope, vars)

	rows, err := searchKNN[chunkRow](ctx, c, limit, func(knn string) string {
		return `
		SELECT *, source.name AS source_name, vector::similarity::cosine(embedding, $emb) AS score
		FROM knowledge_chunk
		WHERE ` + knn + ` AND source.status = "ready" AND ` + where + `
		ORDER BY score DESC LIMIT $limit
	`
	}, vars)
	if err != nil {
		return nil, fmt.Errorf("vector search chunks: %w", err)
	}
	return chunkHits(rows)
}

// SearchChunksByKeyword matches keywords as substrings of chunk content.
func (c *Client) SearchChunksByKeyword(ctx context.Context, scope models.Scope, keywords []string, limit int) ([]models.ChunkHit, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	vars := map[string]any{"limit": limit}
	where := scopeFilter("source.", scope, vars)
	match := keywordFilter([]string{"content"}, keywords, vars)

	rows, err := queryRows[chunkRow](ctx, c, `
		SELECT *, source.name AS source_name FROM knowledge_chunk
		WHERE source.status = "ready" AND `+where+` AND `+match+`
		ORDER BY created_at ASC, chunk_index ASC LIMIT $limit
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("keyword search chunks: %w", err)
	}
	return chunkHits(rows)
}

// ChunksWithoutEmbedding lists chunks still waiting for a vector, oldest first.
func (c *Client) ChunksWithoutEmbedding(ctx context.Context, scope models.Scope, limit int) ([]models.EmbeddingCandidate, error) {
	vars := map[string]any{"limit": limit}
	where := scopeFilter("source.", scope, vars)
	rows, err := queryRows[candidateRow](ctx, c, `
		SELECT id, content, created_at FROM knowledge_chunk
		WHERE embedding = NONE AND `+where+`
		ORDER BY created_at ASC LIMIT $limit
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("list unembedded chunks: %w", err)
	}

	out := make([]models.EmbeddingCandidate, 0, len(rows))
	for _, r := range rows {
		id, err := recordIDString(r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.EmbeddingCandidate{
			Kind:      models.CandidateChunk,
			ID:        id,
			Text:      r.Content,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
