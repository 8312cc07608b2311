package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

const sourceColumns = `id, type, name, locator, status, version, last_synced_at, metadata,
	owner_id, project_id, created_at, updated_at`

const chunkColumns = `c.id, c.source_id, c.chunk_index, c.content, c.embedding, c.metadata, c.created_at`

func scanSource(row rowScanner) (*models.KnowledgeSource, error) {
	var (
		s                models.KnowledgeSource
		synced           sql.NullInt64
		meta             sql.NullString
		created, updated int64
	)
	if err := row.Scan(&s.ID, &s.Type, &s.Name, &s.Locator, &s.Status, &s.Version, &synced, &meta,
		&s.OwnerID, &s.ProjectID, &created, &updated); err != nil {
		return nil, err
	}
	if synced.Valid {
		t := fromNanos(synced.Int64)
		s.LastSyncedAt = &t
	}
	if err := decodeMeta(meta, &s.Metadata); err != nil {
		return nil, err
	}
	s.CreatedAt = fromNanos(created)
	s.UpdatedAt = fromNanos(updated)
	return &s, nil
}

func scanChunk(row rowScanner, extra ...any) (*models.KnowledgeChunk, error) {
	var (
		c       models.KnowledgeChunk
		blob    []byte
		meta    sql.NullString
		created int64
	)
	dest := append([]any{&c.ID, &c.SourceID, &c.Index, &c.Content, &blob, &meta, &created}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	emb, err := blobToFloat32Array(blob)
	if err != nil {
		return nil, err
	}
	c.Embedding = emb
	if err := decodeMeta(meta, &c.Metadata); err != nil {
		return nil, err
	}
	c.CreatedAt = fromNanos(created)
	return &c, nil
}

func decodeMeta(raw sql.NullString, dst *map[string]any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}

func encodeMeta(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// CreateSource registers a pending knowledge source.
func (d *DB) CreateSource(ctx context.Context, scope models.Scope, in models.SourceInput) (*models.KnowledgeSource, error) {
	id := d.newID()
	now := d.timestamp()
	name := in.Name
	if name == "" {
		name = in.Locator
	}
	_, err := d.db.ExecContext(ctx, `INSERT INTO knowledge_sources
		(id, type, name, locator, status, version, owner_id, project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		id, in.Type, name, in.Locator, models.SourceStatusPending, scope.OwnerID, scope.ProjectID, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	return d.GetSource(ctx, scope, id)
}

// GetSource returns a source in scope.
func (d *DB) GetSource(ctx context.Context, scope models.Scope, id string) (*models.KnowledgeSource, error) {
	where, args := scopeClause("", scope)
	row := d.db.QueryRowContext(ctx,
		"SELECT "+sourceColumns+" FROM knowledge_sources WHERE id = ? AND "+where,
		append([]any{id}, args...)...)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return s, nil
}

// ListSources returns all sources in scope, newest first.
func (d *DB) ListSources(ctx context.Context, scope models.Scope) ([]models.KnowledgeSource, error) {
	where, args := scopeClause("", scope)
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+sourceColumns+" FROM knowledge_sources WHERE "+where+" ORDER BY created_at DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []models.KnowledgeSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SetSourceStatus moves a source through its lifecycle.
func (d *DB) SetSourceStatus(ctx context.Context, id string, status models.SourceStatus) error {
	res, err := d.db.ExecContext(ctx,
		"UPDATE knowledge_sources SET status = ?, updated_at = ? WHERE id = ?", status, d.timestamp(), id)
	if err != nil {
		return fmt.Errorf("set source status: %w", err)
	}
	return requireAffected(res, "source", id)
}

// FinishSourceSync records an ingestion outcome and bumps the version.
func (d *DB) FinishSourceSync(ctx context.Context, id string, sync models.SourceSync) error {
	meta, err := encodeMeta(sync.Metadata)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, `UPDATE knowledge_sources
		SET status = ?, metadata = ?, last_synced_at = ?, version = version + 1, updated_at = ?
		WHERE id = ?`,
		sync.Status, meta, sync.SyncedAt.UnixNano(), d.timestamp(), id)
	if err != nil {
		return fmt.Errorf("finish source sync: %w", err)
	}
	return requireAffected(res, "source", id)
}

// DeleteChunks removes every chunk of a source and returns how many were deleted.
func (d *DB) DeleteChunks(ctx context.Context, sourceID string) (int, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM knowledge_chunks WHERE source_id = ?", sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// InsertChunk stores one chunk. The embedding may be nil.
func (d *DB) InsertChunk(ctx context.Context, in models.ChunkInput) (*models.KnowledgeChunk, error) {
	meta, err := encodeMeta(in.Metadata)
	if err != nil {
		return nil, err
	}
	c := &models.KnowledgeChunk{
		ID:        d.newID(),
		SourceID:  in.SourceID,
		Index:     in.Index,
		Content:   in.Content,
		Embedding: in.Embedding,
		Metadata:  in.Metadata,
	}
	now := d.timestamp()
	c.CreatedAt = fromNanos(now)

	_, err = d.db.ExecContext(ctx, `INSERT INTO knowledge_chunks
		(id, source_id, chunk_index, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SourceID, c.Index, c.Content, vectorArg(c.Embedding), meta, now)
	if err != nil {
		return nil, fmt.Errorf("insert chunk: %w", err)
	}
	return c, nil
}

// ListChunks returns a source's chunks in order.
func (d *DB) ListChunks(ctx context.Context, sourceID string) ([]models.KnowledgeChunk, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM knowledge_chunks c WHERE c.source_id = ? ORDER BY c.chunk_index ASC",
		sourceID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var out []models.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetChunkEmbedding stores a computed vector.
func (d *DB) SetChunkEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := d.db.ExecContext(ctx, "UPDATE knowledge_chunks SET embedding = ? WHERE id = ?", vectorArg(embedding), id)
	if err != nil {
		return fmt.Errorf("set chunk embedding: %w", err)
	}
	return requireAffected(res, "chunk", id)
}

// readySourceJoin limits chunks to ready sources in scope.
func readySourceJoin(scope models.Scope) (string, []any) {
	where, args := scopeClause("s.", scope)
	return " FROM knowledge_chunks c JOIN knowledge_sources s ON s.id = c.source_id WHERE s.status = 'ready' AND " + where, args
}

// SearchChunksByVector ranks embedded chunks of ready sources by cosine similarity.
func (d *DB) SearchChunksByVector(ctx context.Context, scope models.Scope, embedding []float32, limit int) ([]models.ChunkHit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("vector search: empty query embedding")
	}
	from, args := readySourceJoin(scope)
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+chunkColumns+", s.name"+from+" AND c.embedding IS NOT NULL", args...)
	if err != nil {
		return nil, fmt.Errorf("vector search chunks: %w", err)
	}
	defer rows.Close()

	var candidates []scored[models.ChunkHit]
	for rows.Next() {
		var name string
		c, err := scanChunk(rows, &name)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(c.Embedding) != len(embedding) {
			continue
		}
		candidates = append(candidates, scored[models.ChunkHit]{
			item:  models.ChunkHit{Chunk: *c, SourceName: name},
			score: cosineSimilarity(embedding, c.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search chunks: %w", err)
	}

	top := topK(candidates, limit)
	hits := make([]models.ChunkHit, len(top))
	for i, c := range top {
		hit := c.item
		hit.Score = models.Float64Ptr(c.score)
		hits[i] = hit
	}
	return hits, nil
}

// SearchChunksByKeyword matches keywords as substrings of chunk content.
func (d *DB) SearchChunksByKeyword(ctx context.Context, scope models.Scope, keywords []string, limit int) ([]models.ChunkHit, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	from, args := readySourceJoin(scope)
	match, matchArgs := likeAny([]string{"c.content"}, keywords)
	args = append(args, matchArgs...)
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+chunkColumns+", s.name"+from+" AND "+match+" ORDER BY c.created_at ASC, c.chunk_index ASC LIMIT ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.ChunkHit
	for rows.Next() {
		var name string
		c, err := scanChunk(rows, &name)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		hits = append(hits, models.ChunkHit{Chunk: *c, SourceName: name})
	}
	return hits, rows.Err()
}

// ChunksWithoutEmbedding lists chunks still waiting for a vector, oldest first.
func (d *DB) ChunksWithoutEmbedding(ctx context.Context, scope models.Scope, limit int) ([]models.EmbeddingCandidate, error) {
	where, args := scopeClause("s.", scope)
	rows, err := d.db.QueryContext(ctx,
		`SELECT c.id, c.content, c.created_at FROM knowledge_chunks c
		JOIN knowledge_sources s ON s.id = c.source_id
		WHERE c.embedding IS NULL AND `+where+` ORDER BY c.created_at ASC, c.id ASC LIMIT ?`,
		append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list unembedded chunks: %w", err)
	}
	defer rows.Close()

	var out []models.EmbeddingCandidate
	for rows.Next() {
		var (
			cand    models.EmbeddingCandidate
			created int64
		)
		if err := rows.Scan(&cand.ID, &cand.Text, &created); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		cand.Kind = models.CandidateChunk
		cand.CreatedAt = fromNanos(created)
		out = append(out, cand)
	}
	return out, rows.Err()
}
