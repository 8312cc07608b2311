package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

const memoryColumns = `id, type, title, content, confidence, pinned, active, status, embedding,
	owner_id, project_id, created_at, updated_at`

// visibleMemory restricts to memories that may ground an answer.
const visibleMemory = `active = 1 AND status != 'rejected'`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*models.Memory, error) {
	var (
		m                models.Memory
		pinned, active   int
		blob             []byte
		created, updated int64
	)
	if err := row.Scan(&m.ID, &m.Type, &m.Title, &m.Content, &m.Confidence, &pinned, &active,
		&m.Status, &blob, &m.OwnerID, &m.ProjectID, &created, &updated); err != nil {
		return nil, err
	}
	emb, err := blobToFloat32Array(blob)
	if err != nil {
		return nil, err
	}
	m.Pinned = pinned == 1
	m.Active = active == 1
	m.Embedding = emb
	m.CreatedAt = fromNanos(created)
	m.UpdatedAt = fromNanos(updated)
	return &m, nil
}

// CreateMemory stores a new candidate memory without an embedding.
func (d *DB) CreateMemory(ctx context.Context, scope models.Scope, in models.MemoryInput) (*models.Memory, error) {
	id := d.newID()
	now := d.timestamp()
	_, err := d.db.ExecContext(ctx, `INSERT INTO memories
		(id, type, title, content, confidence, pinned, active, status, owner_id, project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		id, in.Type, in.Title, in.Content, models.ClampConfidence(in.Confidence), boolToInt(in.Pinned),
		models.MemoryStatusCandidate, scope.OwnerID, scope.ProjectID, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return d.GetMemory(ctx, scope, id)
}

// GetMemory returns a memory in scope.
func (d *DB) GetMemory(ctx context.Context, scope models.Scope, id string) (*models.Memory, error) {
	where, args := scopeClause("", scope)
	row := d.db.QueryRowContext(ctx,
		"SELECT "+memoryColumns+" FROM memories WHERE id = ? AND "+where,
		append([]any{id}, args...)...)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// UpdateMemory applies upd and drops the embedding when the embedded text changes.
func (d *DB) UpdateMemory(ctx context.Context, scope models.Scope, id string, upd models.MemoryUpdate) (*models.Memory, error) {
	current, err := d.GetMemory(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{d.timestamp()}
	textChanged := false
	if upd.Title != nil && *upd.Title != current.Title {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
		textChanged = true
	}
	if upd.Content != nil && *upd.Content != current.Content {
		sets = append(sets, "content = ?")
		args = append(args, *upd.Content)
		textChanged = true
	}
	if upd.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, models.ClampConfidence(*upd.Confidence))
	}
	if upd.Pinned != nil {
		sets = append(sets, "pinned = ?")
		args = append(args, boolToInt(*upd.Pinned))
	}
	if textChanged {
		sets = append(sets, "embedding = NULL")
	}

	args = append(args, id)
	if _, err := d.db.ExecContext(ctx, "UPDATE memories SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	return d.GetMemory(ctx, scope, id)
}

// SetMemoryStatus records a review decision.
func (d *DB) SetMemoryStatus(ctx context.Context, scope models.Scope, id string, status models.MemoryStatus) error {
	return d.updateMemoryField(ctx, scope, id, "status", status)
}

// SetMemoryActive toggles whether the memory participates in retrieval.
func (d *DB) SetMemoryActive(ctx context.Context, scope models.Scope, id string, active bool) error {
	return d.updateMemoryField(ctx, scope, id, "active", boolToInt(active))
}

func (d *DB) updateMemoryField(ctx context.Context, scope models.Scope, id, column string, value any) error {
	where, args := scopeClause("", scope)
	res, err := d.db.ExecContext(ctx,
		"UPDATE memories SET "+column+" = ?, updated_at = ? WHERE id = ? AND "+where,
		append([]any{value, d.timestamp(), id}, args...)...)
	if err != nil {
		return fmt.Errorf("update memory %s: %w", column, err)
	}
	return requireAffected(res, "memory", id)
}

// SetMemoryEmbedding stores a computed vector.
func (d *DB) SetMemoryEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := d.db.ExecContext(ctx, "UPDATE memories SET embedding = ? WHERE id = ?", vectorArg(embedding), id)
	if err != nil {
		return fmt.Errorf("set memory embedding: %w", err)
	}
	return requireAffected(res, "memory", id)
}

// SearchMemoriesByVector ranks visible embedded memories by cosine similarity.
func (d *DB) SearchMemoriesByVector(ctx context.Context, scope models.Scope, embedding []float32, limit int) ([]models.MemoryHit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("vector search: empty query embedding")
	}
	where, args := scopeClause("", scope)
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+memoryColumns+" FROM memories WHERE embedding IS NOT NULL AND "+visibleMemory+" AND "+where,
		args...)
	if err != nil {
		return nil, fmt.Errorf("vector search memories: %w", err)
	}
	defer rows.Close()

	var candidates []scored[models.Memory]
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if len(m.Embedding) != len(embedding) {
			continue
		}
		candidates = append(candidates, scored[models.Memory]{item: *m, score: cosineSimilarity(embedding, m.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search memories: %w", err)
	}

	top := topK(candidates, limit)
	hits := make([]models.MemoryHit, len(top))
	for i, c := range top {
		hits[i] = models.MemoryHit{Memory: c.item, Score: models.Float64Ptr(c.score)}
	}
	return hits, nil
}

// SearchMemoriesByKeyword matches keywords as substrings of title or content.
func (d *DB) SearchMemoriesByKeyword(ctx context.Context, scope models.Scope, keywords []string, limit int) ([]models.MemoryHit, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	where, args := scopeClause("", scope)
	match, matchArgs := likeAny([]string{"title", "content"}, keywords)
	args = append(args, matchArgs...)
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+memoryColumns+" FROM memories WHERE "+visibleMemory+" AND "+where+" AND "+match+
			" ORDER BY pinned DESC, confidence DESC, updated_at DESC LIMIT ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search memories: %w", err)
	}
	defer rows.Close()

	var hits []models.MemoryHit
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		hits = append(hits, models.MemoryHit{Memory: *m})
	}
	return hits, rows.Err()
}

// MemoriesWithoutEmbedding lists memories still waiting for a vector, oldest first.
func (d *DB) MemoriesWithoutEmbedding(ctx context.Context, scope models.Scope, limit int) ([]models.EmbeddingCandidate, error) {
	where, args := scopeClause("", scope)
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, title, content, created_at FROM memories WHERE embedding IS NULL AND "+where+
			" ORDER BY created_at ASC, id ASC LIMIT ?",
		append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list unembedded memories: %w", err)
	}
	defer rows.Close()

	var out []models.EmbeddingCandidate
	for rows.Next() {
		var (
			m       models.Memory
			created int64
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, models.EmbeddingCandidate{
			Kind:      models.CandidateMemory,
			ID:        m.ID,
			Text:      m.EmbeddingText(),
			CreatedAt: fromNanos(created),
		})
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}
