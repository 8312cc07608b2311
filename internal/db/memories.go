package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

const visibleMemory = `active = true AND status != "rejected"`

func memoryModels(rows []memoryRow) ([]models.Memory, error) {
	out := make([]models.Memory, 0, len(rows))
	for _, r := range rows {
		m, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// CreateMemory stores a new candidate memory without an embedding.
func (c *Client) CreateMemory(ctx context.Context, scope models.Scope, in models.MemoryInput) (*models.Memory, error) {
	rows, err := queryRows[memoryRow](ctx, c, `
		CREATE type::record("memory", $id) SET
			type = $type,
			title = $title,
			content = $content,
			confidence = $confidence,
			pinned = $pinned,
			active = true,
			status = "candidate",
			owner_id = $owner,
			project_id = $project,
			created_at = time::now(),
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{
		"id":         newID(),
		"type":       string(in.Type),
		"title":      in.Title,
		"content":    in.Content,
		"confidence": models.ClampConfidence(in.Confidence),
		"pinned":     in.Pinned,
		"owner":      scope.OwnerID,
		"project":    scope.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}
	return firstMemory(rows, "create memory")
}

func firstMemory(rows []memoryRow, op string) (*models.Memory, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	m, err := rows[0].model()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &m, nil
}

// GetMemory returns a memory in scope.
func (c *Client) GetMemory(ctx context.Context, scope models.Scope, id string) (*models.Memory, error) {
	vars := map[string]any{"id": id}
	where := scopeFilter("", scope, vars)
	rows, err := queryRows[memoryRow](ctx, c,
		`SELECT * FROM type::record("memory", $id) WHERE `+where, vars)
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return firstMemory(rows, "memory "+id)
}

// UpdateMemory applies the non-nil fields. A changed title or content drops the embedding.
func (c *Client) UpdateMemory(ctx context.Context, scope models.Scope, id string, upd models.MemoryUpdate) (*models.Memory, error) {
	vars := map[string]any{"id": id}
	sets := []string{"updated_at = time::now()"}
	if upd.Title != nil {
		sets = append(sets, "title = $title")
		vars["title"] = *upd.Title
	}
	if upd.Content != nil {
		sets = append(sets, "content = $content")
		vars["content"] = *upd.Content
	}
	if upd.Confidence != nil {
		sets = append(sets, "confidence = $confidence")
		vars["confidence"] = models.ClampConfidence(*upd.Confidence)
	}
	if upd.Pinned != nil {
		sets = append(sets, "pinned = $pinned")
		vars["pinned"] = *upd.Pinned
	}
	if upd.Title != nil || upd.Content != nil {
		sets = append(sets, "embedding = NONE")
	}
	where := scopeFilter("", scope, vars)

	rows, err := queryRows[memoryRow](ctx, c,
		`UPDATE type::record("memory", $id) SET `+strings.Join(sets, ", ")+` WHERE `+where+` RETURN AFTER`, vars)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	return firstMemory(rows, "memory "+id)
}

// SetMemoryStatus records a review decision.
func (c *Client) SetMemoryStatus(ctx context.Context, scope models.Scope, id string, status models.MemoryStatus) error {
	return c.updateMemoryField(ctx, scope, id, "status", string(status))
}

// SetMemoryActive toggles whether a memory can be retrieved.
func (c *Client) SetMemoryActive(ctx context.Context, scope models.Scope, id string, active bool) error {
	return c.updateMemoryField(ctx, scope, id, "active", active)
}

func (c *Client) updateMemoryField(ctx context.Context, scope models.Scope, id, field string, value any) error {
	vars := map[string]any{"id": id, "value": value}
	where := scopeFilter("", scope, vars)
	rows, err := queryRows[memoryRow](ctx, c,
		`UPDATE type::record("memory", $id) SET `+field+` = $value, updated_at = time::now() WHERE `+where+` RETURN AFTER`, vars)
	if err != nil {
		return fmt.Errorf("set memory %s: %w", field, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("memory %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// SetMemoryEmbedding stores a computed vector without touching updated_at.
func (c *Client) SetMemoryEmbedding(ctx context.Context, id string, embedding []float32) error {
	rows, err := queryRows[memoryRow](ctx, c,
		`UPDATE type::record("memory", $id) SET embedding = $emb RETURN AFTER`,
		map[string]any{"id": id, "emb": embedding})
	if err != nil {
		return fmt.Errorf("set memory embedding: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("memory %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// SearchMemoriesByVector ranks visible memories by cosine similarity via the HNSW index.
func (c *Client) SearchMemoriesByVector(ctx context.Context, scope models.Scope, embedding []float32, limit int) ([]models.MemoryHit, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("vector search: empty query embedding")
	}
	vars := map[string]any{"emb": embedding, "limit": limit}
	where := scopeFilter("", scope, vars)

	rows, err := searchKNN[memoryRow](ctx, c, limit, func(knn string) string {
		return `
		SELECT *, vector::similarity::cosine(embedding, $emb) AS score FROM memory
		WHERE ` + knn + ` AND ` + visibleMemory + ` AND ` + where + `
		ORDER BY score DESC LIMIT $limit
	`
	}, vars)
	if err != nil {
		return nil, fmt.Errorf("vector search memories: %w", err)
	}

	hits := make([]models.MemoryHit, 0, len(rows))
	for _, r := range rows {
		m, err := r.model()
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.MemoryHit{Memory: m, Score: r.Score})
	}
	return hits, nil
}

// SearchMemoriesByKeyword matches keywords as substrings of title or content.
func (c *Client) SearchMemoriesByKeyword(ctx context.Context, scope models.Scope, keywords []string, limit int) ([]models.MemoryHit, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	vars := map[string]any{"limit": limit}
	where := scopeFilter("", scope, vars)
	match := keywordFilter([]string{"title", "content"}, keywords, vars)

	rows, err := queryRows[memoryRow](ctx, c, `
		SELECT * FROM memory
		WHERE `+visibleMemory+` AND `+where+` AND `+match+`
		ORDER BY pinned DESC, confidence DESC, updated_at DESC LIMIT $limit
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("keyword search memories: %w", err)
	}
	mems, err := memoryModels(rows)
	if err != nil {
		return nil, err
	}
	hits := make([]models.MemoryHit, len(mems))
	for i, m := range mems {
		hits[i] = models.MemoryHit{Memory: m}
	}
	return hits, nil
}

// MemoriesWithoutEmbedding lists memories still waiting for a vector, oldest first.
func (c *Client) MemoriesWithoutEmbedding(ctx context.Context, scope models.Scope, limit int) ([]models.EmbeddingCandidate, error) {
	vars := map[string]any{"limit": limit}
	where := scopeFilter("", scope, vars)
	rows, err := queryRows[candidateRow](ctx, c, `
		SELECT id, title, content, created_at FROM memory
		WHERE embedding = NONE AND `+where+`
		ORDER BY created_at ASC LIMIT $limit
	`, vars)
	if err != nil {
		return nil, fmt.Errorf("list unembedded memories: %w", err)
	}

	out := make([]models.EmbeddingCandidate, 0, len(rows))
	for _, r := range rows {
		id, err := recordIDString(r.ID)
		if err != nil {
			return nil, err
		}
		m := models.Memory{Title: r.Title, Content: r.Content}
		out = append(out, models.EmbeddingCandidate{
			Kind:      models.CandidateMemory,
			ID:        id,
			Text:      m.EmbeddingText(),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
