package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/raphaelgruber/groundwork/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// recordIDString extracts the string key from a SurrealDB RecordID.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

func newID() string {
	return ulid.Make().String()
}

type memoryRow struct {
	ID         surrealmodels.RecordID `json:"id"`
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Content    string                 `json:"content"`
	Confidence float64                `json:"confidence"`
	Pinned     bool                   `json:"pinned"`
	Active     bool                   `json:"active"`
	Status     string                 `json:"status"`
	Embedding  []float32              `json:"embedding,omitempty"`
	OwnerID    string                 `json:"owner_id"`
	ProjectID  string                 `json:"project_id"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	Score      *float64               `json:"score,omitempty"`
}

func (r memoryRow) model() (models.Memory, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.Memory{}, err
	}
	return models.Memory{
		ID:         id,
		Type:       models.MemoryType(r.Type),
		Title:      r.Title,
		Content:    r.Content,
		Confidence: r.Confidence,
		Pinned:     r.Pinned,
		Active:     r.Active,
		Status:     models.MemoryStatus(r.Status),
		Embedding:  r.Embedding,
		OwnerID:    r.OwnerID,
		ProjectID:  r.ProjectID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

type sourceRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	Type         string                 `json:"type"`
	Name         string                 `json:"name"`
	Locator      string                 `json:"locator"`
	Status       string                 `json:"status"`
	Version      int                    `json:"version"`
	LastSyncedAt *time.Time             `json:"last_synced_at,omitempty"`
	Metadata     map[string]any         `json:"metadata,omitempty"`
	OwnerID      string                 `json:"owner_id"`
	ProjectID    string                 `json:"project_id"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

func (r sourceRow) model() (models.KnowledgeSource, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.KnowledgeSource{}, err
	}
	return models.KnowledgeSource{
		ID:           id,
		Type:         models.SourceType(r.Type),
		Name:         r.Name,
		Locator:      r.Locator,
		Status:       models.SourceStatus(r.Status),
		Version:      r.Version,
		LastSyncedAt: r.LastSyncedAt,
		Metadata:     r.Metadata,
		OwnerID:      r.OwnerID,
		ProjectID:    r.ProjectID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

type chunkRow struct {
	ID         surrealmodels.RecordID `json:"id"`
	Source     surrealmodels.RecordID `json:"source"`
	ChunkIndex int                    `json:"chunk_index"`
	Content    string                 `json:"content"`
	Embedding  []float32              `json:"embedding,omitempty"`
	Metadata   map[string]any         `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	SourceName string                 `json:"source_name,omitempty"`
	Score      *float64               `json:"score,omitempty"`
}

func (r chunkRow) model() (models.KnowledgeChunk, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.KnowledgeChunk{}, err
	}
	sourceID, err := recordIDString(r.Source)
	if err != nil {
		return models.KnowledgeChunk{}, err
	}
	return models.KnowledgeChunk{
		ID:        id,
		SourceID:  sourceID,
		Index:     r.ChunkIndex,
		Content:   r.Content,
		Embedding: r.Embedding,
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
	}, nil
}

type messageRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	Conversation surrealmodels.RecordID `json:"conversation"`
	Role         string                 `json:"role"`
	Content      string                 `json:"content"`
	CreatedAt    time.Time              `json:"created_at"`
}

type conversationRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	OwnerID   string                 `json:"owner_id"`
	Title     string                 `json:"title"`
	CreatedAt time.Time              `json:"created_at"`
}

type refRow struct {
	Message   surrealmodels.RecordID `json:"message"`
	MemoryID  string                 `json:"memory_id,omitempty"`
	ChunkID   string                 `json:"chunk_id,omitempty"`
	Score     *float64               `json:"score,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type candidateRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
}

// scopeFilter adds the owner and optional project condition for fields under prefix.
func scopeFilter(prefix string, scope models.Scope, vars map[string]any) string {
	vars["owner"] = scope.OwnerID
	if scope.ProjectID == "" {
		return prefix + "owner_id = $owner"
	}
	vars["project"] = scope.ProjectID
	return prefix + "owner_id = $owner AND " + prefix + "project_id = $project"
}

// keywordFilter matches any keyword as a lowercase substring of any field.
func keywordFilter(fields []string, keywords []string, vars map[string]any) string {
	var parts []string
	for i, kw := range keywords {
		name := fmt.Sprintf("kw%d", i)
		vars[name] = strings.ToLower(kw)
		for _, f := range fields {
			parts = append(parts, fmt.Sprintf("string::contains(string::lowercase(%s), $%s)", f, name))
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// maxKNN bounds how far a vector search widens its neighbour set.
const maxKNN = 1280

// knnClause selects the k nearest neighbours through the HNSW index. K must be a literal.
func knnClause(k int) string {
	return fmt.Sprintf("embedding <|%d,40|> $emb", k)
}

// knnSizes lists the neighbour counts a vector search tries: limit*4 (at least 40),
// doubling up to maxKNN.
func knnSizes(limit int) []int {
	k := max(limit*4, 40)
	sizes := []int{k}
	for k < maxKNN {
		k = min(k*2, maxKNN)
		sizes = append(sizes, k)
	}
	return sizes
}

// searchKNN runs the query built by sql with growing neighbour counts until it
// returns limit rows. The HNSW neighbour set is taken before the scope and
// visibility filters apply, so other principals' rows can fill a small one.
func searchKNN[T any](ctx context.Context, c *Client, limit int, sql func(knn string) string, vars map[string]any) ([]T, error) {
	var rows []T
	for _, k := range knnSizes(limit) {
		var err error
		rows, err = queryRows[T](ctx, c, sql(knnClause(k)), vars)
		if err != nil {
			return nil, err
		}
		if len(rows) >= limit {
			break
		}
	}
	return rows, nil
}
