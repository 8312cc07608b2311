package service

import (
	"context"
	"errors"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/grounding"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/retrieval"
)

// ErrEmptyQuery is returned for a blank search query.
var ErrEmptyQuery = errors.New("query is empty")

// ContextResult is the grounding context for a query, without generation.
type ContextResult struct {
	Context  string                 `json:"context"`
	Memories []models.MemoryHit     `json:"memories"`
	Chunks   []models.ChunkHit      `json:"chunks"`
	Tiers    map[string]models.Tier `json:"tiers"`
}

// SearchService runs retrieval and context assembly for callers that generate elsewhere.
type SearchService struct {
	retriever *retrieval.Retriever
}

func NewSearchService(r *retrieval.Retriever) *SearchService {
	return &SearchService{retriever: r}
}

// Search retrieves fragments for query and renders the grounding context.
func (s *SearchService) Search(ctx context.Context, scope models.Scope, query string) (*ContextResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	res, err := s.retriever.Retrieve(ctx, scope, query)
	if err != nil {
		return nil, err
	}
	return &ContextResult{
		Context:  grounding.Assemble(res.Memories, res.Chunks),
		Memories: res.Memories,
		Chunks:   res.Chunks,
		Tiers:    res.Tiers(),
	}, nil
}
