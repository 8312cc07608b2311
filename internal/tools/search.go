package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/service"
)

// SearchContextInput defines the input schema for the search_context tool.
type SearchContextInput struct {
	Query   string `json:"query" jsonschema:"The search query text"`
	Owner   string `json:"owner,omitempty" jsonschema:"Owner id (defaults to the configured owner)"`
	Project string `json:"project,omitempty" jsonschema:"Project id (defaults to the configured project)"`
}

// NewSearchContextHandler creates the search_context tool handler.
// Runs retrieval and context assembly without generating an answer.
func NewSearchContextHandler(deps *Dependencies, cfg config.Config) mcp.ToolHandlerFor[SearchContextInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchContextInput) (
		*mcp.CallToolResult, any, error,
	) {
		scope := ResolveScope(cfg, ScopeInput{Owner: input.Owner, Project: input.Project})

		res, err := deps.App.Search.Search(ctx, scope, input.Query)
		if errors.Is(err, service.ErrEmptyQuery) {
			return ErrorResult("Query cannot be empty", "Provide a search query"), nil, nil
		}
		if err != nil {
			deps.Logger.Error("search failed", "error", err)
			return ErrorResult("Search failed", "Both vector and keyword search are unavailable"), nil, nil
		}

		// Log completion (truncate query to 30 chars)
		queryLog := input.Query
		if len(queryLog) > 30 {
			queryLog = queryLog[:30] + "..."
		}
		deps.Logger.Info("search_context completed",
			"query", queryLog,
			"memories", len(res.Memories),
			"chunks", len(res.Chunks))

		text := fmt.Sprintf("%s\ntiers: memory=%s knowledge=%s", res.Context, res.Tiers["memory"], res.Tiers["knowledge"])
		return TextResult(text), nil, nil
	}
}
