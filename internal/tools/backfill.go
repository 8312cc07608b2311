package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/service"
)

// BackfillInput defines the input schema for the backfill_embeddings tool.
type BackfillInput struct {
	Limit   int    `json:"limit,omitempty" jsonschema:"Max items to embed (defaults to the configured limit)"`
	Wait    bool   `json:"wait,omitempty" jsonschema:"Run synchronously and return the counts instead of a job"`
	Owner   string `json:"owner,omitempty" jsonschema:"Owner id (defaults to the configured owner)"`
	Project string `json:"project,omitempty" jsonschema:"Project id (defaults to the configured project)"`
}

// NewBackfillHandler creates the backfill_embeddings tool handler.
// Embeds memories and chunks that were stored without a vector, oldest first.
func NewBackfillHandler(deps *Dependencies, cfg config.Config) mcp.ToolHandlerFor[BackfillInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input BackfillInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.Limit < 0 || input.Limit > 10000 {
			return ErrorResult("Limit must be 0-10000", "Use 0 for the configured default"), nil, nil
		}
		scope := ResolveScope(cfg, ScopeInput{Owner: input.Owner, Project: input.Project})
		if err := scope.Validate(); err != nil {
			return ErrorResult("No owner configured", "Pass owner or set GROUNDWORK_OWNER"), nil, nil
		}

		if !input.Wait {
			return JSONResult(deps.App.SubmitBackfill(scope, input.Limit).Snapshot()), nil, nil
		}

		limit := input.Limit
		if limit == 0 {
			limit = cfg.BackfillLimit
		}
		res, err := deps.App.Backfill.Run(ctx, service.BackfillOptions{Scope: scope, Limit: limit})
		if errors.Is(err, service.ErrNoEmbedder) {
			return ErrorResult("No embedding provider available", "Check EMBED_PROVIDER and its connection"), nil, nil
		}
		if err != nil {
			deps.Logger.Error("backfill failed", "error", err)
			return ErrorResult("Backfill failed", err.Error()), nil, nil
		}
		return JSONResult(res), nil, nil
	}
}
