package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/service"
)

// RememberInput defines the input schema for the remember tool.
type RememberInput struct {
	Content    string  `json:"content" jsonschema:"The fact, preference or procedure to remember"`
	Title      string  `json:"title,omitempty" jsonschema:"Short title"`
	Type       string  `json:"type,omitempty" jsonschema:"Memory type: fact, preference, procedure, goal or context (default fact)"`
	Confidence float64 `json:"confidence,omitempty" jsonschema:"Confidence score 0-1"`
	Pinned     bool    `json:"pinned,omitempty" jsonschema:"Pinned memories rank first in keyword search"`
	Owner      string  `json:"owner,omitempty" jsonschema:"Owner id (defaults to the configured owner)"`
	Project    string  `json:"project,omitempty" jsonschema:"Project id (defaults to the configured project)"`
}

// RememberResult is the response from the remember tool.
type RememberResult struct {
	ID     string              `json:"id"`
	Type   models.MemoryType   `json:"type"`
	Title  string              `json:"title,omitempty"`
	Status models.MemoryStatus `json:"status"`
}

// NewRememberHandler creates the remember tool handler.
// Stores a candidate memory; its embedding is computed in the background.
func NewRememberHandler(deps *Dependencies, cfg config.Config) mcp.ToolHandlerFor[RememberInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RememberInput) (
		*mcp.CallToolResult, any, error,
	) {
		scope := ResolveScope(cfg, ScopeInput{Owner: input.Owner, Project: input.Project})

		mem, err := deps.App.Memories.Create(ctx, scope, models.MemoryInput{
			Type:       models.MemoryType(input.Type),
			Title:      input.Title,
			Content:    input.Content,
			Confidence: models.ClampConfidence(input.Confidence),
			Pinned:     input.Pinned,
		})
		switch {
		case errors.Is(err, service.ErrEmptyContent):
			return ErrorResult("Memory content is required", "Provide content"), nil, nil
		case errors.Is(err, models.ErrInvalidType):
			return ErrorResult("Invalid memory type", "Use one of fact, preference, procedure, goal, context"), nil, nil
		case err != nil:
			deps.Logger.Error("remember failed", "error", err)
			return ErrorResult("Failed to store memory", err.Error()), nil, nil
		}

		deps.Logger.Info("memory stored", "id", mem.ID, "type", mem.Type)
		return JSONResult(RememberResult{ID: mem.ID, Type: mem.Type, Title: mem.Title, Status: mem.Status}), nil, nil
	}
}
