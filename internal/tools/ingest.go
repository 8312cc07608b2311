package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/service"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// IngestSourceInput defines the input schema for the ingest_source tool.
// Either SourceID names a registered source, or Type and Locator register a new one.
type IngestSourceInput struct {
	SourceID string `json:"source_id,omitempty" jsonschema:"Registered source to (re)ingest"`
	Type     string `json:"type,omitempty" jsonschema:"Source type for a new source: pdf, doc-export, wiki-page or cloud-file"`
	Name     string `json:"name,omitempty" jsonschema:"Display name for a new source"`
	Locator  string `json:"locator,omitempty" jsonschema:"URL or path for a new source"`
	Wait     bool   `json:"wait,omitempty" jsonschema:"Run synchronously and return the chunk counts instead of a job"`
	Owner    string `json:"owner,omitempty" jsonschema:"Owner id (defaults to the configured owner)"`
	Project  string `json:"project,omitempty" jsonschema:"Project id (defaults to the configured project)"`
}

// IngestSourceResult is the response from the ingest_source tool. Exactly one of
// Result and Job is set.
type IngestSourceResult struct {
	SourceID string                `json:"source_id"`
	Result   *service.IngestResult `json:"result,omitempty"`
	Job      *service.JobView      `json:"job,omitempty"`
}

// NewIngestSourceHandler creates the ingest_source tool handler.
func NewIngestSourceHandler(deps *Dependencies, cfg config.Config) mcp.ToolHandlerFor[IngestSourceInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestSourceInput) (
		*mcp.CallToolResult, any, error,
	) {
		scope := ResolveScope(cfg, ScopeInput{Owner: input.Owner, Project: input.Project})

		sourceID := input.SourceID
		if sourceID == "" {
			if input.Type == "" || input.Locator == "" {
				return ErrorResult("source_id or type and locator are required", "Register a new source by passing type and locator"), nil, nil
			}
			name := input.Name
			if name == "" {
				name = input.Locator
			}
			src, err := deps.App.Sources.Register(ctx, scope, models.SourceInput{
				Type:    models.SourceType(input.Type),
				Name:    name,
				Locator: input.Locator,
			})
			if errors.Is(err, models.ErrInvalidType) {
				return ErrorResult("Invalid source type", "Use one of pdf, doc-export, wiki-page, cloud-file"), nil, nil
			}
			if err != nil {
				return ErrorResult("Failed to register source", err.Error()), nil, nil
			}
			sourceID = src.ID
		} else if _, err := deps.App.Sources.Get(ctx, scope, sourceID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrorResult("Source not found", "Check the source id and scope"), nil, nil
			}
			return ErrorResult("Failed to load source", err.Error()), nil, nil
		}

		if !input.Wait {
			snap := deps.App.SubmitIngest(scope, sourceID).Snapshot()
			return JSONResult(IngestSourceResult{SourceID: sourceID, Job: &snap}), nil, nil
		}

		res, err := deps.App.Ingest.Ingest(ctx, scope, sourceID)
		if err != nil {
			deps.Logger.Warn("ingestion failed", "source_id", sourceID, "error", err)
			return ErrorResult("Ingestion failed", err.Error()), nil, nil
		}
		return JSONResult(IngestSourceResult{SourceID: sourceID, Result: res}), nil, nil
	}
}
