package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/groundwork/internal/config"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies, cfg config.Config) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question grounded in stored memories and ingested knowledge, with citations",
	}, NewAskHandler(deps, cfg))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_context",
		Description: "Retrieve the grounding context for a query without generating an answer",
	}, NewSearchContextHandler(deps, cfg))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a candidate memory (fact, preference, procedure, goal or context)",
	}, NewRememberHandler(deps, cfg))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_source",
		Description: "Register and/or ingest a knowledge source into searchable chunks",
	}, NewIngestSourceHandler(deps, cfg))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "backfill_embeddings",
		Description: "Embed memories and knowledge chunks stored without a vector",
	}, NewBackfillHandler(deps, cfg))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Show provider timings, retrieval tier counts and background job states",
	}, NewStatsHandler(deps))
}
