package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/service"
)

// StatsInput defines the (empty) input schema for the stats tool.
type StatsInput struct{}

// StatsResult is the response from the stats tool.
type StatsResult struct {
	Metrics     metrics.Snapshot          `json:"metrics"`
	Jobs        map[service.JobStatus]int `json:"jobs"`
	DeadLetters int                       `json:"dead_letters"`
}

// NewStatsHandler creates the stats tool handler.
// Reports provider and retrieval timings, tier counts and job states.
func NewStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[StatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (
		*mcp.CallToolResult, any, error,
	) {
		jobs := make(map[service.JobStatus]int)
		for _, job := range deps.App.Jobs.ListJobs() {
			jobs[job.Snapshot().Status]++
		}
		return JSONResult(StatsResult{
			Metrics:     deps.App.Metrics.Snapshot(),
			Jobs:        jobs,
			DeadLetters: len(deps.App.Jobs.DeadLetters()),
		}), nil, nil
	}
}
