package server

import (
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.maxLen))
		})
	}
}

func TestToolName(t *testing.T) {
	call := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Name: "ask"}}
	assert.Equal(t, "ask", toolName(call))
	assert.Empty(t, toolName(&mcp.ListToolsRequest{}))
}
