package tools

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/service"
	"github.com/raphaelgruber/groundwork/internal/store"
)

const maxTitleRunes = 60

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Question       string `json:"question" jsonschema:"The question to answer from memories and knowledge"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"Conversation to continue. A new one is started if omitted"`
	Owner          string `json:"owner,omitempty" jsonschema:"Owner id (defaults to the configured owner)"`
	Project        string `json:"project,omitempty" jsonschema:"Project id (defaults to the configured project)"`
}

// AskResult is the response from the ask tool.
type AskResult struct {
	ConversationID string `json:"conversation_id"`
	*service.TurnResult
}

// NewAskHandler creates the ask tool handler.
// Runs one grounded, non-streaming chat turn.
func NewAskHandler(deps *Dependencies, cfg config.Config) mcp.ToolHandlerFor[AskInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, any, error,
	) {
		question := strings.TrimSpace(input.Question)
		if question == "" {
			return ErrorResult("Question cannot be empty", "Provide a question"), nil, nil
		}
		scope := ResolveScope(cfg, ScopeInput{Owner: input.Owner, Project: input.Project})

		convID := input.ConversationID
		if convID == "" {
			conv, err := deps.App.Conversations.Create(ctx, scope, conversationTitle(question))
			if err != nil {
				deps.Logger.Error("create conversation failed", "error", err)
				return ErrorResult("Failed to start a conversation", err.Error()), nil, nil
			}
			convID = conv.ID
		}

		res, err := deps.App.Chat.SendTurn(ctx, scope, convID, question)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return ErrorResult("Conversation not found", "Omit conversation_id to start a new one"), nil, nil
		case errors.Is(err, llm.ErrGenerationFailed):
			return ErrorResult("Answer generation failed", "Check the language model provider"), nil, nil
		case err != nil:
			deps.Logger.Error("ask failed", "conversation_id", convID, "error", err)
			return ErrorResult("Turn failed", err.Error()), nil, nil
		}

		deps.Logger.Info("ask completed", "conversation_id", convID, "citation_mode", res.CitationMode)
		return JSONResult(AskResult{ConversationID: convID, TurnResult: res}), nil, nil
	}
}

func conversationTitle(question string) string {
	if utf8.RuneCountInString(question) <= maxTitleRunes {
		return question
	}
	return string([]rune(question)[:maxTitleRunes-3]) + "..."
}
