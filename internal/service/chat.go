package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/groundwork/internal/citation"
	"github.com/raphaelgruber/groundwork/internal/grounding"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/retrieval"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// ErrEmptyMessage is returned when a turn has no user text.
var ErrEmptyMessage = errors.New("message is empty")

// Citation modes.
const (
	CitationExplicit = "explicit"
	CitationFallback = "fallback"
)

// Turn statuses used in metrics.
const (
	turnOK    = "ok"
	turnError = "error"
)

// Generator produces an answer. *llm.Model implements it.
type Generator interface {
	Stream(ctx context.Context, req llm.Request, onToken func(string) error) (string, error)
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// ChatOptions bounds the history sent with each turn.
type ChatOptions struct {
	HistoryTurns       int
	HistoryTokenBudget int
}

// TurnResult summarizes a completed turn. It is also the payload of the streaming
// done event.
type TurnResult struct {
	MessageID    string                 `json:"message_id"`
	Text         string                 `json:"text"`
	MemoryIDs    []string               `json:"memory_ids"`
	ChunkIDs     []string               `json:"knowledge_chunk_ids"`
	CitationMode string                 `json:"citation_mode"`
	Tiers        map[string]models.Tier `json:"tiers"`
}

// ChatService runs the grounded turn pipeline.
type ChatService struct {
	store     store.Store
	retriever *retrieval.Retriever
	generator Generator
	recorder  *Recorder
	opts      ChatOptions
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewChatService creates a chat service.
func NewChatService(s store.Store, r *retrieval.Retriever, g Generator, opts ChatOptions, m *metrics.Metrics, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		store:     s,
		retriever: r,
		generator: g,
		recorder:  NewRecorder(s),
		opts:      opts,
		metrics:   m,
		logger:    logger,
	}
}

// SendTurn answers userText without streaming.
func (s *ChatService) SendTurn(ctx context.Context, scope models.Scope, conversationID, userText string) (*TurnResult, error) {
	return s.turn(ctx, scope, conversationID, userText, nil)
}

// StreamTurn answers userText, passing every token to onToken as it arrives.
// The tokens include the raw citation footer; TurnResult.Text does not.
func (s *ChatService) StreamTurn(ctx context.Context, scope models.Scope, conversationID, userText string, onToken func(string) error) (*TurnResult, error) {
	if onToken == nil {
		onToken = func(string) error { return nil }
	}
	return s.turn(ctx, scope, conversationID, userText, onToken)
}

// turn persists the user message, retrieves and assembles the context, generates,
// extracts citations, persists the assistant message and then its provenance. Any
// failure before the assistant message is stored leaves only the user message.
func (s *ChatService) turn(ctx context.Context, scope models.Scope, conversationID, userText string, onToken func(string) error) (*TurnResult, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, ErrEmptyMessage
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetConversation(ctx, scope, conversationID); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	start := time.Now()
	logger := s.logger.With("conversation_id", conversationID)
	fail := func(err error) (*TurnResult, error) {
		s.metrics.RecordTurn(turnError, time.Since(start))
		logger.Warn("turn failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	userMsg, err := s.store.AddMessage(ctx, conversationID, models.RoleUser, userText)
	if err != nil {
		return fail(fmt.Errorf("save user message: %w", err))
	}

	history, err := s.history(ctx, conversationID, userMsg.ID)
	if err != nil {
		return fail(err)
	}

	retrieved, err := s.retriever.Retrieve(ctx, scope, userText)
	if err != nil {
		return fail(fmt.Errorf("retrieve context: %w", err))
	}
	injected := grounding.Collect(retrieved.Memories, retrieved.Chunks)

	req := llm.Request{
		System:  grounding.Assemble(retrieved.Memories, retrieved.Chunks),
		History: history,
		User:    userText,
	}

	var answer string
	if onToken != nil {
		answer, err = s.generator.Stream(ctx, req, onToken)
	} else {
		answer, err = s.generator.Generate(ctx, req)
	}
	if err != nil {
		return fail(fmt.Errorf("generate answer: %w", err))
	}

	cited := citation.Extract(answer)
	memIDs, chunkIDs := injected.Restrict(cited.MemoryIDs, cited.ChunkIDs)
	mode := CitationExplicit
	if len(memIDs) == 0 && len(chunkIDs) == 0 {
		mode = CitationFallback
		memIDs, chunkIDs = injected.MemoryIDs, injected.ChunkIDs
	}

	assistantMsg, err := s.store.AddMessage(ctx, conversationID, models.RoleAssistant, cited.Visible)
	if err != nil {
		return fail(fmt.Errorf("save assistant message: %w", err))
	}

	if err := s.recorder.Record(ctx, assistantMsg.ID, memIDs, chunkIDs, injected.MemoryScore, injected.ChunkScore); err != nil {
		// Provenance failures never fail a turn whose answer is stored.
		logger.Error("failed to record provenance", "message_id", assistantMsg.ID, "error", err)
	}

	s.metrics.RecordTurn(turnOK, time.Since(start))
	s.metrics.RecordCitation(mode)
	logger.Info("turn completed",
		"message_id", assistantMsg.ID,
		"citation_mode", mode,
		"memory_tier", retrieved.MemoryTier,
		"knowledge_tier", retrieved.ChunkTier,
		"memories", len(memIDs),
		"chunks", len(chunkIDs),
		"duration_ms", time.Since(start).Milliseconds())

	return &TurnResult{
		MessageID:    assistantMsg.ID,
		Text:         cited.Visible,
		MemoryIDs:    memIDs,
		ChunkIDs:     chunkIDs,
		CitationMode: mode,
		Tiers:        retrieved.Tiers(),
	}, nil
}

// history loads the prior turns, excluding the user message just stored, trimmed
// to the turn and token limits.
func (s *ChatService) history(ctx context.Context, conversationID, currentID string) ([]llm.Message, error) {
	if s.opts.HistoryTurns <= 0 {
		return nil, nil
	}
	msgs, err := s.store.RecentMessages(ctx, conversationID, s.opts.HistoryTurns*2+1)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == currentID {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return llm.TrimHistory(out, s.opts.HistoryTurns, s.opts.HistoryTokenBudget), nil
}
