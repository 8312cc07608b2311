package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/retrieval"
	"github.com/raphaelgruber/groundwork/internal/sqlitedb"
	"github.com/raphaelgruber/groundwork/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	reply func() string
	err   error
	last  llm.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.last = req
	if g.err != nil {
		return "", g.err
	}
	return g.reply(), nil
}

func (g *fakeGenerator) Stream(_ context.Context, req llm.Request, onToken func(string) error) (string, error) {
	g.last = req
	if g.err != nil {
		return "", g.err
	}
	text := g.reply()
	for _, tok := range strings.SplitAfter(text, " ") {
		if err := onToken(tok); err != nil {
			return "", err
		}
	}
	return text, nil
}

type chatFixture struct {
	store   *sqlitedb.DB
	chat    *ChatService
	gen     *fakeGenerator
	metrics *metrics.Metrics
	conv    *models.Conversation
	memID   string
	chunkID string
}

const deployQuestion = "When do deploys run?"

func newChatFixture(t *testing.T, historyTurns int) *chatFixture {
	t.Helper()
	ctx := context.Background()
	st := openStore(t)

	mem, err := st.CreateMemory(ctx, testScope, models.MemoryInput{
		Type:       models.MemoryTypeFact,
		Title:      "Deploy window",
		Content:    "Production deploys run on Tuesdays.",
		Confidence: 0.9,
	})
	require.NoError(t, err)
	_, chunkIDs := readySource(t, st, "release-guide", "The release checklist covers deploys and rollbacks.")

	conv, err := st.CreateConversation(ctx, testScope, "ops")
	require.NoError(t, err)

	m := metrics.New()
	gen := &fakeGenerator{}
	r := retrieval.New(st, nil, retrieval.DefaultOptions(), m, nil)
	chat := NewChatService(st, r, gen, ChatOptions{HistoryTurns: historyTurns}, m, nil)

	return &chatFixture{store: st, chat: chat, gen: gen, metrics: m, conv: conv, memID: mem.ID, chunkID: chunkIDs[0]}
}

func footer(memIDs, chunkIDs []string) string {
	quote := func(ids []string) string {
		q := make([]string, len(ids))
		for i, id := range ids {
			q[i] = fmt.Sprintf("%q", id)
		}
		return "[" + strings.Join(q, ", ") + "]"
	}
	return fmt.Sprintf(`{"memory_ids": %s, "knowledge_chunk_ids": %s}`, quote(memIDs), quote(chunkIDs))
}

func (f *chatFixture) messages(t *testing.T) []models.Message {
	t.Helper()
	msgs, err := f.store.RecentMessages(context.Background(), f.conv.ID, 50)
	require.NoError(t, err)
	return msgs
}

func TestSendTurnExplicitCitation(t *testing.T) {
	f := newChatFixture(t, 0)
	f.gen.reply = func() string {
		return "Deploys run on Tuesdays.\n```json\n" + footer([]string{f.memID}, nil) + "\n```"
	}

	res, err := f.chat.SendTurn(context.Background(), testScope, f.conv.ID, deployQuestion)
	require.NoError(t, err)

	assert.Equal(t, "Deploys run on Tuesdays.", res.Text)
	assert.Equal(t, CitationExplicit, res.CitationMode)
	assert.Equal(t, []string{f.memID}, res.MemoryIDs)
	assert.Empty(t, res.ChunkIDs)
	assert.Equal(t, models.TierKeyword, res.Tiers[retrieval.StoreMemory])
	assert.Equal(t, models.TierKeyword, res.Tiers[retrieval.StoreKnowledge])

	assert.Contains(t, f.gen.last.System, "["+f.memID+"]")
	assert.Contains(t, f.gen.last.System, "["+f.chunkID+"]")
	assert.Equal(t, deployQuestion, f.gen.last.User)

	msgs := f.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Deploys run on Tuesdays.", msgs[1].Content)
	assert.Equal(t, res.MessageID, msgs[1].ID)

	memRefs, chunkRefs, err := f.store.MessageRefs(context.Background(), res.MessageID)
	require.NoError(t, err)
	require.Len(t, memRefs, 1)
	assert.Equal(t, f.memID, memRefs[0].MemoryID)
	assert.Nil(t, memRefs[0].Score, "keyword hits carry no score")
	assert.Empty(t, chunkRefs)
}

func TestSendTurnFallbackProvenance(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantText string
	}{
		{"no footer", "The answer is 42.", "The answer is 42."},
		{"footer with wrong shape", `The answer is 42. {"memory_ids": "m1"}`, `The answer is 42. {"memory_ids": "m1"}`},
		{"cites only unknown ids", "The answer is 42.\n" + footer([]string{"ghost"}, []string{"phantom"}), "The answer is 42."},
		{"empty footer", "The answer is 42.\n" + footer(nil, nil), "The answer is 42."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t, 0)
			f.gen.reply = func() string { return tt.reply }

			res, err := f.chat.SendTurn(context.Background(), testScope, f.conv.ID, deployQuestion)
			require.NoError(t, err)

			assert.Equal(t, tt.wantText, res.Text)
			assert.Equal(t, CitationFallback, res.CitationMode)
			assert.Equal(t, []string{f.memID}, res.MemoryIDs)
			assert.Equal(t, []string{f.chunkID}, res.ChunkIDs)

			memRefs, chunkRefs, err := f.store.MessageRefs(context.Background(), res.MessageID)
			require.NoError(t, err)
			assert.Len(t, memRefs, 1)
			assert.Len(t, chunkRefs, 1)
		})
	}
}

func TestSendTurnGenerationFailureKeepsOnlyUserMessage(t *testing.T) {
	f := newChatFixture(t, 0)
	f.gen.err = fmt.Errorf("%w: upstream 500", llm.ErrGenerationFailed)

	res, err := f.chat.SendTurn(context.Background(), testScope, f.conv.ID, deployQuestion)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, llm.ErrGenerationFailed)

	msgs := f.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
}

func TestStreamTurnInterruptedIsTurnFailure(t *testing.T) {
	f := newChatFixture(t, 0)
	f.gen.err = fmt.Errorf("%w: connection reset", llm.ErrStreamInterrupted)

	_, err := f.chat.StreamTurn(context.Background(), testScope, f.conv.ID, deployQuestion, nil)
	assert.ErrorIs(t, err, llm.ErrStreamInterrupted)
	assert.Len(t, f.messages(t), 1)
}

func TestSendTurnRejectsBadInput(t *testing.T) {
	f := newChatFixture(t, 0)
	f.gen.reply = func() string { return "unused" }

	_, err := f.chat.SendTurn(context.Background(), testScope, f.conv.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.chat.SendTurn(context.Background(), testScope, "missing", deployQuestion)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.chat.SendTurn(context.Background(), models.Scope{OwnerID: "mallory"}, f.conv.ID, deployQuestion)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Empty(t, f.messages(t))
}

func TestStreamTurnForwardsTokens(t *testing.T) {
	f := newChatFixture(t, 0)
	full := "Deploys run on Tuesdays.\n" + footer(nil, []string{f.chunkID})
	f.gen.reply = func() string { return full }

	var tokens []string
	res, err := f.chat.StreamTurn(context.Background(), testScope, f.conv.ID, deployQuestion, func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})
	require.NoError(t, err)

	assert.Greater(t, len(tokens), 1)
	assert.Equal(t, full, strings.Join(tokens, ""))
	assert.Equal(t, "Deploys run on Tuesdays.", res.Text)
	assert.Equal(t, CitationExplicit, res.CitationMode)
	assert.Equal(t, []string{f.chunkID}, res.ChunkIDs)
}

func TestTurnSendsHistory(t *testing.T) {
	f := newChatFixture(t, 2)
	ctx := context.Background()

	f.gen.reply = func() string { return "On Tuesdays." }
	_, err := f.chat.SendTurn(ctx, testScope, f.conv.ID, deployQuestion)
	require.NoError(t, err)
	assert.Empty(t, f.gen.last.History)

	f.gen.reply = func() string { return "Yes, weekly." }
	_, err = f.chat.SendTurn(ctx, testScope, f.conv.ID, "Every week?")
	require.NoError(t, err)

	assert.Equal(t, []llm.Message{
		{Role: models.RoleUser, Content: deployQuestion},
		{Role: models.RoleAssistant, Content: "On Tuesdays."},
	}, f.gen.last.History)
	assert.Equal(t, "Every week?", f.gen.last.User)
}

func TestTurnMetrics(t *testing.T) {
	f := newChatFixture(t, 0)
	f.gen.reply = func() string { return "The answer is 42." }

	_, err := f.chat.SendTurn(context.Background(), testScope, f.conv.ID, deployQuestion)
	require.NoError(t, err)

	f.gen.err = errors.New("down")
	_, err = f.chat.SendTurn(context.Background(), testScope, f.conv.ID, deployQuestion)
	require.Error(t, err)

	snap := f.metrics.Snapshot()
	require.NotNil(t, snap.Turn)
	assert.Equal(t, int64(2), snap.Turn.Count)
}
