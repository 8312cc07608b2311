// Package storetest holds a conformance suite every store.Store implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) store.Store

var (
	alice     = models.Scope{OwnerID: "alice"}
	aliceProj = models.Scope{OwnerID: "alice", ProjectID: "apollo"}
	bob       = models.Scope{OwnerID: "bob"}
)

// Vec returns a dim-length unit vector pointing along axis hot, blended slightly toward axis 0
// so every pair has a defined cosine.
func Vec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[0] = 0.1
	v[hot%dim] = 1
	return v
}

// Run executes the suite. dim is the embedding dimension the store was created with.
func Run(t *testing.T, dim int, open Opener) {
	t.Run("MemoryLifecycle", func(t *testing.T) { testMemoryLifecycle(t, open(t)) })
	t.Run("MemoryUpdateClearsEmbedding", func(t *testing.T) { testMemoryUpdate(t, dim, open(t)) })
	t.Run("MemoryVectorVisibility", func(t *testing.T) { testMemoryVectorVisibility(t, dim, open(t)) })
	t.Run("MemoryKeywordOrder", func(t *testing.T) { testMemoryKeywordOrder(t, open(t)) })
	t.Run("MemoryProjectScope", func(t *testing.T) { testMemoryProjectScope(t, open(t)) })
	t.Run("MemoriesWithoutEmbedding", func(t *testing.T) { testMemoriesWithoutEmbedding(t, dim, open(t)) })
	t.Run("SourceSync", func(t *testing.T) { testSourceSync(t, open(t)) })
	t.Run("ChunkVisibility", func(t *testing.T) { testChunkVisibility(t, dim, open(t)) })
	t.Run("ChunksWithoutEmbedding", func(t *testing.T) { testChunksWithoutEmbedding(t, dim, open(t)) })
	t.Run("Conversation", func(t *testing.T) { testConversation(t, open(t)) })
	t.Run("Refs", func(t *testing.T) { testRefs(t, open(t)) })
}

func newMemory(t *testing.T, s store.Store, scope models.Scope, title, content string, confidence float64, pinned bool) *models.Memory {
	t.Helper()
	m, err := s.CreateMemory(context.Background(), scope, models.MemoryInput{
		Type:       models.MemoryTypeFact,
		Title:      title,
		Content:    content,
		Confidence: confidence,
		Pinned:     pinned,
	})
	require.NoError(t, err)
	return m
}

func memoryIDs(hits []models.MemoryHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Memory.ID
	}
	return ids
}

func chunkIDs(hits []models.ChunkHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Chunk.ID
	}
	return ids
}

func testMemoryLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := newMemory(t, s, alice, "Coffee", "Alice drinks oat milk flat whites", 0.8, true)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, models.MemoryStatusCandidate, m.Status)
	assert.True(t, m.Active)
	assert.True(t, m.Pinned)
	assert.Empty(t, m.Embedding)

	_, err := s.GetMemory(ctx, bob, m.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SetMemoryStatus(ctx, alice, m.ID, models.MemoryStatusApproved))
	require.NoError(t, s.SetMemoryActive(ctx, alice, m.ID, false))
	got, err := s.GetMemory(ctx, alice, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MemoryStatusApproved, got.Status)
	assert.False(t, got.Active)

	assert.ErrorIs(t, s.SetMemoryStatus(ctx, bob, m.ID, models.MemoryStatusRejected), store.ErrNotFound)
}

func testMemoryUpdate(t *testing.T, dim int, s store.Store) {
	ctx := context.Background()
	m := newMemory(t, s, alice, "Editor", "Uses vim", 0.5, false)
	require.NoError(t, s.SetMemoryEmbedding(ctx, m.ID, Vec(dim, 1)))

	conf := 0.9
	got, err := s.UpdateMemory(ctx, alice, m.ID, models.MemoryUpdate{Confidence: &conf})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.Len(t, got.Embedding, dim, "confidence change keeps the embedding")

	content := "Uses helix"
	got, err = s.UpdateMemory(ctx, alice, m.ID, models.MemoryUpdate{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "Uses helix", got.Content)
	assert.Empty(t, got.Embedding, "content change clears the embedding")
}

func testMemoryVectorVisibility(t *testing.T, dim int, s store.Store) {
	ctx := context.Background()
	visible := newMemory(t, s, alice, "Visible", "active candidate", 0.5, false)
	approved := newMemory(t, s, alice, "Approved", "active approved", 0.5, false)
	inactive := newMemory(t, s, alice, "Inactive", "inactive", 0.5, false)
	rejected := newMemory(t, s, alice, "Rejected", "rejected", 0.5, false)
	other := newMemory(t, s, bob, "Other", "other owner", 0.5, false)

	for i, m := range []*models.Memory{visible, approved, inactive, rejected, other} {
		require.NoError(t, s.SetMemoryEmbedding(ctx, m.ID, Vec(dim, i+1)))
	}
	require.NoError(t, s.SetMemoryStatus(ctx, alice, approved.ID, models.MemoryStatusApproved))
	require.NoError(t, s.SetMemoryActive(ctx, alice, inactive.ID, false))
	require.NoError(t, s.SetMemoryStatus(ctx, alice, rejected.ID, models.MemoryStatusRejected))

	hits, err := s.SearchMemoriesByVector(ctx, alice, Vec(dim, 1), 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{visible.ID, approved.ID}, memoryIDs(hits))
	require.NotEmpty(t, hits)
	assert.Equal(t, visible.ID, hits[0].Memory.ID, "closest vector ranks first")
	for _, h := range hits {
		require.NotNil(t, h.Score)
	}
	if len(hits) == 2 {
		assert.GreaterOrEqual(t, *hits[0].Score, *hits[1].Score)
	}

	limited, err := s.SearchMemoriesByVector(ctx, alice, Vec(dim, 1), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testMemoryKeywordOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	low := newMemory(t, s, alice, "Deploy notes", "deploy with care", 0.2, false)
	time.Sleep(2 * time.Millisecond)
	highOld := newMemory(t, s, alice, "Deploy", "the deploy pipeline", 0.9, false)
	time.Sleep(2 * time.Millisecond)
	highNew := newMemory(t, s, alice, "Rollout", "DEPLOY on fridays is fine", 0.9, false)
	time.Sleep(2 * time.Millisecond)
	pinned := newMemory(t, s, alice, "Pinned", "never deploy without review", 0.1, true)
	rejected := newMemory(t, s, alice, "Rejected", "deploy rejected", 1, true)
	unrelated := newMemory(t, s, alice, "Lunch", "sushi", 1, true)
	require.NoError(t, s.SetMemoryStatus(ctx, alice, rejected.ID, models.MemoryStatusRejected))

	hits, err := s.SearchMemoriesByKeyword(ctx, alice, []string{"deploy"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{pinned.ID, highNew.ID, highOld.ID, low.ID}, memoryIDs(hits))
	for _, h := range hits {
		assert.Nil(t, h.Score, "keyword tier carries no score")
	}
	assert.NotContains(t, memoryIDs(hits), unrelated.ID)

	byTitle, err := s.SearchMemoriesByKeyword(ctx, alice, []string{"rollout"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{highNew.ID}, memoryIDs(byTitle))

	none, err := s.SearchMemoriesByKeyword(ctx, alice, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	umlaut := newMemory(t, s, alice, "ÜBERSICHT", "Quartalsplanung", 0.5, false)
	folded, err := s.SearchMemoriesByKeyword(ctx, alice, store.Keywords("übersicht"), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{umlaut.ID}, memoryIDs(folded))
}

func testMemoryProjectScope(t *testing.T, s store.Store) {
	ctx := context.Background()
	inProject := newMemory(t, s, aliceProj, "Apollo", "apollo launch date", 0.5, false)
	global := newMemory(t, s, alice, "Global", "launch checklist", 0.5, false)

	all, err := s.SearchMemoriesByKeyword(ctx, alice, []string{"launch"}, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{inProject.ID, global.ID}, memoryIDs(all))

	scoped, err := s.SearchMemoriesByKeyword(ctx, aliceProj, []string{"launch"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{inProject.ID}, memoryIDs(scoped))
}

func testMemoriesWithoutEmbedding(t *testing.T, dim int, s store.Store) {
	ctx := context.Background()
	first := newMemory(t, s, alice, "First", "one", 0.5, false)
	time.Sleep(2 * time.Millisecond)
	second := newMemory(t, s, alice, "Second", "two", 0.5, false)
	time.Sleep(2 * time.Millisecond)
	third := newMemory(t, s, alice, "Third", "three", 0.5, false)
	newMemory(t, s, bob, "Bob", "not mine", 0.5, false)
	require.NoError(t, s.SetMemoryEmbedding(ctx, second.ID, Vec(dim, 2)))

	got, err := s.MemoriesWithoutEmbedding(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, third.ID, got[1].ID)
	assert.Equal(t, models.CandidateMemory, got[0].Kind)
	assert.Equal(t, "First\none", got[0].Text)

	capped, err := s.MemoriesWithoutEmbedding(ctx, alice, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func newSource(t *testing.T, s store.Store, scope models.Scope, name string) *models.KnowledgeSource {
	t.Helper()
	src, err := s.CreateSource(context.Background(), scope, models.SourceInput{
		Type:    models.SourceTypeWikiPage,
		Name:    name,
		Locator: "https://wiki.example.com/" + name,
	})
	require.NoError(t, err)
	return src
}

func newChunk(t *testing.T, s store.Store, sourceID string, index int, content string, emb []float32) *models.KnowledgeChunk {
	t.Helper()
	c, err := s.InsertChunk(context.Background(), models.ChunkInput{
		SourceID:  sourceID,
		Index:     index,
		Content:   content,
		Embedding: emb,
	})
	require.NoError(t, err)
	return c
}

func testSourceSync(t *testing.T, s store.Store) {
	ctx := context.Background()
	src := newSource(t, s, alice, "runbook")
	assert.Equal(t, models.SourceStatusPending, src.Status)
	assert.Equal(t, 0, src.Version)
	assert.Nil(t, src.LastSyncedAt)

	_, err := s.GetSource(ctx, bob, src.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SetSourceStatus(ctx, src.ID, models.SourceStatusProcessing))
	require.NoError(t, s.FinishSourceSync(ctx, src.ID, models.SourceSync{
		Status:   models.SourceStatusReady,
		Metadata: map[string]any{models.MetaChunkCount: 3, models.MetaLastError: "chunk 2: boom"},
		SyncedAt: time.Now(),
	}))

	got, err := s.GetSource(ctx, alice, src.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusReady, got.Status)
	assert.Equal(t, 1, got.Version)
	assert.NotNil(t, got.LastSyncedAt)
	assert.EqualValues(t, 3, got.Metadata[models.MetaChunkCount])
	assert.Equal(t, "chunk 2: boom", got.Metadata[models.MetaLastError])

	list, err := s.ListSources(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, s.SetSourceStatus(ctx, "missing", models.SourceStatusReady), store.ErrNotFound)
}

func testChunkVisibility(t *testing.T, dim int, s store.Store) {
	ctx := context.Background()
	ready := newSource(t, s, alice, "ready")
	processing := newSource(t, s, alice, "processing")
	failed := newSource(t, s, alice, "failed")
	foreign := newSource(t, s, bob, "foreign")

	require.NoError(t, s.SetSourceStatus(ctx, ready.ID, models.SourceStatusReady))
	require.NoError(t, s.SetSourceStatus(ctx, processing.ID, models.SourceStatusProcessing))
	require.NoError(t, s.SetSourceStatus(ctx, failed.ID, models.SourceStatusError))
	require.NoError(t, s.SetSourceStatus(ctx, foreign.ID, models.SourceStatusReady))

	r0 := newChunk(t, s, ready.ID, 0, "kafka retention is seven days", Vec(dim, 1))
	r1 := newChunk(t, s, ready.ID, 1, "kafka partitions scale consumers", Vec(dim, 2))
	newChunk(t, s, processing.ID, 0, "kafka during resync", Vec(dim, 1))
	newChunk(t, s, failed.ID, 0, "kafka from failed source", Vec(dim, 1))
	newChunk(t, s, foreign.ID, 0, "kafka owned by bob", Vec(dim, 1))

	vec, err := s.SearchChunksByVector(ctx, alice, Vec(dim, 1), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{r0.ID, r1.ID}, chunkIDs(vec))
	assert.Equal(t, "ready", vec[0].SourceName)
	require.NotNil(t, vec[0].Score)

	kw, err := s.SearchChunksByKeyword(ctx, alice, []string{"KAFKA"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{r0.ID, r1.ID}, chunkIDs(kw))
	assert.Nil(t, kw[0].Score)

	listed, err := s.ListChunks(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r0.ID, r1.ID}, []string{listed[0].ID, listed[1].ID})

	n, err := s.DeleteChunks(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	after, err := s.SearchChunksByKeyword(ctx, alice, []string{"kafka"}, 10)
	require.NoError(t, err)
	assert.Empty(t, after)
}

func testChunksWithoutEmbedding(t *testing.T, dim int, s store.Store) {
	ctx := context.Background()
	src := newSource(t, s, alice, "doc")
	first := newChunk(t, s, src.ID, 0, "first", nil)
	time.Sleep(2 * time.Millisecond)
	newChunk(t, s, src.ID, 1, "second", Vec(dim, 1))
	time.Sleep(2 * time.Millisecond)
	third := newChunk(t, s, src.ID, 2, "third", nil)

	got, err := s.ChunksWithoutEmbedding(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, third.ID, got[1].ID)
	assert.Equal(t, models.CandidateChunk, got[0].Kind)

	require.NoError(t, s.SetChunkEmbedding(ctx, first.ID, Vec(dim, 3)))
	got, err = s.ChunksWithoutEmbedding(ctx, alice, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	none, err := s.ChunksWithoutEmbedding(ctx, bob, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testConversation(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, alice, "planning")
	require.NoError(t, err)

	_, err = s.GetConversation(ctx, bob, conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := s.AddMessage(ctx, conv.ID, models.RoleUser, text)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	recent, err := s.RecentMessages(ctx, conv.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"two", "three", "four"}, []string{recent[0].Content, recent[1].Content, recent[2].Content})
}

func testRefs(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, alice, "")
	require.NoError(t, err)
	msg, err := s.AddMessage(ctx, conv.ID, models.RoleAssistant, "answer")
	require.NoError(t, err)

	require.NoError(t, s.AddMemoryRefs(ctx, []models.MemoryRef{
		{MessageID: msg.ID, MemoryID: "m1", Score: models.Float64Ptr(0.75)},
		{MessageID: msg.ID, MemoryID: "m2"},
	}))
	require.NoError(t, s.AddKnowledgeRefs(ctx, []models.KnowledgeRef{
		{MessageID: msg.ID, ChunkID: "c1", Score: models.Float64Ptr(0.5)},
	}))
	require.NoError(t, s.AddKnowledgeRefs(ctx, nil))

	mem, chunks, err := s.MessageRefs(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, mem, 2)
	require.Len(t, chunks, 1)
	assert.ElementsMatch(t, []string{"m1", "m2"}, []string{mem[0].MemoryID, mem[1].MemoryID})
	for _, r := range mem {
		if r.MemoryID == "m1" {
			require.NotNil(t, r.Score)
			assert.InDelta(t, 0.75, *r.Score, 1e-9)
		} else {
			assert.Nil(t, r.Score)
		}
	}
	assert.Equal(t, "c1", chunks[0].ChunkID)

	err = s.AddMemoryRefs(ctx, []models.MemoryRef{{MessageID: "no-such-message", MemoryID: "m1"}})
	assert.Error(t, err, "links require an existing message")
}
