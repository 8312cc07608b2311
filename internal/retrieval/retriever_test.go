package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var scope = models.Scope{OwnerID: "alice"}

type fakeSearcher struct {
	mu       sync.Mutex
	keywords []string

	memVector  func() ([]models.MemoryHit, error)
	memKeyword func() ([]models.MemoryHit, error)
	chkVector  func() ([]models.ChunkHit, error)
	chkKeyword func() ([]models.ChunkHit, error)

	vectorCalls int
}

func (f *fakeSearcher) SearchMemoriesByVector(context.Context, models.Scope, []float32, int) ([]models.MemoryHit, error) {
	f.mu.Lock()
	f.vectorCalls++
	f.mu.Unlock()
	if f.memVector == nil {
		return nil, nil
	}
	return f.memVector()
}

func (f *fakeSearcher) SearchMemoriesByKeyword(_ context.Context, _ models.Scope, kw []string, _ int) ([]models.MemoryHit, error) {
	f.mu.Lock()
	f.keywords = kw
	f.mu.Unlock()
	if f.memKeyword == nil {
		return nil, nil
	}
	return f.memKeyword()
}

func (f *fakeSearcher) SearchChunksByVector(context.Context, models.Scope, []float32, int) ([]models.ChunkHit, error) {
	f.mu.Lock()
	f.vectorCalls++
	f.mu.Unlock()
	if f.chkVector == nil {
		return nil, nil
	}
	return f.chkVector()
}

func (f *fakeSearcher) SearchChunksByKeyword(context.Context, models.Scope, []string, int) ([]models.ChunkHit, error) {
	if f.chkKeyword == nil {
		return nil, nil
	}
	return f.chkKeyword()
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func memHits(ids ...string) []models.MemoryHit {
	out := make([]models.MemoryHit, len(ids))
	for i, id := range ids {
		out[i] = models.MemoryHit{Memory: models.Memory{ID: id}, Score: models.Float64Ptr(0.9)}
	}
	return out
}

func chunkHits(ids ...string) []models.ChunkHit {
	out := make([]models.ChunkHit, len(ids))
	for i, id := range ids {
		out[i] = models.ChunkHit{Chunk: models.KnowledgeChunk{ID: id}}
	}
	return out
}

var errBackend = errors.New("backend down")

func TestRetrieveTiers(t *testing.T) {
	tests := []struct {
		name        string
		embedder    QueryEmbedder
		vectorOff   bool
		searcher    *fakeSearcher
		wantMemTier models.Tier
		wantChkTier models.Tier
		wantMemIDs  []string
		wantVector  int
	}{
		{
			name:     "vector serves both stores",
			embedder: fakeEmbedder{vec: []float32{1, 0}},
			searcher: &fakeSearcher{
				memVector: func() ([]models.MemoryHit, error) { return memHits("m1"), nil },
				chkVector: func() ([]models.ChunkHit, error) { return chunkHits("c1"), nil },
			},
			wantMemTier: models.TierVector,
			wantChkTier: models.TierVector,
			wantMemIDs:  []string{"m1"},
			wantVector:  2,
		},
		{
			name:     "vector backend error falls back to keyword",
			embedder: fakeEmbedder{vec: []float32{1, 0}},
			searcher: &fakeSearcher{
				memVector:  func() ([]models.MemoryHit, error) { return nil, errBackend },
				memKeyword: func() ([]models.MemoryHit, error) { return []models.MemoryHit{{Memory: models.Memory{ID: "k1"}}}, nil },
				chkVector:  func() ([]models.ChunkHit, error) { return nil, errBackend },
				chkKeyword: func() ([]models.ChunkHit, error) { return chunkHits("c9"), nil },
			},
			wantMemTier: models.TierKeyword,
			wantChkTier: models.TierKeyword,
			wantMemIDs:  []string{"k1"},
			wantVector:  2,
		},
		{
			name:     "empty vector result falls back to keyword",
			embedder: fakeEmbedder{vec: []float32{1, 0}},
			searcher: &fakeSearcher{
				memKeyword: func() ([]models.MemoryHit, error) { return []models.MemoryHit{{Memory: models.Memory{ID: "k1"}}}, nil },
			},
			wantMemTier: models.TierKeyword,
			wantChkTier: models.TierNone,
			wantMemIDs:  []string{"k1"},
			wantVector:  2,
		},
		{
			name:     "embedding failure skips vector tier",
			embedder: fakeEmbedder{err: errBackend},
			searcher: &fakeSearcher{
				memKeyword: func() ([]models.MemoryHit, error) { return []models.MemoryHit{{Memory: models.Memory{ID: "k1"}}}, nil },
			},
			wantMemTier: models.TierKeyword,
			wantChkTier: models.TierNone,
			wantMemIDs:  []string{"k1"},
			wantVector:  0,
		},
		{
			name:      "vector search disabled",
			embedder:  fakeEmbedder{vec: []float32{1, 0}},
			vectorOff: true,
			searcher:  &fakeSearcher{
				memVector: func() ([]models.MemoryHit, error) { return memHits("never"), nil },
			},
			wantMemTier: models.TierNone,
			wantChkTier: models.TierNone,
			wantVector:  0,
		},
		{
			name:        "nil embedder",
			searcher:    &fakeSearcher{},
			wantMemTier: models.TierNone,
			wantChkTier: models.TierNone,
			wantVector:  0,
		},
		{
			name:     "keyword failure after empty vector is not an error",
			embedder: fakeEmbedder{vec: []float32{1, 0}},
			searcher: &fakeSearcher{
				memKeyword: func() ([]models.MemoryHit, error) { return nil, errBackend },
			},
			wantMemTier: models.TierNone,
			wantChkTier: models.TierNone,
			wantVector:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.VectorEnabled = !tt.vectorOff
			m := metrics.New()
			r := New(tt.searcher, tt.embedder, opts, m, nil)

			res, err := r.Retrieve(context.Background(), scope, "how do we deploy kafka")
			require.NoError(t, err)

			assert.Equal(t, tt.wantMemTier, res.MemoryTier)
			assert.Equal(t, tt.wantChkTier, res.ChunkTier)
			var ids []string
			for _, h := range res.Memories {
				ids = append(ids, h.Memory.ID)
			}
			assert.Equal(t, tt.wantMemIDs, ids)
			assert.Equal(t, tt.wantVector, tt.searcher.vectorCalls)

			tiers := m.Snapshot().Tiers
			assert.Equal(t, int64(1), tiers[StoreMemory+"/"+string(tt.wantMemTier)])
			assert.Equal(t, int64(1), tiers[StoreKnowledge+"/"+string(tt.wantChkTier)])
		})
	}
}

func TestRetrieveKeywordHitsHaveNoScore(t *testing.T) {
	s := &fakeSearcher{
		memVector:  func() ([]models.MemoryHit, error) { return nil, errBackend },
		memKeyword: func() ([]models.MemoryHit, error) { return []models.MemoryHit{{Memory: models.Memory{ID: "k"}}}, nil },
	}
	r := New(s, fakeEmbedder{vec: []float32{1}}, DefaultOptions(), nil, nil)

	res, err := r.Retrieve(context.Background(), scope, "deploy")
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Nil(t, res.Memories[0].Score)
	assert.Equal(t, []string{"deploy"}, s.keywords)
}

func TestRetrieveFailsOnlyWhenBothTiersFail(t *testing.T) {
	s := &fakeSearcher{
		memVector:  func() ([]models.MemoryHit, error) { return nil, errBackend },
		memKeyword: func() ([]models.MemoryHit, error) { return nil, errBackend },
		chkVector:  func() ([]models.ChunkHit, error) { return chunkHits("c1"), nil },
	}
	r := New(s, fakeEmbedder{vec: []float32{1}}, DefaultOptions(), nil, nil)

	_, err := r.Retrieve(context.Background(), scope, "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackend)
	assert.Contains(t, err.Error(), "search memory")
}

func TestRetrieveKeywordOnlyFailureWithoutEmbedding(t *testing.T) {
	s := &fakeSearcher{
		chkKeyword: func() ([]models.ChunkHit, error) { return nil, errBackend },
	}
	r := New(s, nil, DefaultOptions(), nil, nil)

	_, err := r.Retrieve(context.Background(), scope, "anything")
	assert.ErrorIs(t, err, errBackend)
}

func TestRetrieveRequiresOwner(t *testing.T) {
	r := New(&fakeSearcher{}, nil, DefaultOptions(), nil, nil)
	_, err := r.Retrieve(context.Background(), models.Scope{}, "q")
	assert.ErrorIs(t, err, models.ErrNoOwner)
}

func TestRetrieveVisibilityAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "r.db"))
	require.NoError(t, err)
	defer db.Close(ctx)

	visible, err := db.CreateMemory(ctx, scope, models.MemoryInput{Type: models.MemoryTypeFact, Content: "the kafka cluster lives in eu-west"})
	require.NoError(t, err)
	rejected, err := db.CreateMemory(ctx, scope, models.MemoryInput{Type: models.MemoryTypeFact, Content: "kafka was retired"})
	require.NoError(t, err)
	inactive, err := db.CreateMemory(ctx, scope, models.MemoryInput{Type: models.MemoryTypeFact, Content: "kafka v2 notes"})
	require.NoError(t, err)
	require.NoError(t, db.SetMemoryStatus(ctx, scope, rejected.ID, models.MemoryStatusRejected))
	require.NoError(t, db.SetMemoryActive(ctx, scope, inactive.ID, false))

	for i, m := range []*models.Memory{visible, rejected, inactive} {
		require.NoError(t, db.SetMemoryEmbedding(ctx, m.ID, []float32{1, float32(i)}))
	}

	ready, err := db.CreateSource(ctx, scope, models.SourceInput{Type: models.SourceTypeWikiPage, Name: "ops", Locator: "https://wiki/ops"})
	require.NoError(t, err)
	pending, err := db.CreateSource(ctx, scope, models.SourceInput{Type: models.SourceTypeWikiPage, Name: "draft", Locator: "https://wiki/draft"})
	require.NoError(t, err)
	require.NoError(t, db.SetSourceStatus(ctx, ready.ID, models.SourceStatusReady))
	readyChunk, err := db.InsertChunk(ctx, models.ChunkInput{SourceID: ready.ID, Content: "kafka runbook", Embedding: []float32{1, 0}})
	require.NoError(t, err)
	_, err = db.InsertChunk(ctx, models.ChunkInput{SourceID: pending.ID, Content: "kafka draft", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	for _, emb := range []QueryEmbedder{fakeEmbedder{vec: []float32{1, 0}}, nil} {
		r := New(db, emb, DefaultOptions(), nil, nil)
		res, err := r.Retrieve(ctx, scope, "kafka")
		require.NoError(t, err)

		require.Len(t, res.Memories, 1)
		assert.Equal(t, visible.ID, res.Memories[0].Memory.ID)
		require.Len(t, res.Chunks, 1)
		assert.Equal(t, readyChunk.ID, res.Chunks[0].Chunk.ID)
		assert.Equal(t, "ops", res.Chunks[0].SourceName)
	}
}

func TestResultTiers(t *testing.T) {
	r := &Result{MemoryTier: models.TierVector, ChunkTier: models.TierNone}
	assert.Equal(t, map[string]models.Tier{StoreMemory: models.TierVector, StoreKnowledge: models.TierNone}, r.Tiers())
}
