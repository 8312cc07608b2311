package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/parser"
	"github.com/raphaelgruber/groundwork/internal/sources"
	"github.com/raphaelgruber/groundwork/internal/sqlitedb"
	"github.com/raphaelgruber/groundwork/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	text string
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, models.KnowledgeSource) (*sources.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sources.Document{Text: f.text}, nil
}

var testChunking = parser.ChunkConfig{Size: 200, Overlap: 20}

func ingestDoc() string {
	return strings.Repeat("Alpha beta gamma delta. Rollbacks need a ticket! ", 40)
}

func registerSource(t *testing.T, st *sqlitedb.DB) *models.KnowledgeSource {
	t.Helper()
	src, err := st.CreateSource(context.Background(), testScope, models.SourceInput{
		Type:    models.SourceTypeWikiPage,
		Name:    "Runbook",
		Locator: "https://wiki/runbook",
	})
	require.NoError(t, err)
	return src
}

func chunkContents(t *testing.T, st *sqlitedb.DB, sourceID string) ([]string, []string) {
	t.Helper()
	chunks, err := st.ListChunks(context.Background(), sourceID)
	require.NoError(t, err)
	contents := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
		ids[i] = c.ID
	}
	return contents, ids
}

func TestIngestReingestRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	src := registerSource(t, st)
	svc := NewIngestService(st, &fakeFetcher{text: ingestDoc()}, &fakeEmbedder{}, testChunking, metrics.New(), nil)

	want := parser.Chunk(ingestDoc(), testChunking)
	require.Greater(t, len(want), 3)

	res, err := svc.Ingest(ctx, testScope, src.ID)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{ChunksCreated: len(want)}, *res)

	first, firstIDs := chunkContents(t, st, src.ID)
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}

	res, err = svc.Ingest(ctx, testScope, src.ID)
	require.NoError(t, err)
	assert.Equal(t, len(want), res.ChunksCreated)

	second, secondIDs := chunkContents(t, st, src.ID)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-ingest changed chunks (-first +second):\n%s", diff)
	}
	assert.NotEqual(t, firstIDs, secondIDs, "chunk ids are regenerated")

	got, err := st.GetSource(ctx, testScope, src.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusReady, got.Status)
	assert.Equal(t, 2, got.Version)
	assert.NotNil(t, got.LastSyncedAt)
	assert.EqualValues(t, len(want), got.Metadata[models.MetaChunkCount])
	assert.EqualValues(t, 0, got.Metadata[models.MetaChunksFailed])
	assert.NotContains(t, got.Metadata, models.MetaLastError)
}

func TestIngestStoresUnembeddedChunks(t *testing.T) {
	tests := []struct {
		name     string
		embedder *fakeEmbedder
	}{
		{"provider down", &fakeEmbedder{err: errors.New("connection refused")}},
		{"no embedder", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := openStore(t)
			src := registerSource(t, st)

			var svc *IngestService
			if tt.embedder == nil {
				svc = NewIngestService(st, &fakeFetcher{text: ingestDoc()}, nil, testChunking, nil, nil)
			} else {
				svc = NewIngestService(st, &fakeFetcher{text: ingestDoc()}, tt.embedder, testChunking, nil, nil)
			}

			res, err := svc.Ingest(ctx, testScope, src.ID)
			require.NoError(t, err)
			assert.Positive(t, res.ChunksCreated)
			assert.Equal(t, res.ChunksCreated, res.ChunksUnembedded)

			got, err := st.GetSource(ctx, testScope, src.ID)
			require.NoError(t, err)
			assert.Equal(t, models.SourceStatusReady, got.Status)
			assert.EqualValues(t, res.ChunksCreated, got.Metadata[models.MetaChunksUnembedded])

			pending, err := st.ChunksWithoutEmbedding(ctx, testScope, 1000)
			require.NoError(t, err)
			assert.Len(t, pending, res.ChunksCreated)
		})
	}
}

func TestIngestFetchFailureMarksError(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	src := registerSource(t, st)
	svc := NewIngestService(st, &fakeFetcher{err: errors.New("wiki returned 503")}, &fakeEmbedder{}, testChunking, nil, nil)

	res, err := svc.Ingest(ctx, testScope, src.ID)
	require.Error(t, err)
	assert.Equal(t, 0, res.ChunksCreated)

	got, err := st.GetSource(ctx, testScope, src.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusError, got.Status)
	assert.Contains(t, got.Metadata[models.MetaLastError], "wiki returned 503")
}

func TestIngestErrorSourceIsNotRetrievable(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	src := registerSource(t, st)

	svc := NewIngestService(st, &fakeFetcher{text: ingestDoc()}, nil, testChunking, nil, nil)
	_, err := svc.Ingest(ctx, testScope, src.ID)
	require.NoError(t, err)

	hits, err := st.SearchChunksByKeyword(ctx, testScope, []string{"rollbacks"}, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	svc = NewIngestService(st, &fakeFetcher{err: errors.New("gone")}, nil, testChunking, nil, nil)
	_, err = svc.Ingest(ctx, testScope, src.ID)
	require.Error(t, err)

	hits, err = st.SearchChunksByKeyword(ctx, testScope, []string{"rollbacks"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIngestUnknownSource(t *testing.T) {
	st := openStore(t)
	svc := NewIngestService(st, &fakeFetcher{text: "x"}, nil, testChunking, nil, nil)

	_, err := svc.Ingest(context.Background(), testScope, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Ingest(context.Background(), models.Scope{}, "nope")
	assert.ErrorIs(t, err, models.ErrNoOwner)
}

func TestIngestReportsProgress(t *testing.T) {
	st := openStore(t)
	src := registerSource(t, st)
	svc := NewIngestService(st, &fakeFetcher{text: ingestDoc()}, &fakeEmbedder{}, testChunking, nil, nil)

	var last, total int
	res, err := svc.IngestWithProgress(context.Background(), testScope, src.ID, func(done, n int) {
		last, total = done, n
	})
	require.NoError(t, err)
	assert.Equal(t, res.ChunksCreated, last)
	assert.Equal(t, res.ChunksCreated, total)
}
