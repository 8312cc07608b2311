package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/sqlitedb"
	"github.com/raphaelgruber/groundwork/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

var testScope = models.Scope{OwnerID: "alice"}

func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func openStore(t *testing.T) *sqlitedb.DB {
	t.Helper()
	st, err := sqlitedb.Open(filepath.Join(t.TempDir(), "groundwork.db"), sqlitedb.WithClock(tickingClock()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close(context.Background()) })
	return st
}

// fakeEmbedder returns a 3-dimensional vector per text. Texts containing failOn fail.
type fakeEmbedder struct {
	mu     sync.Mutex
	texts  []string
	failOn string
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("provider unavailable")
	}
	return storetest.Vec(3, len(text)), nil
}

func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// readySource registers a source, stores the given chunks and marks it ready.
func readySource(t *testing.T, st *sqlitedb.DB, name string, chunks ...string) (*models.KnowledgeSource, []string) {
	t.Helper()
	ctx := context.Background()

	src, err := st.CreateSource(ctx, testScope, models.SourceInput{Type: models.SourceTypeWikiPage, Name: name, Locator: "https://wiki/" + name})
	require.NoError(t, err)

	ids := make([]string, len(chunks))
	for i, content := range chunks {
		c, err := st.InsertChunk(ctx, models.ChunkInput{SourceID: src.ID, Index: i, Content: content})
		require.NoError(t, err)
		ids[i] = c.ID
	}
	require.NoError(t, st.FinishSourceSync(ctx, src.ID, models.SourceSync{Status: models.SourceStatusReady, SyncedAt: time.Now()}))
	return src, ids
}
