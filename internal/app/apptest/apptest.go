// Package apptest builds an App on a temporary SQLite store with scripted providers.
package apptest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/groundwork/internal/app"
	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/embedding"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/sources"
	"github.com/raphaelgruber/groundwork/internal/sqlitedb"
	"github.com/raphaelgruber/groundwork/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

// Owner is the default principal of the test config.
const Owner = "local"

// Generator replies with Reply(req), streamed word by word.
type Generator struct {
	mu       sync.Mutex
	Reply    func(req llm.Request) string
	Err      error
	requests []llm.Request
}

func (g *Generator) answer(req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.Err != nil {
		return "", g.Err
	}
	if g.Reply == nil {
		return "No grounded answer.", nil
	}
	return g.Reply(req), nil
}

func (g *Generator) Generate(_ context.Context, req llm.Request) (string, error) {
	return g.answer(req)
}

func (g *Generator) Stream(ctx context.Context, req llm.Request, onToken func(string) error) (string, error) {
	text, err := g.answer(req)
	if err != nil {
		return "", err
	}
	for _, tok := range strings.SplitAfter(text, " ") {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := onToken(tok); err != nil {
			return "", err
		}
	}
	return text, nil
}

// Requests returns every request the generator received.
func (g *Generator) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

// Embedder returns a deterministic 3-dimensional vector per text.
type Embedder struct{}

func (Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	return storetest.Vec(3, len(text)), nil
}

func (Embedder) Model() string  { return "fake" }
func (Embedder) Dimension() int { return 3 }

// Fetcher returns Text for every source.
type Fetcher struct {
	Text string
	Err  error
}

func (f *Fetcher) Fetch(context.Context, models.KnowledgeSource) (*sources.Document, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &sources.Document{Title: "doc", Text: f.Text, Metadata: map[string]any{}}, nil
}

// Options selects the providers. A false Embed runs without an embedding provider.
type Options struct {
	Embed bool
	Text  string
}

// Fixture is an App with direct access to its store and fakes.
type Fixture struct {
	App       *app.App
	Store     *sqlitedb.DB
	Generator *Generator
	Fetcher   *Fetcher
}

// Config returns the configuration used by New.
func Config() config.Config {
	return config.Config{
		Store:               config.StoreSQLite,
		EmbedDimension:      3,
		MemoryLimit:         8,
		ChunkLimit:          6,
		VectorSearchEnabled: true,
		SearchTimeout:       5 * time.Second,
		ChunkSize:           200,
		ChunkOverlap:        20,
		BackfillLimit:       100,
		HistoryTurns:        5,
		HistoryTokenBudget:  3000,
		Owner:               Owner,
		Concurrency:         2,
	}
}

// New builds a Fixture and closes it when the test ends.
func New(t *testing.T, opts Options) *Fixture {
	t.Helper()

	st, err := sqlitedb.Open(filepath.Join(t.TempDir(), "groundwork.db"))
	require.NoError(t, err)

	var embedder embedding.Embedder
	if opts.Embed {
		embedder = Embedder{}
	}
	gen := &Generator{}
	fetcher := &Fetcher{Text: opts.Text}

	a := app.NewWith(Config(), st, embedder, gen, fetcher, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})

	return &Fixture{App: a, Store: st, Generator: gen, Fetcher: fetcher}
}

// Scope is the principal of the test config.
func Scope() models.Scope {
	return models.Scope{OwnerID: Owner}
}
