package cli

import (
	"context"
	"errors"
	"time"

	"github.com/raphaelgruber/groundwork/internal/app"
	"github.com/raphaelgruber/groundwork/internal/client"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/service"
)

// errServerOnly is returned by commands that inspect server state.
var errServerOnly = errors.New("this command needs a server: set --server or GROUNDWORK_SERVER_URL")

// Backend runs commands either in process or against a server.
type Backend interface {
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	History(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	StreamTurn(ctx context.Context, conversationID, text string, onToken func(string) error) (*service.TurnResult, error)
	Search(ctx context.Context, query string) (*service.ContextResult, error)

	RegisterSource(ctx context.Context, in models.SourceInput) (*models.KnowledgeSource, error)
	ListSources(ctx context.Context) ([]models.KnowledgeSource, error)
	GetSource(ctx context.Context, id string) (*models.KnowledgeSource, error)
	Ingest(ctx context.Context, sourceID string, onProgress func(done, total int)) (*service.IngestResult, error)
	Backfill(ctx context.Context, limit int, onProgress func(done, total int)) (*service.BackfillResult, error)

	CreateMemory(ctx context.Context, in models.MemoryInput) (*models.Memory, error)
	GetMemory(ctx context.Context, id string) (*models.Memory, error)
	ReviewMemory(ctx context.Context, id string, approve bool) error
	SetMemoryActive(ctx context.Context, id string, active bool) error

	Stats(ctx context.Context) (*metrics.Snapshot, error)
	Close() error
}

// localBackend runs every command against an in-process App.
type localBackend struct {
	app   *app.App
	scope models.Scope
}

func newLocalBackend(a *app.App, scope models.Scope) *localBackend {
	return &localBackend{app: a, scope: scope}
}

func (b *localBackend) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	return b.app.Conversations.Create(ctx, b.scope, title)
}

func (b *localBackend) History(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	return b.app.Conversations.History(ctx, b.scope, conversationID, limit)
}

func (b *localBackend) StreamTurn(ctx context.Context, conversationID, text string, onToken func(string) error) (*service.TurnResult, error) {
	return b.app.Chat.StreamTurn(ctx, b.scope, conversationID, text, onToken)
}

func (b *localBackend) Search(ctx context.Context, query string) (*service.ContextResult, error) {
	return b.app.Search.Search(ctx, b.scope, query)
}

func (b *localBackend) RegisterSource(ctx context.Context, in models.SourceInput) (*models.KnowledgeSource, error) {
	return b.app.Sources.Register(ctx, b.scope, in)
}

func (b *localBackend) ListSources(ctx context.Context) ([]models.KnowledgeSource, error) {
	return b.app.Sources.List(ctx, b.scope)
}

func (b *localBackend) GetSource(ctx context.Context, id string) (*models.KnowledgeSource, error) {
	return b.app.Sources.Get(ctx, b.scope, id)
}

func (b *localBackend) Ingest(ctx context.Context, sourceID string, onProgress func(done, total int)) (*service.IngestResult, error) {
	return b.app.Ingest.IngestWithProgress(ctx, b.scope, sourceID, onProgress)
}

func (b *localBackend) Backfill(ctx context.Context, limit int, onProgress func(done, total int)) (*service.BackfillResult, error) {
	if limit <= 0 {
		limit = b.app.Config.BackfillLimit
	}
	res, err := b.app.Backfill.Run(ctx, service.BackfillOptions{Scope: b.scope, Limit: limit, OnProgress: onProgress})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *localBackend) CreateMemory(ctx context.Context, in models.MemoryInput) (*models.Memory, error) {
	mem, err := b.app.Memories.Create(ctx, b.scope, in)
	if err != nil {
		return nil, err
	}
	// The embedding job would die with the process.
	b.app.Jobs.Wait()
	return mem, nil
}

func (b *localBackend) GetMemory(ctx context.Context, id string) (*models.Memory, error) {
	return b.app.Memories.Get(ctx, b.scope, id)
}

func (b *localBackend) ReviewMemory(ctx context.Context, id string, approve bool) error {
	return b.app.Memories.Review(ctx, b.scope, id, approve)
}

func (b *localBackend) SetMemoryActive(ctx context.Context, id string, active bool) error {
	return b.app.Memories.SetActive(ctx, b.scope, id, active)
}

func (b *localBackend) Stats(context.Context) (*metrics.Snapshot, error) {
	snap := b.app.Metrics.Snapshot()
	return &snap, nil
}

func (b *localBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.app.Close(ctx)
}

// remoteBackend forwards every command to a server.
type remoteBackend struct {
	*client.Client
}

func (remoteBackend) Close() error { return nil }
