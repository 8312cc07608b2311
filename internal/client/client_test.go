package client_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/groundwork/internal/api"
	"github.com/raphaelgruber/groundwork/internal/app/apptest"
	"github.com/raphaelgruber/groundwork/internal/client"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, opts apptest.Options, scope models.Scope) (*apptest.Fixture, *client.Client) {
	t.Helper()
	fx := apptest.New(t, opts)
	srv := httptest.NewServer(api.New(fx.App).Handler())
	t.Cleanup(srv.Close)
	return fx, client.New(srv.URL, scope, client.WithPollInterval(10*time.Millisecond))
}

func TestStreamTurn(t *testing.T) {
	fx, c := newClient(t, apptest.Options{}, models.Scope{})
	fx.Generator.Reply = func(llm.Request) string { return "Deploys run on Tuesdays." }
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, "deploys")
	require.NoError(t, err)
	assert.Equal(t, apptest.Owner, conv.OwnerID)

	var tokens []string
	res, err := c.StreamTurn(ctx, conv.ID, "When do deploys run?", func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Deploys run on Tuesdays.", res.Text)
	assert.Equal(t, res.Text, strings.Join(tokens, ""))

	res, err = c.SendTurn(ctx, conv.ID, "And rollbacks?")
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)

	msgs, err := c.History(ctx, conv.ID, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestStreamTurnErrors(t *testing.T) {
	_, c := newClient(t, apptest.Options{}, models.Scope{OwnerID: "bob"})
	ctx := context.Background()

	_, err := c.StreamTurn(ctx, "missing", "hello", func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream error")

	_, err = c.SendTurn(ctx, "missing", "hello")
	assert.True(t, client.IsNotFound(err))
}

func TestIngestWaitsForJob(t *testing.T) {
	_, c := newClient(t, apptest.Options{Embed: true, Text: strings.Repeat("Rollbacks need a ticket. ", 20)}, models.Scope{})
	ctx := context.Background()

	src, err := c.RegisterSource(ctx, models.SourceInput{Type: models.SourceTypeWikiPage, Name: "Runbook", Locator: "https://wiki/runbook"})
	require.NoError(t, err)

	var lastDone, lastTotal int
	res, err := c.Ingest(ctx, src.ID, func(done, total int) {
		lastDone, lastTotal = done, total
	})
	require.NoError(t, err)
	assert.Positive(t, res.ChunksCreated)
	if lastTotal > 0 {
		assert.LessOrEqual(t, lastDone, lastTotal)
	}

	got, err := c.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusReady, got.Status)

	srcs, err := c.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, srcs, 1)
}

func TestBackfillFailureIsReported(t *testing.T) {
	_, c := newClient(t, apptest.Options{}, models.Scope{})
	ctx := context.Background()

	_, err := c.Backfill(ctx, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedding provider configured")

	dead, err := c.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, service.JobBackfill, dead[0].Type)

	jobs, err := c.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	requeued, err := c.Requeue(ctx, dead[0].ID)
	require.NoError(t, err)
	job, err := c.WaitJob(ctx, requeued.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, service.JobStatusFailed, job.Status)
}

func TestMemoryLifecycle(t *testing.T) {
	_, c := newClient(t, apptest.Options{}, models.Scope{})
	ctx := context.Background()

	mem, err := c.CreateMemory(ctx, models.MemoryInput{Type: models.MemoryTypePreference, Title: "Editor", Content: "Prefers vim."})
	require.NoError(t, err)
	assert.Equal(t, models.MemoryStatusCandidate, mem.Status)

	require.NoError(t, c.ReviewMemory(ctx, mem.ID, true))
	require.NoError(t, c.SetMemoryActive(ctx, mem.ID, false))

	title := "Text editor"
	_, err = c.UpdateMemory(ctx, mem.ID, models.MemoryUpdate{Title: &title})
	require.NoError(t, err)

	got, err := c.GetMemory(ctx, mem.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MemoryStatusApproved, got.Status)
	assert.False(t, got.Active)
	assert.Equal(t, "Text editor", got.Title)

	_, err = c.GetMemory(ctx, "missing")
	assert.True(t, client.IsNotFound(err))
}

func TestSearchAndStats(t *testing.T) {
	fx, c := newClient(t, apptest.Options{}, models.Scope{})
	ctx := context.Background()

	_, err := fx.Store.CreateMemory(ctx, apptest.Scope(), models.MemoryInput{
		Type:    models.MemoryTypeFact,
		Title:   "Deploy window",
		Content: "Production deploys run on Tuesdays.",
	})
	require.NoError(t, err)

	res, err := c.Search(ctx, "deploys")
	require.NoError(t, err)
	assert.Contains(t, res.Context, "Production deploys run on Tuesdays.")
	assert.Equal(t, models.TierKeyword, res.Tiers["memory"])

	snap, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Positive(t, snap.UptimeSeconds)
}
