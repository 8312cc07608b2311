package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/raphaelgruber/groundwork/internal/app/apptest"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureBackend leaves closing the App to the fixture.
type fixtureBackend struct {
	*localBackend
}

func (fixtureBackend) Close() error { return nil }

// run executes the root command in process against fx and returns stdout and stderr.
func run(t *testing.T, fx *apptest.Fixture, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("GROUNDWORK_SERVER_URL", "")
	t.Setenv("GROUNDWORK_LOG_FILE", "")

	openBackend = func(context.Context) (Backend, error) {
		return fixtureBackend{newLocalBackend(fx.App, apptest.Scope())}, nil
	}
	t.Cleanup(func() {
		openBackend = defaultOpenBackend
		cleanup()
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	backend = nil
	return stdout.String(), stderr.String(), err
}

func TestAskCommand(t *testing.T) {
	fx := apptest.New(t, apptest.Options{})
	mem, err := fx.Store.CreateMemory(context.Background(), apptest.Scope(), models.MemoryInput{
		Type:    models.MemoryTypeFact,
		Title:   "Deploy window",
		Content: "Production deploys run on Tuesdays.",
	})
	require.NoError(t, err)
	fx.Generator.Reply = func(llm.Request) string {
		return "Deploys run\non Tuesdays.\n{\"memory_ids\": [\"" + mem.ID + "\"], \"knowledge_chunk_ids\": []}"
	}

	askConversation = ""
	stdout, stderr, err := run(t, fx, "ask", "When do deploys run?")
	require.NoError(t, err)
	assert.Equal(t, "Deploys run\non Tuesdays.\n", stdout)
	assert.Contains(t, stderr, "grounded in 1 memories, 0 chunks (explicit citations")
}

func TestChatAndHistoryCommands(t *testing.T) {
	fx := apptest.New(t, apptest.Options{})

	stdout, _, err := run(t, fx, "chat", "new", "deploys")
	require.NoError(t, err)
	convID := strings.TrimSpace(stdout)
	require.NotEmpty(t, convID)

	_, _, err = run(t, fx, "ask", "hello", "-c", convID)
	require.NoError(t, err)
	askConversation = ""

	stdout, _, err = run(t, fx, "chat", "history", convID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "user\nhello")
	assert.Contains(t, stdout, "assistant\nNo grounded answer.")
}

func TestSourceAndIngestCommands(t *testing.T) {
	fx := apptest.New(t, apptest.Options{Embed: true, Text: strings.Repeat("Rollbacks need a ticket. ", 20)})

	stdout, _, err := run(t, fx, "source", "add", "https://wiki/runbook", "--type", "wiki-page", "--name", "Runbook", "--ingest")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Registered")
	assert.Contains(t, stdout, "Chunks created:")

	srcs, err := fx.Store.ListSources(context.Background(), apptest.Scope())
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, models.SourceStatusReady, srcs[0].Status)

	stdout, _, err = run(t, fx, "source", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, srcs[0].ID)

	stdout, _, err = run(t, fx, "source", "show", srcs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Status: ready (version 1)")

	_, _, err = run(t, fx, "source", "add", "s3://bucket", "--type", "s3", "--ingest=false")
	assert.ErrorIs(t, err, models.ErrInvalidType)
}

func TestMemoryCommands(t *testing.T) {
	fx := apptest.New(t, apptest.Options{Embed: true})

	stdout, _, err := run(t, fx, "memory", "add", "Prefers vim.", "--type", "preference", "--title", "Editor")
	require.NoError(t, err)
	fields := strings.Fields(stdout)
	require.GreaterOrEqual(t, len(fields), 2)
	id := fields[1]

	_, _, err = run(t, fx, "memory", "approve", id)
	require.NoError(t, err)
	_, _, err = run(t, fx, "memory", "deactivate", id)
	require.NoError(t, err)

	stdout, _, err = run(t, fx, "memory", "show", id)
	require.NoError(t, err)
	assert.Contains(t, stdout, "[preference] (approved, inactive)")
	assert.Contains(t, stdout, "Prefers vim.")
}

func TestBackfillCommand(t *testing.T) {
	fx := apptest.New(t, apptest.Options{})
	_, err := fx.Store.CreateMemory(context.Background(), apptest.Scope(), models.MemoryInput{
		Type:    models.MemoryTypeFact,
		Content: "Production deploys run on Tuesdays.",
	})
	require.NoError(t, err)

	// Without an embedding provider the backfill reports the missing provider.
	_, _, err = run(t, fx, "backfill")
	assert.ErrorContains(t, err, "no embedding provider configured")

	backfillLimit = -1
	_, _, err = run(t, fx, "backfill")
	backfillLimit = 0
	assert.Error(t, err)
}

func TestJobsNeedServer(t *testing.T) {
	fx := apptest.New(t, apptest.Options{})
	_, _, err := run(t, fx, "jobs")
	assert.ErrorIs(t, err, errServerOnly)
}

func TestSearchAndStatsCommands(t *testing.T) {
	fx := apptest.New(t, apptest.Options{})
	_, err := fx.Store.CreateMemory(context.Background(), apptest.Scope(), models.MemoryInput{
		Type:    models.MemoryTypeFact,
		Content: "Production deploys run on Tuesdays.",
	})
	require.NoError(t, err)

	stdout, stderr, err := run(t, fx, "search", "deploys")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Production deploys run on Tuesdays.")
	assert.Contains(t, stderr, "tiers: memory=keyword")

	stdout, _, err = run(t, fx, "stats")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Keyword Search:")
}

func TestAnswerWriter(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		visible string
		want    string
	}{
		{"single line", []string{"Tues", "days."}, "Tuesdays.", "Tuesdays.\n"},
		{"bare footer held", []string{"A\n", "B\n", `{"memory_ids": [], "knowledge_chunk_ids": []}`}, "A\nB", "A\nB\n"},
		{"fenced footer held", []string{"A\n```json\n{}\n```"}, "A", "A\n"},
		{"remainder printed", []string{"A\n", "B"}, "A\nB", "A\nB\n"},
		{"stacked footers held", []string{"A\n{\"memory_ids\": []", ", \"knowledge_chunk_ids\": []}\n{}"}, "A", "A\n"},
		{"inline object released", []string{"Use ", `{"a": 1}`, " here."}, `Use {"a": 1} here.`, "Use {\"a\": 1} here.\n"},
		{"code fence released", []string{"See\n```go\nfunc f() {}\n```\nDone."}, "See\n```go\nfunc f() {}\n```\nDone.", "See\n```go\nfunc f() {}\n```\nDone.\n"},
		{"invalid footer printed at finish", []string{"A {\"memory_ids\": [1]}"}, `A {"memory_ids": [1]}`, "A {\"memory_ids\": [1]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := &answerWriter{out: &buf}
			for _, tok := range tt.tokens {
				require.NoError(t, w.token(tok))
			}
			w.finish(tt.visible)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestAnswerWriterStreamsPartialLines(t *testing.T) {
	var buf bytes.Buffer
	w := &answerWriter{out: &buf}

	require.NoError(t, w.token("Deploys "))
	assert.Equal(t, "Deploys", buf.String())

	require.NoError(t, w.token("run on"))
	assert.Equal(t, "Deploys run on", buf.String())

	require.NoError(t, w.token(` Tuesdays. {"memory_ids"`))
	assert.Equal(t, "Deploys run on Tuesdays.", buf.String())

	require.NoError(t, w.token(`: ["m1"], "knowledge_chunk_ids": []}`))
	assert.Equal(t, "Deploys run on Tuesdays.", buf.String())

	w.finish("Deploys run on Tuesdays.")
	assert.Equal(t, "Deploys run on Tuesdays.\n", buf.String())
}
