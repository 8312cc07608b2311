package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend implements embeddings.Embedder.
type fakeBackend struct {
	vectors [][]float32
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeBackend) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.vectors, f.err
}

func (f *fakeBackend) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil || len(v) == 0 {
		return nil, err
	}
	return v[0], nil
}

func TestClient_Embed(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		wantErr error
		wantLen int
	}{
		{
			name:    "ok",
			backend: &fakeBackend{vectors: [][]float32{{0.1, 0.2, 0.3}}},
			wantLen: 3,
		},
		{
			name:    "dimension mismatch",
			backend: &fakeBackend{vectors: [][]float32{{0.1, 0.2}}},
			wantErr: ErrDimensionMismatch,
		},
		{
			name:    "no vectors",
			backend: &fakeBackend{vectors: nil},
			wantErr: ErrEmptyEmbedding,
		},
		{
			name:    "empty vector",
			backend: &fakeBackend{vectors: [][]float32{{}}},
			wantErr: ErrEmptyEmbedding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.backend, "test-model", 3, time.Second, metrics.New())

			got, err := c.Embed(context.Background(), "hello")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got, "failures must not return a substitute vector")
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestClient_EmbedProviderError(t *testing.T) {
	boom := errors.New("connection refused")
	c := NewClient(&fakeBackend{err: boom}, "m", 3, 0, nil)

	got, err := c.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}

func TestClient_EmbedFatalError(t *testing.T) {
	c := NewClient(&fakeBackend{err: errors.New("401 Unauthorized")}, "m", 3, 0, nil)

	_, err := c.Embed(context.Background(), "hello")
	assert.True(t, llm.IsFatal(err))
}

func TestClient_EmbedTimeout(t *testing.T) {
	backend := &fakeBackend{vectors: [][]float32{{1, 2, 3}}, delay: time.Second}
	c := NewClient(backend, "m", 3, 20*time.Millisecond, nil)

	_, err := c.Embed(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_RecordsTiming(t *testing.T) {
	m := metrics.New()
	c := NewClient(&fakeBackend{vectors: [][]float32{{1, 2, 3}}}, "m", 3, 0, m)

	_, err := c.Embed(context.Background(), "x")
	require.NoError(t, err)

	snap := m.Snapshot()
	require.NotNil(t, snap.Embedding)
	assert.Equal(t, int64(1), snap.Embedding.Count)
}

func TestOpenAIBackend_EmbedDocuments(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose: the backend must place vectors by index.
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.4, 0.5, 0.6]},
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	b := NewOpenAIBackend("sk-test", srv.URL+"/v1", "text-embedding-3-small", 3)
	vectors, err := b.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}, vectors)
	assert.Equal(t, "text-embedding-3-small", gotReq["model"])
	assert.EqualValues(t, 3, gotReq["dimensions"])
}

func TestOpenAIBackend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	c := NewClient(NewOpenAIBackend("sk-test", srv.URL+"/v1", "m", 3), "m", 3, time.Second, nil)
	got, err := c.Embed(context.Background(), "hello")
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr string
	}{
		{"ollama", config.Config{EmbedProvider: ProviderOllama, EmbedModel: "all-minilm", OllamaHost: "http://localhost:11434", EmbedDimension: 384}, ""},
		{"default is ollama", config.Config{EmbedModel: "all-minilm", OllamaHost: "http://localhost:11434", EmbedDimension: 384}, ""},
		{"openai", config.Config{EmbedProvider: ProviderOpenAI, OpenAIAPIKey: "sk-test", EmbedModel: "text-embedding-3-small", EmbedDimension: 1536}, ""},
		{"openai without key", config.Config{EmbedProvider: ProviderOpenAI}, "API key required"},
		{"unknown provider", config.Config{EmbedProvider: "voyage"}, "unsupported embedding provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg, metrics.New())
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.EmbedDimension, c.Dimension())
		})
	}
}
