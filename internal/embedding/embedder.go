// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

var (
	// ErrDimensionMismatch is returned when a provider answers with a vector of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding is returned when a provider answers without a vector.
	ErrEmptyEmbedding = errors.New("provider returned no embedding")
)

// Embedder generates embeddings. Callers treat an error as "keyword search only".
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

// Client wraps a langchaingo embeddings backend with a per-call timeout
// and a dimension check on every response.
type Client struct {
	backend   embeddings.Embedder
	model     string
	dimension int
	timeout   time.Duration
	metrics   *metrics.Metrics
}

var _ Embedder = (*Client)(nil)

// NewClient wraps backend. A zero timeout disables the per-call deadline.
func NewClient(backend embeddings.Embedder, model string, dimension int, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		backend:   backend,
		model:     model,
		dimension: dimension,
		timeout:   timeout,
		metrics:   m,
	}
}

// New creates the configured provider.
func New(cfg config.Config, m *metrics.Metrics) (*Client, error) {
	var backend embeddings.Embedder

	switch cfg.EmbedProvider {
	case ProviderOllama, "":
		client, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		backend, err = embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		backend = NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel, cfg.EmbedDimension)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}

	return NewClient(backend, cfg.EmbedModel, cfg.EmbedDimension, cfg.EmbedTimeout, m), nil
}

// Embed returns the vector for text. It never substitutes a zero vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	textLen := len(text)
	start := time.Now()
	vectors, err := c.backend.EmbedDocuments(ctx, []string{text})
	duration := time.Since(start)
	c.metrics.ObserveCall(metrics.OpEmbedding, duration)

	if err != nil {
		slog.Warn("embedding failed", "model", c.model, "text_len", textLen, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", llm.WrapFatal(err))
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}

	embedding := vectors[0]
	if c.dimension > 0 && len(embedding) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d (model: %s)", ErrDimensionMismatch, len(embedding), c.dimension, c.model)
	}

	slog.Debug("embedding complete", "model", c.model, "text_len", textLen, "duration_ms", duration.Milliseconds())
	return embedding, nil
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Dimension returns the expected embedding dimension.
func (c *Client) Dimension() int {
	return c.dimension
}
