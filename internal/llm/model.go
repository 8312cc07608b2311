// Package llm streams and generates answers through langchaingo providers.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported generation providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Message is one prior turn sent as history.
type Message struct {
	Role    string
	Content string
}

// Request is a single generation: the grounding context as system prompt, prior
// turns, and the new user text.
type Request struct {
	System  string
	History []Message
	User    string
}

func (r Request) messages() []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(r.History)+2)
	if r.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, r.System))
	}
	for _, m := range r.History {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, m.Content))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, r.User))
}

func (r Request) promptText() string {
	var b strings.Builder
	b.WriteString(r.System)
	for _, m := range r.History {
		b.WriteString(m.Content)
	}
	b.WriteString(r.User)
	return b.String()
}

// Model wraps a langchaingo model with a generation timeout and metrics.
type Model struct {
	llm       llms.Model
	modelName string
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// NewFromLLM wraps an existing langchaingo model. A zero timeout disables the deadline.
func NewFromLLM(model llms.Model, name string, timeout time.Duration, m *metrics.Metrics) *Model {
	return &Model{llm: model, modelName: name, timeout: timeout, metrics: m}
}

// New creates a model for the configured provider.
func New(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*Model, error) {
	var (
		model llms.Model
		err   error
	)

	switch cfg.LLMProvider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{openai.WithToken(cfg.OpenAIAPIKey), openai.WithModel(cfg.LLMModel)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return NewFromLLM(model, cfg.LLMModel, cfg.GenerateTimeout, m), nil
}

// Model returns the model name.
func (m *Model) Model() string {
	return m.modelName
}

func (m *Model) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// Generate returns the complete answer without streaming.
func (m *Model) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, req.messages())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, wrapFatalError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices", ErrGenerationFailed)
	}
	text := resp.Choices[0].Content
	m.metrics.ObserveLLM(metrics.OpLLMGenerate, time.Since(start),
		int64(CountTokens(req.promptText())), int64(CountTokens(text)))
	return text, nil
}

// Stream forwards every token to onToken as it arrives and returns the full text.
// An error before the first token yields ErrGenerationFailed and no text. An error
// after tokens have flowed yields the partial text with ErrStreamInterrupted. When
// onToken fails or ctx ends, the provider request is aborted.
func (m *Model) Stream(ctx context.Context, req Request, onToken func(string) error) (string, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		buf    strings.Builder
		tokens int
	)
	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, req.messages(),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			token := string(chunk)
			buf.WriteString(token)
			tokens++
			if err := onToken(token); err != nil {
				cancel()
				return fmt.Errorf("deliver token: %w", err)
			}
			return nil
		}))

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if tokens == 0 {
			return "", fmt.Errorf("%w: %w", ErrGenerationFailed, wrapFatalError(err))
		}
		return buf.String(), fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
	}

	// Providers that ignore the streaming callback still return the full content.
	if tokens == 0 {
		if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
			return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
		}
		content := resp.Choices[0].Content
		if err := onToken(content); err != nil {
			return "", fmt.Errorf("%w: deliver token: %w", ErrGenerationFailed, err)
		}
		buf.WriteString(content)
	}

	text := buf.String()
	m.metrics.ObserveLLM(metrics.OpLLMStream, time.Since(start),
		int64(CountTokens(req.promptText())), int64(CountTokens(text)))
	return text, nil
}
