// Package client provides an HTTP and websocket client for the Groundwork server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/groundwork/internal/api"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/service"
)

// DefaultPollInterval is how often job progress is polled while waiting.
const DefaultPollInterval = 500 * time.Millisecond

// Client talks to a Groundwork server on behalf of one scope.
type Client struct {
	baseURL      string
	scope        models.Scope
	httpClient   *http.Client
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval sets how often job progress is polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// New creates a client for the server at baseURL. Empty scope fields are left to
// the server's defaults.
func New(baseURL string, scope models.Scope, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		scope:   scope,
		// Long enough for a non-streaming turn against a slow provider.
		httpClient:   &http.Client{Timeout: 10 * time.Minute},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (c *Client) setScope(h http.Header) {
	if c.scope.OwnerID != "" {
		h.Set(api.HeaderOwner, c.scope.OwnerID)
	}
	if c.scope.ProjectID != "" {
		h.Set(api.HeaderProject, c.scope.ProjectID)
	}
}

// do sends body as JSON and decodes the response into result when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setScope(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TYPES
// =============================================================================

// Job is a background job as reported by the server. Result is left raw because
// its shape depends on the job type.
type Job struct {
	ID          string            `json:"id"`
	Type        service.JobType   `json:"type"`
	Name        string            `json:"name"`
	Status      service.JobStatus `json:"status"`
	Progress    int               `json:"progress"`
	Total       int               `json:"total"`
	Attempts    int               `json:"attempts"`
	Result      json.RawMessage   `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool {
	return j.Status == service.JobStatusCompleted || j.Status == service.JobStatusFailed
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation starts a conversation owned by the client's principal.
func (c *Client) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/conversations", api.CreateConversationRequest{Title: title}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// History returns up to limit messages of a conversation, oldest first.
func (c *Client) History(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages?limit=%d", url.PathEscape(conversationID), limit)
	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendTurn runs one turn without streaming.
func (c *Client) SendTurn(ctx context.Context, conversationID, text string) (*service.TurnResult, error) {
	path := fmt.Sprintf("/api/conversations/%s/turns", url.PathEscape(conversationID))
	var res service.TurnResult
	if err := c.do(ctx, http.MethodPost, path, api.TurnRequest{Text: text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StreamTurn runs one turn over the chat websocket. onToken is called for each
// streamed token; return an error from onToken to abort. Cancelling ctx closes
// the connection, which cancels the turn on the server.
func (c *Client) StreamTurn(
	ctx context.Context,
	conversationID, text string,
	onToken func(token string) error,
) (*service.TurnResult, error) {
	wsEndpoint := c.baseURL + "/ws/chat"
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	c.setScope(header)

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	if err := conn.WriteJSON(api.ChatRequest{ConversationID: conversationID, Text: text}); err != nil {
		return nil, fmt.Errorf("send turn: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var event api.ChatEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read event: %w", err)
		}

		switch event.Type {
		case api.EventToken:
			if event.Token != "" {
				if err := onToken(event.Token); err != nil {
					return nil, err
				}
			}
		case api.EventDone:
			if event.Result == nil {
				return nil, errors.New("done event without result")
			}
			return event.Result, nil
		case api.EventError:
			return nil, fmt.Errorf("stream error: %s", event.Error)
		default:
			// Ignore unknown event types
			continue
		}
	}
}

// Search returns the grounding context for query without generating an answer.
func (c *Client) Search(ctx context.Context, query string) (*service.ContextResult, error) {
	var res service.ContextResult
	if err := c.do(ctx, http.MethodPost, "/api/search", api.SearchRequest{Query: query}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// =============================================================================
// SOURCES
// =============================================================================

// RegisterSource registers a knowledge source without ingesting it.
func (c *Client) RegisterSource(ctx context.Context, in models.SourceInput) (*models.KnowledgeSource, error) {
	var src models.KnowledgeSource
	if err := c.do(ctx, http.MethodPost, "/api/sources", in, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// ListSources returns the sources visible to the client's scope.
func (c *Client) ListSources(ctx context.Context) ([]models.KnowledgeSource, error) {
	var srcs []models.KnowledgeSource
	if err := c.do(ctx, http.MethodGet, "/api/sources", nil, &srcs); err != nil {
		return nil, err
	}
	return srcs, nil
}

// GetSource returns a source by ID.
func (c *Client) GetSource(ctx context.Context, id string) (*models.KnowledgeSource, error) {
	var src models.KnowledgeSource
	if err := c.do(ctx, http.MethodGet, "/api/sources/"+url.PathEscape(id), nil, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// SubmitIngest queues an ingestion job and returns immediately.
func (c *Client) SubmitIngest(ctx context.Context, sourceID string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/sources/"+url.PathEscape(sourceID)+"/ingest", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Ingest queues an ingestion job and waits for it, reporting chunk progress.
func (c *Client) Ingest(ctx context.Context, sourceID string, onProgress func(done, total int)) (*service.IngestResult, error) {
	job, err := c.SubmitIngest(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	var res service.IngestResult
	if err := c.waitResult(ctx, job.ID, onProgress, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitBackfill queues a backfill job. limit <= 0 uses the server's limit.
func (c *Client) SubmitBackfill(ctx context.Context, limit int) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/backfill", api.BackfillRequest{Limit: limit}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Backfill queues a backfill job and waits for it, reporting item progress.
func (c *Client) Backfill(ctx context.Context, limit int, onProgress func(done, total int)) (*service.BackfillResult, error) {
	job, err := c.SubmitBackfill(ctx, limit)
	if err != nil {
		return nil, err
	}
	var res service.BackfillResult
	if err := c.waitResult(ctx, job.ID, onProgress, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// =============================================================================
// MEMORIES
// =============================================================================

// CreateMemory stores a memory. The server embeds it in the background.
func (c *Client) CreateMemory(ctx context.Context, in models.MemoryInput) (*models.Memory, error) {
	var mem models.Memory
	if err := c.do(ctx, http.MethodPost, "/api/memories", in, &mem); err != nil {
		return nil, err
	}
	return &mem, nil
}

// GetMemory returns a memory by ID.
func (c *Client) GetMemory(ctx context.Context, id string) (*models.Memory, error) {
	var mem models.Memory
	if err := c.do(ctx, http.MethodGet, "/api/memories/"+url.PathEscape(id), nil, &mem); err != nil {
		return nil, err
	}
	return &mem, nil
}

// UpdateMemory applies the non-nil fields of upd.
func (c *Client) UpdateMemory(ctx context.Context, id string, upd models.MemoryUpdate) (*models.Memory, error) {
	var mem models.Memory
	if err := c.do(ctx, http.MethodPatch, "/api/memories/"+url.PathEscape(id), upd, &mem); err != nil {
		return nil, err
	}
	return &mem, nil
}

// ReviewMemory approves or rejects a memory.
func (c *Client) ReviewMemory(ctx context.Context, id string, approve bool) error {
	return c.do(ctx, http.MethodPost, "/api/memories/"+url.PathEscape(id)+"/review", api.ReviewRequest{Approve: approve}, nil)
}

// SetMemoryActive activates or deactivates a memory.
func (c *Client) SetMemoryActive(ctx context.Context, id string, active bool) error {
	return c.do(ctx, http.MethodPost, "/api/memories/"+url.PathEscape(id)+"/active", api.ActiveRequest{Active: active}, nil)
}

// =============================================================================
// JOBS & STATS
// =============================================================================

// ListJobs returns all jobs known to the server.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// DeadLetters returns the jobs that failed permanently.
func (c *Client) DeadLetters(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/dead-letter", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob returns a job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Requeue resubmits a dead-lettered job.
func (c *Client) Requeue(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/requeue", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Stats returns the server's operation metrics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// WaitJob polls a job until it completes or fails.
func (c *Client) WaitJob(ctx context.Context, id string, onProgress func(done, total int)) (*Job, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	lastProgress := -1
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if onProgress != nil && job.Total > 0 && job.Progress != lastProgress {
			onProgress(job.Progress, job.Total)
			lastProgress = job.Progress
		}
		if job.Done() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) waitResult(ctx context.Context, id string, onProgress func(done, total int), result any) error {
	job, err := c.WaitJob(ctx, id, onProgress)
	if err != nil {
		return err
	}
	if job.Status == service.JobStatusFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
	}
	if len(job.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Result, result); err != nil {
		return fmt.Errorf("unmarshal job result: %w", err)
	}
	return nil
}
