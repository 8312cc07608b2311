// Package sources fetches knowledge source documents and reduces them to plain text.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/groundwork/internal/config"
	"github.com/raphaelgruber/groundwork/internal/models"
)

// maxBodyBytes caps a downloaded document.
var maxBodyBytes int64 = 64 << 20

var (
	// ErrTooLarge is returned when a document body exceeds the download cap.
	ErrTooLarge = errors.New("document too large")

	// ErrLocalPath is returned for a local file outside the allowed root.
	ErrLocalPath = errors.New("local file not allowed")

	// ErrNoText is returned when a document was fetched but yielded no text.
	ErrNoText = errors.New("no text extracted")

	// ErrUnsupportedType is returned for a source type without a registered fetcher.
	ErrUnsupportedType = errors.New("unsupported source type")
)

// Document is a fetched source reduced to text.
type Document struct {
	Title       string
	Text        string
	ContentType string
	Metadata    map[string]any
}

// Fetcher retrieves one document by locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*Document, error)
}

// Registry maps source types to fetchers.
type Registry struct {
	fetchers map[models.SourceType]Fetcher
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[models.SourceType]Fetcher)}
}

// DefaultRegistry wires every adapter with the credentials from cfg.
func DefaultRegistry(cfg config.Config) *Registry {
	client := &http.Client{Timeout: 2 * time.Minute}

	r := NewRegistry()
	r.Register(models.SourceTypePDF, NewPDFAdapter(client, cfg.LocalFileRoot))
	r.Register(models.SourceTypeWikiPage, NewWikiAdapter(client, cfg.WikiToken))
	r.Register(models.SourceTypeDocExport, NewDocExportAdapter(client, cfg.DocExportToken))
	r.Register(models.SourceTypeCloudFile, NewCloudFileAdapter(cfg.CloudFileToken))
	return r
}

// Register sets the fetcher for t, replacing any previous one.
func (r *Registry) Register(t models.SourceType, f Fetcher) {
	r.fetchers[t] = f
}

// Fetch resolves the adapter for src and fetches it. A document with only
// whitespace text is reported as ErrNoText.
func (r *Registry) Fetch(ctx context.Context, src models.KnowledgeSource) (*Document, error) {
	f, ok := r.fetchers[src.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, src.Type)
	}

	doc, err := f.Fetch(ctx, src.Locator)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", src.Type, src.Locator, err)
	}
	doc.Text = strings.TrimSpace(doc.Text)
	if doc.Text == "" {
		return nil, fmt.Errorf("fetch %s %s: %w", src.Type, src.Locator, ErrNoText)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	return doc, nil
}

// StatusError is a non-2xx response from a document host.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

// download GETs url and returns the body and its media type.
func download(ctx context.Context, client *http.Client, url, bearer, accept string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, "", fmt.Errorf("GET %s: %w (over %d bytes)", url, ErrTooLarge, maxBodyBytes)
	}
	return body, mediaType(resp.Header.Get("Content-Type")), nil
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func isRemote(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}
