package sources

import (
	"context"
	"net/http"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/parser"
)

// WikiAdapter fetches a wiki page with a bearer token. HTML and Markdown bodies
// are both reduced to text.
type WikiAdapter struct {
	client *http.Client
	token  string
}

// NewWikiAdapter creates a wiki adapter. An empty token sends no Authorization header.
func NewWikiAdapter(client *http.Client, token string) *WikiAdapter {
	return &WikiAdapter{client: client, token: token}
}

func (a *WikiAdapter) Fetch(ctx context.Context, locator string) (*Document, error) {
	body, ct, err := download(ctx, a.client, locator, a.token, "text/html, text/markdown;q=0.9, text/plain;q=0.8")
	if err != nil {
		return nil, err
	}

	if ct == "text/html" || ct == "application/xhtml+xml" {
		title, text, err := htmlText(string(body))
		if err != nil {
			return nil, err
		}
		return &Document{Title: title, Text: text, ContentType: ct}, nil
	}

	doc, err := parser.ParseMarkdown(string(body))
	if err != nil {
		return nil, err
	}
	meta := map[string]any{}
	for _, key := range []string{"author", "updated", "space"} {
		if v := doc.GetFrontmatterString(key); v != "" {
			meta[key] = v
		}
	}
	if ct == "" {
		ct = "text/markdown"
	}
	return &Document{
		Title:       strings.TrimSpace(doc.Title),
		Text:        doc.Text,
		ContentType: ct,
		Metadata:    meta,
	}, nil
}
