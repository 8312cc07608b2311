package sources

import (
	"context"
	"net/http"
)

// DocExportAdapter downloads an office document export rendered as plain text or HTML.
type DocExportAdapter struct {
	client *http.Client
	token  string
}

func NewDocExportAdapter(client *http.Client, token string) *DocExportAdapter {
	return &DocExportAdapter{client: client, token: token}
}

func (a *DocExportAdapter) Fetch(ctx context.Context, locator string) (*Document, error) {
	body, ct, err := download(ctx, a.client, locator, a.token, "text/plain, text/html;q=0.9")
	if err != nil {
		return nil, err
	}
	return textOrHTML(body, ct), nil
}

// textOrHTML keeps plain bodies as is and strips markup from HTML ones. A body that
// fails to parse as HTML is kept verbatim.
func textOrHTML(body []byte, ct string) *Document {
	if ct == "text/html" || ct == "application/xhtml+xml" {
		if title, text, err := htmlText(string(body)); err == nil {
			return &Document{Title: title, Text: text, ContentType: ct}
		}
	}
	if ct == "" {
		ct = "text/plain"
	}
	return &Document{Text: string(body), ContentType: ct}
}
