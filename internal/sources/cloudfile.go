package sources

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// CloudFileAdapter downloads a file from cloud storage with an already issued
// OAuth2 access token. Token refresh and consent flows are out of its hands.
type CloudFileAdapter struct {
	tokens oauth2.TokenSource
	base   *http.Client
}

// NewCloudFileAdapter wraps accessToken in a static token source.
func NewCloudFileAdapter(accessToken string) *CloudFileAdapter {
	return &CloudFileAdapter{
		tokens: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	}
}

// WithHTTPClient sets the transport used below the OAuth2 layer.
func (a *CloudFileAdapter) WithHTTPClient(c *http.Client) *CloudFileAdapter {
	a.base = c
	return a
}

func (a *CloudFileAdapter) Fetch(ctx context.Context, locator string) (*Document, error) {
	if a.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.base)
	}
	client := oauth2.NewClient(ctx, a.tokens)

	body, ct, err := download(ctx, client, locator, "", "")
	if err != nil {
		return nil, err
	}
	if ct == "application/pdf" {
		pages, text, err := pdfText(body)
		if err != nil {
			return nil, err
		}
		return &Document{Text: text, ContentType: ct, Metadata: map[string]any{"pages": pages}}, nil
	}
	return textOrHTML(body, ct), nil
}
