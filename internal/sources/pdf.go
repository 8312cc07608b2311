package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFAdapter reads a PDF from an http(s) URL or from a local path under root.
type PDFAdapter struct {
	client *http.Client
	root   string
}

// NewPDFAdapter creates a PDF adapter that downloads remote files with client.
// Local paths are read only from inside root; an empty root rejects them all.
func NewPDFAdapter(client *http.Client, root string) *PDFAdapter {
	return &PDFAdapter{client: client, root: root}
}

// Fetch extracts the text of every page, pages separated by a blank line.
func (a *PDFAdapter) Fetch(ctx context.Context, locator string) (*Document, error) {
	var (
		data []byte
		err  error
	)
	if isRemote(locator) {
		data, _, err = download(ctx, a.client, locator, "", "application/pdf")
	} else {
		data, err = readLocal(a.root, locator)
	}
	if err != nil {
		return nil, err
	}

	pages, text, err := pdfText(data)
	if err != nil {
		return nil, err
	}

	return &Document{
		Title:       strings.TrimSuffix(filepath.Base(locator), filepath.Ext(locator)),
		Text:        text,
		ContentType: "application/pdf",
		Metadata:    map[string]any{"pages": pages},
	}, nil
}

// readLocal reads locator through an os.Root so neither ".." nor symlinks leave root.
// Absolute locators must lie under root; relative ones are taken from root.
func readLocal(root, locator string) ([]byte, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: %s", ErrLocalPath, locator)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	rel := filepath.Clean(locator)
	if filepath.IsAbs(rel) {
		if rel, err = filepath.Rel(root, rel); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrLocalPath, locator)
		}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s is outside %s", ErrLocalPath, locator, root)
	}

	r, err := os.OpenRoot(root)
	if err != nil {
		return nil, fmt.Errorf("open root: %w", err)
	}
	defer r.Close()
	return r.ReadFile(rel)
}

func pdfText(data []byte) (int, string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, "", fmt.Errorf("open pdf: %w", err)
	}

	pages := r.NumPage()
	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return 0, "", fmt.Errorf("read page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return pages, strings.Join(parts, "\n\n"), nil
}
