package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkdown_Frontmatter(t *testing.T) {
	content := "---\ntitle: Deploy Guide\nowner: ops\n---\n# Ignored Heading\n\nRun the *deploy* script."

	doc, err := ParseMarkdown(content)
	require.NoError(t, err)

	assert.Equal(t, "Deploy Guide", doc.Title)
	assert.Equal(t, "ops", doc.GetFrontmatterString("owner"))
	assert.Equal(t, "", doc.GetFrontmatterString("missing"))
	assert.Equal(t, "Ignored Heading\n\nRun the deploy script.", doc.Text)
}

func TestParseMarkdown_TitleFromHeading(t *testing.T) {
	doc, err := ParseMarkdown("# Runbook\n\nStep one.")
	require.NoError(t, err)
	assert.Equal(t, "Runbook", doc.Title)
}

func TestParseMarkdown_BadFrontmatterIgnored(t *testing.T) {
	doc, err := ParseMarkdown("---\ntitle: [unclosed\n---\nBody text.")
	require.NoError(t, err)
	assert.Empty(t, doc.Frontmatter)
	assert.Equal(t, "Body text.", doc.Text)
}

func TestMarkdownText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"emphasis and links", "Read **the** [docs](https://example.com) now.", "Read the docs now."},
		{"paragraphs", "First para.\n\n\n\nSecond para.", "First para.\n\nSecond para."},
		{"soft break", "line one\nline two", "line one line two"},
		{"list", "- alpha\n- beta", "alpha\n\nbeta"},
		{"code block", "```go\nx := 1\n```", "x := 1"},
		{"raw html dropped", "<div>hidden</div>\n\nshown", "shown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarkdownText(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
