package sources

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// htmlText reduces an HTML page to plain text with a blank line between blocks,
// and returns the page title if it has one.
func htmlText(body string) (title, text string, err error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	walkHTML(doc, &sb, &title, 0)

	lines := strings.Split(sb.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(title), strings.TrimSpace(text), nil
}

func walkHTML(n *html.Node, sb *strings.Builder, title *string, depth int) {
	if depth > 200 {
		return
	}

	switch n.Type {
	case html.TextNode:
		writeCollapsed(sb, n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "template":
			return
		case "title":
			if n.FirstChild != nil && *title == "" {
				*title = n.FirstChild.Data
			}
			return
		case "br":
			sb.WriteString("\n")
			return
		case "li":
			sb.WriteString("\n- ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, sb, title, depth+1)
	}

	if n.Type == html.ElementNode && isBlock(n.Data) {
		sb.WriteString("\n\n")
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "main", "header", "footer", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "table", "tr", "pre", "blockquote", "hr":
		return true
	}
	return false
}

// writeCollapsed writes s with every whitespace run, newlines included, folded to one space.
func writeCollapsed(sb *strings.Builder, s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			sb.WriteByte(' ')
		}
		return
	}
	if s[0] == ' ' || s[0] == '\n' || s[0] == '\t' {
		sb.WriteByte(' ')
	}
	sb.WriteString(strings.Join(fields, " "))
	if last := s[len(s)-1]; last == ' ' || last == '\n' || last == '\t' {
		sb.WriteByte(' ')
	}
}
