package store

import (
	"strings"
	"unicode"
)

const maxKeywords = 8

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "any": true, "can": true, "had": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true, "have": true,
	"how": true, "what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "with": true, "this": true, "that": true, "from": true, "does": true,
	"did": true, "about": true, "into": true, "your": true, "there": true, "their": true,
	"them": true, "then": true, "than": true, "its": true, "would": true, "should": true,
	"could": true, "tell": true, "please": true,
}

// Keywords reduces a natural-language query to lowercase substring terms for the
// keyword tier. Short words and stopwords are dropped. A query with no usable words
// falls back to the whole trimmed query.
func Keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxKeywords {
			break
		}
	}

	if len(out) == 0 {
		if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
			return []string{q}
		}
	}
	return out
}
