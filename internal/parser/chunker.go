package parser

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how extracted text is split for embedding.
type ChunkConfig struct {
	// Size is the window length in characters.
	Size int

	// Overlap is how many characters consecutive chunks share.
	Overlap int
}

// DefaultChunkConfig returns the default chunking configuration.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    800,
		Overlap: 100,
	}
}

// Span is one chunk together with its character offsets into the source text.
// Text is trimmed, Start and End are not.
type Span struct {
	Start int
	End   int
	Text  string
}

// Chunk splits text into overlapping, boundary-aware segments.
func Chunk(text string, cfg ChunkConfig) []string {
	spans := ChunkSpans(text, cfg)
	chunks := make([]string, len(spans))
	for i, s := range spans {
		chunks[i] = s.Text
	}
	return chunks
}

// ChunkSpans walks text in windows of cfg.Size characters. A window that does not reach the
// end of the text is cut at the last sentence terminator in its second half, else at the
// last whitespace there, else hard at cfg.Size. The next window starts cfg.Overlap
// characters before the cut. Start offsets are strictly increasing.
func ChunkSpans(text string, cfg ChunkConfig) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultChunkConfig().Size
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}

	var spans []Span
	start := 0
	for start < n {
		end := min(start+cfg.Size, n)
		if end < n {
			end = findBoundary(runes, start, end)
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			spans = append(spans, Span{Start: start, End: end, Text: piece})
		}
		if end >= n {
			break
		}

		next := max(end-cfg.Overlap, 0)
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// findBoundary returns the cut position for the window [start, end).
// The result is always in (start, end].
func findBoundary(runes []rune, start, end int) int {
	floor := start + (end-start)/2

	for i := end - 1; i >= floor; i-- {
		if isSentenceEnd(runes, i) {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(runes []rune, i int) bool {
	switch runes[i] {
	case '\n':
		return true
	case '.', '!', '?':
		return i+1 == len(runes) || unicode.IsSpace(runes[i+1])
	}
	return false
}
