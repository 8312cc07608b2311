// Package citation separates the machine-readable citation footer from a model's answer.
package citation

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Footer keys. The object must contain exactly these two.
const (
	KeyMemoryIDs = "memory_ids"
	KeyChunkIDs  = "knowledge_chunk_ids"
)

// Result is the answer split into prose and cited ids.
type Result struct {
	Visible   string
	MemoryIDs []string
	ChunkIDs  []string
	// Found reports whether a well-formed footer was removed.
	Found bool
}

var (
	fencedFooter = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\n?\\s*(\\{[^`]*\\})\\s*```$")
	bareFooter   = regexp.MustCompile(`(?s)(\{[^{}]*\})$`)
)

// Extract parses a trailing citation object, bare or inside a ```json fence, from text.
// When several footers are stacked at the end, the last one is authoritative and all
// of them are removed. On any problem it returns the trimmed text unchanged with empty
// id lists. It never panics, and running it on its own Visible output is a no-op.
func Extract(text string) Result {
	trimmed := strings.TrimSpace(text)
	mem, chunks, rest, ok := cutFooter(trimmed)
	if !ok {
		return Result{Visible: trimmed, MemoryIDs: []string{}, ChunkIDs: []string{}}
	}
	for {
		_, _, next, ok := cutFooter(rest)
		if !ok {
			break
		}
		rest = next
	}
	return Result{
		Visible:   rest,
		MemoryIDs: mem,
		ChunkIDs:  chunks,
		Found:     true,
	}
}

// cutFooter removes one well-formed footer from the end of trimmed text.
func cutFooter(trimmed string) (mem, chunks []string, rest string, ok bool) {
	for _, re := range []*regexp.Regexp{fencedFooter, bareFooter} {
		loc := re.FindStringSubmatchIndex(trimmed)
		if loc == nil {
			continue
		}
		mem, chunks, ok = parseFooter(trimmed[loc[2]:loc[3]])
		if !ok {
			return nil, nil, "", false
		}
		return mem, chunks, strings.TrimSpace(trimmed[:loc[0]]), true
	}
	return nil, nil, "", false
}

func parseFooter(raw string) (mem, chunks []string, ok bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || len(obj) != 2 {
		return nil, nil, false
	}
	mem, ok = stringList(obj[KeyMemoryIDs])
	if !ok {
		return nil, nil, false
	}
	chunks, ok = stringList(obj[KeyChunkIDs])
	if !ok {
		return nil, nil, false
	}
	return mem, chunks, true
}

// stringList decodes a JSON array of strings, dropping blanks and repeats.
func stringList(raw json.RawMessage) ([]string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, id := range items {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, true
}
