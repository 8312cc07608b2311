// Package grounding renders retrieved fragments into the system context for generation.
package grounding

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/groundwork/internal/models"
)

// Instructions follows the fragment sections. It tells the model to stay inside the
// fragments and to end with the citation object the citation package parses.
const Instructions = `## Instructions
Answer using only the memories and knowledge above. If they do not contain the answer, say so plainly.
Refer to fragments by their bracketed id when it helps the reader.
End your reply with a JSON object on its own line, listing the ids of the fragments you actually used:
{"memory_ids": ["..."], "knowledge_chunk_ids": ["..."]}
Use empty arrays when you used none. Do not add any other keys and do not write anything after the object.`

const none = "(none)"

// Assemble renders memories and chunks, then appends Instructions. The output depends
// only on its inputs.
func Assemble(memories []models.MemoryHit, chunks []models.ChunkHit) string {
	var b strings.Builder

	b.WriteString("## Memories\n")
	if len(memories) == 0 {
		b.WriteString(none + "\n")
	}
	for _, h := range memories {
		m := h.Memory
		writeLine(&b, m.ID, h.Score, string(m.Type), m.Title, m.Content)
	}

	b.WriteString("\n## Knowledge\n")
	if len(chunks) == 0 {
		b.WriteString(none + "\n")
	}
	for _, h := range chunks {
		writeLine(&b, h.Chunk.ID, h.Score, h.SourceName, fmt.Sprintf("#%d", h.Chunk.Index), h.Chunk.Content)
	}

	b.WriteString("\n")
	b.WriteString(Instructions)
	b.WriteString("\n")
	return b.String()
}

func writeLine(b *strings.Builder, id string, score *float64, fields ...string) {
	fmt.Fprintf(b, "- [%s] score=%s", id, formatScore(score))
	for _, f := range fields {
		b.WriteString(" | ")
		b.WriteString(collapse(f))
	}
	b.WriteString("\n")
}

func formatScore(score *float64) string {
	if score == nil {
		return ""
	}
	return fmt.Sprintf("%.3f", *score)
}

// collapse joins all whitespace runs, newlines included, into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
