package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		visible   string
		memoryIDs []string
		chunkIDs  []string
		found     bool
	}{
		{
			name:      "bare footer",
			in:        "The answer is 42.\n{\"memory_ids\": [\"m1\"], \"knowledge_chunk_ids\": [\"c7\", \"c9\"]}",
			visible:   "The answer is 42.",
			memoryIDs: []string{"m1"},
			chunkIDs:  []string{"c7", "c9"},
			found:     true,
		},
		{
			name:      "fenced footer",
			in:        "The answer is 42.\n\n```json\n{\"memory_ids\": [], \"knowledge_chunk_ids\": [\"c1\"]}\n```\n",
			visible:   "The answer is 42.",
			memoryIDs: []string{},
			chunkIDs:  []string{"c1"},
			found:     true,
		},
		{
			name:      "plain fence",
			in:        "Done.\n```\n{\"knowledge_chunk_ids\": [], \"memory_ids\": [\"m2\"]}\n```",
			visible:   "Done.",
			memoryIDs: []string{"m2"},
			chunkIDs:  []string{},
			found:     true,
		},
		{
			name:      "duplicates removed in order",
			in:        `Yes. {"memory_ids": ["b", "a", "b", " "], "knowledge_chunk_ids": ["c", "c"]}`,
			visible:   "Yes.",
			memoryIDs: []string{"b", "a"},
			chunkIDs:  []string{"c"},
			found:     true,
		},
		{
			name:      "stacked footers keep the last",
			in:        "Answer.\n{\"memory_ids\": [\"m1\"], \"knowledge_chunk_ids\": []}\n{\"memory_ids\": [\"m2\"], \"knowledge_chunk_ids\": [\"c2\"]}",
			visible:   "Answer.",
			memoryIDs: []string{"m2"},
			chunkIDs:  []string{"c2"},
			found:     true,
		},
		{
			name:      "fence after bare footer",
			in:        "Answer.\n{\"memory_ids\": [\"m1\"], \"knowledge_chunk_ids\": []}\n```json\n{\"memory_ids\": [], \"knowledge_chunk_ids\": [\"c3\"]}\n```",
			visible:   "Answer.",
			memoryIDs: []string{},
			chunkIDs:  []string{"c3"},
			found:     true,
		},
		{
			name:      "no footer",
			in:        "  The answer is 42.  ",
			visible:   "The answer is 42.",
			memoryIDs: []string{},
			chunkIDs:  []string{},
		},
		{
			name:      "footer not at end",
			in:        `{"memory_ids": ["m1"], "knowledge_chunk_ids": []} and then more prose`,
			visible:   `{"memory_ids": ["m1"], "knowledge_chunk_ids": []} and then more prose`,
			memoryIDs: []string{},
			chunkIDs:  []string{},
		},
		{
			name:      "extra key",
			in:        `Hi {"memory_ids": [], "knowledge_chunk_ids": [], "note": []}`,
			visible:   `Hi {"memory_ids": [], "knowledge_chunk_ids": [], "note": []}`,
			memoryIDs: []string{},
			chunkIDs:  []string{},
		},
		{
			name:      "missing key",
			in:        `Hi {"memory_ids": ["m1"]}`,
			visible:   `Hi {"memory_ids": ["m1"]}`,
			memoryIDs: []string{},
			chunkIDs:  []string{},
		},
		{
			name:      "wrong key",
			in:        `Hi {"memory_ids": ["m1"], "chunk_ids": []}`,
			visible:   `Hi {"memory_ids": ["m1"], "chunk_ids": []}`,
			memoryIDs: []string{},
			chunkIDs:  []string{},
		},
		{
			name:      "non string ids",
			in:        `Hi {"memory_ids": [1, 2], "knowledge_chunk_ids": []}`,
			visible:   `Hi {"memory_ids": [1, 2], "knowledge_chunk_ids": []}`,
			memoryIDs: []string{},
			chunkIDs:  []string{},
		},
		{
			name:      "null list",
			in:        `Hi {"memory_ids": null, "knowledge_chunk_ids": []}`,
			visible:   `Hi {"memory_ids": null, "knowledge_chunk_ids": []}`,
			memoryIDs: []string{},
			chunkIDs:  []string{},
		},
		{
			name:      "truncated json",
			in:        `Hi {"memory_ids": ["m1"], "knowledge_chunk_ids": [}`,
			visible:   `Hi {"memory_ids": ["m1"], "knowledge_chunk_ids": [}`,
			memoryIDs: []string{},
			chunkIDs:  []string{},
		},
		{
			name:      "empty",
			in:        "",
			visible:   "",
			memoryIDs: []string{},
			chunkIDs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.in)
			assert.Equal(t, tt.visible, got.Visible)
			assert.Equal(t, tt.memoryIDs, got.MemoryIDs)
			assert.Equal(t, tt.chunkIDs, got.ChunkIDs)
			assert.Equal(t, tt.found, got.Found)
			require.NotNil(t, got.MemoryIDs)
			require.NotNil(t, got.ChunkIDs)
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	inputs := []string{
		"The answer is 42.\n{\"memory_ids\": [\"m1\"], \"knowledge_chunk_ids\": []}",
		"```json\n{\"memory_ids\": [], \"knowledge_chunk_ids\": []}\n```",
		"Answer.\n{\"memory_ids\": [\"m1\"], \"knowledge_chunk_ids\": []}\n{\"memory_ids\": [\"m2\"], \"knowledge_chunk_ids\": []}",
		"Answer. {\"memory_ids\": [], \"knowledge_chunk_ids\": []} {\"memory_ids\": [\"m1\"]}",
		"just prose",
		"{broken",
	}
	for _, in := range inputs {
		first := Extract(in)
		second := Extract(first.Visible)
		assert.Equal(t, first.Visible, second.Visible, "input %q", in)
		assert.False(t, second.Found, "input %q", in)
	}
}

func FuzzExtract(f *testing.F) {
	f.Add("The answer is 42.\n{\"memory_ids\": [\"m1\"], \"knowledge_chunk_ids\": []}")
	f.Add("```json\n{}\n```")
	f.Add("{{{{}")
	f.Fuzz(func(t *testing.T, s string) {
		got := Extract(s)
		if got.MemoryIDs == nil || got.ChunkIDs == nil {
			t.Fatalf("nil id list for %q", s)
		}
	})
}
