package grounding

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAssemble(t *testing.T) {
	memories := []models.MemoryHit{
		{
			Memory: models.Memory{ID: "m1", Type: models.MemoryTypePreference, Title: "Editor", Content: "Prefers vim\nover emacs"},
			Score:  models.Float64Ptr(0.91234),
		},
		{Memory: models.Memory{ID: "m2", Type: models.MemoryTypeFact, Title: "", Content: "Team is in Vienna"}},
	}
	chunks := []models.ChunkHit{
		{Chunk: models.KnowledgeChunk{ID: "c1", Index: 3, Content: "Deploys run\n\n  nightly."}, SourceName: "Runbook", Score: models.Float64Ptr(0.5)},
	}

	got := Assemble(memories, chunks)
	want := "## Memories\n" +
		"- [m1] score=0.912 | preference | Editor | Prefers vim over emacs\n" +
		"- [m2] score= | fact |  | Team is in Vienna\n" +
		"\n## Knowledge\n" +
		"- [c1] score=0.500 | Runbook | #3 | Deploys run nightly.\n" +
		"\n" + Instructions + "\n"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Assemble mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleEmptySections(t *testing.T) {
	got := Assemble(nil, nil)
	assert.True(t, strings.HasPrefix(got, "## Memories\n(none)\n\n## Knowledge\n(none)\n"))
	assert.Contains(t, got, `{"memory_ids": ["..."], "knowledge_chunk_ids": ["..."]}`)
}

func TestAssembleDeterministic(t *testing.T) {
	memories := []models.MemoryHit{{Memory: models.Memory{ID: "a", Content: "x"}}}
	assert.Equal(t, Assemble(memories, nil), Assemble(memories, nil))
}

func TestCollectAndRestrict(t *testing.T) {
	memories := []models.MemoryHit{
		{Memory: models.Memory{ID: "m1"}, Score: models.Float64Ptr(0.8)},
		{Memory: models.Memory{ID: "m2"}},
		{Memory: models.Memory{ID: "m1"}},
	}
	chunks := []models.ChunkHit{{Chunk: models.KnowledgeChunk{ID: "c1"}}}

	in := Collect(memories, chunks)
	assert.Equal(t, []string{"m1", "m2"}, in.MemoryIDs)
	assert.Equal(t, []string{"c1"}, in.ChunkIDs)
	assert.InDelta(t, 0.8, *in.MemoryScore["m1"], 1e-9)
	assert.Nil(t, in.MemoryScore["m2"])
	assert.False(t, in.Empty())

	mem, ch := in.Restrict([]string{"m2", "ghost", "m1"}, []string{"c2"})
	assert.Equal(t, []string{"m2", "m1"}, mem)
	assert.Empty(t, ch)
	assert.NotNil(t, ch)

	assert.True(t, Collect(nil, nil).Empty())
}
