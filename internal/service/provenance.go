package service

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// Recorder persists which fragments an assistant message was grounded in.
type Recorder struct {
	refs store.RefStore
}

// NewRecorder creates a provenance recorder.
func NewRecorder(refs store.RefStore) *Recorder {
	return &Recorder{refs: refs}
}

// Record writes one memory ref per memory ID and one knowledge ref per chunk ID, with
// the retrieval score when known. The message must already be stored. Calling it
// twice writes the links twice.
func (r *Recorder) Record(ctx context.Context, messageID string, memIDs, chunkIDs []string, memScores, chunkScores map[string]*float64) error {
	if len(memIDs) > 0 {
		refs := make([]models.MemoryRef, len(memIDs))
		for i, id := range memIDs {
			refs[i] = models.MemoryRef{MessageID: messageID, MemoryID: id, Score: memScores[id]}
		}
		if err := r.refs.AddMemoryRefs(ctx, refs); err != nil {
			return fmt.Errorf("record memory refs: %w", err)
		}
	}

	if len(chunkIDs) > 0 {
		refs := make([]models.KnowledgeRef, len(chunkIDs))
		for i, id := range chunkIDs {
			refs[i] = models.KnowledgeRef{MessageID: messageID, ChunkID: id, Score: chunkScores[id]}
		}
		if err := r.refs.AddKnowledgeRefs(ctx, refs); err != nil {
			return fmt.Errorf("record knowledge refs: %w", err)
		}
	}
	return nil
}
