package grounding

import "github.com/raphaelgruber/groundwork/internal/models"

// Injected records which fragments went into a context, with their retrieval scores.
type Injected struct {
	MemoryIDs   []string
	ChunkIDs    []string
	MemoryScore map[string]*float64
	ChunkScore  map[string]*float64
}

// Collect gathers the ids and scores of the fragments passed to Assemble.
func Collect(memories []models.MemoryHit, chunks []models.ChunkHit) Injected {
	in := Injected{
		MemoryIDs:   make([]string, 0, len(memories)),
		ChunkIDs:    make([]string, 0, len(chunks)),
		MemoryScore: make(map[string]*float64, len(memories)),
		ChunkScore:  make(map[string]*float64, len(chunks)),
	}
	for _, h := range memories {
		if _, dup := in.MemoryScore[h.Memory.ID]; dup {
			continue
		}
		in.MemoryIDs = append(in.MemoryIDs, h.Memory.ID)
		in.MemoryScore[h.Memory.ID] = h.Score
	}
	for _, h := range chunks {
		if _, dup := in.ChunkScore[h.Chunk.ID]; dup {
			continue
		}
		in.ChunkIDs = append(in.ChunkIDs, h.Chunk.ID)
		in.ChunkScore[h.Chunk.ID] = h.Score
	}
	return in
}

// Empty reports whether no fragment was injected.
func (in Injected) Empty() bool {
	return len(in.MemoryIDs) == 0 && len(in.ChunkIDs) == 0
}

// Restrict keeps only the cited ids that were actually injected, in citation order.
func (in Injected) Restrict(memoryIDs, chunkIDs []string) (mem, chunks []string) {
	mem = make([]string, 0, len(memoryIDs))
	for _, id := range memoryIDs {
		if _, ok := in.MemoryScore[id]; ok {
			mem = append(mem, id)
		}
	}
	chunks = make([]string, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if _, ok := in.ChunkScore[id]; ok {
			chunks = append(chunks, id)
		}
	}
	return mem, chunks
}
