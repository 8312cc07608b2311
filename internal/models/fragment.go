package models

import "time"

// Tier names the retrieval strategy that served a store.
type Tier string

const (
	TierVector  Tier = "vector"
	TierKeyword Tier = "keyword"
	TierNone    Tier = "none"
)

// MemoryHit is a memory fragment returned by retrieval.
// Score is nil when the keyword tier produced it.
type MemoryHit struct {
	Memory Memory   `json:"memory"`
	Score  *float64 `json:"score,omitempty"`
}

// ChunkHit is a knowledge chunk fragment returned by retrieval.
type ChunkHit struct {
	Chunk      KnowledgeChunk `json:"chunk"`
	SourceName string         `json:"source_name"`
	Score      *float64       `json:"score,omitempty"`
}

// EmbeddingCandidate is a stored row that has no embedding yet.
type EmbeddingCandidate struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Candidate kinds.
const (
	CandidateMemory = "memory"
	CandidateChunk  = "chunk"
)
