package models

import "time"

// SourceType identifies which adapter fetches a knowledge source.
type SourceType string

const (
	SourceTypePDF       SourceType = "pdf"
	SourceTypeDocExport SourceType = "doc-export"
	SourceTypeWikiPage  SourceType = "wiki-page"
	SourceTypeCloudFile SourceType = "cloud-file"
)

// SourceStatus is the sync lifecycle of a knowledge source.
type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusReady      SourceStatus = "ready"
	SourceStatusError      SourceStatus = "error"
)

// Metadata keys written to a source after ingestion.
const (
	MetaChunkCount       = "chunk_count"
	MetaChunksFailed     = "chunks_failed"
	MetaChunksUnembedded = "chunks_unembedded"
	MetaLastError        = "last_error"
)

// KnowledgeSource is an ingested document's identity and sync state.
type KnowledgeSource struct {
	ID           string         `json:"id"`
	Type         SourceType     `json:"type"`
	Name         string         `json:"name"`
	Locator      string         `json:"locator"`
	Status       SourceStatus   `json:"status"`
	Version      int            `json:"version"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	OwnerID      string         `json:"owner_id"`
	ProjectID    string         `json:"project_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SourceInput is the input for registering a knowledge source.
type SourceInput struct {
	Type    SourceType `json:"type"`
	Name    string     `json:"name"`
	Locator string     `json:"locator"`
}

// SourceSync is written when an ingestion run finishes.
type SourceSync struct {
	Status   SourceStatus
	Metadata map[string]any
	SyncedAt time.Time
}

// KnowledgeChunk is a contiguous span of a source's text.
// Chunk IDs are not stable across re-syncs.
type KnowledgeChunk struct {
	ID        string         `json:"id"`
	SourceID  string         `json:"source_id"`
	Index     int            `json:"index"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ChunkInput is the input for storing one chunk.
type ChunkInput struct {
	SourceID  string
	Index     int
	Content   string
	Embedding []float32
	Metadata  map[string]any
}
