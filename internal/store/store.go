// Package store defines the persistence contract shared by the SurrealDB and SQLite backends.
package store

import (
	"context"
	"errors"

	"github.com/raphaelgruber/groundwork/internal/models"
)

// ErrNotFound is returned when a record does not exist or is outside the caller's scope.
var ErrNotFound = errors.New("not found")

// Store is the full persistence surface used by the services.
type Store interface {
	MemoryStore
	SourceStore
	ChunkStore
	ConversationStore
	RefStore

	Close(ctx context.Context) error
}

// MemoryStore persists memories. Search methods only return active, non-rejected
// memories inside the scope.
type MemoryStore interface {
	CreateMemory(ctx context.Context, scope models.Scope, in models.MemoryInput) (*models.Memory, error)
	GetMemory(ctx context.Context, scope models.Scope, id string) (*models.Memory, error)

	// UpdateMemory applies upd. A changed title or content clears the stored embedding.
	UpdateMemory(ctx context.Context, scope models.Scope, id string, upd models.MemoryUpdate) (*models.Memory, error)
	SetMemoryStatus(ctx context.Context, scope models.Scope, id string, status models.MemoryStatus) error
	SetMemoryActive(ctx context.Context, scope models.Scope, id string, active bool) error
	SetMemoryEmbedding(ctx context.Context, id string, embedding []float32) error

	SearchMemoriesByVector(ctx context.Context, scope models.Scope, embedding []float32, limit int) ([]models.MemoryHit, error)

	// SearchMemoriesByKeyword matches any keyword as a case-insensitive substring of title or
	// content, ordered pinned first, then confidence, then most recently updated.
	SearchMemoriesByKeyword(ctx context.Context, scope models.Scope, keywords []string, limit int) ([]models.MemoryHit, error)

	// MemoriesWithoutEmbedding lists unembedded memories, oldest first.
	MemoriesWithoutEmbedding(ctx context.Context, scope models.Scope, limit int) ([]models.EmbeddingCandidate, error)
}

// SourceStore persists knowledge sources.
type SourceStore interface {
	CreateSource(ctx context.Context, scope models.Scope, in models.SourceInput) (*models.KnowledgeSource, error)
	GetSource(ctx context.Context, scope models.Scope, id string) (*models.KnowledgeSource, error)
	ListSources(ctx context.Context, scope models.Scope) ([]models.KnowledgeSource, error)
	SetSourceStatus(ctx context.Context, id string, status models.SourceStatus) error

	// FinishSourceSync records the outcome of an ingestion run and bumps the version.
	FinishSourceSync(ctx context.Context, id string, sync models.SourceSync) error
}

// ChunkStore persists knowledge chunks. Search methods only return chunks of ready
// sources inside the scope.
type ChunkStore interface {
	DeleteChunks(ctx context.Context, sourceID string) (int, error)
	InsertChunk(ctx context.Context, in models.ChunkInput) (*models.KnowledgeChunk, error)
	ListChunks(ctx context.Context, sourceID string) ([]models.KnowledgeChunk, error)
	SetChunkEmbedding(ctx context.Context, id string, embedding []float32) error

	SearchChunksByVector(ctx context.Context, scope models.Scope, embedding []float32, limit int) ([]models.ChunkHit, error)
	SearchChunksByKeyword(ctx context.Context, scope models.Scope, keywords []string, limit int) ([]models.ChunkHit, error)

	// ChunksWithoutEmbedding lists unembedded chunks, oldest first.
	ChunksWithoutEmbedding(ctx context.Context, scope models.Scope, limit int) ([]models.EmbeddingCandidate, error)
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, scope models.Scope, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, scope models.Scope, id string) (*models.Conversation, error)
	AddMessage(ctx context.Context, conversationID, role, content string) (*models.Message, error)

	// RecentMessages returns up to limit latest messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

// RefStore persists provenance links. The referenced message must already exist.
type RefStore interface {
	AddMemoryRefs(ctx context.Context, refs []models.MemoryRef) error
	AddKnowledgeRefs(ctx context.Context, refs []models.KnowledgeRef) error
	MessageRefs(ctx context.Context, messageID string) ([]models.MemoryRef, []models.KnowledgeRef, error)
}
