// Package models defines data structures for the Groundwork grounding stores.
package models

import "time"

// MemoryType classifies a memory.
type MemoryType string

const (
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeProcedure  MemoryType = "procedure"
	MemoryTypeGoal       MemoryType = "goal"
	MemoryTypeContext    MemoryType = "context"
)

// MemoryStatus is the review lifecycle of a memory.
type MemoryStatus string

const (
	MemoryStatusCandidate MemoryStatus = "candidate"
	MemoryStatusApproved  MemoryStatus = "approved"
	MemoryStatusRejected  MemoryStatus = "rejected"
)

// Memory is a unit of durable personal or organizational knowledge.
// A memory without an embedding is valid and only reachable by keyword search.
type Memory struct {
	ID         string       `json:"id"`
	Type       MemoryType   `json:"type"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	Confidence float64      `json:"confidence"`
	Pinned     bool         `json:"pinned"`
	Active     bool         `json:"active"`
	Status     MemoryStatus `json:"status"`
	Embedding  []float32    `json:"embedding,omitempty"`
	OwnerID    string       `json:"owner_id"`
	ProjectID  string       `json:"project_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Retrievable reports whether the memory may be used for grounding.
func (m Memory) Retrievable() bool {
	return m.Active && m.Status != MemoryStatusRejected
}

// EmbeddingText is the text an embedding is computed from.
func (m Memory) EmbeddingText() string {
	if m.Title == "" {
		return m.Content
	}
	return m.Title + "\n" + m.Content
}

// MemoryInput is the input for creating a memory.
type MemoryInput struct {
	Type       MemoryType `json:"type"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Confidence float64    `json:"confidence"`
	Pinned     bool       `json:"pinned"`
}

// MemoryUpdate holds optional changes to a memory. Nil fields are left as is.
type MemoryUpdate struct {
	Title      *string  `json:"title,omitempty"`
	Content    *string  `json:"content,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Pinned     *bool    `json:"pinned,omitempty"`
}
