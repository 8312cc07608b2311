package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a persistent chat session owned by one principal.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single chat message within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// MemoryRef links an assistant message to a memory it was grounded in.
type MemoryRef struct {
	MessageID string    `json:"message_id"`
	MemoryID  string    `json:"memory_id"`
	Score     *float64  `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeRef links an assistant message to a knowledge chunk it was grounded in.
type KnowledgeRef struct {
	MessageID string    `json:"message_id"`
	ChunkID   string    `json:"chunk_id"`
	Score     *float64  `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
