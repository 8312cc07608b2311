package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// CreateConversation starts a conversation owned by the scope's principal.
func (d *DB) CreateConversation(ctx context.Context, scope models.Scope, title string) (*models.Conversation, error) {
	c := &models.Conversation{ID: d.newID(), OwnerID: scope.OwnerID, Title: title}
	now := d.timestamp()
	c.CreatedAt = fromNanos(now)
	if _, err := d.db.ExecContext(ctx,
		"INSERT INTO conversations (id, owner_id, title, created_at) VALUES (?, ?, ?, ?)",
		c.ID, c.OwnerID, c.Title, now); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

// GetConversation returns a conversation owned by the scope's principal.
func (d *DB) GetConversation(ctx context.Context, scope models.Scope, id string) (*models.Conversation, error) {
	var (
		c       models.Conversation
		created int64
	)
	err := d.db.QueryRowContext(ctx,
		"SELECT id, owner_id, title, created_at FROM conversations WHERE id = ? AND owner_id = ?",
		id, scope.OwnerID).Scan(&c.ID, &c.OwnerID, &c.Title, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.CreatedAt = fromNanos(created)
	return &c, nil
}

// AddMessage appends a message to a conversation.
func (d *DB) AddMessage(ctx context.Context, conversationID, role, content string) (*models.Message, error) {
	m := &models.Message{ID: d.newID(), ConversationID: conversationID, Role: role, Content: content}
	now := d.timestamp()
	m.CreatedAt = fromNanos(now)
	if _, err := d.db.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		m.ID, m.ConversationID, m.Role, m.Content, now); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// RecentMessages returns the latest messages in chronological order.
func (d *DB) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, conversation_id, role, content, created_at FROM (
			SELECT * FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m       models.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromNanos(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMemoryRefs writes provenance links from a message to memories.
func (d *DB) AddMemoryRefs(ctx context.Context, refs []models.MemoryRef) error {
	return d.insertRefs(ctx, "memory_refs", "memory_id", len(refs), func(i int) (string, string, *float64) {
		return refs[i].MessageID, refs[i].MemoryID, refs[i].Score
	})
}

// AddKnowledgeRefs writes provenance links from a message to chunks.
func (d *DB) AddKnowledgeRefs(ctx context.Context, refs []models.KnowledgeRef) error {
	return d.insertRefs(ctx, "knowledge_refs", "chunk_id", len(refs), func(i int) (string, string, *float64) {
		return refs[i].MessageID, refs[i].ChunkID, refs[i].Score
	})
}

func (d *DB) insertRefs(ctx context.Context, table, column string, n int, at func(int) (string, string, *float64)) error {
	if n == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := d.timestamp()
	for i := range n {
		messageID, targetID, score := at(i)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (message_id, "+column+", score, created_at) VALUES (?, ?, ?, ?)",
			messageID, targetID, score, now); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// MessageRefs returns the provenance links of a message.
func (d *DB) MessageRefs(ctx context.Context, messageID string) ([]models.MemoryRef, []models.KnowledgeRef, error) {
	memRows, err := d.db.QueryContext(ctx,
		"SELECT memory_id, score, created_at FROM memory_refs WHERE message_id = ? ORDER BY rowid", messageID)
	if err != nil {
		return nil, nil, fmt.Errorf("memory refs: %w", err)
	}
	var memRefs []models.MemoryRef
	for memRows.Next() {
		var (
			r       models.MemoryRef
			score   sql.NullFloat64
			created int64
		)
		if err := memRows.Scan(&r.MemoryID, &score, &created); err != nil {
			memRows.Close()
			return nil, nil, fmt.Errorf("scan memory ref: %w", err)
		}
		r.MessageID = messageID
		r.Score = nullFloat(score)
		r.CreatedAt = fromNanos(created)
		memRefs = append(memRefs, r)
	}
	memRows.Close()
	if err := memRows.Err(); err != nil {
		return nil, nil, err
	}

	chunkRows, err := d.db.QueryContext(ctx,
		"SELECT chunk_id, score, created_at FROM knowledge_refs WHERE message_id = ? ORDER BY rowid", messageID)
	if err != nil {
		return nil, nil, fmt.Errorf("knowledge refs: %w", err)
	}
	defer chunkRows.Close()

	var chunkRefs []models.KnowledgeRef
	for chunkRows.Next() {
		var (
			r       models.KnowledgeRef
			score   sql.NullFloat64
			created int64
		)
		if err := chunkRows.Scan(&r.ChunkID, &score, &created); err != nil {
			return nil, nil, fmt.Errorf("scan knowledge ref: %w", err)
		}
		r.MessageID = messageID
		r.Score = nullFloat(score)
		r.CreatedAt = fromNanos(created)
		chunkRefs = append(chunkRefs, r)
	}
	return memRefs, chunkRefs, chunkRows.Err()
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}
