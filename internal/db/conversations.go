package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// CreateConversation starts a conversation owned by the scope's principal.
func (c *Client) CreateConversation(ctx context.Context, scope models.Scope, title string) (*models.Conversation, error) {
	rows, err := queryRows[conversationRow](ctx, c, `
		CREATE type::record("conversation", $id) SET
			owner_id = $owner,
			title = $title,
			created_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": newID(), "owner": scope.OwnerID, "title": title})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return firstConversation(rows, "create conversation")
}

// GetConversation returns a conversation owned by the scope's principal.
func (c *Client) GetConversation(ctx context.Context, scope models.Scope, id string) (*models.Conversation, error) {
	rows, err := queryRows[conversationRow](ctx, c,
		`SELECT * FROM type::record("conversation", $id) WHERE owner_id = $owner`,
		map[string]any{"id": id, "owner": scope.OwnerID})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return firstConversation(rows, "conversation "+id)
}

func firstConversation(rows []conversationRow, op string) (*models.Conversation, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	id, err := recordIDString(rows[0].ID)
	if err != nil {
		return nil, err
	}
	return &models.Conversation{
		ID:        id,
		OwnerID:   rows[0].OwnerID,
		Title:     rows[0].Title,
		CreatedAt: rows[0].CreatedAt,
	}, nil
}

func (r messageRow) model() (models.Message, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.Message{}, err
	}
	conv, err := recordIDString(r.Conversation)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{ID: id, ConversationID: conv, Role: r.Role, Content: r.Content, CreatedAt: r.CreatedAt}, nil
}

// AddMessage appends a message to a conversation.
func (c *Client) AddMessage(ctx context.Context, conversationID, role, content string) (*models.Message, error) {
	rows, err := queryRows[messageRow](ctx, c, `
		CREATE type::record("message", $id) SET
			conversation = type::record("conversation", $conversation),
			role = $role,
			content = $content,
			created_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": newID(), "conversation": conversationID, "role": role, "content": content})
	if err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("add message: no result returned")
	}
	m, err := rows[0].model()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecentMessages returns the latest messages in chronological order.
func (c *Client) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := queryRows[messageRow](ctx, c, `
		SELECT * FROM (
			SELECT * FROM message
			WHERE conversation = type::record("conversation", $conversation)
			ORDER BY created_at DESC LIMIT $limit
		) ORDER BY created_at ASC
	`, map[string]any{"conversation": conversationID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	out := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// refInsertSQL verifies every referenced message exists, then writes the links in one request.
const refInsertSQL = `
	LET $wanted = array::distinct($rows.message_id);
	LET $found = (SELECT VALUE id FROM message WHERE id IN $wanted.map(|$m| type::record("message", $m)));
	IF array::len($found) != array::len($wanted) {
		THROW "` + errMissingMessage + `"
	};
	FOR $r IN $rows {
		CREATE %s SET
			message = type::record("message", $r.message_id),
			%s = $r.target,
			score = $r.score,
			created_at = time::now();
	};
`

func refRowVars(messageID, target string, score *float64) map[string]any {
	row := map[string]any{"message_id": messageID, "target": target}
	// Leaving score out yields NONE, which option<float> accepts.
	if score != nil {
		row["score"] = *score
	}
	return row
}

// AddMemoryRefs writes provenance links from a message to memories.
func (c *Client) AddMemoryRefs(ctx context.Context, refs []models.MemoryRef) error {
	if len(refs) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(refs))
	for i, r := range refs {
		rows[i] = refRowVars(r.MessageID, r.MemoryID, r.Score)
	}
	if err := c.exec(ctx, fmt.Sprintf(refInsertSQL, "memory_ref", "memory_id"), map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("add memory refs: %w", err)
	}
	return nil
}

// AddKnowledgeRefs writes provenance links from a message to chunks.
func (c *Client) AddKnowledgeRefs(ctx context.Context, refs []models.KnowledgeRef) error {
	if len(refs) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(refs))
	for i, r := range refs {
		rows[i] = refRowVars(r.MessageID, r.ChunkID, r.Score)
	}
	if err := c.exec(ctx, fmt.Sprintf(refInsertSQL, "knowledge_ref", "chunk_id"), map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("add knowledge refs: %w", err)
	}
	return nil
}

// MessageRefs returns the provenance links of a message.
func (c *Client) MessageRefs(ctx context.Context, messageID string) ([]models.MemoryRef, []models.KnowledgeRef, error) {
	vars := map[string]any{"message": messageID}
	memRows, err := queryRows[refRow](ctx, c,
		`SELECT * FROM memory_ref WHERE message = type::record("message", $message) ORDER BY created_at ASC`, vars)
	if err != nil {
		return nil, nil, fmt.Errorf("memory refs: %w", err)
	}
	chunkRows, err := queryRows[refRow](ctx, c,
		`SELECT * FROM knowledge_ref WHERE message = type::record("message", $message) ORDER BY created_at ASC`, vars)
	if err != nil {
		return nil, nil, fmt.Errorf("knowledge refs: %w", err)
	}

	memRefs := make([]models.MemoryRef, len(memRows))
	for i, r := range memRows {
		memRefs[i] = models.MemoryRef{MessageID: messageID, MemoryID: r.MemoryID, Score: r.Score, CreatedAt: r.CreatedAt}
	}
	chunkRefs := make([]models.KnowledgeRef, len(chunkRows))
	for i, r := range chunkRows {
		chunkRefs[i] = models.KnowledgeRef{MessageID: messageID, ChunkID: r.ChunkID, Score: r.Score, CreatedAt: r.CreatedAt}
	}
	return memRefs, chunkRefs, nil
}
