package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

const conversationColumns = `id, session_id, user_id, agent_id, user_message, agent_reply, created_at`

// SaveConversation records one answered chat exchange.
func (s *Store) SaveConversation(ctx context.Context, c *domain.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := s.dialect.Rebind(`INSERT INTO conversations (` + conversationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.SessionID, c.UserID, c.AgentID, c.UserMessage, c.AgentReply, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// ListConversations returns up to limit exchanges for userID, newest first.
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	var out []*domain.Conversation
	query := s.dialect.Rebind(`SELECT ` + conversationColumns + ` FROM conversations
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return out, nil
}
