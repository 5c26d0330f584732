package domain

import "time"

// Conversation is one answered chat exchange.
type Conversation struct {
	ID          string    `json:"id" db:"id"`
	SessionID   string    `json:"session_id,omitempty" db:"session_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	AgentID     string    `json:"agent_id" db:"agent_id"`
	UserMessage string    `json:"user_message" db:"user_message"`
	AgentReply  string    `json:"agent_reply" db:"agent_reply"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
