package domain

// Agent describes one configured upstream model and its display metadata.
// Agents are loaded once at start-up and never mutated.
type Agent struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Model     string  `json:"model"`
	Category  string  `json:"category,omitempty"`
	Specialty string  `json:"specialty"`
	CostPer1K float64 `json:"cost_per_1k"`
	MaxTokens int     `json:"max_tokens"`
}

// Role is the chat message author role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat-completion message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
