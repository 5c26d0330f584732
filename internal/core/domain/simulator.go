package domain

import "time"

// Strategy decides which agents a simulated user may pick each round.
type Strategy string

const (
	StrategyBalanced  Strategy = "balanced"
	StrategyFocused   Strategy = "focused"
	StrategyAdaptive  Strategy = "adaptive"
	StrategyIntensive Strategy = "intensive"
)

// Strategies lists the accepted strategies.
var Strategies = []Strategy{StrategyBalanced, StrategyFocused, StrategyAdaptive, StrategyIntensive}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	for _, v := range Strategies {
		if s == v {
			return true
		}
	}
	return false
}

// Personality is the voice a simulated user speaks in.
type Personality struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	PromptStyle     string   `json:"prompt_style"`
	AgentPreference []string `json:"agent_preference"`
	Prompts         []string `json:"-"`
}

// Simulation is a paid human-simulator session. Rounds is already clamped
// to the plan's limit.
type Simulation struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Mode         string    `json:"mode" db:"mode"`
	Personality  string    `json:"personality" db:"personality"`
	Strategy     Strategy  `json:"strategy" db:"strategy"`
	Instructions string    `json:"instructions,omitempty" db:"instructions"`
	Prompt       string    `json:"prompt" db:"prompt"`
	Rounds       int       `json:"rounds" db:"rounds"`
	Cost         int64     `json:"cost" db:"cost"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
