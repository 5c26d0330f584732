package frontdoor

import (
	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/simulator"
)

type chatRequest struct {
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Response         string       `json:"response"`
	Agent            domain.Agent `json:"agent"`
	PromptTokens     int          `json:"prompt_tokens"`
	EstimatedCost    float64      `json:"estimated_cost"`
	CreditsRemaining int64        `json:"credits_remaining"`
	DailyRemaining   int64        `json:"daily_remaining"`
}

type orchestrationRequest struct {
	Prompt    string      `json:"prompt"`
	Mode      domain.Mode `json:"mode"`
	MaxAgents int         `json:"max_agents,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	UserID    string      `json:"user_id"`
	Wait      bool        `json:"wait,omitempty"`
}

// sessionResponse adds derived progress fields to a session snapshot.
type sessionResponse struct {
	*domain.Session
	CurrentStep    int  `json:"current_step"`
	FailedSteps    int  `json:"failed_steps"`
	PartialFailure bool `json:"partial_failure"`
}

func newSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		Session:        s,
		CurrentStep:    len(s.Steps),
		FailedSteps:    s.FailedSteps(),
		PartialFailure: s.PartialFailure(),
	}
}

type accountResponse struct {
	*domain.Account
	DailyLimit int64 `json:"daily_limit"`
}

type checkoutRequest struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
}

// simulationResponse flattens a started simulation for clients.
type simulationResponse struct {
	*domain.Simulation
	PersonalityName        string `json:"personality_name"`
	PersonalityDescription string `json:"personality_description"`
	MaxRounds              int    `json:"max_rounds"`
	CreditsRemaining       int64  `json:"credits_remaining"`
	DailyRemaining         int64  `json:"daily_remaining"`
	Plan                   string `json:"plan"`
}

func newSimulationResponse(s *simulator.Started) simulationResponse {
	return simulationResponse{
		Simulation:             s.Simulation,
		PersonalityName:        s.Personality.Name,
		PersonalityDescription: s.Personality.Description,
		MaxRounds:              s.MaxRounds,
		CreditsRemaining:       s.Account.Credits,
		DailyRemaining:         s.Account.DailyRemaining,
		Plan:                   s.Account.Plan,
	}
}
