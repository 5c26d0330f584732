package orchestrator

import (
	"fmt"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

func systemPrompt(agent domain.Agent) string {
	return fmt.Sprintf("You are an AI specialist in %s. Provide insightful, collaborative analysis. "+
		"Build upon previous insights when provided. Be direct, actionable, and avoid excessive disclaimers. "+
		"Focus on delivering value.", agent.Specialty)
}

// panelFollowUpPrompt is what agent B of a pair sees once A has answered.
func panelFollowUpPrompt(prompt, colleague string) string {
	return fmt.Sprintf("ORIGINAL PROMPT: %s\n\nCOLLEAGUE'S ANALYSIS: %s\n\n"+
		"Provide your own expert analysis and build upon or challenge the colleague's insights:", prompt, colleague)
}

// chainPrompt threads the latest successful output into the next hop.
func chainPrompt(prompt, previous string, agent domain.Agent) string {
	return fmt.Sprintf("ORIGINAL PROMPT: %s\n\nPREVIOUS EXPERT'S INSIGHT: %s\n\n"+
		"Build upon this analysis with your %s expertise:", prompt, previous, agent.Specialty)
}

func messagesFor(agent domain.Agent, prompt string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt(agent)},
		{Role: domain.RoleUser, Content: prompt},
	}
}
