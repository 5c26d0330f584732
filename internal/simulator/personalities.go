package simulator

import (
	"slices"
	"strings"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

// DefaultPersonality is used when a start request names an unknown one.
const DefaultPersonality = "analytical"

// highCapability agents get extra weight under the intensive strategy.
var highCapability = []string{"gpt-4o", "deepseek-r1", "gemini-2.0-flash", "perplexity-pro"}

var personalities = map[string]domain.Personality{
	"analytical": {
		ID:              "analytical",
		Name:            "Analytical Professional",
		Description:     "Detail-oriented, data-driven, systematic approach",
		PromptStyle:     "Let's analyze this systematically with data and evidence.",
		AgentPreference: []string{"deepseek-r1", "gpt-4o", "mistral-large"},
		Prompts: []string{
			"Let's analyze this systematically with data and evidence.",
			"Can you provide a detailed breakdown of the key factors?",
			"What are the quantifiable metrics we should consider?",
			"Let's examine this from multiple analytical perspectives.",
		},
	},
	"creative": {
		ID:              "creative",
		Name:            "Creative Innovator",
		Description:     "Imaginative, out-of-the-box thinking, innovative solutions",
		PromptStyle:     "Let's explore creative possibilities and innovative approaches.",
		AgentPreference: []string{"gemini-2.0-flash", "perplexity-pro", "llama-3.3-70b"},
		Prompts: []string{
			"Let's explore innovative approaches to this challenge.",
			"What creative solutions haven't been considered yet?",
			"How can we think outside the box on this?",
			"What if we approached this from a completely different angle?",
		},
	},
	"strategic": {
		ID:              "strategic",
		Name:            "Strategic Leader",
		Description:     "Big-picture thinking, long-term planning, business-focused",
		PromptStyle:     "Let's think strategically about long-term implications and opportunities.",
		AgentPreference: []string{"gpt-4o", "command-r-plus", "mistral-large"},
		Prompts: []string{
			"What are the long-term strategic implications?",
			"How does this align with our broader objectives?",
			"What are the competitive advantages we can leverage?",
			"Let's think about the big picture and future opportunities.",
		},
	},
	"practical": {
		ID:              "practical",
		Name:            "Practical Problem-Solver",
		Description:     "Hands-on, implementation-focused, realistic solutions",
		PromptStyle:     "Let's focus on practical, implementable solutions.",
		AgentPreference: []string{"gpt-4-turbo", "qwen-2.5-72b", "deepseek-r1"},
		Prompts: []string{
			"What are the most implementable solutions?",
			"How can we make this work in the real world?",
			"What are the practical steps to move forward?",
			"Let's focus on actionable next steps.",
		},
	},
	"researcher": {
		ID:              "researcher",
		Name:            "Curious Researcher",
		Description:     "Inquisitive, thorough investigation, evidence-based",
		PromptStyle:     "Let's investigate this thoroughly and gather comprehensive insights.",
		AgentPreference: []string{"perplexity-pro", "gemini-pro-1.5", "deepseek-r1"},
		Prompts: []string{
			"What additional research do we need?",
			"Can you provide more evidence to support this?",
			"What are the underlying assumptions we should validate?",
			"Let's investigate this more thoroughly.",
		},
	},
	"consultant": {
		ID:              "consultant",
		Name:            "Expert Consultant",
		Description:     "Professional advice, best practices, industry expertise",
		PromptStyle:     "Based on best practices and industry expertise, let's explore this.",
		AgentPreference: []string{"gpt-4o", "mistral-large", "command-r-plus"},
		Prompts: []string{
			"Based on industry best practices, what would you recommend?",
			"How have similar organizations approached this challenge?",
			"What are the proven methodologies for this situation?",
			"Let's apply professional expertise to this problem.",
		},
	},
}

// Personalities returns every personality ordered by ID.
func Personalities() []domain.Personality {
	out := make([]domain.Personality, 0, len(personalities))
	for _, p := range personalities {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Personality) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func personality(id string) domain.Personality {
	if p, ok := personalities[id]; ok {
		return p
	}
	return personalities[DefaultPersonality]
}
