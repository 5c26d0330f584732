package synthesis

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

// Fixed synthesis agents, one per report style.
var agents = map[domain.SynthesisType]domain.Agent{
	domain.SynthesisExecutive: {
		ID:        "synthesis-executive",
		Name:      "GPT-4o",
		Model:     "openai/gpt-4o",
		Specialty: "Executive summarization and strategic insights",
	},
	domain.SynthesisTechnical: {
		ID:        "synthesis-technical",
		Name:      "DeepSeek R1",
		Model:     "deepseek/deepseek-r1",
		Specialty: "Technical analysis and deep reasoning synthesis",
	},
	domain.SynthesisCreative: {
		ID:        "synthesis-creative",
		Name:      "Gemini Pro 1.5",
		Model:     "google/gemini-pro-1.5",
		Specialty: "Creative synthesis and innovative connections",
	},
	domain.SynthesisBusiness: {
		ID:        "synthesis-business",
		Name:      "Command R+",
		Model:     "cohere/command-r-plus",
		Specialty: "Business analysis and actionable recommendations",
	},
}

// AgentFor returns the agent that writes reports of type t.
func AgentFor(t domain.SynthesisType) (domain.Agent, bool) {
	a, ok := agents[t]
	return a, ok
}

const executiveRequirements = `EXECUTIVE SUMMARY REQUIREMENTS:
Create a comprehensive executive summary that includes:

1. KEY INSIGHTS SYNTHESIS
   - Most important findings across all experts
   - Common themes and patterns identified
   - Contradictions or differing viewpoints

2. STRATEGIC RECOMMENDATIONS
   - Top 3-5 actionable recommendations
   - Priority ranking with rationale
   - Implementation considerations

3. EXPERT CONSENSUS ANALYSIS
   - Areas of strong agreement
   - Points of divergence and why
   - Confidence levels in recommendations

4. NEXT STEPS
   - Immediate actions to take
   - Further analysis needed
   - Success metrics to track

Format as a professional executive summary suitable for decision-makers.
Be concise but comprehensive. Focus on actionable insights.`

const technicalRequirements = `TECHNICAL SYNTHESIS REQUIREMENTS:
Provide a deep technical analysis that includes:

1. METHODOLOGY ANALYSIS
   - Approaches suggested by different experts
   - Technical feasibility assessment
   - Resource requirements and constraints

2. IMPLEMENTATION ROADMAP
   - Step-by-step technical implementation
   - Dependencies and prerequisites
   - Risk mitigation strategies

3. TECHNICAL TRADE-OFFS
   - Pros and cons of different approaches
   - Performance vs complexity considerations
   - Scalability implications

4. EXPERT TECHNICAL CONSENSUS
   - Technical solutions with highest expert agreement
   - Areas requiring further technical investigation
   - Alternative technical approaches to consider

Focus on technical depth, implementation details, and engineering considerations.`

const creativeRequirements = `CREATIVE SYNTHESIS REQUIREMENTS:
Generate innovative insights by identifying:

1. UNEXPECTED CONNECTIONS
   - Novel relationships between expert insights
   - Cross-domain applications and analogies
   - Innovative combinations of ideas

2. CREATIVE OPPORTUNITIES
   - Unexplored possibilities mentioned by experts
   - Creative solutions that bridge different approaches
   - Innovative applications of suggested concepts

3. FUTURE POSSIBILITIES
   - Long-term implications of expert recommendations
   - Emerging trends and opportunities
   - Disruptive potential of suggested approaches

4. CREATIVE SYNTHESIS
   - Unique insights that emerge from combining expert perspectives
   - Creative frameworks that unify different viewpoints
   - Innovative next steps not explicitly mentioned

Focus on creativity, innovation, and discovering new possibilities.`

const businessRequirements = `BUSINESS SYNTHESIS REQUIREMENTS:
Provide business-focused analysis including:

1. BUSINESS IMPACT ANALYSIS
   - Revenue implications of expert recommendations
   - Cost-benefit analysis of suggested approaches
   - Market opportunity assessment

2. COMPETITIVE ADVANTAGE
   - How recommendations create competitive differentiation
   - Market positioning implications
   - Barriers to entry for competitors

3. IMPLEMENTATION BUSINESS CASE
   - ROI projections for recommended actions
   - Resource allocation requirements
   - Timeline and milestone considerations

4. RISK ASSESSMENT
   - Business risks of recommended approaches
   - Mitigation strategies for identified risks
   - Contingency planning considerations

5. STAKEHOLDER IMPACT
   - How recommendations affect different stakeholders
   - Change management considerations
   - Communication strategy requirements

Focus on business value, profitability, and strategic business implications.`

var requirements = map[domain.SynthesisType]string{
	domain.SynthesisExecutive: executiveRequirements,
	domain.SynthesisTechnical: technicalRequirements,
	domain.SynthesisCreative:  creativeRequirements,
	domain.SynthesisBusiness:  businessRequirements,
}

func systemPrompt(agent domain.Agent) string {
	return fmt.Sprintf("You are an expert in %s. Provide comprehensive, insightful analysis that synthesizes "+
		"multiple expert perspectives. Be thorough, actionable, and professional.", agent.Specialty)
}

// buildPrompt embeds the transcript in the template for t.
func buildPrompt(t domain.SynthesisType, sess *domain.Session, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL PROMPT: %s\n\n", sess.Prompt)
	if t == domain.SynthesisExecutive {
		fmt.Fprintf(&b, "ANALYSIS MODE: %s\n\n", modeTitle(sess.Mode))
		b.WriteString("ALL AI EXPERT RESPONSES:\n")
	} else {
		b.WriteString("ALL EXPERT RESPONSES:\n")
	}
	b.WriteString(transcript)
	b.WriteString("\n")
	b.WriteString(requirements[t])
	b.WriteString("\n")
	return b.String()
}

func modeTitle(m domain.Mode) string {
	words := strings.Split(string(m), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Transcript renders the successful steps of sess. Failed steps are left out.
func Transcript(sess *domain.Session) string {
	var b strings.Builder

	if sess.Mode == domain.ModeExpertPanel {
		pairs := map[int][2]*domain.Step{}
		var order []int
		for i := range sess.Steps {
			st := &sess.Steps[i]
			if !st.Succeeded() {
				continue
			}
			p, seen := pairs[st.PairIndex]
			if !seen {
				order = append(order, st.PairIndex)
			}
			if st.Role == "B" {
				p[1] = st
			} else {
				p[0] = st
			}
			pairs[st.PairIndex] = p
		}
		for _, idx := range order {
			p := pairs[idx]
			fmt.Fprintf(&b, "\n--- EXPERT PAIR %d ---\n", idx+1)
			for i, label := range []string{"A", "B"} {
				if st := p[i]; st != nil {
					fmt.Fprintf(&b, "EXPERT %s - %s (%s):\n%s\n\n", label, st.Agent.Name, st.Agent.Specialty, *st.Output)
				}
			}
		}
		return b.String()
	}

	for _, st := range sess.Steps {
		if !st.Succeeded() {
			continue
		}
		fmt.Fprintf(&b, "\n--- AGENT %d: %s ---\n", st.Index+1, st.Agent.Name)
		fmt.Fprintf(&b, "Specialty: %s\n", st.Agent.Specialty)
		fmt.Fprintf(&b, "Response: %s\n\n", *st.Output)
	}
	return b.String()
}
