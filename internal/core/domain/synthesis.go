package domain

import "time"

// SynthesisType selects the report style.
type SynthesisType string

const (
	SynthesisExecutive     SynthesisType = "executive"
	SynthesisTechnical     SynthesisType = "technical"
	SynthesisCreative      SynthesisType = "creative"
	SynthesisBusiness      SynthesisType = "business"
	SynthesisComprehensive SynthesisType = "comprehensive"
)

// SynthesisTypes lists the single-call report styles in the order the
// comprehensive report runs them.
var SynthesisTypes = []SynthesisType{
	SynthesisExecutive,
	SynthesisTechnical,
	SynthesisCreative,
	SynthesisBusiness,
}

// SynthesisReport is a write-once summary of a completed session.
type SynthesisReport struct {
	Type            SynthesisType `json:"type"`
	SessionID       string        `json:"session_id"`
	Content         string        `json:"content"`
	SourceAgent     string        `json:"source_agent"`
	SourceModel     string        `json:"source_model"`
	SourceResponses int           `json:"source_responses"`
	CreatedAt       time.Time     `json:"created_at"`
}

// MetaAnalysis describes the inputs folded into a comprehensive report.
type MetaAnalysis struct {
	TotalExperts  int  `json:"total_experts"`
	Mode          Mode `json:"mode"`
	ReportsCount  int  `json:"reports_count"`
	FailedSteps   int  `json:"failed_steps"`
	OriginalSteps int  `json:"original_steps"`
}

// ComprehensiveReport aggregates every report style for one session.
type ComprehensiveReport struct {
	SessionID string                             `json:"session_id"`
	Prompt    string                             `json:"prompt"`
	Reports   map[SynthesisType]*SynthesisReport `json:"reports"`
	Meta      MetaAnalysis                       `json:"meta_analysis"`
	CreatedAt time.Time                          `json:"created_at"`
}
