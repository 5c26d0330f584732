package domain

import "time"

// Mode selects how an orchestration session walks the agent list.
type Mode string

const (
	ModeExpertPanel     Mode = "expert_panel"
	ModeConferenceChain Mode = "conference_chain"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeExpertPanel || m == ModeConferenceChain
}

// SessionStatus is the lifecycle state of an orchestration session.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	// StatusFailed is reserved for sessions that could not run at all. Step
	// failures never move a session here.
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further steps will be appended.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Step is the immutable record of one agent call.
type Step struct {
	Index        int       `json:"index"`
	PairIndex    int       `json:"pair_index"` // -1 outside expert panel mode
	Role         string    `json:"role,omitempty"`
	Agent        Agent     `json:"agent"`
	Prompt       string    `json:"prompt"`
	Output       *string   `json:"output"`
	Error        string    `json:"error,omitempty"`
	PromptTokens int       `json:"prompt_tokens"`
	LatencyMS    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// Succeeded reports whether the agent produced output.
func (s Step) Succeeded() bool {
	return s.Output != nil
}

// Session is one orchestration run.
type Session struct {
	ID             string        `json:"id"`
	Mode           Mode          `json:"mode"`
	UserID         string        `json:"user_id,omitempty"`
	Prompt         string        `json:"prompt"`
	PlannedSteps   int           `json:"planned_steps"`
	Steps          []Step        `json:"steps"`
	CurrentContext string        `json:"current_context,omitempty"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Steps = make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		if st.Output != nil {
			o := *st.Output
			st.Output = &o
		}
		out.Steps[i] = st
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// FailedSteps counts steps with no output.
func (s *Session) FailedSteps() int {
	n := 0
	for _, st := range s.Steps {
		if !st.Succeeded() {
			n++
		}
	}
	return n
}

// PartialFailure is true for a completed session where at least one step failed.
func (s *Session) PartialFailure() bool {
	return s.Status == StatusCompleted && s.FailedSteps() > 0
}

// SuccessfulSteps returns the steps that produced output, in order.
func (s *Session) SuccessfulSteps() []Step {
	out := make([]Step, 0, len(s.Steps))
	for _, st := range s.Steps {
		if st.Succeeded() {
			out = append(out, st)
		}
	}
	return out
}

// Append records step. A successful conference-chain step becomes the
// context threaded into the next prompt; a failed one leaves it unchanged.
func (s *Session) Append(step Step) {
	s.Steps = append(s.Steps, step)
	if s.Mode == ModeConferenceChain && step.Succeeded() {
		s.CurrentContext = *step.Output
	}
}
