// Package registry holds the immutable table of agents available to the
// orchestrator and the chat proxy.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/pkg/config"
)

// ErrAgentNotFound is matched by errors.Is on a *NotFoundError.
var ErrAgentNotFound = errors.New("agent not found")

// NotFoundError names the unknown agent and the identifiers that are valid.
type NotFoundError struct {
	ID    string
	Valid []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown agent %q (valid: %s)", e.ID, strings.Join(e.Valid, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrAgentNotFound
}

// Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	agents []domain.Agent
	byID   map[string]int
	ids    []string
}

// New builds a registry from agents, rejecting empty or duplicate identifiers.
func New(agents []domain.Agent) (*Registry, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("registry requires at least one agent")
	}

	r := &Registry{
		agents: make([]domain.Agent, len(agents)),
		byID:   make(map[string]int, len(agents)),
	}
	copy(r.agents, agents)

	for i, a := range r.agents {
		if a.ID == "" || a.Model == "" {
			return nil, fmt.Errorf("agent %d: id and model are required", i)
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID)
		}
		r.byID[a.ID] = i
		r.ids = append(r.ids, a.ID)
	}
	sort.Strings(r.ids)

	return r, nil
}

// FromConfig uses the configured agent table, or the built-in one when none is configured.
func FromConfig(cfgs []config.AgentConfig) (*Registry, error) {
	if len(cfgs) == 0 {
		return New(Builtin())
	}

	agents := make([]domain.Agent, 0, len(cfgs))
	for _, c := range cfgs {
		maxTokens := c.MaxTokens
		if maxTokens == 0 {
			maxTokens = 4096
		}
		agents = append(agents, domain.Agent{
			ID:        c.ID,
			Name:      c.Name,
			Model:     c.Model,
			Category:  c.Category,
			Specialty: c.Specialty,
			CostPer1K: c.CostPer1K,
			MaxTokens: maxTokens,
		})
	}
	return New(agents)
}

// Resolve looks up an agent by identifier.
func (r *Registry) Resolve(id string) (domain.Agent, error) {
	i, ok := r.byID[id]
	if !ok {
		return domain.Agent{}, &NotFoundError{ID: id, Valid: r.IDs()}
	}
	return r.agents[i], nil
}

// List returns the agents in registry order.
func (r *Registry) List() []domain.Agent {
	out := make([]domain.Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// At returns the agent at position i in registry order.
func (r *Registry) At(i int) domain.Agent {
	return r.agents[i]
}

func (r *Registry) Len() int {
	return len(r.agents)
}

// IDs returns the sorted agent identifiers.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}
