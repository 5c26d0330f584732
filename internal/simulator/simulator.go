// Package simulator runs human-simulator sessions: a paid mode where a
// simulated user with a chosen personality steers a multi-round conversation
// and picks which agent answers each round.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
	"github.com/tjfontaine/promptlink-gateway/internal/registry"
)

// Modes a simulated conversation can run in.
var Modes = []string{"agent_a", "agent_b", "dual"}

// Ledger is the slice of *ledger.Ledger the simulator needs.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (*domain.Account, error)
	Plan(id string) (domain.Plan, error)
	Consume(ctx context.Context, userID string, amount int64) (*domain.Account, error)
}

// Config prices a session at BaseCost + RoundCost per round.
type Config struct {
	BaseCost      int64
	RoundCost     int64
	DefaultRounds int
	RoundsCap     int
}

// DefaultConfig returns the stock pricing.
func DefaultConfig() Config {
	return Config{BaseCost: 50, RoundCost: 10, DefaultRounds: 15, RoundsCap: 50}
}

// Cost is the credit price of a session with the given rounds.
func (c Config) Cost(rounds int) int64 {
	return c.BaseCost + c.RoundCost*int64(rounds)
}

// StartRequest opens a session.
type StartRequest struct {
	UserID       string          `json:"user_id"`
	Mode         string          `json:"mode,omitempty"`
	Prompt       string          `json:"prompt"`
	Rounds       int             `json:"rounds,omitempty"`
	Strategy     domain.Strategy `json:"strategy,omitempty"`
	Personality  string          `json:"personality,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
}

// Started is the result of a successful Start.
type Started struct {
	Simulation  *domain.Simulation `json:"simulation"`
	Personality domain.Personality `json:"personality"`
	MaxRounds   int                `json:"max_rounds"`
	Account     *domain.Account    `json:"account"`
}

// RoundRequest asks for the next simulated turn.
type RoundRequest struct {
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id,omitempty"`
	Round     int              `json:"current_round"`
	History   []domain.Message `json:"conversation_history,omitempty"`
}

// Turn is one simulated user turn: who to ask and what to say.
type Turn struct {
	SessionID   string          `json:"session_id"`
	Round       int             `json:"round"`
	Agent       domain.Agent    `json:"agent"`
	HumanPrompt string          `json:"human_prompt"`
	Personality string          `json:"personality"`
	Strategy    domain.Strategy `json:"strategy"`
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithConfig overrides DefaultConfig. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Simulator) {
		def := DefaultConfig()
		if cfg.BaseCost <= 0 {
			cfg.BaseCost = def.BaseCost
		}
		if cfg.RoundCost <= 0 {
			cfg.RoundCost = def.RoundCost
		}
		if cfg.DefaultRounds <= 0 {
			cfg.DefaultRounds = def.DefaultRounds
		}
		if cfg.RoundsCap <= 0 {
			cfg.RoundsCap = def.RoundsCap
		}
		s.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// WithRand sets the source used for agent and prompt picks.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) {
		s.rand = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// Simulator starts sessions and plays their rounds.
type Simulator struct {
	registry *registry.Registry
	ledger   Ledger
	store    ports.SimulationStore
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu   sync.Mutex
	rand *rand.Rand
}

// New creates a simulator.
func New(reg *registry.Registry, l Ledger, store ports.SimulationStore, opts ...Option) *Simulator {
	s := &Simulator{
		registry: reg,
		ledger:   l,
		store:    store,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("promptlink-gateway/simulator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Start charges for and persists a new session. The user's plan must include
// the human simulator and rounds are clamped to its limit.
func (s *Simulator) Start(ctx context.Context, req StartRequest) (*Started, error) {
	ctx, span := s.tracer.Start(ctx, "simulator.start")
	defer span.End()

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.UserID == "" {
		return nil, domain.ErrInvalidInput("user_id is required").WithParam("user_id")
	}
	if req.Prompt == "" {
		return nil, domain.ErrInvalidInput("prompt is required").WithParam("prompt")
	}
	if req.Mode == "" {
		req.Mode = "dual"
	}
	if !slices.Contains(Modes, req.Mode) {
		return nil, domain.ErrInvalidInput(fmt.Sprintf("mode must be one of %s", strings.Join(Modes, ", "))).
			WithParam("mode")
	}
	if req.Strategy == "" {
		req.Strategy = domain.StrategyBalanced
	}
	if !req.Strategy.Valid() {
		return nil, domain.ErrInvalidInput(fmt.Sprintf("unknown strategy %q", req.Strategy)).WithParam("strategy")
	}
	p := personality(req.Personality)

	acct, err := s.ledger.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	plan, err := s.ledger.Plan(acct.Plan)
	if err != nil {
		return nil, err
	}
	if !plan.HumanSimulator {
		return nil, domain.ErrInsufficientCredits(fmt.Sprintf("human simulator is not included in the %s plan", plan.ID)).
			WithCode(domain.ErrorCodeUpgradeRequired)
	}

	rounds := s.rounds(req.Rounds, plan)
	cost := s.cfg.Cost(rounds)
	if acct.DailyRemaining < cost {
		return nil, domain.ErrInsufficientCredits(
			fmt.Sprintf("human simulator needs %d credits, %d available today", cost, acct.DailyRemaining))
	}

	sim := &domain.Simulation{
		ID:           "sim_" + uuid.NewString(),
		UserID:       req.UserID,
		Mode:         req.Mode,
		Personality:  p.ID,
		Strategy:     req.Strategy,
		Instructions: strings.TrimSpace(req.Instructions),
		Prompt:       req.Prompt,
		Rounds:       rounds,
		Cost:         cost,
		CreatedAt:    s.now().UTC(),
	}
	span.SetAttributes(
		attribute.String("simulation.id", sim.ID),
		attribute.Int("simulation.rounds", rounds),
		attribute.Int64("simulation.cost", cost))

	acct, err = s.ledger.Consume(ctx, req.UserID, cost)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSimulation(ctx, sim); err != nil {
		s.logger.Error("simulation charged but not stored",
			slog.String("user_id", req.UserID),
			slog.Int64("cost", cost),
			slog.String("error", err.Error()))
		return nil, err
	}

	s.logger.Info("simulation started",
		slog.String("simulation_id", sim.ID),
		slog.String("user_id", sim.UserID),
		slog.String("personality", p.ID),
		slog.String("strategy", string(sim.Strategy)),
		slog.Int("rounds", rounds))

	return &Started{Simulation: sim, Personality: p, MaxRounds: plan.MaxRounds, Account: acct}, nil
}

func (s *Simulator) rounds(requested int, plan domain.Plan) int {
	rounds := requested
	if rounds <= 0 {
		rounds = s.cfg.DefaultRounds
	}
	rounds = min(rounds, s.cfg.RoundsCap)
	if plan.MaxRounds > 0 {
		rounds = min(rounds, plan.MaxRounds)
	}
	return rounds
}

// Round picks the agent and the simulated user's prompt for one round.
func (s *Simulator) Round(ctx context.Context, req RoundRequest) (*Turn, error) {
	if req.SessionID == "" {
		return nil, domain.ErrInvalidInput("session_id is required").WithParam("session_id")
	}
	sim, err := s.store.GetSimulation(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domain.ErrSessionNotFound(req.SessionID)
		}
		return nil, err
	}
	if req.UserID != "" && req.UserID != sim.UserID {
		return nil, domain.ErrSessionNotFound(req.SessionID)
	}
	if req.Round == 0 {
		req.Round = 1
	}
	if req.Round < 1 || req.Round > sim.Rounds {
		return nil, domain.ErrInvalidInput(fmt.Sprintf("current_round must be between 1 and %d", sim.Rounds)).
			WithParam("current_round")
	}

	p := personality(sim.Personality)
	pool := s.candidates(sim.Strategy, p, len(req.History))
	agent, err := s.registry.Resolve(pool[s.pick(len(pool))])
	if err != nil {
		return nil, err
	}

	prompt := p.Prompts[s.pick(len(p.Prompts))]
	if sim.Instructions != "" {
		prompt = sim.Instructions + " " + prompt
	}

	s.logger.Debug("simulation round",
		slog.String("simulation_id", sim.ID),
		slog.Int("round", req.Round),
		slog.String("agent", agent.ID))

	return &Turn{
		SessionID:   sim.ID,
		Round:       req.Round,
		Agent:       agent,
		HumanPrompt: prompt,
		Personality: p.Name,
		Strategy:    sim.Strategy,
	}, nil
}

// candidates lists the agent IDs a round may pick from. Duplicates weight
// the draw.
func (s *Simulator) candidates(strategy domain.Strategy, p domain.Personality, turns int) []string {
	all := s.registry.IDs()
	preferred := s.known(p.AgentPreference)
	if len(preferred) == 0 {
		preferred = all
	}

	switch strategy {
	case domain.StrategyFocused:
		return preferred
	case domain.StrategyAdaptive:
		if turns < 3 {
			return preferred
		}
		return all
	case domain.StrategyIntensive:
		return append(s.known(highCapability), all...)
	default:
		return all
	}
}

func (s *Simulator) known(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := s.registry.Resolve(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func (s *Simulator) pick(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.IntN(n)
}
