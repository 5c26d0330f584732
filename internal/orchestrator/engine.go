// Package orchestrator runs multi-agent sessions: an expert panel of
// sequential agent pairs, or a conference chain that threads each agent's
// output into the next prompt.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
	"github.com/tjfontaine/promptlink-gateway/internal/registry"
	"github.com/tjfontaine/promptlink-gateway/internal/server"
	"github.com/tjfontaine/promptlink-gateway/internal/tokens"
)

// Charger debits credits before a session starts. *ledger.Ledger satisfies it.
type Charger interface {
	Consume(ctx context.Context, userID string, amount int64) (*domain.Account, error)
}

// Config holds the tunables for agent calls and pricing.
type Config struct {
	PanelPairs         int
	ChainDefaultAgents int
	MaxTokens          int
	Temperature        float64
	CostPerStep        int64
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		PanelPairs:         10,
		ChainDefaultAgents: 20,
		MaxTokens:          1500,
		Temperature:        0.7,
		CostPerStep:        1,
	}
}

// Request starts a session.
type Request struct {
	Prompt    string      `json:"prompt"`
	Mode      domain.Mode `json:"mode"`
	MaxAgents int         `json:"max_agents,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides DefaultConfig. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		def := DefaultConfig()
		if cfg.PanelPairs <= 0 {
			cfg.PanelPairs = def.PanelPairs
		}
		if cfg.ChainDefaultAgents <= 0 {
			cfg.ChainDefaultAgents = def.ChainDefaultAgents
		}
		if cfg.MaxTokens <= 0 {
			cfg.MaxTokens = def.MaxTokens
		}
		if cfg.Temperature <= 0 {
			cfg.Temperature = def.Temperature
		}
		if cfg.CostPerStep <= 0 {
			cfg.CostPerStep = def.CostPerStep
		}
		e.cfg = cfg
	}
}

// WithCharger enables credit charging. Without one, sessions are free.
func WithCharger(c Charger) Option {
	return func(e *Engine) {
		e.charger = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTokenCounter sets the counter used to estimate prompt tokens per step.
func WithTokenCounter(c *tokens.Counter) Option {
	return func(e *Engine) {
		e.counter = c
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine drives orchestration sessions. It is safe for concurrent use.
type Engine struct {
	registry *registry.Registry
	client   ports.ChatCompleter
	sessions ports.SessionStore
	charger  Charger
	counter  *tokens.Counter
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an engine.
func New(reg *registry.Registry, client ports.ChatCompleter, sessions ports.SessionStore, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		client:   client,
		sessions: sessions,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("promptlink-gateway/orchestrator"),
		now:      time.Now,
		running:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.counter == nil {
		e.counter = tokens.NewCounter()
	}
	return e
}

// plan is the validated shape of a request.
type plan struct {
	req    Request
	agents []domain.Agent // in call order; pairs are consecutive
}

func (e *Engine) planFor(req Request) (*plan, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, domain.ErrInvalidInput("prompt is required").WithParam("prompt")
	}
	if e.charger != nil && req.UserID == "" {
		return nil, domain.ErrInvalidInput("user_id is required").WithParam("user_id")
	}

	n := e.registry.Len()
	switch req.Mode {
	case domain.ModeExpertPanel:
		pairs := min(e.cfg.PanelPairs, n/2)
		if pairs == 0 {
			return nil, domain.ErrInvalidInput("expert panel needs at least two agents")
		}
		return &plan{req: req, agents: e.registry.List()[:pairs*2]}, nil

	case domain.ModeConferenceChain:
		count := req.MaxAgents
		switch {
		case count == 0:
			count = min(e.cfg.ChainDefaultAgents, n)
		case count < 0 || count > n:
			return nil, domain.ErrInvalidInput(fmt.Sprintf("max_agents must be between 1 and %d", n)).
				WithParam("max_agents")
		}
		if count == 0 {
			return nil, domain.ErrInvalidInput("conference chain needs at least one agent")
		}
		return &plan{req: req, agents: e.registry.List()[:count]}, nil

	default:
		return nil, domain.ErrInvalidInput(fmt.Sprintf("unknown mode %q", req.Mode)).WithParam("mode")
	}
}

// prepare validates, charges and persists a new running session.
func (e *Engine) prepare(ctx context.Context, req Request) (*plan, *domain.Session, error) {
	p, err := e.planFor(req)
	if err != nil {
		return nil, nil, err
	}

	id := p.req.SessionID
	if id == "" {
		prefix := "chain"
		if p.req.Mode == domain.ModeExpertPanel {
			prefix = "panel"
		}
		id = prefix + "_" + uuid.NewString()
	} else if _, err := e.sessions.GetSession(ctx, id); err == nil {
		return nil, nil, domain.ErrInvalidInput(fmt.Sprintf("session %s already exists", id)).WithParam("session_id")
	} else if !errors.Is(err, ports.ErrNotFound) {
		return nil, nil, err
	}

	if e.charger != nil {
		cost := e.cfg.CostPerStep * int64(len(p.agents))
		if _, err := e.charger.Consume(ctx, p.req.UserID, cost); err != nil {
			return nil, nil, fmt.Errorf("charge %d credits: %w", cost, err)
		}
	}

	sess := &domain.Session{
		ID:           id,
		Mode:         p.req.Mode,
		UserID:       p.req.UserID,
		Prompt:       p.req.Prompt,
		PlannedSteps: len(p.agents),
		Steps:        []domain.Step{},
		Status:       domain.StatusRunning,
		StartedAt:    e.now().UTC(),
	}
	if err := e.sessions.CreateSession(ctx, sess); err != nil {
		e.logger.Error("session not stored after charge",
			slog.String("session_id", id),
			slog.String("user_id", p.req.UserID),
			slog.String("error", err.Error()))
		return nil, nil, err
	}
	return p, sess, nil
}

// Start charges for and launches a session in the background, returning the
// running session immediately.
func (e *Engine) Start(ctx context.Context, req Request) (*domain.Session, error) {
	p, sess, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	// The worker outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.track(sess.ID, cancel)

	snapshot := sess.Clone()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.untrack(sess.ID)
		e.execute(runCtx, p, sess)
	}()

	return snapshot, nil
}

// Run charges for and executes a session inline, returning it in its
// terminal state.
func (e *Engine) Run(ctx context.Context, req Request) (*domain.Session, error) {
	p, sess, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.track(sess.ID, cancel)
	defer e.untrack(sess.ID)

	e.wg.Add(1)
	e.execute(runCtx, p, sess)
	e.wg.Done()

	return e.Status(context.WithoutCancel(ctx), sess.ID)
}

// Status returns a snapshot of the session.
func (e *Engine) Status(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domain.ErrSessionNotFound(id)
		}
		return nil, err
	}
	return sess, nil
}

// Cancel stops a running session. Cancelling a finished session returns it
// unchanged.
func (e *Engine) Cancel(ctx context.Context, id string) (*domain.Session, error) {
	e.mu.Lock()
	cancel, ok := e.running[id]
	e.mu.Unlock()

	if !ok {
		return e.Status(ctx, id)
	}

	cancel()
	if err := e.sessions.MarkCancelled(ctx, id, e.now()); err != nil {
		return nil, err
	}
	e.logger.Info("session cancelled", slog.String("session_id", id))
	return e.Status(ctx, id)
}

// Running reports the number of sessions currently executing.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// Shutdown cancels every running session and waits for the workers.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, cancel := range e.running {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) track(id string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.running[id] = cancel
	e.mu.Unlock()
}

func (e *Engine) untrack(id string) {
	e.mu.Lock()
	if cancel, ok := e.running[id]; ok {
		cancel()
		delete(e.running, id)
	}
	e.mu.Unlock()
}

// execute walks the plan. Every attempted step is recorded before the next
// one starts; step failures never abort the session.
func (e *Engine) execute(ctx context.Context, p *plan, sess *domain.Session) {
	ctx, span := e.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.String("session.mode", string(sess.Mode)),
			attribute.Int("session.planned_steps", sess.PlannedSteps),
		))
	defer span.End()

	storeCtx := context.WithoutCancel(ctx)
	logger := e.logger.With(
		slog.String("session_id", sess.ID),
		slog.String("mode", string(sess.Mode)),
		slog.String("request_id", server.GetRequestID(ctx)))
	logger.Info("session started", slog.Int("planned_steps", sess.PlannedSteps))

	var cancelled bool
	switch sess.Mode {
	case domain.ModeExpertPanel:
		cancelled = e.runPanel(ctx, storeCtx, p, sess, logger)
	default:
		cancelled = e.runChain(ctx, storeCtx, p, sess, logger)
	}

	if cancelled {
		if err := e.sessions.MarkCancelled(storeCtx, sess.ID, e.now()); err != nil {
			logger.Error("failed to mark session cancelled", slog.String("error", err.Error()))
		}
		span.SetAttributes(attribute.Bool("session.cancelled", true))
		logger.Info("session stopped", slog.Int("steps", len(sess.Steps)))
		return
	}

	if err := e.sessions.MarkCompleted(storeCtx, sess.ID, e.now()); err != nil {
		logger.Error("failed to mark session completed", slog.String("error", err.Error()))
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.Int("session.failed_steps", sess.FailedSteps()))
	logger.Info("session completed",
		slog.Int("steps", len(sess.Steps)),
		slog.Int("failed_steps", sess.FailedSteps()))
}

func (e *Engine) runPanel(ctx, storeCtx context.Context, p *plan, sess *domain.Session, logger *slog.Logger) bool {
	for pair := 0; pair*2+1 < len(p.agents); pair++ {
		a, b := p.agents[pair*2], p.agents[pair*2+1]

		stepA, ok := e.call(ctx, sess, pair*2, pair, "A", a, sess.Prompt, logger)
		if !ok {
			return true
		}
		e.record(storeCtx, sess, stepA, logger)

		promptB := sess.Prompt
		if stepA.Succeeded() {
			promptB = panelFollowUpPrompt(sess.Prompt, *stepA.Output)
		}
		stepB, ok := e.call(ctx, sess, pair*2+1, pair, "B", b, promptB, logger)
		if !ok {
			return true
		}
		e.record(storeCtx, sess, stepB, logger)
	}
	return false
}

func (e *Engine) runChain(ctx, storeCtx context.Context, p *plan, sess *domain.Session, logger *slog.Logger) bool {
	for i, agent := range p.agents {
		prompt := sess.Prompt
		if i > 0 && sess.CurrentContext != "" {
			prompt = chainPrompt(sess.Prompt, sess.CurrentContext, agent)
		}

		step, ok := e.call(ctx, sess, i, -1, "", agent, prompt, logger)
		if !ok {
			return true
		}
		e.record(storeCtx, sess, step, logger)
	}
	return false
}

// call makes one agent call. ok is false when the session was cancelled, in
// which case the step is discarded.
func (e *Engine) call(ctx context.Context, sess *domain.Session, index, pairIndex int, role string, agent domain.Agent, prompt string, logger *slog.Logger) (domain.Step, bool) {
	if ctx.Err() != nil {
		return domain.Step{}, false
	}

	ctx, span := e.tracer.Start(ctx, "orchestrator.step",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.Int("step.index", index),
			attribute.String("agent.id", agent.ID),
			attribute.String("agent.model", agent.Model),
		))
	defer span.End()

	messages := messagesFor(agent, prompt)
	step := domain.Step{
		Index:        index,
		PairIndex:    pairIndex,
		Role:         role,
		Agent:        agent,
		Prompt:       prompt,
		PromptTokens: e.counter.CountMessages(agent.Model, messages),
	}

	start := e.now()
	text, err := e.client.Complete(ctx, agent.Model, messages, e.cfg.MaxTokens, e.cfg.Temperature)
	step.LatencyMS = e.now().Sub(start).Milliseconds()
	step.Timestamp = e.now().UTC()

	if err != nil {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return domain.Step{}, false
		}
		step.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent call failed")
		logger.Warn("agent step failed",
			slog.Int("step", index),
			slog.String("agent", agent.ID),
			slog.String("error", err.Error()))
		return step, true
	}

	if ctx.Err() != nil {
		// The reply raced a cancel; the session is already stopping.
		span.SetStatus(codes.Error, "cancelled")
		return domain.Step{}, false
	}

	step.Output = &text
	return step, true
}

func (e *Engine) record(ctx context.Context, sess *domain.Session, step domain.Step, logger *slog.Logger) {
	err := e.sessions.AppendStep(ctx, sess.ID, step)
	if errors.Is(err, ports.ErrSessionClosed) {
		logger.Debug("dropping step for closed session", slog.Int("step", step.Index))
		return
	}
	if err != nil {
		logger.Error("failed to persist step",
			slog.Int("step", step.Index),
			slog.String("error", err.Error()))
	}
	sess.Append(step)
}
