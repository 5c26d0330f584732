// Package frontdoor exposes the gateway's JSON HTTP API: agents, plans,
// balances, the chat proxy and its history, orchestration sessions,
// synthesis reports, the human simulator and checkout.
package frontdoor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/promptlink-gateway/internal/checkout"
	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
	"github.com/tjfontaine/promptlink-gateway/internal/ledger"
	"github.com/tjfontaine/promptlink-gateway/internal/orchestrator"
	"github.com/tjfontaine/promptlink-gateway/internal/server"
	"github.com/tjfontaine/promptlink-gateway/internal/simulator"
	"github.com/tjfontaine/promptlink-gateway/internal/synthesis"
	"github.com/tjfontaine/promptlink-gateway/internal/tokens"
)

const (
	maxBodyBytes    = 1 << 20
	chatTemperature = 0.7
)

// Agents resolves and lists agents.
type Agents interface {
	Resolve(id string) (domain.Agent, error)
	List() []domain.Agent
}

// Ledger is the credit ledger.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (*domain.Account, error)
	Consume(ctx context.Context, userID string, amount int64) (*domain.Account, error)
	Plans() []domain.Plan
	Plan(id string) (domain.Plan, error)
}

// Orchestrator runs multi-agent sessions.
type Orchestrator interface {
	Start(ctx context.Context, req orchestrator.Request) (*domain.Session, error)
	Run(ctx context.Context, req orchestrator.Request) (*domain.Session, error)
	Status(ctx context.Context, id string) (*domain.Session, error)
	Cancel(ctx context.Context, id string) (*domain.Session, error)
}

// Synthesizer writes reports over completed sessions.
type Synthesizer interface {
	Synthesize(ctx context.Context, sessionID string, t domain.SynthesisType) (*domain.SynthesisReport, error)
	Comprehensive(ctx context.Context, sessionID string) (*domain.ComprehensiveReport, error)
}

// Simulator runs human-simulator sessions.
type Simulator interface {
	Start(ctx context.Context, req simulator.StartRequest) (*simulator.Started, error)
	Round(ctx context.Context, req simulator.RoundRequest) (*simulator.Turn, error)
}

// Checkout sells plans.
type Checkout interface {
	CreateCheckout(ctx context.Context, userID, planID string) (*checkout.Result, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Config tunes the handlers. The upstream client passed in Deps carries its
// own per-attempt timeout.
type Config struct {
	ChatCost       int64
	RequestTimeout time.Duration
}

// Deps bundles the services behind the API.
type Deps struct {
	Agents       Agents
	Client       ports.ChatCompleter
	Ledger       Ledger
	Orchestrator Orchestrator
	Synthesizer  Synthesizer
	Simulator    Simulator
	Checkout     Checkout
	// Conversations records answered chats. Nil disables history.
	Conversations ports.ConversationStore
	Policy        ports.QualityPolicy
	Tokens        *tokens.Counter
	Logger        *slog.Logger
}

type Handler struct {
	Deps
	cfg Config
}

// NewHandler creates the API handler. A nil Policy admits everything.
func NewHandler(deps Deps, cfg Config) *Handler {
	if cfg.ChatCost <= 0 {
		cfg.ChatCost = 1
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tokens == nil {
		deps.Tokens = tokens.NewCounter()
	}
	return &Handler{Deps: deps, cfg: cfg}
}

// Mount registers the routes on r. Inline orchestration runs are exempt
// from the request timeout; everything else is bounded by it.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.HandleHealth)

	r.Post("/api/orchestrations", h.HandleStartOrchestration)

	r.Group(func(r chi.Router) {
		r.Use(server.TimeoutMiddleware(h.cfg.RequestTimeout))

		r.Get("/api/agents", h.HandleListAgents)
		r.Get("/api/plans", h.HandleListPlans)
		r.Get("/api/user/{userID}/status", h.HandleUserStatus)
		r.Post("/api/chat", h.HandleChat)
		if h.Conversations != nil {
			r.Get("/api/user/{userID}/conversations", h.HandleListConversations)
		}

		r.Get("/api/orchestrations/{id}", h.HandleGetOrchestration)
		r.Post("/api/orchestrations/{id}/cancel", h.HandleCancelOrchestration)
		r.Get("/api/orchestrations/{id}/synthesis/{type}", h.HandleSynthesis)

		r.Get("/api/personalities", h.HandleListPersonalities)
		if h.Simulator != nil {
			r.Post("/api/simulator/start", h.HandleStartSimulation)
			r.Post("/api/simulator/round", h.HandleSimulationRound)
		}

		r.Post("/api/checkout", h.HandleCreateCheckout)
		r.Post("/api/checkout/webhook", h.HandleWebhook)
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.Agents.List()
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents, "count": len(agents)})
}

func (h *Handler) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": h.Ledger.Plans()})
}

func (h *Handler) HandleUserStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	server.AddLogField(r.Context(), "user_id", userID)

	acct, err := h.Ledger.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := accountResponse{Account: acct}
	if plan, err := h.Ledger.Plan(acct.Plan); err == nil {
		resp.DailyLimit = plan.DailyLimit
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	server.AddLogField(r.Context(), "user_id", req.UserID)
	server.AddLogField(r.Context(), "agent_id", req.AgentID)

	req.Message = strings.TrimSpace(req.Message)
	switch {
	case req.UserID == "":
		writeError(w, r, domain.ErrInvalidInput("user_id is required").WithParam("user_id"))
		return
	case req.Message == "":
		writeError(w, r, domain.ErrInvalidInput("message is required").WithParam("message"))
		return
	}

	agent, err := h.Agents.Resolve(req.AgentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !h.admit(w, r, req.UserID, "chat") {
		return
	}

	// Credits are only taken for an answered request.
	acct, err := h.Ledger.GetBalance(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if acct.DailyRemaining < h.cfg.ChatCost {
		writeError(w, r, ledger.ErrInsufficient)
		return
	}

	messages := []domain.Message{{Role: domain.RoleUser, Content: req.Message}}
	text, err := h.Client.Complete(r.Context(), agent.Model, messages, agent.MaxTokens, chatTemperature)
	if err != nil {
		writeError(w, r, err)
		return
	}

	acct, err = h.Ledger.Consume(r.Context(), req.UserID, h.cfg.ChatCost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.saveConversation(r, &domain.Conversation{
		ID:          "conv_" + uuid.Must(uuid.NewV7()).String(),
		SessionID:   req.SessionID,
		UserID:      req.UserID,
		AgentID:     agent.ID,
		UserMessage: req.Message,
		AgentReply:  text,
	})

	promptTokens := h.Tokens.CountMessages(agent.Model, messages)
	writeJSON(w, http.StatusOK, chatResponse{
		Response:         text,
		Agent:            agent,
		PromptTokens:     promptTokens,
		EstimatedCost:    tokens.Cost(agent, promptTokens),
		CreditsRemaining: acct.Credits,
		DailyRemaining:   acct.DailyRemaining,
	})
}

func (h *Handler) saveConversation(r *http.Request, c *domain.Conversation) {
	if h.Conversations == nil {
		return
	}
	if err := h.Conversations.SaveConversation(context.WithoutCancel(r.Context()), c); err != nil {
		h.Logger.Warn("failed to save conversation",
			slog.String("user_id", c.UserID),
			slog.String("agent_id", c.AgentID),
			slog.String("error", err.Error()))
	}
}

func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	server.AddLogField(r.Context(), "user_id", userID)

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, domain.ErrInvalidInput("limit must be a positive integer").WithParam("limit"))
			return
		}
		limit = min(n, 500)
	}

	list, err := h.Conversations.ListConversations(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": list, "count": len(list)})
}

func (h *Handler) HandleStartOrchestration(w http.ResponseWriter, r *http.Request) {
	var req orchestrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	server.AddLogField(r.Context(), "user_id", req.UserID)
	server.AddLogField(r.Context(), "mode", string(req.Mode))

	if !h.admit(w, r, req.UserID, "orchestration") {
		return
	}

	oreq := orchestrator.Request{
		Prompt:    req.Prompt,
		Mode:      req.Mode,
		MaxAgents: req.MaxAgents,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	}

	if req.Wait {
		sess, err := h.Orchestrator.Run(r.Context(), oreq)
		if err != nil {
			writeError(w, r, err)
			return
		}
		server.AddLogField(r.Context(), "session_id", sess.ID)
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
		return
	}

	sess, err := h.Orchestrator.Start(r.Context(), oreq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "session_id", sess.ID)
	writeJSON(w, http.StatusAccepted, newSessionResponse(sess))
}

func (h *Handler) HandleGetOrchestration(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Orchestrator.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (h *Handler) HandleCancelOrchestration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "session_id", id)

	sess, err := h.Orchestrator.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (h *Handler) HandleSynthesis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "session_id", id)

	t, err := synthesis.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if t == domain.SynthesisComprehensive {
		report, err := h.Synthesizer.Comprehensive(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := h.Synthesizer.Synthesize(r.Context(), id, t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleListPersonalities(w http.ResponseWriter, r *http.Request) {
	list := simulator.Personalities()
	writeJSON(w, http.StatusOK, map[string]any{
		"personalities": list,
		"total":         len(list),
		"strategies":    domain.Strategies,
	})
}

func (h *Handler) HandleStartSimulation(w http.ResponseWriter, r *http.Request) {
	var req simulator.StartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	server.AddLogField(r.Context(), "user_id", req.UserID)

	if !h.admit(w, r, req.UserID, "simulator") {
		return
	}

	started, err := h.Simulator.Start(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "simulation_id", started.Simulation.ID)
	writeJSON(w, http.StatusOK, newSimulationResponse(started))
}

func (h *Handler) HandleSimulationRound(w http.ResponseWriter, r *http.Request) {
	var req simulator.RoundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	server.AddLogField(r.Context(), "simulation_id", req.SessionID)

	turn, err := h.Simulator.Round(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *Handler) HandleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	server.AddLogField(r.Context(), "user_id", req.UserID)
	server.AddLogField(r.Context(), "plan_id", req.PlanID)

	res, err := h.Checkout.CreateCheckout(r.Context(), req.UserID, req.PlanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, domain.ErrInvalidInput("failed to read webhook body"))
		return
	}

	if err := h.Checkout.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// admit applies the quality policy and records rate limit headers. It
// writes the rejection itself and returns false when the request must stop.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, userID, operation string) bool {
	if h.Policy == nil {
		return true
	}

	decision, err := h.Policy.CheckRequest(r.Context(), &ports.PolicyRequest{UserID: userID, Operation: operation})
	if err != nil {
		writeError(w, r, err)
		return false
	}

	if info := decision.RateLimitInfo; info != nil {
		server.SetRateLimits(r.Context(), &server.RateLimitInfo{
			Limit:      info.Limit,
			Remaining:  info.Remaining,
			ResetAt:    info.ResetAt,
			RetryAfter: decision.RetryAfter,
		})
	}

	if !decision.Allow {
		writeError(w, r, domain.ErrRateLimit(decision.Reason))
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, r, domain.ErrInvalidInput(msg))
		return false
	}
	return true
}
