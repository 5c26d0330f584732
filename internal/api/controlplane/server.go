// Package controlplane serves the operator-facing /admin API: process stats,
// recent orchestration sessions and ledger accounts.
package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Accounts lists ledger entries.
type Accounts interface {
	Accounts(ctx context.Context, limit int) ([]*domain.Account, error)
}

// Workers reports background orchestration load.
type Workers interface {
	Running() int
}

type Server struct {
	router    *chi.Mux
	startTime time.Time
	sessions  ports.SessionStore
	accounts  Accounts
	workers   Workers
}

// NewServer builds the control plane. Any dependency may be nil; the
// matching route then answers 503.
func NewServer(sessions ports.SessionStore, accounts Accounts, workers Workers) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		sessions:  sessions,
		accounts:  accounts,
		workers:   workers,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/sessions", s.handleListSessions)
	s.router.Get("/accounts", s.handleListAccounts)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Uptime         string      `json:"uptime"`
	StartedAt      string      `json:"started_at"`
	GoVersion      string      `json:"go_version"`
	NumGoroutine   int         `json:"num_goroutine"`
	RunningSession int         `json:"running_sessions"`
	Memory         MemoryStats `json:"memory"`
}

type MemoryStats struct {
	Alloc      string `json:"alloc"`
	TotalAlloc string `json:"total_alloc"`
	Sys        string `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := StatsResponse{
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		StartedAt:    humanize.Time(s.startTime),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      humanize.IBytes(m.Alloc),
			TotalAlloc: humanize.IBytes(m.TotalAlloc),
			Sys:        humanize.IBytes(m.Sys),
			NumGC:      m.NumGC,
		},
	}
	if s.workers != nil {
		stats.RunningSession = s.workers.Running()
	}

	writeJSON(w, stats)
}

type SessionSummary struct {
	ID           string               `json:"id"`
	Mode         domain.Mode          `json:"mode"`
	UserID       string               `json:"user_id,omitempty"`
	Status       domain.SessionStatus `json:"status"`
	PlannedSteps int                  `json:"planned_steps"`
	StartedAt    int64                `json:"started_at"`
	Started      string               `json:"started"`
	Duration     string               `json:"duration,omitempty"`
}

type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.Error(w, "session storage not configured", http.StatusServiceUnavailable)
		return
	}

	sessions, err := s.sessions.ListSessions(r.Context(), parseLimit(r))
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	resp := SessionListResponse{Sessions: make([]SessionSummary, 0, len(sessions))}
	for _, sess := range sessions {
		summary := SessionSummary{
			ID:           sess.ID,
			Mode:         sess.Mode,
			UserID:       sess.UserID,
			Status:       sess.Status,
			PlannedSteps: sess.PlannedSteps,
			StartedAt:    sess.StartedAt.Unix(),
			Started:      humanize.Time(sess.StartedAt),
		}
		if sess.EndedAt != nil {
			summary.Duration = sess.EndedAt.Sub(sess.StartedAt).Round(time.Millisecond).String()
		}
		resp.Sessions = append(resp.Sessions, summary)
	}

	writeJSON(w, resp)
}

type AccountSummary struct {
	UserID         string `json:"user_id"`
	Plan           string `json:"plan"`
	Credits        int64  `json:"credits"`
	CreditsDisplay string `json:"credits_display"`
	DailyRemaining int64  `json:"daily_remaining"`
	LastReset      string `json:"last_reset"`
	Updated        string `json:"updated"`
}

type AccountListResponse struct {
	Accounts []AccountSummary `json:"accounts"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		http.Error(w, "ledger not configured", http.StatusServiceUnavailable)
		return
	}

	accounts, err := s.accounts.Accounts(r.Context(), parseLimit(r))
	if err != nil {
		http.Error(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}

	resp := AccountListResponse{Accounts: make([]AccountSummary, 0, len(accounts))}
	for _, a := range accounts {
		resp.Accounts = append(resp.Accounts, AccountSummary{
			UserID:         a.UserID,
			Plan:           a.Plan,
			Credits:        a.Credits,
			CreditsDisplay: humanize.Comma(a.Credits),
			DailyRemaining: a.DailyRemaining,
			LastReset:      a.LastReset,
			Updated:        humanize.Time(a.UpdatedAt),
		})
	}

	writeJSON(w, resp)
}

func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= maxListLimit {
			limit = v
		}
	}
	return limit
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
