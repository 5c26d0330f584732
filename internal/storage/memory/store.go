// Package memory provides an in-process session store. Sessions are lost on
// restart; the ledger always lives in the SQL store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

// Store is an in-memory implementation of ports.SessionStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

var _ ports.SessionStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
	}
}

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}

	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// GetSession returns a snapshot. Callers may keep it while the session runs.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s %w", id, ports.ErrNotFound)
	}
	return sess.Clone(), nil
}

func (s *Store) AppendStep(ctx context.Context, id string, step domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return fmt.Errorf("session %s %w", id, ports.ErrNotFound)
	}
	if sess.Status != domain.StatusRunning {
		return fmt.Errorf("session %s %w", id, ports.ErrSessionClosed)
	}
	if step.Output != nil {
		out := *step.Output
		step.Output = &out
	}
	sess.Append(step)
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	return s.finish(id, domain.StatusCompleted, at)
}

func (s *Store) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	return s.finish(id, domain.StatusCancelled, at)
}

func (s *Store) finish(id string, status domain.SessionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return fmt.Errorf("session %s %w", id, ports.ErrNotFound)
	}
	if sess.Status.Terminal() {
		return nil
	}
	sess.Status = status
	at = at.UTC()
	sess.EndedAt = &at
	return nil
}

// ListSessions returns summaries without steps, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		summary := *sess
		summary.Steps = nil
		if sess.EndedAt != nil {
			t := *sess.EndedAt
			summary.EndedAt = &t
		}
		out = append(out, &summary)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
