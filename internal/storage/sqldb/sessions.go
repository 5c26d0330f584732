package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

type sessionRow struct {
	ID             string       `db:"id"`
	Mode           string       `db:"mode"`
	UserID         string       `db:"user_id"`
	Prompt         string       `db:"prompt"`
	PlannedSteps   int          `db:"planned_steps"`
	CurrentContext string       `db:"current_context"`
	Status         string       `db:"status"`
	StartedAt      time.Time    `db:"started_at"`
	EndedAt        sql.NullTime `db:"ended_at"`
}

type stepRow struct {
	SessionID    string         `db:"session_id"`
	Idx          int            `db:"idx"`
	PairIndex    int            `db:"pair_index"`
	Role         string         `db:"role"`
	Agent        string         `db:"agent"`
	Prompt       string         `db:"prompt"`
	Output       sql.NullString `db:"output"`
	Error        string         `db:"error"`
	PromptTokens int            `db:"prompt_tokens"`
	LatencyMS    int64          `db:"latency_ms"`
	CreatedAt    time.Time      `db:"created_at"`
}

const sessionColumns = `id, mode, user_id, prompt, planned_steps, current_context, status, started_at, ended_at`

// CreateSession stores a new orchestration session.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}

	query := s.dialect.Rebind(`INSERT INTO orchestration_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		sess.ID, string(sess.Mode), sess.UserID, sess.Prompt, sess.PlannedSteps, sess.CurrentContext,
		string(sess.Status), sess.StartedAt, sess.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads a session with its steps in index order.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var row sessionRow
	query := s.dialect.Rebind(`SELECT ` + sessionColumns + ` FROM orchestration_sessions WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var steps []stepRow
	stepsQuery := s.dialect.Rebind(`SELECT session_id, idx, pair_index, role, agent, prompt, output, error,
		prompt_tokens, latency_ms, created_at
		FROM orchestration_steps WHERE session_id = ? ORDER BY idx ASC`)
	if err := s.db.SelectContext(ctx, &steps, stepsQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}

	sess := row.toDomain()
	sess.Steps = make([]domain.Step, 0, len(steps))
	for _, sr := range steps {
		step, err := sr.toDomain()
		if err != nil {
			return nil, err
		}
		sess.Steps = append(sess.Steps, step)
	}
	return sess, nil
}

// AppendStep inserts step and threads chain context in one transaction.
// Steps for a session that is no longer running are rejected.
func (s *Store) AppendStep(ctx context.Context, id string, step domain.Step) error {
	agentJSON, err := json.Marshal(step.Agent)
	if err != nil {
		return fmt.Errorf("failed to marshal agent: %w", err)
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Touching the session row holds it against a concurrent finish until
	// the step is in.
	lock := s.dialect.Rebind(`UPDATE orchestration_sessions SET status = status WHERE id = ? AND status = ?`)
	res, err := tx.ExecContext(ctx, lock, id, string(domain.StatusRunning))
	if err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}
	running, err := affected(res)
	if err != nil {
		return err
	}
	if !running {
		var n int
		if err := tx.GetContext(ctx, &n, s.dialect.Rebind(`SELECT COUNT(*) FROM orchestration_sessions WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("session %s %w", id, ports.ErrNotFound)
		}
		return fmt.Errorf("session %s %w", id, ports.ErrSessionClosed)
	}

	insert := s.dialect.Rebind(`INSERT INTO orchestration_steps (session_id, idx, pair_index, role, agent, prompt,
		output, error, prompt_tokens, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	var output sql.NullString
	if step.Output != nil {
		output = sql.NullString{String: *step.Output, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, insert,
		id, step.Index, step.PairIndex, step.Role, string(agentJSON), step.Prompt,
		output, step.Error, step.PromptTokens, step.LatencyMS, step.Timestamp); err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}

	if step.Succeeded() {
		update := s.dialect.Rebind(`UPDATE orchestration_sessions SET current_context = ?
			WHERE id = ? AND mode = ?`)
		if _, err := tx.ExecContext(ctx, update, *step.Output, id, string(domain.ModeConferenceChain)); err != nil {
			return fmt.Errorf("failed to update context: %w", err)
		}
	}

	return tx.Commit()
}

// MarkCompleted finishes a running session.
func (s *Store) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	return s.finish(ctx, id, domain.StatusCompleted, at)
}

// MarkCancelled stops a running session.
func (s *Store) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	return s.finish(ctx, id, domain.StatusCancelled, at)
}

func (s *Store) finish(ctx context.Context, id string, status domain.SessionStatus, at time.Time) error {
	query := s.dialect.Rebind(`UPDATE orchestration_sessions SET status = ?, ended_at = ?
		WHERE id = ? AND status = ?`)

	res, err := s.db.ExecContext(ctx, query, string(status), at.UTC(), id, string(domain.StatusRunning))
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	// Either the session is missing or it already reached a terminal state.
	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	return nil
}

// ListSessions returns session summaries, newest first. Steps are not loaded.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.dialect.Rebind(`SELECT ` + sessionColumns + ` FROM orchestration_sessions
		ORDER BY started_at DESC LIMIT ?`)

	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]*domain.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (r sessionRow) toDomain() *domain.Session {
	sess := &domain.Session{
		ID:             r.ID,
		Mode:           domain.Mode(r.Mode),
		UserID:         r.UserID,
		Prompt:         r.Prompt,
		PlannedSteps:   r.PlannedSteps,
		CurrentContext: r.CurrentContext,
		Status:         domain.SessionStatus(r.Status),
		StartedAt:      r.StartedAt,
	}
	if r.EndedAt.Valid {
		t := r.EndedAt.Time
		sess.EndedAt = &t
	}
	return sess
}

func (r stepRow) toDomain() (domain.Step, error) {
	step := domain.Step{
		Index:        r.Idx,
		PairIndex:    r.PairIndex,
		Role:         r.Role,
		Prompt:       r.Prompt,
		Error:        r.Error,
		PromptTokens: r.PromptTokens,
		LatencyMS:    r.LatencyMS,
		Timestamp:    r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Agent), &step.Agent); err != nil {
		return step, fmt.Errorf("failed to unmarshal agent: %w", err)
	}
	if r.Output.Valid {
		out := r.Output.String
		step.Output = &out
	}
	return step, nil
}
