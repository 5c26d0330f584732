// Package synthesis turns a completed orchestration session into a written
// report by handing its transcript to a fixed summary agent.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

const (
	defaultMaxTokens   = 2000
	defaultTemperature = 0.3
	defaultCacheSize   = 256
)

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithCacheSize sets how many reports are kept.
func WithCacheSize(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithSampling overrides max tokens and temperature for report calls.
func WithSampling(maxTokens int, temperature float64) Option {
	return func(s *Synthesizer) {
		if maxTokens > 0 {
			s.maxTokens = maxTokens
		}
		if temperature > 0 {
			s.temperature = temperature
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		s.now = now
	}
}

type cacheKey struct {
	sessionID string
	typ       domain.SynthesisType
}

// Synthesizer produces and caches reports. Reports are write-once, so a
// cached report is served for the life of the entry.
type Synthesizer struct {
	sessions    ports.SessionStore
	client      ports.ChatCompleter
	cache       *lru.Cache[cacheKey, *domain.SynthesisReport]
	group       singleflight.Group
	cacheSize   int
	maxTokens   int
	temperature float64
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// New creates a Synthesizer.
func New(sessions ports.SessionStore, client ports.ChatCompleter, opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{
		sessions:    sessions,
		client:      client,
		cacheSize:   defaultCacheSize,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
		logger:      slog.Default(),
		tracer:      otel.Tracer("promptlink-gateway/synthesis"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	cache, err := lru.New[cacheKey, *domain.SynthesisReport](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create report cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// ParseType validates a report style name. The comprehensive style is
// accepted here; Synthesize itself only runs the single-call styles.
func ParseType(name string) (domain.SynthesisType, error) {
	t := domain.SynthesisType(name)
	if t == domain.SynthesisComprehensive {
		return t, nil
	}
	if _, ok := agents[t]; ok {
		return t, nil
	}
	return "", domain.ErrInvalidInput(fmt.Sprintf("unknown synthesis type %q", name)).
		WithCode(domain.ErrorCodeUnknownSynthesisType).
		WithParam("type")
}

// loadCompleted fetches the session and checks it finished normally.
func (s *Synthesizer) loadCompleted(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domain.ErrSessionNotFound(sessionID)
		}
		return nil, err
	}
	if sess.Status != domain.StatusCompleted {
		return nil, domain.ErrNotReady(fmt.Sprintf("session %s is %s", sessionID, sess.Status))
	}
	return sess, nil
}

// Synthesize writes one report of type t for a completed session.
func (s *Synthesizer) Synthesize(ctx context.Context, sessionID string, t domain.SynthesisType) (*domain.SynthesisReport, error) {
	agent, ok := agents[t]
	if !ok {
		return nil, domain.ErrInvalidInput(fmt.Sprintf("unknown synthesis type %q", t)).
			WithCode(domain.ErrorCodeUnknownSynthesisType).
			WithParam("type")
	}

	key := cacheKey{sessionID: sessionID, typ: t}
	if r, ok := s.cache.Get(key); ok {
		return r, nil
	}

	sess, err := s.loadCompleted(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// The call is shared, so it must outlive whichever caller started it.
	genCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(sessionID+"/"+string(t), func() (interface{}, error) {
		if r, ok := s.cache.Get(key); ok {
			return r, nil
		}
		r, err := s.generate(genCtx, sess, t, agent)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, r)
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("synthesis shared with concurrent request",
				slog.String("session_id", sessionID),
				slog.String("type", string(t)))
		}
		return res.Val.(*domain.SynthesisReport), nil
	}
}

func (s *Synthesizer) generate(ctx context.Context, sess *domain.Session, t domain.SynthesisType, agent domain.Agent) (*domain.SynthesisReport, error) {
	ctx, span := s.tracer.Start(ctx, "synthesis.generate",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.String("synthesis.type", string(t)),
			attribute.String("agent.model", agent.Model),
		))
	defer span.End()

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt(agent)},
		{Role: domain.RoleUser, Content: buildPrompt(t, sess, Transcript(sess))},
	}

	start := s.now()
	text, err := s.client.Complete(ctx, agent.Model, messages, s.maxTokens, s.temperature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis call failed")
		s.logger.Warn("synthesis failed",
			slog.String("session_id", sess.ID),
			slog.String("type", string(t)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s synthesis: %w", t, err)
	}

	s.logger.Info("synthesis generated",
		slog.String("session_id", sess.ID),
		slog.String("type", string(t)),
		slog.Duration("duration", s.now().Sub(start)))

	return &domain.SynthesisReport{
		Type:            t,
		SessionID:       sess.ID,
		Content:         text,
		SourceAgent:     agent.Name,
		SourceModel:     agent.Model,
		SourceResponses: len(sess.SuccessfulSteps()),
		CreatedAt:       s.now().UTC(),
	}, nil
}

// Comprehensive runs every report style in order and aggregates them. Any
// failing style fails the whole report.
func (s *Synthesizer) Comprehensive(ctx context.Context, sessionID string) (*domain.ComprehensiveReport, error) {
	sess, err := s.loadCompleted(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	reports := make(map[domain.SynthesisType]*domain.SynthesisReport, len(domain.SynthesisTypes))
	for _, t := range domain.SynthesisTypes {
		r, err := s.Synthesize(ctx, sessionID, t)
		if err != nil {
			return nil, err
		}
		reports[t] = r
	}

	return &domain.ComprehensiveReport{
		SessionID: sessionID,
		Prompt:    sess.Prompt,
		Reports:   reports,
		Meta: domain.MetaAnalysis{
			TotalExperts:  len(sess.SuccessfulSteps()),
			Mode:          sess.Mode,
			ReportsCount:  len(reports),
			FailedSteps:   sess.FailedSteps(),
			OriginalSteps: len(sess.Steps),
		},
		CreatedAt: s.now().UTC(),
	}, nil
}

// CachedReports reports how many reports are held.
func (s *Synthesizer) CachedReports() int {
	return s.cache.Len()
}
