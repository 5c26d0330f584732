package ports

import (
	"context"

	"github.com/tjfontaine/promptlink-gateway/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default), static.
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// QualityPolicy decides whether a request may proceed before any credits are
// charged or upstream calls are made.
// Implementations: ratelimit (token bucket per user), allow-all.
type QualityPolicy interface {
	CheckRequest(ctx context.Context, req *PolicyRequest) (*PolicyDecision, error)
}

// PolicyRequest contains request context for policy checks.
type PolicyRequest struct {
	UserID    string
	Operation string
}

// PolicyDecision is the result of a policy check.
type PolicyDecision struct {
	Allow         bool
	Reason        string
	RetryAfter    int // seconds
	RateLimitInfo *RateLimitInfo
}

// RateLimitInfo contains rate limit information.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   int64 // Unix timestamp
}
