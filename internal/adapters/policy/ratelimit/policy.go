// Package ratelimit provides a per-user token bucket quality policy.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

const (
	anonymousKey = "anonymous"
	maxIdle      = 10 * time.Minute
	sweepAbove   = 10000
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Policy limits each user to a steady request rate with a burst allowance.
type Policy struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	now     func() time.Time
}

var _ ports.QualityPolicy = (*Policy)(nil)

// New creates a policy allowing rps requests per second per user with the
// given burst.
func New(rps float64, burst int) *Policy {
	if burst < 1 {
		burst = 1
	}
	return &Policy{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Update changes the limits for existing and future users.
func (p *Policy) Update(rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.limit = rate.Limit(rps)
	p.burst = burst
	for _, b := range p.buckets {
		b.limiter.SetLimitAt(now, p.limit)
		b.limiter.SetBurstAt(now, burst)
	}
}

// CheckRequest takes one token from the caller's bucket.
func (p *Policy) CheckRequest(ctx context.Context, req *ports.PolicyRequest) (*ports.PolicyDecision, error) {
	key := anonymousKey
	if req != nil && req.UserID != "" {
		key = req.UserID
	}

	p.mu.Lock()
	now := p.now()
	b := p.bucketFor(key, now)
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	limit, burst := p.limit, p.burst
	p.mu.Unlock()

	info := &ports.RateLimitInfo{
		Limit:     burst,
		Remaining: max(int(math.Floor(tokens)), 0),
		ResetAt:   now.Add(refillTime(limit, burst, tokens)).Unix(),
	}

	if allowed {
		return &ports.PolicyDecision{Allow: true, RateLimitInfo: info}, nil
	}

	retry := int(math.Ceil(refillTime(limit, 1, tokens).Seconds()))
	return &ports.PolicyDecision{
		Allow:         false,
		Reason:        "rate limit exceeded",
		RetryAfter:    max(retry, 1),
		RateLimitInfo: info,
	}, nil
}

// bucketFor must be called with p.mu held.
func (p *Policy) bucketFor(key string, now time.Time) *bucket {
	b, ok := p.buckets[key]
	if !ok {
		if len(p.buckets) >= sweepAbove {
			p.sweep(now)
		}
		b = &bucket{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

func (p *Policy) sweep(now time.Time) {
	for k, b := range p.buckets {
		if now.Sub(b.lastSeen) > maxIdle {
			delete(p.buckets, k)
		}
	}
}

// refillTime is how long until the bucket holds target tokens.
func refillTime(limit rate.Limit, target int, tokens float64) time.Duration {
	missing := float64(target) - tokens
	if missing <= 0 || limit <= 0 {
		return 0
	}
	return time.Duration(missing / float64(limit) * float64(time.Second))
}
