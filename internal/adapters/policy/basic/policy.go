// Package basic admits every request. The gateway falls back to it when
// rate limiting is off.
package basic

import (
	"context"

	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

var _ ports.QualityPolicy = (*Policy)(nil)

// Policy admits everything and reports no rate-limit state.
type Policy struct{}

func NewPolicy() *Policy { return &Policy{} }

func (*Policy) CheckRequest(context.Context, *ports.PolicyRequest) (*ports.PolicyDecision, error) {
	return &ports.PolicyDecision{Allow: true, Reason: "rate limiting disabled"}, nil
}
