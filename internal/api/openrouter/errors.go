package openrouter

import (
	"fmt"
)

// Kind classifies upstream failures for retry and reporting.
type Kind string

const (
	KindRateLimited       Kind = "rate_limited"
	KindTimeout           Kind = "timeout"
	KindBadStatus         Kind = "bad_status"
	KindMalformedResponse Kind = "malformed_response"
	// KindTransport covers connection failures that are not timeouts.
	KindTransport Kind = "transport"
)

// UpstreamError is returned by Complete for every provider-side failure.
type UpstreamError struct {
	Kind       Kind
	Model      string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch e.Kind {
	case KindBadStatus:
		return fmt.Sprintf("upstream %s: status %d: %s", e.Model, e.StatusCode, truncate(e.Body, 256))
	case KindRateLimited:
		return fmt.Sprintf("upstream %s: rate limited", e.Model)
	default:
		if e.Err != nil {
			return fmt.Sprintf("upstream %s: %s: %v", e.Model, e.Kind, e.Err)
		}
		return fmt.Sprintf("upstream %s: %s", e.Model, e.Kind)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
