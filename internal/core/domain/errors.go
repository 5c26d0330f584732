// Package domain holds the core types shared by the orchestration engine,
// the credit ledger and the HTTP front door, plus the canonical error taxonomy.
package domain

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeInsufficientCredits indicates the ledger refused to charge the user.
	ErrorTypeInsufficientCredits ErrorType = "insufficient_credits"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeNotReady indicates the resource exists but is not in a usable state yet.
	ErrorTypeNotReady ErrorType = "not_ready"

	// ErrorTypeRateLimit indicates rate limiting was triggered.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeUpstream indicates the chat-completion provider failed.
	ErrorTypeUpstream ErrorType = "upstream"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeAgentNotFound        ErrorCode = "agent_not_found"
	ErrorCodeSessionNotFound      ErrorCode = "session_not_found"
	ErrorCodePlanNotFound         ErrorCode = "plan_not_found"
	ErrorCodeUpgradeRequired      ErrorCode = "upgrade_required"
	ErrorCodeUnknownSynthesisType ErrorCode = "unknown_synthesis_type"
	ErrorCodeRateLimitExceeded    ErrorCode = "rate_limit_exceeded"
	ErrorCodeUpstreamRateLimited  ErrorCode = "upstream_rate_limited"
	ErrorCodeUpstreamTimeout      ErrorCode = "upstream_timeout"
	ErrorCodeUpstreamBadStatus    ErrorCode = "upstream_bad_status"
	ErrorCodeUpstreamMalformed    ErrorCode = "upstream_malformed_response"
)

// APIError represents a canonical API error that handlers translate into a
// JSON error envelope.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Param is the parameter that caused the error (if applicable)
	Param string `json:"param,omitempty"`

	// StatusCode is the suggested HTTP status code
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeInsufficientCredits:
		return http.StatusPaymentRequired
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeNotReady:
		return http.StatusConflict
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// Convenience constructors for common errors

// ErrInvalidInput creates an invalid request error.
func ErrInvalidInput(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

// ErrInsufficientCredits creates an insufficient credits error.
func ErrInsufficientCredits(message string) *APIError {
	return NewAPIError(ErrorTypeInsufficientCredits, message)
}

// ErrSessionNotFound creates a not found error for an orchestration session.
func ErrSessionNotFound(sessionID string) *APIError {
	return NewAPIError(ErrorTypeNotFound, fmt.Sprintf("session %s not found", sessionID)).
		WithCode(ErrorCodeSessionNotFound)
}

// ErrNotReady creates a not ready error.
func ErrNotReady(message string) *APIError {
	return NewAPIError(ErrorTypeNotReady, message)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message).
		WithCode(ErrorCodeRateLimitExceeded)
}

// ErrUpstream creates an upstream provider error.
func ErrUpstream(message string) *APIError {
	return NewAPIError(ErrorTypeUpstream, message)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}
