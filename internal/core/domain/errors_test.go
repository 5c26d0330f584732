package domain

import (
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "error with type and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"},
			expected: "invalid_request: bad request",
		},
		{
			name:     "error with type, code, and message",
			err:      &APIError{Type: ErrorTypeRateLimit, Code: ErrorCodeRateLimitExceeded, Message: "rate limited"},
			expected: "rate_limit (rate_limit_exceeded): rate limited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{
			name:     "invalid request",
			err:      &APIError{Type: ErrorTypeInvalidRequest},
			expected: http.StatusBadRequest,
		},
		{
			name:     "insufficient credits",
			err:      &APIError{Type: ErrorTypeInsufficientCredits},
			expected: http.StatusPaymentRequired,
		},
		{
			name:     "not found error",
			err:      &APIError{Type: ErrorTypeNotFound},
			expected: http.StatusNotFound,
		},
		{
			name:     "not ready error",
			err:      &APIError{Type: ErrorTypeNotReady},
			expected: http.StatusConflict,
		},
		{
			name:     "rate limit error",
			err:      &APIError{Type: ErrorTypeRateLimit},
			expected: http.StatusTooManyRequests,
		},
		{
			name:     "upstream error",
			err:      &APIError{Type: ErrorTypeUpstream},
			expected: http.StatusBadGateway,
		},
		{
			name:     "server error",
			err:      &APIError{Type: ErrorTypeServer},
			expected: http.StatusInternalServerError,
		},
		{
			name:     "unknown error type",
			err:      &APIError{Type: ErrorType("unknown")},
			expected: http.StatusInternalServerError,
		},
		{
			name:     "explicit status code",
			err:      &APIError{Type: ErrorTypeInvalidRequest, StatusCode: http.StatusUnprocessableEntity},
			expected: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name         string
		err          *APIError
		expectedType ErrorType
		expectedCode ErrorCode
	}{
		{"ErrInvalidInput", ErrInvalidInput("empty prompt"), ErrorTypeInvalidRequest, ""},
		{"ErrInsufficientCredits", ErrInsufficientCredits("need 20"), ErrorTypeInsufficientCredits, ""},
		{"ErrSessionNotFound", ErrSessionNotFound("chain_1"), ErrorTypeNotFound, ErrorCodeSessionNotFound},
		{"ErrNotReady", ErrNotReady("running"), ErrorTypeNotReady, ""},
		{"ErrRateLimit", ErrRateLimit("slow down"), ErrorTypeRateLimit, ErrorCodeRateLimitExceeded},
		{"ErrUpstream", ErrUpstream("bad gateway"), ErrorTypeUpstream, ""},
		{"ErrServer", ErrServer("boom"), ErrorTypeServer, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.expectedType {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.expectedType)
			}
			if tt.err.Code != tt.expectedCode {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.expectedCode)
			}
		})
	}
}

func TestErrSessionNotFound_Message(t *testing.T) {
	err := ErrSessionNotFound("panel_123")
	if err.Message != "session panel_123 not found" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestAPIError_Chaining(t *testing.T) {
	err := NewAPIError(ErrorTypeInvalidRequest, "test").
		WithCode(ErrorCodeAgentNotFound).
		WithParam("agent_id").
		WithStatusCode(http.StatusBadRequest)

	if err.Type != ErrorTypeInvalidRequest {
		t.Errorf("Type = %v, want %v", err.Type, ErrorTypeInvalidRequest)
	}
	if err.Code != ErrorCodeAgentNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrorCodeAgentNotFound)
	}
	if err.Param != "agent_id" {
		t.Errorf("Param = %q, want %q", err.Param, "agent_id")
	}
	if err.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, http.StatusBadRequest)
	}
}
