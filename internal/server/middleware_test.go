package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func checkHeader(t *testing.T, rec *httptest.ResponseRecorder, name, want string) {
	t.Helper()
	if got := rec.Header().Get(name); got != want {
		t.Errorf("header %s = %q, want %q", name, got, want)
	}
}

// =============================================================================
// RateLimitHeadersMiddleware Tests
// =============================================================================

func TestRateLimitHeadersMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRateLimits(r.Context(), &RateLimitInfo{
			Limit:     10,
			Remaining: 7,
			ResetAt:   1714564800,
		})
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/chat", nil)
	rec := httptest.NewRecorder()
	RateLimitHeadersMiddleware(handler).ServeHTTP(rec, req)

	checkHeader(t, rec, "x-ratelimit-limit-requests", "10")
	checkHeader(t, rec, "x-ratelimit-remaining-requests", "7")
	checkHeader(t, rec, "x-ratelimit-reset-requests", "1714564800")
	checkHeader(t, rec, "Retry-After", "")
}

func TestRateLimitHeadersMiddleware_Rejected(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRateLimits(r.Context(), &RateLimitInfo{Limit: 5, Remaining: 0, RetryAfter: 2})
		w.WriteHeader(http.StatusTooManyRequests)
	})

	rec := httptest.NewRecorder()
	RateLimitHeadersMiddleware(handler).ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat", nil))

	checkHeader(t, rec, "x-ratelimit-remaining-requests", "0")
	checkHeader(t, rec, "Retry-After", "2")
}

func TestRateLimitHeadersMiddleware_NoRateLimits(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	RateLimitHeadersMiddleware(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	for name := range rec.Header() {
		if strings.HasPrefix(strings.ToLower(name), "x-ratelimit") {
			t.Errorf("unexpected header %s", name)
		}
	}
}

func TestGetRateLimits(t *testing.T) {
	if GetRateLimits(context.Background()) != nil {
		t.Error("GetRateLimits() without middleware should be nil")
	}
	SetRateLimits(context.Background(), &RateLimitInfo{Limit: 1}) // no-op, must not panic

	var got *RateLimitInfo
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRateLimits(r.Context(), &RateLimitInfo{Limit: 3})
		got = GetRateLimits(r.Context())
	})
	RateLimitHeadersMiddleware(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got == nil || got.Limit != 3 {
		t.Errorf("GetRateLimits() = %+v, want Limit 3", got)
	}
}

// =============================================================================
// RequestIDMiddleware Tests
// =============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	var ctxID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
	})

	rec := httptest.NewRecorder()
	RequestIDMiddleware(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	headerID := rec.Header().Get("X-Request-ID")
	if headerID == "" {
		t.Fatal("X-Request-ID header not set")
	}
	if headerID != ctxID {
		t.Errorf("header ID %q != context ID %q", headerID, ctxID)
	}
}

func TestRequestIDMiddleware_ReusesCallerID(t *testing.T) {
	callerID := uuid.NewString()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", callerID)
	rec := httptest.NewRecorder()
	RequestIDMiddleware(handler).ServeHTTP(rec, req)
	checkHeader(t, rec, "X-Request-ID", callerID)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "trace-7f3a.retry_2")
	rec = httptest.NewRecorder()
	RequestIDMiddleware(handler).ServeHTTP(rec, req)
	checkHeader(t, rec, "X-Request-ID", "trace-7f3a.retry_2")

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "not a uuid\nX-Injected: 1")
	rec = httptest.NewRecorder()
	RequestIDMiddleware(handler).ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == req.Header.Get("X-Request-ID") {
		t.Error("malformed caller request ID should be replaced")
	}
}

func TestWithRequestID_SurvivesWithoutCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(WithRequestID(context.Background(), "req-1"))
	cancel()
	if id := GetRequestID(context.WithoutCancel(ctx)); id != "req-1" {
		t.Errorf("GetRequestID() = %q, want req-1", id)
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("GetRequestID() = %q, want empty", id)
	}
}

// =============================================================================
// TimeoutMiddleware Tests
// =============================================================================

func TestTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	})

	TimeoutMiddleware(5*time.Second)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !ok {
		t.Fatal("expected a deadline on the request context")
	}
	if until := time.Until(deadline); until <= 0 || until > 5*time.Second {
		t.Errorf("deadline in %v, want within 5s", until)
	}
}

func TestTimeoutMiddleware_Disabled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("zero timeout should not set a deadline")
		}
	})
	TimeoutMiddleware(0)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestTimeoutMiddleware_ContextCancelled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			w.WriteHeader(http.StatusGatewayTimeout)
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	})

	rec := httptest.NewRecorder()
	TimeoutMiddleware(10*time.Millisecond)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

// =============================================================================
// LoggingMiddleware Tests
// =============================================================================

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "user_id", "u1")
		AddLogField(r.Context(), "empty", "")
		AddError(r.Context(), errors.New("boom"))
		AddError(r.Context(), nil)
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("no credits"))
	})

	wrapped := RequestIDMiddleware(LoggingMiddleware(logger)(testHandler))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/orchestrations", nil))

	output := buf.String()
	for _, want := range []string{"request started", "request completed", "/api/orchestrations", "status=402", "user_id=u1", "error=boom", "bytes=10"} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "empty=") {
		t.Error("empty fields should not be logged")
	}
}

func TestLoggingMiddleware_ServerErrorsAtErrorLevel(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("expected ERROR level completion log:\n%s", buf.String())
	}
}

func TestAddLogField_NoContext(t *testing.T) {
	// Should not panic without the middleware.
	AddLogField(context.Background(), "key", "value")
	AddError(context.Background(), errors.New("x"))
}
