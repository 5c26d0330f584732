package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
)

// RateLimitInfo is the caller's request budget after a policy check.
type RateLimitInfo struct {
	Limit      int
	Remaining  int
	ResetAt    int64 // Unix seconds
	RetryAfter int   // seconds; only set on rejection
}

type rateLimitContextKey struct{}

type rateLimitSlot struct {
	mu   sync.Mutex
	info *RateLimitInfo
}

// SetRateLimits records rl for RateLimitHeadersMiddleware to emit. Handlers
// call it after checking the quality policy. No-op without the middleware.
func SetRateLimits(ctx context.Context, rl *RateLimitInfo) {
	if slot, ok := ctx.Value(rateLimitContextKey{}).(*rateLimitSlot); ok {
		slot.mu.Lock()
		slot.info = rl
		slot.mu.Unlock()
	}
}

// GetRateLimits returns the info recorded for this request, or nil.
func GetRateLimits(ctx context.Context) *RateLimitInfo {
	if slot, ok := ctx.Value(rateLimitContextKey{}).(*rateLimitSlot); ok {
		slot.mu.Lock()
		defer slot.mu.Unlock()
		return slot.info
	}
	return nil
}

// RateLimitHeadersMiddleware writes x-ratelimit-* headers, and Retry-After
// on rejections, from the info a handler recorded with SetRateLimits.
func RateLimitHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slot := &rateLimitSlot{}
		ctx := context.WithValue(r.Context(), rateLimitContextKey{}, slot)
		next.ServeHTTP(&rateLimitResponseWriter{ResponseWriter: w, slot: slot}, r.WithContext(ctx))
	})
}

type rateLimitResponseWriter struct {
	http.ResponseWriter
	slot         *rateLimitSlot
	wroteHeaders bool
}

func (rw *rateLimitResponseWriter) WriteHeader(code int) {
	rw.writeHeaders()
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *rateLimitResponseWriter) Write(b []byte) (int, error) {
	rw.writeHeaders()
	return rw.ResponseWriter.Write(b)
}

func (rw *rateLimitResponseWriter) writeHeaders() {
	if rw.wroteHeaders {
		return
	}
	rw.wroteHeaders = true

	rw.slot.mu.Lock()
	rl := rw.slot.info
	rw.slot.mu.Unlock()
	if rl == nil {
		return
	}

	h := rw.Header()
	if rl.Limit > 0 {
		h.Set("x-ratelimit-limit-requests", strconv.Itoa(rl.Limit))
		// 0 remaining is meaningful once a limit is known.
		h.Set("x-ratelimit-remaining-requests", strconv.Itoa(rl.Remaining))
	}
	if rl.ResetAt > 0 {
		h.Set("x-ratelimit-reset-requests", strconv.FormatInt(rl.ResetAt, 10))
	}
	if rl.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(rl.RetryAfter))
	}
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher.
func (rw *rateLimitResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
