package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/testutil"
)

const okBody = `{"id":"gen-1","choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}]}`

func testMessages() []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: "You are concise."},
		{Role: domain.RoleUser, Content: "Say hello"},
	}
}

// newTestClient points a client at srv and records backoff delays instead of sleeping.
func newTestClient(srv *httptest.Server, opts ...ClientOption) (*Client, *[]time.Duration) {
	var delays []time.Duration
	opts = append([]ClientOption{WithBaseURL(srv.URL), WithHTTPClient(srv.Client())}, opts...)
	c := NewClient("test-key", opts...)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return c, &delays
}

func TestComplete_Success(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://thepromptlink.com", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "PromptLink", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv, WithAttribution("https://thepromptlink.com", "PromptLink"))
	text, err := c.Complete(context.Background(), "openai/gpt-4o", testMessages(), 1500, 0.7)

	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
	assert.Equal(t, "openai/gpt-4o", got.Model)
	assert.Equal(t, 1500, got.MaxTokens)
	assert.Equal(t, 0.7, got.Temperature)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestComplete_RateLimitedRetriesTwiceWithDoublingBackoff(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(srv, WithRetryBase(100*time.Millisecond))
	_, err := c.Complete(context.Background(), "m", testMessages(), 10, 0.7)

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, KindRateLimited, uerr.Kind)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *delays)
}

func TestComplete_RateLimitedThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c, delays := newTestClient(srv)
	text, err := c.Complete(context.Background(), "m", testMessages(), 10, 0.7)

	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
	assert.Len(t, *delays, 1)
}

func TestComplete_TimeoutRetriedOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(srv, WithTimeout(50*time.Millisecond))
	_, err := c.Complete(context.Background(), "m", testMessages(), 10, 0.7)

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, KindTimeout, uerr.Kind)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestComplete_BadStatusNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("provider down"))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv)
	_, err := c.Complete(context.Background(), "m", testMessages(), 10, 0.7)

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, KindBadStatus, uerr.Kind)
	assert.Equal(t, http.StatusBadGateway, uerr.StatusCode)
	assert.Equal(t, "provider down", uerr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestComplete_MalformedNotRetried(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"no choices", `{"choices":[]}`},
		{"no content", `{"choices":[{"message":{"role":"assistant"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := newTestClient(srv)
			_, err := c.Complete(context.Background(), "m", testMessages(), 10, 0.7)

			var uerr *UpstreamError
			require.True(t, errors.As(err, &uerr))
			assert.Equal(t, KindMalformedResponse, uerr.Kind)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestComplete_EmptyContentIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":""}}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv)
	text, err := c.Complete(context.Background(), "m", testMessages(), 10, 0.7)

	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestComplete_CallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c, _ := newTestClient(srv)
	_, err := c.Complete(ctx, "m", testMessages(), 10, 0.7)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestComplete_RecordedInteraction(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "openrouter_chat_completion")
	defer cleanup()

	c := NewClient("test-key",
		WithHTTPClient(testutil.VCRHTTPClient(r)),
		WithAttribution("https://thepromptlink.com", "PromptLink"),
	)

	text, err := c.Complete(context.Background(), "openai/gpt-4o", testMessages(), 64, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you today?", text)
}
