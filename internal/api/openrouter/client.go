// Package openrouter is a minimal client for the OpenRouter chat-completion
// API with bounded retries on rate limiting and timeouts.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

const (
	defaultBaseURL   = "https://openrouter.ai/api/v1"
	defaultTimeout   = 60 * time.Second
	defaultRetryBase = time.Second
	defaultUserAgent = "promptlink-gateway/1.0"

	// Extra attempts after the first one.
	maxRateLimitRetries = 2
	maxTimeoutRetries   = 1
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the budget for a single attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryBase sets the first rate-limit backoff; each later one doubles.
func WithRetryBase(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.retryBase = d
		}
	}
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter uses
// to attribute traffic.
func WithAttribution(referer, title string) ClientOption {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client calls the chat-completion endpoint. It is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	referer    string
	title      string
	httpClient *http.Client
	timeout    time.Duration
	retryBase  time.Duration
	logger     *slog.Logger

	// sleep waits between rate-limit retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new OpenRouter API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
		retryBase:  defaultRetryBase,
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends one chat completion and returns the first choice's content.
// 429 responses are retried twice with doubling backoff and a timed-out
// attempt is retried once. Every other failure is returned immediately as an
// *UpstreamError. Cancellation of ctx is returned as ctx.Err().
func (c *Client) Complete(ctx context.Context, model string, messages []domain.Message, maxTokens int, temperature float64) (string, error) {
	req := &ChatCompletionRequest{
		Model:       model,
		Messages:    make([]ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	rateLimited, timedOut := 0, 0
	for {
		text, err := c.attempt(ctx, model, body)
		if err == nil {
			return text, nil
		}

		var uerr *UpstreamError
		if !errors.As(err, &uerr) {
			return "", err
		}

		switch uerr.Kind {
		case KindRateLimited:
			if rateLimited >= maxRateLimitRetries {
				return "", err
			}
			delay := c.retryBase << rateLimited
			rateLimited++
			c.logger.Warn("upstream rate limited, backing off",
				slog.String("model", model),
				slog.Int("retry", rateLimited),
				slog.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		case KindTimeout:
			if timedOut >= maxTimeoutRetries {
				return "", err
			}
			timedOut++
			c.logger.Warn("upstream timeout, retrying",
				slog.String("model", model),
				slog.Duration("timeout", c.timeout))
		default:
			return "", err
		}
	}
}

func (c *Client) attempt(ctx context.Context, model string, body []byte) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", c.classifyTransportError(ctx, attemptCtx, model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.classifyTransportError(ctx, attemptCtx, model, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &UpstreamError{Kind: KindRateLimited, Model: model, StatusCode: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode != http.StatusOK:
		return "", &UpstreamError{Kind: KindBadStatus, Model: model, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &UpstreamError{Kind: KindMalformedResponse, Model: model, StatusCode: resp.StatusCode, Body: string(respBody), Err: err}
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == nil {
		return "", &UpstreamError{Kind: KindMalformedResponse, Model: model, StatusCode: resp.StatusCode, Body: string(respBody),
			Err: errors.New("missing choices[0].message.content")}
	}

	return *result.Choices[0].Message.Content, nil
}

func (c *Client) classifyTransportError(parent, attemptCtx context.Context, model string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &UpstreamError{Kind: KindTimeout, Model: model, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &UpstreamError{Kind: KindTimeout, Model: model, Err: err}
	}
	return &UpstreamError{Kind: KindTransport, Model: model, Err: err}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", defaultUserAgent)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
