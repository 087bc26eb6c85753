// Package openai is a small REST client for the OpenAI embeddings and chat completions
// endpoints. Transient failures are retried with bounded exponential backoff.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/apperr"
)

const defaultBaseURL = "https://api.openai.com"

// Config holds the connection and retry settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration // per attempt
	MaxRetries int
	RetryMin   time.Duration
	RetryMax   time.Duration
}

// Client talks to an OpenAI-compatible API. It is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryMin   time.Duration
	retryMax   time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for retry messages.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client. An empty API key is a configuration error.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperr.Configuration("OpenAI API key not found in settings")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryMin < 0 {
		cfg.RetryMin = 0
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = cfg.RetryMin
	}
	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries: cfg.MaxRetries,
		retryMin:   cfg.RetryMin,
		retryMax:   cfg.RetryMax,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryMin
	b.MaxInterval = c.retryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	return b
}

// postJSON sends in to path and decodes the JSON response into out, retrying
// transient provider failures. Auth and bad-request failures are returned at once.
func (c *Client) postJSON(ctx context.Context, op, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.doOnce(ctx, path, body, out)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil || !apperr.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("provider request retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.String("reason", apperr.ReasonOf(err)),
				zap.Error(err),
			)
		}),
	)
	return err
}

func (c *Client) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) doOnce(ctx context.Context, path string, body []byte, out any) error {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return classifyTransportError(ctx, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Provider(apperr.ReasonBadRequest, resp.StatusCode, "decode provider response", err)
	}
	return nil
}

// classifyStatus maps an HTTP status to a provider error reason.
func classifyStatus(status int, body []byte) error {
	msg := errorMessage(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.Provider(apperr.ReasonAuth, status, msg, nil)
	case status == http.StatusTooManyRequests:
		return apperr.Provider(apperr.ReasonRateLimit, status, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperr.Provider(apperr.ReasonTimeout, status, msg, nil)
	case status >= 500:
		return apperr.Provider(apperr.ReasonUnavailable, status, msg, nil)
	default:
		return apperr.Provider(apperr.ReasonBadRequest, status, msg, nil)
	}
}

// classifyTransportError maps a failed round trip. Per-attempt timeouts are
// retryable; cancellation of ctx stops the retry loop in postJSON.
func classifyTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return apperr.Provider(apperr.ReasonTimeout, 0, "deadline exceeded", ctxErr)
		}
		return apperr.Provider(apperr.ReasonUnavailable, 0, "request canceled", ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Provider(apperr.ReasonTimeout, 0, "request timed out", err)
	}
	return apperr.Provider(apperr.ReasonUnavailable, 0, "request failed", err)
}

func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	if msg == "" {
		msg = "empty response body"
	}
	return msg
}
