// Package papersources provides the HTTP transport shared by scholarly API clients.
package papersources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultTimeout is the per-call timeout for HTTP operations.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is the request ceiling in requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the maximum burst of requests allowed.
	DefaultBurstSize = 1

	// DefaultUserAgent is sent when no contact-bearing agent is configured.
	DefaultUserAgent = "Institution Sync"
)

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// From is the contact address sent in the From header. Optional.
	From string
}

// HTTPClient wraps http.Client with a request-rate ceiling and the identifying
// headers polite API clients are expected to send.
//
// Do performs exactly one attempt. Retrying throttled requests is the caller's
// job so that the caller can decide about page sizes and cursors.
type HTTPClient struct {
	client  *http.Client
	limiter *RateLimiter
	config  HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:  cfg,
	}
}

// UserAgentFor returns the User-Agent string that embeds a contact email.
func UserAgentFor(email string) string {
	if email == "" {
		return DefaultUserAgent
	}
	return DefaultUserAgent + " (+mailto:" + email + ")"
}

// Do waits for the rate limiter, sets the default headers and executes req once.
// Network errors are returned unchanged.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.From != "" && req.Header.Get("From") == "" {
		req.Header.Set("From", c.config.From)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	// Sends "Connection: close" and drops the connection after the response.
	req.Close = true

	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Limiter returns the request-rate limiter shared by every call to Do.
func (c *HTTPClient) Limiter() *RateLimiter {
	return c.limiter
}

// IsThrottleStatus reports whether statusCode is one of the codes the
// scholarly APIs use to signal throttling (403 Forbidden, 429 Too Many Requests).
func IsThrottleStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusForbidden
}

// ParseRetryAfter interprets a Retry-After header value, either as integer
// seconds or as an HTTP date. Empty, invalid, zero and past values yield 0.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return 0
}
