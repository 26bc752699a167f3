// Package transport fetches watch pages with a per-attempt timeout and a
// linear retry policy.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/replay-heatmap/internal/heatmap"
	"github.com/JakeFAU/replay-heatmap/internal/metrics"
	"github.com/JakeFAU/replay-heatmap/internal/policy/ratelimit"
)

// Defaults applied to zero Config fields.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 1
	DefaultRetryDelay = time.Second
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Request describes a single GET.
type Request struct {
	URL       string
	UserAgent string
	Headers   http.Header
}

// Response is what a Fetcher observed. Non-2xx statuses are not errors at
// this level.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Fetcher performs one network attempt. Implementations must honour ctx.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (Response, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Config controls timeouts and retries.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	Headers   http.Header
	// Retries is the total number of attempts, not the number of re-tries.
	Retries    int
	RetryDelay time.Duration
	// RequestsPerSecond paces attempts across callers sharing the Client; 0 disables pacing.
	RequestsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// Client wraps a Fetcher with the retry policy.
type Client struct {
	fetcher Fetcher
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a Client. A nil logger discards output.
func New(fetcher Fetcher, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Client{
		fetcher: fetcher,
		cfg:     cfg,
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.RequestsPerSecond, Burst: 1}),
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Get fetches url and returns the body of the first 2xx response.
//
// Statuses >= 500 and 429 are retried, other statuses fail at once. Network
// errors and timeouts are retried. Before retry n the client waits
// RetryDelay*n. When attempts run out the last failure is returned.
func (c *Client) Get(ctx context.Context, url string) (string, error) {
	if c.fetcher == nil {
		return "", &heatmap.Error{Kind: heatmap.ErrFetchFailed, Err: errors.New("no fetcher configured")}
	}
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 1 {
			delay := c.cfg.RetryDelay * time.Duration(attempt-1)
			c.logger.Debug("retrying fetch",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return "", &heatmap.Error{Kind: heatmap.ErrFetchFailed, Err: fmt.Errorf("retry wait: %w", err)}
			}
		}

		body, retryable, err := c.attempt(ctx, url)
		if err == nil {
			metrics.ObserveFetchAttempt("ok")
			return body, nil
		}
		metrics.ObserveFetchAttempt(heatmap.KindName(err))
		lastErr = err
		if !retryable {
			break
		}
	}
	c.logger.Warn("fetch failed", zap.String("url", url), zap.Error(lastErr))
	return "", lastErr
}

// attempt performs one bounded fetch and classifies the outcome.
func (c *Client) attempt(ctx context.Context, url string) (string, bool, error) {
	if err := c.limiter.Wait(ctx, url); err != nil {
		return "", false, &heatmap.Error{Kind: heatmap.ErrFetchFailed, Err: err}
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.fetcher.Fetch(attemptCtx, Request{
		URL:       url,
		UserAgent: c.cfg.UserAgent,
		Headers:   c.cfg.Headers,
	})
	metrics.ObserveFetchDuration(time.Since(start))
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// The caller gave up; no point in trying again.
			return "", false, &heatmap.Error{Kind: heatmap.ErrFetchFailed, Err: err}
		case isTimeout(attemptCtx, err):
			return "", true, &heatmap.Error{Kind: heatmap.ErrTimedOut, Err: err}
		default:
			return "", true, &heatmap.Error{Kind: heatmap.ErrFetchFailed, Err: err}
		}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return string(resp.Body), false, nil
	}
	statusErr := &heatmap.Error{
		Kind:       heatmap.ErrFetchFailed,
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
	}
	return "", RetryableStatus(resp.StatusCode), statusErr
}

// RetryableStatus reports whether an HTTP status is worth another attempt.
func RetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func isTimeout(attemptCtx context.Context, err error) bool {
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusText(resp Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
