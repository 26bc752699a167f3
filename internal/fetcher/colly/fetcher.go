// Package collyfetcher implements transport.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/replay-heatmap/internal/transport"
)

// Config controls collector behavior.
type Config struct {
	// Timeout bounds the shared HTTP client; zero uses transport.DefaultTimeout.
	// Each attempt is also cancelled through its context.
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher implements transport.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	// Non-2xx responses are handed back so the retry policy can inspect them.
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newHTTPTransport())
	// Clones share the backend client, so the timeout is set once here.
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = transport.DefaultTimeout
	}
	c.SetRequestTimeout(timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request transport.Request) (transport.Response, error) {
	var (
		result   transport.Response
		fetchErr error
	)
	collector := f.buildCollector(ctx, request, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &result, &fetchErr); err != nil {
		return transport.Response{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request transport.Request,
	result *transport.Response,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.ParseHTTPErrorResponse = true
	if request.UserAgent != "" {
		collector.UserAgent = request.UserAgent
	}
	// The request is built with this context, so cancellation aborts it.
	collector.Context = ctx

	f.configureCollectorHooks(collector, request, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request transport.Request,
	result *transport.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = transport.Response{
			StatusCode: r.StatusCode,
			Status:     http.StatusText(r.StatusCode),
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		*fetchErr = err
		if r != nil && r.StatusCode != 0 {
			*result = transport.Response{
				StatusCode: r.StatusCode,
				Status:     http.StatusText(r.StatusCode),
				Body:       append([]byte(nil), r.Body...),
			}
		}
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	result *transport.Response,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		// A status-only failure still produced a response worth classifying.
		if result.StatusCode != 0 {
			return nil
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request transport.Request, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
