// Package scraper runs the heatmap pipeline for one video or a batch of them.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/replay-heatmap/internal/fetcher/colly"
	"github.com/JakeFAU/replay-heatmap/internal/heatmap"
	"github.com/JakeFAU/replay-heatmap/internal/metrics"
	"github.com/JakeFAU/replay-heatmap/internal/telemetry"
	"github.com/JakeFAU/replay-heatmap/internal/transport"
	"github.com/JakeFAU/replay-heatmap/internal/videoid"
)

// DefaultConcurrency bounds in-flight batch items when Config.Concurrency is unset.
const DefaultConcurrency = 5

// Config is the fetch configuration shared by every item of a call. Zero
// fields take the transport defaults.
type Config struct {
	Timeout           time.Duration
	UserAgent         string
	Headers           http.Header
	Retries           int
	RetryDelay        time.Duration
	RequestsPerSecond float64
	MaxBodySize       int
	// Concurrency applies to FetchBatch only.
	Concurrency int
	// Transport replaces the network fetcher, mostly for tests.
	Transport transport.Fetcher
}

// Scraper fetches and normalizes heatmaps. It holds no per-call state and is
// safe for concurrent use.
type Scraper struct {
	client      *transport.Client
	concurrency int
	logger      *zap.Logger
}

// New builds a Scraper. A nil logger discards output.
func New(cfg Config, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	fetcher := cfg.Transport
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			Timeout:     cfg.Timeout,
			MaxBodySize: cfg.MaxBodySize,
		})
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	client := transport.New(fetcher, transport.Config{
		Timeout:           cfg.Timeout,
		UserAgent:         cfg.UserAgent,
		Headers:           cfg.Headers,
		Retries:           cfg.Retries,
		RetryDelay:        cfg.RetryDelay,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger.Named("transport"))
	return &Scraper{
		client:      client,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Fetch runs a single lookup with a throwaway Scraper built from cfg.
func Fetch(ctx context.Context, input string, cfg Config) (*heatmap.Summary, error) {
	return New(cfg, nil).Fetch(ctx, input)
}

// FetchBatch is the batch form of Fetch.
func FetchBatch(ctx context.Context, inputs []string, cfg Config) []heatmap.BatchItemResult {
	return New(cfg, nil).FetchBatch(ctx, inputs)
}

// Fetch returns the heatmap for input, a video id or URL. A nil Summary with a
// nil error means the page carries no heatmap.
func (s *Scraper) Fetch(ctx context.Context, input string) (*heatmap.Summary, error) {
	id, err := videoid.Parse(input)
	if err != nil {
		metrics.ObserveVideo(heatmap.KindName(err))
		return nil, err
	}
	return s.fetchID(ctx, id)
}

// FetchBatch fetches every input and returns one result per input, in input
// order. Invalid inputs are rejected up front. The rest run in windows of at
// most Concurrency items; each window finishes before the next starts.
// Failures are recorded on their own item and never returned.
func (s *Scraper) FetchBatch(ctx context.Context, inputs []string) []heatmap.BatchItemResult {
	results := make([]heatmap.BatchItemResult, len(inputs))

	type pending struct {
		index int
		id    string
	}
	queue := make([]pending, 0, len(inputs))
	for i, input := range inputs {
		results[i].Key = input
		id, err := videoid.Parse(input)
		if err != nil {
			metrics.ObserveVideo(heatmap.KindName(err))
			results[i].Err = err
			continue
		}
		queue = append(queue, pending{index: i, id: id})
	}

	for start := 0; start < len(queue); start += s.concurrency {
		end := min(start+s.concurrency, len(queue))
		var wg sync.WaitGroup
		for _, p := range queue[start:end] {
			p := p
			wg.Add(1)
			go func() {
				defer wg.Done()
				data, err := s.fetchItem(ctx, p.id)
				if err != nil {
					s.logger.Warn("batch item failed",
						zap.Int("index", p.index),
						zap.String("key", inputs[p.index]),
						zap.Error(err),
					)
				}
				results[p.index].Data = data
				results[p.index].Err = err
			}()
		}
		wg.Wait()
	}
	return results
}

// fetchItem isolates a batch item so that a panic only fails that item.
func (s *Scraper) fetchItem(ctx context.Context, id string) (summary *heatmap.Summary, err error) {
	metrics.IncInflight()
	defer metrics.DecInflight()
	defer func() {
		if rec := recover(); rec != nil {
			summary = nil
			err = &heatmap.Error{Kind: heatmap.ErrFetchFailed, VideoID: id, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return s.fetchID(ctx, id)
}

func (s *Scraper) fetchID(ctx context.Context, id string) (*heatmap.Summary, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "heatmap.fetch",
		trace.WithAttributes(attribute.String("video.id", id)))
	defer span.End()

	summary, err := s.pipeline(ctx, id)
	switch {
	case err != nil:
		kind := heatmap.KindName(err)
		metrics.ObserveVideo(kind)
		span.SetAttributes(attribute.String("heatmap.outcome", kind))
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		return nil, heatmap.WithVideoID(err, id)
	case summary == nil:
		metrics.ObserveVideo("no_data")
		span.SetAttributes(attribute.String("heatmap.outcome", "no_data"))
		s.logger.Debug("no heatmap", zap.String("video_id", id))
		return nil, nil
	default:
		metrics.ObserveVideo("ok")
		span.SetAttributes(
			attribute.String("heatmap.outcome", "ok"),
			attribute.Int("heatmap.markers", len(summary.Markers)),
		)
		return summary, nil
	}
}

func (s *Scraper) pipeline(ctx context.Context, id string) (*heatmap.Summary, error) {
	html, err := s.client.Get(ctx, heatmap.WatchURL(id))
	if err != nil {
		return nil, err
	}
	doc, err := heatmap.ExtractDocument(html)
	if err != nil {
		return nil, err
	}
	list, ok, err := heatmap.Locate(doc)
	if err != nil || !ok {
		return nil, err
	}
	summary := heatmap.Normalize(id, list)
	if len(summary.Markers) == 0 {
		return nil, nil
	}
	return summary, nil
}
