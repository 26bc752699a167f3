// Package metrics exposes Prometheus collectors for the heatmap service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchAttemptDuration       prometheus.Histogram
	videosTotal                *prometheus.CounterVec
	batchInflight              prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times, and the
// Observe helpers call it themselves.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heatmap_fetch_attempts_total",
				Help: "Total number of watch page fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchAttemptDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "heatmap_fetch_attempt_duration_seconds",
				Help:    "Histogram of single fetch attempt latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		videosTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heatmap_videos_total",
				Help: "Total number of videos processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		batchInflight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "heatmap_batch_inflight",
				Help: "Number of batch items currently being fetched.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heatmap_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt counts one transport attempt.
func ObserveFetchAttempt(outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchDuration records how long one attempt took.
func ObserveFetchDuration(d time.Duration) {
	Init()
	fetchAttemptDuration.Observe(d.Seconds())
}

// ObserveVideo counts the final outcome of one video lookup.
func ObserveVideo(outcome string) {
	Init()
	videosTotal.WithLabelValues(outcome).Inc()
}

// IncInflight increments the batch in-flight gauge.
func IncInflight() {
	Init()
	batchInflight.Inc()
}

// DecInflight decrements the batch in-flight gauge.
func DecInflight() {
	Init()
	batchInflight.Dec()
}

// ObserveRateLimitDelay records time spent blocked on the limiter for host.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
