package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/replay-heatmap/internal/config"
	"github.com/JakeFAU/replay-heatmap/internal/heatmap"
	"github.com/JakeFAU/replay-heatmap/internal/metrics"
)

// Scraper is the subset of scraper.Scraper used by the handlers.
type Scraper interface {
	Fetch(ctx context.Context, input string) (*heatmap.Summary, error)
	FetchBatch(ctx context.Context, inputs []string) []heatmap.BatchItemResult
}

// Server wires HTTP handlers to the scraper.
type Server struct {
	router   chi.Router
	scraper  Scraper
	cfg      config.Config
	logger   *zap.Logger
	validate *validator.Validate
}

// NewServer constructs a Server with middleware and routes.
func NewServer(scraper Scraper, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		scraper:  scraper,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
	}
	requestTimeout := cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/videos/{video_id}/heatmap", s.getHeatmap)
		r.Post("/heatmaps/batch", s.batchHeatmaps)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type heatmapResponse struct {
	*heatmap.Summary
	Duration   string           `json:"duration"`
	PeakAt     string           `json:"peak_at,omitempty"`
	Top        []heatmap.Marker `json:"top,omitempty"`
	Highlights []heatmap.Marker `json:"highlights,omitempty"`
}

func (s *Server) getHeatmap(w http.ResponseWriter, r *http.Request) {
	top, err := intQuery(r, "top")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, kindInvalidRequest, "top must be a non-negative integer")
		return
	}
	minIntensity, hasMin, err := floatQuery(r, "min_intensity")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, kindInvalidRequest, "min_intensity must be a number")
		return
	}

	summary, err := s.scraper.Fetch(r.Context(), chi.URLParam(r, "video_id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if summary == nil {
		s.writeFailure(w, heatmap.ErrNoData)
		return
	}

	resp := heatmapResponse{
		Summary:  summary,
		Duration: heatmap.FormatMillis(summary.EstimatedDurationMillis),
	}
	if summary.Peak != nil {
		resp.PeakAt = heatmap.FormatMillis(summary.Peak.StartMillis)
	}
	if top > 0 {
		resp.Top = heatmap.TopMarkers(summary.Markers, top)
	}
	if hasMin {
		resp.Highlights = heatmap.MarkersAbove(summary.Markers, minIntensity)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Videos []string `json:"videos" validate:"required,min=1,dive,required"`
}

// Error kinds for failures outside the heatmap taxonomy.
const (
	kindInvalidRequest = "InvalidRequest"
	kindTooLarge       = "PayloadTooLarge"
	kindUnauthorized   = "Unauthorized"
	kindInternal       = "Internal"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type batchItemResponse struct {
	Key   string           `json:"key"`
	Data  *heatmap.Summary `json:"data"`
	Error *errorBody       `json:"error,omitempty"`
}

func (s *Server) batchHeatmaps(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, kindInvalidRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, kindInvalidRequest, "videos must be a non-empty list of ids or URLs")
		return
	}
	if limit := s.cfg.Batch.MaxItems; limit > 0 && len(req.Videos) > limit {
		s.writeError(w, http.StatusRequestEntityTooLarge, kindTooLarge, fmt.Sprintf("at most %d videos per batch", limit))
		return
	}

	results := s.scraper.FetchBatch(r.Context(), req.Videos)
	out := make([]batchItemResponse, len(results))
	for i, res := range results {
		out[i] = batchItemResponse{Key: res.Key, Data: res.Data}
		if res.Err != nil {
			out[i].Error = &errorBody{Kind: heatmap.KindName(res.Err), Message: res.Err.Error()}
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch heatmap.KindOf(err) {
	case heatmap.ErrInvalidVideoID:
		return http.StatusBadRequest
	case heatmap.ErrNoData:
		return http.StatusNotFound
	case heatmap.ErrTimedOut:
		return http.StatusGatewayTimeout
	case heatmap.ErrFetchFailed, heatmap.ErrParseFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func floatQuery(r *http.Request, key string) (float64, bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, true, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("error", rec),
				)
				s.writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

const timeoutBody = `{"error":{"kind":"TimedOut","message":"request timed out"}}`

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, timeoutBody)
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeJSON(w, http.StatusForbidden, errorResponse{
					Error: errorBody{Kind: kindUnauthorized, Message: "missing or invalid API key"},
				}, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("heatmap lookup failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{
		Error: errorBody{Kind: heatmap.KindName(err), Message: err.Error()},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.logger)
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, msg string) {
	s.writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
