package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/replay-heatmap/internal/config"
	"github.com/JakeFAU/replay-heatmap/internal/heatmap"
)

func TestServer_GetHeatmap_Succeeds(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{summaries: map[string]*heatmap.Summary{"dQw4w9WgXcQ": sampleSummary("dQw4w9WgXcQ")}}
	server := newTestServer(scraper)

	req := httptest.NewRequest(http.MethodGet, "/v1/videos/dQw4w9WgXcQ/heatmap?top=1&min_intensity=0.5", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		VideoID  string           `json:"video_id"`
		Markers  []heatmap.Marker `json:"markers"`
		Duration string           `json:"duration"`
		PeakAt   string           `json:"peak_at"`
		Top      []heatmap.Marker `json:"top"`
		Highs    []heatmap.Marker `json:"highlights"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "dQw4w9WgXcQ", body.VideoID)
	assert.Len(t, body.Markers, 3)
	assert.Equal(t, "0:06", body.Duration)
	assert.Equal(t, "0:02", body.PeakAt)
	require.Len(t, body.Top, 1)
	assert.Equal(t, int64(2000), body.Top[0].StartMillis)
	assert.Len(t, body.Highs, 2)
	assert.Equal(t, []string{"dQw4w9WgXcQ"}, scraper.calls())
}

func TestServer_GetHeatmap_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{name: "invalid", err: &heatmap.Error{Kind: heatmap.ErrInvalidVideoID, VideoID: "x"}, status: http.StatusBadRequest, kind: "InvalidVideoId"},
		{name: "timeout", err: &heatmap.Error{Kind: heatmap.ErrTimedOut}, status: http.StatusGatewayTimeout, kind: "TimedOut"},
		{name: "fetch", err: &heatmap.Error{Kind: heatmap.ErrFetchFailed, StatusCode: 500}, status: http.StatusBadGateway, kind: "FetchFailed"},
		{name: "parse", err: &heatmap.Error{Kind: heatmap.ErrParseFailed}, status: http.StatusBadGateway, kind: "ParseFailed"},
		{name: "unknown", err: fmt.Errorf("boom"), status: http.StatusInternalServerError, kind: "Unknown"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(&fakeScraper{err: tc.err})
			req := httptest.NewRequest(http.MethodGet, "/v1/videos/abc/heatmap", nil)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			var body struct {
				Error errorBody `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.kind, body.Error.Kind)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestServer_GetHeatmap_NoDataIsNotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeScraper{})
	req := httptest.NewRequest(http.MethodGet, "/v1/videos/dQw4w9WgXcQ/heatmap", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NoDataAvailable")
}

func TestServer_GetHeatmap_BadQuery(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{}
	server := newTestServer(scraper)
	for _, q := range []string{"top=-1", "top=abc", "min_intensity=high"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/videos/dQw4w9WgXcQ/heatmap?"+q, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "InvalidRequest", decodeErrorKind(t, rec), q)
	}
	require.Empty(t, scraper.calls())
}

func TestServer_Batch_Succeeds(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{
		summaries: map[string]*heatmap.Summary{"validID1abc": sampleSummary("validID1abc")},
		batchErrs: map[string]error{"bogus": &heatmap.Error{Kind: heatmap.ErrInvalidVideoID, VideoID: "bogus"}},
	}
	server := newTestServer(scraper)

	reqBody := []byte(`{"videos":["validID1abc","bogus","validID2abc"]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/heatmaps/batch", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Results []batchItemResponse `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 3)

	assert.Equal(t, "validID1abc", body.Results[0].Key)
	require.NotNil(t, body.Results[0].Data)
	assert.Nil(t, body.Results[0].Error)

	assert.Equal(t, "bogus", body.Results[1].Key)
	assert.Nil(t, body.Results[1].Data)
	require.NotNil(t, body.Results[1].Error)
	assert.Equal(t, "InvalidVideoId", body.Results[1].Error.Kind)

	assert.Equal(t, "validID2abc", body.Results[2].Key)
	assert.Nil(t, body.Results[2].Data)
	assert.Nil(t, body.Results[2].Error)
}

func TestServer_Batch_RejectsBadBodies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{name: "invalid json", body: "{invalid", status: http.StatusBadRequest, kind: "InvalidRequest"},
		{name: "missing videos", body: `{}`, status: http.StatusBadRequest, kind: "InvalidRequest"},
		{name: "empty videos", body: `{"videos":[]}`, status: http.StatusBadRequest, kind: "InvalidRequest"},
		{name: "blank entry", body: `{"videos":["abc",""]}`, status: http.StatusBadRequest, kind: "InvalidRequest"},
		{name: "too many", body: `{"videos":["a","b","c"]}`, status: http.StatusRequestEntityTooLarge, kind: "PayloadTooLarge"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			scraper := &fakeScraper{}
			cfg := testConfig()
			cfg.Batch.MaxItems = 2
			server := NewServer(scraper, cfg, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/v1/heatmaps/batch", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.kind, decodeErrorKind(t, rec))
			require.Empty(t, scraper.calls())
		})
	}
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(&fakeScraper{}, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/videos/dQw4w9WgXcQ/heatmap", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Unauthorized", decodeErrorKind(t, rec))

	req = httptest.NewRequest(http.MethodGet, "/v1/videos/dQw4w9WgXcQ/heatmap", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeScraper{panicWith: "kaboom"})
	req := httptest.NewRequest(http.MethodGet, "/v1/videos/dQw4w9WgXcQ/heatmap", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal", decodeErrorKind(t, rec))
}

func TestServer_APIKeyRejectsNearMisses(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(&fakeScraper{}, cfg, zap.NewNop())

	for _, key := range []string{"secreT", "secre", "secret!", "SECRET", " secret"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/videos/dQw4w9WgXcQ/heatmap", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code, key)
		assert.Equal(t, "Unauthorized", decodeErrorKind(t, rec), key)
	}
}

func TestServer_TimeoutUsesErrorShape(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.RequestTimeout = 20 * time.Millisecond
	server := NewServer(&fakeScraper{block: true}, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/videos/dQw4w9WgXcQ/heatmap", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "TimedOut", decodeErrorKind(t, rec))
}

func TestServer_ProbesAndMetrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeScraper{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(&fakeScraper{}).Handler().ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	newTestServer(&fakeScraper{}).Handler().ServeHTTP(rec, req)
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeScraper struct {
	mu        sync.Mutex
	summaries map[string]*heatmap.Summary
	batchErrs map[string]error
	err       error
	panicWith string
	block     bool
	seen      []string
}

func (f *fakeScraper) Fetch(ctx context.Context, input string) (*heatmap.Summary, error) {
	f.mu.Lock()
	f.seen = append(f.seen, input)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.panicWith != "" {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.summaries[input], nil
}

func (f *fakeScraper) FetchBatch(_ context.Context, inputs []string) []heatmap.BatchItemResult {
	out := make([]heatmap.BatchItemResult, len(inputs))
	for i, in := range inputs {
		f.mu.Lock()
		f.seen = append(f.seen, in)
		f.mu.Unlock()
		out[i] = heatmap.BatchItemResult{Key: in, Data: f.summaries[in], Err: f.batchErrs[in]}
	}
	return out
}

func (f *fakeScraper) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func sampleSummary(id string) *heatmap.Summary {
	markers := []heatmap.Marker{
		{StartMillis: 0, DurationMillis: 2000, IntensityScoreNormalized: 0.25},
		{StartMillis: 2000, DurationMillis: 2000, IntensityScoreNormalized: 1},
		{StartMillis: 4000, DurationMillis: 2000, IntensityScoreNormalized: 0.5},
	}
	peak := markers[1]
	return &heatmap.Summary{
		VideoID:                 id,
		Markers:                 markers,
		EstimatedDurationMillis: 6000,
		Peak:                    &peak,
		AverageIntensity:        heatmap.AverageIntensity(markers),
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func decodeErrorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	require.NotEmpty(t, body.Error.Message)
	return body.Error.Kind
}

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{RequestTimeout: 5 * time.Second},
		Batch:   config.BatchConfig{MaxItems: 50},
		Logging: config.LoggingConfig{Development: true},
	}
}

func newTestServer(scraper Scraper) *Server {
	return NewServer(scraper, testConfig(), zap.NewNop())
}
