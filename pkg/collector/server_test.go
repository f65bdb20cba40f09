package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kerlexov/clientlog/pkg/config"
	"github.com/kerlexov/clientlog/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "collector.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	search, err := NewSearchIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { search.Close() })

	server := NewServer(cfg, newTestStore(t), search, zap.NewNop())
	if server.rateLimiter != nil {
		t.Cleanup(server.rateLimiter.Stop)
	}
	return server
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIngestSingleEntry(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/v1/logs",
		`{"level":"error","message":"checkout failed","tag":"pay","data":{"order":42},"timestamp":"2024-03-09T08:07:06.005Z","userAgent":"ua","url":"https://shop.example/cart","appVersion":"1.2.0"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Accepted int      `json:"accepted"`
		IDs      []string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Accepted)
	require.Len(t, resp.IDs, 1)

	rec = do(t, s, http.MethodGet, "/v1/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Logs, 1)

	got := result.Logs[0]
	assert.Equal(t, resp.IDs[0], got.ID)
	assert.Equal(t, logger.LevelError, got.Level)
	assert.Equal(t, "checkout failed", got.Message)
	assert.Equal(t, "pay", got.Tag)
	assert.Equal(t, float64(42), got.Data["order"])
	assert.Equal(t, "2024-03-09T08:07:06.005Z", got.Timestamp)
	assert.Equal(t, "1.2.0", got.AppVersion)
}

func TestIngestBatchShapes(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/v1/logs", `{"logs":[{"level":"warn","message":"a"},{"level":"error","message":"b"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/v1/logs", `[{"level":"info","message":"c"}]`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	count, err := s.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIngestAcceptsLoggerTransportPayloads(t *testing.T) {
	s := newTestServer(t, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	transport := logger.NewHTTPTransport(logger.HTTPTransportConfig{})
	require.NoError(t, transport.SendBatch(server.URL+"/v1/logs", []logger.LogEntry{
		{Level: logger.LevelWarn, Message: "from sdk", Timestamp: "2024-03-09T08:07:06.005Z"},
	}))
	require.NoError(t, transport.Send(server.URL+"/v1/logs", logger.LogEntry{Level: logger.LevelError, Message: "single"}))
	require.NoError(t, transport.Close())

	count, err := s.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngestCompressedTransportPayloads(t *testing.T) {
	s := newTestServer(t, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	transport := logger.NewHTTPTransport(logger.HTTPTransportConfig{Compress: true})
	require.NoError(t, transport.SendBatch(server.URL+"/v1/logs", []logger.LogEntry{
		{Level: logger.LevelWarn, Message: "one"},
		{Level: logger.LevelError, Message: "two"},
	}))
	require.NoError(t, transport.Close())

	count, err := s.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestRejectsBadPayloads(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.MaxBatchSize = 2 })

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `level=error`, "INVALID_JSON"},
		{"empty body", ``, "INVALID_JSON"},
		{"unknown level", `{"level":"fatal","message":"x"}`, "INVALID_JSON"},
		{"missing level", `{"message":"x"}`, "VALIDATION_ERROR"},
		{"empty batch", `{"logs":[]}`, "EMPTY_BATCH"},
		{"batch too large", `{"logs":[{"level":"info"},{"level":"info"},{"level":"info"}]}`, "BATCH_TOO_LARGE"},
		{"tag too long", fmt.Sprintf(`{"level":"info","tag":"%s"}`, strings.Repeat("t", 201)), "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/logs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	count, err := s.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestMissingTimestampUsesReceiveTime(t *testing.T) {
	s := newTestServer(t, nil)
	s.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }

	rec := do(t, s, http.MethodPost, "/v1/logs", `{"level":"info","message":"no clock"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	result, err := s.store.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "2025-05-01T12:00:00.000Z", result.Logs[0].Timestamp)
}

func TestQueryFilters(t *testing.T) {
	s := newTestServer(t, nil)

	body := `{"logs":[
		{"level":"debug","message":"d","tag":"ui","timestamp":"2024-01-01T00:00:01.000Z"},
		{"level":"info","message":"i","tag":"ui","timestamp":"2024-01-01T00:00:02.000Z"},
		{"level":"warn","message":"w","tag":"api","timestamp":"2024-01-01T00:00:03.000Z"},
		{"level":"error","message":"e","tag":"ui","timestamp":"2024-01-01T00:00:04.000Z"}
	]}`
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/v1/logs", body).Code)

	query := func(target string) Result {
		rec := do(t, s, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var result Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		return result
	}

	all := query("/v1/logs")
	assert.Equal(t, 4, all.TotalCount)
	assert.Equal(t, "e", all.Logs[0].Message, "newest first")

	warn := query("/v1/logs?level=warn")
	assert.Equal(t, 2, warn.TotalCount)

	ui := query("/v1/logs?tag=ui&limit=2")
	assert.Equal(t, 3, ui.TotalCount)
	assert.Len(t, ui.Logs, 2)
	assert.True(t, ui.HasMore)

	page := query("/v1/logs?tag=ui&limit=2&offset=2")
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "d", page.Logs[0].Message)
	assert.False(t, page.HasMore)

	since := query("/v1/logs?since=2024-01-01T00:00:03Z")
	assert.Equal(t, 2, since.TotalCount)

	rec := do(t, s, http.MethodGet, "/v1/logs?level=loud", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t, nil)

	body := `{"logs":[
		{"level":"error","message":"payment gateway timeout","tag":"pay","timestamp":"2024-01-01T00:00:01.000Z"},
		{"level":"info","message":"user opened cart","tag":"ui","timestamp":"2024-01-01T00:00:02.000Z"},
		{"level":"warn","message":"slow render","tag":"ui","data":{"component":"PaymentForm"},"timestamp":"2024-01-01T00:00:03.000Z"}
	]}`
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/v1/logs", body).Code)

	rec := do(t, s, http.MethodGet, "/v1/logs/search?q=timeout", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "payment gateway timeout", result.Logs[0].Message)

	rec = do(t, s, http.MethodGet, "/v1/logs/search?tag=ui", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.TotalCount)
	require.Len(t, result.Logs, 2)
	assert.Equal(t, "slow render", result.Logs[0].Message, "newest first")

	rec = do(t, s, http.MethodGet, "/v1/logs/search?level=warn", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.TotalCount)
}

func TestSearchDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimit.Enabled = false
	s := NewServer(cfg, newTestStore(t), nil, zap.NewNop())

	rec := do(t, s, http.MethodGet, "/v1/logs/search?q=x", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/v1/logs", `{"level":"warn","message":"x"}`).Code)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status  string                 `json:"status"`
		Details map[string]interface{} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, float64(1), health.Details["stored_logs"])
	assert.Equal(t, float64(1), health.Details["indexed_logs"])

	rec = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clientlog_entries_ingested_total{level="warn"} 1`)
	assert.Contains(t, rec.Body.String(), `clientlog_http_requests_total{method="POST",route="/v1/logs",status="201"} 1`)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.RequestsPerMinute = 1
		c.RateLimit.BurstSize = 2
	})

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodPost, "/v1/logs", `{"level":"info"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, s, http.MethodPost, "/v1/logs", `{"level":"info"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code, "health is never limited")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.CORS.AllowedOrigins = []string{"https://app.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/v1/logs", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewBufferString(`{"level":"info"}`))
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
