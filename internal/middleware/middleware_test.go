package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

func newTestLogger(w io.Writer) *logging.StructuredLogger {
	return logging.NewStructuredLoggerWithOutput("test", "0.0.0", logging.DebugLevel, w)
}

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestRequestID_GeneratesID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ReusesIncomingHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	clock := clockwork.NewFakeClock()

	router := mux.NewRouter()
	router.Use(RequestID, AccessLog(newTestLogger(&buf), clock))
	router.HandleFunc("/api/v1.0/{start}", func(w http.ResponseWriter, r *http.Request) {
		clock.Advance(25 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	})
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/v1.0/2017-01-01", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "[HTTP_REQUEST] Request completed", entry["message"])
	assert.Equal(t, "req-1", entry["request_id"])

	fields := entry["fields"].(map[string]interface{})
	assert.Equal(t, "/api/v1.0/2017-01-01", fields["path"])
	assert.Equal(t, "/api/v1.0/{start}", fields["route"])
	assert.Equal(t, float64(http.StatusTeapot), fields["status"])
	assert.Equal(t, float64(25), fields["duration_ms"])
}

func TestAccessLog_ServerErrorLoggedAsWarning(t *testing.T) {
	var buf bytes.Buffer
	handler := AccessLog(newTestLogger(&buf), clockwork.NewFakeClock())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1.0/stations", nil))

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "[HTTP_REQUEST_FAILED] Request failed", entries[0]["message"])
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg)

	router := mux.NewRouter()
	router.Use(Metrics(collector))
	router.HandleFunc("/api/v1.0/{start}/{end}", func(w http.ResponseWriter, r *http.Request) {})
	router.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1.0/2017-01-01/2017-01-07", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1.0/2016-01-01/2016-12-31", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.APIRequestsTotal.WithLabelValues("/api/v1.0/{start}/{end}", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.APIRequestsTotal.WithLabelValues("/missing", "GET", "404")))

	count, err := testutil.GatherAndCount(reg, "test_api_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRateLimiter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	limiter := NewRateLimiter(1, 2, clock, newTestLogger(io.Discard), collector)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serve := func() int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1.0/stations", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve())
	assert.Equal(t, http.StatusOK, serve())
	assert.Equal(t, http.StatusTooManyRequests, serve())
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.APIRateLimitedTotal))

	clock.Advance(time.Second)
	assert.Equal(t, http.StatusOK, serve())
}

func TestRateLimiter_ResponseBody(t *testing.T) {
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	limiter := NewRateLimiter(1, 0, clockwork.NewFakeClock(), newTestLogger(io.Discard), collector)

	rec := httptest.NewRecorder()
	limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too Many Requests","message":"rate limit exceeded","code":429}`, rec.Body.String())
}

func TestRateLimiter_DisabledWhenRateIsZero(t *testing.T) {
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	limiter := NewRateLimiter(0, 0, clockwork.NewFakeClock(), newTestLogger(io.Discard), collector)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_HealthIsNeverLimited(t *testing.T) {
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	limiter := NewRateLimiter(1, 0, clockwork.NewFakeClock(), newTestLogger(io.Discard), collector)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.APIRateLimitedTotal))
}
