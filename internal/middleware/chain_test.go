package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skylight/leaderboard/internal/middleware"
)

const dashboardOrigin = "https://leaderboard.example.org"

// apiChain wraps h the way the API server does.
func apiChain(h http.Handler, logger *slog.Logger, metrics *middleware.Metrics, limit int) http.Handler {
	h = middleware.RateLimiter(middleware.NewInMemoryRateLimitStore(), middleware.RateLimitConfig{
		RequestsPerWindow: limit,
		WindowDuration:    time.Minute,
	}, middleware.IPKeyFunc(), metrics)(h)
	h = middleware.CORS(middleware.LeaderboardCORSConfig([]string{dashboardOrigin}))(h)
	h = middleware.HTTPMetrics(metrics)(h)
	h = middleware.Logging(logger)(h)
	return middleware.RequestID(h)
}

func TestChain_RateLimitedDashboardRequest(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	metrics := middleware.NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}

	var seenIDs []string
	handler := apiChain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenIDs = append(seenIDs, middleware.GetRequestID(r.Context()))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rankings":[]}`))
	}), logger, metrics, 1)

	request := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/combined-view", nil)
		req.RemoteAddr = "192.0.2.30:40000"
		req.Header.Set("Origin", dashboardOrigin)
		req.Header.Set(middleware.RequestIDHeader, id)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	ok := request("refresh-1")
	if ok.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", ok.Code)
	}
	if len(seenIDs) != 1 || seenIDs[0] != "refresh-1" {
		t.Errorf("expected the handler to see request ID refresh-1, got %v", seenIDs)
	}

	blocked := request("refresh-2")
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", blocked.Code)
	}
	if len(seenIDs) != 1 {
		t.Errorf("expected the blocked request not to reach the handler")
	}
	if got := blocked.Header().Get(middleware.RequestIDHeader); got != "refresh-2" {
		t.Errorf("expected request ID refresh-2 on the 429, got %q", got)
	}
	if got := blocked.Header().Get("Access-Control-Allow-Origin"); got != dashboardOrigin {
		t.Errorf("expected the dashboard origin to be allowed on the 429, got %q", got)
	}
	if !strings.Contains(blocked.Header().Get("Access-Control-Expose-Headers"), "Retry-After") {
		t.Errorf("expected Retry-After to be readable by the dashboard, got %q", blocked.Header().Get("Access-Control-Expose-Headers"))
	}
	if !strings.Contains(blocked.Body.String(), `"code":"rate_limited"`) {
		t.Errorf("expected rate_limited envelope, got %s", blocked.Body.String())
	}

	out := logs.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 request log lines, got %d: %s", len(lines), out)
	}
	for _, field := range []string{"level=WARN", "status=429", "error_code=rate_limited", "request_id=refresh-2"} {
		if !strings.Contains(lines[1], field) {
			t.Errorf("expected the blocked request log to contain %q, got: %s", field, lines[1])
		}
	}
	if strings.Contains(lines[0], "error_code=") {
		t.Errorf("expected no error code on the allowed request, got: %s", lines[0])
	}

	expected := `
		# HELP http_requests_total Total number of HTTP requests
		# TYPE http_requests_total counter
		http_requests_total{method="GET",path="/api/v1/combined-view",status="200"} 1
		http_requests_total{method="GET",path="/api/v1/combined-view",status="429"} 1
	`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), middleware.MetricHTTPRequestsTotal); err != nil {
		t.Errorf("unexpected request metrics: %v", err)
	}
}

func TestChain_ForeignOriginRejectedBeforeRateLimit(t *testing.T) {
	var logs bytes.Buffer
	metrics := middleware.NewMetrics()
	handler := apiChain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("expected the handler not to run for a foreign origin")
	}), slog.New(slog.NewTextHandler(&logs, nil)), metrics, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/baseline-rankings", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rr.Code)
	}
	if rr.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a generated request ID on the rejection")
	}
	if !strings.Contains(logs.String(), "status=403") || !strings.Contains(logs.String(), "error_code=origin_not_allowed") {
		t.Errorf("expected the rejection to be logged, got: %s", logs.String())
	}
}
