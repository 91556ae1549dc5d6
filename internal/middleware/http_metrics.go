package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// apiPrefix is the prefix shared by all versioned API routes.
const apiPrefix = "/api/v1/"

// staticRoutes are routes without dynamic segments.
var staticRoutes = map[string]bool{
	"/":                                      true,
	"/health":                                true,
	"/ready":                                 true,
	"/metrics":                               true,
	"/api/v1/leaderboards/overall":           true,
	"/api/v1/leaderboards/stats":             true,
	"/api/v1/leaderboards/sparsity-values":   true,
	"/api/v1/leaderboards/aux-memory-values": true,
	"/api/v1/combined-view":                  true,
	"/api/v1/combined-view/overall-score":    true,
	"/api/v1/combined-view/local-error":      true,
	"/api/v1/baseline-rankings":              true,
}

// idCollections are path segments whose next segment is an identifier.
var idCollections = map[string]bool{
	"baselines":         true,
	"benchmarks":        true,
	"datasets":          true,
	"llms":              true,
	"metrics":           true,
	"experimental-runs": true,
	"configurations":    true,
}

// normalizePath maps a request path to its route, replacing identifiers with
// {id}: /api/v1/leaderboards/datasets/ds-1 becomes
// /api/v1/leaderboards/datasets/{id}. Paths outside the API are returned as is.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}
	if !strings.HasPrefix(path, apiPrefix) {
		return path
	}

	parts := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	for i := 0; i < len(parts)-1; i++ {
		if idCollections[parts[i]] && parts[i+1] != "" {
			parts[i+1] = "{id}"
			i++
		}
	}
	return apiPrefix + strings.Join(parts, "/")
}

// operationalPaths are the health and scrape endpoints. They are polled
// constantly and stay out of request metrics and traces.
var operationalPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// metricsResponseWriter records the status and body size of a response.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Unwrap lets UpdateResponseContext reach the logging writer underneath.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// HTTPMetrics records the duration, request and response sizes and count of
// every API request, labelled by method, normalized route and status.
// Operational endpoints are not recorded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if operationalPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)
			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				max(r.ContentLength, 0),
				mrw.size,
			)
		})
	}
}
