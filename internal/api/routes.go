package api

import (
	"net/http"

	"github.com/skylight/leaderboard/internal/middleware"
)

// Handlers groups every handler set the router mounts.
type Handlers struct {
	Leaderboards *LeaderboardHandlers
	Combined     *CombinedHandlers
	Catalog      *CatalogHandlers
	Health       *HealthHandlers
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter registers every route of the API. Routes only answer GET (and
// HEAD); other methods on a known path get 405, unknown paths get a JSON 404.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	get := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc("GET "+pattern, fn)
		mux.HandleFunc(pattern, methodNotAllowed)
	}

	// Health
	get("/health", h.Health.Health)
	get("/ready", h.Health.Ready)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	// Leaderboards
	get("/api/v1/leaderboards/datasets/{datasetId}", h.Leaderboards.DatasetLeaderboard)
	get("/api/v1/leaderboards/overall", h.Leaderboards.OverallLeaderboard)
	get("/api/v1/leaderboards/stats", h.Leaderboards.Stats)
	get("/api/v1/leaderboards/sparsity-values", h.Leaderboards.SparsityValues)
	get("/api/v1/leaderboards/aux-memory-values", h.Leaderboards.AuxMemoryValues)

	// Combined views
	get("/api/v1/combined-view", h.Combined.CombinedViews)
	get("/api/v1/combined-view/overall-score", h.Combined.OverallScoreView)
	get("/api/v1/combined-view/local-error", h.Combined.LocalErrorView)
	get("/api/v1/baseline-rankings", h.Combined.BaselineRankings)

	// Catalog
	get("/api/v1/baselines", h.Catalog.ListBaselines)
	get("/api/v1/baselines/{id}", h.Catalog.GetBaseline)
	get("/api/v1/benchmarks", h.Catalog.ListBenchmarks)
	get("/api/v1/benchmarks/{id}", h.Catalog.GetBenchmark)
	get("/api/v1/benchmarks/{id}/datasets", h.Catalog.ListBenchmarkDatasets)
	get("/api/v1/datasets", h.Catalog.ListDatasets)
	get("/api/v1/datasets/{id}", h.Catalog.GetDataset)
	get("/api/v1/datasets/{id}/metrics", h.Catalog.ListDatasetMetrics)
	get("/api/v1/llms", h.Catalog.ListLLMs)
	get("/api/v1/llms/{id}", h.Catalog.GetLLM)
	get("/api/v1/metrics", h.Catalog.ListMetrics)
	get("/api/v1/metrics/{id}", h.Catalog.GetMetric)
	get("/api/v1/experimental-runs", h.Catalog.ListExperimentalRuns)
	get("/api/v1/experimental-runs/{id}", h.Catalog.GetExperimentalRun)
	get("/api/v1/configurations/{id}", h.Catalog.GetConfiguration)
	get("/api/v1/configurations/{id}/results", h.Catalog.ListConfigurationResults)

	mux.HandleFunc("/", notFound)
	return mux
}

// methodNotAllowed answers non-GET requests on known routes.
func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, HEAD")
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
	WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
	WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Route not found")
}
