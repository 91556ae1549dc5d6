package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/skylight/leaderboard/internal/leaderboard"
	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/store"
)

// CatalogHandlers exposes the entities behind the leaderboards read-only.
// Baselines go through the service so hidden baselines stay hidden.
type CatalogHandlers struct {
	repos *store.Repositories
	svc   *leaderboard.Service
}

// NewCatalogHandlers creates a new CatalogHandlers instance.
func NewCatalogHandlers(repos *store.Repositories, svc *leaderboard.Service) *CatalogHandlers {
	return &CatalogHandlers{repos: repos, svc: svc}
}

// ListResponse wraps a collection.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

// serveList writes the outcome of a list lookup.
func serveList[T any](w http.ResponseWriter, r *http.Request, what string, find func(context.Context) ([]T, error)) {
	items, err := find(r.Context())
	if err != nil {
		writeServiceError(w, r, err, what)
		return
	}
	writeJSON(w, r, http.StatusOK, newListResponse(items))
}

// serveOne writes the outcome of a lookup by the {id} path value. A nil
// entity is a 404.
func serveOne[T any](w http.ResponseWriter, r *http.Request, what string, find func(context.Context, string) (*T, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := find(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, what)
		return
	}
	if item == nil {
		writeCodedError(w, r, ErrCodeNotFound, strings.ToUpper(what[:1])+what[1:]+" not found")
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

// ListBaselines handles GET /api/v1/baselines.
func (h *CatalogHandlers) ListBaselines(w http.ResponseWriter, r *http.Request) {
	serveList(w, r, "baselines", h.svc.Baselines)
}

// GetBaseline handles GET /api/v1/baselines/{id}.
func (h *CatalogHandlers) GetBaseline(w http.ResponseWriter, r *http.Request) {
	serveOne(w, r, "baseline", h.svc.Baseline)
}

// ListBenchmarks handles GET /api/v1/benchmarks.
func (h *CatalogHandlers) ListBenchmarks(w http.ResponseWriter, r *http.Request) {
	serveList(w, r, "benchmarks", h.repos.Benchmarks.FindAll)
}

// GetBenchmark handles GET /api/v1/benchmarks/{id}.
func (h *CatalogHandlers) GetBenchmark(w http.ResponseWriter, r *http.Request) {
	serveOne(w, r, "benchmark", h.repos.Benchmarks.FindByID)
}

// ListBenchmarkDatasets handles GET /api/v1/benchmarks/{id}/datasets.
func (h *CatalogHandlers) ListBenchmarkDatasets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	benchmark, err := h.repos.Benchmarks.FindByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "benchmark")
		return
	}
	if benchmark == nil {
		writeCodedError(w, r, ErrCodeNotFound, "Benchmark not found")
		return
	}
	serveList(w, r, "datasets", func(ctx context.Context) ([]model.Dataset, error) {
		return h.repos.Datasets.FindByBenchmarkID(ctx, id)
	})
}

// ListDatasets handles GET /api/v1/datasets.
func (h *CatalogHandlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	serveList(w, r, "datasets", h.repos.Datasets.FindAll)
}

// GetDataset handles GET /api/v1/datasets/{id}.
func (h *CatalogHandlers) GetDataset(w http.ResponseWriter, r *http.Request) {
	serveOne(w, r, "dataset", h.repos.Datasets.FindByID)
}

// ListDatasetMetrics handles GET /api/v1/datasets/{id}/metrics.
func (h *CatalogHandlers) ListDatasetMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	serveList(w, r, "dataset metrics", func(ctx context.Context) ([]model.DatasetMetric, error) {
		return h.repos.DatasetMetrics.FindByDatasetID(ctx, id)
	})
}

// ListLLMs handles GET /api/v1/llms.
func (h *CatalogHandlers) ListLLMs(w http.ResponseWriter, r *http.Request) {
	serveList(w, r, "LLMs", h.repos.LLMs.FindAll)
}

// GetLLM handles GET /api/v1/llms/{id}.
func (h *CatalogHandlers) GetLLM(w http.ResponseWriter, r *http.Request) {
	serveOne(w, r, "LLM", h.repos.LLMs.FindByID)
}

// ListMetrics handles GET /api/v1/metrics.
func (h *CatalogHandlers) ListMetrics(w http.ResponseWriter, r *http.Request) {
	serveList(w, r, "metrics", h.repos.Metrics.FindAll)
}

// GetMetric handles GET /api/v1/metrics/{id}.
func (h *CatalogHandlers) GetMetric(w http.ResponseWriter, r *http.Request) {
	serveOne(w, r, "metric", h.repos.Metrics.FindByID)
}

// ListExperimentalRuns handles GET /api/v1/experimental-runs.
func (h *CatalogHandlers) ListExperimentalRuns(w http.ResponseWriter, r *http.Request) {
	serveList(w, r, "experimental runs", h.repos.ExperimentalRuns.FindAll)
}

// GetExperimentalRun handles GET /api/v1/experimental-runs/{id}.
func (h *CatalogHandlers) GetExperimentalRun(w http.ResponseWriter, r *http.Request) {
	serveOne(w, r, "experimental run", h.repos.ExperimentalRuns.FindByID)
}

// GetConfiguration handles GET /api/v1/configurations/{id}.
func (h *CatalogHandlers) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	serveOne(w, r, "configuration", h.repos.Configurations.FindByID)
}

// ListConfigurationResults handles GET /api/v1/configurations/{id}/results.
func (h *CatalogHandlers) ListConfigurationResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	serveList(w, r, "results", func(ctx context.Context) ([]model.Result, error) {
		return h.repos.Results.FindByConfigurationID(ctx, id)
	})
}
