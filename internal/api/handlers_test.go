package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/skylight/leaderboard/internal/leaderboard"
	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/store"
	"github.com/skylight/leaderboard/internal/views"
)

const sampleFixture = "../../fixtures/sample.yaml"

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// testServer wires the router over the sample fixture. The view cache is
// returned unbuilt.
type testServer struct {
	handler http.Handler
	cache   *views.Cache
}

func newTestServer(t *testing.T, exposed ...string) *testServer {
	t.Helper()
	fixture, err := store.LoadFixture(sampleFixture)
	if err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}
	repos := store.NewMemory(fixture)
	svc := leaderboard.NewService(repos, leaderboard.Options{ExposedBaselines: exposed})
	cache := views.NewCache(svc, views.Config{Logger: testLogger})

	router := NewRouter(Handlers{
		Leaderboards: NewLeaderboardHandlers(svc),
		Combined:     NewCombinedHandlers(cache, svc, nil),
		Catalog:      NewCatalogHandlers(repos, svc),
		Health:       NewHealthHandlers(HealthHandlersConfig{}),
	})
	return &testServer{handler: router, cache: cache}
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response: %v, body: %s", err, w.Body.String())
	}
	return v
}

func TestRouter_StatusCodes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"dataset leaderboard", "/api/v1/leaderboards/datasets/ds-qasper", http.StatusOK, ""},
		{"unknown dataset", "/api/v1/leaderboards/datasets/ds-missing", http.StatusNotFound, ErrCodeNotFound},
		{"bad sparsity bound", "/api/v1/leaderboards/datasets/ds-qasper?targetSparsityMin=abc", http.StatusBadRequest, ErrCodeValidation},
		{"inverted range", "/api/v1/leaderboards/overall?targetAuxMemoryMin=10&targetAuxMemoryMax=1", http.StatusBadRequest, ErrCodeValidation},
		{"bad boolean", "/api/v1/leaderboards/overall?useLatestRun=maybe", http.StatusBadRequest, ErrCodeValidation},
		{"overall", "/api/v1/leaderboards/overall", http.StatusOK, ""},
		{"malformed benchmark id", "/api/v1/leaderboards/overall?benchmarkId=%27--", http.StatusBadRequest, ErrCodeValidation},
		{"malformed path id", "/api/v1/llms/bad%20id", http.StatusBadRequest, ErrCodeValidation},
		{"malformed llmIds item", "/api/v1/combined-view?llmIds=ok,not%20ok", http.StatusBadRequest, ErrCodeValidation},
		{"overall latest run", "/api/v1/leaderboards/overall?useLatestRun=true", http.StatusOK, ""},
		{"stats", "/api/v1/leaderboards/stats", http.StatusOK, ""},
		{"sparsity values", "/api/v1/leaderboards/sparsity-values", http.StatusOK, ""},
		{"aux memory values", "/api/v1/leaderboards/aux-memory-values", http.StatusOK, ""},
		{"baseline rankings", "/api/v1/baseline-rankings", http.StatusOK, ""},
		{"combined view before build", "/api/v1/combined-view", http.StatusServiceUnavailable, ErrCodeNotReady},
		{"filtered combined view", "/api/v1/combined-view/overall-score?llmIds=llm-llama-8b", http.StatusOK, ""},
		{"bad sparsity list", "/api/v1/combined-view/local-error?sparsities=5,x", http.StatusBadRequest, ErrCodeValidation},
		{"baseline", "/api/v1/baselines/bl-dense", http.StatusOK, ""},
		{"unknown baseline", "/api/v1/baselines/bl-missing", http.StatusNotFound, ErrCodeNotFound},
		{"unknown benchmark datasets", "/api/v1/benchmarks/bench-missing/datasets", http.StatusNotFound, ErrCodeNotFound},
		{"configuration", "/api/v1/configurations/cfg-dense-llama-8b-qasper-100", http.StatusOK, ""},
		{"unknown route", "/api/v1/unknown", http.StatusNotFound, ErrCodeNotFound},
		{"health", "/health", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.get(t, tt.target)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantCode == "" {
				return
			}
			resp := decode[ErrorResponse](t, w)
			if resp.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/leaderboards/overall", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.Error.Code != ErrCodeMethodNotAllowed {
		t.Errorf("expected code %s, got %s", ErrCodeMethodNotAllowed, resp.Error.Code)
	}
	if allow := w.Header().Get("Allow"); allow == "" {
		t.Error("expected Allow header")
	}
}

func TestDatasetLeaderboardHandler(t *testing.T) {
	srv := newTestServer(t)

	w := srv.get(t, "/api/v1/leaderboards/datasets/ds-qasper?llmId=llm-llama-8b")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[DatasetLeaderboardResponse](t, w)
	if resp.DatasetID != "ds-qasper" {
		t.Errorf("expected dataset ds-qasper, got %s", resp.DatasetID)
	}
	if len(resp.Rankings) == 0 {
		t.Fatal("expected rankings")
	}
	if resp.Rankings[0].Rank != 1 {
		t.Errorf("expected first rank 1, got %d", resp.Rankings[0].Rank)
	}
	for i, r := range resp.Rankings {
		if r.LLM.ID != "llm-llama-8b" {
			t.Errorf("expected only llm-llama-8b, got %s", r.LLM.ID)
		}
		if i > 0 && r.Score > resp.Rankings[i-1].Score {
			t.Errorf("expected scores in descending order at %d", i)
		}
	}
}

func TestStatsHandler(t *testing.T) {
	srv := newTestServer(t, "dense", "oracle_top_k")

	w := srv.get(t, "/api/v1/leaderboards/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	stats := decode[leaderboard.OverviewStats](t, w)
	if stats.TotalBaselines != 2 {
		t.Errorf("expected 2 exposed baselines, got %d", stats.TotalBaselines)
	}
	if stats.TotalDatasets != 3 {
		t.Errorf("expected 3 datasets, got %d", stats.TotalDatasets)
	}
	if stats.LastUpdated == nil {
		t.Error("expected lastUpdated from the latest completed run")
	}
}

func TestCatalogHandlers_Exposure(t *testing.T) {
	srv := newTestServer(t, "dense")

	w := srv.get(t, "/api/v1/baselines")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	list := decode[ListResponse[model.Baseline]](t, w)
	if list.Count != 1 || len(list.Items) != 1 || list.Items[0].Name != "dense" {
		t.Errorf("expected only the dense baseline, got %+v", list.Items)
	}

	if w := srv.get(t, "/api/v1/baselines/bl-streaming"); w.Code != http.StatusNotFound {
		t.Errorf("expected hidden baseline to be 404, got %d", w.Code)
	}
}

func TestCatalogHandlers_BenchmarkDatasets(t *testing.T) {
	srv := newTestServer(t)

	w := srv.get(t, "/api/v1/benchmarks/bench-longbench/datasets")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	list := decode[ListResponse[model.Dataset]](t, w)
	if list.Count != 2 {
		t.Errorf("expected 2 datasets, got %d", list.Count)
	}
	for _, d := range list.Items {
		if d.BenchmarkID != "bench-longbench" {
			t.Errorf("expected benchmark bench-longbench, got %s", d.BenchmarkID)
		}
	}
}

func TestCombinedHandlers_Cache(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.cache.Refresh(context.Background()); err != nil {
		t.Fatalf("failed to build views: %v", err)
	}

	w := srv.get(t, "/api/v1/combined-view")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	all := decode[CombinedViewsResponse](t, w)
	if !all.Cached {
		t.Error("expected cached response")
	}
	if all.OverallScore == nil || all.LocalError == nil {
		t.Fatal("expected both views")
	}
	if all.OverallScore.Metric != model.MetricOverallScore {
		t.Errorf("expected overall score metric, got %s", all.OverallScore.Metric)
	}
	if len(all.Sparsities) == 0 {
		t.Error("expected sparsity levels")
	}
	for i := 1; i < len(all.Sparsities); i++ {
		if all.Sparsities[i] <= all.Sparsities[i-1] {
			t.Errorf("expected ascending unique sparsities, got %v", all.Sparsities)
		}
	}

	w = srv.get(t, "/api/v1/combined-view/local-error")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	one := decode[CombinedViewResponse](t, w)
	if !one.Cached || one.CombinedView == nil || one.Metric != model.MetricAverageLocalError {
		t.Errorf("expected cached local error view, got %+v", one)
	}
}

func TestCombinedHandlers_FilterBypassesCache(t *testing.T) {
	srv := newTestServer(t)

	w := srv.get(t, "/api/v1/combined-view?excludedDatasets=qasper&llmIds=llm-qwen-7b")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 without a built cache, got %d", w.Code)
	}
	all := decode[CombinedViewsResponse](t, w)
	if all.Cached {
		t.Error("expected an on-demand response")
	}
	for _, v := range []*leaderboard.CombinedView{all.OverallScore, all.LocalError} {
		if v == nil {
			t.Fatal("expected both views")
		}
		for _, table := range v.Tables {
			if table.LLM.ID != "llm-qwen-7b" {
				t.Errorf("expected only llm-qwen-7b tables, got %s", table.LLM.ID)
			}
		}
	}
	if srv.cache.State() != views.StateUninitialized {
		t.Errorf("expected the cache to stay untouched, got %s", srv.cache.State())
	}
}

func TestTableSparsities(t *testing.T) {
	a := &leaderboard.CombinedView{Tables: []leaderboard.Table{{Sparsity: 10}, {Sparsity: 5}}}
	b := &leaderboard.CombinedView{Tables: []leaderboard.Table{{Sparsity: 5}, {Sparsity: 20}}}

	got := tableSparsities(a, nil, b)
	want := []float64{5, 10, 20}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}

	if got := tableSparsities(); got == nil || len(got) != 0 {
		t.Errorf("expected an empty non-nil slice, got %v", got)
	}
}
