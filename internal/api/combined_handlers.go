package api

import (
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skylight/leaderboard/internal/leaderboard"
	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/views"
)

// CombinedHandlers serves the combined views and the baseline rankings.
// Unfiltered requests read the view cache; requests with filters are
// computed on demand.
type CombinedHandlers struct {
	cache            *views.Cache
	svc              *leaderboard.Service
	excludedDatasets []string
}

// NewCombinedHandlers creates a new CombinedHandlers instance. excluded is
// the dataset exclusion the cache was built with; on-demand requests that do
// not name their own exclusions inherit it.
func NewCombinedHandlers(cache *views.Cache, svc *leaderboard.Service, excluded []string) *CombinedHandlers {
	return &CombinedHandlers{cache: cache, svc: svc, excludedDatasets: excluded}
}

// CombinedViewResponse is one combined view plus the sparsity levels its
// tables cover.
type CombinedViewResponse struct {
	*leaderboard.CombinedView
	Sparsities []float64 `json:"sparsities"`
	Cached     bool      `json:"cached"`
}

// CombinedViewsResponse carries both combined views.
type CombinedViewsResponse struct {
	Sparsities   []float64                 `json:"sparsities"`
	Cached       bool                      `json:"cached"`
	BuiltAt      *time.Time                `json:"builtAt,omitempty"`
	OverallScore *leaderboard.CombinedView `json:"overallScore"`
	LocalError   *leaderboard.CombinedView `json:"localError"`
}

// CombinedViews handles GET /api/v1/combined-view.
func (h *CombinedHandlers) CombinedViews(w http.ResponseWriter, r *http.Request) {
	overall, err := parseTableRequest(r, model.MetricOverallScore, h.excludedDatasets)
	if err != nil {
		writeParamError(w, r, err)
		return
	}

	if !overall.filtered {
		snap, err := h.cache.Snapshot()
		if err != nil {
			writeServiceError(w, r, err, "combined views")
			return
		}
		builtAt := snap.BuiltAt
		resp := CombinedViewsResponse{
			Cached:       true,
			BuiltAt:      &builtAt,
			OverallScore: snap.Views[model.MetricOverallScore],
			LocalError:   snap.Views[model.MetricAverageLocalError],
		}
		resp.Sparsities = tableSparsities(resp.OverallScore, resp.LocalError)
		writeJSON(w, r, http.StatusOK, resp)
		return
	}

	localQ := overall.query
	localQ.Metric = model.MetricAverageLocalError

	var resp CombinedViewsResponse
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		v, err := h.svc.CombinedView(gctx, overall.query)
		resp.OverallScore = v
		return err
	})
	g.Go(func() error {
		v, err := h.svc.CombinedView(gctx, localQ)
		resp.LocalError = v
		return err
	})
	if err := g.Wait(); err != nil {
		writeServiceError(w, r, err, "combined views")
		return
	}
	resp.Sparsities = tableSparsities(resp.OverallScore, resp.LocalError)
	writeJSON(w, r, http.StatusOK, resp)
}

// OverallScoreView handles GET /api/v1/combined-view/overall-score.
func (h *CombinedHandlers) OverallScoreView(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, model.MetricOverallScore)
}

// LocalErrorView handles GET /api/v1/combined-view/local-error.
func (h *CombinedHandlers) LocalErrorView(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, model.MetricAverageLocalError)
}

func (h *CombinedHandlers) serveView(w http.ResponseWriter, r *http.Request, metric string) {
	req, err := parseTableRequest(r, metric, h.excludedDatasets)
	if err != nil {
		writeParamError(w, r, err)
		return
	}

	var view *leaderboard.CombinedView
	if req.filtered {
		view, err = h.svc.CombinedView(r.Context(), req.query)
	} else {
		view, err = h.cache.View(metric)
	}
	if err != nil {
		writeServiceError(w, r, err, "combined view")
		return
	}

	writeJSON(w, r, http.StatusOK, CombinedViewResponse{
		CombinedView: view,
		Sparsities:   tableSparsities(view),
		Cached:       !req.filtered,
	})
}

// BaselineRankings handles GET /api/v1/baseline-rankings.
func (h *CombinedHandlers) BaselineRankings(w http.ResponseWriter, r *http.Request) {
	excluded, err := parseList(r.URL.Query(), "excludedDatasets")
	if err != nil {
		writeParamError(w, r, err)
		return
	}
	if len(excluded) == 0 {
		excluded = h.excludedDatasets
	}

	rankings, err := h.svc.BaselineRankings(r.Context(), excluded)
	if err != nil {
		writeServiceError(w, r, err, "baseline rankings")
		return
	}
	writeJSON(w, r, http.StatusOK, rankings)
}

// tableRequest is a parsed combined view request.
type tableRequest struct {
	query    leaderboard.TableQuery
	filtered bool
}

func parseTableRequest(r *http.Request, metric string, defaultExcluded []string) (tableRequest, error) {
	q, filtered, err := parseTableQuery(r.URL.Query(), metric)
	if err != nil {
		return tableRequest{}, err
	}
	if len(q.ExcludedDatasets) == 0 {
		q.ExcludedDatasets = defaultExcluded
	}
	return tableRequest{query: q, filtered: filtered}, nil
}

// tableSparsities returns the distinct sparsity levels of the views' tables,
// ascending.
func tableSparsities(vs ...*leaderboard.CombinedView) []float64 {
	out := []float64{}
	for _, v := range vs {
		if v == nil {
			continue
		}
		for _, t := range v.Tables {
			if !slices.Contains(out, t.Sparsity) {
				out = append(out, t.Sparsity)
			}
		}
	}
	slices.Sort(out)
	return out
}
