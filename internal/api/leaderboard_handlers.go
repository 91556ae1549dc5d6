package api

import (
	"errors"
	"net/http"

	"github.com/skylight/leaderboard/internal/leaderboard"
)

// LeaderboardHandlers serves the dataset and overall leaderboards and the
// values the UI offers as filters.
type LeaderboardHandlers struct {
	svc *leaderboard.Service
}

// NewLeaderboardHandlers creates a new LeaderboardHandlers instance.
func NewLeaderboardHandlers(svc *leaderboard.Service) *LeaderboardHandlers {
	return &LeaderboardHandlers{svc: svc}
}

// DatasetLeaderboardResponse is the ranking of one dataset.
type DatasetLeaderboardResponse struct {
	DatasetID string                       `json:"datasetId"`
	Rankings  []leaderboard.DatasetRanking `json:"rankings"`
}

// OverallLeaderboardResponse is the ranking across datasets.
type OverallLeaderboardResponse struct {
	BenchmarkID string                          `json:"benchmarkId,omitempty"`
	Rankings    []leaderboard.AggregatedRanking `json:"rankings"`
}

// SparsityValuesResponse lists the distinct target sparsities.
type SparsityValuesResponse struct {
	Values []float64 `json:"values"`
}

// AuxMemoryValuesResponse lists the distinct target aux memory values.
type AuxMemoryValuesResponse struct {
	Values []int64 `json:"values"`
}

// writeParamError writes a 400 for a query parameter that failed to parse.
func writeParamError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *paramError
	if errors.As(err, &perr) {
		writeCodedError(w, r, ErrCodeValidation, perr.Error())
		return
	}
	writeCodedError(w, r, ErrCodeBadRequest, "Malformed query string")
}

// DatasetLeaderboard handles GET /api/v1/leaderboards/datasets/{datasetId}.
func (h *LeaderboardHandlers) DatasetLeaderboard(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathID(w, r, "datasetId")
	if !ok {
		return
	}

	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeParamError(w, r, err)
		return
	}

	rankings, err := h.svc.DatasetLeaderboard(r.Context(), datasetID, q)
	if err != nil {
		writeServiceError(w, r, err, "dataset leaderboard")
		return
	}
	if rankings == nil {
		rankings = []leaderboard.DatasetRanking{}
	}

	writeJSON(w, r, http.StatusOK, DatasetLeaderboardResponse{
		DatasetID: datasetID,
		Rankings:  rankings,
	})
}

// OverallLeaderboard handles GET /api/v1/leaderboards/overall.
func (h *LeaderboardHandlers) OverallLeaderboard(w http.ResponseWriter, r *http.Request) {
	q, err := parseOverallQuery(r.URL.Query())
	if err != nil {
		writeParamError(w, r, err)
		return
	}

	rankings, err := h.svc.OverallLeaderboard(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err, "overall leaderboard")
		return
	}
	if rankings == nil {
		rankings = []leaderboard.AggregatedRanking{}
	}

	writeJSON(w, r, http.StatusOK, OverallLeaderboardResponse{
		BenchmarkID: q.BenchmarkID,
		Rankings:    rankings,
	})
}

// Stats handles GET /api/v1/leaderboards/stats.
func (h *LeaderboardHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "stats")
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// SparsityValues handles GET /api/v1/leaderboards/sparsity-values.
func (h *LeaderboardHandlers) SparsityValues(w http.ResponseWriter, r *http.Request) {
	values, err := h.svc.SparsityValues(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "sparsity values")
		return
	}
	if values == nil {
		values = []float64{}
	}
	writeJSON(w, r, http.StatusOK, SparsityValuesResponse{Values: values})
}

// AuxMemoryValues handles GET /api/v1/leaderboards/aux-memory-values.
func (h *LeaderboardHandlers) AuxMemoryValues(w http.ResponseWriter, r *http.Request) {
	values, err := h.svc.AuxMemoryValues(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "aux memory values")
		return
	}
	if values == nil {
		values = []int64{}
	}
	writeJSON(w, r, http.StatusOK, AuxMemoryValuesResponse{Values: values})
}
