package leaderboard

import (
	"context"
	"errors"
	"testing"

	"github.com/skylight/leaderboard/internal/model"
)

func configurationIDs(rankings []DatasetRanking) []string {
	out := make([]string, len(rankings))
	for i, r := range rankings {
		out[i] = r.ConfigurationID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestDatasetLeaderboard tests ranking one dataset's configurations.
func TestDatasetLeaderboard(t *testing.T) {
	ctx := context.Background()
	s := newTestService(testFixture(), Options{})

	rankings, err := s.DatasetLeaderboard(ctx, "ds-1", Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{
		"cfg-hash-1-10",
		"cfg-dense-1",
		"cfg-topk-1-20",
		"cfg-topk-1-10",
		"cfg-stream-1-20",
		"cfg-stream-1-10",
	}
	if got := configurationIDs(rankings); !equalStrings(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i, r := range rankings {
		if r.Rank != i+1 {
			t.Errorf("expected %s at rank %d, got %d", r.ConfigurationID, i+1, r.Rank)
		}
	}

	topk := rankings[3]
	if topk.ExperimentalRunID != "run-2" {
		t.Errorf("expected run-2 to be selected for its lower local error, got %s", topk.ExperimentalRunID)
	}
	if topk.Score != 48 {
		t.Errorf("expected score 48, got %v", topk.Score)
	}
	if v := topk.MetricValues[model.MetricAverageLocalError]; !approxEqual(v, 0.1) {
		t.Errorf("expected local error 0.1, got %v", v)
	}
	if topk.Baseline.Name != "oracle_top_k" || topk.LLM.ID != "llm-a" || topk.Dataset.ID != "ds-1" {
		t.Errorf("unexpected entities on ranking: %+v", topk)
	}
}

// TestDatasetLeaderboard_RunFilter tests restricting results to one run.
func TestDatasetLeaderboard_RunFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestService(testFixture(), Options{})

	t.Run("explicit run", func(t *testing.T) {
		rankings, err := s.DatasetLeaderboard(ctx, "ds-1", Query{ExperimentalRunID: "run-1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rankings) != 1 {
			t.Fatalf("expected 1 ranking, got %d", len(rankings))
		}
		if rankings[0].ConfigurationID != "cfg-topk-1-10" || rankings[0].Score != 55 {
			t.Errorf("expected cfg-topk-1-10 with score 55, got %s with %v", rankings[0].ConfigurationID, rankings[0].Score)
		}
	})

	t.Run("latest completed run", func(t *testing.T) {
		rankings, err := s.DatasetLeaderboard(ctx, "ds-1", Query{UseLatestRun: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rankings) != 6 {
			t.Fatalf("expected 6 rankings, got %d", len(rankings))
		}
		for _, r := range rankings {
			if r.ExperimentalRunID != "run-2" {
				t.Errorf("expected run-2 for %s, got %s", r.ConfigurationID, r.ExperimentalRunID)
			}
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		rankings, err := s.DatasetLeaderboard(ctx, "ds-1", Query{ExperimentalRunID: "run-missing"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rankings == nil || len(rankings) != 0 {
			t.Errorf("expected empty non-nil rankings, got %v", rankings)
		}
	})
}

// TestDatasetLeaderboard_Filter tests configuration filters.
func TestDatasetLeaderboard_Filter(t *testing.T) {
	ctx := context.Background()
	s := newTestService(testFixture(), Options{})

	tests := []struct {
		name     string
		filter   model.ConfigurationFilter
		expected []string
	}{
		{
			name:     "sparsity range",
			filter:   model.ConfigurationFilter{TargetSparsity: &model.NumericRange{Min: ptr(15.0), Max: ptr(25.0)}},
			expected: []string{"cfg-topk-1-20", "cfg-stream-1-20"},
		},
		{
			name:     "other llm",
			filter:   model.ConfigurationFilter{LLMID: "llm-b"},
			expected: []string{},
		},
		{
			name:     "aux memory range excludes unset targets",
			filter:   model.ConfigurationFilter{TargetAuxMemory: &model.NumericRange{Min: ptr(0.0)}},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rankings, err := s.DatasetLeaderboard(ctx, "ds-1", Query{Filter: tt.filter})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := configurationIDs(rankings); !equalStrings(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// TestDatasetLeaderboard_Errors tests not found and missing run errors.
func TestDatasetLeaderboard_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := newTestService(testFixture(), Options{}).DatasetLeaderboard(ctx, "ds-missing", Query{})
	if !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("expected ErrDatasetNotFound, got %v", err)
	}

	f := testFixture()
	f.ExperimentalRuns = nil
	_, err = newTestService(f, Options{}).DatasetLeaderboard(ctx, "ds-1", Query{UseLatestRun: true})
	if !errors.Is(err, ErrNoCompletedRun) {
		t.Errorf("expected ErrNoCompletedRun, got %v", err)
	}
}

// TestDatasetLeaderboard_Exposure tests that hidden baselines are not ranked.
func TestDatasetLeaderboard_Exposure(t *testing.T) {
	s := newTestService(testFixture(), Options{ExposedBaselines: []string{"dense", "streaming_llm"}})

	rankings, err := s.DatasetLeaderboard(context.Background(), "ds-1", Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"cfg-dense-1", "cfg-stream-1-20", "cfg-stream-1-10"}
	if got := configurationIDs(rankings); !equalStrings(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

// TestDatasetLeaderboard_Ties tests that near-equal scores share a rank.
func TestDatasetLeaderboard_Ties(t *testing.T) {
	f := testFixture()
	for i, r := range f.Results {
		if r.ID == "cfg-topk-1-20-run-2-score" {
			f.Results[i].Value = 50.0005
		}
	}

	rankings, err := newTestService(f, Options{}).DatasetLeaderboard(context.Background(), "ds-1", Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ranks := make(map[string]int)
	for _, r := range rankings {
		ranks[r.ConfigurationID] = r.Rank
	}
	if ranks["cfg-topk-1-20"] != 2 || ranks["cfg-dense-1"] != 2 {
		t.Errorf("expected both tied at rank 2, got %d and %d", ranks["cfg-topk-1-20"], ranks["cfg-dense-1"])
	}
	if ranks["cfg-topk-1-10"] != 4 {
		t.Errorf("expected rank 4 after the tie, got %d", ranks["cfg-topk-1-10"])
	}
}
