package middleware

import (
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		// Static routes - no normalization
		{"root path", "/", "/"},
		{"health endpoint", "/health", "/health"},
		{"ready endpoint", "/ready", "/ready"},
		{"metrics endpoint", "/metrics", "/metrics"},
		{"overall leaderboard", "/api/v1/leaderboards/overall", "/api/v1/leaderboards/overall"},
		{"stats", "/api/v1/leaderboards/stats", "/api/v1/leaderboards/stats"},
		{"combined view", "/api/v1/combined-view", "/api/v1/combined-view"},
		{"combined view local error", "/api/v1/combined-view/local-error", "/api/v1/combined-view/local-error"},
		{"baseline rankings", "/api/v1/baseline-rankings", "/api/v1/baseline-rankings"},

		// Collections
		{"baselines collection", "/api/v1/baselines", "/api/v1/baselines"},
		{"runs collection", "/api/v1/experimental-runs", "/api/v1/experimental-runs"},

		// Dynamic routes
		{"dataset leaderboard", "/api/v1/leaderboards/datasets/ds-1", "/api/v1/leaderboards/datasets/{id}"},
		{"baseline by id", "/api/v1/baselines/bl-1", "/api/v1/baselines/{id}"},
		{"benchmark by id", "/api/v1/benchmarks/ruler", "/api/v1/benchmarks/{id}"},
		{"benchmark datasets", "/api/v1/benchmarks/ruler/datasets", "/api/v1/benchmarks/{id}/datasets"},
		{"llm by id", "/api/v1/llms/llama-3-8b", "/api/v1/llms/{id}"},
		{"metric by id", "/api/v1/metrics/m-1", "/api/v1/metrics/{id}"},
		{"run by id", "/api/v1/experimental-runs/42", "/api/v1/experimental-runs/{id}"},
		{"configuration results", "/api/v1/configurations/cfg-9/results", "/api/v1/configurations/{id}/results"},

		// Edge cases
		{"trailing slash", "/api/v1/baselines/", "/api/v1/baselines/"},
		{"unknown route", "/unknown/path", "/unknown/path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizePath(tt.path)
			if result != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}

func TestNormalizePath_CardinalityControl(t *testing.T) {
	// Test that different IDs normalize to the same pattern
	paths := []string{
		"/api/v1/leaderboards/datasets/1",
		"/api/v1/leaderboards/datasets/2",
		"/api/v1/leaderboards/datasets/999",
		"/api/v1/leaderboards/datasets/550e8400-e29b-41d4-a716-446655440000",
		"/api/v1/leaderboards/datasets/niah_single_1",
	}

	expected := "/api/v1/leaderboards/datasets/{id}"
	seen := make(map[string]bool)

	for _, path := range paths {
		result := normalizePath(path)
		if result != expected {
			t.Errorf("normalizePath(%q) = %q, want %q", path, result, expected)
		}
		seen[result] = true
	}

	// Should all normalize to the same pattern (low cardinality)
	if len(seen) != 1 {
		t.Errorf("Expected all paths to normalize to single pattern, got %d patterns: %v", len(seen), seen)
	}
}
