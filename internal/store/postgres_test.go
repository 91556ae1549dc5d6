package store

import (
	"reflect"
	"strings"
	"testing"

	"github.com/skylight/leaderboard/internal/model"
)

// TestConfigurationFilterQuery tests placeholder numbering and clause generation.
func TestConfigurationFilterQuery(t *testing.T) {
	tests := []struct {
		name        string
		filter      *model.ConfigurationFilter
		wantClauses []string
		wantArgs    []any
	}{
		{
			name:     "nil filter",
			wantArgs: []any{"ds-1"},
		},
		{
			name:        "llm only",
			filter:      &model.ConfigurationFilter{LLMID: "llm-a"},
			wantClauses: []string{"AND llm_id = $2"},
			wantArgs:    []any{"ds-1", "llm-a"},
		},
		{
			name: "all dimensions",
			filter: &model.ConfigurationFilter{
				LLMID:           "llm-a",
				TargetSparsity:  &model.NumericRange{Min: ptr(5.0), Max: ptr(10.0)},
				TargetAuxMemory: &model.NumericRange{Max: ptr(64.0)},
			},
			wantClauses: []string{
				"AND llm_id = $2",
				"AND target_sparsity >= $3",
				"AND target_sparsity <= $4",
				"AND target_aux_memory <= $5",
			},
			wantArgs: []any{"ds-1", "llm-a", 5.0, 10.0, 64.0},
		},
		{
			name:        "open lower bound",
			filter:      &model.ConfigurationFilter{TargetSparsity: &model.NumericRange{Max: ptr(20.0)}},
			wantClauses: []string{"AND target_sparsity <= $2"},
			wantArgs:    []any{"ds-1", 20.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := configurationFilterQuery("ds-1", tt.filter)

			if !strings.Contains(query, "WHERE dataset_id = $1") {
				t.Errorf("expected dataset clause, got %q", query)
			}
			for _, clause := range tt.wantClauses {
				if !strings.Contains(query, clause) {
					t.Errorf("expected clause %q in %q", clause, query)
				}
			}
			if !strings.HasSuffix(query, "ORDER BY created_at, id") {
				t.Errorf("expected stable ordering, got %q", query)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("expected args %v, got %v", tt.wantArgs, args)
			}
		})
	}
}

// TestResultOrder tests that results are listed by the date of their run.
func TestResultOrder(t *testing.T) {
	if !strings.Contains(resultOrder, "er.run_date FROM experimental_runs") {
		t.Errorf("expected ordering by run date, got %q", resultOrder)
	}
	if !strings.HasSuffix(resultOrder, "NULLS LAST, created_at, id") {
		t.Errorf("expected runless results last with a stable tie-break, got %q", resultOrder)
	}
}

// TestDecodeJSONMap tests jsonb column decoding.
func TestDecodeJSONMap(t *testing.T) {
	m, err := decodeJSONMap([]byte(`{"window": 128, "sinks": 4}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["window"] != float64(128) {
		t.Errorf("expected window 128, got %v", m["window"])
	}

	empty, err := decodeJSONMap(nil)
	if err != nil || empty != nil {
		t.Errorf("expected nil map and no error, got %v, %v", empty, err)
	}

	if _, err := decodeJSONMap([]byte(`{`)); err == nil {
		t.Error("expected error for malformed json, got nil")
	}
}
