package ranking

import (
	"fmt"
	"testing"

	"github.com/skylight/leaderboard/internal/model"
)

// BenchmarkAssign benchmarks ranking a single partition.
func BenchmarkAssign(b *testing.B) {
	items := make([]scoredItem, 500)
	for i := range items {
		items[i] = scoredItem{name: fmt.Sprintf("c%d", i), score: float64(i % 97)}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Assign(items, scoreOfItem, Descending)
	}
}

// BenchmarkSelectBestRun benchmarks run selection over several runs.
func BenchmarkSelectBestRun(b *testing.B) {
	var results []model.Result
	for run := 0; run < 8; run++ {
		id := fmt.Sprintf("run-%d", run)
		results = append(results,
			result(id, dmLocalError, float64(run%3)),
			result(id, dmAuxMemory, float64(run)),
			result(id, dmPrimary, float64(100-run)),
		)
	}
	criteria := Criteria{LocalErrorID: dmLocalError, AuxMemoryID: dmAuxMemory, PrimaryID: dmPrimary, PrimaryHigherIsBetter: true}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SelectBestRun(GroupByRun(results), criteria)
	}
}

// BenchmarkFullTableView benchmarks aggregating and normalizing a typical
// set of (LLM, sparsity) tables.
func BenchmarkFullTableView(b *testing.B) {
	sparsities := []float64{5, 10, 20, 50}
	sparsityByID := make(map[string]float64)
	var partitions []Partition[competitor]
	for llm := 0; llm < 4; llm++ {
		for _, s := range sparsities {
			id := fmt.Sprintf("llm%d@%v", llm, s)
			sparsityByID[id] = s
			items := make([]competitor, 20)
			for c := range items {
				items[c] = competitor{name: fmt.Sprintf("baseline-%d", c)}
			}
			items[0].name = "dense"
			score := func(c competitor) float64 { return float64(len(c.name)) + s }
			partitions = append(partitions, Partition[competitor]{ID: id, Entries: Assign(items, score, Descending)})
		}
	}
	sparsityOf := func(id string) (float64, bool) {
		s, ok := sparsityByID[id]
		return s, ok
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Normalize(Aggregate(partitions, keyOfCompetitor, nil), "dense", sparsityOf)
	}
}
