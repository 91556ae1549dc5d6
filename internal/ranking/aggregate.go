package ranking

// Partition is one independently ranked group, such as a dataset or an
// (LLM, sparsity) table.
type Partition[T any] struct {
	ID      string
	Entries []Entry[T]
}

// PartitionDetail records what one partition contributed to a group.
type PartitionDetail struct {
	Rank  int      `json:"rank"`
	Score float64  `json:"score"`
	Side  *float64 `json:"side,omitempty"`
}

// Group is one competitor aggregated across partitions.
type Group[T any] struct {
	Key string
	// Item is the first entry seen for this key.
	Item            T
	Rank            int
	AverageRank     float64
	OverallScore    float64
	NumPartitions   int
	TotalPartitions int
	BestRank        int
	WorstRank       int
	// AverageSide is the mean side metric over the partitions that reported one.
	AverageSide *float64
	Details     map[string]PartitionDetail
}

// HasDuplicates reports whether some partition contributed this key more
// than once. Duplicates are counted in every average.
func (g Group[T]) HasDuplicates() bool {
	return g.NumPartitions != len(g.Details)
}

// SideFunc extracts an optional secondary value from a ranked item.
type SideFunc[T any] func(T) (float64, bool)

type accumulator[T any] struct {
	group   Group[T]
	ranks   []int
	scores  []float64
	sideSum float64
	sideN   int
}

// Aggregate folds ranked partitions into one entry per group key.
//
// A group's average rank and overall score are means over every entry it
// contributed; the groups are then ranked by average rank ascending with the
// usual tie rule. side may be nil.
func Aggregate[T any](partitions []Partition[T], key func(T) string, side SideFunc[T]) []Group[T] {
	index := make(map[string]int)
	var accs []*accumulator[T]

	for _, p := range partitions {
		for _, e := range p.Entries {
			k := key(e.Item)
			i, ok := index[k]
			if !ok {
				i = len(accs)
				index[k] = i
				accs = append(accs, &accumulator[T]{group: Group[T]{
					Key:     k,
					Item:    e.Item,
					Details: make(map[string]PartitionDetail),
				}})
			}
			acc := accs[i]
			acc.ranks = append(acc.ranks, e.Rank)
			acc.scores = append(acc.scores, e.Score)

			detail := PartitionDetail{Rank: e.Rank, Score: e.Score}
			if side != nil {
				if v, ok := side(e.Item); ok {
					detail.Side = &v
					acc.sideSum += v
					acc.sideN++
				}
			}
			if _, exists := acc.group.Details[p.ID]; !exists {
				acc.group.Details[p.ID] = detail
			}
		}
	}

	groups := make([]Group[T], 0, len(accs))
	for _, acc := range accs {
		g := acc.group
		g.NumPartitions = len(acc.ranks)
		g.TotalPartitions = len(partitions)
		g.AverageRank = meanInt(acc.ranks)
		g.OverallScore = mean(acc.scores)
		g.BestRank, g.WorstRank = minMax(acc.ranks)
		if acc.sideN > 0 {
			avg := acc.sideSum / float64(acc.sideN)
			g.AverageSide = &avg
		}
		groups = append(groups, g)
	}
	return rerank(groups)
}

// rerank orders groups by average rank and assigns their final ranks.
func rerank[T any](groups []Group[T]) []Group[T] {
	ranked := Assign(groups, func(g Group[T]) float64 { return g.AverageRank }, Ascending)
	out := make([]Group[T], len(ranked))
	for i, e := range ranked {
		out[i] = e.Item
		out[i].Rank = e.Rank
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanInt(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func minMax(values []int) (lo, hi int) {
	for i, v := range values {
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}
	return lo, hi
}
