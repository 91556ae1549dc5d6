package ranking

import (
	"cmp"
	"slices"
	"strings"

	"github.com/skylight/leaderboard/internal/model"
)

// SparsityValue is an averaged value at one sparsity level.
type SparsityValue struct {
	Sparsity float64 `json:"sparsity"`
	Value    float64 `json:"value"`
}

// Normalized is an aggregated group expressed relative to the reference.
type Normalized[T any] struct {
	Group[T]
	// ValuesPerSparsity holds the mean percentage gap to the reference per
	// sparsity level, ordered by sparsity. The reference itself has none.
	ValuesPerSparsity []SparsityValue
}

// ReferenceView is the outcome of Normalize.
type ReferenceView[T any] struct {
	Groups []Normalized[T]
	// Excluded lists groups whose partition count differs from the reference's.
	Excluded []Group[T]
	// ReferenceFound is false when no group matched the reference key; no
	// coverage filtering is applied in that case.
	ReferenceFound bool
}

// SparsityOf returns the sparsity level of a partition.
type SparsityOf func(partitionID string) (float64, bool)

// GapPercent returns score's percentage gap to the reference score. When the
// reference is zero the score itself is scaled to a percentage. ok is false
// for a negative reference.
func GapPercent(score, reference float64) (gap float64, ok bool) {
	switch {
	case reference > 0:
		return (score - reference) / reference * 100, true
	case reference == 0:
		return score * 100, true
	default:
		return 0, false
	}
}

// Normalize expresses every group's per-partition scores as a gap to the
// reference group's score in the same partition, averaged per sparsity
// level. Groups that do not cover as many partitions as the reference are
// excluded and the rest are re-ranked by average rank. The reference key is
// matched case-insensitively. Partitions at full density are ignored.
func Normalize[T any](groups []Group[T], referenceKey string, sparsityOf SparsityOf) ReferenceView[T] {
	var view ReferenceView[T]

	var ref *Group[T]
	for i := range groups {
		if strings.EqualFold(groups[i].Key, referenceKey) {
			ref = &groups[i]
			break
		}
	}
	view.ReferenceFound = ref != nil

	kept := make([]Group[T], 0, len(groups))
	for _, g := range groups {
		if ref != nil && g.NumPartitions != ref.NumPartitions {
			view.Excluded = append(view.Excluded, g)
			continue
		}
		kept = append(kept, g)
	}

	for _, g := range rerank(kept) {
		n := Normalized[T]{Group: g}
		if ref != nil && !strings.EqualFold(g.Key, ref.Key) {
			n.ValuesPerSparsity = gapsBySparsity(g, *ref, sparsityOf)
		}
		view.Groups = append(view.Groups, n)
	}
	return view
}

func gapsBySparsity[T any](g, ref Group[T], sparsityOf SparsityOf) []SparsityValue {
	sums := make(map[float64]float64)
	counts := make(map[float64]int)
	// Sorted so the float sums do not depend on map iteration order.
	ids := make([]string, 0, len(g.Details))
	for id := range g.Details {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, partitionID := range ids {
		detail := g.Details[partitionID]
		refDetail, ok := ref.Details[partitionID]
		if !ok {
			continue
		}
		sparsity, ok := sparsityOf(partitionID)
		if !ok || sparsity == model.FullDensitySparsity {
			continue
		}
		gap, ok := GapPercent(detail.Score, refDetail.Score)
		if !ok {
			continue
		}
		sums[sparsity] += gap
		counts[sparsity]++
	}

	values := make([]SparsityValue, 0, len(sums))
	for s, sum := range sums {
		values = append(values, SparsityValue{Sparsity: s, Value: sum / float64(counts[s])})
	}
	slices.SortFunc(values, func(a, b SparsityValue) int {
		return cmp.Compare(a.Sparsity, b.Sparsity)
	})
	return values
}

// ExcludeFullDensity drops partitions at full density, which carry no
// signal about sparse methods.
func ExcludeFullDensity[T any](partitions []Partition[T], sparsityOf SparsityOf) []Partition[T] {
	out := make([]Partition[T], 0, len(partitions))
	for _, p := range partitions {
		if s, ok := sparsityOf(p.ID); ok && s == model.FullDensitySparsity {
			continue
		}
		out = append(out, p)
	}
	return out
}
