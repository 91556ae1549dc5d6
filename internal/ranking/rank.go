package ranking

import (
	"cmp"
	"math"
	"slices"
)

// TieEpsilon is the absolute score difference under which two neighbours
// share a rank.
const TieEpsilon = 0.001

// Direction controls the sort order used when ranking.
type Direction int

const (
	// Descending ranks the highest score first.
	Descending Direction = iota
	// Ascending ranks the lowest score first.
	Ascending
)

// String returns "desc" or "asc".
func (d Direction) String() string {
	if d == Ascending {
		return "asc"
	}
	return "desc"
}

// DirectionFor returns the ranking direction for a metric.
func DirectionFor(higherIsBetter bool) Direction {
	if higherIsBetter {
		return Descending
	}
	return Ascending
}

// Entry is one ranked item.
type Entry[T any] struct {
	Item  T
	Score float64
	Rank  int
}

// Assign sorts items by score in the requested direction and assigns
// competition ranks. Items with equal scores keep their input order.
func Assign[T any](items []T, score func(T) float64, dir Direction) []Entry[T] {
	entries := make([]Entry[T], len(items))
	for i, item := range items {
		entries[i] = Entry[T]{Item: item, Score: score(item)}
	}

	slices.SortStableFunc(entries, func(a, b Entry[T]) int {
		if dir == Ascending {
			return cmp.Compare(a.Score, b.Score)
		}
		return cmp.Compare(b.Score, a.Score)
	})

	for i := range entries {
		if i > 0 && math.Abs(entries[i].Score-entries[i-1].Score) <= TieEpsilon {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
	return entries
}
