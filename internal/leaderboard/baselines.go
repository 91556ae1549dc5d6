package leaderboard

import (
	"cmp"
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/ranking"
)

// NoDataRank is reported for a baseline that has no table in a mode.
const NoDataRank = 999

// BaselineRanking is one baseline's average table rank under both metrics.
type BaselineRanking struct {
	Baseline            model.Baseline `json:"baseline"`
	AvgRankScore        float64        `json:"avgRankScore"`
	AvgRankLocalError   float64        `json:"avgRankLocalError"`
	NumTablesScore      int            `json:"numTablesScore"`
	NumTablesLocalError int            `json:"numTablesLocalError"`
}

// BaselineRankings is the outcome of Service.BaselineRankings.
type BaselineRankings struct {
	Rankings []BaselineRanking `json:"rankings"`
	Warnings []string          `json:"warnings,omitempty"`
}

// BaselineRankings ranks every exposed baseline by its average rank over the
// LLM x sparsity tables, once by overall score and once by local error. The
// result is ordered by the overall score rank.
func (s *Service) BaselineRankings(ctx context.Context, excludedDatasets []string) (*BaselineRankings, error) {
	baselines, err := s.Baselines(ctx)
	if err != nil {
		return nil, err
	}

	var scoreSet, errorSet *tableSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		scoreSet, err = s.buildTables(gctx, TableQuery{Metric: model.MetricOverallScore, ExcludedDatasets: excludedDatasets})
		return err
	})
	g.Go(func() error {
		var err error
		errorSet, err = s.buildTables(gctx, TableQuery{Metric: model.MetricAverageLocalError, ExcludedDatasets: excludedDatasets})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byName := func(e TableEntry) string { return e.Baseline.Name }
	scoreGroups := groupsByKey(ranking.Aggregate(scoreSet.partitions, byName, nil))
	errorGroups := groupsByKey(ranking.Aggregate(errorSet.partitions, byName, nil))

	out := &BaselineRankings{Rankings: make([]BaselineRanking, 0, len(baselines))}
	out.Warnings = append(out.Warnings, scoreSet.warnings...)
	out.Warnings = append(out.Warnings, errorSet.warnings...)

	for _, b := range baselines {
		r := BaselineRanking{Baseline: b, AvgRankScore: NoDataRank, AvgRankLocalError: NoDataRank}
		if grp, ok := scoreGroups[b.Name]; ok {
			r.AvgRankScore = grp.AverageRank
			r.NumTablesScore = grp.NumPartitions
		}
		if grp, ok := errorGroups[b.Name]; ok {
			r.AvgRankLocalError = grp.AverageRank
			r.NumTablesLocalError = grp.NumPartitions
		}
		out.Rankings = append(out.Rankings, r)
	}
	slices.SortStableFunc(out.Rankings, func(a, b BaselineRanking) int {
		return cmp.Compare(a.AvgRankScore, b.AvgRankScore)
	})
	return out, nil
}

func groupsByKey[T any](groups []ranking.Group[T]) map[string]ranking.Group[T] {
	m := make(map[string]ranking.Group[T], len(groups))
	for _, g := range groups {
		m[g.Key] = g
	}
	return m
}
