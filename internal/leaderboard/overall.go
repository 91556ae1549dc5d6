package leaderboard

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/ranking"
	"github.com/skylight/leaderboard/internal/tracing"
)

// OverallQuery narrows the overall leaderboard.
type OverallQuery struct {
	Query
	// BenchmarkID limits the datasets to one benchmark.
	BenchmarkID string
}

// AggregatedRanking is one competitor's position across datasets.
type AggregatedRanking struct {
	Rank             int                `json:"rank"`
	Baseline         model.Baseline     `json:"baseline"`
	LLM              model.LLM          `json:"llm"`
	TargetSparsity   *float64           `json:"targetSparsity,omitempty"`
	TargetAuxMemory  *int64             `json:"targetAuxMemory,omitempty"`
	AverageRank      float64            `json:"averageRank"`
	OverallScore     float64            `json:"overallScore"`
	DatasetRanks     map[string]int     `json:"datasetRanks"`
	DatasetScores    map[string]float64 `json:"datasetScores"`
	NumDatasets      int                `json:"numDatasets"`
	TotalDatasets    int                `json:"totalDatasets"`
	BestDatasetRank  int                `json:"bestDatasetRank"`
	WorstDatasetRank int                `json:"worstDatasetRank"`
	AvgLocalError    *float64           `json:"avgLocalError,omitempty"`
	// DuplicateConfigurations is set when one dataset ranked this
	// competitor more than once; the duplicates are counted in the averages.
	DuplicateConfigurations bool `json:"duplicateConfigurations,omitempty"`
}

// OverallLeaderboard ranks competitors by their average rank across datasets.
//
// A competitor is a (baseline, LLM, sparsity, aux memory) combination, or
// just the baseline when the query is restricted to one LLM.
func (s *Service) OverallLeaderboard(ctx context.Context, q OverallQuery) (_ []AggregatedRanking, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "leaderboard.overall",
		attribute.String("benchmark.id", q.BenchmarkID))
	defer func() { endSpan(err) }()

	q.ExperimentalRunID, err = s.resolveRunID(ctx, q.ExperimentalRunID, q.UseLatestRun)
	if err != nil {
		return nil, err
	}

	var datasets []model.Dataset
	if q.BenchmarkID != "" {
		datasets, err = s.repos.Datasets.FindByBenchmarkID(ctx, q.BenchmarkID)
	} else {
		datasets, err = s.repos.Datasets.FindAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load datasets: %w", err)
	}
	if len(datasets) == 0 {
		return []AggregatedRanking{}, nil
	}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	partitions := make([]ranking.Partition[DatasetRanking], len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, d := range datasets {
		g.Go(func() error {
			ranked, err := s.rankDataset(gctx, cat, d, q.Query)
			if err != nil {
				return err
			}
			partitions[i] = datasetPartition(d.ID, ranked)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	key := competitorKey
	if q.Filter.LLMID != "" {
		key = func(r DatasetRanking) string { return r.Baseline.ID }
	}
	groups := ranking.Aggregate(partitions, key, localErrorOf)

	out := make([]AggregatedRanking, len(groups))
	for i, grp := range groups {
		out[i] = aggregatedRanking(grp)
		if q.Filter.LLMID != "" {
			// Keyed by baseline only; one configuration's targets would misrepresent the group.
			out[i].TargetSparsity = nil
			out[i].TargetAuxMemory = nil
		}
	}
	return out, nil
}

func datasetPartition(datasetID string, ranked []DatasetRanking) ranking.Partition[DatasetRanking] {
	entries := make([]ranking.Entry[DatasetRanking], len(ranked))
	for i, r := range ranked {
		entries[i] = ranking.Entry[DatasetRanking]{Item: r, Score: r.Score, Rank: r.Rank}
	}
	return ranking.Partition[DatasetRanking]{ID: datasetID, Entries: entries}
}

// competitorKey identifies a configuration across datasets.
func competitorKey(r DatasetRanking) string {
	sparsity, auxMemory := "-", "-"
	if r.TargetSparsity != nil {
		sparsity = strconv.FormatFloat(*r.TargetSparsity, 'f', -1, 64)
	}
	if r.TargetAuxMemory != nil {
		auxMemory = strconv.FormatInt(*r.TargetAuxMemory, 10)
	}
	return r.Baseline.ID + "|" + r.LLM.ID + "|" + sparsity + "|" + auxMemory
}

func localErrorOf(r DatasetRanking) (float64, bool) {
	v, ok := r.MetricValues[model.MetricAverageLocalError]
	return v, ok
}

func aggregatedRanking(g ranking.Group[DatasetRanking]) AggregatedRanking {
	a := AggregatedRanking{
		Rank:                    g.Rank,
		Baseline:                g.Item.Baseline,
		LLM:                     g.Item.LLM,
		TargetSparsity:          g.Item.TargetSparsity,
		TargetAuxMemory:         g.Item.TargetAuxMemory,
		AverageRank:             g.AverageRank,
		OverallScore:            g.OverallScore,
		DatasetRanks:            make(map[string]int, len(g.Details)),
		DatasetScores:           make(map[string]float64, len(g.Details)),
		NumDatasets:             g.NumPartitions,
		TotalDatasets:           g.TotalPartitions,
		BestDatasetRank:         g.BestRank,
		WorstDatasetRank:        g.WorstRank,
		AvgLocalError:           g.AverageSide,
		DuplicateConfigurations: g.HasDuplicates(),
	}
	for id, d := range g.Details {
		a.DatasetRanks[id] = d.Rank
		a.DatasetScores[id] = d.Score
	}
	return a
}
