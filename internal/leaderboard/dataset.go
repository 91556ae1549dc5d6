package leaderboard

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/ranking"
	"github.com/skylight/leaderboard/internal/tracing"
)

// Query narrows the configurations and results a leaderboard considers.
type Query struct {
	// ExperimentalRunID limits results to one run. When empty every run is a
	// candidate and the best one is selected per configuration.
	ExperimentalRunID string
	// UseLatestRun resolves an empty ExperimentalRunID to the latest
	// completed run.
	UseLatestRun bool
	Filter       model.ConfigurationFilter
}

// DatasetRanking is one configuration's position on a dataset leaderboard.
type DatasetRanking struct {
	Rank              int                `json:"rank"`
	Dataset           model.Dataset      `json:"dataset"`
	Baseline          model.Baseline     `json:"baseline"`
	LLM               model.LLM          `json:"llm"`
	ConfigurationID   string             `json:"configurationId"`
	TargetSparsity    *float64           `json:"targetSparsity,omitempty"`
	TargetAuxMemory   *int64             `json:"targetAuxMemory,omitempty"`
	ExperimentalRunID string             `json:"experimentalRunId"`
	Score             float64            `json:"score"`
	MetricValues      map[string]float64 `json:"metricValues"`
}

// DatasetLeaderboard ranks a dataset's configurations by score, best first.
func (s *Service) DatasetLeaderboard(ctx context.Context, datasetID string, q Query) (_ []DatasetRanking, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "leaderboard.dataset",
		attribute.String("dataset.id", datasetID),
		attribute.String("experimental_run.id", q.ExperimentalRunID))
	defer func() { endSpan(err) }()

	q.ExperimentalRunID, err = s.resolveRunID(ctx, q.ExperimentalRunID, q.UseLatestRun)
	if err != nil {
		return nil, err
	}

	dataset, err := s.repos.Datasets.FindByID(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if dataset == nil {
		return nil, ErrDatasetNotFound
	}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return s.rankDataset(ctx, cat, *dataset, q)
}

// rankDataset fetches and ranks one dataset partition.
func (s *Service) rankDataset(ctx context.Context, cat *catalog, dataset model.Dataset, q Query) ([]DatasetRanking, error) {
	event := PartitionEvent{Kind: KindDataset, ID: dataset.ID}
	s.observer.PartitionStarted(ctx, event)
	start := time.Now()

	configs, err := s.fetchConfigurations(ctx, dataset.ID, &q.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load configurations for dataset %s: %w", dataset.ID, err)
	}
	dms, err := s.repos.DatasetMetrics.FindByDatasetID(ctx, dataset.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for dataset %s: %w", dataset.ID, err)
	}

	ids := make([]string, len(configs))
	for i, c := range configs {
		ids[i] = c.ID
	}
	results, err := s.fetchResults(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for dataset %s: %w", dataset.ID, err)
	}

	byConfig := make(map[string][]model.Result, len(configs))
	for _, r := range results {
		if q.ExperimentalRunID != "" && r.ExperimentalRunID != q.ExperimentalRunID {
			continue
		}
		byConfig[r.ConfigurationID] = append(byConfig[r.ConfigurationID], r)
	}

	crit := cat.criteria(dms)
	scored := make([]DatasetRanking, 0, len(configs))
	for _, cfg := range configs {
		baseline, llm, reason, ok := cat.resolve(cfg)
		if !ok {
			s.observer.ConfigurationSkipped(ctx, cfg.ID, reason)
			continue
		}
		cfgResults := byConfig[cfg.ID]
		if len(cfgResults) == 0 {
			s.observer.ConfigurationSkipped(ctx, cfg.ID, SkipNoResults)
			continue
		}

		sel := s.selectRun(ctx, cfg.ID, cfgResults, crit)
		score, ok := ranking.Score(sel.Results, dms, cat.metrics)
		if !ok {
			s.observer.ConfigurationSkipped(ctx, cfg.ID, SkipNoScore)
			continue
		}

		scored = append(scored, DatasetRanking{
			Dataset:           dataset,
			Baseline:          baseline,
			LLM:               llm,
			ConfigurationID:   cfg.ID,
			TargetSparsity:    cfg.TargetSparsity,
			TargetAuxMemory:   cfg.TargetAuxMemory,
			ExperimentalRunID: sel.RunID,
			Score:             score.Score,
			MetricValues:      score.MetricValues,
		})
	}

	ranked := ranking.Assign(scored, func(r DatasetRanking) float64 { return r.Score }, ranking.Descending)
	out := make([]DatasetRanking, len(ranked))
	for i, e := range ranked {
		out[i] = e.Item
		out[i].Rank = e.Rank
	}

	s.observer.PartitionFinished(ctx, event, len(out), time.Since(start))
	return out, nil
}
