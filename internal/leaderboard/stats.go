package leaderboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// OverviewStats summarizes the data behind the leaderboards.
type OverviewStats struct {
	TotalBaselines      int `json:"totalBaselines"`
	TotalBenchmarks     int `json:"totalBenchmarks"`
	TotalDatasets       int `json:"totalDatasets"`
	TotalLLMs           int `json:"totalLlms"`
	TotalConfigurations int `json:"totalConfigurations"`
	TotalResults        int `json:"totalResults"`
	// LastUpdated is the run date of the latest completed run, nil when no
	// run has completed.
	LastUpdated *time.Time `json:"lastUpdated"`
}

// Stats counts the entities behind the leaderboards. Only exposed baselines
// are counted.
func (s *Service) Stats(ctx context.Context) (*OverviewStats, error) {
	var stats OverviewStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.Baselines(gctx)
		stats.TotalBaselines = len(b)
		return wrapCount("baselines", err)
	})
	g.Go(func() error {
		b, err := s.repos.Benchmarks.FindAll(gctx)
		stats.TotalBenchmarks = len(b)
		return wrapCount("benchmarks", err)
	})
	g.Go(func() error {
		d, err := s.repos.Datasets.FindAll(gctx)
		stats.TotalDatasets = len(d)
		return wrapCount("datasets", err)
	})
	g.Go(func() error {
		l, err := s.repos.LLMs.FindAll(gctx)
		stats.TotalLLMs = len(l)
		return wrapCount("llms", err)
	})
	g.Go(func() error {
		c, err := s.repos.Configurations.FindAll(gctx)
		stats.TotalConfigurations = len(c)
		return wrapCount("configurations", err)
	})
	g.Go(func() error {
		n, err := s.repos.Results.Count(gctx)
		stats.TotalResults = n
		return wrapCount("results", err)
	})
	g.Go(func() error {
		run, err := s.repos.ExperimentalRuns.FindLatestCompleted(gctx)
		if run != nil {
			date := run.RunDate
			stats.LastUpdated = &date
		}
		return wrapCount("latest run", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

func wrapCount(what string, err error) error {
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", what, err)
	}
	return nil
}

// SparsityValues returns the distinct target sparsities, rounded to one decimal.
func (s *Service) SparsityValues(ctx context.Context) ([]float64, error) {
	values, err := s.repos.Configurations.UniqueSparsityValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sparsity values: %w", err)
	}
	if values == nil {
		values = []float64{}
	}
	return values, nil
}

// AuxMemoryValues returns the distinct target aux memory values.
func (s *Service) AuxMemoryValues(ctx context.Context) ([]int64, error) {
	values, err := s.repos.Configurations.UniqueAuxMemoryValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aux memory values: %w", err)
	}
	if values == nil {
		values = []int64{}
	}
	return values, nil
}
