// Package leaderboard runs the ranking pipelines over the repositories.
//
// Every pipeline fetches what it needs from the store, hands the data to the
// pure engine in package ranking, and returns plain result types that the
// HTTP layer serializes directly. Partitions (datasets, or LLM x sparsity
// tables) are fetched and ranked concurrently with a bounded number of
// workers and joined before aggregation. Nothing is cached here; see package
// views for the precomputed combined views.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/ranking"
	"github.com/skylight/leaderboard/internal/store"
)

// Errors returned by the pipelines.
var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrNoCompletedRun  = errors.New("no completed experimental run found")
)

// DefaultConcurrency bounds parallel partition computations and concurrent
// store fetches.
const DefaultConcurrency = 8

// DefaultReferenceBaseline is the baseline other baselines are compared against.
const DefaultReferenceBaseline = "dense"

// Options configures a Service.
type Options struct {
	// ExposedBaselines restricts which baselines are ranked, by name.
	// Empty exposes all.
	ExposedBaselines []string
	// ReferenceBaseline names the baseline used for gap percentages.
	ReferenceBaseline string
	// Concurrency bounds parallel partition computations within one call
	// and the partition fetches in flight across all calls on the Service.
	Concurrency int
	Observer    Observer
}

// Service computes leaderboards. It is safe for concurrent use.
type Service struct {
	repos       *store.Repositories
	exposure    *Exposure
	reference   string
	concurrency int
	fetches     *semaphore.Weighted
	observer    Observer
}

// NewService creates a Service over the given repositories.
func NewService(repos *store.Repositories, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ReferenceBaseline == "" {
		opts.ReferenceBaseline = DefaultReferenceBaseline
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	return &Service{
		repos:       repos,
		exposure:    NewExposure(opts.ExposedBaselines),
		reference:   opts.ReferenceBaseline,
		concurrency: opts.Concurrency,
		fetches:     semaphore.NewWeighted(int64(opts.Concurrency)),
		observer:    opts.Observer,
	}
}

// Exposure returns the baseline allow-list in use.
func (s *Service) Exposure() *Exposure {
	return s.exposure
}

// ReferenceBaseline returns the reference baseline name.
func (s *Service) ReferenceBaseline() string {
	return s.reference
}

// Exposure is an allow-list of baseline names.
type Exposure struct {
	names map[string]struct{}
}

// NewExposure builds an allow-list. Blank names are ignored; an empty list
// exposes every baseline.
func NewExposure(names []string) *Exposure {
	e := &Exposure{names: make(map[string]struct{})}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			e.names[n] = struct{}{}
		}
	}
	return e
}

// Allows reports whether the baseline is exposed.
func (e *Exposure) Allows(b model.Baseline) bool {
	if e == nil || len(e.names) == 0 {
		return true
	}
	_, ok := e.names[b.Name]
	return ok
}

// Filter returns the exposed baselines, preserving order.
func (e *Exposure) Filter(baselines []model.Baseline) []model.Baseline {
	out := make([]model.Baseline, 0, len(baselines))
	for _, b := range baselines {
		if e.Allows(b) {
			out = append(out, b)
		}
	}
	return out
}

// Len returns the number of names in the allow-list.
func (e *Exposure) Len() int {
	if e == nil {
		return 0
	}
	return len(e.names)
}

// Baselines returns the exposed baselines.
func (s *Service) Baselines(ctx context.Context) ([]model.Baseline, error) {
	all, err := s.repos.Baselines.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.exposure.Filter(all), nil
}

// Baseline returns an exposed baseline, or nil when it does not exist or is hidden.
func (s *Service) Baseline(ctx context.Context, id string) (*model.Baseline, error) {
	b, err := s.repos.Baselines.FindByID(ctx, id)
	if err != nil || b == nil {
		return nil, err
	}
	if !s.exposure.Allows(*b) {
		return nil, nil
	}
	return b, nil
}

// catalog holds the reference entities one pipeline run resolves ids against.
type catalog struct {
	baselines     map[string]model.Baseline
	llms          map[string]model.LLM
	metrics       map[string]model.Metric
	metricsByName map[string]model.Metric
}

// loadCatalog reads exposed baselines, LLMs and metrics.
func (s *Service) loadCatalog(ctx context.Context) (*catalog, error) {
	baselines, err := s.Baselines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load baselines: %w", err)
	}
	llms, err := s.repos.LLMs.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load llms: %w", err)
	}
	metrics, err := s.repos.Metrics.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}

	c := &catalog{
		baselines:     make(map[string]model.Baseline, len(baselines)),
		llms:          make(map[string]model.LLM, len(llms)),
		metrics:       make(map[string]model.Metric, len(metrics)),
		metricsByName: make(map[string]model.Metric, len(metrics)),
	}
	for _, b := range baselines {
		c.baselines[b.ID] = b
	}
	for _, l := range llms {
		c.llms[l.ID] = l
	}
	for _, m := range metrics {
		c.metrics[m.ID] = m
		c.metricsByName[m.Name] = m
	}
	return c, nil
}

// resolve looks up a configuration's baseline and LLM. ok is false, with the
// reason, when either is unknown or the baseline is not exposed.
func (c *catalog) resolve(cfg model.Configuration) (model.Baseline, model.LLM, SkipReason, bool) {
	b, ok := c.baselines[cfg.BaselineID]
	if !ok {
		return model.Baseline{}, model.LLM{}, SkipUnknownBaseline, false
	}
	l, ok := c.llms[cfg.LLMID]
	if !ok {
		return model.Baseline{}, model.LLM{}, SkipUnknownLLM, false
	}
	return b, l, "", true
}

// criteria builds the run selection criteria for a dataset's metrics.
func (c *catalog) criteria(dms []model.DatasetMetric) ranking.Criteria {
	var crit ranking.Criteria
	for _, dm := range dms {
		m, ok := c.metrics[dm.MetricID]
		if !ok {
			continue
		}
		switch m.Name {
		case model.MetricAverageLocalError:
			if crit.LocalErrorID == "" {
				crit.LocalErrorID = dm.ID
			}
		case model.MetricAuxMemory:
			if crit.AuxMemoryID == "" {
				crit.AuxMemoryID = dm.ID
			}
		}
		if dm.IsPrimary && crit.PrimaryID == "" {
			crit.PrimaryID = dm.ID
			crit.PrimaryHigherIsBetter = m.HigherIsBetter
		}
	}
	return crit
}

// selectRun picks the canonical run of one configuration's results and
// reports the choice.
func (s *Service) selectRun(ctx context.Context, cfgID string, results []model.Result, crit ranking.Criteria) ranking.Selection {
	sel := ranking.SelectBestRun(ranking.GroupByRun(results), crit)
	s.observer.RunSelected(ctx, cfgID, sel)
	return sel
}

// fetchConfigurations loads a dataset's configurations, waiting for a free
// fetch slot first.
func (s *Service) fetchConfigurations(ctx context.Context, datasetID string, filter *model.ConfigurationFilter) ([]model.Configuration, error) {
	if err := s.fetches.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.fetches.Release(1)
	return s.repos.Configurations.FindByDatasetID(ctx, datasetID, filter)
}

// fetchResults loads the results of configurationIDs, waiting for a free
// fetch slot first.
func (s *Service) fetchResults(ctx context.Context, configurationIDs []string) ([]model.Result, error) {
	if err := s.fetches.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.fetches.Release(1)
	return s.repos.Results.FindByConfigurationIDs(ctx, configurationIDs)
}

// resolveRunID returns runID, or the latest completed run when useLatest is
// set and runID is empty.
func (s *Service) resolveRunID(ctx context.Context, runID string, useLatest bool) (string, error) {
	if runID != "" || !useLatest {
		return runID, nil
	}
	run, err := s.repos.ExperimentalRuns.FindLatestCompleted(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find latest run: %w", err)
	}
	if run == nil {
		return "", ErrNoCompletedRun
	}
	return run.ID, nil
}
