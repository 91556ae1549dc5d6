package store

import (
	"context"
	"math"
	"slices"

	"github.com/skylight/leaderboard/internal/model"
)

// memoryData is the shared, read-only backing for the in-memory repositories.
type memoryData struct {
	fixture Fixture
}

// NewMemory builds in-memory repositories over a fixture.
// The fixture is copied; later changes to it are not observed.
func NewMemory(f *Fixture) *Repositories {
	data := &memoryData{}
	if f != nil {
		data.fixture = Fixture{
			Baselines:        slices.Clone(f.Baselines),
			LLMs:             slices.Clone(f.LLMs),
			Benchmarks:       slices.Clone(f.Benchmarks),
			Datasets:         slices.Clone(f.Datasets),
			Metrics:          slices.Clone(f.Metrics),
			DatasetMetrics:   slices.Clone(f.DatasetMetrics),
			Configurations:   slices.Clone(f.Configurations),
			ExperimentalRuns: slices.Clone(f.ExperimentalRuns),
			Results:          slices.Clone(f.Results),
		}
	}
	return &Repositories{
		Baselines:        &InMemoryBaselineRepository{data: data},
		LLMs:             &InMemoryLLMRepository{data: data},
		Benchmarks:       &InMemoryBenchmarkRepository{data: data},
		Datasets:         &InMemoryDatasetRepository{data: data},
		Metrics:          &InMemoryMetricRepository{data: data},
		DatasetMetrics:   &InMemoryDatasetMetricRepository{data: data},
		Configurations:   &InMemoryConfigurationRepository{data: data},
		Results:          &InMemoryResultRepository{data: data},
		ExperimentalRuns: &InMemoryExperimentalRunRepository{data: data},
	}
}

// findByID returns a copy of the first item with the given id, or nil.
func findByID[T any](items []T, id string, idOf func(T) string) *T {
	for _, item := range items {
		if idOf(item) == id {
			found := item
			return &found
		}
	}
	return nil
}

// filter returns copies of the items that match keep.
func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// InMemoryBaselineRepository implements BaselineRepository over a fixture.
type InMemoryBaselineRepository struct{ data *memoryData }

// FindAll returns all baselines in fixture order.
func (r *InMemoryBaselineRepository) FindAll(ctx context.Context) ([]model.Baseline, error) {
	return slices.Clone(r.data.fixture.Baselines), nil
}

// FindByID returns a baseline or nil.
func (r *InMemoryBaselineRepository) FindByID(ctx context.Context, id string) (*model.Baseline, error) {
	return findByID(r.data.fixture.Baselines, id, func(b model.Baseline) string { return b.ID }), nil
}

// InMemoryLLMRepository implements LLMRepository over a fixture.
type InMemoryLLMRepository struct{ data *memoryData }

// FindAll returns all LLMs in fixture order.
func (r *InMemoryLLMRepository) FindAll(ctx context.Context) ([]model.LLM, error) {
	return slices.Clone(r.data.fixture.LLMs), nil
}

// FindByID returns an LLM or nil.
func (r *InMemoryLLMRepository) FindByID(ctx context.Context, id string) (*model.LLM, error) {
	return findByID(r.data.fixture.LLMs, id, func(l model.LLM) string { return l.ID }), nil
}

// InMemoryBenchmarkRepository implements BenchmarkRepository over a fixture.
type InMemoryBenchmarkRepository struct{ data *memoryData }

// FindAll returns all benchmarks in fixture order.
func (r *InMemoryBenchmarkRepository) FindAll(ctx context.Context) ([]model.Benchmark, error) {
	return slices.Clone(r.data.fixture.Benchmarks), nil
}

// FindByID returns a benchmark or nil.
func (r *InMemoryBenchmarkRepository) FindByID(ctx context.Context, id string) (*model.Benchmark, error) {
	return findByID(r.data.fixture.Benchmarks, id, func(b model.Benchmark) string { return b.ID }), nil
}

// InMemoryDatasetRepository implements DatasetRepository over a fixture.
type InMemoryDatasetRepository struct{ data *memoryData }

// FindAll returns all datasets in fixture order.
func (r *InMemoryDatasetRepository) FindAll(ctx context.Context) ([]model.Dataset, error) {
	return slices.Clone(r.data.fixture.Datasets), nil
}

// FindByID returns a dataset or nil.
func (r *InMemoryDatasetRepository) FindByID(ctx context.Context, id string) (*model.Dataset, error) {
	return findByID(r.data.fixture.Datasets, id, func(d model.Dataset) string { return d.ID }), nil
}

// FindByBenchmarkID returns the datasets of one benchmark.
func (r *InMemoryDatasetRepository) FindByBenchmarkID(ctx context.Context, benchmarkID string) ([]model.Dataset, error) {
	return filter(r.data.fixture.Datasets, func(d model.Dataset) bool { return d.BenchmarkID == benchmarkID }), nil
}

// InMemoryMetricRepository implements MetricRepository over a fixture.
type InMemoryMetricRepository struct{ data *memoryData }

// FindAll returns all metrics in fixture order.
func (r *InMemoryMetricRepository) FindAll(ctx context.Context) ([]model.Metric, error) {
	return slices.Clone(r.data.fixture.Metrics), nil
}

// FindByID returns a metric or nil.
func (r *InMemoryMetricRepository) FindByID(ctx context.Context, id string) (*model.Metric, error) {
	return findByID(r.data.fixture.Metrics, id, func(m model.Metric) string { return m.ID }), nil
}

// FindByName returns the metric with the given name or nil.
func (r *InMemoryMetricRepository) FindByName(ctx context.Context, name string) (*model.Metric, error) {
	return findByID(r.data.fixture.Metrics, name, func(m model.Metric) string { return m.Name }), nil
}

// InMemoryDatasetMetricRepository implements DatasetMetricRepository over a fixture.
type InMemoryDatasetMetricRepository struct{ data *memoryData }

// FindAll returns all dataset metrics in fixture order.
func (r *InMemoryDatasetMetricRepository) FindAll(ctx context.Context) ([]model.DatasetMetric, error) {
	return slices.Clone(r.data.fixture.DatasetMetrics), nil
}

// FindByDatasetID returns a dataset's metrics, primary first.
func (r *InMemoryDatasetMetricRepository) FindByDatasetID(ctx context.Context, datasetID string) ([]model.DatasetMetric, error) {
	dms := filter(r.data.fixture.DatasetMetrics, func(dm model.DatasetMetric) bool { return dm.DatasetID == datasetID })
	slices.SortStableFunc(dms, func(a, b model.DatasetMetric) int {
		switch {
		case a.IsPrimary == b.IsPrimary:
			return 0
		case a.IsPrimary:
			return -1
		default:
			return 1
		}
	})
	return dms, nil
}

// InMemoryConfigurationRepository implements ConfigurationRepository over a fixture.
type InMemoryConfigurationRepository struct{ data *memoryData }

// FindAll returns all configurations in fixture order.
func (r *InMemoryConfigurationRepository) FindAll(ctx context.Context) ([]model.Configuration, error) {
	return slices.Clone(r.data.fixture.Configurations), nil
}

// FindByID returns a configuration or nil.
func (r *InMemoryConfigurationRepository) FindByID(ctx context.Context, id string) (*model.Configuration, error) {
	return findByID(r.data.fixture.Configurations, id, func(c model.Configuration) string { return c.ID }), nil
}

// FindByDatasetID returns the dataset's configurations that pass the filter.
func (r *InMemoryConfigurationRepository) FindByDatasetID(ctx context.Context, datasetID string, f *model.ConfigurationFilter) ([]model.Configuration, error) {
	return filter(r.data.fixture.Configurations, func(c model.Configuration) bool {
		return c.DatasetID == datasetID && f.Matches(c)
	}), nil
}

// UniqueSparsityValues returns distinct sparsities rounded to one decimal.
func (r *InMemoryConfigurationRepository) UniqueSparsityValues(ctx context.Context) ([]float64, error) {
	values := []float64{}
	for _, c := range r.data.fixture.Configurations {
		if c.TargetSparsity != nil {
			values = append(values, RoundSparsity(*c.TargetSparsity))
		}
	}
	slices.Sort(values)
	return slices.Compact(values), nil
}

// UniqueAuxMemoryValues returns distinct aux memory targets.
func (r *InMemoryConfigurationRepository) UniqueAuxMemoryValues(ctx context.Context) ([]int64, error) {
	values := []int64{}
	for _, c := range r.data.fixture.Configurations {
		if c.TargetAuxMemory != nil {
			values = append(values, *c.TargetAuxMemory)
		}
	}
	slices.Sort(values)
	return slices.Compact(values), nil
}

// RoundSparsity rounds a sparsity to one decimal place.
func RoundSparsity(v float64) float64 {
	return math.Round(v*10) / 10
}

// InMemoryResultRepository implements ResultRepository over a fixture.
type InMemoryResultRepository struct{ data *memoryData }

// FindByConfigurationID returns the results of one configuration.
func (r *InMemoryResultRepository) FindByConfigurationID(ctx context.Context, configurationID string) ([]model.Result, error) {
	return filter(r.data.fixture.Results, func(res model.Result) bool { return res.ConfigurationID == configurationID }), nil
}

// FindByConfigurationIDs returns the results of several configurations.
func (r *InMemoryResultRepository) FindByConfigurationIDs(ctx context.Context, configurationIDs []string) ([]model.Result, error) {
	if len(configurationIDs) == 0 {
		return []model.Result{}, nil
	}
	ids := make(map[string]struct{}, len(configurationIDs))
	for _, id := range configurationIDs {
		ids[id] = struct{}{}
	}

	return filter(r.data.fixture.Results, func(res model.Result) bool {
		_, ok := ids[res.ConfigurationID]
		return ok
	}), nil
}

// Count returns the number of results.
func (r *InMemoryResultRepository) Count(ctx context.Context) (int, error) {
	return len(r.data.fixture.Results), nil
}

// InMemoryExperimentalRunRepository implements ExperimentalRunRepository over a fixture.
type InMemoryExperimentalRunRepository struct{ data *memoryData }

// FindAll returns all runs in fixture order.
func (r *InMemoryExperimentalRunRepository) FindAll(ctx context.Context) ([]model.ExperimentalRun, error) {
	return slices.Clone(r.data.fixture.ExperimentalRuns), nil
}

// FindByID returns a run or nil.
func (r *InMemoryExperimentalRunRepository) FindByID(ctx context.Context, id string) (*model.ExperimentalRun, error) {
	return findByID(r.data.fixture.ExperimentalRuns, id, func(run model.ExperimentalRun) string { return run.ID }), nil
}

// FindLatestCompleted returns the completed run with the latest run date, or nil.
func (r *InMemoryExperimentalRunRepository) FindLatestCompleted(ctx context.Context) (*model.ExperimentalRun, error) {
	var latest *model.ExperimentalRun
	for _, run := range r.data.fixture.ExperimentalRuns {
		if run.Status != model.RunCompleted {
			continue
		}
		if latest == nil || run.RunDate.After(latest.RunDate) {
			found := run
			latest = &found
		}
	}
	return latest, nil
}
