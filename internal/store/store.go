// Package store provides read-only repositories for the leaderboard entities.
// Two implementations exist: a Postgres-backed one and an in-memory one
// loaded from a YAML fixture. The implementation is chosen once at startup
// by Open.
//
// Single-entity lookups return (nil, nil) when the entity does not exist;
// errors are reserved for store failures.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skylight/leaderboard/internal/db"
	"github.com/skylight/leaderboard/internal/model"
)

// Data source names accepted by Open.
const (
	DataSourcePostgres = "postgres"
	DataSourceMemory   = "memory"
)

// Errors returned by Open.
var (
	ErrUnknownDataSource = errors.New("unknown data source")
	ErrMissingFixture    = errors.New("fixture path is required for the memory data source")
)

// BaselineRepository reads baselines.
type BaselineRepository interface {
	FindAll(ctx context.Context) ([]model.Baseline, error)
	FindByID(ctx context.Context, id string) (*model.Baseline, error)
}

// LLMRepository reads language models.
type LLMRepository interface {
	FindAll(ctx context.Context) ([]model.LLM, error)
	FindByID(ctx context.Context, id string) (*model.LLM, error)
}

// BenchmarkRepository reads benchmarks.
type BenchmarkRepository interface {
	FindAll(ctx context.Context) ([]model.Benchmark, error)
	FindByID(ctx context.Context, id string) (*model.Benchmark, error)
}

// DatasetRepository reads datasets.
type DatasetRepository interface {
	FindAll(ctx context.Context) ([]model.Dataset, error)
	FindByID(ctx context.Context, id string) (*model.Dataset, error)
	FindByBenchmarkID(ctx context.Context, benchmarkID string) ([]model.Dataset, error)
}

// MetricRepository reads metric definitions.
type MetricRepository interface {
	FindAll(ctx context.Context) ([]model.Metric, error)
	FindByID(ctx context.Context, id string) (*model.Metric, error)
	FindByName(ctx context.Context, name string) (*model.Metric, error)
}

// DatasetMetricRepository reads dataset to metric associations.
type DatasetMetricRepository interface {
	FindAll(ctx context.Context) ([]model.DatasetMetric, error)
	// FindByDatasetID returns the dataset's metrics with the primary one first.
	FindByDatasetID(ctx context.Context, datasetID string) ([]model.DatasetMetric, error)
}

// ConfigurationRepository reads evaluated configurations.
type ConfigurationRepository interface {
	FindAll(ctx context.Context) ([]model.Configuration, error)
	FindByID(ctx context.Context, id string) (*model.Configuration, error)
	// FindByDatasetID returns the dataset's configurations that pass filter.
	// A nil filter matches everything.
	FindByDatasetID(ctx context.Context, datasetID string, filter *model.ConfigurationFilter) ([]model.Configuration, error)
	// UniqueSparsityValues returns distinct target sparsities rounded to one
	// decimal, ascending.
	UniqueSparsityValues(ctx context.Context) ([]float64, error)
	// UniqueAuxMemoryValues returns distinct target aux memory values, ascending.
	UniqueAuxMemoryValues(ctx context.Context) ([]int64, error)
}

// ResultRepository reads measurements.
type ResultRepository interface {
	FindByConfigurationID(ctx context.Context, configurationID string) ([]model.Result, error)
	FindByConfigurationIDs(ctx context.Context, configurationIDs []string) ([]model.Result, error)
	Count(ctx context.Context) (int, error)
}

// ExperimentalRunRepository reads experimental runs.
type ExperimentalRunRepository interface {
	FindAll(ctx context.Context) ([]model.ExperimentalRun, error)
	FindByID(ctx context.Context, id string) (*model.ExperimentalRun, error)
	// FindLatestCompleted returns the completed run with the latest run date.
	FindLatestCompleted(ctx context.Context) (*model.ExperimentalRun, error)
}

// Repositories bundles one implementation of every repository.
type Repositories struct {
	Baselines        BaselineRepository
	LLMs             LLMRepository
	Benchmarks       BenchmarkRepository
	Datasets         DatasetRepository
	Metrics          MetricRepository
	DatasetMetrics   DatasetMetricRepository
	Configurations   ConfigurationRepository
	Results          ResultRepository
	ExperimentalRuns ExperimentalRunRepository

	db    *sql.DB
	close func() error
}

// DB returns the Postgres pool behind the repositories, or nil for the
// in-memory data source.
func (r *Repositories) DB() *sql.DB {
	if r == nil {
		return nil
	}
	return r.db
}

// Close releases the underlying connection, if any.
func (r *Repositories) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

// Options selects and configures the data source.
type Options struct {
	DataSource  string
	DatabaseURL string
	FixturePath string
	Pool        db.PoolOptions
}

// Open builds the repositories for the configured data source.
func Open(ctx context.Context, opts Options) (*Repositories, error) {
	switch opts.DataSource {
	case DataSourcePostgres:
		conn, err := db.Open(ctx, opts.DatabaseURL, opts.Pool)
		if err != nil {
			return nil, err
		}
		repos := NewPostgres(conn)
		repos.close = conn.Close
		return repos, nil
	case DataSourceMemory:
		if opts.FixturePath == "" {
			return nil, ErrMissingFixture
		}
		fixture, err := LoadFixture(opts.FixturePath)
		if err != nil {
			return nil, err
		}
		return NewMemory(fixture), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataSource, opts.DataSource)
	}
}
