package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/tracing"
)

// NewPostgres builds Postgres-backed repositories over an open pool.
func NewPostgres(db *sql.DB) *Repositories {
	return &Repositories{
		Baselines:        &PostgresBaselineRepository{db: db},
		LLMs:             &PostgresLLMRepository{db: db},
		Benchmarks:       &PostgresBenchmarkRepository{db: db},
		Datasets:         &PostgresDatasetRepository{db: db},
		Metrics:          &PostgresMetricRepository{db: db},
		DatasetMetrics:   &PostgresDatasetMetricRepository{db: db},
		Configurations:   &PostgresConfigurationRepository{db: db},
		Results:          &PostgresResultRepository{db: db},
		ExperimentalRuns: &PostgresExperimentalRunRepository{db: db},
		db:               db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryList runs a query inside a DB span and scans every row.
func queryList[T any](ctx context.Context, db *sql.DB, table, query string, scan func(rowScanner) (T, error), args ...any) (_ []T, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, table, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, scanErr := scan(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, scanErr)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}
	return items, nil
}

// queryOne runs a single-row query inside a DB span. A missing row is (nil, nil).
func queryOne[T any](ctx context.Context, db *sql.DB, table, query string, scan func(rowScanner) (T, error), args ...any) (_ *T, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, table, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	item, err := scan(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return &item, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func decodeJSONMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode json column: %w", err)
	}
	return m, nil
}

// Baselines

const baselineColumns = `id, name, COALESCE(description, ''), COALESCE(version, ''),
	COALESCE(paper_url, ''), COALESCE(code_url, ''), created_at, updated_at`

func scanBaseline(s rowScanner) (model.Baseline, error) {
	var b model.Baseline
	err := s.Scan(&b.ID, &b.Name, &b.Description, &b.Version, &b.PaperURL, &b.CodeURL, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// PostgresBaselineRepository implements BaselineRepository on the baselines table.
type PostgresBaselineRepository struct{ db *sql.DB }

// FindAll returns all baselines ordered by name.
func (r *PostgresBaselineRepository) FindAll(ctx context.Context) ([]model.Baseline, error) {
	return queryList(ctx, r.db, "baselines", `SELECT `+baselineColumns+` FROM baselines ORDER BY name`, scanBaseline)
}

// FindByID returns a baseline or nil.
func (r *PostgresBaselineRepository) FindByID(ctx context.Context, id string) (*model.Baseline, error) {
	return queryOne(ctx, r.db, "baselines", `SELECT `+baselineColumns+` FROM baselines WHERE id = $1`, scanBaseline, id)
}

// LLMs

const llmColumns = `id, name, COALESCE(provider, ''), parameter_count, context_length, created_at, updated_at`

func scanLLM(s rowScanner) (model.LLM, error) {
	var (
		l          model.LLM
		params     sql.NullInt64
		contextLen sql.NullInt64
	)
	if err := s.Scan(&l.ID, &l.Name, &l.Provider, &params, &contextLen, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return l, err
	}
	l.ParameterCount = int64Ptr(params)
	l.ContextLength = intPtr(contextLen)
	return l, nil
}

// PostgresLLMRepository implements LLMRepository on the llms table.
type PostgresLLMRepository struct{ db *sql.DB }

// FindAll returns all LLMs ordered by name.
func (r *PostgresLLMRepository) FindAll(ctx context.Context) ([]model.LLM, error) {
	return queryList(ctx, r.db, "llms", `SELECT `+llmColumns+` FROM llms ORDER BY name`, scanLLM)
}

// FindByID returns an LLM or nil.
func (r *PostgresLLMRepository) FindByID(ctx context.Context, id string) (*model.LLM, error) {
	return queryOne(ctx, r.db, "llms", `SELECT `+llmColumns+` FROM llms WHERE id = $1`, scanLLM, id)
}

// Benchmarks

const benchmarkColumns = `id, name, COALESCE(description, ''), COALESCE(paper_url, ''), created_at, updated_at`

func scanBenchmark(s rowScanner) (model.Benchmark, error) {
	var b model.Benchmark
	err := s.Scan(&b.ID, &b.Name, &b.Description, &b.PaperURL, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// PostgresBenchmarkRepository implements BenchmarkRepository on the benchmarks table.
type PostgresBenchmarkRepository struct{ db *sql.DB }

// FindAll returns all benchmarks ordered by name.
func (r *PostgresBenchmarkRepository) FindAll(ctx context.Context) ([]model.Benchmark, error) {
	return queryList(ctx, r.db, "benchmarks", `SELECT `+benchmarkColumns+` FROM benchmarks ORDER BY name`, scanBenchmark)
}

// FindByID returns a benchmark or nil.
func (r *PostgresBenchmarkRepository) FindByID(ctx context.Context, id string) (*model.Benchmark, error) {
	return queryOne(ctx, r.db, "benchmarks", `SELECT `+benchmarkColumns+` FROM benchmarks WHERE id = $1`, scanBenchmark, id)
}

// Datasets

const datasetColumns = `id, benchmark_id, name, COALESCE(description, ''), size, created_at, updated_at`

func scanDataset(s rowScanner) (model.Dataset, error) {
	var (
		d    model.Dataset
		size sql.NullInt64
	)
	if err := s.Scan(&d.ID, &d.BenchmarkID, &d.Name, &d.Description, &size, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return d, err
	}
	d.Size = intPtr(size)
	return d, nil
}

// PostgresDatasetRepository implements DatasetRepository on the datasets table.
type PostgresDatasetRepository struct{ db *sql.DB }

// FindAll returns all datasets ordered by name.
func (r *PostgresDatasetRepository) FindAll(ctx context.Context) ([]model.Dataset, error) {
	return queryList(ctx, r.db, "datasets", `SELECT `+datasetColumns+` FROM datasets ORDER BY name`, scanDataset)
}

// FindByID returns a dataset or nil.
func (r *PostgresDatasetRepository) FindByID(ctx context.Context, id string) (*model.Dataset, error) {
	return queryOne(ctx, r.db, "datasets", `SELECT `+datasetColumns+` FROM datasets WHERE id = $1`, scanDataset, id)
}

// FindByBenchmarkID returns the datasets of one benchmark.
func (r *PostgresDatasetRepository) FindByBenchmarkID(ctx context.Context, benchmarkID string) ([]model.Dataset, error) {
	return queryList(ctx, r.db, "datasets",
		`SELECT `+datasetColumns+` FROM datasets WHERE benchmark_id = $1 ORDER BY name`, scanDataset, benchmarkID)
}

// Metrics

const metricColumns = `id, name, COALESCE(display_name, name), COALESCE(description, ''),
	COALESCE(unit, ''), higher_is_better, created_at`

func scanMetric(s rowScanner) (model.Metric, error) {
	var m model.Metric
	err := s.Scan(&m.ID, &m.Name, &m.DisplayName, &m.Description, &m.Unit, &m.HigherIsBetter, &m.CreatedAt)
	return m, err
}

// PostgresMetricRepository implements MetricRepository on the metrics table.
type PostgresMetricRepository struct{ db *sql.DB }

// FindAll returns all metrics ordered by name.
func (r *PostgresMetricRepository) FindAll(ctx context.Context) ([]model.Metric, error) {
	return queryList(ctx, r.db, "metrics", `SELECT `+metricColumns+` FROM metrics ORDER BY name`, scanMetric)
}

// FindByID returns a metric or nil.
func (r *PostgresMetricRepository) FindByID(ctx context.Context, id string) (*model.Metric, error) {
	return queryOne(ctx, r.db, "metrics", `SELECT `+metricColumns+` FROM metrics WHERE id = $1`, scanMetric, id)
}

// FindByName returns the metric with the given name or nil.
func (r *PostgresMetricRepository) FindByName(ctx context.Context, name string) (*model.Metric, error) {
	return queryOne(ctx, r.db, "metrics", `SELECT `+metricColumns+` FROM metrics WHERE name = $1`, scanMetric, name)
}

// Dataset metrics

const datasetMetricColumns = `id, dataset_id, metric_id, weight, is_primary, created_at`

func scanDatasetMetric(s rowScanner) (model.DatasetMetric, error) {
	var dm model.DatasetMetric
	err := s.Scan(&dm.ID, &dm.DatasetID, &dm.MetricID, &dm.Weight, &dm.IsPrimary, &dm.CreatedAt)
	return dm, err
}

// PostgresDatasetMetricRepository implements DatasetMetricRepository on the dataset_metrics table.
type PostgresDatasetMetricRepository struct{ db *sql.DB }

// FindAll returns all dataset metrics.
func (r *PostgresDatasetMetricRepository) FindAll(ctx context.Context) ([]model.DatasetMetric, error) {
	return queryList(ctx, r.db, "dataset_metrics",
		`SELECT `+datasetMetricColumns+` FROM dataset_metrics ORDER BY dataset_id, is_primary DESC, created_at`, scanDatasetMetric)
}

// FindByDatasetID returns a dataset's metrics, primary first.
func (r *PostgresDatasetMetricRepository) FindByDatasetID(ctx context.Context, datasetID string) ([]model.DatasetMetric, error) {
	return queryList(ctx, r.db, "dataset_metrics",
		`SELECT `+datasetMetricColumns+` FROM dataset_metrics WHERE dataset_id = $1 ORDER BY is_primary DESC, created_at`,
		scanDatasetMetric, datasetID)
}

// Configurations

const configurationColumns = `id, baseline_id, dataset_id, llm_id, target_sparsity, target_aux_memory,
	additional_params, created_at, updated_at`

func scanConfiguration(s rowScanner) (model.Configuration, error) {
	var (
		c        model.Configuration
		sparsity sql.NullFloat64
		auxMem   sql.NullInt64
		params   []byte
	)
	if err := s.Scan(&c.ID, &c.BaselineID, &c.DatasetID, &c.LLMID, &sparsity, &auxMem, &params, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	c.TargetSparsity = floatPtr(sparsity)
	c.TargetAuxMemory = int64Ptr(auxMem)
	m, err := decodeJSONMap(params)
	if err != nil {
		return c, err
	}
	c.AdditionalParams = m
	return c, nil
}

// PostgresConfigurationRepository implements ConfigurationRepository on the configurations table.
type PostgresConfigurationRepository struct{ db *sql.DB }

// FindAll returns all configurations.
func (r *PostgresConfigurationRepository) FindAll(ctx context.Context) ([]model.Configuration, error) {
	return queryList(ctx, r.db, "configurations",
		`SELECT `+configurationColumns+` FROM configurations ORDER BY created_at, id`, scanConfiguration)
}

// FindByID returns a configuration or nil.
func (r *PostgresConfigurationRepository) FindByID(ctx context.Context, id string) (*model.Configuration, error) {
	return queryOne(ctx, r.db, "configurations",
		`SELECT `+configurationColumns+` FROM configurations WHERE id = $1`, scanConfiguration, id)
}

// FindByDatasetID returns the dataset's configurations that pass the filter.
func (r *PostgresConfigurationRepository) FindByDatasetID(ctx context.Context, datasetID string, f *model.ConfigurationFilter) ([]model.Configuration, error) {
	query, args := configurationFilterQuery(datasetID, f)
	return queryList(ctx, r.db, "configurations", query, scanConfiguration, args...)
}

// configurationFilterQuery builds the filtered configuration query.
func configurationFilterQuery(datasetID string, f *model.ConfigurationFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + configurationColumns + ` FROM configurations WHERE dataset_id = $1`)
	args := []any{datasetID}

	add := func(clause string, v any) {
		args = append(args, v)
		fmt.Fprintf(&b, " AND "+clause, len(args))
	}
	if f != nil {
		if f.LLMID != "" {
			add("llm_id = $%d", f.LLMID)
		}
		if f.TargetSparsity != nil {
			if f.TargetSparsity.Min != nil {
				add("target_sparsity >= $%d", *f.TargetSparsity.Min)
			}
			if f.TargetSparsity.Max != nil {
				add("target_sparsity <= $%d", *f.TargetSparsity.Max)
			}
		}
		if f.TargetAuxMemory != nil {
			if f.TargetAuxMemory.Min != nil {
				add("target_aux_memory >= $%d", *f.TargetAuxMemory.Min)
			}
			if f.TargetAuxMemory.Max != nil {
				add("target_aux_memory <= $%d", *f.TargetAuxMemory.Max)
			}
		}
	}
	b.WriteString(" ORDER BY created_at, id")
	return b.String(), args
}

// UniqueSparsityValues returns distinct sparsities rounded to one decimal.
func (r *PostgresConfigurationRepository) UniqueSparsityValues(ctx context.Context) ([]float64, error) {
	return queryList(ctx, r.db, "configurations",
		`SELECT DISTINCT ROUND(target_sparsity::numeric, 1)::float8 AS s
		   FROM configurations WHERE target_sparsity IS NOT NULL ORDER BY s`,
		func(s rowScanner) (float64, error) {
			var v float64
			err := s.Scan(&v)
			return v, err
		})
}

// UniqueAuxMemoryValues returns distinct aux memory targets.
func (r *PostgresConfigurationRepository) UniqueAuxMemoryValues(ctx context.Context) ([]int64, error) {
	return queryList(ctx, r.db, "configurations",
		`SELECT DISTINCT target_aux_memory FROM configurations
		  WHERE target_aux_memory IS NOT NULL ORDER BY target_aux_memory`,
		func(s rowScanner) (int64, error) {
			var v int64
			err := s.Scan(&v)
			return v, err
		})
}

// Results

const resultColumns = `id, configuration_id, dataset_metric_id, COALESCE(experimental_run_id, ''), value,
	standard_deviation, sample_size, execution_time_ms, COALESCE(notes, ''), created_at`

// resultOrder lists a configuration's results run by run, oldest run first,
// so the first run encountered on a full tie is the earliest one. Results
// without a run come last.
const resultOrder = ` ORDER BY (SELECT er.run_date FROM experimental_runs er WHERE er.id = results.experimental_run_id) NULLS LAST, created_at, id`

func scanResult(s rowScanner) (model.Result, error) {
	var (
		res      model.Result
		stddev   sql.NullFloat64
		samples  sql.NullInt64
		execTime sql.NullInt64
	)
	if err := s.Scan(&res.ID, &res.ConfigurationID, &res.DatasetMetricID, &res.ExperimentalRunID, &res.Value,
		&stddev, &samples, &execTime, &res.Notes, &res.CreatedAt); err != nil {
		return res, err
	}
	res.StandardDeviation = floatPtr(stddev)
	res.SampleSize = intPtr(samples)
	res.ExecutionTimeMs = int64Ptr(execTime)
	return res, nil
}

// PostgresResultRepository implements ResultRepository on the results table.
type PostgresResultRepository struct{ db *sql.DB }

// FindByConfigurationID returns the results of one configuration.
func (r *PostgresResultRepository) FindByConfigurationID(ctx context.Context, configurationID string) ([]model.Result, error) {
	return queryList(ctx, r.db, "results",
		`SELECT `+resultColumns+` FROM results WHERE configuration_id = $1`+resultOrder,
		scanResult, configurationID)
}

// FindByConfigurationIDs returns the results of several configurations in one query.
func (r *PostgresResultRepository) FindByConfigurationIDs(ctx context.Context, configurationIDs []string) ([]model.Result, error) {
	if len(configurationIDs) == 0 {
		return []model.Result{}, nil
	}
	return queryList(ctx, r.db, "results",
		`SELECT `+resultColumns+` FROM results WHERE configuration_id = ANY($1)`+resultOrder,
		scanResult, pq.Array(configurationIDs))
}

// Count returns the number of results.
func (r *PostgresResultRepository) Count(ctx context.Context) (n int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "results", tracing.DBOperationCount)
	defer func() { endSpan(err) }()

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// Experimental runs

const runColumns = `id, COALESCE(name, ''), COALESCE(description, ''), run_date, status, metadata, created_at`

func scanRun(s rowScanner) (model.ExperimentalRun, error) {
	var (
		run      model.ExperimentalRun
		status   string
		metadata []byte
	)
	if err := s.Scan(&run.ID, &run.Name, &run.Description, &run.RunDate, &status, &metadata, &run.CreatedAt); err != nil {
		return run, err
	}
	run.Status = model.RunStatus(status)
	m, err := decodeJSONMap(metadata)
	if err != nil {
		return run, err
	}
	run.Metadata = m
	return run, nil
}

// PostgresExperimentalRunRepository implements ExperimentalRunRepository on the experimental_runs table.
type PostgresExperimentalRunRepository struct{ db *sql.DB }

// FindAll returns all runs, most recent first.
func (r *PostgresExperimentalRunRepository) FindAll(ctx context.Context) ([]model.ExperimentalRun, error) {
	return queryList(ctx, r.db, "experimental_runs",
		`SELECT `+runColumns+` FROM experimental_runs ORDER BY run_date DESC`, scanRun)
}

// FindByID returns a run or nil.
func (r *PostgresExperimentalRunRepository) FindByID(ctx context.Context, id string) (*model.ExperimentalRun, error) {
	return queryOne(ctx, r.db, "experimental_runs",
		`SELECT `+runColumns+` FROM experimental_runs WHERE id = $1`, scanRun, id)
}

// FindLatestCompleted returns the completed run with the latest run date, or nil.
func (r *PostgresExperimentalRunRepository) FindLatestCompleted(ctx context.Context) (*model.ExperimentalRun, error) {
	return queryOne(ctx, r.db, "experimental_runs",
		`SELECT `+runColumns+` FROM experimental_runs WHERE status = $1 ORDER BY run_date DESC LIMIT 1`,
		scanRun, string(model.RunCompleted))
}
