// Package model defines the read models the leaderboard is computed from.
// All entities are immutable snapshots of rows owned by the external store.
package model

import "time"

// Well-known metric names the ranking pipelines look up by name.
const (
	MetricAverageLocalError = "average_local_error"
	MetricAuxMemory         = "aux_memory"
	MetricOverallScore      = "overall_score"
)

// FullDensitySparsity marks configurations that keep every attention entry.
// Tables at this sparsity carry no information about sparse methods.
const FullDensitySparsity = 100.0

// Baseline is a technique under evaluation.
type Baseline struct {
	ID          string    `json:"id" koanf:"id"`
	Name        string    `json:"name" koanf:"name"`
	Description string    `json:"description" koanf:"description"`
	Version     string    `json:"version" koanf:"version"`
	PaperURL    string    `json:"paperUrl,omitempty" koanf:"paper_url"`
	CodeURL     string    `json:"codeUrl,omitempty" koanf:"code_url"`
	CreatedAt   time.Time `json:"createdAt" koanf:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" koanf:"updated_at"`
}

// LLM is a language model under evaluation.
type LLM struct {
	ID             string    `json:"id" koanf:"id"`
	Name           string    `json:"name" koanf:"name"`
	Provider       string    `json:"provider,omitempty" koanf:"provider"`
	ParameterCount *int64    `json:"parameterCount,omitempty" koanf:"parameter_count"`
	ContextLength  *int      `json:"contextLength,omitempty" koanf:"context_length"`
	CreatedAt      time.Time `json:"createdAt" koanf:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" koanf:"updated_at"`
}

// Benchmark groups related datasets.
type Benchmark struct {
	ID          string    `json:"id" koanf:"id"`
	Name        string    `json:"name" koanf:"name"`
	Description string    `json:"description" koanf:"description"`
	PaperURL    string    `json:"paperUrl,omitempty" koanf:"paper_url"`
	CreatedAt   time.Time `json:"createdAt" koanf:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" koanf:"updated_at"`
}

// Dataset is an evaluation corpus belonging to a benchmark.
type Dataset struct {
	ID          string    `json:"id" koanf:"id"`
	BenchmarkID string    `json:"benchmarkId" koanf:"benchmark_id"`
	Name        string    `json:"name" koanf:"name"`
	Description string    `json:"description" koanf:"description"`
	Size        *int      `json:"size,omitempty" koanf:"size"`
	CreatedAt   time.Time `json:"createdAt" koanf:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" koanf:"updated_at"`
}

// Metric is a named measure with a direction.
type Metric struct {
	ID             string    `json:"id" koanf:"id"`
	Name           string    `json:"name" koanf:"name"`
	DisplayName    string    `json:"displayName" koanf:"display_name"`
	Description    string    `json:"description,omitempty" koanf:"description"`
	Unit           string    `json:"unit,omitempty" koanf:"unit"`
	HigherIsBetter bool      `json:"higherIsBetter" koanf:"higher_is_better"`
	CreatedAt      time.Time `json:"createdAt" koanf:"created_at"`
}

// DatasetMetric attaches a metric to a dataset with a scoring weight.
// At most one DatasetMetric per dataset is expected to be primary.
type DatasetMetric struct {
	ID        string    `json:"id" koanf:"id"`
	DatasetID string    `json:"datasetId" koanf:"dataset_id"`
	MetricID  string    `json:"metricId" koanf:"metric_id"`
	Weight    float64   `json:"weight" koanf:"weight"`
	IsPrimary bool      `json:"isPrimary" koanf:"is_primary"`
	CreatedAt time.Time `json:"createdAt" koanf:"created_at"`
}

// Configuration is one evaluated (baseline, dataset, llm) unit plus its
// sparsity and auxiliary memory targets.
type Configuration struct {
	ID               string         `json:"id" koanf:"id"`
	BaselineID       string         `json:"baselineId" koanf:"baseline_id"`
	DatasetID        string         `json:"datasetId" koanf:"dataset_id"`
	LLMID            string         `json:"llmId" koanf:"llm_id"`
	TargetSparsity   *float64       `json:"targetSparsity,omitempty" koanf:"target_sparsity"`
	TargetAuxMemory  *int64         `json:"targetAuxMemory,omitempty" koanf:"target_aux_memory"`
	AdditionalParams map[string]any `json:"additionalParams,omitempty" koanf:"additional_params"`
	CreatedAt        time.Time      `json:"createdAt" koanf:"created_at"`
	UpdatedAt        time.Time      `json:"updatedAt" koanf:"updated_at"`
}

// RunStatus is the lifecycle state of an experimental run.
type RunStatus string

// Run lifecycle states.
const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ExperimentalRun is a labeled execution batch.
type ExperimentalRun struct {
	ID          string         `json:"id" koanf:"id"`
	Name        string         `json:"name,omitempty" koanf:"name"`
	Description string         `json:"description,omitempty" koanf:"description"`
	RunDate     time.Time      `json:"runDate" koanf:"run_date"`
	Status      RunStatus      `json:"status" koanf:"status"`
	Metadata    map[string]any `json:"metadata,omitempty" koanf:"metadata"`
	CreatedAt   time.Time      `json:"createdAt" koanf:"created_at"`
}

// Result is a single measurement of one dataset metric for one configuration.
// ExperimentalRunID is empty when the measurement was not tied to a run.
type Result struct {
	ID                string    `json:"id" koanf:"id"`
	ConfigurationID   string    `json:"configurationId" koanf:"configuration_id"`
	DatasetMetricID   string    `json:"datasetMetricId" koanf:"dataset_metric_id"`
	ExperimentalRunID string    `json:"experimentalRunId,omitempty" koanf:"experimental_run_id"`
	Value             float64   `json:"value" koanf:"value"`
	StandardDeviation *float64  `json:"standardDeviation,omitempty" koanf:"standard_deviation"`
	SampleSize        *int      `json:"sampleSize,omitempty" koanf:"sample_size"`
	ExecutionTimeMs   *int64    `json:"executionTimeMs,omitempty" koanf:"execution_time_ms"`
	Notes             string    `json:"notes,omitempty" koanf:"notes"`
	CreatedAt         time.Time `json:"createdAt" koanf:"created_at"`
}
