package leaderboard

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricPartitionsTotal        = "leaderboard_partitions_total"
	MetricPartitionDuration      = "leaderboard_partition_duration_seconds"
	MetricConfigurationsSkipped  = "leaderboard_configurations_skipped_total"
	MetricRunSelectionsContested = "leaderboard_run_selections_contested_total"
	MetricGroupsExcluded         = "leaderboard_groups_excluded_total"
	MetricPipelineWarnings       = "leaderboard_pipeline_warnings_total"
)

// Metrics contains Prometheus metrics for the ranking pipelines.
// All operations are thread-safe.
type Metrics struct {
	partitionsTotal        *prometheus.CounterVec
	partitionDuration      *prometheus.HistogramVec
	configurationsSkipped  *prometheus.CounterVec
	runSelectionsContested prometheus.Counter
	groupsExcluded         *prometheus.CounterVec
	pipelineWarnings       prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		partitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPartitionsTotal,
				Help: "Total number of ranked partitions by kind",
			},
			[]string{"kind"},
		),
		partitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricPartitionDuration,
				Help:    "Histogram of partition fetch and ranking duration in seconds by kind",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"kind"},
		),
		configurationsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricConfigurationsSkipped,
				Help: "Total number of configurations left out of a ranking by reason",
			},
			[]string{"reason"},
		),
		runSelectionsContested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRunSelectionsContested,
			Help: "Total number of configurations with more than one candidate run",
		}),
		groupsExcluded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricGroupsExcluded,
				Help: "Total number of baselines dropped from a combined view for incomplete coverage",
			},
			[]string{"metric"},
		),
		pipelineWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPipelineWarnings,
			Help: "Total number of data quality warnings raised by the pipelines",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.partitionsTotal,
		m.partitionDuration,
		m.configurationsSkipped,
		m.runSelectionsContested,
		m.groupsExcluded,
		m.pipelineWarnings,
	}
}
