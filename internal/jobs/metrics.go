// Package jobs records Prometheus metrics for the API's background jobs.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricBackgroundJobsTotal          = "background_jobs_total"
	MetricBackgroundJobsDuration       = "background_jobs_duration_seconds"
	MetricBackgroundJobErrorsTotal     = "background_job_errors_total"
	MetricBackgroundJobLastSuccessTime = "background_job_last_success_timestamp_seconds"
)

// JobTypeViewBuild is a rebuild of the cached combined views.
const JobTypeViewBuild = "view_build"

// Run outcomes, the status label of background_jobs_total.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Error types, the error_type label of background_job_errors_total.
const (
	ErrorTypeTimeout  = "timeout"
	ErrorTypeCanceled = "canceled"
	ErrorTypeBuild    = "build_error"
)

// ErrorType classifies a failed run.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	default:
		return ErrorTypeBuild
	}
}

// Metrics holds the background job collectors. It is safe for concurrent use.
type Metrics struct {
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics creates unregistered collectors; see Register.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobsTotal,
			Help: "Total number of background job executions by type and status",
		}, []string{"job_type", "status"}),
		// A combined view build ranks every LLM x sparsity table; large
		// benchmarks take tens of seconds.
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricBackgroundJobsDuration,
			Help:    "Histogram of background job duration in seconds by job type",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"job_type"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobErrorsTotal,
			Help: "Total number of background job errors by type and error type",
		}, []string{"job_type", "error_type"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricBackgroundJobLastSuccessTime,
			Help: "Unix timestamp of the last successful run by job type",
		}, []string{"job_type"}),
	}
}

// Collectors returns every collector, in registration order.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.jobsTotal, m.jobDuration, m.jobErrors, m.lastSuccess}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRun records one run of jobType that took duration and finished at
// finished. A nil err is a success and moves the last success timestamp.
func (m *Metrics) ObserveRun(jobType string, duration time.Duration, finished time.Time, err error) {
	m.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
	if err != nil {
		m.jobsTotal.WithLabelValues(jobType, StatusFailure).Inc()
		m.jobErrors.WithLabelValues(jobType, ErrorType(err)).Inc()
		return
	}
	m.jobsTotal.WithLabelValues(jobType, StatusSuccess).Inc()
	m.lastSuccess.WithLabelValues(jobType).Set(float64(finished.Unix()))
}
