package views

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skylight/leaderboard/internal/jobs"
)

// JobMetrics records the outcome of each view build.
type JobMetrics interface {
	ObserveRun(jobType string, duration time.Duration, finished time.Time, err error)
}

// DefaultBuildTimeout is the default timeout for a single build.
const DefaultBuildTimeout = 2 * time.Minute

// RefreshJobConfig configures the view refresh job.
type RefreshJobConfig struct {
	// Interval is the duration between refreshes. Zero builds once.
	Interval time.Duration
	// Timeout for each build.
	Timeout time.Duration
	Logger  *slog.Logger
	// JobMetrics for centralized background job tracking.
	JobMetrics JobMetrics
}

// RefreshJob builds the cache at startup and then periodically.
type RefreshJob struct {
	config RefreshJobConfig
	cache  *Cache

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefreshJob creates a refresh job for cache.
func NewRefreshJob(config RefreshJobConfig, cache *Cache) *RefreshJob {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultBuildTimeout
	}
	return &RefreshJob{config: config, cache: cache}
}

// Start begins the refresh job. The first build starts immediately in the
// background; Start does not wait for it.
func (j *RefreshJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the job to stop and waits for it to finish.
func (j *RefreshJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *RefreshJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *RefreshJob) run(ctx context.Context) {
	defer close(j.doneCh)

	j.refresh(ctx)

	// A zero interval builds once and then idles until stopped.
	var tick <-chan time.Time
	if j.config.Interval > 0 {
		ticker := time.NewTicker(j.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("view refresh job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("view refresh job stopping due to stop signal")
			return
		case <-tick:
			j.refresh(ctx)
		}
	}
}

// refresh runs one build and records its outcome.
func (j *RefreshJob) refresh(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, j.config.Timeout)
	defer cancel()

	start := time.Now()
	err := j.cache.Refresh(ctx)
	finished := time.Now()

	if err != nil {
		j.config.Logger.Error("failed to build combined views",
			"error", err,
			"error_type", jobs.ErrorType(err),
			"cache_state", j.cache.State().String())
	}
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.ObserveRun(jobs.JobTypeViewBuild, finished.Sub(start), finished, err)
	}
}
