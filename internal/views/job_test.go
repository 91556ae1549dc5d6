package views

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skylight/leaderboard/internal/jobs"
)

// recordingJobMetrics records job runs by type and outcome.
type recordingJobMetrics struct {
	mu          sync.Mutex
	totals      map[string]int
	errors      map[string]int
	durations   int
	lastSuccess time.Time
}

func newRecordingJobMetrics() *recordingJobMetrics {
	return &recordingJobMetrics{totals: make(map[string]int), errors: make(map[string]int)}
}

func (m *recordingJobMetrics) ObserveRun(jobType string, _ time.Duration, finished time.Time, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
	if err != nil {
		m.totals[jobType+"/"+jobs.StatusFailure]++
		m.errors[jobType+"/"+jobs.ErrorType(err)]++
		return
	}
	m.totals[jobType+"/"+jobs.StatusSuccess]++
	m.lastSuccess = finished
}

func (m *recordingJobMetrics) total(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[key]
}

func TestRefreshJob_StartStop(t *testing.T) {
	c := NewCache(&fakeBuilder{}, Config{Logger: testLogger})
	job := NewRefreshJob(RefreshJobConfig{Logger: testLogger}, c)

	if job.IsRunning() {
		t.Error("job should not be running before Start")
	}

	ctx := context.Background()
	if err := job.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !job.IsRunning() {
		t.Error("job should be running after Start")
	}

	// Starting again should be safe
	if err := job.Start(ctx); err != nil {
		t.Fatalf("Start() second call error = %v", err)
	}

	waitForState(t, c, StateReady)

	job.Stop()
	if job.IsRunning() {
		t.Error("job should not be running after Stop")
	}

	// Stopping again should be safe
	job.Stop()
}

func TestRefreshJob_Periodic(t *testing.T) {
	b := &fakeBuilder{}
	c := NewCache(b, Config{Logger: testLogger})
	metrics := newRecordingJobMetrics()
	job := NewRefreshJob(RefreshJobConfig{
		Interval:   20 * time.Millisecond,
		Logger:     testLogger,
		JobMetrics: metrics,
	}, c)

	if err := job.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer job.Stop()

	key := jobs.JobTypeViewBuild + "/" + jobs.StatusSuccess
	deadline := time.Now().Add(2 * time.Second)
	for metrics.total(key) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 successful builds, got %d", metrics.total(key))
		}
		time.Sleep(5 * time.Millisecond)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.lastSuccess.IsZero() {
		t.Error("expected last success timestamp to be set")
	}
	if metrics.durations < 3 {
		t.Errorf("expected at least 3 duration samples, got %d", metrics.durations)
	}
}

func TestRefreshJob_Failure(t *testing.T) {
	c := NewCache(&fakeBuilder{err: errors.New("boom")}, Config{Logger: testLogger})
	metrics := newRecordingJobMetrics()
	job := NewRefreshJob(RefreshJobConfig{Logger: testLogger, JobMetrics: metrics}, c)

	if err := job.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	key := jobs.JobTypeViewBuild + "/" + jobs.StatusFailure
	deadline := time.Now().Add(2 * time.Second)
	for metrics.total(key) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("expected a failed build to be recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	job.Stop()

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.errors[jobs.JobTypeViewBuild+"/build_error"] != 1 {
		t.Errorf("expected 1 build error, got %v", metrics.errors)
	}
	if !metrics.lastSuccess.IsZero() {
		t.Error("expected no last success timestamp after a failure")
	}
	if c.State() != StateUninitialized {
		t.Errorf("expected uninitialized, got %s", c.State())
	}
}

func TestRefreshJob_ContextCancel(t *testing.T) {
	c := NewCache(&fakeBuilder{}, Config{Logger: testLogger})
	job := NewRefreshJob(RefreshJobConfig{Interval: time.Hour, Logger: testLogger}, c)

	ctx, cancel := context.WithCancel(context.Background())
	if err := job.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForState(t, c, StateReady)
	cancel()

	// Stop must return once the loop has exited on its own.
	done := make(chan struct{})
	go func() {
		job.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateUninitialized, "uninitialized"},
		{StateBuilding, "building"},
		{StateReady, "ready"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, got)
		}
	}
}
