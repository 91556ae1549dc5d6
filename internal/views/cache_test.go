package views

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skylight/leaderboard/internal/leaderboard"
	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/store"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeBuilder returns canned views, optionally blocking until released.
type fakeBuilder struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	seen    chan leaderboard.TableQuery
}

func (b *fakeBuilder) CombinedView(ctx context.Context, q leaderboard.TableQuery) (*leaderboard.CombinedView, error) {
	b.calls.Add(1)
	if b.seen != nil {
		b.seen <- q
	}
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return &leaderboard.CombinedView{Metric: q.Metric, Rankings: []leaderboard.CombinedRanking{}}, nil
}

func waitForState(t *testing.T, c *Cache, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected state %s, got %s", want, c.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestCache_NotReady tests reads before the first build.
func TestCache_NotReady(t *testing.T) {
	c := NewCache(&fakeBuilder{}, Config{Logger: testLogger})

	if c.State() != StateUninitialized {
		t.Errorf("expected uninitialized, got %s", c.State())
	}
	if _, err := c.Snapshot(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if _, err := c.View(model.MetricOverallScore); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

// TestCache_Building tests that reads fail while the first build runs.
func TestCache_Building(t *testing.T) {
	b := &fakeBuilder{release: make(chan struct{})}
	c := NewCache(b, Config{Logger: testLogger})

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background()) }()

	waitForState(t, c, StateBuilding)
	if _, err := c.View(model.MetricOverallScore); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady while building, got %v", err)
	}

	close(b.release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != StateReady {
		t.Errorf("expected ready, got %s", c.State())
	}

	for _, metric := range Metrics {
		v, err := c.View(metric)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", metric, err)
		}
		if v.Metric != metric {
			t.Errorf("expected view for %s, got %s", metric, v.Metric)
		}
	}
	if _, err := c.View("perplexity"); !errors.Is(err, ErrUnknownView) {
		t.Errorf("expected ErrUnknownView, got %v", err)
	}
}

// TestCache_RefreshShared tests that concurrent refreshes share one build.
func TestCache_RefreshShared(t *testing.T) {
	b := &fakeBuilder{release: make(chan struct{})}
	c := NewCache(b, Config{Logger: testLogger})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Refresh(context.Background())
		}()
	}

	waitForState(t, c, StateBuilding)
	// Give the remaining callers time to join the in-flight build.
	time.Sleep(50 * time.Millisecond)
	close(b.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if got := b.calls.Load(); got != int32(len(Metrics)) {
		t.Errorf("expected %d builder calls, got %d", len(Metrics), got)
	}
}

// TestCache_FailedBuild tests state after failed builds.
func TestCache_FailedBuild(t *testing.T) {
	buildErr := errors.New("store unavailable")
	b := &fakeBuilder{err: buildErr}
	c := NewCache(b, Config{Logger: testLogger})

	if err := c.Refresh(context.Background()); !errors.Is(err, buildErr) {
		t.Fatalf("expected build error, got %v", err)
	}
	if c.State() != StateUninitialized {
		t.Errorf("expected uninitialized after failed first build, got %s", c.State())
	}
	if !errors.Is(c.LastError(), buildErr) {
		t.Errorf("expected last error to be recorded, got %v", c.LastError())
	}

	b.err = nil
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := c.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.err = buildErr
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected build error")
	}
	if c.State() != StateReady {
		t.Errorf("expected ready to be kept after a failed rebuild, got %s", c.State())
	}
	kept, err := c.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kept != first {
		t.Error("expected the previous snapshot to be kept")
	}
}

// TestCache_ExcludedDatasets tests that configured exclusions reach the builder.
func TestCache_ExcludedDatasets(t *testing.T) {
	b := &fakeBuilder{seen: make(chan leaderboard.TableQuery, len(Metrics))}
	c := NewCache(b, Config{ExcludedDatasets: []string{"niah"}, Logger: testLogger})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(b.seen)
	for q := range b.seen {
		if len(q.ExcludedDatasets) != 1 || q.ExcludedDatasets[0] != "niah" {
			t.Errorf("expected excluded [niah], got %v", q.ExcludedDatasets)
		}
	}
}

// TestCache_SampleFixture tests a full build over the sample data set.
func TestCache_SampleFixture(t *testing.T) {
	fixture, err := store.LoadFixture("../../fixtures/sample.yaml")
	if err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}
	svc := leaderboard.NewService(store.NewMemory(fixture), leaderboard.Options{})
	c := NewCache(svc, Config{Logger: testLogger})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, err := c.View(model.MetricOverallScore)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.ReferenceFound {
		t.Error("expected dense reference to be found")
	}
	if len(v.Rankings) == 0 {
		t.Fatal("expected rankings")
	}
	excluded := false
	for _, e := range v.Excluded {
		if e.BaselineName == "hash_attention" {
			excluded = true
		}
	}
	if !excluded {
		t.Errorf("expected hash_attention to be excluded for incomplete coverage, got %v", v.Excluded)
	}
}
