// Package views keeps the two precomputed combined views in a process-wide
// cache.
//
// The cache starts uninitialized. The first build moves it to building, and
// a successful build makes it ready. Reads fail with ErrNotReady until the
// first build succeeds. Later refreshes swap the snapshot in place, so a
// ready cache keeps serving the previous snapshot while it rebuilds.
// Concurrent refreshes share one build.
package views

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/skylight/leaderboard/internal/leaderboard"
	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/tracing"
)

// Errors returned by the cache.
var (
	ErrNotReady    = errors.New("combined views are not ready")
	ErrUnknownView = errors.New("unknown combined view")
)

// State is the lifecycle state of the cache.
type State int

const (
	StateUninitialized State = iota
	StateBuilding
	StateReady
)

// String returns the state name used in logs and health output.
func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Metrics the cache knows how to build.
var Metrics = []string{model.MetricOverallScore, model.MetricAverageLocalError}

// Builder computes one combined view. *leaderboard.Service implements it.
type Builder interface {
	CombinedView(ctx context.Context, q leaderboard.TableQuery) (*leaderboard.CombinedView, error)
}

// Snapshot is one complete build of every cached view.
type Snapshot struct {
	Views   map[string]*leaderboard.CombinedView
	BuiltAt time.Time
}

// View returns the cached view for a metric name.
func (s *Snapshot) View(metric string) (*leaderboard.CombinedView, error) {
	v, ok := s.Views[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, metric)
	}
	return v, nil
}

// Config configures a Cache.
type Config struct {
	// ExcludedDatasets are left out of every cached view, by name.
	ExcludedDatasets []string
	Logger           *slog.Logger
}

// Cache holds the latest snapshot of the combined views.
// All methods are safe for concurrent use.
type Cache struct {
	builder Builder
	config  Config
	group   singleflight.Group

	mu       sync.RWMutex
	state    State
	snapshot *Snapshot
	lastErr  error
}

// NewCache creates an uninitialized cache.
func NewCache(builder Builder, config Config) *Cache {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Cache{builder: builder, config: config}
}

// State returns the current lifecycle state.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the error of the most recent failed build, or nil.
func (c *Cache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Snapshot returns the current snapshot, or ErrNotReady before the first
// successful build.
func (c *Cache) Snapshot() (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, ErrNotReady
	}
	return c.snapshot, nil
}

// View returns the cached view for a metric name.
func (c *Cache) View(metric string) (*leaderboard.CombinedView, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.View(metric)
}

// Refresh rebuilds every view. Callers arriving while a build is in flight
// wait for it and share its outcome.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, shared := c.group.Do("refresh", func() (any, error) {
		return nil, c.build(ctx)
	})
	if shared {
		c.config.Logger.DebugContext(ctx, "combined view refresh shared with in-flight build")
	}
	return err
}

func (c *Cache) build(ctx context.Context) (err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "views.build")
	defer func() { endSpan(err) }()

	c.mu.Lock()
	if c.state == StateUninitialized {
		c.state = StateBuilding
	}
	c.mu.Unlock()

	start := time.Now()
	views := make([]*leaderboard.CombinedView, len(Metrics))
	g, gctx := errgroup.WithContext(ctx)
	for i, metric := range Metrics {
		g.Go(func() error {
			v, err := c.builder.CombinedView(gctx, leaderboard.TableQuery{
				Metric:           metric,
				ExcludedDatasets: c.config.ExcludedDatasets,
			})
			if err != nil {
				return fmt.Errorf("failed to build %s view: %w", metric, err)
			}
			views[i] = v
			return nil
		})
	}
	err = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err
		if c.snapshot == nil {
			c.state = StateUninitialized
		}
		return err
	}

	snap := &Snapshot{Views: make(map[string]*leaderboard.CombinedView, len(Metrics)), BuiltAt: time.Now().UTC()}
	for i, metric := range Metrics {
		snap.Views[metric] = views[i]
	}
	c.snapshot = snap
	c.state = StateReady
	c.lastErr = nil

	c.config.Logger.InfoContext(ctx, "combined views built",
		"duration_ms", time.Since(start).Milliseconds(),
		"overall_score_rankings", len(snap.Views[model.MetricOverallScore].Rankings),
		"local_error_rankings", len(snap.Views[model.MetricAverageLocalError].Rankings))
	return nil
}
