package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/skylight/leaderboard/internal/api"
	"github.com/skylight/leaderboard/internal/config"
	"github.com/skylight/leaderboard/internal/db"
	"github.com/skylight/leaderboard/internal/health"
	"github.com/skylight/leaderboard/internal/jobs"
	"github.com/skylight/leaderboard/internal/leaderboard"
	"github.com/skylight/leaderboard/internal/middleware"
	"github.com/skylight/leaderboard/internal/store"
	"github.com/skylight/leaderboard/internal/views"
)

const serviceName = "leaderboard-api"

// app holds the long-lived components of one API server process.
type app struct {
	repos    *store.Repositories
	redis    *redis.Client
	limiter  *middleware.InMemoryRateLimitStore
	cache    *views.Cache
	job      *views.RefreshJob
	registry *prometheus.Registry
	handler  http.Handler
}

// newApp opens the data source and wires the ranking service, the view
// cache with its refresh job, metrics and the HTTP handler chain. The refresh
// job is created but not started.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	repos, err := store.Open(ctx, store.Options{
		DataSource:  cfg.DataSource,
		DatabaseURL: cfg.DatabaseURL,
		FixturePath: cfg.FixturePath,
		Pool:        db.PoolOptions{MaxOpenConns: cfg.DBMaxConns},
	})
	if err != nil {
		return nil, fmt.Errorf("open data source: %w", err)
	}
	a := &app{repos: repos, registry: prometheus.NewRegistry()}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := middleware.NewMetrics()
	lbMetrics := leaderboard.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		httpMetrics.Register, lbMetrics.Register, jobMetrics.Register,
	} {
		if err := register(a.registry); err != nil {
			a.close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	svc := leaderboard.NewService(repos, leaderboard.Options{
		ExposedBaselines:  cfg.ExposedBaselines,
		ReferenceBaseline: cfg.ReferenceBaseline,
		Concurrency:       cfg.FetchConcurrency,
		Observer: leaderboard.Observers(
			leaderboard.NewLogObserver(logger),
			&leaderboard.MetricsObserver{Metrics: lbMetrics},
		),
	})

	a.cache = views.NewCache(svc, views.Config{
		ExcludedDatasets: cfg.ExcludedDatasets,
		Logger:           logger,
	})
	a.job = views.NewRefreshJob(views.RefreshJobConfig{
		Interval:   cfg.ViewRefreshInterval,
		Timeout:    cfg.ViewBuildTimeout,
		Logger:     logger,
		JobMetrics: jobMetrics,
	}, a.cache)

	// Rate limits are shared through Redis when it is configured so that
	// every replica counts against the same window.
	var rateLimitStore middleware.RateLimitStore
	var redisChecker api.HealthChecker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		rateLimitStore = middleware.NewRedisRateLimitStore(a.redis).WithMetrics(httpMetrics)
		redisChecker = health.NewRedisChecker(a.redis)
	} else {
		a.limiter = middleware.NewInMemoryRateLimitStore()
		rateLimitStore = a.limiter
	}

	var dbChecker api.HealthChecker
	if conn := repos.DB(); conn != nil {
		dbChecker = health.NewDBChecker(conn)
	}

	handlers := api.Handlers{
		Leaderboards: api.NewLeaderboardHandlers(svc),
		Combined:     api.NewCombinedHandlers(a.cache, svc, cfg.ExcludedDatasets),
		Catalog:      api.NewCatalogHandlers(repos, svc),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:      dbChecker,
			RedisChecker:   redisChecker,
			ViewsChecker:   health.NewViewCacheChecker(a.cache),
			MetricsEnabled: cfg.MetricsEnabled,
		}),
	}
	if cfg.MetricsEnabled {
		handlers.Metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}

	limit := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitRPM,
		WindowDuration:    time.Minute,
	}
	if err := limit.Validate(); err != nil {
		a.close()
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var handler http.Handler = api.NewRouter(handlers)
	handler = middleware.Profiling(middleware.ProfilingConfig{
		Enabled:     cfg.ProfilingEnabled,
		Environment: cfg.Env,
	})(handler)
	handler = middleware.RateLimiter(rateLimitStore, limit, middleware.IPKeyFunc(), httpMetrics)(handler)
	handler = middleware.CORS(middleware.LeaderboardCORSConfig(cfg.CORSAllowedOrigins))(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing(serviceName)(handler)
	}
	a.handler = middleware.RequestID(handler)

	return a, nil
}

// sweepRateLimits drops expired in-memory rate limit buckets until ctx is
// done. It returns at once when limits are kept in Redis.
func (a *app) sweepRateLimits(ctx context.Context, every time.Duration) {
	if a.limiter == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.limiter.Cleanup()
		}
	}
}

// close releases the data source and the Redis client.
func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
	if err := a.repos.Close(); err != nil {
		slog.Error("failed to close data source", "error", err)
	}
}

// serve runs srv on ln until ctx is cancelled, then shuts it down, giving
// in-flight requests up to shutdownTimeout to finish.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
