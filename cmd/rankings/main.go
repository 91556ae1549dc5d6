// Package main is a command line tool that computes a combined view and
// prints its rankings or exports them as JSON or CSV.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/skylight/leaderboard/internal/config"
	"github.com/skylight/leaderboard/internal/db"
	"github.com/skylight/leaderboard/internal/leaderboard"
	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/store"
)

// options are the parsed command line flags.
type options struct {
	metric     string
	llms       []string
	sparsities []float64
	excluded   []string
	workers    int
	format     string
	fixture    string
	output     string
}

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	metric := flag.String("metric", model.MetricOverallScore, "metric to rank on (overall_score or average_local_error)")
	llms := flag.String("llms", "", "comma-separated LLM IDs to include (default all)")
	sparsities := flag.String("sparsities", "", "comma-separated sparsity levels to include (default all)")
	excluded := flag.String("excluded", "", "comma-separated dataset names to leave out (default from config)")
	workers := flag.Int("workers", 0, "parallel partition computations (default from config)")
	format := flag.String("format", formatText, "output format: text, json or csv")
	fixture := flag.String("fixture", "", "read data from this YAML fixture instead of the configured data source")
	output := flag.String("o", "", "write output to this file instead of stdout")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Sparse Attention Leaderboard Rankings")
		fmt.Println()
		fmt.Println("Usage: rankings [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	opts, err := parseOptions(*metric, *llms, *sparsities, *excluded, *workers, *format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	opts.fixture = *fixture
	opts.output = *output

	cfg, errs := config.Load(*configPath)
	if cfg != nil && opts.fixture != "" {
		cfg.DataSource = store.DataSourceMemory
		cfg.FixturePath = opts.fixture
		errs = cfg.Validate()
	}
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		}
		os.Exit(1)
	}

	// Logs go to stderr so they never mix with exported data.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := export(ctx, cfg, opts, logger, os.Stdout); err != nil {
		logger.Error("failed to compute rankings", "error", err)
		stop()
		os.Exit(1)
	}
}

// export computes the rankings and writes them to opts.output, or to stdout
// when no output file is set. Nothing is written when the computation fails.
func export(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger, stdout io.Writer) error {
	var buf bytes.Buffer
	if err := run(ctx, cfg, opts, logger, &buf); err != nil {
		return err
	}
	if opts.output == "" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// parseOptions validates the flag values.
func parseOptions(metric, llms, sparsities, excluded string, workers int, format string) (options, error) {
	opts := options{
		metric:   strings.TrimSpace(metric),
		llms:     splitList(llms),
		excluded: splitList(excluded),
		workers:  workers,
		format:   strings.ToLower(strings.TrimSpace(format)),
	}
	switch opts.metric {
	case model.MetricOverallScore, model.MetricAverageLocalError:
	default:
		return options{}, fmt.Errorf("unknown metric %q", metric)
	}
	switch opts.format {
	case formatText, formatJSON, formatCSV:
	default:
		return options{}, fmt.Errorf("unknown format %q", format)
	}
	if workers < 0 {
		return options{}, fmt.Errorf("workers must not be negative, got %d", workers)
	}
	for _, raw := range splitList(sparsities) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return options{}, fmt.Errorf("invalid sparsity %q", raw)
		}
		// Table levels are rounded to one decimal.
		opts.sparsities = append(opts.sparsities, store.RoundSparsity(v))
	}
	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// run opens the data source, computes the combined view and renders it.
func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger, out io.Writer) error {
	repos, err := store.Open(ctx, store.Options{
		DataSource:  cfg.DataSource,
		DatabaseURL: cfg.DatabaseURL,
		FixturePath: cfg.FixturePath,
		Pool:        db.PoolOptions{MaxOpenConns: cfg.DBMaxConns},
	})
	if err != nil {
		return fmt.Errorf("open data source: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Warn("failed to close data source", "error", err)
		}
	}()

	concurrency := cfg.FetchConcurrency
	if opts.workers > 0 {
		concurrency = opts.workers
	}
	svc := leaderboard.NewService(repos, leaderboard.Options{
		ExposedBaselines:  cfg.ExposedBaselines,
		ReferenceBaseline: cfg.ReferenceBaseline,
		Concurrency:       concurrency,
		Observer:          leaderboard.NewLogObserver(logger),
	})

	excluded := opts.excluded
	if len(excluded) == 0 {
		excluded = cfg.ExcludedDatasets
	}
	view, err := svc.CombinedView(ctx, leaderboard.TableQuery{
		Metric:           opts.metric,
		ExcludedDatasets: excluded,
		LLMIDs:           opts.llms,
		Sparsities:       opts.sparsities,
	})
	if err != nil {
		return err
	}
	return render(out, opts.format, view)
}
