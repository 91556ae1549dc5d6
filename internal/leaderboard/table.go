package leaderboard

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/ranking"
	"github.com/skylight/leaderboard/internal/store"
	"github.com/skylight/leaderboard/internal/tracing"
)

// TableQuery selects the tables a cross-table view is built from.
type TableQuery struct {
	// Metric is the metric name baselines are compared on.
	Metric string
	// ExcludedDatasets lists dataset names left out of every table.
	ExcludedDatasets []string
	// LLMIDs limits the tables to these LLMs. Empty means all.
	LLMIDs []string
	// Sparsities limits the tables to these sparsity levels. Empty means all.
	Sparsities []float64
}

// TableEntry is one baseline's value in one table: the mean over datasets of
// its best configuration value per dataset.
type TableEntry struct {
	Baseline    model.Baseline `json:"baseline"`
	Score       float64        `json:"score"`
	NumDatasets int            `json:"numDatasets"`
}

// TableRanking is a ranked TableEntry.
type TableRanking struct {
	Rank int `json:"rank"`
	TableEntry
}

// Table is the ranking of baselines for one LLM at one sparsity level.
type Table struct {
	ID       string         `json:"id"`
	LLM      model.LLM      `json:"llm"`
	Sparsity float64        `json:"sparsity"`
	Rankings []TableRanking `json:"rankings"`
}

// tableSet is the outcome of one table pipeline run.
type tableSet struct {
	metric     model.Metric
	found      bool
	tables     []Table
	partitions []ranking.Partition[TableEntry]
	sparsity   map[string]float64
	warnings   []string
}

func (t *tableSet) sparsityOf(partitionID string) (float64, bool) {
	s, ok := t.sparsity[partitionID]
	return s, ok
}

// warn records a data quality warning and reports it. Not safe for
// concurrent use.
func (t *tableSet) warn(ctx context.Context, obs Observer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.warnings = append(t.warnings, msg)
	tracing.AddEvent(ctx, "data_quality_warning", attribute.String("message", msg))
	obs.Warning(ctx, msg)
}

// tableID names the partition of one LLM at one sparsity.
func tableID(llmID string, sparsity float64) string {
	return llmID + "@" + strconv.FormatFloat(sparsity, 'f', -1, 64)
}

// tablePlan is the work for one table: the configurations of every dataset
// that take part in it.
type tablePlan struct {
	llm      model.LLM
	sparsity float64
	configs  []model.Configuration
}

// datasetInfo is what the table pipeline needs to know about one dataset.
type datasetInfo struct {
	metricID string
	criteria ranking.Criteria
}

// buildTables ranks baselines in every LLM x sparsity table for one metric.
//
// The reference baseline takes part in every table of its LLM with all of
// its configurations, whatever their sparsity. Other baselines take part
// with the configurations at the table's sparsity. Within a table each
// configuration's canonical run is selected, the best value per dataset is
// kept, and those values are averaged. Tables at full density and tables
// without any value are left out.
func (s *Service) buildTables(ctx context.Context, q TableQuery) (_ *tableSet, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "leaderboard.tables",
		attribute.String("metric.name", q.Metric),
		attribute.Int("datasets.excluded", len(q.ExcludedDatasets)))
	defer func() { endSpan(err) }()

	set := &tableSet{sparsity: make(map[string]float64)}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	metric, ok := cat.metricsByName[q.Metric]
	if !ok {
		set.warn(ctx, s.observer, "metric %q is not configured; its tables were skipped", q.Metric)
		return set, nil
	}
	set.metric = metric
	set.found = true

	datasets, err := s.tableDatasets(ctx, set, cat, metric, q.ExcludedDatasets)
	if err != nil {
		return nil, err
	}

	llms, err := s.repos.LLMs.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load llms: %w", err)
	}
	if len(q.LLMIDs) > 0 {
		llms = slices.DeleteFunc(llms, func(l model.LLM) bool { return !slices.Contains(q.LLMIDs, l.ID) })
	}

	sparsities, err := s.repos.Configurations.UniqueSparsityValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sparsity values: %w", err)
	}
	if len(q.Sparsities) > 0 {
		sparsities = slices.DeleteFunc(sparsities, func(v float64) bool {
			return !slices.Contains(q.Sparsities, store.RoundSparsity(v))
		})
	}

	configs, err := s.repos.Configurations.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configurations: %w", err)
	}
	byLLM := make(map[string][]model.Configuration)
	for _, cfg := range configs {
		if _, ok := datasets[cfg.DatasetID]; !ok {
			continue
		}
		if _, _, reason, ok := cat.resolve(cfg); !ok {
			s.observer.ConfigurationSkipped(ctx, cfg.ID, reason)
			continue
		}
		byLLM[cfg.LLMID] = append(byLLM[cfg.LLMID], cfg)
	}

	// Full density tables are dropped before any work is done for them.
	var planned []ranking.Partition[TableEntry]
	plans := make(map[string]tablePlan)
	for _, llm := range llms {
		for _, sp := range sparsities {
			id := tableID(llm.ID, sp)
			set.sparsity[id] = sp
			planned = append(planned, ranking.Partition[TableEntry]{ID: id})
			plans[id] = tablePlan{llm: llm, sparsity: sp}
		}
	}
	planned = ranking.ExcludeFullDensity(planned, set.sparsityOf)

	tables := make([]Table, len(planned))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range planned {
		plan := plans[p.ID]
		plan.configs = s.tableConfigs(cat, byLLM[plan.llm.ID], plan.sparsity)
		g.Go(func() error {
			table, err := s.rankTable(gctx, cat, metric, datasets, p.ID, plan)
			if err != nil {
				return err
			}
			tables[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, t := range tables {
		if len(t.Rankings) == 0 {
			continue
		}
		set.tables = append(set.tables, t)
		entries := make([]ranking.Entry[TableEntry], len(t.Rankings))
		for i, r := range t.Rankings {
			entries[i] = ranking.Entry[TableEntry]{Item: r.TableEntry, Score: r.Score, Rank: r.Rank}
		}
		set.partitions = append(set.partitions, ranking.Partition[TableEntry]{ID: t.ID, Entries: entries})
	}
	tracing.SetAttributes(ctx,
		attribute.Int("tables.planned", len(planned)),
		attribute.Int("tables.ranked", len(set.tables)))
	return set, nil
}

// tableDatasets returns the datasets that take part in the tables, keyed by
// id, with the dataset metric carrying the compared metric.
func (s *Service) tableDatasets(ctx context.Context, set *tableSet, cat *catalog, metric model.Metric, excluded []string) (map[string]datasetInfo, error) {
	datasets, err := s.repos.Datasets.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load datasets: %w", err)
	}
	dms, err := s.repos.DatasetMetrics.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset metrics: %w", err)
	}
	dmsByDataset := make(map[string][]model.DatasetMetric)
	for _, dm := range dms {
		dmsByDataset[dm.DatasetID] = append(dmsByDataset[dm.DatasetID], dm)
	}

	out := make(map[string]datasetInfo, len(datasets))
	for _, d := range datasets {
		if slices.Contains(excluded, d.Name) {
			continue
		}
		info := datasetInfo{criteria: cat.criteria(dmsByDataset[d.ID])}
		for _, dm := range dmsByDataset[d.ID] {
			if dm.MetricID == metric.ID {
				info.metricID = dm.ID
				break
			}
		}
		if info.metricID == "" {
			set.warn(ctx, s.observer, "dataset %q does not track metric %q; it was skipped", d.Name, metric.Name)
			continue
		}
		out[d.ID] = info
	}
	return out, nil
}

// tableConfigs picks an LLM's configurations that take part in the table at sparsity.
func (s *Service) tableConfigs(cat *catalog, configs []model.Configuration, sparsity float64) []model.Configuration {
	var out []model.Configuration
	for _, cfg := range configs {
		if strings.EqualFold(cat.baselines[cfg.BaselineID].Name, s.reference) {
			out = append(out, cfg)
			continue
		}
		if cfg.TargetSparsity != nil && store.RoundSparsity(*cfg.TargetSparsity) == sparsity {
			out = append(out, cfg)
		}
	}
	return out
}

// rankTable fetches one table's results and ranks its baselines.
func (s *Service) rankTable(ctx context.Context, cat *catalog, metric model.Metric, datasets map[string]datasetInfo, id string, plan tablePlan) (Table, error) {
	event := PartitionEvent{Kind: KindTable, ID: id}
	s.observer.PartitionStarted(ctx, event)
	start := time.Now()

	table := Table{ID: id, LLM: plan.llm, Sparsity: plan.sparsity}

	ids := make([]string, len(plan.configs))
	for i, c := range plan.configs {
		ids[i] = c.ID
	}
	results, err := s.fetchResults(ctx, ids)
	if err != nil {
		return table, fmt.Errorf("failed to load results for table %s: %w", id, err)
	}
	byConfig := make(map[string][]model.Result, len(plan.configs))
	for _, r := range results {
		byConfig[r.ConfigurationID] = append(byConfig[r.ConfigurationID], r)
	}

	higherIsBetter := metric.HigherIsBetter
	better := func(a, b float64) bool {
		if higherIsBetter {
			return a > b
		}
		return a < b
	}

	// Best value per baseline per dataset, in first-seen order.
	type baselineValues struct {
		baseline model.Baseline
		best     map[string]float64
		order    []string
	}
	var order []string
	values := make(map[string]*baselineValues)
	for _, cfg := range plan.configs {
		info := datasets[cfg.DatasetID]
		cfgResults := byConfig[cfg.ID]
		if len(cfgResults) == 0 {
			s.observer.ConfigurationSkipped(ctx, cfg.ID, SkipNoResults)
			continue
		}
		sel := s.selectRun(ctx, cfg.ID, cfgResults, info.criteria)
		v, ok := metricValue(sel.Results, info.metricID)
		if !ok {
			s.observer.ConfigurationSkipped(ctx, cfg.ID, SkipNoScore)
			continue
		}

		bv, ok := values[cfg.BaselineID]
		if !ok {
			bv = &baselineValues{baseline: cat.baselines[cfg.BaselineID], best: make(map[string]float64)}
			values[cfg.BaselineID] = bv
			order = append(order, cfg.BaselineID)
		}
		if cur, seen := bv.best[cfg.DatasetID]; !seen {
			bv.best[cfg.DatasetID] = v
			bv.order = append(bv.order, cfg.DatasetID)
		} else if better(v, cur) {
			bv.best[cfg.DatasetID] = v
		}
	}

	entries := make([]TableEntry, 0, len(order))
	for _, baselineID := range order {
		bv := values[baselineID]
		var sum float64
		for _, datasetID := range bv.order {
			sum += bv.best[datasetID]
		}
		entries = append(entries, TableEntry{
			Baseline:    bv.baseline,
			Score:       sum / float64(len(bv.order)),
			NumDatasets: len(bv.order),
		})
	}

	ranked := ranking.Assign(entries, func(e TableEntry) float64 { return e.Score }, ranking.DirectionFor(higherIsBetter))
	table.Rankings = make([]TableRanking, len(ranked))
	for i, e := range ranked {
		table.Rankings[i] = TableRanking{Rank: e.Rank, TableEntry: e.Item}
	}

	s.observer.PartitionFinished(ctx, event, len(table.Rankings), time.Since(start))
	return table, nil
}

// metricValue returns the value recorded for a dataset metric.
func metricValue(results []model.Result, datasetMetricID string) (float64, bool) {
	for _, r := range results {
		if r.DatasetMetricID == datasetMetricID {
			return r.Value, true
		}
	}
	return 0, false
}
