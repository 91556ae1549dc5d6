package leaderboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/skylight/leaderboard/internal/ranking"
)

// Partition kinds reported to observers.
const (
	KindDataset = "dataset"
	KindTable   = "table"
)

// SkipReason says why a configuration contributed to no partition.
type SkipReason string

// Skip reasons.
const (
	SkipUnknownBaseline SkipReason = "unknown_baseline"
	SkipUnknownLLM      SkipReason = "unknown_llm"
	SkipNoResults       SkipReason = "no_results"
	SkipNoScore         SkipReason = "no_score"
)

// PartitionEvent identifies one partition being computed.
type PartitionEvent struct {
	Kind string
	ID   string
}

// Observer receives progress and data quality events from the pipelines.
// Implementations must be safe for concurrent use; partitions are computed
// in parallel. Observers never influence the computed rankings.
type Observer interface {
	PartitionStarted(ctx context.Context, p PartitionEvent)
	PartitionFinished(ctx context.Context, p PartitionEvent, entries int, elapsed time.Duration)
	RunSelected(ctx context.Context, configurationID string, sel ranking.Selection)
	ConfigurationSkipped(ctx context.Context, configurationID string, reason SkipReason)
	GroupsExcluded(ctx context.Context, metric string, keys []string)
	Warning(ctx context.Context, msg string)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) PartitionStarted(context.Context, PartitionEvent) {}
func (NopObserver) PartitionFinished(context.Context, PartitionEvent, int, time.Duration) {}
func (NopObserver) RunSelected(context.Context, string, ranking.Selection) {}
func (NopObserver) ConfigurationSkipped(context.Context, string, SkipReason) {}
func (NopObserver) GroupsExcluded(context.Context, string, []string) {}
func (NopObserver) Warning(context.Context, string) {}

// LogObserver writes events as structured log records.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver returns a LogObserver, falling back to the default logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) PartitionStarted(ctx context.Context, p PartitionEvent) {
	o.Logger.DebugContext(ctx, "partition started", "kind", p.Kind, "partition", p.ID)
}

func (o *LogObserver) PartitionFinished(ctx context.Context, p PartitionEvent, entries int, elapsed time.Duration) {
	o.Logger.DebugContext(ctx, "partition finished",
		"kind", p.Kind,
		"partition", p.ID,
		"entries", entries,
		"duration_ms", elapsed.Milliseconds())
}

func (o *LogObserver) RunSelected(ctx context.Context, configurationID string, sel ranking.Selection) {
	if sel.Candidates < 2 {
		return
	}
	o.Logger.DebugContext(ctx, "run selected",
		"configuration_id", configurationID,
		"run_id", sel.RunID,
		"candidates", sel.Candidates)
}

func (o *LogObserver) ConfigurationSkipped(ctx context.Context, configurationID string, reason SkipReason) {
	o.Logger.DebugContext(ctx, "configuration skipped",
		"configuration_id", configurationID,
		"reason", string(reason))
}

func (o *LogObserver) GroupsExcluded(ctx context.Context, metric string, keys []string) {
	o.Logger.InfoContext(ctx, "baselines excluded for incomplete coverage",
		"metric", metric,
		"baselines", keys)
}

func (o *LogObserver) Warning(ctx context.Context, msg string) {
	o.Logger.WarnContext(ctx, msg)
}

// MetricsObserver counts events in Prometheus.
type MetricsObserver struct {
	Metrics *Metrics
}

func (o *MetricsObserver) PartitionStarted(context.Context, PartitionEvent) {}

func (o *MetricsObserver) PartitionFinished(_ context.Context, p PartitionEvent, _ int, elapsed time.Duration) {
	o.Metrics.partitionsTotal.WithLabelValues(p.Kind).Inc()
	o.Metrics.partitionDuration.WithLabelValues(p.Kind).Observe(elapsed.Seconds())
}

func (o *MetricsObserver) RunSelected(_ context.Context, _ string, sel ranking.Selection) {
	if sel.Candidates > 1 {
		o.Metrics.runSelectionsContested.Inc()
	}
}

func (o *MetricsObserver) ConfigurationSkipped(_ context.Context, _ string, reason SkipReason) {
	o.Metrics.configurationsSkipped.WithLabelValues(string(reason)).Inc()
}

func (o *MetricsObserver) GroupsExcluded(_ context.Context, metric string, keys []string) {
	o.Metrics.groupsExcluded.WithLabelValues(metric).Add(float64(len(keys)))
}

func (o *MetricsObserver) Warning(context.Context, string) {
	o.Metrics.pipelineWarnings.Inc()
}

// multiObserver fans events out to several observers in order.
type multiObserver []Observer

// Observers combines observers into one. Nil entries are dropped.
func Observers(observers ...Observer) Observer {
	var out multiObserver
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return NopObserver{}
	case 1:
		return out[0]
	}
	return out
}

func (m multiObserver) PartitionStarted(ctx context.Context, p PartitionEvent) {
	for _, o := range m {
		o.PartitionStarted(ctx, p)
	}
}

func (m multiObserver) PartitionFinished(ctx context.Context, p PartitionEvent, entries int, elapsed time.Duration) {
	for _, o := range m {
		o.PartitionFinished(ctx, p, entries, elapsed)
	}
}

func (m multiObserver) RunSelected(ctx context.Context, configurationID string, sel ranking.Selection) {
	for _, o := range m {
		o.RunSelected(ctx, configurationID, sel)
	}
}

func (m multiObserver) ConfigurationSkipped(ctx context.Context, configurationID string, reason SkipReason) {
	for _, o := range m {
		o.ConfigurationSkipped(ctx, configurationID, reason)
	}
}

func (m multiObserver) GroupsExcluded(ctx context.Context, metric string, keys []string) {
	for _, o := range m {
		o.GroupsExcluded(ctx, metric, keys)
	}
}

func (m multiObserver) Warning(ctx context.Context, msg string) {
	for _, o := range m {
		o.Warning(ctx, msg)
	}
}
