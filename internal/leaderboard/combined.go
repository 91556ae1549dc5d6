package leaderboard

import (
	"context"
	"strings"
	"time"

	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/ranking"
)

// CombinedRanking is one baseline's position across all LLM x sparsity tables.
type CombinedRanking struct {
	Rank         int            `json:"rank"`
	BaselineName string         `json:"baselineName"`
	Baseline     model.Baseline `json:"baseline"`
	AvgRank      float64        `json:"avgRank"`
	AvgScore     float64        `json:"avgScore"`
	NumTables    int            `json:"numTables"`
	BestRank     int            `json:"bestRank"`
	WorstRank    int            `json:"worstRank"`
	// AvgValuesPerSparsity is the mean gap to the reference baseline, in
	// percent, per sparsity level. Empty for the reference itself.
	AvgValuesPerSparsity []ranking.SparsityValue `json:"avgValuesPerSparsity"`
	MetricName           string                  `json:"metricName"`
}

// ExcludedBaseline is a baseline left out of a combined view because it was
// ranked in a different number of tables than the reference.
type ExcludedBaseline struct {
	BaselineName string `json:"baselineName"`
	NumTables    int    `json:"numTables"`
}

// CombinedView ranks baselines by their average rank over every table.
type CombinedView struct {
	Metric            string             `json:"metric"`
	ReferenceBaseline string             `json:"referenceBaseline"`
	ReferenceFound    bool               `json:"referenceFound"`
	TotalTables       int                `json:"totalTables"`
	Rankings          []CombinedRanking  `json:"rankings"`
	Excluded          []ExcludedBaseline `json:"excluded"`
	Tables            []Table            `json:"tables"`
	Warnings          []string           `json:"warnings,omitempty"`
	ComputedAt        time.Time          `json:"computedAt"`
}

// CombinedView builds the combined view for q.Metric.
//
// Baselines are ranked in each table, their table ranks are averaged, and
// the averages are ranked again. Each baseline's per-table value is also
// expressed as a gap to the reference baseline in the same table. Baselines
// that do not appear in as many tables as the reference are excluded. When
// the metric is not configured the view is empty and carries a warning.
func (s *Service) CombinedView(ctx context.Context, q TableQuery) (*CombinedView, error) {
	set, err := s.buildTables(ctx, q)
	if err != nil {
		return nil, err
	}

	view := &CombinedView{
		Metric:            q.Metric,
		ReferenceBaseline: s.reference,
		Rankings:          []CombinedRanking{},
		Excluded:          []ExcludedBaseline{},
		Tables:            set.tables,
		Warnings:          set.warnings,
		ComputedAt:        time.Now().UTC(),
	}
	if view.Tables == nil {
		view.Tables = []Table{}
	}
	view.TotalTables = len(set.partitions)

	groups := ranking.Aggregate(set.partitions, func(e TableEntry) string { return e.Baseline.Name }, nil)
	normalized := ranking.Normalize(groups, s.reference, set.sparsityOf)
	view.ReferenceFound = normalized.ReferenceFound

	for _, g := range normalized.Groups {
		values := g.ValuesPerSparsity
		if values == nil {
			values = []ranking.SparsityValue{}
		}
		view.Rankings = append(view.Rankings, CombinedRanking{
			Rank:                 g.Rank,
			BaselineName:         g.Key,
			Baseline:             g.Item.Baseline,
			AvgRank:              g.AverageRank,
			AvgScore:             g.OverallScore,
			NumTables:            g.NumPartitions,
			BestRank:             g.BestRank,
			WorstRank:            g.WorstRank,
			AvgValuesPerSparsity: values,
			MetricName:           q.Metric,
		})
	}

	if len(normalized.Excluded) > 0 {
		names := make([]string, 0, len(normalized.Excluded))
		for _, g := range normalized.Excluded {
			view.Excluded = append(view.Excluded, ExcludedBaseline{BaselineName: g.Key, NumTables: g.NumPartitions})
			names = append(names, g.Key)
		}
		s.observer.GroupsExcluded(ctx, q.Metric, names)
	}
	return view, nil
}

// Ranking returns the ranking of the named baseline, matched case-insensitively.
func (v *CombinedView) Ranking(baselineName string) (CombinedRanking, bool) {
	for _, r := range v.Rankings {
		if strings.EqualFold(r.BaselineName, baselineName) {
			return r, true
		}
	}
	return CombinedRanking{}, false
}
