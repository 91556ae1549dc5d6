package ranking

import "github.com/skylight/leaderboard/internal/model"

// Scored is the comparable score of one configuration.
// MetricValues maps metric names to the raw values that were available.
type Scored struct {
	Score        float64
	MetricValues map[string]float64
}

// NormalizeValue maps a metric value onto a higher-is-better scale.
func NormalizeValue(value float64, higherIsBetter bool) float64 {
	if higherIsBetter {
		return value
	}
	return 100 - value
}

// Score turns a canonical result set into a single score.
//
// When the dataset has a primary metric with a matching result the score is
// that value, normalized. Otherwise it is the weighted mean of the normalized
// values of every dataset metric with a result; a zero total weight scores 0.
// ok is false when no result matched any dataset metric.
func Score(results []model.Result, datasetMetrics []model.DatasetMetric, metrics map[string]model.Metric) (Scored, bool) {
	byDatasetMetric := make(map[string]float64, len(results))
	for _, r := range results {
		if _, seen := byDatasetMetric[r.DatasetMetricID]; !seen {
			byDatasetMetric[r.DatasetMetricID] = r.Value
		}
	}

	scored := Scored{MetricValues: make(map[string]float64)}
	var primary *model.DatasetMetric
	for i, dm := range datasetMetrics {
		metric, ok := metrics[dm.MetricID]
		if !ok {
			continue
		}
		if v, ok := byDatasetMetric[dm.ID]; ok {
			scored.MetricValues[metric.Name] = v
		}
		if dm.IsPrimary && primary == nil {
			primary = &datasetMetrics[i]
		}
	}

	if primary != nil {
		metric := metrics[primary.MetricID]
		if v, ok := byDatasetMetric[primary.ID]; ok {
			scored.Score = NormalizeValue(v, metric.HigherIsBetter)
			return scored, true
		}
	}

	var weightedSum, totalWeight float64
	matched := false
	for _, dm := range datasetMetrics {
		metric, ok := metrics[dm.MetricID]
		if !ok {
			continue
		}
		v, ok := byDatasetMetric[dm.ID]
		if !ok {
			continue
		}
		matched = true
		weightedSum += NormalizeValue(v, metric.HigherIsBetter) * dm.Weight
		totalWeight += dm.Weight
	}
	if !matched {
		return Scored{}, false
	}
	if totalWeight > 0 {
		scored.Score = weightedSum / totalWeight
	}
	return scored, true
}
