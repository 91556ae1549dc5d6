// Package ranking is the pure ranking and aggregation engine behind the
// leaderboard. Nothing in this package performs I/O, logs, or holds locks;
// every function operates on collections that were already fetched.
//
// Basic Usage:
//
//	// Pick the canonical run for one configuration
//	runs := ranking.GroupByRun(results)
//	sel := ranking.SelectBestRun(runs, ranking.Criteria{
//		LocalErrorID: localErrorDM.ID,
//		AuxMemoryID:  auxMemoryDM.ID,
//		PrimaryID:    primaryDM.ID,
//		PrimaryHigherIsBetter: primaryMetric.HigherIsBetter,
//	})
//
//	// Score it and rank a dataset's configurations
//	scored, ok := ranking.Score(sel.Results, datasetMetrics, metricsByID)
//	entries := ranking.Assign(candidates, scoreOf, ranking.Descending)
//
//	// Aggregate per-dataset rankings and compare to a reference baseline
//	groups := ranking.Aggregate(partitions, keyOf, nil)
//	view := ranking.Normalize(groups, "dense", sparsityOf)
//
// Ties:
//
// Ranks use competition ranking. Two neighbours in sorted order share a rank
// when their scores differ by at most TieEpsilon; the next distinct score
// resumes at its 1-based position (90, 80, 80, 70 ranks as 1, 2, 2, 4).
// The epsilon is an absolute tolerance and is not scaled to the metric.
package ranking
