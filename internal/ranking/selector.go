package ranking

import "github.com/skylight/leaderboard/internal/model"

// UnknownRunID groups results that were not recorded under an experimental run.
const UnknownRunID = "unknown"

// RunResults is the result set one experimental run produced for a configuration.
type RunResults struct {
	RunID   string
	Results []model.Result
}

// GroupByRun partitions results by experimental run, keeping runs in the
// order they first appear.
func GroupByRun(results []model.Result) []RunResults {
	index := make(map[string]int)
	var runs []RunResults
	for _, r := range results {
		id := r.ExperimentalRunID
		if id == "" {
			id = UnknownRunID
		}
		i, ok := index[id]
		if !ok {
			i = len(runs)
			index[id] = i
			runs = append(runs, RunResults{RunID: id})
		}
		runs[i].Results = append(runs[i].Results, r)
	}
	return runs
}

// Criteria identifies the dataset metrics compared when choosing a run.
// An empty ID means the dataset does not track that metric.
type Criteria struct {
	LocalErrorID          string
	AuxMemoryID           string
	PrimaryID             string
	PrimaryHigherIsBetter bool
}

// Selection is the outcome of SelectBestRun.
type Selection struct {
	RunID      string
	Results    []model.Result
	Candidates int
}

// Empty reports whether no run was selected.
func (s Selection) Empty() bool {
	return len(s.Results) == 0
}

type runValues struct {
	localError *float64
	auxMemory  *float64
	primary    *float64
}

// SelectBestRun picks the canonical run for one configuration.
//
// Runs are compared on average local error (lower wins), then aux memory
// (lower wins), then the primary metric in its own direction. A criterion
// decides only when the two runs differ on it; a defined value always beats
// an undefined one. When every criterion ties the earlier run is kept.
// Runs without results are ignored.
func SelectBestRun(runs []RunResults, c Criteria) Selection {
	var (
		best     Selection
		bestVals runValues
		found    bool
	)
	for _, run := range runs {
		if len(run.Results) == 0 {
			continue
		}
		best.Candidates++
		vals := runValues{
			localError: valueFor(run.Results, c.LocalErrorID),
			auxMemory:  valueFor(run.Results, c.AuxMemoryID),
			primary:    valueFor(run.Results, c.PrimaryID),
		}
		if !found || beats(vals, bestVals, c.PrimaryHigherIsBetter) {
			best.RunID = run.RunID
			best.Results = run.Results
			bestVals = vals
			found = true
		}
	}
	return best
}

func beats(a, b runValues, primaryHigherIsBetter bool) bool {
	if wins, decisive := compare(a.localError, b.localError, false); decisive {
		return wins
	}
	if wins, decisive := compare(a.auxMemory, b.auxMemory, false); decisive {
		return wins
	}
	if wins, decisive := compare(a.primary, b.primary, primaryHigherIsBetter); decisive {
		return wins
	}
	return false
}

// compare reports whether a wins over b and whether the criterion decided.
func compare(a, b *float64, higherIsBetter bool) (wins, decisive bool) {
	switch {
	case a == nil && b == nil:
		return false, false
	case b == nil:
		return true, true
	case a == nil:
		return false, true
	case *a == *b:
		return false, false
	case higherIsBetter:
		return *a > *b, true
	default:
		return *a < *b, true
	}
}

func valueFor(results []model.Result, datasetMetricID string) *float64 {
	if datasetMetricID == "" {
		return nil
	}
	for _, r := range results {
		if r.DatasetMetricID == datasetMetricID {
			v := r.Value
			return &v
		}
	}
	return nil
}
