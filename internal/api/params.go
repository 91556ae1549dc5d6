package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/skylight/leaderboard/internal/leaderboard"
	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/validate"
)

// maxListItems caps comma separated list parameters.
const maxListItems = 100

// paramError is a query parameter that failed validation.
type paramError struct {
	name   string
	reason string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid query parameter %q: %s", e.name, e.reason)
}

// parseQuery reads the run selection and configuration filter shared by the
// dataset and overall leaderboards.
func parseQuery(values url.Values) (leaderboard.Query, error) {
	var q leaderboard.Query
	var err error
	if q.ExperimentalRunID, err = parseID(values, "experimentalRunId"); err != nil {
		return q, err
	}

	useLatest, err := parseBool(values, "useLatestRun")
	if err != nil {
		return q, err
	}
	q.UseLatestRun = useLatest

	if q.Filter.TargetSparsity, err = parseRange(values, "targetSparsityMin", "targetSparsityMax"); err != nil {
		return q, err
	}
	if q.Filter.TargetAuxMemory, err = parseRange(values, "targetAuxMemoryMin", "targetAuxMemoryMax"); err != nil {
		return q, err
	}
	if q.Filter.LLMID, err = parseID(values, "llmId"); err != nil {
		return q, err
	}
	return q, nil
}

// parseOverallQuery adds the benchmark restriction to parseQuery.
func parseOverallQuery(values url.Values) (leaderboard.OverallQuery, error) {
	q, err := parseQuery(values)
	if err != nil {
		return leaderboard.OverallQuery{}, err
	}
	benchmarkID, err := parseID(values, "benchmarkId")
	if err != nil {
		return leaderboard.OverallQuery{}, err
	}
	return leaderboard.OverallQuery{Query: q, BenchmarkID: benchmarkID}, nil
}

// parseTableQuery reads the cross-table filters for metric. filtered is false when
// the request carries none of them, so the cached view can be served.
func parseTableQuery(values url.Values, metric string) (q leaderboard.TableQuery, filtered bool, err error) {
	q.Metric = metric
	q.ExcludedDatasets, err = parseList(values, "excludedDatasets")
	if err != nil {
		return q, false, err
	}
	q.LLMIDs, err = parseList(values, "llmIds")
	if err != nil {
		return q, false, err
	}
	for _, id := range q.LLMIDs {
		if _, verr := validate.ID(id); verr != nil {
			return q, false, &paramError{name: "llmIds", reason: fmt.Sprintf("%q is not a valid identifier", id)}
		}
	}
	raw, err := parseList(values, "sparsities")
	if err != nil {
		return q, false, err
	}
	for _, s := range raw {
		v, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			return q, false, &paramError{name: "sparsities", reason: fmt.Sprintf("%q is not a number", s)}
		}
		q.Sparsities = append(q.Sparsities, v)
	}
	filtered = len(q.ExcludedDatasets) > 0 || len(q.LLMIDs) > 0 || len(q.Sparsities) > 0
	return q, filtered, nil
}

// parseID reads an optional identifier parameter.
func parseID(values url.Values, name string) (string, error) {
	id, err := validate.OptionalID(values.Get(name))
	if err != nil {
		return "", &paramError{name: name, reason: "must be a valid identifier"}
	}
	return id, nil
}

// pathID reads an identifier path value. It writes a 400 and returns false
// when the value is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, err := validate.ID(r.PathValue(name))
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, fmt.Sprintf("Invalid path parameter %q: must be a valid identifier", name))
		return "", false
	}
	return id, true
}

// parseList accepts both repeated parameters and comma separated values.
// Blank items are dropped.
func parseList(values url.Values, name string) ([]string, error) {
	var out []string
	for _, raw := range values[name] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	if len(out) > maxListItems {
		return nil, &paramError{name: name, reason: fmt.Sprintf("at most %d items allowed", maxListItems)}
	}
	return out, nil
}

func parseBool(values url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &paramError{name: name, reason: "must be true or false"}
	}
	return v, nil
}

func parseFloat(values url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &paramError{name: name, reason: "must be a number"}
	}
	return &v, nil
}

// parseRange reads an inclusive range from a min and a max parameter.
// It returns nil when neither is set.
func parseRange(values url.Values, minName, maxName string) (*model.NumericRange, error) {
	lo, err := parseFloat(values, minName)
	if err != nil {
		return nil, err
	}
	hi, err := parseFloat(values, maxName)
	if err != nil {
		return nil, err
	}
	if lo == nil && hi == nil {
		return nil, nil
	}
	if lo != nil && hi != nil && *lo > *hi {
		return nil, &paramError{name: minName, reason: "must not exceed " + maxName}
	}
	return &model.NumericRange{Min: lo, Max: hi}, nil
}
