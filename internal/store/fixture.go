package store

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/skylight/leaderboard/internal/model"
	"github.com/skylight/leaderboard/internal/validate"
)

// ErrInvalidFixture reports a fixture with malformed identifiers or links.
var ErrInvalidFixture = errors.New("invalid fixture")

// Fixture is a complete data set for the in-memory repositories.
type Fixture struct {
	Baselines        []model.Baseline        `koanf:"baselines"`
	LLMs             []model.LLM             `koanf:"llms"`
	Benchmarks       []model.Benchmark       `koanf:"benchmarks"`
	Datasets         []model.Dataset         `koanf:"datasets"`
	Metrics          []model.Metric          `koanf:"metrics"`
	DatasetMetrics   []model.DatasetMetric   `koanf:"dataset_metrics"`
	Configurations   []model.Configuration   `koanf:"configurations"`
	ExperimentalRuns []model.ExperimentalRun `koanf:"experimental_runs"`
	Results          []model.Result          `koanf:"results"`
}

// LoadFixture reads a fixture from a YAML file.
func LoadFixture(path string) (*Fixture, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load fixture %s: %w", path, err)
	}

	var f Fixture
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode fixture %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// validate checks every identifier and every baseline link.
func (f *Fixture) validate() error {
	var errs []error
	checkID := func(kind, id string) {
		if _, err := validate.ID(id); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", kind, id, err))
		}
	}
	checkLink := func(baselineID, link string) {
		if link == "" {
			return
		}
		if _, err := validate.LinkURL(link); err != nil {
			errs = append(errs, fmt.Errorf("baseline %q link %q: %w", baselineID, link, err))
		}
	}

	for _, b := range f.Baselines {
		checkID("baseline", b.ID)
		checkLink(b.ID, b.PaperURL)
		checkLink(b.ID, b.CodeURL)
	}
	for _, l := range f.LLMs {
		checkID("llm", l.ID)
	}
	for _, b := range f.Benchmarks {
		checkID("benchmark", b.ID)
	}
	for _, d := range f.Datasets {
		checkID("dataset", d.ID)
	}
	for _, m := range f.Metrics {
		checkID("metric", m.ID)
	}
	for _, dm := range f.DatasetMetrics {
		checkID("dataset metric", dm.ID)
	}
	for _, c := range f.Configurations {
		checkID("configuration", c.ID)
	}
	for _, r := range f.ExperimentalRuns {
		checkID("experimental run", r.ID)
	}
	for _, r := range f.Results {
		checkID("result", r.ID)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFixture, errors.Join(errs...))
	}
	return nil
}
