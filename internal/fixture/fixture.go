// Package fixture loads estimation scenarios from YAML. A scenario bundles
// a catalog, a statistics snapshot and a plan tree; Build turns it into a
// memo ready for estimation.
package fixture

import (
	"io"
	"math"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/log"
	"github.com/dshills/cardest/internal/sql/cardinality"
	"github.com/dshills/cardest/internal/sql/memo"
	"github.com/dshills/cardest/internal/statscache"
)

// DefaultTolerance is the relative error accepted by Check when a fixture
// does not set one.
const DefaultTolerance = 1e-6

// Fixture is the YAML form of a scenario.
type Fixture struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description,omitempty"`
	Session     SessionSpec         `yaml:"session,omitempty"`
	Tables      []TableSpec         `yaml:"tables"`
	Statistics  statscache.Snapshot `yaml:"statistics,omitempty"`
	// Changes are row changes made since the statistics were collected.
	Changes []ChangeSpec `yaml:"changes,omitempty"`
	Plan    *Node        `yaml:"plan"`
	// Expect maps node labels, or "root", to expected row counts.
	Expect    map[string]float64 `yaml:"expect,omitempty"`
	Tolerance float64            `yaml:"tolerance,omitempty"`
}

// SessionSpec overrides session settings for one scenario. Unset fields
// keep the caller's value.
type SessionSpec struct {
	EnableStats                 *bool    `yaml:"enable_stats,omitempty"`
	EnablePartitionStats        *bool    `yaml:"enable_partition_stats,omitempty"`
	EnableMaterializedViewStats *bool    `yaml:"enable_materialized_view_stats,omitempty"`
	Internal                    *bool    `yaml:"internal,omitempty"`
	Debug                       *bool    `yaml:"debug,omitempty"`
	GenerateStatsFactor         *float64 `yaml:"generate_stats_factor,omitempty"`
	MinSelectivity              *float64 `yaml:"min_selectivity,omitempty"`
}

// Apply returns base with the overrides applied.
func (s SessionSpec) Apply(base cardinality.Session) cardinality.Session {
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setBool(&base.EnableStats, s.EnableStats)
	setBool(&base.EnablePartitionStats, s.EnablePartitionStats)
	setBool(&base.EnableMaterializedViewStats, s.EnableMaterializedViewStats)
	setBool(&base.Internal, s.Internal)
	setBool(&base.Debug, s.Debug)
	if s.GenerateStatsFactor != nil {
		base.GenerateStatsFactor = *s.GenerateStatsFactor
	}
	if s.MinSelectivity != nil {
		base.MinSelectivity = *s.MinSelectivity
	}
	return base
}

// Read decodes a fixture.
func Read(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decoding fixture")
	}
	if f.Plan == nil {
		return nil, errors.Newf("fixture %q has no plan", f.Name)
	}
	return &f, nil
}

// Load reads the fixture stored at path.
func Load(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening fixture %s", path)
	}
	defer file.Close()
	f, err := Read(file)
	if err != nil {
		return nil, errors.Wrapf(err, "fixture %s", path)
	}
	return f, nil
}

// Scenario is a built fixture.
type Scenario struct {
	Fixture *Fixture
	Catalog *catalog.MemoryCatalog
	Cache   *statscache.Cache
	Memo    *memo.Memo
	// Labels maps node labels to their groups. "root" is always present.
	Labels map[string]memo.GroupID
}

// Estimate derives statistics for every group of the memo under base with
// the fixture's session overrides applied.
func (s *Scenario) Estimate(base cardinality.Session, logger log.Logger) error {
	ctx := cardinality.NewContext(s.Fixture.Session.Apply(base), s.Cache, logger)
	return cardinality.EstimateMemo(ctx, s.Memo)
}

// Mismatch is an expected row count that estimation did not produce.
type Mismatch struct {
	Label    string
	Expected float64
	Actual   float64
}

// Check compares estimated row counts with the fixture's expectations.
// It must be called after the memo has been estimated.
func (s *Scenario) Check() ([]Mismatch, error) {
	tol := s.Fixture.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	labels := make([]string, 0, len(s.Fixture.Expect))
	for label := range s.Fixture.Expect {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var out []Mismatch
	for _, label := range labels {
		id, ok := s.Labels[label]
		if !ok {
			return nil, errors.Newf("expectation for unknown node %q", label)
		}
		g := s.Memo.Group(id)
		if !g.HasStatistics() {
			return nil, errors.Newf("node %q has not been estimated", label)
		}
		want, got := s.Fixture.Expect[label], g.Statistics().RowCount
		if !withinTolerance(want, got, tol) {
			out = append(out, Mismatch{Label: label, Expected: want, Actual: got})
		}
	}
	return out, nil
}

func withinTolerance(want, got, tol float64) bool {
	if want == got {
		return true
	}
	return math.Abs(want-got) <= tol*math.Max(math.Abs(want), 1)
}
