package fixture

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dshills/cardest/internal/catalog"
	cerrors "github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/sql/types"
)

// TableSpec describes one catalog table.
type TableSpec struct {
	ID       catalog.TableID `yaml:"id"`
	Catalog  string          `yaml:"catalog,omitempty"`
	Database string          `yaml:"database,omitempty"`
	Name     string          `yaml:"name"`
	Kind     string          `yaml:"kind,omitempty"`
	// ID is assigned by the catalog when zero. BaseIndex defaults to the
	// table id.
	BaseIndex catalog.IndexID `yaml:"base_index,omitempty"`
	// RowCount is the backend-reported row count; unset means not reported.
	RowCount           *float64                    `yaml:"row_count,omitempty"`
	IndexRowCounts     map[catalog.IndexID]float64 `yaml:"index_row_counts,omitempty"`
	PartitionRowCounts map[string]float64          `yaml:"partition_row_counts,omitempty"`
	Columns            []ColumnSpec                `yaml:"columns"`
	Indexes            []IndexSpec                 `yaml:"indexes,omitempty"`
	Partitioning       *PartitioningSpec           `yaml:"partitioning,omitempty"`
}

// ColumnSpec describes a table column.
type ColumnSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`
	Hidden   bool   `yaml:"hidden,omitempty"`
}

// IndexSpec describes an index or materialized index.
type IndexSpec struct {
	ID      catalog.IndexID `yaml:"id"`
	Name    string          `yaml:"name"`
	Columns []string        `yaml:"columns,omitempty"`
}

// ChangeSpec records rows changed in a table since it was analyzed.
type ChangeSpec struct {
	Database string `yaml:"database,omitempty"`
	Table    string `yaml:"table"`
	// Type is insert, update, delete or truncate.
	Type  string `yaml:"type"`
	Count int64  `yaml:"count,omitempty"`
}

var changeTypes = map[string]catalog.ChangeType{
	"insert":   catalog.ChangeInsert,
	"update":   catalog.ChangeUpdate,
	"delete":   catalog.ChangeDelete,
	"truncate": catalog.ChangeTruncate,
}

// trackChanges replays changes into a tracker.
func trackChanges(cat *catalog.MemoryCatalog, changes []ChangeSpec) (*catalog.ChangeTracker, error) {
	ct := catalog.NewChangeTracker()
	for _, c := range changes {
		typ, ok := changeTypes[strings.ToLower(c.Type)]
		if !ok {
			return nil, errors.Newf("unknown change type %q", c.Type)
		}
		t, err := cat.GetTable(c.Database, c.Table)
		if err != nil {
			return nil, errors.Wrap(err, "change")
		}
		ct.RecordChange(t.ID, typ, c.Count)
	}
	return ct, nil
}

// PartitioningSpec describes range or list partitioning.
type PartitioningSpec struct {
	Type       string          `yaml:"type"`
	Columns    []string        `yaml:"columns"`
	Partitions []PartitionSpec `yaml:"partitions"`
}

// PartitionSpec describes one partition. Range partitions set Lower and
// Upper, list partitions set Values. A missing bound is unbounded.
type PartitionSpec struct {
	ID     catalog.PartitionID `yaml:"id"`
	Name   string              `yaml:"name"`
	Lower  []interface{}       `yaml:"lower,omitempty"`
	Upper  []interface{}       `yaml:"upper,omitempty"`
	Values [][]interface{}     `yaml:"values,omitempty"`
}

func buildCatalog(specs []TableSpec) (*catalog.MemoryCatalog, error) {
	cat := catalog.NewMemoryCatalog()
	for i := range specs {
		t, err := specs[i].table()
		if err != nil {
			return nil, errors.Wrapf(err, "table %q", specs[i].Name)
		}
		if err := cat.AddTable(t); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func (s *TableSpec) table() (*catalog.Table, error) {
	kind, err := catalog.ParseTableKind(s.Kind)
	if err != nil {
		return nil, err
	}

	t := &catalog.Table{
		ID:               s.ID,
		Catalog:          s.Catalog,
		Database:         s.Database,
		TableName:        s.Name,
		Kind:             kind,
		BaseIndexID:      s.BaseIndex,
		ReportedRowCount: -1,
		IndexRowCounts:   s.IndexRowCounts,
	}
	if t.BaseIndexID == 0 && s.ID != 0 {
		t.BaseIndexID = catalog.IndexID(s.ID)
	}
	if s.RowCount != nil {
		t.ReportedRowCount = *s.RowCount
	}

	for i, cs := range s.Columns {
		typ := types.Parse(cs.Type)
		if typ == types.Unknown {
			return nil, errors.Newf("column %q has unknown type %q", cs.Name, cs.Type)
		}
		t.Columns = append(t.Columns, &catalog.Column{
			Name:            cs.Name,
			DataType:        typ,
			OrdinalPosition: i + 1,
			IsNullable:      cs.Nullable,
			Hidden:          cs.Hidden,
		})
	}

	for _, is := range s.Indexes {
		for _, name := range is.Columns {
			if t.Column(name) == nil {
				return nil, errors.Newf("index %q references unknown column %q", is.Name, name)
			}
		}
		t.Indexes = append(t.Indexes, &catalog.Index{ID: is.ID, Name: is.Name, Columns: is.Columns})
	}

	if s.Partitioning != nil {
		p, err := s.Partitioning.partitioning(t)
		if err != nil {
			return nil, err
		}
		t.Partitions = p
	}

	if len(s.PartitionRowCounts) > 0 {
		t.PartitionRowCounts = make(map[catalog.PartitionID]float64, len(s.PartitionRowCounts))
		for name, rc := range s.PartitionRowCounts {
			p := findPartition(t, name)
			if p == nil {
				return nil, errors.Newf("row count for unknown partition %q", name)
			}
			t.PartitionRowCounts[p.ID] = rc
		}
	}
	return t, nil
}

func (s *PartitioningSpec) partitioning(t *catalog.Table) (*catalog.Partitioning, error) {
	p := &catalog.Partitioning{Columns: s.Columns}
	switch strings.ToUpper(s.Type) {
	case "RANGE":
		p.Type = catalog.RangePartitioned
	case "LIST":
		p.Type = catalog.ListPartitioned
	case "", "UNPARTITIONED":
		p.Type = catalog.Unpartitioned
	default:
		return nil, errors.Newf("unknown partition type %q", s.Type)
	}

	colTypes := make([]types.DataType, len(s.Columns))
	for i, name := range s.Columns {
		col := t.Column(name)
		if col == nil {
			return nil, errors.Newf("unknown partition column %q", name)
		}
		colTypes[i] = col.DataType
	}

	for i, ps := range s.Partitions {
		part := &catalog.Partition{ID: ps.ID, Name: ps.Name}
		if part.ID == 0 {
			part.ID = catalog.PartitionID(i + 1)
		}
		var err error
		if part.Lower, err = partitionKey(colTypes, ps.Lower); err != nil {
			return nil, errors.Wrapf(err, "partition %q lower bound", ps.Name)
		}
		if part.Upper, err = partitionKey(colTypes, ps.Upper); err != nil {
			return nil, errors.Wrapf(err, "partition %q upper bound", ps.Name)
		}
		for _, tuple := range ps.Values {
			key, err := partitionKey(colTypes, tuple)
			if err != nil {
				return nil, errors.Wrapf(err, "partition %q values", ps.Name)
			}
			part.Values = append(part.Values, key)
		}
		p.Partitions = append(p.Partitions, part)
	}
	return p, nil
}

// partitionKey coerces raw YAML values to the partition column types. A
// nil entry is kept as NULL, which marks an unbounded side.
func partitionKey(colTypes []types.DataType, raw []interface{}) ([]types.Value, error) {
	if raw == nil {
		return nil, nil
	}
	if len(raw) > len(colTypes) {
		return nil, errors.Newf("%d values for %d partition columns", len(raw), len(colTypes))
	}
	out := make([]types.Value, len(raw))
	for i, r := range raw {
		if r == nil {
			out[i] = types.NewNullValue()
			continue
		}
		v, err := types.Coerce(colTypes[i], types.NewValue(r))
		if err != nil {
			return nil, cerrors.DataTypeMismatchError(colTypes[i].Name(), fmt.Sprintf("%T", r)).WithCause(err)
		}
		out[i] = v
	}
	return out, nil
}

func findPartition(t *catalog.Table, name string) *catalog.Partition {
	if t.Partitions == nil {
		return nil
	}
	for _, p := range t.Partitions.Partitions {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

func findIndex(t *catalog.Table, name string) *catalog.Index {
	for _, idx := range t.Indexes {
		if strings.EqualFold(idx.Name, name) {
			return idx
		}
	}
	return nil
}

// Catalog builds the fixture's tables alone, for callers that need table
// metadata without a plan.
func (f *Fixture) Catalog() (*catalog.MemoryCatalog, error) {
	return buildCatalog(f.Tables)
}
