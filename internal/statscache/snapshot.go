package statscache

import (
	"io"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/sql/stats"
	"github.com/dshills/cardest/internal/sql/types"
)

// Snapshot is a serializable set of table statistics.
type Snapshot struct {
	Tables []TableSnapshot `yaml:"tables"`
}

// TableSnapshot holds the statistics of one table.
type TableSnapshot struct {
	Database     string `yaml:"database,omitempty"`
	Table        string `yaml:"table"`
	UserInjected bool   `yaml:"user_injected,omitempty"`
	// RowCount is the analyzed row count of the base index.
	RowCount *float64 `yaml:"row_count,omitempty"`
	// IndexRowCounts are analyzed row counts of other indexes.
	IndexRowCounts map[catalog.IndexID]float64 `yaml:"index_row_counts,omitempty"`
	DeltaRowCount  float64                     `yaml:"delta_row_count,omitempty"`
	Columns        []ColumnSnapshot            `yaml:"columns,omitempty"`
	Partitions     []PartitionSnapshot         `yaml:"partitions,omitempty"`
}

// ColumnSnapshot holds the statistics of one column.
type ColumnSnapshot struct {
	Name      string          `yaml:"name"`
	Index     catalog.IndexID `yaml:"index,omitempty"`
	NDV       float64         `yaml:"ndv"`
	Min       interface{}     `yaml:"min,omitempty"`
	Max       interface{}     `yaml:"max,omitempty"`
	Nulls     float64         `yaml:"nulls,omitempty"`
	AvgSize   float64         `yaml:"avg_size,omitempty"`
	Count     *float64        `yaml:"count,omitempty"`
	Reliable  bool            `yaml:"reliable,omitempty"`
	Histogram []stats.Bucket  `yaml:"histogram,omitempty"`
}

// PartitionSnapshot holds the column statistics of one partition.
type PartitionSnapshot struct {
	Name    string                    `yaml:"name"`
	Columns []PartitionColumnSnapshot `yaml:"columns"`
}

// PartitionColumnSnapshot holds the statistics of a column in a partition.
type PartitionColumnSnapshot struct {
	Name     string      `yaml:"name"`
	NDV      float64     `yaml:"ndv"`
	Min      interface{} `yaml:"min,omitempty"`
	Max      interface{} `yaml:"max,omitempty"`
	Nulls    float64     `yaml:"nulls,omitempty"`
	DataSize float64     `yaml:"data_size,omitempty"`
	Count    float64     `yaml:"count"`
}

// ReadSnapshot decodes a YAML snapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.NewDecoder(r).Decode(&s); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding statistics snapshot")
	}
	return &s, nil
}

// LoadSnapshotFile reads a YAML snapshot from path.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening statistics snapshot %s", path)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// Write encodes the snapshot as YAML.
func (s *Snapshot) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "encoding statistics snapshot")
	}
	return enc.Close()
}

// Apply resolves the snapshot against cat and stores it in c.
func (s *Snapshot) Apply(c *Cache, cat catalog.Catalog) error {
	for i := range s.Tables {
		ts := &s.Tables[i]
		table, err := cat.GetTable(ts.Database, ts.Table)
		if err != nil {
			return errors.Wrapf(err, "statistics snapshot table %q", ts.Table)
		}
		if err := ts.apply(c, table); err != nil {
			return errors.Wrapf(err, "statistics snapshot table %q", table.QualifiedName())
		}
	}
	return nil
}

func (ts *TableSnapshot) apply(c *Cache, table *catalog.Table) error {
	baseRows := stats.UnknownRowCount
	if ts.RowCount != nil || len(ts.IndexRowCounts) > 0 {
		meta := &stats.TableMeta{
			TableID:       table.ID,
			UserInjected:  ts.UserInjected,
			RowCounts:     make(map[catalog.IndexID]float64, len(ts.IndexRowCounts)+1),
			DeltaRowCount: ts.DeltaRowCount,
		}
		for id, rc := range ts.IndexRowCounts {
			meta.RowCounts[id] = rc
		}
		if ts.RowCount != nil {
			baseRows = *ts.RowCount
			meta.RowCounts[table.BaseIndexID] = baseRows
		}
		c.PutTableMeta(meta)
	}

	for _, cs := range ts.Columns {
		col := table.Column(cs.Name)
		if col == nil {
			return errors.Newf("unknown column %q", cs.Name)
		}
		out, err := cs.toColumnStat(col.DataType, baseRows)
		if err != nil {
			return errors.Wrapf(err, "column %q", cs.Name)
		}
		c.PutColumn(table.ID, cs.Index, col.Name, out)
	}

	for _, ps := range ts.Partitions {
		for _, pcs := range ps.Columns {
			col := table.Column(pcs.Name)
			if col == nil {
				return errors.Newf("unknown column %q in partition %q", pcs.Name, ps.Name)
			}
			out, err := pcs.toPartitionColumnStat(col.DataType)
			if err != nil {
				return errors.Wrapf(err, "partition %q column %q", ps.Name, pcs.Name)
			}
			c.PutPartitionColumn(table.ID, ps.Name, col.Name, out)
		}
	}
	return nil
}

func (cs ColumnSnapshot) toColumnStat(typ types.DataType, tableRows float64) (stats.ColumnStat, error) {
	out := stats.ColumnStat{
		NDV:          cs.NDV,
		NumNulls:     cs.Nulls,
		AvgSizeBytes: cs.AvgSize,
		Count:        tableRows,
		Reliable:     cs.Reliable,
	}
	if cs.Count != nil {
		out.Count = *cs.Count
	}
	if out.AvgSizeBytes == 0 {
		out.AvgSizeBytes = typ.Width()
	}
	var err error
	if out.MinValue, out.MinLiteral, err = bound(typ, cs.Min, math.Inf(-1)); err != nil {
		return out, err
	}
	if out.MaxValue, out.MaxLiteral, err = bound(typ, cs.Max, math.Inf(1)); err != nil {
		return out, err
	}
	if len(cs.Histogram) > 0 {
		out.Histogram = &stats.Histogram{Type: stats.EquiHeightHistogram, Buckets: cs.Histogram}
	}
	return out, nil
}

func (pcs PartitionColumnSnapshot) toPartitionColumnStat(typ types.DataType) (stats.PartitionColumnStat, error) {
	out := stats.PartitionColumnStat{
		Count:    pcs.Count,
		NDV:      pcs.NDV,
		NumNulls: pcs.Nulls,
		DataSize: pcs.DataSize,
	}
	if out.DataSize == 0 {
		out.DataSize = (pcs.Count - pcs.Nulls) * typ.Width()
	}
	var err error
	if out.MinValue, out.MinLiteral, err = bound(typ, pcs.Min, math.Inf(-1)); err != nil {
		return out, err
	}
	if out.MaxValue, out.MaxLiteral, err = bound(typ, pcs.Max, math.Inf(1)); err != nil {
		return out, err
	}
	return out, nil
}

// bound converts a raw snapshot bound into its double and typed forms.
func bound(typ types.DataType, raw interface{}, missing float64) (float64, *types.Value, error) {
	if raw == nil {
		return missing, nil, nil
	}
	v, err := types.Coerce(typ, types.NewValue(raw))
	if err != nil {
		return 0, nil, err
	}
	f, err := types.ToDouble(v)
	if err != nil {
		return 0, nil, err
	}
	return f, &v, nil
}
