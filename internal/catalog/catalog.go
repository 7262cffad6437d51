package catalog

import (
	"fmt"
	"strings"

	"github.com/dshills/cardest/internal/sql/types"
)

// TableID identifies a table globally.
type TableID int64

// IndexID identifies an index (or materialized index) of a table.
type IndexID int64

// PartitionID identifies a partition of a table.
type PartitionID int64

// Catalog provides read access to table metadata for the optimizer.
type Catalog interface {
	GetTable(database, tableName string) (*Table, error)
	GetTableByID(id TableID) (*Table, error)
	ListTables(database string) ([]*Table, error)
}

// TableKind distinguishes how row counts for a table are sourced.
type TableKind int

const (
	// OlapTable is a native table with per-index and per-partition row counts.
	OlapTable TableKind = iota
	// ExternalTable is a table served by an external catalog.
	ExternalTable
	// SystemTable is an internal table that never has statistics.
	SystemTable
	// MaterializedView is a table maintained from a defining query.
	MaterializedView
)

func (k TableKind) String() string {
	switch k {
	case OlapTable:
		return "OLAP"
	case ExternalTable:
		return "EXTERNAL"
	case SystemTable:
		return "SYSTEM"
	case MaterializedView:
		return "MTMV"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// ParseTableKind parses the String form of a TableKind.
func ParseTableKind(s string) (TableKind, error) {
	switch strings.ToUpper(s) {
	case "", "OLAP":
		return OlapTable, nil
	case "EXTERNAL":
		return ExternalTable, nil
	case "SYSTEM":
		return SystemTable, nil
	case "MTMV", "MATERIALIZED_VIEW":
		return MaterializedView, nil
	}
	return OlapTable, fmt.Errorf("unknown table kind %q", s)
}

// Table represents a table with its metadata.
type Table struct {
	ID          TableID
	Catalog     string
	Database    string
	TableName   string
	Kind        TableKind
	Columns     []*Column
	BaseIndexID IndexID
	Indexes     []*Index
	Partitions  *Partitioning

	// ReportedRowCount is the row count reported by the storage backend,
	// -1 when the backend has not reported one yet.
	ReportedRowCount float64
	// IndexRowCounts holds backend-reported row counts per index.
	IndexRowCounts map[IndexID]float64
	// PartitionRowCounts holds backend-reported row counts per partition
	// for the base index; missing entries are unknown.
	PartitionRowCounts map[PartitionID]float64
}

// QualifiedName returns catalog.database.table.
func (t *Table) QualifiedName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Catalog, t.Database, t.TableName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// PartitionNum returns the number of partitions, 1 for unpartitioned tables.
func (t *Table) PartitionNum() int {
	if t.Partitions == nil || len(t.Partitions.Partitions) == 0 {
		return 1
	}
	return len(t.Partitions.Partitions)
}

// Partition returns the partition with the given id, or nil.
func (t *Table) Partition(id PartitionID) *Partition {
	if t.Partitions == nil {
		return nil
	}
	for _, p := range t.Partitions.Partitions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// RowCountForIndex returns the backend-reported row count of an index,
// or -1 when unknown.
func (t *Table) RowCountForIndex(id IndexID) float64 {
	if id == t.BaseIndexID || id == 0 {
		if rc, ok := t.IndexRowCounts[t.BaseIndexID]; ok {
			return rc
		}
		return t.ReportedRowCount
	}
	if rc, ok := t.IndexRowCounts[id]; ok {
		return rc
	}
	return -1
}

// RowCountForPartition returns the backend-reported row count of a
// partition, or -1 when unknown.
func (t *Table) RowCountForPartition(id PartitionID) float64 {
	if rc, ok := t.PartitionRowCounts[id]; ok {
		return rc
	}
	return -1
}

// Column represents a column with its metadata.
type Column struct {
	Name            string
	DataType        types.DataType
	OrdinalPosition int
	IsNullable      bool
	// Hidden columns (e.g. delete-sign or version columns) carry no statistics.
	Hidden bool
}

// Visible reports whether statistics may exist for the column.
func (c *Column) Visible() bool {
	return !c.Hidden
}

// Index represents an index or materialized index on a table.
type Index struct {
	ID      IndexID
	Name    string
	Columns []string
}

// PartitionType is the partitioning scheme of a table.
type PartitionType int

const (
	// Unpartitioned tables have a single implicit partition.
	Unpartitioned PartitionType = iota
	// RangePartitioned tables split on ranges of the partition key.
	RangePartitioned
	// ListPartitioned tables split on explicit value lists.
	ListPartitioned
)

func (p PartitionType) String() string {
	switch p {
	case RangePartitioned:
		return "RANGE"
	case ListPartitioned:
		return "LIST"
	default:
		return "UNPARTITIONED"
	}
}

// Partitioning describes how a table is partitioned.
type Partitioning struct {
	Type       PartitionType
	Columns    []string
	Partitions []*Partition
}

// ColumnIndex returns the position of name among the partition columns, or -1.
func (p *Partitioning) ColumnIndex(name string) int {
	if p == nil {
		return -1
	}
	for i, c := range p.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Partition is one partition of a table.
type Partition struct {
	ID   PartitionID
	Name string
	// Lower/Upper are the range bounds (one value per partition column) for
	// range partitioning. Lower is inclusive, Upper exclusive.
	Lower []types.Value
	Upper []types.Value
	// Values lists the tuples of a list partition.
	Values [][]types.Value
}
