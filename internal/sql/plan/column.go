package plan

import (
	"fmt"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/sql/types"
)

// ColumnID identifies a column produced by some operator in a plan. IDs are
// unique within one query.
type ColumnID int

// Origin records the base table column a plan column was read from.
// Relation tells apart two reads of the same table.
type Origin struct {
	Relation RelationID
	TableID  catalog.TableID
	Column   string
}

// Column is a column produced by an operator.
type Column struct {
	ID       ColumnID
	Name     string
	Type     types.DataType
	Nullable bool
	// Origin is set for columns read directly from a table and for columns
	// that forward one without transformation.
	Origin *Origin
	// Hidden marks storage-internal columns.
	Hidden bool
}

func (c *Column) String() string {
	return fmt.Sprintf("%s#%d", c.Name, c.ID)
}

// Visible reports whether c maps to a user-visible table column.
func (c *Column) Visible() bool {
	return c.Origin != nil && !c.Hidden
}

// ColumnSet is a set of column ids.
type ColumnSet map[ColumnID]struct{}

// NewColumnSet returns a set holding the ids of cols.
func NewColumnSet(cols ...*Column) ColumnSet {
	s := make(ColumnSet, len(cols))
	for _, c := range cols {
		s[c.ID] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s ColumnSet) Add(id ColumnID) { s[id] = struct{}{} }

// Contains reports whether id is in the set.
func (s ColumnSet) Contains(id ColumnID) bool {
	_, ok := s[id]
	return ok
}

// ColumnAllocator hands out unique column ids for one query.
type ColumnAllocator struct {
	next ColumnID
}

// NewColumn allocates a new column.
func (a *ColumnAllocator) NewColumn(name string, typ types.DataType) *Column {
	a.next++
	return &Column{ID: a.next, Name: name, Type: typ, Nullable: true}
}

// NewTableColumn allocates a new column that reads a base table column.
func (a *ColumnAllocator) NewTableColumn(table *catalog.Table, col *catalog.Column) *Column {
	return a.NewScanColumn(0, table, col)
}

// NewScanColumn allocates a column read by the scan with the given
// relation id.
func (a *ColumnAllocator) NewScanColumn(rel RelationID, table *catalog.Table, col *catalog.Column) *Column {
	c := a.NewColumn(col.Name, col.DataType)
	c.Nullable = col.IsNullable
	c.Hidden = col.Hidden
	c.Origin = &Origin{Relation: rel, TableID: table.ID, Column: col.Name}
	return c
}

// Reserve makes sure ids up to and including id are never handed out.
func (a *ColumnAllocator) Reserve(id ColumnID) {
	if id > a.next {
		a.next = id
	}
}
