package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/sql/types"
)

func newOrders() *Table {
	return &Table{
		Database:  "sales",
		TableName: "orders",
		Columns: []*Column{
			{Name: "id", DataType: types.BigInt},
			{Name: "dt", DataType: types.Date},
			{Name: "__delete_sign", DataType: types.Boolean, Hidden: true},
		},
		BaseIndexID: 10,
		IndexRowCounts: map[IndexID]float64{
			10: 1000,
			11: 200,
		},
		Partitions: &Partitioning{
			Type:    RangePartitioned,
			Columns: []string{"dt"},
			Partitions: []*Partition{
				{ID: 1, Name: "p1"},
				{ID: 2, Name: "p2"},
			},
		},
		PartitionRowCounts: map[PartitionID]float64{1: 400},
	}
}

func TestMemoryCatalog(t *testing.T) {
	c := NewMemoryCatalog()
	orders := newOrders()
	require.NoError(t, c.AddTable(orders))
	assert.NotZero(t, orders.ID)

	got, err := c.GetTable("SALES", "Orders")
	require.NoError(t, err)
	assert.Same(t, orders, got)

	got, err = c.GetTableByID(orders.ID)
	require.NoError(t, err)
	assert.Same(t, orders, got)

	assert.Error(t, c.AddTable(newOrders()), "duplicate names are rejected")

	tables, err := c.ListTables("sales")
	require.NoError(t, err)
	assert.Len(t, tables, 1)

	require.NoError(t, c.DropTable("sales", "orders"))
	_, err = c.GetTableByID(orders.ID)
	assert.Error(t, err)

	_, err = c.GetTable("sales", "orders")
	assert.True(t, errors.IsError(err, errors.UndefinedTable))
}

func TestTableMetadata(t *testing.T) {
	orders := newOrders()

	assert.Equal(t, "sales.orders", orders.QualifiedName())
	assert.Equal(t, 2, orders.PartitionNum())
	assert.Equal(t, "p2", orders.Partition(2).Name)
	assert.Nil(t, orders.Partition(3))
	assert.Equal(t, 0, orders.Partitions.ColumnIndex("DT"))
	assert.Equal(t, -1, orders.Partitions.ColumnIndex("id"))

	assert.Equal(t, 1000.0, orders.RowCountForIndex(10))
	assert.Equal(t, 200.0, orders.RowCountForIndex(11))
	assert.Equal(t, -1.0, orders.RowCountForIndex(12))
	assert.Equal(t, 400.0, orders.RowCountForPartition(1))
	assert.Equal(t, -1.0, orders.RowCountForPartition(2))

	assert.False(t, orders.Column("__delete_sign").Visible())
	assert.True(t, orders.Column("ID").Visible())
}

func TestChangeTracker(t *testing.T) {
	ct := NewChangeTracker()
	ct.RecordChange(1, ChangeInsert, 100)
	ct.RecordChange(1, ChangeDelete, 30)
	ct.RecordChange(1, ChangeUpdate, 500)
	assert.Equal(t, 70.0, ct.DeltaRowCount(1))
	assert.Equal(t, 0.0, ct.DeltaRowCount(2))

	ct.RecordChange(2, ChangeDelete, 10)
	assert.Equal(t, 0.0, ct.DeltaRowCount(2), "delta never goes negative")

	ct.RecordChange(1, ChangeTruncate, 0)
	assert.True(t, ct.Truncated(1))
	assert.Equal(t, 0.0, ct.DeltaRowCount(1))
	assert.ElementsMatch(t, []TableID{1, 2}, ct.ChangedTables())

	ct.MarkAnalyzed(1)
	assert.False(t, ct.Truncated(1))
	assert.ElementsMatch(t, []TableID{2}, ct.ChangedTables())
}
