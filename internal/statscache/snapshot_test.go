package statscache

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/sql/types"
)

const snapshotYAML = `
tables:
  - database: sales
    table: orders
    row_count: 1000
    delta_row_count: 10
    index_row_counts:
      11: 200
    columns:
      - name: id
        ndv: 1000
        min: 1
        max: 1000
      - name: dt
        ndv: 30
        min: "2024-01-01"
        max: "2024-01-30"
        nulls: 5
        histogram:
          - {lower: 0, upper: 10, count: 500, ndv: 10}
    partitions:
      - name: p1
        columns:
          - {name: id, ndv: 500, min: 1, max: 500, count: 500}
`

func newSalesCatalog(t *testing.T) *catalog.MemoryCatalog {
	cat := catalog.NewMemoryCatalog()
	require.NoError(t, cat.AddTable(&catalog.Table{
		Database:    "sales",
		TableName:   "orders",
		BaseIndexID: 10,
		Columns: []*catalog.Column{
			{Name: "id", DataType: types.BigInt},
			{Name: "dt", DataType: types.Date},
		},
	}))
	require.NoError(t, cat.AddTable(&catalog.Table{
		Database:  "sales",
		TableName: "items",
		Columns:   []*catalog.Column{{Name: "sku", DataType: types.Text}},
	}))
	return cat
}

func TestSnapshotApply(t *testing.T) {
	cat := newSalesCatalog(t)
	snap, err := ReadSnapshot(strings.NewReader(snapshotYAML))
	require.NoError(t, err)

	c := New(Options{})
	require.NoError(t, snap.Apply(c, cat))

	orders, err := cat.GetTable("sales", "orders")
	require.NoError(t, err)

	meta := c.TableMeta(orders.ID)
	require.NotNil(t, meta)
	assert.Equal(t, 1000.0, meta.RowCount(10))
	assert.Equal(t, 200.0, meta.RowCount(11))
	assert.Equal(t, 10.0, meta.DeltaRowCount)

	id := c.ColumnStatistic(orders.ID, 0, "id")
	assert.Equal(t, 1000.0, id.NDV)
	assert.Equal(t, 1.0, id.MinValue)
	assert.Equal(t, int64(1000), id.MaxLiteral.Data)
	assert.Equal(t, 1000.0, id.Count)
	assert.Equal(t, 8.0, id.AvgSizeBytes)

	dt := c.ColumnStatistic(orders.ID, 0, "dt")
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), dt.MinLiteral.Data)
	assert.Less(t, dt.MinValue, dt.MaxValue)
	require.NotNil(t, dt.Histogram)
	assert.Equal(t, 500.0, dt.Histogram.TotalCount())

	p1 := c.PartitionColumnStatistic(orders.ID, "p1", "id")
	assert.Equal(t, 500.0, p1.Count)
	assert.Equal(t, 500.0*8, p1.DataSize)
}

func TestSnapshotApplyErrors(t *testing.T) {
	cat := newSalesCatalog(t)
	c := New(Options{})

	snap := &Snapshot{Tables: []TableSnapshot{{Database: "sales", Table: "missing"}}}
	assert.Error(t, snap.Apply(c, cat))

	snap = &Snapshot{Tables: []TableSnapshot{{Database: "sales", Table: "orders", Columns: []ColumnSnapshot{{Name: "nope"}}}}}
	assert.Error(t, snap.Apply(c, cat))

	snap = &Snapshot{Tables: []TableSnapshot{{Database: "sales", Table: "orders", Columns: []ColumnSnapshot{{Name: "dt", Min: "yesterday"}}}}}
	assert.Error(t, snap.Apply(c, cat))
}

func TestSnapshotWriteRoundTrip(t *testing.T) {
	snap, err := ReadSnapshot(strings.NewReader(snapshotYAML))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snap.Write(&buf))
	again, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.Len(t, again.Tables, 1)
	assert.Equal(t, snap.Tables[0].Columns[0].NDV, again.Tables[0].Columns[0].NDV)
	assert.Equal(t, *snap.Tables[0].RowCount, *again.Tables[0].RowCount)

	empty, err := ReadSnapshot(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Tables)
}
