package statscache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/metrics"
	"github.com/dshills/cardest/internal/sql/stats"
)

func TestCacheColumnStatistic(t *testing.T) {
	c := New(Options{})
	cs := stats.ColumnStat{NDV: 10, MinValue: 1, MaxValue: 10, Count: 100}
	c.PutColumn(1, 0, "ID", cs)
	c.PutColumn(1, 5, "id", stats.ColumnStat{NDV: 3, Count: 30})

	assert.Equal(t, cs, c.ColumnStatistic(1, 0, "id"))
	assert.Equal(t, 3.0, c.ColumnStatistic(1, 5, "id").NDV)
	assert.Equal(t, cs, c.ColumnStatistic(1, 6, "id"), "falls back to table level")
	assert.True(t, c.ColumnStatistic(2, 0, "id").IsUnknown)

	misses := testutil.ToFloat64(metrics.StatsCacheCounter.WithLabelValues(typeColumn, metrics.ResultMiss))
	c.ColumnStatistic(2, 0, "nope")
	assert.Equal(t, misses+1, testutil.ToFloat64(metrics.StatsCacheCounter.WithLabelValues(typeColumn, metrics.ResultMiss)))
}

func TestCachePartitionAndTable(t *testing.T) {
	tracker := catalog.NewChangeTracker()
	c := New(Options{Deltas: tracker})

	c.PutPartitionColumn(1, "p1", "id", stats.PartitionColumnStat{Count: 10, NDV: 10})
	assert.Equal(t, 10.0, c.PartitionColumnStatistic(1, "p1", "id").NDV)
	assert.True(t, c.PartitionColumnStatistic(1, "p2", "id").IsUnknown)

	assert.Nil(t, c.TableMeta(1))
	c.PutTableMeta(&stats.TableMeta{TableID: 1, RowCounts: map[catalog.IndexID]float64{10: 1000}, DeltaRowCount: 5})
	tracker.RecordChange(1, catalog.ChangeInsert, 20)

	meta := c.TableMeta(1)
	require.NotNil(t, meta)
	assert.Equal(t, 25.0, meta.DeltaRowCount)
	assert.Equal(t, 1000.0, c.TableMeta(1).RowCount(10))
	assert.Equal(t, stats.UnknownRowCount, c.TableMeta(2).RowCount(10))

	// The stored entry is not modified by delta accounting.
	assert.Equal(t, 25.0, c.TableMeta(1).DeltaRowCount)
}

func TestCacheInvalidate(t *testing.T) {
	c := New(Options{})
	c.PutColumn(1, 0, "a", stats.ColumnStat{NDV: 1})
	c.PutColumn(11, 0, "a", stats.ColumnStat{NDV: 1})
	c.PutPartitionColumn(1, "p1", "a", stats.PartitionColumnStat{NDV: 1})
	c.PutTableMeta(&stats.TableMeta{TableID: 1})

	c.Invalidate(1)
	cols, parts, tables := c.Len()
	assert.Equal(t, 1, cols)
	assert.Equal(t, 0, parts)
	assert.Equal(t, 0, tables)
	assert.False(t, c.ColumnStatistic(11, 0, "a").IsUnknown)
}

func TestCacheTTL(t *testing.T) {
	c := New(Options{TTL: 10 * time.Millisecond, Capacity: 10})
	c.Start()
	defer c.Stop()

	c.PutColumn(1, 0, "a", stats.ColumnStat{NDV: 1})
	assert.False(t, c.ColumnStatistic(1, 0, "a").IsUnknown)
	assert.Eventually(t, func() bool {
		return c.ColumnStatistic(1, 0, "a").IsUnknown
	}, time.Second, 5*time.Millisecond)
}

func TestCacheReadsDoNotExtendTTL(t *testing.T) {
	c := New(Options{TTL: 20 * time.Millisecond})
	c.Start()
	defer c.Stop()

	c.PutTableMeta(&stats.TableMeta{TableID: 3, RowCounts: map[catalog.IndexID]float64{0: 10}})
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		c.TableMeta(3)
		time.Sleep(5 * time.Millisecond)
	}
	assert.Nil(t, c.TableMeta(3))
}

func TestCacheStopWithoutStart(t *testing.T) {
	c := New(Options{})
	c.Stop()
}
