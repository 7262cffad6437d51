package statscache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/metrics"
	"github.com/dshills/cardest/internal/sql/stats"
)

const (
	typeColumn    = "column"
	typePartition = "partition"
	typeTable     = "table"
)

// Options configures a Cache.
type Options struct {
	// TTL bounds the lifetime of an entry. Zero keeps entries until evicted.
	TTL time.Duration
	// Capacity bounds the number of entries per entry type. Zero is unbounded.
	Capacity uint64
	// Deltas, when set, adds pending row changes to table metadata.
	Deltas DeltaSource
}

// Cache is a Provider backed by TTL caches. Writers replace whole entries so
// readers always observe complete values.
type Cache struct {
	columns    *ttlcache.Cache[string, stats.ColumnStat]
	partitions *ttlcache.Cache[string, stats.PartitionColumnStat]
	tables     *ttlcache.Cache[catalog.TableID, *stats.TableMeta]
	deltas     DeltaSource

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

var _ Provider = (*Cache)(nil)

// New creates an empty cache.
func New(opts Options) *Cache {
	return &Cache{
		columns:    ttlcache.New[string, stats.ColumnStat](cacheOptions[string, stats.ColumnStat](opts)...),
		partitions: ttlcache.New[string, stats.PartitionColumnStat](cacheOptions[string, stats.PartitionColumnStat](opts)...),
		tables:     ttlcache.New[catalog.TableID, *stats.TableMeta](cacheOptions[catalog.TableID, *stats.TableMeta](opts)...),
		deltas:     opts.Deltas,
	}
}

// cacheOptions builds the ttlcache options. Reads do not extend an entry's
// lifetime, so TTL bounds how stale a statistic can get.
func cacheOptions[K comparable, V any](opts Options) []ttlcache.Option[K, V] {
	out := []ttlcache.Option[K, V]{ttlcache.WithDisableTouchOnHit[K, V]()}
	if opts.TTL > 0 {
		out = append(out, ttlcache.WithTTL[K, V](opts.TTL))
	}
	if opts.Capacity > 0 {
		out = append(out, ttlcache.WithCapacity[K, V](opts.Capacity))
	}
	return out
}

// Start runs the background expiration of entries until Stop is called.
func (c *Cache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.wg.Add(3)
	go func() { defer c.wg.Done(); c.columns.Start() }()
	go func() { defer c.wg.Done(); c.partitions.Start() }()
	go func() { defer c.wg.Done(); c.tables.Start() }()
}

// Stop stops the background expiration started by Start. It is a no-op
// when Start was not called.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.columns.Stop()
	c.partitions.Stop()
	c.tables.Stop()
	c.wg.Wait()
	c.started = false
}

func columnKey(tableID catalog.TableID, indexID catalog.IndexID, column string) string {
	return fmt.Sprintf("%d/%d/%s", tableID, indexID, strings.ToLower(column))
}

func partitionKey(tableID catalog.TableID, partition, column string) string {
	return fmt.Sprintf("%d/%s/%s", tableID, partition, strings.ToLower(column))
}

func tablePrefix(tableID catalog.TableID) string {
	return fmt.Sprintf("%d/", tableID)
}

// PutColumn stores the statistic of a column for an index (0 for the table).
func (c *Cache) PutColumn(tableID catalog.TableID, indexID catalog.IndexID, column string, cs stats.ColumnStat) {
	c.columns.Set(columnKey(tableID, indexID, column), cs, ttlcache.DefaultTTL)
	metrics.StatsCacheGauge.WithLabelValues(typeColumn).Set(float64(c.columns.Len()))
}

// PutPartitionColumn stores the statistic of a column within a partition.
func (c *Cache) PutPartitionColumn(tableID catalog.TableID, partition, column string, ps stats.PartitionColumnStat) {
	c.partitions.Set(partitionKey(tableID, partition, column), ps, ttlcache.DefaultTTL)
	metrics.StatsCacheGauge.WithLabelValues(typePartition).Set(float64(c.partitions.Len()))
}

// PutTableMeta stores the analyze status of a table.
func (c *Cache) PutTableMeta(meta *stats.TableMeta) {
	c.tables.Set(meta.TableID, meta, ttlcache.DefaultTTL)
	metrics.StatsCacheGauge.WithLabelValues(typeTable).Set(float64(c.tables.Len()))
}

// ColumnStatistic implements Provider. A miss on a specific index falls
// back to table level statistics.
func (c *Cache) ColumnStatistic(tableID catalog.TableID, indexID catalog.IndexID, column string) stats.ColumnStat {
	if item := c.columns.Get(columnKey(tableID, indexID, column)); item != nil {
		metrics.StatsCacheCounter.WithLabelValues(typeColumn, metrics.ResultHit).Inc()
		return item.Value()
	}
	if indexID != 0 {
		if item := c.columns.Get(columnKey(tableID, 0, column)); item != nil {
			metrics.StatsCacheCounter.WithLabelValues(typeColumn, metrics.ResultHit).Inc()
			return item.Value()
		}
	}
	metrics.StatsCacheCounter.WithLabelValues(typeColumn, metrics.ResultMiss).Inc()
	return stats.Unknown
}

// PartitionColumnStatistic implements Provider.
func (c *Cache) PartitionColumnStatistic(tableID catalog.TableID, partition, column string) stats.PartitionColumnStat {
	if item := c.partitions.Get(partitionKey(tableID, partition, column)); item != nil {
		metrics.StatsCacheCounter.WithLabelValues(typePartition, metrics.ResultHit).Inc()
		return item.Value()
	}
	metrics.StatsCacheCounter.WithLabelValues(typePartition, metrics.ResultMiss).Inc()
	return stats.UnknownPartitionColumnStat
}

// TableMeta implements Provider. The returned value is a copy that includes
// rows changed since the last analyze when a DeltaSource is configured.
func (c *Cache) TableMeta(tableID catalog.TableID) *stats.TableMeta {
	item := c.tables.Get(tableID)
	if item == nil {
		metrics.StatsCacheCounter.WithLabelValues(typeTable, metrics.ResultMiss).Inc()
		return nil
	}
	metrics.StatsCacheCounter.WithLabelValues(typeTable, metrics.ResultHit).Inc()

	meta := *item.Value()
	if c.deltas != nil {
		meta.DeltaRowCount += c.deltas.DeltaRowCount(tableID)
	}
	return &meta
}

// Invalidate drops every entry of a table.
func (c *Cache) Invalidate(tableID catalog.TableID) {
	prefix := tablePrefix(tableID)
	for _, k := range c.columns.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.columns.Delete(k)
		}
	}
	for _, k := range c.partitions.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.partitions.Delete(k)
		}
	}
	c.tables.Delete(tableID)
}

// Len returns the number of cached column, partition and table entries.
func (c *Cache) Len() (columns, partitions, tables int) {
	return c.columns.Len(), c.partitions.Len(), c.tables.Len()
}
