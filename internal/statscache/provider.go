// Package statscache holds the table, column and partition statistics read
// by the cardinality estimator.
package statscache

import (
	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/sql/stats"
)

// Provider gives read access to cached statistics. Implementations must be
// safe for concurrent use; every method returns an unknown value on a miss.
type Provider interface {
	// ColumnStatistic returns the statistic of a column as seen through an
	// index. Index 0 addresses table level statistics.
	ColumnStatistic(tableID catalog.TableID, indexID catalog.IndexID, column string) stats.ColumnStat
	// PartitionColumnStatistic returns the statistic of a column within one
	// partition.
	PartitionColumnStatistic(tableID catalog.TableID, partition, column string) stats.PartitionColumnStat
	// TableMeta returns the analyze status of a table, or nil.
	TableMeta(tableID catalog.TableID) *stats.TableMeta
}

// DeltaSource reports rows changed since a table was last analyzed.
type DeltaSource interface {
	DeltaRowCount(tableID catalog.TableID) float64
}
