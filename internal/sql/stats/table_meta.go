package stats

import (
	"time"

	"github.com/dshills/cardest/internal/catalog"
)

// TableMeta is the analyze status of a table kept by the statistics cache.
type TableMeta struct {
	TableID catalog.TableID
	// UserInjected is set when row counts were supplied by an administrator
	// rather than collected.
	UserInjected bool
	// RowCounts holds analyzed row counts per index.
	RowCounts map[catalog.IndexID]float64
	// DeltaRowCount is the net number of rows loaded since the last analyze.
	DeltaRowCount float64
	AnalyzedAt    time.Time
}

// RowCount returns the analyzed row count of an index, or UnknownRowCount.
func (m *TableMeta) RowCount(indexID catalog.IndexID) float64 {
	if m == nil {
		return UnknownRowCount
	}
	if rc, ok := m.RowCounts[indexID]; ok {
		return rc
	}
	return UnknownRowCount
}
