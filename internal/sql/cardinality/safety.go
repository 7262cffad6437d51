package cardinality

import (
	"fmt"
	"math"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/log"
	"github.com/dshills/cardest/internal/metrics"
	"github.com/dshills/cardest/internal/sql/plan"
)

// CheckJoinOrderSafety reports whether the statistics of the scanned
// tables are too poor for cost-based join reordering. It returns a
// human-readable reason and true when reordering should be disabled.
func CheckJoinOrderSafety(ctx *Context, scans []*plan.Scan) (string, bool) {
	for _, s := range scans {
		reason := unsafeScan(ctx, s)
		if reason == "" {
			continue
		}
		metrics.JoinReorderDisabledCounter.Inc()
		ctx.Logger.Info("disabling join reorder", log.String("reason", reason))
		return reason, true
	}
	return "", false
}

func unsafeScan(ctx *Context, s *plan.Scan) string {
	table := s.Table
	rows := scanRowCount(ctx, s)
	if rows < 0 {
		return fmt.Sprintf("row count of %s is unknown", table.QualifiedName())
	}
	if table.Kind != catalog.OlapTable && table.Kind != catalog.MaterializedView {
		return ""
	}
	for _, col := range s.Columns {
		if !col.Visible() {
			continue
		}
		cs := ctx.Provider.ColumnStatistic(table.ID, 0, col.Origin.Column)
		if cs.IsImplausible(rows) {
			return fmt.Sprintf("statistics of %s.%s are implausible: %s for %.0f rows",
				table.QualifiedName(), col.Origin.Column, cs, rows)
		}
	}
	return ""
}

func scanRowCount(ctx *Context, s *plan.Scan) float64 {
	if s.Table.Kind == catalog.ExternalTable {
		if s.Table.ReportedRowCount > 0 {
			return s.Table.ReportedRowCount
		}
		return -1
	}
	return tableRowCount(ctx.Provider, s.Table, selectedIndex(s))
}

// MaxTableRowCount returns the largest row count among the scanned tables,
// or -1 when none is known.
func MaxTableRowCount(ctx *Context, scans []*plan.Scan) float64 {
	most := -1.0
	for _, s := range scans {
		most = math.Max(most, scanRowCount(ctx, s))
	}
	return most
}
