package cardinality

import (
	"math"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/log"
	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
	"github.com/dshills/cardest/internal/sql/types"
	"github.com/dshills/cardest/internal/statscache"
)

// selectedIndex returns the index a scan reads, defaulting to the base index.
func selectedIndex(s *plan.Scan) catalog.IndexID {
	if s.SelectedIndexID == 0 {
		return s.Table.BaseIndexID
	}
	return s.SelectedIndexID
}

// tableRowCount returns the row count of an index of table: the injected
// count when an administrator supplied one, else the count reported by the
// storage backend, else the analyzed count plus rows loaded since.
// It returns -1 when none is known.
func tableRowCount(p statscache.Provider, table *catalog.Table, indexID catalog.IndexID) float64 {
	meta := p.TableMeta(table.ID)
	if meta != nil && meta.UserInjected {
		if rc := meta.RowCount(indexID); rc >= 0 {
			return rc
		}
	}
	rc := table.RowCountForIndex(indexID)
	if rc < 0 && meta != nil {
		if analyzed := meta.RowCount(indexID); analyzed >= 0 {
			rc = analyzed + meta.DeltaRowCount
		}
	}
	return rc
}

// selectedPartitionsRowCount sums the row counts of the selected
// partitions. Partitions without a count contribute their share of
// tableRows, and at least one row each.
func selectedPartitionsRowCount(table *catalog.Table, selected []catalog.PartitionID, tableRows float64) float64 {
	var total, unknown float64
	for _, id := range selected {
		if rc := table.RowCountForPartition(id); rc >= 0 {
			total += rc
		} else {
			unknown++
		}
	}
	if unknown > 0 {
		total += math.Max(unknown, tableRows*unknown/float64(table.PartitionNum()))
	}
	return total
}

func (c *Calculator) scan(s *plan.Scan) *stats.Statistics {
	table := s.Table
	if table.Kind == catalog.ExternalTable {
		return c.externalScan(s)
	}
	provider := c.ctx.Provider
	indexID := selectedIndex(s)
	rows := math.Max(1, tableRowCount(provider, table, indexID))

	out := stats.New(rows, 1)
	meta := provider.TableMeta(table.ID)
	if meta != nil {
		out.DeltaRowCount = meta.DeltaRowCount
	}

	if table.Kind == catalog.SystemTable || c.ctx.Session.Internal {
		for _, col := range s.Columns {
			out.SetColumn(col.ID, stats.UnknownForType(col.Type))
		}
		c.ctx.markUnknownColStats()
		return out
	}
	if !c.ctx.Session.EnableStats {
		for _, col := range s.Columns {
			out.SetColumn(col.ID, stats.UnknownForType(col.Type).WithCount(rows))
		}
		c.ctx.markUnknownColStats()
		return out
	}

	if indexID != table.BaseIndexID || table.Kind == catalog.MaterializedView {
		if vs := c.viewScan(s, rows); vs != nil {
			return vs
		}
	}

	pruned := (meta == nil || !meta.UserInjected) &&
		s.SelectedPartitions != nil && len(s.SelectedPartitions) < table.PartitionNum()
	if pruned {
		rows = math.Max(1, selectedPartitionsRowCount(table, s.SelectedPartitions, rows))
		out.RowCount = rows
	}

	for _, col := range s.Columns {
		if !col.Visible() {
			out.SetColumn(col.ID, stats.UnknownForType(col.Type))
			continue
		}
		name := col.Origin.Column
		cs := c.columnStatistic(table, indexID, name, col.Type)
		if pruned {
			if c.ctx.Session.EnablePartitionStats {
				if merged, ok := c.partitionColumnStatistic(table, s.SelectedPartitions, name, col.Type); ok {
					cs = merged
				}
			}
			cs = c.updateMinMax(table, s.SelectedPartitions, name, col.Type, cs)
		}
		out.SetColumn(col.ID, cs)
	}
	c.ctx.noteUnknownKeys(out, s.Columns)
	out.EnforceValid()
	return out
}

// columnStatistic reads the cached statistic of a column, treating
// malformed entries as unknown.
func (c *Calculator) columnStatistic(table *catalog.Table, indexID catalog.IndexID, name string, typ types.DataType) stats.ColumnStat {
	if indexID == table.BaseIndexID {
		indexID = 0
	}
	cs := c.ctx.Provider.ColumnStatistic(table.ID, indexID, name)
	if cs.IsUnknown {
		return stats.UnknownForType(typ)
	}
	if cs.IsMalformed() {
		c.ctx.Logger.Debug("ignoring malformed column statistic",
			log.String("table", table.QualifiedName()),
			log.String("column", name),
			log.String("stat", cs.String()))
		return stats.UnknownForType(typ)
	}
	return cs
}

func (c *Calculator) partitionColumnStatistic(table *catalog.Table, selected []catalog.PartitionID, name string, typ types.DataType) (stats.ColumnStat, bool) {
	parts := make([]stats.PartitionColumnStat, 0, len(selected))
	for _, id := range selected {
		p := table.Partition(id)
		if p == nil {
			return stats.Unknown, false
		}
		parts = append(parts, c.ctx.Provider.PartitionColumnStatistic(table.ID, p.Name, name))
	}
	return stats.MergePartitionColumnStats(parts, typ)
}

// viewScan returns the statistics of the defining query of a materialized
// index when they are usable, or nil.
func (c *Calculator) viewScan(s *plan.Scan, tableRows float64) *stats.Statistics {
	if !c.ctx.Session.EnableMaterializedViewStats {
		return nil
	}
	vs := c.ctx.ViewStatistics(s.RelationID)
	if vs == nil {
		return nil
	}
	reachable := tableRows
	if s.SelectedPartitions != nil {
		reachable = selectedPartitionsRowCount(s.Table, s.SelectedPartitions, tableRows)
	}
	if reachable < vs.RowCount {
		c.ctx.Logger.Debug("view statistics exceed selected rows",
			log.String("table", s.Table.QualifiedName()),
			log.Float64("view_rows", vs.RowCount),
			log.Float64("selected_rows", reachable))
		return nil
	}
	out := stats.New(vs.RowCount, 1)
	for _, col := range s.Columns {
		cs, ok := vs.Column(col.ID)
		if !ok {
			cs = stats.UnknownWithCount(vs.RowCount)
		}
		out.SetColumn(col.ID, cs)
	}
	return out
}

// updateMinMax narrows the range of a partition key column to the bounds
// of the selected partitions. The result never widens cs.
func (c *Calculator) updateMinMax(table *catalog.Table, selected []catalog.PartitionID, name string, typ types.DataType, cs stats.ColumnStat) stats.ColumnStat {
	p := table.Partitions
	if cs.IsUnknown || p == nil || len(selected) == 0 {
		return cs
	}
	pos := p.ColumnIndex(name)
	if pos < 0 || (p.Type == catalog.RangePartitioned && pos != 0) {
		return cs
	}

	b := newBounds()
	for _, id := range selected {
		part := table.Partition(id)
		if part == nil {
			return cs
		}
		switch p.Type {
		case catalog.RangePartitioned:
			if !b.addLower(typ, boundAt(part.Lower, 0)) || !b.addUpper(typ, boundAt(part.Upper, 0)) {
				return cs
			}
		case catalog.ListPartitioned:
			for _, tuple := range part.Values {
				v := boundAt(tuple, pos)
				if !b.addLower(typ, v) || !b.addUpper(typ, v) {
					return cs
				}
			}
		default:
			return cs
		}
	}

	lo, loLit := cs.MinValue, cs.MinLiteral
	if b.lo > lo {
		lo, loLit = b.lo, b.loLit
	}
	hi, hiLit := cs.MaxValue, cs.MaxLiteral
	if b.hi < hi {
		hi, hiLit = b.hi, b.hiLit
	}
	if lo > hi {
		c.ctx.Logger.Debug("partition bounds do not overlap column range",
			log.String("table", table.QualifiedName()),
			log.String("column", name))
		return cs
	}
	return cs.WithRange(lo, loLit, hi, hiLit)
}

func boundAt(vals []types.Value, i int) types.Value {
	if i >= len(vals) {
		return types.NewNullValue()
	}
	return vals[i]
}

// partitionBounds accumulates the smallest lower and largest upper bound
// of a set of partitions. A null bound is unbounded.
type partitionBounds struct {
	lo, hi       float64
	loLit, hiLit *types.Value
}

func newBounds() *partitionBounds {
	return &partitionBounds{lo: math.Inf(1), hi: math.Inf(-1)}
}

func (b *partitionBounds) addLower(typ types.DataType, v types.Value) bool {
	if v.IsNull() {
		b.lo, b.loLit = math.Inf(-1), nil
		return true
	}
	f, lit, ok := boundValue(typ, v)
	if !ok {
		return false
	}
	if f < b.lo {
		b.lo, b.loLit = f, lit
	}
	return true
}

func (b *partitionBounds) addUpper(typ types.DataType, v types.Value) bool {
	if v.IsNull() {
		b.hi, b.hiLit = math.Inf(1), nil
		return true
	}
	f, lit, ok := boundValue(typ, v)
	if !ok {
		return false
	}
	if f > b.hi {
		b.hi, b.hiLit = f, lit
	}
	return true
}

func boundValue(typ types.DataType, v types.Value) (float64, *types.Value, bool) {
	lit, err := types.Coerce(typ, v)
	if err != nil {
		return 0, nil, false
	}
	f, err := types.LiteralToDouble(typ, lit)
	if err != nil {
		return 0, nil, false
	}
	return f, &lit, true
}

func (c *Calculator) externalScan(s *plan.Scan) *stats.Statistics {
	table := s.Table
	rows := table.ReportedRowCount
	if rows <= 0 {
		rows = 1
		for _, col := range s.Columns {
			if !col.Visible() {
				continue
			}
			if cs := c.ctx.Provider.ColumnStatistic(table.ID, 0, col.Origin.Column); !cs.IsUnknown && cs.Count > rows {
				rows = cs.Count
			}
		}
	}
	out := stats.New(rows, 1)

	unknown := c.ctx.Session.Internal || !c.ctx.Session.EnableStats
	for _, col := range s.Columns {
		cs := stats.UnknownForType(col.Type).WithCount(rows)
		if !unknown && col.Visible() {
			if known := c.columnStatistic(table, 0, col.Origin.Column, col.Type); !known.IsUnknown {
				cs = known.WithCount(rows)
			}
		}
		out.SetColumn(col.ID, cs)
	}
	if unknown {
		c.ctx.markUnknownColStats()
	} else {
		c.ctx.noteUnknownKeys(out, s.Columns)
	}
	out.EnforceValid()
	return out
}
