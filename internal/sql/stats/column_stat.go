package stats

import (
	"fmt"
	"math"

	"github.com/dshills/cardest/internal/sql/types"
)

// UnknownRowCount marks a row count that is not available.
const UnknownRowCount = -1.0

// ColumnStat holds the statistics of one column of an operator's output.
// It is a value type; methods return modified copies.
type ColumnStat struct {
	NDV      float64
	MinValue float64
	MaxValue float64
	// MinLiteral and MaxLiteral keep the typed bounds so that they can be
	// compared with partition boundaries. Nil when absent.
	MinLiteral   *types.Value
	MaxLiteral   *types.Value
	NumNulls     float64
	AvgSizeBytes float64
	// Count is the row count the statistic was computed for, -1 if unknown.
	Count     float64
	IsUnknown bool
	// Reliable marks exact statistics, such as user injected ones. A
	// predicate that falls outside a reliable range may select zero rows.
	Reliable  bool
	Histogram *Histogram
}

// Unknown is the statistic of a column nothing is known about.
var Unknown = ColumnStat{
	NDV:          1,
	MinValue:     math.Inf(-1),
	MaxValue:     math.Inf(1),
	NumNulls:     0,
	AvgSizeBytes: 1,
	Count:        UnknownRowCount,
	IsUnknown:    true,
}

// UnknownWithCount returns Unknown with Count set.
func UnknownWithCount(count float64) ColumnStat {
	cs := Unknown
	cs.Count = count
	return cs
}

// UnknownForType returns Unknown with the average size of typ.
func UnknownForType(typ types.DataType) ColumnStat {
	cs := Unknown
	if typ != nil {
		cs.AvgSizeBytes = typ.Width()
	}
	return cs
}

// WithCount returns a copy with Count set.
func (c ColumnStat) WithCount(count float64) ColumnStat {
	c.Count = count
	return c
}

// WithNDV returns a copy with NDV set.
func (c ColumnStat) WithNDV(ndv float64) ColumnStat {
	c.NDV = ndv
	return c
}

// WithRange returns a copy bounded by [lo, hi].
func (c ColumnStat) WithRange(lo float64, loLit *types.Value, hi float64, hiLit *types.Value) ColumnStat {
	c.MinValue, c.MinLiteral = lo, loLit
	c.MaxValue, c.MaxLiteral = hi, hiLit
	return c
}

// HasBound reports whether a typed min or max is present.
func (c ColumnStat) HasBound() bool {
	return c.MinLiteral != nil || c.MaxLiteral != nil
}

// IsMalformed reports a cached statistic whose NDV contradicts its bounds
// or null count. Such entries are treated as unknown.
func (c ColumnStat) IsMalformed() bool {
	if c.IsUnknown {
		return false
	}
	if c.NDV == 0 && c.HasBound() {
		return true
	}
	return c.Count > 0 && c.NumNulls >= c.Count && c.NDV > 0
}

// IsImplausible reports statistics that should disable join reordering:
// zero NDV with a bound, or NDV above ten times the row count.
func (c ColumnStat) IsImplausible(rowCount float64) bool {
	if c.IsUnknown {
		return false
	}
	return (c.NDV == 0 && c.HasBound()) || c.NDV > rowCount*10
}

// NullFraction returns the fraction of NULL rows out of rowCount.
func (c ColumnStat) NullFraction(rowCount float64) float64 {
	if c.IsUnknown || rowCount <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, c.NumNulls/rowCount))
}

// HasFiniteRange reports whether both bounds are finite.
func (c ColumnStat) HasFiniteRange() bool {
	return !math.IsInf(c.MinValue, 0) && !math.IsInf(c.MaxValue, 0) &&
		!math.IsNaN(c.MinValue) && !math.IsNaN(c.MaxValue)
}

// Range returns the statistic as a StatisticRange.
func (c ColumnStat) Range(typ types.DataType) StatisticRange {
	if c.IsUnknown {
		return UnboundedRange(c.NDV, typ)
	}
	return StatisticRange{
		Low:         c.MinValue,
		High:        c.MaxValue,
		LowLiteral:  c.MinLiteral,
		HighLiteral: c.MaxLiteral,
		NDV:         c.NDV,
		Type:        typ,
	}
}

// ApplySelectivity returns the statistic of the column after keeping a
// sel fraction of inputRows rows chosen independently of the column value.
func (c ColumnStat) ApplySelectivity(sel, inputRows float64) ColumnStat {
	if c.IsUnknown || sel >= 1 {
		return c
	}
	if sel <= 0 {
		c.NDV, c.NumNulls = 0, 0
		return c
	}
	n := inputRows - c.NumNulls
	d := c.NDV
	if d > 0 && n > 0 {
		// If each value appears n/d times, the chance that all of its rows
		// are filtered out is (1-sel)^(n/d).
		c.NDV = d - d*math.Pow(1-sel, n/d)
	}
	c.NumNulls *= sel
	if c.Histogram != nil {
		c.Histogram = c.Histogram.Scale(sel)
	}
	return c
}

func (c ColumnStat) String() string {
	if c.IsUnknown {
		return "unknown"
	}
	return fmt.Sprintf("ndv=%.4g min=%s max=%s nulls=%.4g avg=%.4g count=%.4g",
		c.NDV, boundString(c.MinValue, c.MinLiteral), boundString(c.MaxValue, c.MaxLiteral),
		c.NumNulls, c.AvgSizeBytes, c.Count)
}

func boundString(v float64, lit *types.Value) string {
	if lit != nil {
		return lit.String()
	}
	return fmt.Sprintf("%.4g", v)
}
