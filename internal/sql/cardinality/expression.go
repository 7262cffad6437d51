package cardinality

import (
	"math"
	"strings"

	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
	"github.com/dshills/cardest/internal/sql/types"
	"github.com/dshills/cardest/internal/util/timeutil"
)

// EstimateExpression derives the statistic of a scalar expression evaluated
// over rows described by input. The result is unknown whenever an operand
// the expression depends on is unknown.
func EstimateExpression(e plan.Expression, input *stats.Statistics) stats.ColumnStat {
	cs := estimateExpression(e, input)
	if !cs.IsUnknown && input.RowCount >= 0 {
		cs.NDV = math.Min(cs.NDV, input.RowCount)
		cs.NumNulls = math.Min(cs.NumNulls, input.RowCount)
	}
	return cs
}

func estimateExpression(e plan.Expression, input *stats.Statistics) stats.ColumnStat {
	switch e := e.(type) {
	case *plan.ColumnRef:
		cs, ok := input.Column(e.Column.ID)
		if !ok || cs.IsUnknown {
			return stats.UnknownForType(e.Column.Type)
		}
		return cs
	case *plan.Literal:
		return literalStat(e, input.RowCount)
	case *plan.Cast:
		return castStat(e, estimateExpression(e.Input, input))
	case *plan.Arithmetic:
		return arithmeticStat(e, estimateExpression(e.Left, input), estimateExpression(e.Right, input), input.RowCount)
	case *plan.Comparison, *plan.And, *plan.Or, *plan.Not, *plan.IsNull, *plan.InList, *plan.Like:
		return booleanStat(input.RowCount)
	case *plan.Func:
		return funcStat(e, input)
	case *plan.AggregateCall:
		return aggregateStat(e, input)
	default:
		return stats.UnknownForType(e.Type())
	}
}

func literalStat(l *plan.Literal, rows float64) stats.ColumnStat {
	typ := l.Type()
	if l.Value.IsNull() {
		return stats.ColumnStat{
			NDV:          0,
			MinValue:     math.Inf(-1),
			MaxValue:     math.Inf(1),
			NumNulls:     math.Max(rows, 1),
			AvgSizeBytes: 0,
			Count:        rows,
		}
	}
	v, err := types.LiteralToDouble(typ, l.Value)
	if err != nil {
		return stats.UnknownForType(typ)
	}
	lit := l.Value
	if coerced, err := types.Coerce(typ, l.Value); err == nil {
		lit = coerced
	}
	return stats.ColumnStat{
		NDV:          1,
		MinValue:     v,
		MaxValue:     v,
		MinLiteral:   &lit,
		MaxLiteral:   &lit,
		AvgSizeBytes: typ.Width(),
		Count:        rows,
		Reliable:     true,
	}
}

func booleanStat(rows float64) stats.ColumnStat {
	ndv := 2.0
	if rows >= 0 {
		ndv = math.Min(ndv, rows)
	}
	return stats.ColumnStat{
		NDV:          ndv,
		MinValue:     0,
		MaxValue:     1,
		AvgSizeBytes: types.Boolean.Width(),
		Count:        rows,
	}
}

// castStat keeps the range when the cast preserves order.
func castStat(c *plan.Cast, in stats.ColumnStat) stats.ColumnStat {
	if in.IsUnknown {
		return stats.UnknownForType(c.Target)
	}
	out := in
	out.AvgSizeBytes = c.Target.Width()
	out.MinLiteral, out.MaxLiteral = nil, nil
	out.Reliable = false
	from := c.Input.Type()
	if types.IsNumeric(from) != types.IsNumeric(c.Target) {
		out.MinValue, out.MaxValue = math.Inf(-1), math.Inf(1)
		out.Histogram = nil
	}
	if types.IsIntegral(c.Target) && !types.IsIntegral(from) && out.HasFiniteRange() {
		out.MinValue, out.MaxValue = math.Floor(out.MinValue), math.Ceil(out.MaxValue)
		out.NDV = math.Min(out.NDV, out.MaxValue-out.MinValue+1)
	}
	return out
}

func arithmeticStat(a *plan.Arithmetic, l, r stats.ColumnStat, rows float64) stats.ColumnStat {
	typ := a.Type()
	if l.IsUnknown || r.IsUnknown {
		return stats.UnknownForType(typ)
	}
	var lo, hi float64
	switch a.Op {
	case plan.OpAdd:
		lo, hi = l.MinValue+r.MinValue, l.MaxValue+r.MaxValue
	case plan.OpSubtract:
		lo, hi = l.MinValue-r.MaxValue, l.MaxValue-r.MinValue
	case plan.OpMultiply:
		lo, hi = cornerBounds(l, r, func(x, y float64) float64 { return x * y })
	case plan.OpDivide:
		if r.MinValue <= 0 && r.MaxValue >= 0 {
			lo, hi = math.Inf(-1), math.Inf(1)
		} else {
			lo, hi = cornerBounds(l, r, func(x, y float64) float64 { return x / y })
		}
	case plan.OpModulo:
		bound := math.Max(math.Abs(r.MinValue), math.Abs(r.MaxValue))
		lo, hi = -bound, bound
		if l.MinValue >= 0 {
			lo = 0
		}
	}
	if math.IsNaN(lo) {
		lo = math.Inf(-1)
	}
	if math.IsNaN(hi) {
		hi = math.Inf(1)
	}

	ndv := l.NDV * r.NDV
	if rows >= 0 {
		ndv = math.Min(ndv, rows)
	}
	if types.IsIntegral(typ) && !math.IsInf(lo, 0) && !math.IsInf(hi, 0) {
		ndv = math.Min(ndv, hi-lo+1)
	}
	return stats.ColumnStat{
		NDV:          math.Max(ndv, 0),
		MinValue:     lo,
		MaxValue:     hi,
		NumNulls:     math.Max(l.NumNulls, r.NumNulls),
		AvgSizeBytes: typ.Width(),
		Count:        rows,
	}
}

// cornerBounds returns the smallest and largest of fn applied to the
// corners of two ranges.
func cornerBounds(l, r stats.ColumnStat, fn func(x, y float64) float64) (float64, float64) {
	corners := [4]float64{
		fn(l.MinValue, r.MinValue), fn(l.MinValue, r.MaxValue),
		fn(l.MaxValue, r.MinValue), fn(l.MaxValue, r.MaxValue),
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range corners {
		if math.IsNaN(c) {
			return math.Inf(-1), math.Inf(1)
		}
		lo, hi = math.Min(lo, c), math.Max(hi, c)
	}
	return lo, hi
}

func funcStat(f *plan.Func, input *stats.Statistics) stats.ColumnStat {
	typ := f.Type()
	args := make([]stats.ColumnStat, len(f.Args))
	for i, a := range f.Args {
		args[i] = estimateExpression(a, input)
	}
	rows := input.RowCount

	name := strings.ToLower(f.Name)
	switch name {
	case "coalesce", "ifnull", "nvl":
		if len(args) == 0 || args[0].IsUnknown {
			return stats.UnknownForType(typ)
		}
		out := args[0]
		for _, a := range args[1:] {
			if a.IsUnknown {
				return stats.UnknownForType(typ)
			}
			out.NumNulls = math.Min(out.NumNulls, a.NumNulls)
			out.NDV = math.Max(out.NDV, a.NDV)
			out.MinValue = math.Min(out.MinValue, a.MinValue)
			out.MaxValue = math.Max(out.MaxValue, a.MaxValue)
		}
		out.MinLiteral, out.MaxLiteral, out.Histogram = nil, nil, nil
		return out
	}

	for _, a := range args {
		if a.IsUnknown {
			return stats.UnknownForType(typ)
		}
	}
	if len(args) == 0 {
		// now(), random() and the like.
		return stats.ColumnStat{NDV: 1, MinValue: math.Inf(-1), MaxValue: math.Inf(1), AvgSizeBytes: typ.Width(), Count: rows}
	}
	arg := args[0]
	out := stats.ColumnStat{
		NDV:          arg.NDV,
		MinValue:     math.Inf(-1),
		MaxValue:     math.Inf(1),
		NumNulls:     arg.NumNulls,
		AvgSizeBytes: typ.Width(),
		Count:        rows,
	}
	for _, a := range args[1:] {
		out.NDV *= math.Max(a.NDV, 1)
		out.NumNulls = math.Max(out.NumNulls, a.NumNulls)
	}

	switch name {
	case "abs":
		hi := math.Max(math.Abs(arg.MinValue), math.Abs(arg.MaxValue))
		lo := 0.0
		if arg.MinValue > 0 || arg.MaxValue < 0 {
			lo = math.Min(math.Abs(arg.MinValue), math.Abs(arg.MaxValue))
		}
		out.MinValue, out.MaxValue = lo, hi
	case "negate":
		out.MinValue, out.MaxValue = -arg.MaxValue, -arg.MinValue
	case "floor", "ceil", "round", "truncate":
		out.MinValue, out.MaxValue = math.Floor(arg.MinValue), math.Ceil(arg.MaxValue)
	case "year":
		if arg.HasFiniteRange() {
			y0 := timeutil.FromMicros(arg.MinValue).Year()
			y1 := timeutil.FromMicros(arg.MaxValue).Year()
			out.MinValue, out.MaxValue = float64(y0), float64(y1)
			out.NDV = math.Min(out.NDV, float64(y1-y0+1))
		}
	case "month", "quarter", "dayofmonth", "day", "hour", "minute", "second", "dayofweek":
		lo, hi := datePartBounds(name)
		out.MinValue, out.MaxValue = lo, hi
		out.NDV = math.Min(out.NDV, hi-lo+1)
	case "length", "char_length":
		out.MinValue, out.MaxValue = 0, math.Inf(1)
	case "upper", "lower", "trim", "ltrim", "rtrim", "reverse":
		// Keeps the distinct count, loses the order.
	}
	if rows >= 0 {
		out.NDV = math.Min(out.NDV, rows)
	}
	return out
}

func datePartBounds(part string) (float64, float64) {
	switch part {
	case "month":
		return 1, 12
	case "quarter":
		return 1, 4
	case "dayofmonth", "day":
		return 1, 31
	case "dayofweek":
		return 1, 7
	case "hour":
		return 0, 23
	default:
		return 0, 59
	}
}

// aggregateStat derives the statistic of an aggregate over all rows of
// input. Aggregate applies the grouping reduction afterwards.
func aggregateStat(a *plan.AggregateCall, input *stats.Statistics) stats.ColumnStat {
	typ := a.Type()
	rows := input.RowCount
	name := strings.ToLower(a.Name)
	if name == "count" {
		hi := math.Inf(1)
		ndv := 1.0
		if rows >= 0 {
			hi = rows
			ndv = math.Max(1, rows)
		}
		return stats.ColumnStat{NDV: ndv, MinValue: 0, MaxValue: hi, AvgSizeBytes: typ.Width(), Count: rows}
	}
	if len(a.Args) == 0 {
		return stats.UnknownForType(typ)
	}
	arg := estimateExpression(a.Args[0], input)
	if arg.IsUnknown {
		return stats.UnknownForType(typ)
	}
	out := arg
	out.AvgSizeBytes = typ.Width()
	out.Histogram = nil
	out.Reliable = false
	switch name {
	case "min", "max", "any_value":
	case "avg":
		out.MinLiteral, out.MaxLiteral = nil, nil
	case "sum":
		out.MinLiteral, out.MaxLiteral = nil, nil
		if rows > 0 {
			if out.MinValue < 0 {
				out.MinValue *= rows
			}
			if out.MaxValue > 0 {
				out.MaxValue *= rows
			}
		}
	default:
		out.MinLiteral, out.MaxLiteral = nil, nil
		out.MinValue, out.MaxValue = math.Inf(-1), math.Inf(1)
	}
	return out
}
