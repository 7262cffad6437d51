package cardinality

import (
	"math"
	"strings"

	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
	"github.com/dshills/cardest/internal/sql/types"
)

// Selectivities used when the statistics of the filtered column are
// unknown or the predicate cannot be analyzed.
const (
	defaultEqualitySelectivity    = 0.1
	defaultInequalitySelectivity  = 0.5
	defaultLikeSelectivity        = 0.2
	defaultIsNullSelectivity      = 0.1
	defaultUnsupportedSelectivity = 0.8
)

// FilterEstimator derives the statistics of rows that satisfy a predicate.
type FilterEstimator struct {
	ctx *Context
}

// NewFilterEstimator returns a filter estimator using the settings of ctx.
func NewFilterEstimator(ctx *Context) *FilterEstimator {
	return &FilterEstimator{ctx: ctx}
}

// predicateResult is the outcome of one predicate. out describes the rows
// that pass before any selectivity floor is applied.
type predicateResult struct {
	sel float64
	// zero is set when no row can qualify, as shown by reliable statistics
	// or a constant predicate.
	zero bool
	out  *stats.Statistics
}

// Estimate returns the statistics of the rows of input satisfying every
// conjunct. Columns the predicate references are narrowed; the others
// keep their statistics apart from being made consistent with the new
// row count.
func (f *FilterEstimator) Estimate(conjuncts []plan.Expression, input *stats.Statistics) *stats.Statistics {
	res := f.conjunction(conjuncts, input)
	out := res.out
	out.RowCount = scaleRows(input.RowCount, f.floor(res))
	out.EnforceValid()
	return out
}

// Selectivity returns the floored selectivity of the conjuncts over input.
func (f *FilterEstimator) Selectivity(conjuncts []plan.Expression, input *stats.Statistics) float64 {
	return f.floor(f.conjunction(conjuncts, input))
}

func (f *FilterEstimator) floor(res predicateResult) float64 {
	if res.zero {
		return 0
	}
	return math.Max(res.sel, f.ctx.Session.MinSelectivity)
}

func scaleRows(rows, sel float64) float64 {
	if rows < 0 {
		return rows
	}
	return rows * sel
}

func (f *FilterEstimator) conjunction(preds []plan.Expression, in *stats.Statistics) predicateResult {
	res := predicateResult{sel: 1, out: in.Clone()}
	for _, p := range preds {
		next := f.predicate(p, res.out)
		res.sel *= next.sel
		res.zero = res.zero || next.zero
		res.out = next.out
	}
	return res
}

func (f *FilterEstimator) predicate(e plan.Expression, in *stats.Statistics) predicateResult {
	switch e := e.(type) {
	case *plan.And:
		return f.conjunction([]plan.Expression{e.Left, e.Right}, in)
	case *plan.Or:
		return f.disjunction(e, in)
	case *plan.Not:
		return f.negation(e, in)
	case *plan.Literal:
		if b, ok := e.Value.Data.(bool); ok && !e.Value.IsNull() && b {
			return predicateResult{sel: 1, out: in.Clone()}
		}
		return f.result(in, 0, nil, stats.ColumnStat{}, true)
	case *plan.Comparison:
		return f.comparison(e, in)
	case *plan.InList:
		return f.inList(e, in)
	case *plan.IsNull:
		return f.isNull(e.Input, in, false)
	case *plan.Like:
		return f.like(e, in)
	default:
		return f.scaleReferenced(e, in, defaultUnsupportedSelectivity)
	}
}

// result builds the outcome of an atomic predicate. When col is not nil its
// statistic is replaced by cs.
func (f *FilterEstimator) result(in *stats.Statistics, sel float64, col *plan.Column, cs stats.ColumnStat, zero bool) predicateResult {
	sel = float64(stats.Selectivity(sel).Clamp())
	out := in.Clone()
	out.RowCount = scaleRows(in.RowCount, sel)
	if col != nil {
		out.SetColumn(col.ID, cs)
	}
	return predicateResult{sel: sel, zero: zero && sel == 0, out: out}
}

// outOfRange is the outcome of a predicate no row falls into according to
// the column statistic. Only reliable statistics may produce zero rows.
func (f *FilterEstimator) outOfRange(in *stats.Statistics, col *plan.Column, cs stats.ColumnStat) predicateResult {
	cs.NumNulls = 0
	cs.Histogram = nil
	if cs.Reliable {
		cs.NDV = 0
		return f.result(in, 0, col, cs, true)
	}
	cs.NDV = math.Min(cs.NDV, 1)
	return f.result(in, f.ctx.Session.MinSelectivity, col, cs, false)
}

// scaleReferenced applies sel to the rows and to the directly referenced
// columns of e as if the predicate were independent of their values.
func (f *FilterEstimator) scaleReferenced(e plan.Expression, in *stats.Statistics, sel float64) predicateResult {
	res := f.result(in, sel, nil, stats.ColumnStat{}, false)
	for _, col := range plan.InputColumns(e) {
		if cs, ok := in.Column(col.ID); ok {
			res.out.SetColumn(col.ID, cs.ApplySelectivity(res.sel, in.RowCount))
		}
	}
	return res
}

func (f *FilterEstimator) disjunction(e *plan.Or, in *stats.Statistics) predicateResult {
	l := f.predicate(e.Left, in)
	r := f.predicate(e.Right, in)
	sel := float64(stats.CombineSelectivity(stats.LogicalOr, stats.Selectivity(l.sel), stats.Selectivity(r.sel)))
	res := f.result(in, sel, nil, stats.ColumnStat{}, l.zero && r.zero)
	for _, col := range plan.InputColumns(e) {
		cs, ok := in.Column(col.ID)
		if !ok || cs.IsUnknown {
			continue
		}
		a, b := l.out.ColumnOrUnknown(col.ID), r.out.ColumnOrUnknown(col.ID)
		if a.IsUnknown || b.IsUnknown {
			continue
		}
		rng := a.Range(col.Type).Union(b.Range(col.Type))
		cs.MinValue, cs.MinLiteral = rng.Low, rng.LowLiteral
		cs.MaxValue, cs.MaxLiteral = rng.High, rng.HighLiteral
		cs.NDV = math.Min(cs.NDV, a.NDV+b.NDV)
		cs.NumNulls = math.Min(cs.NumNulls, a.NumNulls+b.NumNulls)
		cs.Histogram = nil
		res.out.SetColumn(col.ID, cs)
	}
	return res
}

func (f *FilterEstimator) negation(e *plan.Not, in *stats.Statistics) predicateResult {
	if isNull, ok := e.Input.(*plan.IsNull); ok {
		return f.isNull(isNull.Input, in, true)
	}
	inner := f.predicate(e.Input, in)
	return f.scaleReferenced(e, in, 1-inner.sel)
}

func (f *FilterEstimator) isNull(input plan.Expression, in *stats.Statistics, negated bool) predicateResult {
	col := columnOf(input)
	cs := EstimateExpression(input, in)
	if cs.IsUnknown {
		sel := defaultIsNullSelectivity
		if negated {
			sel = 1 - sel
		}
		return f.result(in, sel, nil, stats.ColumnStat{}, false)
	}
	nullFrac := cs.NullFraction(in.RowCount)
	if negated {
		cs.NumNulls = 0
		return f.result(in, 1-nullFrac, col, cs, cs.Reliable)
	}
	cs.NDV = 0
	cs.NumNulls = scaleRows(in.RowCount, nullFrac)
	cs.Histogram = nil
	return f.result(in, nullFrac, col, cs, cs.Reliable)
}

func (f *FilterEstimator) comparison(cmp *plan.Comparison, in *stats.Statistics) predicateResult {
	left, right, op := cmp.Left, cmp.Right, cmp.Op
	if plan.IsConstant(left) && !plan.IsConstant(right) {
		left, right, op = right, left, op.Commute()
	}
	if plan.IsConstant(left) {
		return f.scaleReferenced(cmp, in, defaultUnsupportedSelectivity)
	}
	if !plan.IsConstant(right) {
		return f.columnComparison(left, right, op, in)
	}

	col := columnOf(left)
	cs := EstimateExpression(left, in)
	c, ok := constantOf(right, left.Type())
	if ok && c.null {
		if op == plan.OpNullSafeEqual {
			return f.isNull(left, in, false)
		}
		// Comparing with NULL is never true.
		return f.result(in, 0, nil, stats.ColumnStat{}, true)
	}
	if cs.IsUnknown || !ok {
		return f.result(in, defaultComparisonSelectivity(op), nil, stats.ColumnStat{}, false)
	}

	switch op {
	case plan.OpEqual, plan.OpNullSafeEqual:
		return f.equal(in, col, left.Type(), cs, c)
	case plan.OpNotEqual:
		return f.notEqual(in, col, left.Type(), cs, c)
	default:
		return f.rangeComparison(in, col, left.Type(), cs, op, c)
	}
}

func defaultComparisonSelectivity(op plan.CompareOp) float64 {
	switch op {
	case plan.OpEqual, plan.OpNullSafeEqual:
		return defaultEqualitySelectivity
	case plan.OpNotEqual:
		return 1 - defaultEqualitySelectivity
	default:
		return defaultInequalitySelectivity
	}
}

func (f *FilterEstimator) equal(in *stats.Statistics, col *plan.Column, typ types.DataType, cs stats.ColumnStat, c constant) predicateResult {
	if !cs.Range(typ).Contains(c.value) {
		return f.outOfRange(in, col, cs)
	}
	nonNull := 1 - cs.NullFraction(in.RowCount)
	sel := nonNull / math.Max(cs.NDV, 1)
	if cs.Histogram != nil {
		if frac := cs.Histogram.EqualFraction(c.value); frac > 0 {
			sel = frac * nonNull
		}
		cs.Histogram = cs.Histogram.Restrict(c.value, c.value)
	}
	cs.NDV = math.Min(cs.NDV, 1)
	cs.MinValue, cs.MaxValue = c.value, c.value
	cs.MinLiteral, cs.MaxLiteral = c.literal, c.literal
	cs.NumNulls = 0
	return f.result(in, sel, col, cs, false)
}

func (f *FilterEstimator) notEqual(in *stats.Statistics, col *plan.Column, typ types.DataType, cs stats.ColumnStat, c constant) predicateResult {
	nonNull := 1 - cs.NullFraction(in.RowCount)
	cs.NumNulls = 0
	if !cs.Range(typ).Contains(c.value) {
		return f.result(in, nonNull, col, cs, false)
	}
	ndv := math.Max(cs.NDV, 1)
	sel := nonNull * (1 - 1/ndv)
	cs.NDV = math.Max(0, cs.NDV-1)
	return f.result(in, sel, col, cs, cs.Reliable)
}

func (f *FilterEstimator) rangeComparison(in *stats.Statistics, col *plan.Column, typ types.DataType, cs stats.ColumnStat, op plan.CompareOp, c constant) predicateResult {
	v := c.value
	pred := stats.StatisticRange{Low: math.Inf(-1), High: v, HighLiteral: c.literal, NDV: cs.NDV, Type: typ}
	if op == plan.OpGreater || op == plan.OpGreaterEqual {
		pred = stats.StatisticRange{Low: v, LowLiteral: c.literal, High: math.Inf(1), NDV: cs.NDV, Type: typ}
	}
	colRange := cs.Range(typ)

	var frac float64
	switch {
	case excludesAll(op, v, cs):
		return f.outOfRange(in, col, cs)
	case includesAll(op, v, cs):
		frac = 1
	case cs.Histogram != nil:
		frac = cs.Histogram.RangeFraction(math.Max(pred.Low, cs.MinValue), math.Min(pred.High, cs.MaxValue))
	case colRange.IsBothInfinite():
		frac = defaultInequalitySelectivity
	default:
		frac = colRange.OverlapPercentWith(pred)
	}
	frac = float64(stats.Selectivity(frac).Clamp())
	sel := frac * (1 - cs.NullFraction(in.RowCount))

	if narrowed := colRange.Intersect(pred); !narrowed.IsEmpty() {
		cs.MinValue, cs.MinLiteral = narrowed.Low, narrowed.LowLiteral
		cs.MaxValue, cs.MaxLiteral = narrowed.High, narrowed.HighLiteral
	}
	if cs.Histogram != nil {
		cs.Histogram = cs.Histogram.Restrict(cs.MinValue, cs.MaxValue)
	}
	cs.NDV = math.Max(math.Min(cs.NDV, 1), cs.NDV*frac)
	cs.NumNulls = 0
	return f.result(in, sel, col, cs, false)
}

// excludesAll reports whether no value in the column's range satisfies
// col op v.
func excludesAll(op plan.CompareOp, v float64, cs stats.ColumnStat) bool {
	switch op {
	case plan.OpLess:
		return v <= cs.MinValue
	case plan.OpLessEqual:
		return v < cs.MinValue
	case plan.OpGreater:
		return v >= cs.MaxValue
	case plan.OpGreaterEqual:
		return v > cs.MaxValue
	}
	return false
}

// includesAll reports whether every value in the column's range satisfies
// col op v.
func includesAll(op plan.CompareOp, v float64, cs stats.ColumnStat) bool {
	switch op {
	case plan.OpLess:
		return v > cs.MaxValue
	case plan.OpLessEqual:
		return v >= cs.MaxValue
	case plan.OpGreater:
		return v < cs.MinValue
	case plan.OpGreaterEqual:
		return v <= cs.MinValue
	}
	return false
}

// columnComparison handles predicates between two non-constant operands.
func (f *FilterEstimator) columnComparison(left, right plan.Expression, op plan.CompareOp, in *stats.Statistics) predicateResult {
	lcs := EstimateExpression(left, in)
	rcs := EstimateExpression(right, in)
	if lcs.IsUnknown || rcs.IsUnknown {
		return f.result(in, defaultComparisonSelectivity(op), nil, stats.ColumnStat{}, false)
	}
	maxNDV := math.Max(math.Max(lcs.NDV, rcs.NDV), 1)
	nonNull := 1 - math.Max(lcs.NullFraction(in.RowCount), rcs.NullFraction(in.RowCount))

	switch op {
	case plan.OpEqual, plan.OpNullSafeEqual:
		if op == plan.OpNullSafeEqual {
			nonNull = 1
		}
		res := f.result(in, nonNull/maxNDV, nil, stats.ColumnStat{}, false)
		rng := lcs.Range(left.Type()).Intersect(rcs.Range(right.Type()))
		ndv := math.Min(lcs.NDV, rcs.NDV)
		for _, side := range []struct {
			col *plan.Column
			cs  stats.ColumnStat
		}{{columnOf(left), lcs}, {columnOf(right), rcs}} {
			if side.col == nil {
				continue
			}
			cs := side.cs
			if !rng.IsEmpty() {
				cs.MinValue, cs.MinLiteral = rng.Low, rng.LowLiteral
				cs.MaxValue, cs.MaxLiteral = rng.High, rng.HighLiteral
			}
			cs.NDV = ndv
			cs.Histogram = nil
			if op == plan.OpEqual {
				cs.NumNulls = 0
			}
			res.out.SetColumn(side.col.ID, cs)
		}
		return res
	case plan.OpNotEqual:
		return f.scaleReferenced(plan.NewComparison(op, left, right), in, nonNull*(1-1/maxNDV))
	default:
		return f.scaleReferenced(plan.NewComparison(op, left, right), in, defaultInequalitySelectivity)
	}
}

func (f *FilterEstimator) inList(e *plan.InList, in *stats.Statistics) predicateResult {
	col := columnOf(e.Input)
	cs := EstimateExpression(e.Input, in)
	typ := e.Input.Type()

	var values []constant
	seen := make(map[float64]bool)
	for _, item := range e.List {
		c, ok := constantOf(item, typ)
		if !ok {
			return f.scaleReferenced(e, in, defaultUnsupportedSelectivity)
		}
		if c.null || seen[c.value] {
			continue
		}
		seen[c.value] = true
		values = append(values, c)
	}
	if len(values) == 0 {
		return f.result(in, 0, nil, stats.ColumnStat{}, true)
	}
	if cs.IsUnknown {
		return f.result(in, math.Min(1, defaultEqualitySelectivity*float64(len(values))), nil, stats.ColumnStat{}, false)
	}

	nonNull := 1 - cs.NullFraction(in.RowCount)
	rng := cs.Range(typ)
	var (
		sel      float64
		matched  float64
		lo, hi   = math.Inf(1), math.Inf(-1)
		loL, hiL *types.Value
		perValue = nonNull / math.Max(cs.NDV, 1)
	)
	for _, c := range values {
		if !rng.Contains(c.value) {
			continue
		}
		matched++
		if cs.Histogram != nil {
			if frac := cs.Histogram.EqualFraction(c.value); frac > 0 {
				sel += frac * nonNull
			} else {
				sel += perValue
			}
		} else {
			sel += perValue
		}
		if c.value < lo {
			lo, loL = c.value, c.literal
		}
		if c.value > hi {
			hi, hiL = c.value, c.literal
		}
	}
	if matched == 0 {
		return f.outOfRange(in, col, cs)
	}
	cs.NDV = math.Min(cs.NDV, matched)
	cs.MinValue, cs.MinLiteral = lo, loL
	cs.MaxValue, cs.MaxLiteral = hi, hiL
	cs.NumNulls = 0
	if cs.Histogram != nil {
		cs.Histogram = cs.Histogram.Restrict(lo, hi)
	}
	return f.result(in, math.Min(sel, nonNull), col, cs, false)
}

func (f *FilterEstimator) like(e *plan.Like, in *stats.Statistics) predicateResult {
	if lit, ok := e.Pattern.(*plan.Literal); ok && !lit.Value.IsNull() {
		if s, ok := lit.Value.Data.(string); ok && !strings.ContainsAny(s, "%_") {
			return f.comparison(plan.NewComparison(plan.OpEqual, e.Input, e.Pattern), in)
		}
	}
	return f.scaleReferenced(e, in, defaultLikeSelectivity)
}

// constant is a constant operand mapped onto the double axis of the
// compared column.
type constant struct {
	value   float64
	literal *types.Value
	null    bool
}

// constantOf evaluates a literal, or a cast of one, as a value of type typ.
func constantOf(e plan.Expression, typ types.DataType) (constant, bool) {
	var lit *plan.Literal
	switch e := e.(type) {
	case *plan.Literal:
		lit = e
	case *plan.Cast:
		inner, ok := e.Input.(*plan.Literal)
		if !ok {
			return constant{}, false
		}
		lit = inner
	default:
		return constant{}, false
	}
	if lit.Value.IsNull() {
		return constant{null: true}, true
	}
	v, err := types.LiteralToDouble(typ, lit.Value)
	if err != nil {
		return constant{}, false
	}
	typed, err := types.Coerce(typ, lit.Value)
	if err != nil {
		typed = lit.Value
	}
	return constant{value: v, literal: &typed}, true
}

// columnOf returns the column e reads when e is a plain column reference.
func columnOf(e plan.Expression) *plan.Column {
	if ref, ok := e.(*plan.ColumnRef); ok {
		return ref.Column
	}
	return nil
}
