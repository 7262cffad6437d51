package cardinality

import (
	"math"
	"sort"
	"strings"

	crdberrors "github.com/cockroachdb/errors"

	"github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
	"github.com/dshills/cardest/internal/sql/types"
)

const (
	// Decay applied to the NDV of the i-th grouping key, most distinct
	// first, to account for correlated keys.
	aggregateNDVDecay = 0.75
	// Fraction of input rows assumed to survive grouping on a key with
	// unknown statistics.
	unknownGroupRatio = 1.0 / 3
	// Fraction of input rows kept by a PartitionTopN whose partition keys
	// have unknown statistics.
	unknownPartitionTopNRatio = 0.5
)

// Calculator applies the estimation rule of each operator kind.
type Calculator struct {
	ctx    *Context
	filter *FilterEstimator
	join   *JoinEstimator
}

// NewCalculator returns a calculator using the settings of ctx.
func NewCalculator(ctx *Context) *Calculator {
	return &Calculator{
		ctx:    ctx,
		filter: NewFilterEstimator(ctx),
		join:   NewJoinEstimator(ctx),
	}
}

// Derive computes the statistics of op. output lists the columns op
// produces and children holds the statistics of its inputs in order.
func (c *Calculator) Derive(op plan.Operator, output []*plan.Column, children []*stats.Statistics) (*stats.Statistics, error) {
	if len(children) != op.Arity() {
		return nil, errors.InvalidPlanError("%s expects %d children, got %d", op.Kind(), op.Arity(), len(children))
	}
	for i, child := range children {
		if child == nil {
			return nil, errors.InvalidPlanError("child %d of %s has no statistics", i, op.Kind())
		}
	}
	child := func(i int) *stats.Statistics { return children[i] }

	switch o := op.(type) {
	case *plan.Scan:
		return c.scan(o), nil
	case *plan.Filter:
		return c.filter.Estimate(o.Conjuncts, child(0)), nil
	case *plan.Project:
		return c.project(o, child(0)), nil
	case *plan.Aggregate:
		return c.aggregate(o, child(0)), nil
	case *plan.Join:
		return c.join.Estimate(child(0), child(1), o), nil
	case *plan.SetOp:
		return c.setOperation(o, children)
	case *plan.TopN:
		return limitRows(child(0), o.Limit), nil
	case *plan.Limit:
		return limitRows(child(0), o.Limit), nil
	case *plan.PartitionTopN:
		return c.partitionTopN(o, child(0)), nil
	case *plan.Window:
		return c.window(o, child(0))
	case *plan.Generate:
		return c.generate(o, child(0)), nil
	case *plan.AssertNumRows:
		return assertNumRows(o, child(0)), nil
	case *plan.CTEProducer:
		out := child(0).Clone()
		out.WidthInJoinCluster = 1
		c.ctx.putCTEStatistics(o.ID, out.Clone())
		return out, nil
	case *plan.CTEConsumer:
		return c.cteConsumer(o)
	case *plan.CTEAnchor:
		return child(1).Clone(), nil
	case *plan.Sort, *plan.Exchange, *plan.Sink:
		return child(0).Clone(), nil
	case *plan.Repeat:
		return repeat(o, child(0)), nil
	case *plan.OneRowRelation:
		return oneRow(o.Projections), nil
	case *plan.EmptyRelation:
		return emptyRelation(o.Columns), nil
	default:
		return nil, errors.UnsupportedOperatorError(op.Kind().String())
	}
}

func (c *Calculator) project(p *plan.Project, child *stats.Statistics) *stats.Statistics {
	out := stats.New(child.RowCount, child.WidthInJoinCluster)
	out.DeltaRowCount = child.DeltaRowCount
	for _, proj := range p.Projections {
		out.SetColumn(proj.Column.ID, EstimateExpression(proj.Expr, child))
	}
	return out
}

func (c *Calculator) aggregate(a *plan.Aggregate, child *stats.Statistics) *stats.Statistics {
	rows := 1.0
	if len(a.GroupBy) > 0 {
		rows = groupCount(a.GroupBy, child)
	}
	out := stats.New(rows, 1)

	factor := 1.0
	if rows > 0 && child.RowCount > rows {
		factor = child.RowCount / rows
	}
	for _, p := range a.Outputs {
		cs := EstimateExpression(p.Expr, child)
		if !cs.IsUnknown {
			if call, ok := p.Expr.(*plan.AggregateCall); ok && rescalesPerGroup(call) {
				cs.MinValue /= factor
				cs.MaxValue /= factor
				cs.MinLiteral, cs.MaxLiteral = nil, nil
			}
			if rows >= 0 {
				cs.NDV = math.Min(cs.NDV, rows)
				cs.Count = rows
			}
			cs.Histogram = nil
		}
		out.SetColumn(p.Column.ID, cs)
	}
	return out
}

// rescalesPerGroup reports whether the value of an aggregate shrinks with
// the number of rows per group.
func rescalesPerGroup(call *plan.AggregateCall) bool {
	switch strings.ToLower(call.Name) {
	case "sum", "count":
		return true
	}
	return false
}

// groupCount estimates the number of groups formed by keys.
func groupCount(keys []plan.Expression, child *stats.Statistics) float64 {
	childRows := child.RowCount
	if childRows < 0 {
		return stats.UnknownRowCount
	}
	ndvs := make([]float64, 0, len(keys))
	for _, k := range keys {
		cs := EstimateExpression(k, child)
		if cs.IsUnknown {
			return math.Min(math.Max(1, childRows*unknownGroupRatio), childRows)
		}
		ndvs = append(ndvs, cs.NDV)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ndvs)))

	rows := ndvs[0]
	for i := 1; i < len(ndvs) && rows < childRows; i++ {
		rows *= math.Max(1, ndvs[i]*math.Pow(aggregateNDVDecay, float64(i+1)))
	}
	return math.Min(math.Max(rows, 1), childRows)
}

func limitRows(child *stats.Statistics, limit int64) *stats.Statistics {
	rows := float64(limit)
	if child.RowCount >= 0 {
		rows = math.Min(child.RowCount, rows)
	}
	return child.WithRowCountAndEnforceValid(rows)
}

func (c *Calculator) partitionTopN(p *plan.PartitionTopN, child *stats.Statistics) *stats.Statistics {
	rows := child.RowCount
	if rows < 0 {
		return child.Clone()
	}
	limit := float64(p.PartitionLimit)
	if !p.HasGlobalLimit && len(p.PartitionBy) > 0 {
		maxNDV := -1.0
		for _, k := range p.PartitionBy {
			if cs := EstimateExpression(k, child); !cs.IsUnknown {
				maxNDV = math.Max(maxNDV, cs.NDV)
			}
		}
		if maxNDV < 0 {
			limit = rows * unknownPartitionTopNRatio
		} else {
			limit = maxNDV * float64(p.PartitionLimit)
		}
	}
	return child.WithRowCountAndEnforceValid(math.Min(rows, limit))
}

func (c *Calculator) window(w *plan.Window, child *stats.Statistics) (*stats.Statistics, error) {
	out := child.Clone()
	out.WidthInJoinCluster = 1
	for _, p := range w.Functions {
		wf, ok := p.Expr.(*plan.WindowFunc)
		if !ok {
			return nil, errors.InvalidPlanError("window output %s is not a window function", p.Column)
		}
		out.SetColumn(p.Column.ID, windowColumn(wf, child))
	}
	return out, nil
}

var rankFunctions = map[string]bool{
	"rank": true, "dense_rank": true, "row_number": true, "ntile": true,
	"percent_rank": true, "cume_dist": true,
}

func windowColumn(wf *plan.WindowFunc, child *stats.Statistics) stats.ColumnStat {
	rows := child.RowCount
	typ := wf.Type()
	maxRows := rows
	if rows < 0 {
		maxRows = math.Inf(1)
	}
	unbounded := stats.ColumnStat{
		NDV: 1, MinValue: math.Inf(-1), MaxValue: math.Inf(1),
		AvgSizeBytes: typ.Width(), Count: rows,
	}
	bounded := unbounded
	bounded.MinValue, bounded.MaxValue = 0, maxRows

	// Without a known partition key, including no PARTITION BY at all,
	// nothing bounds the function's values.
	partitionNDV := 1.0
	keysUnknown := true
	for _, k := range wf.PartitionBy {
		if cs := EstimateExpression(k, child); !cs.IsUnknown {
			keysUnknown = false
			partitionNDV = math.Max(partitionNDV, cs.NDV)
		}
	}
	if keysUnknown {
		return unbounded
	}

	switch fn := wf.Function.(type) {
	case *plan.AggregateCall:
		switch strings.ToLower(fn.Name) {
		case "count":
			return bounded
		case "min", "max":
			if len(fn.Args) > 0 {
				if arg := EstimateExpression(fn.Args[0], child); !arg.IsUnknown {
					arg.Count = rows
					arg.Histogram = nil
					return arg
				}
			}
		}
		return unbounded
	case *plan.Func:
		if rankFunctions[strings.ToLower(fn.Name)] {
			if rows >= 0 {
				bounded.NDV = math.Max(1, rows/partitionNDV)
			}
			return bounded
		}
	}
	return stats.UnknownForType(typ)
}

func (c *Calculator) generate(g *plan.Generate, child *stats.Statistics) *stats.Statistics {
	out := child.Clone()
	out.WidthInJoinCluster = 1
	count := child.RowCount
	if count >= 0 {
		count *= float64(len(g.Outputs)) * c.ctx.Session.GenerateStatsFactor
	}
	out.RowCount = count
	for _, col := range g.Outputs {
		out.SetColumn(col.ID, stats.ColumnStat{
			NDV:          math.Max(count, 1),
			MinValue:     math.Inf(-1),
			MaxValue:     math.Inf(1),
			AvgSizeBytes: col.Type.Width(),
			Count:        count,
		})
	}
	return out
}

func assertNumRows(a *plan.AssertNumRows, child *stats.Statistics) *stats.Statistics {
	rows, desired := child.RowCount, float64(a.DesiredCount)
	var n float64
	switch a.Assertion {
	case plan.AssertEQ:
		n = desired
	case plan.AssertNE:
		n = rows
	case plan.AssertGE:
		n = pick(rows >= desired, rows, desired)
	case plan.AssertGT:
		n = pick(rows > desired, rows, desired)
	case plan.AssertLE:
		n = pick(rows <= desired && rows >= 0, rows, desired)
	case plan.AssertLT:
		n = pick(rows < desired && rows >= 0, rows, desired)
	}
	out := child.WithRowCountAndEnforceValid(n)
	out.WidthInJoinCluster = 1
	return out
}

func pick(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}

func (c *Calculator) cteConsumer(cc *plan.CTEConsumer) (*stats.Statistics, error) {
	producer, ok := c.ctx.CTEStatistics(cc.ID)
	if !ok {
		return nil, crdberrors.AssertionFailedf("no statistics published by the producer of CTE %d", cc.ID)
	}
	out := stats.New(producer.RowCount, 1)
	for _, col := range cc.Outputs {
		cs := stats.UnknownForType(col.Type)
		if pc := cc.ProducerColumns[col.ID]; pc != nil {
			if pcs, ok := producer.Column(pc.ID); ok {
				cs = pcs
			}
		}
		out.SetColumn(col.ID, cs)
	}
	return out, nil
}

func repeat(r *plan.Repeat, child *stats.Statistics) *stats.Statistics {
	n := float64(len(r.GroupingSets))
	if n == 0 {
		n = 1
	}
	out := child.Clone()
	out.WidthInJoinCluster = 1
	if out.RowCount >= 0 {
		out.RowCount *= n
	}
	for _, id := range out.ColumnIDs() {
		cs, _ := out.Column(id)
		if cs.IsUnknown {
			continue
		}
		if cs.NumNulls >= 0 {
			cs.NumNulls *= n
		}
		if cs.Count >= 0 {
			cs.Count *= n
		}
		if cs.Histogram != nil {
			cs.Histogram = cs.Histogram.Scale(n)
		}
		out.SetColumn(id, cs)
	}
	return out
}

func oneRow(projections []plan.Projection) *stats.Statistics {
	out := stats.New(1, 1)
	input := stats.New(1, 1)
	for _, p := range projections {
		cs := EstimateExpression(p.Expr, input)
		if !cs.IsUnknown {
			cs.NDV = 1
			cs.Count = 1
			cs.NumNulls = math.Min(cs.NumNulls, 1)
		}
		out.SetColumn(p.Column.ID, cs)
	}
	return out
}

func emptyRelation(cols []*plan.Column) *stats.Statistics {
	out := stats.New(0, 1)
	for _, col := range cols {
		out.SetColumn(col.ID, stats.ColumnStat{
			MinValue: math.Inf(-1),
			MaxValue: math.Inf(1),
		})
	}
	return out
}

func (c *Calculator) setOperation(s *plan.SetOp, children []*stats.Statistics) (*stats.Statistics, error) {
	if len(s.ChildOutputs) == 0 {
		return nil, errors.InvalidPlanError("%s without children", s.Op)
	}
	for i, cols := range s.ChildOutputs {
		if len(cols) != len(s.Outputs) {
			return nil, errors.InvalidPlanError("%s child %d has %d columns, expected %d", s.Op, i, len(cols), len(s.Outputs))
		}
	}
	switch s.Op {
	case plan.Union:
		return c.union(s, children), nil
	case plan.Except:
		out := mapColumns(s.Outputs, s.ChildOutputs[0], children[0])
		out.RowCount = children[0].RowCount
		return out, nil
	default:
		return intersect(s, children), nil
	}
}

// mapColumns returns statistics holding the statistics of from under the
// ids of to.
func mapColumns(to, from []*plan.Column, src *stats.Statistics) *stats.Statistics {
	out := stats.New(src.RowCount, 1)
	for i, col := range to {
		cs, ok := src.Column(from[i].ID)
		if !ok {
			cs = stats.UnknownForType(col.Type)
		}
		out.SetColumn(col.ID, cs)
	}
	return out
}

func (c *Calculator) union(s *plan.SetOp, children []*stats.Statistics) *stats.Statistics {
	inputs := make([]*stats.Statistics, 0, len(children)+len(s.ConstantRows))
	for i, child := range children {
		inputs = append(inputs, mapColumns(s.Outputs, s.ChildOutputs[i], child))
	}
	for _, row := range s.ConstantRows {
		one := oneRow(row)
		cols := make([]*plan.Column, len(row))
		for i, p := range row {
			cols[i] = p.Column
		}
		inputs = append(inputs, mapColumns(s.Outputs, cols, one))
	}

	out := inputs[0].Clone()
	for _, in := range inputs[1:] {
		for _, col := range s.Outputs {
			l, _ := out.Column(col.ID)
			r, _ := in.Column(col.ID)
			out.SetColumn(col.ID, unionColumn(l, out.RowCount, r, in.RowCount, col.Type))
		}
		if out.RowCount < 0 || in.RowCount < 0 {
			out.RowCount = stats.UnknownRowCount
		} else {
			out.RowCount += in.RowCount
		}
	}
	out.WidthInJoinCluster = 1
	return out
}

// unionColumn merges the statistics of a column of two union inputs.
func unionColumn(l stats.ColumnStat, lRows float64, r stats.ColumnStat, rRows float64, typ types.DataType) stats.ColumnStat {
	if l.IsUnknown || r.IsUnknown {
		return l
	}
	rng := l.Range(typ).Union(r.Range(typ))
	out := stats.ColumnStat{
		NDV:        rng.NDV,
		MinValue:   rng.Low,
		MaxValue:   rng.High,
		MinLiteral: rng.LowLiteral,
		MaxLiteral: rng.HighLiteral,
		NumNulls:   l.NumNulls + r.NumNulls,
		Count:      stats.UnknownRowCount,
	}
	if lRows >= 0 && rRows >= 0 {
		out.Count = lRows + rRows
	}
	lNonNull := math.Max(0, lRows-l.NumNulls)
	rNonNull := math.Max(0, rRows-r.NumNulls)
	if total := lNonNull + rNonNull; total > 0 {
		out.AvgSizeBytes = (l.AvgSizeBytes*lNonNull + r.AvgSizeBytes*rNonNull) / total
	} else {
		out.AvgSizeBytes = math.Max(l.AvgSizeBytes, r.AvgSizeBytes)
	}
	return out
}

func intersect(s *plan.SetOp, children []*stats.Statistics) *stats.Statistics {
	rows := math.Inf(1)
	minProduct := math.Inf(1)
	for i, child := range children {
		if child.RowCount >= 0 {
			rows = math.Min(rows, child.RowCount)
		}
		product := 1.0
		for _, col := range s.ChildOutputs[i] {
			cs, ok := child.Column(col.ID)
			if !ok || cs.IsUnknown {
				product = math.Inf(1)
				break
			}
			product *= cs.NDV
		}
		minProduct = math.Min(minProduct, product)
	}
	rows = math.Min(rows, minProduct)
	if math.IsInf(rows, 1) {
		rows = stats.UnknownRowCount
	}
	out := mapColumns(s.Outputs, s.ChildOutputs[0], children[0])
	return out.WithRowCountAndEnforceValid(rows)
}
