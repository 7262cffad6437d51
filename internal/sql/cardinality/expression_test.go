package cardinality

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
	"github.com/dshills/cardest/internal/sql/types"
)

func TestEstimateExpression(t *testing.T) {
	var alloc plan.ColumnAllocator
	a := intColumn(&alloc, "a")
	b := intColumn(&alloc, "b")
	u := intColumn(&alloc, "u")
	ts := alloc.NewColumn("ts", types.Timestamp)
	from := float64(time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC).UnixMicro())
	to := float64(time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC).UnixMicro())
	bcs := numeric(5, -3, 1, 100)
	bcs.NumNulls = 20
	input := withColumns(100, map[*plan.Column]stats.ColumnStat{
		a:  numeric(10, 1, 10, 100),
		b:  bcs,
		u:  stats.Unknown,
		ts: {NDV: 100, MinValue: from, MaxValue: to, AvgSizeBytes: 8, Count: 100},
	})

	tests := []struct {
		name   string
		expr   plan.Expression
		ndv    float64
		lo, hi float64
	}{
		{"column", ref(a), 10, 1, 10},
		{"literal", intLit(3), 1, 3, 3},
		{"add", &plan.Arithmetic{Op: plan.OpAdd, Left: ref(a), Right: ref(b)}, 14, -2, 11},
		{"subtract", &plan.Arithmetic{Op: plan.OpSubtract, Left: ref(a), Right: intLit(1)}, 10, 0, 9},
		{"multiply", &plan.Arithmetic{Op: plan.OpMultiply, Left: ref(a), Right: ref(b)}, 41, -30, 10},
		{"divide by range with zero", &plan.Arithmetic{Op: plan.OpDivide, Left: ref(a), Right: ref(b)}, 50, math.Inf(-1), math.Inf(1)},
		{"modulo", &plan.Arithmetic{Op: plan.OpModulo, Left: ref(a), Right: intLit(3)}, 4, 0, 3},
		{"comparison", cmp(plan.OpLess, ref(a), intLit(5)), 2, 0, 1},
		{"abs", &plan.Func{Name: "abs", Args: []plan.Expression{ref(b)}, ReturnType: types.Integer}, 5, 0, 3},
		{"negate", &plan.Func{Name: "negate", Args: []plan.Expression{ref(a)}, ReturnType: types.Integer}, 10, -10, -1},
		{"year", &plan.Func{Name: "year", Args: []plan.Expression{ref(ts)}, ReturnType: types.Integer}, 4, 2020, 2023},
		{"month", &plan.Func{Name: "month", Args: []plan.Expression{ref(ts)}, ReturnType: types.Integer}, 12, 1, 12},
		{"coalesce", &plan.Func{Name: "coalesce", Args: []plan.Expression{ref(b), ref(a)}, ReturnType: types.Integer}, 10, -3, 10},
		{"cast to double", &plan.Cast{Input: ref(a), Target: types.Double}, 10, 1, 10},
		{"cast to text", &plan.Cast{Input: ref(a), Target: types.Text}, 10, math.Inf(-1), math.Inf(1)},
		{"sum", &plan.AggregateCall{Name: "sum", Args: []plan.Expression{ref(a)}, ReturnType: types.BigInt}, 10, 1, 1000},
		{"count", &plan.AggregateCall{Name: "count", ReturnType: types.BigInt}, 100, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := EstimateExpression(tt.expr, input)
			require.False(t, cs.IsUnknown)
			assert.InDelta(t, tt.ndv, cs.NDV, 1e-9, "ndv")
			assert.Equal(t, tt.lo, cs.MinValue, "min")
			assert.Equal(t, tt.hi, cs.MaxValue, "max")
			assert.LessOrEqual(t, cs.NDV, input.RowCount)
		})
	}
}

func TestEstimateExpressionUnknown(t *testing.T) {
	var alloc plan.ColumnAllocator
	a := intColumn(&alloc, "a")
	u := intColumn(&alloc, "u")
	input := withColumns(100, map[*plan.Column]stats.ColumnStat{a: numeric(10, 1, 10, 100), u: stats.Unknown})

	for _, e := range []plan.Expression{
		ref(u),
		ref(intColumn(&alloc, "missing")),
		&plan.Arithmetic{Op: plan.OpAdd, Left: ref(a), Right: ref(u)},
		&plan.Func{Name: "abs", Args: []plan.Expression{ref(u)}, ReturnType: types.Integer},
		&plan.Cast{Input: ref(u), Target: types.BigInt},
		&plan.AggregateCall{Name: "max", Args: []plan.Expression{ref(u)}, ReturnType: types.Integer},
	} {
		assert.True(t, EstimateExpression(e, input).IsUnknown, e.String())
	}
}

func TestEstimateNullLiteral(t *testing.T) {
	cs := EstimateExpression(plan.NewLiteral(nil, types.Integer), stats.New(50, 1))
	assert.Equal(t, 0.0, cs.NDV)
	assert.Equal(t, 50.0, cs.NumNulls)
	assert.False(t, cs.IsUnknown)
}

func TestNewContextDefaults(t *testing.T) {
	ctx := NewContext(Session{}, nil, nil)
	assert.NotNil(t, ctx.Logger)
	assert.NotNil(t, ctx.Provider)
	assert.Equal(t, float64(DefaultGenerateStatsFactor), ctx.Session.GenerateStatsFactor)
	assert.Equal(t, DefaultMinSelectivity, ctx.Session.MinSelectivity)

	var alloc plan.ColumnAllocator
	col := intColumn(&alloc, "a")
	assert.False(t, ctx.IsKeyColumn(col.ID))
	ctx.AddKeyColumns(col)
	assert.True(t, ctx.IsKeyColumn(col.ID))

	_, ok := ctx.CTEStatistics(1)
	assert.False(t, ok)
	assert.Nil(t, ctx.ViewStatistics(1))
}
