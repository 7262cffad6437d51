package cardinality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
)

type joinFixture struct {
	l, r        *plan.Column
	left, right *stats.Statistics
}

// newJoinFixture returns a 1000 row left input with a key of 1000
// distinct values and a 10 row right input with 10 distinct keys.
func newJoinFixture() joinFixture {
	var alloc plan.ColumnAllocator
	l := intColumn(&alloc, "l")
	r := intColumn(&alloc, "r")
	return joinFixture{
		l:     l,
		r:     r,
		left:  withColumns(1000, map[*plan.Column]stats.ColumnStat{l: numeric(1000, 1, 1000, 1000)}),
		right: withColumns(10, map[*plan.Column]stats.ColumnStat{r: numeric(10, 1, 10, 10)}),
	}
}

func (f joinFixture) join(typ plan.JoinType) *plan.Join {
	return &plan.Join{Type: typ, EqualConditions: []*plan.Comparison{cmp(plan.OpEqual, ref(f.l), ref(f.r))}}
}

func TestInnerJoin(t *testing.T) {
	f := newJoinFixture()
	ctx, _ := newTestContext()
	je := NewJoinEstimator(ctx)

	out := je.Estimate(f.left, f.right, f.join(plan.InnerJoin))
	assert.InDelta(t, 10, out.RowCount, 1e-9)
	assert.Equal(t, 2, out.WidthInJoinCluster)

	lcs, ok := out.Column(f.l.ID)
	require.True(t, ok)
	assert.LessOrEqual(t, lcs.NDV, 10.0)
	assert.Equal(t, 1.0, lcs.MinValue)
	assert.Equal(t, 10.0, lcs.MaxValue)

	// Condition sides are oriented by the columns they read.
	swapped := &plan.Join{Type: plan.InnerJoin, EqualConditions: []*plan.Comparison{cmp(plan.OpEqual, ref(f.r), ref(f.l))}}
	assert.InDelta(t, 10, je.Estimate(f.left, f.right, swapped).RowCount, 1e-9)
}

func TestCrossJoinAndOtherConditions(t *testing.T) {
	f := newJoinFixture()
	ctx, _ := newTestContext()
	je := NewJoinEstimator(ctx)

	cross := je.Estimate(f.left, f.right, &plan.Join{Type: plan.CrossJoin})
	assert.Equal(t, 10000.0, cross.RowCount)

	filtered := je.Estimate(f.left, f.right, &plan.Join{
		Type:            plan.InnerJoin,
		OtherConditions: []plan.Expression{cmp(plan.OpGreater, ref(f.l), intLit(500))},
	})
	assert.InDelta(t, 10000*500/999.0, filtered.RowCount, 1e-6)
}

func TestJoinUnknownInputs(t *testing.T) {
	f := newJoinFixture()
	ctx, _ := newTestContext()
	je := NewJoinEstimator(ctx)

	unknownRows := f.left.Clone()
	unknownRows.RowCount = stats.UnknownRowCount
	assert.Equal(t, stats.UnknownRowCount, je.Estimate(unknownRows, f.right, f.join(plan.InnerJoin)).RowCount)

	// An unknown key counts as distinct on every row of its side.
	unknownKey := withColumns(1000, map[*plan.Column]stats.ColumnStat{f.l: stats.Unknown})
	assert.InDelta(t, 10, je.Estimate(unknownKey, f.right, f.join(plan.InnerJoin)).RowCount, 1e-9)
}

func TestCorrelatedJoinKeys(t *testing.T) {
	var alloc plan.ColumnAllocator
	a := intColumn(&alloc, "a")
	a.Origin = &plan.Origin{TableID: 1, Column: "a"}
	x := intColumn(&alloc, "x")
	y := intColumn(&alloc, "y")
	left := withColumns(1000, map[*plan.Column]stats.ColumnStat{a: numeric(100, 1, 100, 1000)})
	right := withColumns(500, map[*plan.Column]stats.ColumnStat{
		x: numeric(10, 1, 10, 500),
		y: numeric(50, 1, 50, 500),
	})
	ctx, _ := newTestContext()

	out := NewJoinEstimator(ctx).Estimate(left, right, &plan.Join{
		Type: plan.InnerJoin,
		EqualConditions: []*plan.Comparison{
			cmp(plan.OpEqual, ref(a), ref(x)),
			cmp(plan.OpEqual, ref(a), ref(y)),
		},
	})
	// Both conditions read a; only the most selective one counts.
	assert.InDelta(t, 1000*500/100.0, out.RowCount, 1e-6)
}

func TestSelfJoinKeysAreIndependent(t *testing.T) {
	var alloc plan.ColumnAllocator
	read := func(rel plan.RelationID, name string) *plan.Column {
		c := intColumn(&alloc, name)
		c.Origin = &plan.Origin{Relation: rel, TableID: 7, Column: name}
		return c
	}
	xa, xb := read(1, "a"), read(1, "b")
	ya, yb := read(2, "a"), read(2, "b")
	left := withColumns(1000, map[*plan.Column]stats.ColumnStat{
		xa: numeric(100, 1, 100, 1000),
		xb: numeric(100, 1, 100, 1000),
	})
	right := withColumns(1000, map[*plan.Column]stats.ColumnStat{
		ya: numeric(100, 1, 100, 1000),
		yb: numeric(100, 1, 100, 1000),
	})
	ctx, _ := newTestContext()

	out := NewJoinEstimator(ctx).Estimate(left, right, &plan.Join{
		Type: plan.InnerJoin,
		EqualConditions: []*plan.Comparison{
			cmp(plan.OpEqual, ref(xa), ref(yb)),
			cmp(plan.OpEqual, ref(xb), ref(ya)),
		},
	})
	// x.a and y.a are different reads of table 7.
	assert.InDelta(t, 1000*1000/100.0/100.0, out.RowCount, 1e-6)
}

func TestOuterJoins(t *testing.T) {
	f := newJoinFixture()
	ctx, _ := newTestContext()
	je := NewJoinEstimator(ctx)

	left := je.Estimate(f.left, f.right, f.join(plan.LeftOuterJoin))
	assert.Equal(t, 1000.0, left.RowCount)
	rcs, _ := left.Column(f.r.ID)
	assert.InDelta(t, 990, rcs.NumNulls, 1e-9)

	right := je.Estimate(f.left, f.right, f.join(plan.RightOuterJoin))
	assert.InDelta(t, 10, right.RowCount, 1e-9)

	full := je.Estimate(f.left, f.right, f.join(plan.FullOuterJoin))
	assert.Equal(t, 1000.0, full.RowCount)
}

func TestSemiAndAntiJoins(t *testing.T) {
	var alloc plan.ColumnAllocator
	l := intColumn(&alloc, "l")
	r := intColumn(&alloc, "r")
	left := withColumns(1000, map[*plan.Column]stats.ColumnStat{l: numeric(100, 1, 100, 1000)})
	right := withColumns(50, map[*plan.Column]stats.ColumnStat{r: numeric(10, 1, 10, 50)})
	conds := []*plan.Comparison{cmp(plan.OpEqual, ref(l), ref(r))}
	ctx, _ := newTestContext()
	je := NewJoinEstimator(ctx)

	semi := je.Estimate(left, right, &plan.Join{Type: plan.LeftSemiJoin, EqualConditions: conds})
	assert.InDelta(t, 100, semi.RowCount, 1e-9)
	assert.False(t, semi.HasColumn(r.ID))
	lcs, _ := semi.Column(l.ID)
	assert.LessOrEqual(t, lcs.NDV, 10.0)

	anti := je.Estimate(left, right, &plan.Join{Type: plan.LeftAntiJoin, EqualConditions: conds})
	assert.InDelta(t, 900, anti.RowCount, 1e-9)

	rightSemi := je.Estimate(left, right, &plan.Join{Type: plan.RightSemiJoin, EqualConditions: conds})
	assert.InDelta(t, 50, rightSemi.RowCount, 1e-9)
	assert.False(t, rightSemi.HasColumn(l.ID))

	empty := stats.New(0, 1)
	empty.SetColumn(r.ID, numeric(0, 1, 10, 0))
	assert.InDelta(t, 1000, je.Estimate(left, empty, &plan.Join{Type: plan.LeftAntiJoin, EqualConditions: conds}).RowCount, 1e-9)
	assert.Equal(t, 0.0, je.Estimate(left, empty, &plan.Join{Type: plan.LeftSemiJoin, EqualConditions: conds}).RowCount)
}

func TestJoinKeyNDVBound(t *testing.T) {
	f := newJoinFixture()
	ctx, _ := newTestContext()
	je := NewJoinEstimator(ctx)

	for _, typ := range []plan.JoinType{plan.InnerJoin, plan.LeftOuterJoin, plan.RightOuterJoin, plan.FullOuterJoin, plan.LeftSemiJoin} {
		t.Run(typ.String(), func(t *testing.T) {
			out := je.Estimate(f.left, f.right, f.join(typ))
			cs, ok := out.Column(f.l.ID)
			require.True(t, ok)
			assert.LessOrEqual(t, cs.NDV, 10.0)
		})
	}
}
