package memo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/stats"
	"github.com/dshills/cardest/internal/sql/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newScan(alloc *plan.ColumnAllocator) *plan.Scan {
	tbl := &catalog.Table{ID: 1, TableName: "t", Columns: []*catalog.Column{{Name: "a", DataType: types.Integer}}}
	return &plan.Scan{Table: tbl, Columns: []*plan.Column{alloc.NewTableColumn(tbl, tbl.Columns[0])}}
}

func TestAddGroupValidation(t *testing.T) {
	m := New()
	_, err := m.AddGroup(&plan.Filter{})
	assert.Error(t, err, "arity mismatch")

	_, err = m.AddGroup(&plan.Filter{}, 42)
	assert.Error(t, err, "missing child")

	_, err = m.AddToGroup(3, &plan.Limit{Limit: 1})
	assert.Error(t, err)
}

func TestMemoDeduplicatesExpressions(t *testing.T) {
	var alloc plan.ColumnAllocator
	m := New()
	scan := newScan(&alloc)
	scanExpr, err := m.AddGroup(scan)
	require.NoError(t, err)

	pred := plan.NewComparison(plan.OpEqual, plan.NewColumnRef(scan.Columns[0]), plan.NewLiteral(int32(5), types.Integer))
	f1, err := m.AddGroup(&plan.Filter{Conjuncts: []plan.Expression{pred}}, scanExpr.Group())
	require.NoError(t, err)
	f2, err := m.AddGroup(&plan.Filter{Conjuncts: []plan.Expression{pred}}, scanExpr.Group())
	require.NoError(t, err)

	assert.Same(t, f1, f2)
	assert.Equal(t, 2, m.NumGroups())
	assert.Equal(t, f1.Fingerprint(), f2.Fingerprint())

	limit, err := m.AddGroup(&plan.Limit{Limit: 5}, f1.Group())
	require.NoError(t, err)
	assert.NotEqual(t, limit.Fingerprint(), f1.Fingerprint())
	assert.Equal(t, scan.Columns, m.Group(limit.Group()).Output())

	alt, err := m.AddToGroup(limit.Group(), &plan.TopN{Limit: 5}, f1.Group())
	require.NoError(t, err)
	assert.Equal(t, limit.Group(), alt.Group())
	assert.Len(t, m.Group(limit.Group()).Expressions(), 2)
	assert.Equal(t, limit.Group(), m.Root())
}

func TestBottomUp(t *testing.T) {
	var alloc plan.ColumnAllocator
	m := New()
	left, err := m.AddGroup(newScan(&alloc))
	require.NoError(t, err)
	right, err := m.AddGroup(newScan(&alloc))
	require.NoError(t, err)
	join, err := m.AddGroup(&plan.Join{Type: plan.CrossJoin}, left.Group(), right.Group())
	require.NoError(t, err)
	require.NoError(t, m.SetRoot(join.Group()))

	order := m.BottomUp(m.Root())
	require.Len(t, order, 3)
	assert.Same(t, join, order[2])
	assert.Contains(t, m.String(), "G3: [Join G1 G2]")
}

func TestReconcile(t *testing.T) {
	var alloc plan.ColumnAllocator
	m := New()
	ge, err := m.AddGroup(newScan(&alloc))
	require.NoError(t, err)
	g := m.Group(ge.Group())

	first := stats.New(1000, 1)
	first.SetColumn(1, stats.ColumnStat{NDV: 100})
	stored := g.Reconcile(ge, first, true)
	assert.Equal(t, 1000.0, stored.RowCount)
	assert.True(t, g.StatsReliable())
	assert.True(t, ge.StatDerived())
	assert.Equal(t, 1000.0, ge.EstOutputRowCount())

	second := stats.New(10, 1)
	second.SetColumn(1, stats.ColumnStat{NDV: 20})
	stored = g.Reconcile(ge, second, false)
	assert.Equal(t, 1000.0, stored.RowCount, "row count is fixed by the first derivation")
	assert.Equal(t, 20.0, stored.ColumnOrUnknown(1).NDV)
	assert.True(t, g.StatsReliable())
	assert.Equal(t, 10.0, ge.EstOutputRowCount())

	third := stats.New(1000, 1)
	third.SetColumn(1, stats.ColumnStat{NDV: 90})
	stored = g.Reconcile(ge, third, true)
	assert.Equal(t, 20.0, stored.ColumnOrUnknown(1).NDV, "NDV never increases")

	// Idempotent for identical input.
	again := g.Reconcile(ge, stored, true)
	assert.True(t, again.Equal(stored))

	// Callers get copies.
	stored.SetColumn(1, stats.ColumnStat{NDV: 1})
	assert.Equal(t, 20.0, g.Statistics().ColumnOrUnknown(1).NDV)

	g.ResetStatistics()
	assert.False(t, g.HasStatistics())
	assert.False(t, ge.StatDerived())
	assert.Zero(t, ge.EstOutputRowCount())
}

func TestConcurrentReconcile(t *testing.T) {
	g := &Group{id: 1}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := stats.New(500, 1)
			s.SetColumn(7, stats.ColumnStat{NDV: float64(100 + i)})
			g.Reconcile(nil, s, true)
		}(i)
	}
	wg.Wait()

	got := g.Statistics()
	require.NotNil(t, got)
	assert.Equal(t, 100.0, got.ColumnOrUnknown(7).NDV)
	assert.Equal(t, 500.0, got.RowCount)
}
