package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/cardest/internal/catalog"
	"github.com/dshills/cardest/internal/sql/types"
)

func TestInputColumns(t *testing.T) {
	var alloc ColumnAllocator
	a := alloc.NewColumn("a", types.Integer)
	b := alloc.NewColumn("b", types.Integer)

	pred := &And{
		Left:  NewComparison(OpEqual, NewColumnRef(a), NewLiteral(int32(1), types.Integer)),
		Right: &Or{Left: NewComparison(OpLess, NewColumnRef(b), NewColumnRef(a)), Right: &IsNull{Input: NewColumnRef(b)}},
	}
	cols := InputColumns(pred)
	assert.Equal(t, []*Column{a, b}, cols)
	assert.Len(t, Conjuncts(pred), 2)
	assert.False(t, IsConstant(pred))
	assert.True(t, IsConstant(&Arithmetic{Op: OpAdd, Left: NewLiteral(int32(1), types.Integer), Right: NewLiteral(int32(2), types.Integer)}))
}

func TestExpressionString(t *testing.T) {
	var alloc ColumnAllocator
	a := alloc.NewColumn("a", types.Integer)
	e := &InList{Input: NewColumnRef(a), List: []Expression{NewLiteral(int32(1), types.Integer), NewLiteral("x", types.Text)}}
	assert.Equal(t, "a#1 IN (1, 'x')", e.String())

	w := &WindowFunc{
		Function:    &Func{Name: "rank", ReturnType: types.BigInt},
		PartitionBy: []Expression{NewColumnRef(a)},
	}
	assert.Equal(t, "rank() OVER (PARTITION BY a#1)", w.String())
	assert.Equal(t, types.BigInt, w.Type())
}

func TestCompareOpCommute(t *testing.T) {
	assert.Equal(t, OpGreater, OpLess.Commute())
	assert.Equal(t, OpLessEqual, OpGreaterEqual.Commute())
	assert.Equal(t, OpEqual, OpEqual.Commute())
}

func TestOutputColumns(t *testing.T) {
	var alloc ColumnAllocator
	tbl := &catalog.Table{ID: 7, TableName: "t", Columns: []*catalog.Column{{Name: "x", DataType: types.Integer}}}
	x := alloc.NewTableColumn(tbl, tbl.Columns[0])
	y := alloc.NewColumn("y", types.Integer)
	left, right := []*Column{x}, []*Column{y}

	assert.Equal(t, []*Column{x, y}, OutputColumns(&Join{Type: InnerJoin}, [][]*Column{left, right}))
	assert.Equal(t, left, OutputColumns(&Join{Type: LeftSemiJoin}, [][]*Column{left, right}))
	assert.Equal(t, right, OutputColumns(&Join{Type: RightAntiJoin}, [][]*Column{left, right}))
	assert.Equal(t, left, OutputColumns(&Filter{}, [][]*Column{left}))
	assert.Equal(t, right, OutputColumns(&CTEAnchor{}, [][]*Column{left, right}))

	assert.True(t, x.Visible())
	assert.False(t, y.Visible())
	assert.Equal(t, catalog.TableID(7), x.Origin.TableID)
	assert.Equal(t, "Join", KindJoin.String())
	assert.Equal(t, "LEFT SEMI", LeftSemiJoin.String())
}
