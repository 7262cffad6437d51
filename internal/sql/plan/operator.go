package plan

import (
	"fmt"

	"github.com/dshills/cardest/internal/catalog"
)

// OperatorKind enumerates the relational operators known to the optimizer.
type OperatorKind int

const (
	KindScan OperatorKind = iota
	KindFilter
	KindProject
	KindAggregate
	KindJoin
	KindSetOp
	KindTopN
	KindLimit
	KindPartitionTopN
	KindWindow
	KindGenerate
	KindAssertNumRows
	KindCTEProducer
	KindCTEConsumer
	KindCTEAnchor
	KindSort
	KindRepeat
	KindOneRowRelation
	KindEmptyRelation
	KindExchange
	KindSink
)

var operatorKindNames = [...]string{
	KindScan:           "Scan",
	KindFilter:         "Filter",
	KindProject:        "Project",
	KindAggregate:      "Aggregate",
	KindJoin:           "Join",
	KindSetOp:          "SetOperation",
	KindTopN:           "TopN",
	KindLimit:          "Limit",
	KindPartitionTopN:  "PartitionTopN",
	KindWindow:         "Window",
	KindGenerate:       "Generate",
	KindAssertNumRows:  "AssertNumRows",
	KindCTEProducer:    "CTEProducer",
	KindCTEConsumer:    "CTEConsumer",
	KindCTEAnchor:      "CTEAnchor",
	KindSort:           "Sort",
	KindRepeat:         "Repeat",
	KindOneRowRelation: "OneRowRelation",
	KindEmptyRelation:  "EmptyRelation",
	KindExchange:       "Exchange",
	KindSink:           "Sink",
}

func (k OperatorKind) String() string {
	if int(k) < len(operatorKindNames) {
		return operatorKindNames[k]
	}
	return fmt.Sprintf("OperatorKind(%d)", int(k))
}

// Operator is one relational operator. Children are not stored on the
// operator; the memo keeps them as group ids.
type Operator interface {
	Kind() OperatorKind
	// Arity is the number of children the operator expects.
	Arity() int
	// Expressions returns the scalar expressions evaluated by the operator.
	Expressions() []Expression
	isOperator()
}

// RelationID identifies one occurrence of a relation within a query.
type RelationID int

// Scan reads a base table, possibly through a materialized index and
// possibly restricted to a subset of partitions.
type Scan struct {
	Table      *catalog.Table
	RelationID RelationID
	Columns    []*Column
	// SelectedIndexID is the index (or materialized index) chosen for the
	// scan; zero means the base index.
	SelectedIndexID catalog.IndexID
	// SelectedPartitions lists the partitions left after pruning. Nil means
	// every partition is read.
	SelectedPartitions []catalog.PartitionID
}

// Filter keeps rows satisfying every conjunct.
type Filter struct {
	Conjuncts []Expression
}

// Projection binds an expression to an output column.
type Projection struct {
	Column *Column
	Expr   Expression
}

// Project computes a new set of columns.
type Project struct {
	Projections []Projection
}

// Aggregate groups its input.
type Aggregate struct {
	GroupBy []Expression
	// Outputs holds both pass-through grouping columns and aggregate calls.
	Outputs []Projection
}

// JoinType is the join variant.
type JoinType int

const (
	InnerJoin JoinType = iota
	CrossJoin
	LeftOuterJoin
	RightOuterJoin
	FullOuterJoin
	LeftSemiJoin
	RightSemiJoin
	LeftAntiJoin
	RightAntiJoin
	NullAwareLeftAntiJoin
)

var joinTypeNames = [...]string{
	InnerJoin:             "INNER",
	CrossJoin:             "CROSS",
	LeftOuterJoin:         "LEFT OUTER",
	RightOuterJoin:        "RIGHT OUTER",
	FullOuterJoin:         "FULL OUTER",
	LeftSemiJoin:          "LEFT SEMI",
	RightSemiJoin:         "RIGHT SEMI",
	LeftAntiJoin:          "LEFT ANTI",
	RightAntiJoin:         "RIGHT ANTI",
	NullAwareLeftAntiJoin: "NULL AWARE LEFT ANTI",
}

func (t JoinType) String() string {
	if int(t) < len(joinTypeNames) {
		return joinTypeNames[t]
	}
	return fmt.Sprintf("JoinType(%d)", int(t))
}

// IsSemiOrAnti reports whether only one side's columns are produced.
func (t JoinType) IsSemiOrAnti() bool {
	switch t {
	case LeftSemiJoin, RightSemiJoin, LeftAntiJoin, RightAntiJoin, NullAwareLeftAntiJoin:
		return true
	}
	return false
}

// IsAnti reports whether t is an anti join.
func (t JoinType) IsAnti() bool {
	return t == LeftAntiJoin || t == RightAntiJoin || t == NullAwareLeftAntiJoin
}

// PreservesLeft reports whether output rows come from the left side only.
func (t JoinType) PreservesLeft() bool {
	return t == LeftSemiJoin || t == LeftAntiJoin || t == NullAwareLeftAntiJoin
}

// Join combines two inputs.
type Join struct {
	Type JoinType
	// EqualConditions are equalities whose left operand references only the
	// left child and whose right operand references only the right child.
	EqualConditions []*Comparison
	OtherConditions []Expression
}

// SetOpKind is the set operation variant.
type SetOpKind int

const (
	Union SetOpKind = iota
	Except
	Intersect
)

func (k SetOpKind) String() string {
	return [...]string{"UNION", "EXCEPT", "INTERSECT"}[k]
}

// SetOp is UNION, EXCEPT or INTERSECT over any number of children.
type SetOp struct {
	Op       SetOpKind
	Distinct bool
	Outputs  []*Column
	// ChildOutputs[i][j] is the column of child i feeding Outputs[j].
	ChildOutputs [][]*Column
	// ConstantRows are extra literal rows of a UNION, one projection per
	// output column.
	ConstantRows [][]Projection
}

// TopN returns the first rows of the sorted input.
type TopN struct {
	Limit   int64
	Offset  int64
	OrderBy []Expression
}

// Limit returns the first rows of its input.
type Limit struct {
	Limit  int64
	Offset int64
}

// PartitionTopN keeps the first rows of every partition.
type PartitionTopN struct {
	PartitionBy    []Expression
	OrderBy        []Expression
	PartitionLimit int64
	// HasGlobalLimit is set when the operator feeds a global limit.
	HasGlobalLimit bool
}

// Window computes window functions over its input.
type Window struct {
	// Functions bind each *WindowFunc to its output column.
	Functions []Projection
}

// Generate expands each input row through table generating functions.
type Generate struct {
	Generators []Expression
	Outputs    []*Column
}

// Assertion is the comparison checked by AssertNumRows.
type Assertion int

const (
	AssertEQ Assertion = iota
	AssertNE
	AssertLT
	AssertLE
	AssertGT
	AssertGE
)

func (a Assertion) String() string {
	return [...]string{"EQ", "NE", "LT", "LE", "GT", "GE"}[a]
}

// AssertNumRows fails the query unless its input row count satisfies the
// assertion.
type AssertNumRows struct {
	Assertion    Assertion
	DesiredCount int64
}

// CTEID identifies a shared sub-plan.
type CTEID int

// CTEProducer computes a shared sub-plan once.
type CTEProducer struct {
	ID CTEID
}

// CTEConsumer reads the output of a CTEProducer.
type CTEConsumer struct {
	ID CTEID
	// Outputs are the consumer's columns; ProducerColumns maps each of them
	// to the producer column it reads.
	Outputs         []*Column
	ProducerColumns map[ColumnID]*Column
}

// CTEAnchor scopes a CTE: child 0 is the producer, child 1 the consumer side.
type CTEAnchor struct {
	ID CTEID
}

// Sort orders its input.
type Sort struct {
	OrderBy []Expression
}

// Repeat replicates its input once per grouping set.
type Repeat struct {
	GroupingSets [][]Expression
}

// OneRowRelation produces a single row of constants.
type OneRowRelation struct {
	Projections []Projection
}

// EmptyRelation produces no rows.
type EmptyRelation struct {
	Columns []*Column
}

// Exchange redistributes rows between fragments.
type Exchange struct{}

// Sink writes its input to a destination.
type Sink struct{}

func (*Scan) isOperator()           {}
func (*Filter) isOperator()         {}
func (*Project) isOperator()        {}
func (*Aggregate) isOperator()      {}
func (*Join) isOperator()           {}
func (*SetOp) isOperator()          {}
func (*TopN) isOperator()           {}
func (*Limit) isOperator()          {}
func (*PartitionTopN) isOperator()  {}
func (*Window) isOperator()         {}
func (*Generate) isOperator()       {}
func (*AssertNumRows) isOperator()  {}
func (*CTEProducer) isOperator()    {}
func (*CTEConsumer) isOperator()    {}
func (*CTEAnchor) isOperator()      {}
func (*Sort) isOperator()           {}
func (*Repeat) isOperator()         {}
func (*OneRowRelation) isOperator() {}
func (*EmptyRelation) isOperator()  {}
func (*Exchange) isOperator()       {}
func (*Sink) isOperator()           {}

func (*Scan) Kind() OperatorKind           { return KindScan }
func (*Filter) Kind() OperatorKind         { return KindFilter }
func (*Project) Kind() OperatorKind        { return KindProject }
func (*Aggregate) Kind() OperatorKind      { return KindAggregate }
func (*Join) Kind() OperatorKind           { return KindJoin }
func (*SetOp) Kind() OperatorKind          { return KindSetOp }
func (*TopN) Kind() OperatorKind           { return KindTopN }
func (*Limit) Kind() OperatorKind          { return KindLimit }
func (*PartitionTopN) Kind() OperatorKind  { return KindPartitionTopN }
func (*Window) Kind() OperatorKind         { return KindWindow }
func (*Generate) Kind() OperatorKind       { return KindGenerate }
func (*AssertNumRows) Kind() OperatorKind  { return KindAssertNumRows }
func (*CTEProducer) Kind() OperatorKind    { return KindCTEProducer }
func (*CTEConsumer) Kind() OperatorKind    { return KindCTEConsumer }
func (*CTEAnchor) Kind() OperatorKind      { return KindCTEAnchor }
func (*Sort) Kind() OperatorKind           { return KindSort }
func (*Repeat) Kind() OperatorKind         { return KindRepeat }
func (*OneRowRelation) Kind() OperatorKind { return KindOneRowRelation }
func (*EmptyRelation) Kind() OperatorKind  { return KindEmptyRelation }
func (*Exchange) Kind() OperatorKind       { return KindExchange }
func (*Sink) Kind() OperatorKind           { return KindSink }

func (*Scan) Arity() int           { return 0 }
func (*Filter) Arity() int         { return 1 }
func (*Project) Arity() int        { return 1 }
func (*Aggregate) Arity() int      { return 1 }
func (*Join) Arity() int           { return 2 }
func (s *SetOp) Arity() int        { return len(s.ChildOutputs) }
func (*TopN) Arity() int           { return 1 }
func (*Limit) Arity() int          { return 1 }
func (*PartitionTopN) Arity() int  { return 1 }
func (*Window) Arity() int         { return 1 }
func (*Generate) Arity() int       { return 1 }
func (*AssertNumRows) Arity() int  { return 1 }
func (*CTEProducer) Arity() int    { return 1 }
func (*CTEConsumer) Arity() int    { return 0 }
func (*CTEAnchor) Arity() int      { return 2 }
func (*Sort) Arity() int           { return 1 }
func (*Repeat) Arity() int         { return 1 }
func (*OneRowRelation) Arity() int { return 0 }
func (*EmptyRelation) Arity() int  { return 0 }
func (*Exchange) Arity() int       { return 1 }
func (*Sink) Arity() int           { return 1 }

func (*Scan) Expressions() []Expression     { return nil }
func (f *Filter) Expressions() []Expression { return f.Conjuncts }
func (p *Project) Expressions() []Expression {
	return projectionExprs(p.Projections)
}
func (a *Aggregate) Expressions() []Expression {
	return append(append([]Expression{}, a.GroupBy...), projectionExprs(a.Outputs)...)
}
func (j *Join) Expressions() []Expression {
	out := make([]Expression, 0, len(j.EqualConditions)+len(j.OtherConditions))
	for _, c := range j.EqualConditions {
		out = append(out, c)
	}
	return append(out, j.OtherConditions...)
}
func (*SetOp) Expressions() []Expression  { return nil }
func (t *TopN) Expressions() []Expression { return t.OrderBy }
func (*Limit) Expressions() []Expression  { return nil }
func (p *PartitionTopN) Expressions() []Expression {
	return append(append([]Expression{}, p.PartitionBy...), p.OrderBy...)
}
func (w *Window) Expressions() []Expression      { return projectionExprs(w.Functions) }
func (g *Generate) Expressions() []Expression    { return g.Generators }
func (*AssertNumRows) Expressions() []Expression { return nil }
func (*CTEProducer) Expressions() []Expression   { return nil }
func (*CTEConsumer) Expressions() []Expression   { return nil }
func (*CTEAnchor) Expressions() []Expression     { return nil }
func (s *Sort) Expressions() []Expression        { return s.OrderBy }
func (r *Repeat) Expressions() []Expression {
	var out []Expression
	for _, set := range r.GroupingSets {
		out = append(out, set...)
	}
	return out
}
func (o *OneRowRelation) Expressions() []Expression { return projectionExprs(o.Projections) }
func (*EmptyRelation) Expressions() []Expression    { return nil }
func (*Exchange) Expressions() []Expression         { return nil }
func (*Sink) Expressions() []Expression             { return nil }

func projectionExprs(ps []Projection) []Expression {
	out := make([]Expression, len(ps))
	for i, p := range ps {
		out[i] = p.Expr
	}
	return out
}

func projectionColumns(ps []Projection) []*Column {
	out := make([]*Column, len(ps))
	for i, p := range ps {
		out[i] = p.Column
	}
	return out
}

// OutputColumns derives the columns produced by op from the outputs of its
// children.
func OutputColumns(op Operator, children [][]*Column) []*Column {
	child := func(i int) []*Column {
		if i < len(children) {
			return children[i]
		}
		return nil
	}
	switch o := op.(type) {
	case *Scan:
		return o.Columns
	case *Project:
		return projectionColumns(o.Projections)
	case *Aggregate:
		return projectionColumns(o.Outputs)
	case *Join:
		switch {
		case o.Type.PreservesLeft():
			return child(0)
		case o.Type.IsSemiOrAnti():
			return child(1)
		}
		return append(append([]*Column{}, child(0)...), child(1)...)
	case *SetOp:
		return o.Outputs
	case *Window:
		return append(append([]*Column{}, child(0)...), projectionColumns(o.Functions)...)
	case *Generate:
		return append(append([]*Column{}, child(0)...), o.Outputs...)
	case *CTEConsumer:
		return o.Outputs
	case *CTEAnchor:
		return child(1)
	case *OneRowRelation:
		return projectionColumns(o.Projections)
	case *EmptyRelation:
		return o.Columns
	default:
		return child(0)
	}
}
