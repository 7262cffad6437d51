package plan

import (
	"fmt"
	"strings"

	"github.com/dshills/cardest/internal/sql/types"
)

// Expression is a scalar expression. The set of implementations is closed;
// estimators switch over the concrete types.
type Expression interface {
	fmt.Stringer
	Type() types.DataType
	Children() []Expression
	isExpression()
}

// ColumnRef references a column produced by a child operator.
type ColumnRef struct {
	Column *Column
}

// Literal is a constant value.
type Literal struct {
	Value    types.Value
	DataType types.DataType
}

// Cast converts its input to another type.
type Cast struct {
	Input  Expression
	Target types.DataType
}

// ArithmeticOp is a binary arithmetic operator.
type ArithmeticOp int

const (
	OpAdd ArithmeticOp = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
)

func (op ArithmeticOp) String() string {
	return [...]string{"+", "-", "*", "/", "%"}[op]
}

// Arithmetic is a binary arithmetic expression.
type Arithmetic struct {
	Op          ArithmeticOp
	Left, Right Expression
}

// CompareOp is a comparison operator.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpNullSafeEqual
)

func (op CompareOp) String() string {
	return [...]string{"=", "<>", "<", "<=", ">", ">=", "<=>"}[op]
}

// Commute returns the operator that gives the same result with the operands
// swapped.
func (op CompareOp) Commute() CompareOp {
	switch op {
	case OpLess:
		return OpGreater
	case OpLessEqual:
		return OpGreaterEqual
	case OpGreater:
		return OpLess
	case OpGreaterEqual:
		return OpLessEqual
	default:
		return op
	}
}

// Comparison is a binary comparison.
type Comparison struct {
	Op          CompareOp
	Left, Right Expression
}

// And is a conjunction.
type And struct {
	Left, Right Expression
}

// Or is a disjunction.
type Or struct {
	Left, Right Expression
}

// Not negates its input.
type Not struct {
	Input Expression
}

// IsNull tests its input for NULL.
type IsNull struct {
	Input Expression
}

// InList tests membership of Input in List.
type InList struct {
	Input Expression
	List  []Expression
}

// Like matches Input against a pattern.
type Like struct {
	Input   Expression
	Pattern Expression
}

// Func is a scalar function call.
type Func struct {
	Name       string
	Args       []Expression
	ReturnType types.DataType
}

// AggregateCall is an aggregate function call inside an Aggregate or Window.
type AggregateCall struct {
	Name       string
	Args       []Expression
	Distinct   bool
	ReturnType types.DataType
}

// WindowFunc is a window function evaluated over partitions of its input.
type WindowFunc struct {
	// Function is an *AggregateCall for aggregate window functions or a *Func
	// for ranking functions such as rank or row_number.
	Function    Expression
	PartitionBy []Expression
	OrderBy     []Expression
}

func (*ColumnRef) isExpression()     {}
func (*Literal) isExpression()       {}
func (*Cast) isExpression()          {}
func (*Arithmetic) isExpression()    {}
func (*Comparison) isExpression()    {}
func (*And) isExpression()           {}
func (*Or) isExpression()            {}
func (*Not) isExpression()           {}
func (*IsNull) isExpression()        {}
func (*InList) isExpression()        {}
func (*Like) isExpression()          {}
func (*Func) isExpression()          {}
func (*AggregateCall) isExpression() {}
func (*WindowFunc) isExpression()    {}

func (e *ColumnRef) Type() types.DataType { return e.Column.Type }
func (e *Literal) Type() types.DataType {
	if e.DataType == nil {
		return types.Unknown
	}
	return e.DataType
}
func (e *Cast) Type() types.DataType { return e.Target }
func (e *Arithmetic) Type() types.DataType {
	if e.Op == OpDivide {
		return types.Double
	}
	return types.WiderOf(e.Left.Type(), e.Right.Type())
}
func (*Comparison) Type() types.DataType      { return types.Boolean }
func (*And) Type() types.DataType             { return types.Boolean }
func (*Or) Type() types.DataType              { return types.Boolean }
func (*Not) Type() types.DataType             { return types.Boolean }
func (*IsNull) Type() types.DataType          { return types.Boolean }
func (*InList) Type() types.DataType          { return types.Boolean }
func (*Like) Type() types.DataType            { return types.Boolean }
func (e *Func) Type() types.DataType          { return orUnknown(e.ReturnType) }
func (e *AggregateCall) Type() types.DataType { return orUnknown(e.ReturnType) }
func (e *WindowFunc) Type() types.DataType    { return e.Function.Type() }

func orUnknown(t types.DataType) types.DataType {
	if t == nil {
		return types.Unknown
	}
	return t
}

func (*ColumnRef) Children() []Expression       { return nil }
func (*Literal) Children() []Expression         { return nil }
func (e *Cast) Children() []Expression          { return []Expression{e.Input} }
func (e *Arithmetic) Children() []Expression    { return []Expression{e.Left, e.Right} }
func (e *Comparison) Children() []Expression    { return []Expression{e.Left, e.Right} }
func (e *And) Children() []Expression           { return []Expression{e.Left, e.Right} }
func (e *Or) Children() []Expression            { return []Expression{e.Left, e.Right} }
func (e *Not) Children() []Expression           { return []Expression{e.Input} }
func (e *IsNull) Children() []Expression        { return []Expression{e.Input} }
func (e *Like) Children() []Expression          { return []Expression{e.Input, e.Pattern} }
func (e *Func) Children() []Expression          { return e.Args }
func (e *AggregateCall) Children() []Expression { return e.Args }
func (e *InList) Children() []Expression {
	return append([]Expression{e.Input}, e.List...)
}
func (e *WindowFunc) Children() []Expression {
	out := []Expression{e.Function}
	out = append(out, e.PartitionBy...)
	return append(out, e.OrderBy...)
}

func (e *ColumnRef) String() string { return e.Column.String() }
func (e *Literal) String() string {
	if e.Value.IsNull() {
		return "NULL"
	}
	if s, ok := e.Value.Data.(string); ok {
		return "'" + s + "'"
	}
	return e.Value.String()
}
func (e *Cast) String() string { return fmt.Sprintf("CAST(%s AS %s)", e.Input, e.Target.Name()) }
func (e *Arithmetic) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}
func (e *Comparison) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}
func (e *And) String() string    { return fmt.Sprintf("(%s AND %s)", e.Left, e.Right) }
func (e *Or) String() string     { return fmt.Sprintf("(%s OR %s)", e.Left, e.Right) }
func (e *Not) String() string    { return fmt.Sprintf("NOT %s", e.Input) }
func (e *IsNull) String() string { return fmt.Sprintf("%s IS NULL", e.Input) }
func (e *Like) String() string   { return fmt.Sprintf("%s LIKE %s", e.Input, e.Pattern) }
func (e *InList) String() string {
	return fmt.Sprintf("%s IN (%s)", e.Input, joinExprs(e.List))
}
func (e *Func) String() string { return fmt.Sprintf("%s(%s)", e.Name, joinExprs(e.Args)) }
func (e *AggregateCall) String() string {
	if e.Distinct {
		return fmt.Sprintf("%s(DISTINCT %s)", e.Name, joinExprs(e.Args))
	}
	return fmt.Sprintf("%s(%s)", e.Name, joinExprs(e.Args))
}
func (e *WindowFunc) String() string {
	var sb strings.Builder
	sb.WriteString(e.Function.String())
	sb.WriteString(" OVER (")
	if len(e.PartitionBy) > 0 {
		sb.WriteString("PARTITION BY ")
		sb.WriteString(joinExprs(e.PartitionBy))
	}
	if len(e.OrderBy) > 0 {
		if len(e.PartitionBy) > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("ORDER BY ")
		sb.WriteString(joinExprs(e.OrderBy))
	}
	sb.WriteString(")")
	return sb.String()
}

func joinExprs(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// NewColumnRef returns a reference to c.
func NewColumnRef(c *Column) *ColumnRef { return &ColumnRef{Column: c} }

// NewLiteral returns a literal of type typ.
func NewLiteral(data interface{}, typ types.DataType) *Literal {
	if data == nil {
		return &Literal{Value: types.NewNullValue(), DataType: typ}
	}
	return &Literal{Value: types.NewValue(data), DataType: typ}
}

// NewComparison returns left op right.
func NewComparison(op CompareOp, left, right Expression) *Comparison {
	return &Comparison{Op: op, Left: left, Right: right}
}

// Walk calls fn for e and every descendant in pre-order. Returning false from
// fn skips the children of the visited node.
func Walk(e Expression, fn func(Expression) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range e.Children() {
		Walk(c, fn)
	}
}

// InputColumns returns the distinct columns referenced by exprs, in first
// appearance order.
func InputColumns(exprs ...Expression) []*Column {
	seen := make(ColumnSet)
	var out []*Column
	for _, e := range exprs {
		Walk(e, func(n Expression) bool {
			if ref, ok := n.(*ColumnRef); ok && !seen.Contains(ref.Column.ID) {
				seen.Add(ref.Column.ID)
				out = append(out, ref.Column)
			}
			return true
		})
	}
	return out
}

// Conjuncts flattens nested ANDs.
func Conjuncts(e Expression) []Expression {
	if and, ok := e.(*And); ok {
		return append(Conjuncts(and.Left), Conjuncts(and.Right)...)
	}
	return []Expression{e}
}

// IsConstant reports whether e references no columns.
func IsConstant(e Expression) bool {
	constant := true
	Walk(e, func(n Expression) bool {
		switch n.(type) {
		case *ColumnRef, *AggregateCall, *WindowFunc:
			constant = false
		}
		return constant
	})
	return constant
}
