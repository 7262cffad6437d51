package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/cardest/internal/sql/types"
)

// Expression is an unresolved scalar expression.
type Expression interface {
	expressionNode()
	String() string
}

// Literal represents a literal value. Type is set for typed literals such
// as DATE '2024-01-01' and nil otherwise.
type Literal struct {
	Value types.Value
	Type  types.DataType
}

func (l *Literal) expressionNode() {}
func (l *Literal) String() string {
	if l.Value.IsNull() {
		return "NULL"
	}

	switch v := l.Value.Data.(type) {
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''"))
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		if l.Type != nil && l.Type.ID() == types.DateID {
			return fmt.Sprintf("DATE '%s'", v.Format("2006-01-02"))
		}
		return fmt.Sprintf("TIMESTAMP '%s'", v.Format("2006-01-02 15:04:05"))
	default:
		return fmt.Sprintf("%v", l.Value.Data)
	}
}

// Identifier represents a possibly qualified column reference.
type Identifier struct {
	Name  string
	Table string // Optional relation qualifier
}

func (i *Identifier) expressionNode() {}
func (i *Identifier) String() string {
	if i.Table != "" {
		return fmt.Sprintf("%s.%s", i.Table, i.Name)
	}
	return i.Name
}

// Star represents the * in COUNT(*).
type Star struct{}

func (s *Star) expressionNode() {}
func (s *Star) String() string  { return "*" }

// BinaryExpr is an arithmetic expression or a conjunction/disjunction.
type BinaryExpr struct {
	Left     Expression
	Operator TokenType
	Right    Expression
}

func (b *BinaryExpr) expressionNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Operator.String(), b.Right.String())
}

// UnaryExpr is NOT or a sign.
type UnaryExpr struct {
	Operator TokenType
	Expr     Expression
}

func (u *UnaryExpr) expressionNode() {}
func (u *UnaryExpr) String() string {
	if u.Operator == TokenNot {
		return fmt.Sprintf("NOT %s", u.Expr.String())
	}
	return fmt.Sprintf("%s%s", u.Operator.String(), u.Expr.String())
}

// ComparisonExpr is a comparison or LIKE.
type ComparisonExpr struct {
	Left     Expression
	Operator TokenType
	Right    Expression
}

func (c *ComparisonExpr) expressionNode() {}
func (c *ComparisonExpr) String() string {
	return fmt.Sprintf("%s %s %s", c.Left.String(), c.Operator.String(), c.Right.String())
}

// InExpr represents [NOT] IN over a value list.
type InExpr struct {
	Expr   Expression
	Values []Expression
	Not    bool
}

func (i *InExpr) expressionNode() {}
func (i *InExpr) String() string {
	op := "IN"
	if i.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", i.Expr.String(), op, joinExpressions(i.Values))
}

// BetweenExpr represents [NOT] BETWEEN.
type BetweenExpr struct {
	Expr  Expression
	Lower Expression
	Upper Expression
	Not   bool
}

func (b *BetweenExpr) expressionNode() {}
func (b *BetweenExpr) String() string {
	op := "BETWEEN"
	if b.Not {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("%s %s %s AND %s", b.Expr.String(), op, b.Lower.String(), b.Upper.String())
}

// IsNullExpr represents IS [NOT] NULL.
type IsNullExpr struct {
	Expr Expression
	Not  bool
}

func (i *IsNullExpr) expressionNode() {}
func (i *IsNullExpr) String() string {
	if i.Not {
		return fmt.Sprintf("%s IS NOT NULL", i.Expr.String())
	}
	return fmt.Sprintf("%s IS NULL", i.Expr.String())
}

// CastExpr represents CAST(expr AS type).
type CastExpr struct {
	Expr       Expression
	TargetType types.DataType
}

func (c *CastExpr) expressionNode() {}
func (c *CastExpr) String() string {
	return fmt.Sprintf("CAST(%s AS %s)", c.Expr.String(), c.TargetType.Name())
}

// OrderByItem is one ORDER BY key of a window specification.
type OrderByItem struct {
	Expr Expression
	Desc bool
}

func (o OrderByItem) String() string {
	if o.Desc {
		return fmt.Sprintf("%s DESC", o.Expr.String())
	}
	return o.Expr.String()
}

// WindowSpec is the OVER clause of a window function call.
type WindowSpec struct {
	PartitionBy []Expression
	OrderBy     []OrderByItem
}

func (w *WindowSpec) String() string {
	var parts []string
	if len(w.PartitionBy) > 0 {
		parts = append(parts, "PARTITION BY "+joinExpressions(w.PartitionBy))
	}
	if len(w.OrderBy) > 0 {
		items := make([]string, len(w.OrderBy))
		for i, o := range w.OrderBy {
			items[i] = o.String()
		}
		parts = append(parts, "ORDER BY "+strings.Join(items, ", "))
	}
	return fmt.Sprintf("OVER (%s)", strings.Join(parts, " "))
}

// FunctionCall represents a scalar, aggregate or window function call.
// Name is upper-cased.
type FunctionCall struct {
	Name     string
	Args     []Expression
	Distinct bool
	Over     *WindowSpec
}

func (f *FunctionCall) expressionNode() {}
func (f *FunctionCall) String() string {
	distinct := ""
	if f.Distinct {
		distinct = "DISTINCT "
	}
	s := fmt.Sprintf("%s(%s%s)", f.Name, distinct, joinExpressions(f.Args))
	if f.Over != nil {
		s += " " + f.Over.String()
	}
	return s
}

func joinExpressions(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
