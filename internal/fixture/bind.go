package fixture

import (
	"strings"

	"github.com/cockroachdb/errors"

	cerrors "github.com/dshills/cardest/internal/errors"
	"github.com/dshills/cardest/internal/sql/parser"
	"github.com/dshills/cardest/internal/sql/plan"
	"github.com/dshills/cardest/internal/sql/types"
)

// scopeColumn is a column visible to expressions, with the relation name
// it can be qualified by.
type scopeColumn struct {
	qualifier string
	col       *plan.Column
}

type scope []scopeColumn

func newScope(qualifier string, cols []*plan.Column) scope {
	s := make(scope, len(cols))
	for i, c := range cols {
		s[i] = scopeColumn{qualifier: qualifier, col: c}
	}
	return s
}

func (s scope) columns() []*plan.Column {
	out := make([]*plan.Column, len(s))
	for i, sc := range s {
		out[i] = sc.col
	}
	return out
}

// requalify returns s with every column qualified by name. An empty name
// keeps the current qualifiers.
func (s scope) requalify(name string) scope {
	if name == "" {
		return s
	}
	return newScope(name, s.columns())
}

func (s scope) resolve(id *parser.Identifier) (*plan.Column, error) {
	var found *plan.Column
	for _, sc := range s {
		if !strings.EqualFold(sc.col.Name, id.Name) {
			continue
		}
		if id.Table != "" && !strings.EqualFold(sc.qualifier, id.Table) {
			continue
		}
		if found != nil && found != sc.col {
			return nil, errors.Newf("column reference %q is ambiguous", id)
		}
		found = sc.col
	}
	if found == nil {
		return nil, cerrors.UndefinedColumnError(id.Name, id.Table)
	}
	return found, nil
}

var aggregateFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"any_value": true, "stddev": true, "variance": true,
}

var rankingFunctions = map[string]bool{
	"rank": true, "dense_rank": true, "row_number": true, "ntile": true,
	"percent_rank": true, "cume_dist": true,
}

// binder resolves parsed expressions against a scope.
type binder struct {
	scope scope
	// aggregates allows aggregate calls; windows allows OVER clauses.
	aggregates bool
	windows    bool
}

func (b *binder) bindString(input string) (plan.Expression, error) {
	ast, err := parser.ParseExpression(input)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", input)
	}
	e, err := b.bind(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "binding %q", input)
	}
	return e, nil
}

func (b *binder) bindAll(inputs []string) ([]plan.Expression, error) {
	out := make([]plan.Expression, 0, len(inputs))
	for _, in := range inputs {
		e, err := b.bindString(in)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *binder) bind(e parser.Expression) (plan.Expression, error) {
	switch e := e.(type) {
	case *parser.Identifier:
		col, err := b.scope.resolve(e)
		if err != nil {
			return nil, err
		}
		return plan.NewColumnRef(col), nil

	case *parser.Literal:
		return bindLiteral(e), nil

	case *parser.BinaryExpr:
		left, err := b.bind(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.bind(e.Right)
		if err != nil {
			return nil, err
		}
		switch e.Operator { //nolint:exhaustive
		case parser.TokenAnd:
			return &plan.And{Left: left, Right: right}, nil
		case parser.TokenOr:
			return &plan.Or{Left: left, Right: right}, nil
		case parser.TokenPlus:
			return &plan.Arithmetic{Op: plan.OpAdd, Left: left, Right: right}, nil
		case parser.TokenMinus:
			return &plan.Arithmetic{Op: plan.OpSubtract, Left: left, Right: right}, nil
		case parser.TokenStar:
			return &plan.Arithmetic{Op: plan.OpMultiply, Left: left, Right: right}, nil
		case parser.TokenSlash:
			return &plan.Arithmetic{Op: plan.OpDivide, Left: left, Right: right}, nil
		case parser.TokenPercent:
			return &plan.Arithmetic{Op: plan.OpModulo, Left: left, Right: right}, nil
		}
		return nil, errors.Newf("unsupported operator %s", e.Operator)

	case *parser.UnaryExpr:
		input, err := b.bind(e.Expr)
		if err != nil {
			return nil, err
		}
		if e.Operator == parser.TokenNot {
			return &plan.Not{Input: input}, nil
		}
		zero := plan.NewLiteral(int64(0), types.BigInt)
		return &plan.Arithmetic{Op: plan.OpSubtract, Left: zero, Right: input}, nil

	case *parser.ComparisonExpr:
		left, err := b.bind(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.bind(e.Right)
		if err != nil {
			return nil, err
		}
		if e.Operator == parser.TokenLike {
			return &plan.Like{Input: left, Pattern: right}, nil
		}
		op, ok := compareOps[e.Operator]
		if !ok {
			return nil, errors.Newf("unsupported comparison %s", e.Operator)
		}
		return plan.NewComparison(op, left, right), nil

	case *parser.InExpr:
		input, err := b.bind(e.Expr)
		if err != nil {
			return nil, err
		}
		in := &plan.InList{Input: input}
		for _, v := range e.Values {
			item, err := b.bind(v)
			if err != nil {
				return nil, err
			}
			in.List = append(in.List, item)
		}
		if e.Not {
			return &plan.Not{Input: in}, nil
		}
		return in, nil

	case *parser.BetweenExpr:
		input, err := b.bind(e.Expr)
		if err != nil {
			return nil, err
		}
		lower, err := b.bind(e.Lower)
		if err != nil {
			return nil, err
		}
		upper, err := b.bind(e.Upper)
		if err != nil {
			return nil, err
		}
		between := &plan.And{
			Left:  plan.NewComparison(plan.OpGreaterEqual, input, lower),
			Right: plan.NewComparison(plan.OpLessEqual, input, upper),
		}
		if e.Not {
			return &plan.Not{Input: between}, nil
		}
		return between, nil

	case *parser.IsNullExpr:
		input, err := b.bind(e.Expr)
		if err != nil {
			return nil, err
		}
		if e.Not {
			return &plan.Not{Input: &plan.IsNull{Input: input}}, nil
		}
		return &plan.IsNull{Input: input}, nil

	case *parser.CastExpr:
		input, err := b.bind(e.Expr)
		if err != nil {
			return nil, err
		}
		return &plan.Cast{Input: input, Target: e.TargetType}, nil

	case *parser.FunctionCall:
		return b.bindCall(e)

	case *parser.Star:
		return nil, errors.New("* is only allowed in COUNT(*)")
	}
	return nil, cerrors.UnsupportedExpressionError(e.String())
}

var compareOps = map[parser.TokenType]plan.CompareOp{
	parser.TokenEqual:         plan.OpEqual,
	parser.TokenNotEqual:      plan.OpNotEqual,
	parser.TokenLess:          plan.OpLess,
	parser.TokenLessEqual:     plan.OpLessEqual,
	parser.TokenGreater:       plan.OpGreater,
	parser.TokenGreaterEqual:  plan.OpGreaterEqual,
	parser.TokenNullSafeEqual: plan.OpNullSafeEqual,
}

func bindLiteral(l *parser.Literal) *plan.Literal {
	if l.Value.IsNull() {
		return &plan.Literal{Value: l.Value, DataType: types.Unknown}
	}
	typ := l.Type
	if typ == nil {
		typ = l.Value.Type()
	}
	return &plan.Literal{Value: l.Value, DataType: typ}
}

func (b *binder) bindCall(call *parser.FunctionCall) (plan.Expression, error) {
	name := strings.ToLower(call.Name)
	if call.Over != nil && !b.windows {
		return nil, errors.Newf("window function %s is not allowed here", call.Name)
	}
	isAggregate := aggregateFunctions[name]
	if isAggregate && !b.aggregates && call.Over == nil {
		return nil, errors.Newf("aggregate function %s is not allowed here", call.Name)
	}

	// Arguments of aggregates and window functions are plain scalars.
	inner := &binder{scope: b.scope}
	var args []plan.Expression
	for _, a := range call.Args {
		if _, ok := a.(*parser.Star); ok {
			continue
		}
		arg, err := inner.bind(a)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	var fn plan.Expression
	switch {
	case isAggregate:
		fn = &plan.AggregateCall{Name: name, Args: args, Distinct: call.Distinct, ReturnType: aggregateType(name, args)}
	case rankingFunctions[name]:
		if call.Over == nil {
			return nil, errors.Newf("%s requires an OVER clause", call.Name)
		}
		fn = &plan.Func{Name: name, Args: args, ReturnType: types.BigInt}
	default:
		fn = &plan.Func{Name: name, Args: args, ReturnType: scalarType(name, args)}
	}
	if call.Over == nil {
		return fn, nil
	}

	wf := &plan.WindowFunc{Function: fn}
	for _, p := range call.Over.PartitionBy {
		e, err := inner.bind(p)
		if err != nil {
			return nil, err
		}
		wf.PartitionBy = append(wf.PartitionBy, e)
	}
	for _, o := range call.Over.OrderBy {
		e, err := inner.bind(o.Expr)
		if err != nil {
			return nil, err
		}
		wf.OrderBy = append(wf.OrderBy, e)
	}
	return wf, nil
}

func aggregateType(name string, args []plan.Expression) types.DataType {
	switch name {
	case "count":
		return types.BigInt
	case "avg", "stddev", "variance":
		return types.Double
	case "sum":
		if len(args) == 1 {
			switch args[0].Type().ID() { //nolint:exhaustive
			case types.SmallIntID, types.IntegerID, types.BigIntID:
				return types.BigInt
			}
		}
		return types.Double
	}
	if len(args) > 0 {
		return args[0].Type()
	}
	return types.Unknown
}

func scalarType(name string, args []plan.Expression) types.DataType {
	switch name {
	case "year", "month", "quarter", "day", "dayofmonth", "dayofweek", "hour", "minute", "second",
		"length", "char_length":
		return types.Integer
	case "upper", "lower", "trim", "ltrim", "rtrim", "reverse", "substr", "substring", "concat":
		return types.Text
	}
	if len(args) > 0 {
		return args[0].Type()
	}
	return types.Unknown
}
