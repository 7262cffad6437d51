package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/cardest/internal/sql/types"
)

// Parser parses scalar expressions from tokens.
type Parser struct {
	lexer    *Lexer
	current  Token
	previous Token
	errors   []error
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.advance()
	return p
}

// ParseExpression parses input as a single scalar expression.
func ParseExpression(input string) (Expression, error) {
	return NewParser(input).Parse()
}

// Parse parses one expression and requires the input to end after it.
func (p *Parser) Parse() (Expression, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if !p.check(TokenEOF) {
		return nil, p.error(fmt.Sprintf("unexpected token %s", p.current))
	}
	return expr, nil
}

// parseExpression parses an expression with operator precedence.
func (p *Parser) parseExpression() (Expression, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expression, error) {
	expr, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(TokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Left: expr, Operator: TokenOr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseAnd() (Expression, error) {
	expr, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.match(TokenAnd) {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Left: expr, Operator: TokenAnd, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseNot() (Expression, error) {
	if p.match(TokenNot) {
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Operator: TokenNot, Expr: expr}, nil
	}
	return p.parseComparison()
}

// parseComparison parses comparisons, LIKE, IN, BETWEEN and IS NULL.
func (p *Parser) parseComparison() (Expression, error) {
	expr, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	if p.matchAny(TokenEqual, TokenNullSafeEqual, TokenNotEqual, TokenLess,
		TokenLessEqual, TokenGreater, TokenGreaterEqual, TokenLike) {
		op := p.previous.Type
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &ComparisonExpr{Left: expr, Operator: op, Right: right}, nil
	}

	not := false
	if p.match(TokenNot) {
		if !p.check(TokenIn) && !p.check(TokenBetween) && !p.check(TokenLike) {
			return nil, p.error("unexpected NOT")
		}
		not = true
	}

	switch {
	case p.match(TokenLike):
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{
			Operator: TokenNot,
			Expr:     &ComparisonExpr{Left: expr, Operator: TokenLike, Right: right},
		}, nil
	case p.match(TokenIn):
		return p.parseInExpression(expr, not)
	case p.match(TokenBetween):
		lower, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if !p.consume(TokenAnd, "expected AND in BETWEEN expression") {
			return nil, p.lastError()
		}
		upper, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{Expr: expr, Lower: lower, Upper: upper, Not: not}, nil
	case p.match(TokenIs):
		notNull := p.match(TokenNot)
		if !p.consume(TokenNull, "expected NULL after IS") {
			return nil, p.lastError()
		}
		return &IsNullExpr{Expr: expr, Not: notNull}, nil
	}
	return expr, nil
}

// parseTerm parses addition and subtraction.
func (p *Parser) parseTerm() (Expression, error) {
	expr, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.matchAny(TokenPlus, TokenMinus) {
		op := p.previous.Type
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Left: expr, Operator: op, Right: right}
	}
	return expr, nil
}

// parseFactor parses multiplication, division and modulo.
func (p *Parser) parseFactor() (Expression, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.matchAny(TokenStar, TokenSlash, TokenPercent) {
		op := p.previous.Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Left: expr, Operator: op, Right: right}
	}
	return expr, nil
}

// parseUnary parses signs. A sign directly in front of a number literal is
// folded into the literal.
func (p *Parser) parseUnary() (Expression, error) {
	if p.matchAny(TokenPlus, TokenMinus) {
		op := p.previous.Type
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := expr.(*Literal); ok && op == TokenMinus {
			switch v := lit.Value.Data.(type) {
			case int64:
				return &Literal{Value: types.NewValue(-v)}, nil
			case float64:
				return &Literal{Value: types.NewValue(-v)}, nil
			}
		}
		if op == TokenPlus {
			return expr, nil
		}
		return &UnaryExpr{Operator: op, Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expression, error) {
	switch p.current.Type { //nolint:exhaustive
	case TokenNumber:
		value := p.current.Value
		p.advance()
		if !strings.ContainsAny(value, ".eE") {
			if i, err := strconv.ParseInt(value, 10, 64); err == nil {
				return &Literal{Value: types.NewValue(i)}, nil
			}
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, p.error("invalid number")
		}
		return &Literal{Value: types.NewValue(f)}, nil

	case TokenString:
		value := p.current.Value
		p.advance()
		return &Literal{Value: types.NewValue(value)}, nil

	case TokenTrue, TokenFalse:
		value := p.current.Type == TokenTrue
		p.advance()
		return &Literal{Value: types.NewValue(value)}, nil

	case TokenNull:
		p.advance()
		return &Literal{Value: types.NewNullValue()}, nil

	case TokenDate, TokenTimestamp:
		// DATE 'YYYY-MM-DD' and TIMESTAMP 'YYYY-MM-DD HH:MM:SS'
		typ := types.Date
		if p.current.Type == TokenTimestamp {
			typ = types.Timestamp
		}
		p.advance()
		if !p.check(TokenString) {
			return nil, p.error(fmt.Sprintf("expected string literal after %s", typ.Name()))
		}
		v, err := types.Coerce(typ, types.NewValue(p.current.Value))
		if err != nil {
			return nil, p.error(fmt.Sprintf("invalid %s literal: %v", strings.ToLower(typ.Name()), err))
		}
		p.advance()
		return &Literal{Value: v, Type: typ}, nil

	case TokenCast:
		return p.parseCast()

	case TokenIdentifier:
		name := p.current.Value
		p.advance()

		if p.match(TokenLeftParen) {
			return p.parseFunctionCall(name)
		}

		table := ""
		if p.match(TokenDot) {
			if !p.check(TokenIdentifier) {
				return nil, p.error("expected column name after '.'")
			}
			table = name
			name = p.current.Value
			p.advance()
		}
		return &Identifier{Name: name, Table: table}, nil

	case TokenLeftParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if !p.consume(TokenRightParen, "expected ')'") {
			return nil, p.lastError()
		}
		return expr, nil

	case TokenError:
		return nil, p.error(p.current.Value)

	default:
		return nil, p.error(fmt.Sprintf("unexpected token in expression: %s", p.current))
	}
}

// parseFunctionCall parses the arguments and optional OVER clause of a
// call whose opening parenthesis has been consumed.
func (p *Parser) parseFunctionCall(name string) (Expression, error) {
	call := &FunctionCall{Name: strings.ToUpper(name)}

	if call.Name == "COUNT" && p.match(TokenStar) {
		call.Args = []Expression{&Star{}}
	} else {
		call.Distinct = p.match(TokenDistinct)
		if !p.check(TokenRightParen) {
			args, err := p.parseExpressionList()
			if err != nil {
				return nil, err
			}
			call.Args = args
		}
	}
	if !p.consume(TokenRightParen, "expected ')' after function arguments") {
		return nil, p.lastError()
	}

	if p.match(TokenOver) {
		spec, err := p.parseWindowSpec()
		if err != nil {
			return nil, err
		}
		call.Over = spec
	}
	return call, nil
}

func (p *Parser) parseWindowSpec() (*WindowSpec, error) {
	if !p.consume(TokenLeftParen, "expected '(' after OVER") {
		return nil, p.lastError()
	}

	spec := &WindowSpec{}
	if p.match(TokenPartition) {
		if !p.consume(TokenBy, "expected BY after PARTITION") {
			return nil, p.lastError()
		}
		exprs, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		spec.PartitionBy = exprs
	}
	if p.match(TokenOrder) {
		if !p.consume(TokenBy, "expected BY after ORDER") {
			return nil, p.lastError()
		}
		for {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			item := OrderByItem{Expr: expr}
			if p.match(TokenDesc) {
				item.Desc = true
			} else {
				p.match(TokenAsc)
			}
			spec.OrderBy = append(spec.OrderBy, item)
			if !p.match(TokenComma) {
				break
			}
		}
	}

	if !p.consume(TokenRightParen, "expected ')' after window specification") {
		return nil, p.lastError()
	}
	return spec, nil
}

// parseCast parses CAST(expr AS type). The type name may carry modifiers
// such as VARCHAR(10) or DECIMAL(10,2).
func (p *Parser) parseCast() (Expression, error) {
	p.advance()
	if !p.consume(TokenLeftParen, "expected '(' after CAST") {
		return nil, p.lastError()
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if !p.consume(TokenAs, "expected AS in CAST expression") {
		return nil, p.lastError()
	}

	var name strings.Builder
	depth, prevWord := 0, false
	for !p.check(TokenEOF) && !(depth == 0 && p.check(TokenRightParen)) {
		switch p.current.Type { //nolint:exhaustive
		case TokenLeftParen:
			depth++
		case TokenRightParen:
			depth--
		case TokenError:
			return nil, p.error(p.current.Value)
		}
		word := p.current.Type == TokenIdentifier || p.current.Type == TokenDate || p.current.Type == TokenTimestamp
		if word && prevWord {
			name.WriteByte(' ')
		}
		prevWord = word
		name.WriteString(p.current.Value)
		p.advance()
	}
	typ := types.Parse(name.String())
	if typ == types.Unknown {
		return nil, p.error(fmt.Sprintf("unknown type %q in CAST", name.String()))
	}
	if !p.consume(TokenRightParen, "expected ')' after CAST expression") {
		return nil, p.lastError()
	}
	return &CastExpr{Expr: expr, TargetType: typ}, nil
}

// parseInExpression parses the value list of an IN expression.
func (p *Parser) parseInExpression(expr Expression, not bool) (Expression, error) {
	if !p.consume(TokenLeftParen, "expected '(' after IN") {
		return nil, p.lastError()
	}
	var values []Expression
	if !p.check(TokenRightParen) {
		var err error
		if values, err = p.parseExpressionList(); err != nil {
			return nil, err
		}
	}
	if !p.consume(TokenRightParen, "expected ')' after IN list") {
		return nil, p.lastError()
	}
	return &InExpr{Expr: expr, Values: values, Not: not}, nil
}

func (p *Parser) parseExpressionList() ([]Expression, error) {
	var exprs []Expression
	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		if !p.match(TokenComma) {
			return exprs, nil
		}
	}
}

// Helper methods.

func (p *Parser) advance() {
	p.previous = p.current
	p.current = p.lexer.NextToken()
}

func (p *Parser) check(tokenType TokenType) bool {
	return p.current.Type == tokenType
}

func (p *Parser) match(tokenType TokenType) bool {
	if p.check(tokenType) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) matchAny(tokenTypes ...TokenType) bool {
	for _, t := range tokenTypes {
		if p.match(t) {
			return true
		}
	}
	return false
}

func (p *Parser) consume(tokenType TokenType, message string) bool {
	if p.check(tokenType) {
		p.advance()
		return true
	}
	p.error(message)
	return false
}

func (p *Parser) error(message string) error {
	err := NewParseError(message, p.current.Line, p.current.Column)
	p.errors = append(p.errors, err)
	return err
}

func (p *Parser) lastError() error {
	if len(p.errors) > 0 {
		return p.errors[len(p.errors)-1]
	}
	return NewParseError("unknown parse error", 0, 0)
}
