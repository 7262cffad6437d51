package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/dshills/cardest/internal/sql/types"
)

func TestParseExpression(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"column", "k", "k"},
		{"qualified column", "o.k", "o.k"},
		{"quoted identifier", `"Order Date"`, "Order Date"},
		{"comparison", "o.k < 500", "o.k < 500"},
		{"null safe equal", "a <=> b", "a <=> b"},
		{"not equal", "a != 1", "a <> 1"},
		{"precedence", "a + b * 2 = 7", "(a + (b * 2)) = 7"},
		{"and binds tighter than or", "a = 1 OR b = 2 AND c = 3", "(a = 1 OR (b = 2 AND c = 3))"},
		{"parens", "(a = 1 OR b = 2) AND c = 3", "((a = 1 OR b = 2) AND c = 3)"},
		{"negative literal", "k > -5", "k > -5"},
		{"negative column", "-k", "-k"},
		{"in list", "region IN ('EU', 'US')", "region IN ('EU', 'US')"},
		{"not in", "k NOT IN (1, 2)", "k NOT IN (1, 2)"},
		{"between", "k BETWEEN 1 AND 10", "k BETWEEN 1 AND 10"},
		{"not between", "k NOT BETWEEN 1 AND 10", "k NOT BETWEEN 1 AND 10"},
		{"is null", "name IS NULL", "name IS NULL"},
		{"is not null", "name IS NOT NULL", "name IS NOT NULL"},
		{"like", "name LIKE 'a%'", "name LIKE 'a%'"},
		{"not like", "name NOT LIKE 'a%'", "NOT name LIKE 'a%'"},
		{"not", "NOT a = 1", "NOT a = 1"},
		{"escaped string", "s = 'it''s'", "s = 'it''s'"},
		{"boolean and null", "flag = TRUE OR x IS NULL", "(flag = TRUE OR x IS NULL)"},
		{"float", "price * 1.5", "(price * 1.5)"},
		{"exponent", "sel < 1e-4", "sel < 0.0001"},
		{"date literal", "d >= DATE '2024-01-01'", "d >= DATE '2024-01-01'"},
		{"timestamp literal", "ts < TIMESTAMP '2024-01-01 10:30:00'", "ts < TIMESTAMP '2024-01-01 10:30:00'"},
		{"cast", "CAST(k AS BIGINT)", "CAST(k AS BIGINT)"},
		{"cast with modifiers", "CAST(s AS varchar(10))", "CAST(s AS VARCHAR(10))"},
		{"cast two words", "CAST(k AS DOUBLE PRECISION)", "CAST(k AS DOUBLE)"},
		{"function", "lower(name)", "LOWER(name)"},
		{"count star", "count(*)", "COUNT(*)"},
		{"count distinct", "count(DISTINCT k)", "COUNT(DISTINCT k)"},
		{"window", "rank() OVER (PARTITION BY a, b ORDER BY c DESC, d ASC)",
			"RANK() OVER (PARTITION BY a, b ORDER BY c DESC, d)"},
		{"window without partition", "sum(x) OVER (ORDER BY d)", "SUM(x) OVER (ORDER BY d)"},
		{"comment", "k = 1 -- trailing", "k = 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseExpression(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := expr.String(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseExpressionErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"dangling operator", "a ="},
		{"unbalanced paren", "(a = 1"},
		{"trailing tokens", "a = 1 b"},
		{"unterminated string", "s = 'abc"},
		{"bad character", "a # b"},
		{"is without null", "a IS 1"},
		{"stray not", "a NOT = 1"},
		{"between without and", "a BETWEEN 1 OR 2"},
		{"bad date", "d = DATE 'yesterday'"},
		{"date without string", "d = DATE 5"},
		{"unknown cast type", "CAST(a AS geometry)"},
		{"missing over paren", "rank() OVER PARTITION BY a"},
		{"partition without by", "rank() OVER (PARTITION a)"},
		{"qualified without column", "o. = 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpression(tt.input)
			if err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("expected *ParseError, got %T", err)
			}
		})
	}
}

func TestParseLiteralValues(t *testing.T) {
	expr, err := ParseExpression("DATE '2024-03-01'")
	if err != nil {
		t.Fatal(err)
	}
	lit, ok := expr.(*Literal)
	if !ok {
		t.Fatalf("expected *Literal, got %T", expr)
	}
	if lit.Type != types.Date {
		t.Errorf("expected DATE type, got %v", lit.Type)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC); lit.Value.Data != want {
		t.Errorf("expected %v, got %v", want, lit.Value.Data)
	}

	expr, err = ParseExpression("42")
	if err != nil {
		t.Fatal(err)
	}
	if v := expr.(*Literal).Value.Data; v != int64(42) {
		t.Errorf("expected int64 42, got %T %v", v, v)
	}

	expr, err = ParseExpression("NULL")
	if err != nil {
		t.Fatal(err)
	}
	if !expr.(*Literal).Value.IsNull() {
		t.Error("expected NULL literal")
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := ParseExpression("a = 1\n  AND b IS 7")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Line != 2 {
		t.Errorf("expected error on line 2, got %d", perr.Line)
	}
}
