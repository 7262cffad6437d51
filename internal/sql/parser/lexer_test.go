package parser

import "testing"

func TestLexer(t *testing.T) {
	input := `o.k <= 10 AND "Name" <> 'x''y' OR v <=> 1.5e3 -- done`
	expected := []struct {
		typ   TokenType
		value string
	}{
		{TokenIdentifier, "o"},
		{TokenDot, "."},
		{TokenIdentifier, "k"},
		{TokenLessEqual, "<="},
		{TokenNumber, "10"},
		{TokenAnd, "AND"},
		{TokenIdentifier, "Name"},
		{TokenNotEqual, "<>"},
		{TokenString, "x'y"},
		{TokenOr, "OR"},
		{TokenIdentifier, "v"},
		{TokenNullSafeEqual, "<=>"},
		{TokenNumber, "1.5e3"},
		{TokenEOF, ""},
	}

	lexer := NewLexer(input)
	for i, exp := range expected {
		tok := lexer.NextToken()
		if tok.Type != exp.typ {
			t.Fatalf("token %d: expected type %s, got %s (%q)", i, exp.typ, tok.Type, tok.Value)
		}
		if tok.Value != exp.value {
			t.Errorf("token %d: expected value %q, got %q", i, exp.value, tok.Value)
		}
	}
}

func TestLexerNumberFollowedByIdentifier(t *testing.T) {
	lexer := NewLexer("2e x")
	if tok := lexer.NextToken(); tok.Type != TokenNumber || tok.Value != "2" {
		t.Fatalf("expected number 2, got %s %q", tok.Type, tok.Value)
	}
	if tok := lexer.NextToken(); tok.Type != TokenIdentifier || tok.Value != "e" {
		t.Fatalf("expected identifier e, got %s %q", tok.Type, tok.Value)
	}
}
