package parser

import "fmt"

// TokenType represents the type of a token in a scalar expression.
type TokenType int

const (
	// Special tokens.
	TokenEOF TokenType = iota
	TokenError

	// Literals.
	TokenIdentifier
	TokenNumber
	TokenString
	TokenTrue
	TokenFalse
	TokenNull

	// Keywords.
	TokenAnd
	TokenOr
	TokenNot
	TokenLike
	TokenIn
	TokenBetween
	TokenIs
	TokenCast
	TokenAs
	TokenDate
	TokenTimestamp
	TokenDistinct
	TokenOver
	TokenPartition
	TokenOrder
	TokenBy
	TokenAsc
	TokenDesc

	// Operators.
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent
	TokenEqual
	TokenNullSafeEqual
	TokenNotEqual
	TokenLess
	TokenLessEqual
	TokenGreater
	TokenGreaterEqual

	// Delimiters.
	TokenLeftParen
	TokenRightParen
	TokenComma
	TokenDot
)

var tokenStrings = map[TokenType]string{
	TokenEOF:           "EOF",
	TokenError:         "ERROR",
	TokenIdentifier:    "IDENTIFIER",
	TokenNumber:        "NUMBER",
	TokenString:        "STRING",
	TokenTrue:          "TRUE",
	TokenFalse:         "FALSE",
	TokenNull:          "NULL",
	TokenAnd:           "AND",
	TokenOr:            "OR",
	TokenNot:           "NOT",
	TokenLike:          "LIKE",
	TokenIn:            "IN",
	TokenBetween:       "BETWEEN",
	TokenIs:            "IS",
	TokenCast:          "CAST",
	TokenAs:            "AS",
	TokenDate:          "DATE",
	TokenTimestamp:     "TIMESTAMP",
	TokenDistinct:      "DISTINCT",
	TokenOver:          "OVER",
	TokenPartition:     "PARTITION",
	TokenOrder:         "ORDER",
	TokenBy:            "BY",
	TokenAsc:           "ASC",
	TokenDesc:          "DESC",
	TokenPlus:          "+",
	TokenMinus:         "-",
	TokenStar:          "*",
	TokenSlash:         "/",
	TokenPercent:       "%",
	TokenEqual:         "=",
	TokenNullSafeEqual: "<=>",
	TokenNotEqual:      "<>",
	TokenLess:          "<",
	TokenLessEqual:     "<=",
	TokenGreater:       ">",
	TokenGreaterEqual:  ">=",
	TokenLeftParen:     "(",
	TokenRightParen:    ")",
	TokenComma:         ",",
	TokenDot:           ".",
}

// String returns the string representation of a token type.
func (t TokenType) String() string {
	if s, ok := tokenStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type     TokenType
	Value    string
	Position int
	Line     int
	Column   int
}

// String returns a string representation of the token.
func (t Token) String() string {
	switch t.Type {
	case TokenIdentifier, TokenNumber:
		return t.Value
	case TokenString:
		return fmt.Sprintf("'%s'", t.Value)
	case TokenError:
		return fmt.Sprintf("error(%s)", t.Value)
	}
	return t.Type.String()
}

var keywords = map[string]TokenType{
	"AND":       TokenAnd,
	"OR":        TokenOr,
	"NOT":       TokenNot,
	"LIKE":      TokenLike,
	"IN":        TokenIn,
	"BETWEEN":   TokenBetween,
	"IS":        TokenIs,
	"CAST":      TokenCast,
	"AS":        TokenAs,
	"DATE":      TokenDate,
	"TIMESTAMP": TokenTimestamp,
	"DISTINCT":  TokenDistinct,
	"OVER":      TokenOver,
	"PARTITION": TokenPartition,
	"ORDER":     TokenOrder,
	"BY":        TokenBy,
	"ASC":       TokenAsc,
	"DESC":      TokenDesc,
	"TRUE":      TokenTrue,
	"FALSE":     TokenFalse,
	"NULL":      TokenNull,
}

// LookupKeyword returns the token type for an upper-cased identifier.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdentifier
}
