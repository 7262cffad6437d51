package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// Lexer tokenizes scalar expressions.
type Lexer struct {
	input    string
	position int
	line     int
	column   int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, column: 1}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	if l.position >= len(l.input) {
		return l.makeToken(TokenEOF, "")
	}

	ch := l.input[l.position]
	switch ch {
	case '(':
		return l.consumeChars(TokenLeftParen, 1)
	case ')':
		return l.consumeChars(TokenRightParen, 1)
	case ',':
		return l.consumeChars(TokenComma, 1)
	case '.':
		return l.consumeChars(TokenDot, 1)
	case '+':
		return l.consumeChars(TokenPlus, 1)
	case '-':
		if l.peek(1) == '-' {
			l.skipComment()
			return l.NextToken()
		}
		return l.consumeChars(TokenMinus, 1)
	case '*':
		return l.consumeChars(TokenStar, 1)
	case '/':
		return l.consumeChars(TokenSlash, 1)
	case '%':
		return l.consumeChars(TokenPercent, 1)
	case '=':
		return l.consumeChars(TokenEqual, 1)
	case '<':
		switch {
		case l.peek(1) == '=' && l.peek(2) == '>':
			return l.consumeChars(TokenNullSafeEqual, 3)
		case l.peek(1) == '=':
			return l.consumeChars(TokenLessEqual, 2)
		case l.peek(1) == '>':
			return l.consumeChars(TokenNotEqual, 2)
		}
		return l.consumeChars(TokenLess, 1)
	case '>':
		if l.peek(1) == '=' {
			return l.consumeChars(TokenGreaterEqual, 2)
		}
		return l.consumeChars(TokenGreater, 1)
	case '!':
		if l.peek(1) == '=' {
			return l.consumeChars(TokenNotEqual, 2)
		}
	case '\'':
		return l.readQuoted('\'', TokenString, "unterminated string literal")
	case '"':
		return l.readQuoted('"', TokenIdentifier, "unterminated quoted identifier")
	}

	if unicode.IsLetter(rune(ch)) || ch == '_' {
		return l.readIdentifier()
	}
	if unicode.IsDigit(rune(ch)) {
		return l.readNumber()
	}
	return l.makeToken(TokenError, fmt.Sprintf("unexpected character '%c'", ch))
}

func (l *Lexer) skipWhitespace() {
	for l.position < len(l.input) {
		switch l.input[l.position] {
		case ' ', '\t', '\r':
			l.position++
			l.column++
		case '\n':
			l.position++
			l.line++
			l.column = 1
		default:
			return
		}
	}
}

// skipComment skips a -- comment up to the end of the line.
func (l *Lexer) skipComment() {
	for l.position < len(l.input) && l.input[l.position] != '\n' {
		l.position++
		l.column++
	}
}

func (l *Lexer) peek(n int) byte {
	pos := l.position + n
	if pos >= len(l.input) {
		return 0
	}
	return l.input[pos]
}

func (l *Lexer) consumeChars(tokenType TokenType, n int) Token {
	tok := l.makeToken(tokenType, l.input[l.position:l.position+n])
	l.position += n
	l.column += n
	return tok
}

func (l *Lexer) makeToken(tokenType TokenType, value string) Token {
	return Token{
		Type:     tokenType,
		Value:    value,
		Position: l.position,
		Line:     l.line,
		Column:   l.column,
	}
}

func (l *Lexer) readIdentifier() Token {
	start, startCol := l.position, l.column
	for l.position < len(l.input) {
		ch := rune(l.input[l.position])
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' {
			break
		}
		l.position++
		l.column++
	}

	value := l.input[start:l.position]
	return Token{
		Type:     LookupKeyword(strings.ToUpper(value)),
		Value:    value,
		Position: start,
		Line:     l.line,
		Column:   startCol,
	}
}

// readNumber reads an integer or decimal literal. An exponent is accepted
// after the digits, as in 1e-4.
func (l *Lexer) readNumber() Token {
	start, startCol := l.position, l.column
	hasDecimal, hasExponent := false, false

scan:
	for l.position < len(l.input) {
		ch := l.input[l.position]
		switch {
		case unicode.IsDigit(rune(ch)):
		case ch == '.' && !hasDecimal && !hasExponent && unicode.IsDigit(rune(l.peek(1))):
			hasDecimal = true
		case (ch == 'e' || ch == 'E') && !hasExponent:
			next := l.peek(1)
			if next == '-' || next == '+' {
				if !unicode.IsDigit(rune(l.peek(2))) {
					break scan
				}
				l.position++
				l.column++
			} else if !unicode.IsDigit(rune(next)) {
				break scan
			}
			hasExponent = true
		default:
			break scan
		}
		l.position++
		l.column++
	}
	return Token{
		Type:     TokenNumber,
		Value:    l.input[start:l.position],
		Position: start,
		Line:     l.line,
		Column:   startCol,
	}
}

// readQuoted reads text enclosed in quoteChar. A doubled quote character
// stands for itself.
func (l *Lexer) readQuoted(quoteChar byte, tokenType TokenType, errorMsg string) Token {
	start, startCol := l.position, l.column
	l.position++
	l.column++

	var builder strings.Builder
	for l.position < len(l.input) {
		ch := l.input[l.position]
		switch ch {
		case quoteChar:
			if l.peek(1) == quoteChar {
				builder.WriteByte(quoteChar)
				l.position += 2
				l.column += 2
				continue
			}
			l.position++
			l.column++
			return Token{
				Type:     tokenType,
				Value:    builder.String(),
				Position: start,
				Line:     l.line,
				Column:   startCol,
			}
		case '\n':
			return Token{Type: TokenError, Value: errorMsg, Position: start, Line: l.line, Column: startCol}
		default:
			builder.WriteByte(ch)
			l.position++
			l.column++
		}
	}
	return Token{Type: TokenError, Value: errorMsg, Position: start, Line: l.line, Column: startCol}
}
