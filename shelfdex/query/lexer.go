package query

import (
	"strings"
	"unicode"
)

// Token represents a lexical token.
type Token struct {
	Kind   TokenKind
	Value  string
	Pos    int // rune offset into the input
	Quoted bool
}

// TokenKind is the type of token.
type TokenKind int

const (
	TokWord TokenKind = iota
	TokString
	TokLParen
	TokRParen
	TokAnd
	TokOr
	TokNot
	TokEOF
)

func (k TokenKind) String() string {
	switch k {
	case TokWord:
		return "Word"
	case TokString:
		return "String"
	case TokLParen:
		return "LParen"
	case TokRParen:
		return "RParen"
	case TokAnd:
		return "And"
	case TokOr:
		return "Or"
	case TokNot:
		return "Not"
	case TokEOF:
		return "EOF"
	default:
		return "Unknown"
	}
}

// Lexer tokenizes a query string.
type Lexer struct {
	input []rune
	pos   int
}

// NewLexer creates a new lexer for the input string.
func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

// Lex tokenizes the entire input.
func Lex(input string) ([]Token, error) {
	lexer := NewLexer(input)
	var tokens []Token

	for {
		tok, err := lexer.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			break
		}
	}

	return tokens, nil
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Pos: l.pos}, nil
	}

	start := l.pos
	switch l.input[l.pos] {
	case '(':
		l.pos++
		return Token{Kind: TokLParen, Pos: start}, nil
	case ')':
		l.pos++
		return Token{Kind: TokRParen, Pos: start}, nil
	case '"':
		return l.scanString()
	}

	return l.scanWord()
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
}

func (l *Lexer) scanString() (Token, error) {
	start := l.pos
	l.pos++ // consume opening quote
	var sb strings.Builder

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '"' {
			l.pos++ // consume closing quote
			return Token{Kind: TokString, Value: sb.String(), Pos: start, Quoted: true}, nil
		}
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			switch l.input[l.pos] {
			case '"':
				sb.WriteRune('"')
			case '\\':
				sb.WriteRune('\\')
			default:
				// Keep the backslash: matchkind escapes like \= pass
				// through to the matchers untouched.
				sb.WriteRune('\\')
				sb.WriteRune(l.input[l.pos])
			}
			l.pos++
			continue
		}
		sb.WriteRune(ch)
		l.pos++
	}

	return Token{}, &ParseError{Msg: "unterminated quoted string", Pos: start, Snippet: string(l.input[start:])}
}

// scanWord scans a run of characters up to whitespace, a parenthesis or
// a quote. Relational operators, matchkind prefixes and colons stay
// inside the word; the parser and matchers pick them apart.
func (l *Lexer) scanWord() (Token, error) {
	start := l.pos

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if unicode.IsSpace(ch) || ch == '(' || ch == ')' || ch == '"' {
			break
		}
		l.pos++
	}

	value := string(l.input[start:l.pos])

	// Keywords only apply to bare words; "and" as a field value must
	// be quoted.
	switch strings.ToLower(value) {
	case "and":
		return Token{Kind: TokAnd, Pos: start}, nil
	case "or":
		return Token{Kind: TokOr, Pos: start}, nil
	case "not":
		return Token{Kind: TokNot, Pos: start}, nil
	}

	return Token{Kind: TokWord, Value: value, Pos: start}, nil
}
