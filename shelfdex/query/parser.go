package query

import (
	"fmt"
	"strings"
)

// Parse parses a query string into an expression AST. Terms are not
// resolved against any schema here; parsing is pure syntax.
func Parse(input string) (Expr, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.match(TokEOF) {
		cur := p.current()
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected %s", cur.Kind), Pos: cur.Pos, Snippet: cur.Value}
	}
	return expr, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.match(TokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for {
		explicit := p.match(TokAnd)
		if explicit {
			p.advance()
		} else if !p.startsPrimary() {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
}

// startsPrimary reports whether the current token can begin a term, so
// juxtaposed terms become an implicit AND.
func (p *parser) startsPrimary() bool {
	switch p.current().Kind {
	case TokWord, TokString, TokNot, TokLParen:
		return true
	default:
		return false
	}
}

func (p *parser) parseNot() (Expr, error) {
	if p.match(TokNot) {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.match(TokLParen) {
		open := p.current()
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.match(TokRParen) {
			return nil, &ParseError{Msg: "unbalanced parenthesis", Pos: open.Pos, Snippet: "("}
		}
		p.advance()
		return expr, nil
	}
	return p.parseTerm()
}

func (p *parser) parseTerm() (Expr, error) {
	cur := p.current()
	switch cur.Kind {
	case TokString:
		p.advance()
		return Term{Location: "all", Value: cur.Value, Pos: cur.Pos, Quoted: true}, nil
	case TokWord:
		p.advance()
		return p.termFromWord(cur)
	case TokEOF:
		return nil, &ParseError{Msg: "unexpected end of query", Pos: cur.Pos}
	default:
		return nil, &ParseError{Msg: fmt.Sprintf("expected a search term, got %s", cur.Kind), Pos: cur.Pos, Snippet: cur.Value}
	}
}

func (p *parser) termFromWord(tok Token) (Expr, error) {
	word := tok.Value

	// User categories are a location on their own; there is no value
	// part to split off.
	if strings.HasPrefix(word, "@") {
		return Term{Location: word, Value: "true", Pos: tok.Pos}, nil
	}

	colon := strings.IndexByte(word, ':')
	if colon <= 0 {
		return Term{Location: "all", Value: word, Pos: tok.Pos}, nil
	}

	loc := word[:colon]
	val := word[colon+1:]

	// field:"quoted value" lexes as two tokens; stitch them together.
	if val == "" {
		if p.match(TokString) {
			str := p.current()
			p.advance()
			return Term{Location: loc, Value: str.Value, Pos: tok.Pos, Quoted: true}, nil
		}
		return nil, &ParseError{Msg: fmt.Sprintf("missing value after %q", loc+":"), Pos: tok.Pos, Snippet: word}
	}

	return Term{Location: loc, Value: val, Pos: tok.Pos}, nil
}

func (p *parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Kind: TokEOF}
}

func (p *parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *parser) match(kind TokenKind) bool {
	return p.current().Kind == kind
}
