package query

import "fmt"

// Expr represents a query expression.
type Expr interface {
	isExpr()
}

// And represents a boolean AND of two expressions. Juxtaposed terms
// parse to this too.
type And struct {
	Left  Expr
	Right Expr
}

func (And) isExpr() {}

// Or represents a boolean OR of two expressions.
type Or struct {
	Left  Expr
	Right Expr
}

func (Or) isExpr() {}

// Not represents a boolean NOT of an expression.
type Not struct {
	Inner Expr
}

func (Not) isExpr() {}

// Term is a single [location:]value search term. The value keeps its
// matchkind prefix (=, ~, \) and any relational prefix; typed matching
// happens downstream against the schema.
type Term struct {
	// Location is the field key, alias, grouped term, "all" for an
	// unqualified term, or a leading-@ user category name.
	Location string
	Value    string
	Pos      int
	Quoted   bool
}

func (Term) isExpr() {}

// ParseError is a structured syntax error carrying the rune offset and
// the offending piece of the query.
type ParseError struct {
	Msg     string
	Pos     int
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("%s at offset %d: %q", e.Msg, e.Pos, e.Snippet)
	}
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Pos)
}
