package shelfdex

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrIO           ErrorKind = "io"
	ErrSQL          ErrorKind = "sql"
	ErrSchema       ErrorKind = "schema"
	ErrQueryParse   ErrorKind = "query_parse"
	ErrUnknownField ErrorKind = "unknown_field"
	ErrTypeMismatch ErrorKind = "type_mismatch"
	ErrStaleRow     ErrorKind = "stale_row"
	ErrNotFound     ErrorKind = "not_found"
)

// Error is the single error type surfaced by the engine. Offset and
// Snippet are populated for query_parse errors so callers can point at
// the offending part of the query string.
type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Offset  int
	Snippet string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != "" {
		base = fmt.Sprintf("%s (field=%s)", base, e.Field)
	}
	if e.Snippet != "" {
		base = fmt.Sprintf("%s (at offset %d: %q)", base, e.Offset, e.Snippet)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func SchemaError(msg string) *Error {
	return &Error{Kind: ErrSchema, Message: msg}
}

func QueryParseError(msg string) *Error {
	return &Error{Kind: ErrQueryParse, Message: msg}
}

func QueryParseErrorAt(msg string, offset int, snippet string) *Error {
	return &Error{Kind: ErrQueryParse, Message: msg, Offset: offset, Snippet: snippet}
}

func UnknownFieldError(field string) *Error {
	return &Error{Kind: ErrUnknownField, Message: "unknown field", Field: field}
}

func TypeMismatch(field, msg string) *Error {
	return &Error{Kind: ErrTypeMismatch, Field: field, Message: msg}
}

func StaleRowError(id int64) *Error {
	return &Error{Kind: ErrStaleRow, Message: fmt.Sprintf("no row for book id %d", id)}
}

func NotFoundError(id int64) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("book id %d not in view", id)}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
