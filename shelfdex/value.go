package shelfdex

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindNull represents an unset cell.
	KindNull Kind = iota
	// KindString represents a single text value.
	KindString
	// KindStrings represents a multi-valued text field, already split.
	KindStrings
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindBool represents a boolean value.
	KindBool
	// KindTime represents a datetime value.
	KindTime
	// KindSeries represents a series name plus its numeric sub-index.
	KindSeries
	// KindUnevaluated marks a composite cell that has not been computed
	// yet (or was invalidated by a row mutation).
	KindUnevaluated
)

// Series is the payload of a KindSeries value.
type Series struct {
	Name  string
	Sort  string // sort form of the name; falls back to Name when empty
	Index float64
}

// SortName returns the form of the series name used for ordering.
func (s Series) SortName() string {
	if s.Sort != "" {
		return s.Sort
	}
	return s.Name
}

// Value is a small typed cell value. The representation keeps matching
// and sorting free of reflection: exactly one payload field is
// meaningful, selected by Kind.
type Value struct {
	Kind Kind
	S    string
	A    []string
	I64  int64
	F64  float64
	B    bool
	T    time.Time
	Ser  Series
}

func Null() Value               { return Value{Kind: KindNull} }
func Str(s string) Value        { return Value{Kind: KindString, S: s} }
func StrList(a []string) Value  { return Value{Kind: KindStrings, A: a} }
func IntVal(i int64) Value      { return Value{Kind: KindInt, I64: i} }
func FloatVal(f float64) Value  { return Value{Kind: KindFloat, F64: f} }
func BoolVal(b bool) Value      { return Value{Kind: KindBool, B: b} }
func TimeVal(t time.Time) Value { return Value{Kind: KindTime, T: t} }
func SeriesVal(s Series) Value  { return Value{Kind: KindSeries, Ser: s} }

func unevaluated() Value { return Value{Kind: KindUnevaluated} }

// IsNull reports whether the cell is unset. Unevaluated composites are
// not null; they simply have not been computed yet.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsFloat returns a numeric view of the value for int, float and rating
// cells.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I64), true
	case KindFloat:
		return v.F64, true
	default:
		return 0, false
	}
}

// Strings returns the element view of the value: multi-valued cells
// yield their elements, single text cells a one-element slice.
func (v Value) Strings() []string {
	switch v.Kind {
	case KindString:
		if v.S == "" {
			return nil
		}
		return []string{v.S}
	case KindStrings:
		return v.A
	case KindSeries:
		if v.Ser.Name == "" {
			return nil
		}
		return []string{v.Ser.Name}
	default:
		return nil
	}
}

// Display renders the value the way templates and category listings
// show it.
func (v Value) Display() string {
	switch v.Kind {
	case KindString:
		return v.S
	case KindStrings:
		return strings.Join(v.A, ", ")
	case KindInt:
		return strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F64, 'f', -1, 64)
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindTime:
		if dateUnset(v.T) {
			return ""
		}
		return v.T.Format("2006-01-02")
	case KindSeries:
		return v.Ser.Name
	default:
		return ""
	}
}

// dateSentinel is the newest timestamp still treated as "unset": rows
// mirrored from stores that default date columns to the epoch count as
// having no date at all.
var dateSentinel = time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)

func dateUnset(t time.Time) bool {
	return t.IsZero() || !t.After(dateSentinel)
}
