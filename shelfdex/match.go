package shelfdex

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// matchKind is the text matching mode selected by the value prefix:
// bare text is a contains match, '=' exact, '~' regular expression and
// a leading backslash escapes the prefix characters for a literal
// contains match.
type matchKind int

const (
	matchContains matchKind = iota
	matchEquals
	matchRegex
)

func parseMatchKind(val string) (matchKind, string) {
	switch {
	case strings.HasPrefix(val, "="):
		return matchEquals, val[1:]
	case strings.HasPrefix(val, "~"):
		return matchRegex, val[1:]
	case strings.HasPrefix(val, "\\"):
		return matchContains, val[1:]
	default:
		return matchContains, val
	}
}

// cellPredicate decides whether one cell matches a parsed search term.
// Matchers are built once per term and then applied to every candidate
// row.
type cellPredicate func(cell Value) bool

type textMatcher struct {
	kind   matchKind
	needle string
	re     *regexp.Regexp
}

func newTextMatcher(val string) (*textMatcher, error) {
	kind, needle := parseMatchKind(val)
	m := &textMatcher{kind: kind, needle: strings.ToLower(needle)}
	if kind == matchRegex {
		re, err := regexp.Compile("(?i)" + needle)
		if err != nil {
			return nil, Wrap(ErrQueryParse, "invalid regular expression "+strconv.Quote(needle), err)
		}
		m.re = re
	}
	return m, nil
}

func (m *textMatcher) matchOne(s string) bool {
	switch m.kind {
	case matchEquals:
		return strings.ToLower(s) == m.needle
	case matchRegex:
		return m.re.MatchString(s)
	default:
		return strings.Contains(strings.ToLower(s), m.needle)
	}
}

func (m *textMatcher) matchAny(elems []string) bool {
	for _, e := range elems {
		if m.matchOne(e) {
			return true
		}
	}
	return false
}

// newTextFieldMatcher handles text, comments, multi-valued text, series
// names and composite-as-text fields, including presence tokens and the
// '#' cardinality operator on multi-valued fields.
func newTextFieldMatcher(f *Field, val string, quoted bool) (cellPredicate, error) {
	if !quoted {
		switch val {
		case "true":
			return func(cell Value) bool { return len(cell.Strings()) > 0 }, nil
		case "false":
			return func(cell Value) bool { return len(cell.Strings()) == 0 }, nil
		}
	}

	if f.Multiple != "" && strings.HasPrefix(val, "#") {
		return newCardinalityMatcher(f, val[1:])
	}

	if f.Key == "identifiers" {
		return newIdentifierMatcher(val)
	}

	tm, err := newTextMatcher(val)
	if err != nil {
		return nil, err
	}
	return func(cell Value) bool { return tm.matchAny(cell.Strings()) }, nil
}

// newCardinalityMatcher matches on the number of elements in a
// multi-valued cell rather than on their content.
func newCardinalityMatcher(f *Field, val string) (cellPredicate, error) {
	op, rest := splitRelOp(val)
	n, err := strconv.Atoi(rest)
	if err != nil {
		return nil, TypeMismatch(f.Key, "cardinality operand "+strconv.Quote(rest)+" is not an integer")
	}
	return func(cell Value) bool {
		return relHolds(len(cell.Strings())-n, op)
	}, nil
}

// newIdentifierMatcher matches colon-paired key:value elements. Either
// side of the query pair may be omitted; a query without a colon
// matches on the key alone.
func newIdentifierMatcher(val string) (cellPredicate, error) {
	var keyNeedle string
	valPart := val
	if i := strings.IndexByte(val, ':'); i >= 0 {
		keyNeedle = strings.ToLower(val[:i])
		valPart = val[i+1:]
	} else {
		keyNeedle = strings.ToLower(val)
		valPart = ""
	}

	var vm *textMatcher
	if valPart != "" {
		var err error
		vm, err = newTextMatcher(valPart)
		if err != nil {
			return nil, err
		}
	}

	return func(cell Value) bool {
		for _, e := range cell.Strings() {
			k, v, found := strings.Cut(e, ":")
			if !found {
				k, v = e, ""
			}
			if keyNeedle != "" && strings.ToLower(k) != keyNeedle {
				continue
			}
			if vm == nil || vm.matchOne(v) {
				return true
			}
		}
		return false
	}, nil
}

// splitRelOp peels a relational operator off the front of a term
// value. No operator means equality.
func splitRelOp(s string) (string, string) {
	for _, op := range []string{">=", "<=", "!="} {
		if strings.HasPrefix(s, op) {
			return op, s[len(op):]
		}
	}
	for _, op := range []string{"=", ">", "<"} {
		if strings.HasPrefix(s, op) {
			return op, s[len(op):]
		}
	}
	return "=", s
}

// relHolds applies op to the sign of (lhs - rhs).
func relHolds(cmp int, op string) bool {
	switch op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	default:
		return false
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// newNumericMatcher handles int, float, rating and composite-as-number
// fields. Ratings are stored at twice their display resolution and are
// halved before comparison. The size field accepts k/m/g suffixes on
// the operand.
func newNumericMatcher(f *Field, val string, cfg SearchConfig) (cellPredicate, error) {
	isRating := f.Type == TypeRating

	cellNum := func(cell Value) (float64, bool) {
		n, ok := cell.AsFloat()
		if !ok && cell.Kind == KindString {
			var err error
			n, err = strconv.ParseFloat(strings.TrimSpace(cell.S), 64)
			if err != nil {
				if cfg.Logf != nil {
					cfg.Logf("field %s: cannot coerce %q to a number, skipping row", f.Key, cell.S)
				}
				return 0, false
			}
			ok = true
		}
		if !ok {
			return 0, false
		}
		if isRating {
			n /= 2
		}
		return n, true
	}

	switch val {
	case "true":
		return func(cell Value) bool {
			n, ok := cellNum(cell)
			if isRating {
				return ok && n > 0
			}
			return ok
		}, nil
	case "false":
		return func(cell Value) bool {
			n, ok := cellNum(cell)
			if isRating {
				return !ok || n == 0
			}
			return !ok
		}, nil
	}

	op, rest := splitRelOp(val)
	mult := 1.0
	if f.Key == "size" && rest != "" {
		switch rest[len(rest)-1] {
		case 'k', 'K':
			mult, rest = 1024, rest[:len(rest)-1]
		case 'm', 'M':
			mult, rest = 1024*1024, rest[:len(rest)-1]
		case 'g', 'G':
			mult, rest = 1024*1024*1024, rest[:len(rest)-1]
		}
	}
	operand, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return nil, TypeMismatch(f.Key, "operand "+strconv.Quote(rest)+" is not a number")
	}
	operand *= mult

	return func(cell Value) bool {
		n, ok := cellNum(cell)
		if !ok {
			return false
		}
		return relHolds(cmpFloat(n, operand), op)
	}, nil
}

// newDateMatcher handles datetime and composite-as-date fields.
// Comparison truncates both operands to the granularity the query
// spelled out; dates at or before the epoch sentinel count as unset.
func newDateMatcher(f *Field, val string, cfg SearchConfig, now time.Time) (cellPredicate, error) {
	cellTime := func(cell Value) (time.Time, bool) {
		switch cell.Kind {
		case KindTime:
			if dateUnset(cell.T) {
				return time.Time{}, false
			}
			return cell.T, true
		case KindString:
			t, ok := parseDateLoose(strings.TrimSpace(cell.S))
			if !ok {
				if cfg.Logf != nil {
					cfg.Logf("field %s: cannot coerce %q to a date, skipping row", f.Key, cell.S)
				}
				return time.Time{}, false
			}
			if dateUnset(t) {
				return time.Time{}, false
			}
			return t, true
		default:
			return time.Time{}, false
		}
	}

	switch val {
	case "true":
		return func(cell Value) bool { _, ok := cellTime(cell); return ok }, nil
	case "false":
		return func(cell Value) bool { _, ok := cellTime(cell); return !ok }, nil
	}

	op, rest := splitRelOp(val)
	operand, gran, err := parseDateQuery(rest, now)
	if err != nil {
		return nil, err
	}
	want := truncDate(operand, gran)

	return func(cell Value) bool {
		t, ok := cellTime(cell)
		if !ok {
			return false
		}
		return relHolds(truncDate(t, gran).Compare(want), op)
	}, nil
}

// newBoolMatcher handles bool and composite-as-bool fields in either
// binary or tri-state mode.
func newBoolMatcher(f *Field, val string, cfg SearchConfig) (cellPredicate, error) {
	isTrue := func(cell Value) bool { return cell.Kind == KindBool && cell.B }
	isFalse := func(cell Value) bool { return cell.Kind == KindBool && !cell.B }
	isUnset := func(cell Value) bool { return cell.Kind != KindBool }

	switch strings.ToLower(val) {
	case "true", "yes", "checked":
		return isTrue, nil
	case "false", "no", "unchecked":
		if cfg.TriStateBools {
			return isFalse, nil
		}
		// Binary mode: unset collapses into false.
		return func(cell Value) bool { return isFalse(cell) || isUnset(cell) }, nil
	case "empty", "blank":
		if cfg.TriStateBools {
			return isUnset, nil
		}
		return func(cell Value) bool { return isFalse(cell) || isUnset(cell) }, nil
	default:
		return nil, TypeMismatch(f.Key, "unrecognized boolean token "+strconv.Quote(val))
	}
}

// matcherFor dispatches on the field's datatype. Composite fields are
// matched according to their interpret-as hint.
func matcherFor(f *Field, val string, quoted bool, cfg SearchConfig, now time.Time) (cellPredicate, error) {
	t := f.Type
	if t == TypeComposite {
		switch f.CompositeAs {
		case CompositeNumber:
			t = TypeFloat
		case CompositeDate:
			t = TypeDateTime
		case CompositeBool:
			t = TypeBool
		default:
			t = TypeText
		}
	}

	switch t {
	case TypeText, TypeComments, TypeMultiText, TypeSeries:
		return newTextFieldMatcher(f, val, quoted)
	case TypeInt, TypeFloat, TypeRating:
		return newNumericMatcher(f, val, cfg)
	case TypeDateTime:
		return newDateMatcher(f, val, cfg, now)
	case TypeBool:
		return newBoolMatcher(f, val, cfg)
	case TypeNone:
		return func(Value) bool { return false }, nil
	default:
		return nil, TypeMismatch(f.Key, "field type "+t.String()+" is not searchable")
	}
}
