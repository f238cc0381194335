package shelfdex

import (
	"testing"
	"time"
)

func matcher(t *testing.T, f *Field, val string, cfg SearchConfig) cellPredicate {
	t.Helper()
	pred, err := matcherFor(f, val, false, cfg, time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("matcherFor(%s, %q): %v", f.Key, val, err)
	}
	return pred
}

func TestParseMatchKind(t *testing.T) {
	if k, rest := parseMatchKind("=Dune"); k != matchEquals || rest != "Dune" {
		t.Errorf("= prefix: got %v %q", k, rest)
	}
	if k, rest := parseMatchKind("~du.e"); k != matchRegex || rest != "du.e" {
		t.Errorf("~ prefix: got %v %q", k, rest)
	}
	if k, rest := parseMatchKind(`\=literal`); k != matchContains || rest != "=literal" {
		t.Errorf("backslash escape: got %v %q", k, rest)
	}
	if k, rest := parseMatchKind("plain"); k != matchContains || rest != "plain" {
		t.Errorf("bare: got %v %q", k, rest)
	}
}

func TestTextContainsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("title")
	pred := matcher(t, f, "DUNE", SearchConfig{})
	if !pred(Str("Dune Messiah")) {
		t.Errorf("contains should be case-insensitive")
	}
	if pred(Str("Foundation")) {
		t.Errorf("unexpected match")
	}
}

func TestTextEquals(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("title")
	pred := matcher(t, f, "=dune", SearchConfig{})
	if !pred(Str("Dune")) {
		t.Errorf("exact match should fold case")
	}
	if pred(Str("Dune Messiah")) {
		t.Errorf("exact match must not behave like contains")
	}
}

func TestTextRegex(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("title")
	pred := matcher(t, f, "~^du.e$", SearchConfig{})
	if !pred(Str("Dune")) {
		t.Errorf("regex should match")
	}
	if pred(Str("Dunes")) {
		t.Errorf("anchored regex must not match a longer string")
	}
}

func TestTextBadRegex(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("title")
	_, err := matcherFor(f, "~[", false, SearchConfig{}, time.Now())
	if err == nil || !IsKind(err, ErrQueryParse) {
		t.Fatalf("expected query parse error for bad regex, got %v", err)
	}
}

func TestTextPresenceTokens(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("tags")

	pred := matcher(t, f, "true", SearchConfig{})
	if !pred(StrList([]string{"x"})) || pred(Null()) {
		t.Errorf("true should mean non-empty")
	}

	pred = matcher(t, f, "false", SearchConfig{})
	if !pred(Null()) || pred(StrList([]string{"x"})) {
		t.Errorf("false should mean empty")
	}

	// Quoted true is a literal needle, not a presence token.
	quoted, err := matcherFor(f, "true", true, SearchConfig{}, time.Now())
	if err != nil {
		t.Fatalf("matcherFor: %v", err)
	}
	if quoted(StrList([]string{"history"})) {
		t.Errorf("quoted true must match literally")
	}
	if !quoted(StrList([]string{"true crime"})) {
		t.Errorf("quoted true should contains-match the text")
	}
}

func TestMultiValueMatchesAnyElement(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("tags")
	pred := matcher(t, f, "=war", SearchConfig{})
	if !pred(StrList([]string{"history", "war"})) {
		t.Errorf("any element may satisfy the match")
	}
	if pred(StrList([]string{"prewar history"})) {
		t.Errorf("exact must compare whole elements")
	}
}

func TestCardinality(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("tags")

	pred := matcher(t, f, "#>1", SearchConfig{})
	if !pred(StrList([]string{"a", "b"})) || pred(StrList([]string{"a"})) {
		t.Errorf("#>1 should mean more than one element")
	}

	pred = matcher(t, f, "#=0", SearchConfig{})
	if !pred(Null()) || pred(StrList([]string{"a"})) {
		t.Errorf("#=0 should mean no elements")
	}

	_, err := matcherFor(f, "#>x", false, SearchConfig{}, time.Now())
	if err == nil || !IsKind(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch for non-integer cardinality, got %v", err)
	}

	// Single-valued text has no cardinality operator; '#' is literal.
	tf, _ := reg.Field("title")
	pred = matcher(t, tf, "#1", SearchConfig{})
	if !pred(Str("Chapter #1")) {
		t.Errorf("expected literal contains match on single-valued text")
	}
}

func TestIdentifierMatcher(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("identifiers")
	cell := StrList([]string{"isbn:9780441013593", "goodreads:77566"})

	pred := matcher(t, f, "isbn:9780441013593", SearchConfig{})
	if !pred(cell) {
		t.Errorf("key:value pair should match")
	}

	// Key alone.
	pred = matcher(t, f, "goodreads", SearchConfig{})
	if !pred(cell) {
		t.Errorf("bare key should match on presence")
	}

	// Value matchkind applies inside the pair.
	pred = matcher(t, f, "isbn:=9780441013593", SearchConfig{})
	if !pred(cell) {
		t.Errorf("exact value should match")
	}
	pred = matcher(t, f, "isbn:=978", SearchConfig{})
	if pred(cell) {
		t.Errorf("exact value must not prefix-match")
	}
}

func TestNumericOperators(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("series_index")

	cases := []struct {
		val  string
		cell float64
		want bool
	}{
		{">2", 3, true},
		{">2", 2, false},
		{">=2", 2, true},
		{"<2", 1.5, true},
		{"<=2", 2, true},
		{"!=2", 3, true},
		{"2", 2, true},
		{"=2", 2, true},
	}
	for _, c := range cases {
		pred := matcher(t, f, c.val, SearchConfig{})
		if got := pred(FloatVal(c.cell)); got != c.want {
			t.Errorf("series_index:%s on %v: got %v, want %v", c.val, c.cell, got, c.want)
		}
	}

	_, err := matcherFor(f, ">abc", false, SearchConfig{}, time.Now())
	if err == nil || !IsKind(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestRatingHalvedBeforeCompare(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("rating")

	// Stored 6 means 3 stars.
	pred := matcher(t, f, "3", SearchConfig{})
	if !pred(IntVal(6)) {
		t.Errorf("rating:3 should match a stored 6")
	}
	if pred(IntVal(3)) {
		t.Errorf("rating:3 must not match a stored 3 (1.5 stars)")
	}

	pred = matcher(t, f, ">=4", SearchConfig{})
	if !pred(IntVal(8)) || pred(IntVal(6)) {
		t.Errorf("rating:>=4 should mean stored >= 8")
	}
}

func TestRatingPresence(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("rating")

	pred := matcher(t, f, "true", SearchConfig{})
	if !pred(IntVal(6)) || pred(IntVal(0)) || pred(Null()) {
		t.Errorf("rating:true should mean a positive rating")
	}
	pred = matcher(t, f, "false", SearchConfig{})
	if !pred(IntVal(0)) || !pred(Null()) || pred(IntVal(6)) {
		t.Errorf("rating:false should mean zero or unset")
	}
}

func TestSizeSuffixes(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("size")

	pred := matcher(t, f, ">1k", SearchConfig{})
	if !pred(FloatVal(2048)) || pred(FloatVal(512)) {
		t.Errorf("size:>1k should compare against 1024 bytes")
	}
	pred = matcher(t, f, ">=1M", SearchConfig{})
	if !pred(FloatVal(1024*1024)) || pred(FloatVal(1024)) {
		t.Errorf("size:>=1M should compare against 1048576 bytes")
	}

	// The suffix only applies to the size field.
	si, _ := reg.Field("series_index")
	if _, err := matcherFor(si, ">1k", false, SearchConfig{}, time.Now()); err == nil {
		t.Errorf("expected an error for a k suffix on a plain float field")
	}
}

func TestNumericCoercionFromText(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("series_index")

	var warned bool
	cfg := SearchConfig{Logf: func(string, ...any) { warned = true }}

	pred := matcher(t, f, ">1", cfg)
	if !pred(Str("2.5")) {
		t.Errorf("numeric text should coerce")
	}
	if pred(Str("not a number")) {
		t.Errorf("uncoercible text must not match")
	}
	if !warned {
		t.Errorf("expected a coercion warning through Logf")
	}
}

func TestDateOperators(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("pubdate")
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	mk := func(val string) cellPredicate {
		pred, err := matcherFor(f, val, false, SearchConfig{}, now)
		if err != nil {
			t.Fatalf("matcherFor(%q): %v", val, err)
		}
		return pred
	}

	jan1 := TimeVal(time.Date(2020, 1, 1, 15, 30, 0, 0, time.UTC))

	// Day granularity: >= includes the named day, > excludes it.
	if !mk(">=2020-01-01")(jan1) {
		t.Errorf("2020-01-01 should satisfy >=2020-01-01")
	}
	if mk(">2020-01-01")(jan1) {
		t.Errorf("2020-01-01 must not satisfy >2020-01-01")
	}

	// Year granularity: any date inside 2020 equals 2020.
	if !mk("2020")(jan1) {
		t.Errorf("a 2020 date should equal the year 2020")
	}
	if !mk("=2020-01")(jan1) {
		t.Errorf("a January 2020 date should equal 2020-01")
	}
	if mk("2019")(jan1) {
		t.Errorf("a 2020 date must not equal 2019")
	}
}

func TestDateRelativeTokens(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("pubdate")
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	pred, err := matcherFor(f, "today", false, SearchConfig{}, now)
	if err != nil {
		t.Fatalf("matcherFor: %v", err)
	}
	if !pred(TimeVal(now.Add(-2 * time.Hour))) {
		t.Errorf("a timestamp earlier today should match today")
	}
	if pred(TimeVal(now.AddDate(0, 0, -1))) {
		t.Errorf("yesterday must not match today")
	}

	pred, err = matcherFor(f, ">=7daysago", false, SearchConfig{}, now)
	if err != nil {
		t.Fatalf("matcherFor: %v", err)
	}
	if !pred(TimeVal(now.AddDate(0, 0, -3))) {
		t.Errorf("3 days ago should satisfy >=7daysago")
	}
	if pred(TimeVal(now.AddDate(0, 0, -10))) {
		t.Errorf("10 days ago must not satisfy >=7daysago")
	}

	pred, err = matcherFor(f, "thismonth", false, SearchConfig{}, now)
	if err != nil {
		t.Fatalf("matcherFor: %v", err)
	}
	if !pred(TimeVal(time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC))) {
		t.Errorf("a date this month should match thismonth")
	}
}

func TestDateSentinelCountsAsUnset(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("pubdate")

	pred := matcher(t, f, "false", SearchConfig{})
	if !pred(TimeVal(time.Date(1970, 1, 1, 10, 0, 0, 0, time.UTC))) {
		t.Errorf("epoch-adjacent dates should count as unset")
	}
	if !pred(Null()) {
		t.Errorf("null should count as unset")
	}
	if pred(TimeVal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))) {
		t.Errorf("a real date is not unset")
	}
}

func TestDateInvalidOperand(t *testing.T) {
	reg := NewRegistry()
	f, _ := reg.Field("pubdate")
	_, err := matcherFor(f, "2020-13-01", false, SearchConfig{}, time.Now())
	if err == nil || !IsKind(err, ErrQueryParse) {
		t.Fatalf("expected query parse error for month 13, got %v", err)
	}
}

func TestBoolBinaryMode(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddCustom(Field{Key: "#read", Type: TypeBool}); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}
	f, _ := reg.Field("#read")

	pred := matcher(t, f, "false", SearchConfig{})
	if !pred(BoolVal(false)) || !pred(Null()) {
		t.Errorf("binary mode should fold unset into false")
	}
	if pred(BoolVal(true)) {
		t.Errorf("true must not match false")
	}
}

func TestBoolTriState(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddCustom(Field{Key: "#read", Type: TypeBool}); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}
	f, _ := reg.Field("#read")
	cfg := SearchConfig{TriStateBools: true}

	pred := matcher(t, f, "false", cfg)
	if !pred(BoolVal(false)) || pred(Null()) {
		t.Errorf("tri-state false must not include unset")
	}
	pred = matcher(t, f, "empty", cfg)
	if !pred(Null()) || pred(BoolVal(false)) {
		t.Errorf("tri-state empty should mean only unset")
	}
	pred = matcher(t, f, "yes", cfg)
	if !pred(BoolVal(true)) {
		t.Errorf("yes is a true synonym")
	}

	_, err := matcherFor(f, "maybe", false, cfg, time.Now())
	if err == nil || !IsKind(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch for an unknown bool token, got %v", err)
	}
}

func TestCompositeMatchedByHint(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddCustom(Field{Key: "#n", Type: TypeComposite, Template: "{series_index}", CompositeAs: CompositeNumber}); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}
	f, _ := reg.Field("#n")

	pred := matcher(t, f, ">2", SearchConfig{})
	if !pred(FloatVal(3)) || pred(FloatVal(1)) {
		t.Errorf("composite-as-number should use the numeric matcher")
	}
}
