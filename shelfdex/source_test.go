package shelfdex

import (
	"testing"
	"time"
)

func TestColumnName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddCustom(Field{Key: "#genre", Type: TypeText}); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}

	f, _ := reg.Field("title")
	if got := ColumnName(f); got != "title" {
		t.Errorf("expected title, got %s", got)
	}
	f, _ = reg.Field("#genre")
	if got := ColumnName(f); got != "custom_genre" {
		t.Errorf("expected custom_genre, got %s", got)
	}
}

func TestHasColumn(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddCustom(Field{Key: "#c", Type: TypeComposite, Template: "{title}"}); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}

	f, _ := reg.Field("title")
	if !HasColumn(f) {
		t.Errorf("title is a stored column")
	}
	f, _ = reg.Field("#c")
	if HasColumn(f) {
		t.Errorf("composites are computed, not stored")
	}
	f, _ = reg.Field("marked")
	if HasColumn(f) {
		t.Errorf("the marked slot is engine-local")
	}
}

func TestCellFromText(t *testing.T) {
	reg := NewRegistry()

	title, _ := reg.Field("title")
	if v := CellFromText(title, "Dune", true); v.Kind != KindString || v.S != "Dune" {
		t.Errorf("text: got %+v", v)
	}
	if v := CellFromText(title, "", false); !v.IsNull() {
		t.Errorf("NULL column should give a null cell, got %+v", v)
	}

	tags, _ := reg.Field("tags")
	v := CellFromText(tags, "fantasy, classic ,", true)
	if v.Kind != KindStrings || len(v.A) != 2 || v.A[0] != "fantasy" || v.A[1] != "classic" {
		t.Errorf("multi-text: got %+v", v)
	}

	pubdate, _ := reg.Field("pubdate")
	v = CellFromText(pubdate, "2021-06-01 12:00:00", true)
	if v.Kind != KindTime || v.T.Year() != 2021 {
		t.Errorf("datetime: got %+v", v)
	}
	if v = CellFromText(pubdate, "not a date", true); !v.IsNull() {
		t.Errorf("bad datetime should give null, got %+v", v)
	}

	rating, _ := reg.Field("rating")
	if v = CellFromText(rating, "8", true); v.Kind != KindInt || v.I64 != 8 {
		t.Errorf("rating: got %+v", v)
	}

	size, _ := reg.Field("size")
	if v = CellFromText(size, "1048576", true); v.Kind != KindFloat || v.F64 != 1048576 {
		t.Errorf("float: got %+v", v)
	}

	series, _ := reg.Field("series")
	if v = CellFromText(series, "The Culture", true); v.Kind != KindSeries || v.Ser.Name != "The Culture" {
		t.Errorf("series: got %+v", v)
	}
	if v = CellFromText(series, "  ", true); !v.IsNull() {
		t.Errorf("blank series should give null, got %+v", v)
	}
}

func TestCellFromTextBool(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddCustom(Field{Key: "#read", Type: TypeBool}); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}
	f, _ := reg.Field("#read")

	for _, s := range []string{"1", "t", "true", "yes"} {
		if v := CellFromText(f, s, true); v.Kind != KindBool || !v.B {
			t.Errorf("%q should scan as true, got %+v", s, v)
		}
	}
	for _, s := range []string{"0", "f", "false", "no"} {
		if v := CellFromText(f, s, true); v.Kind != KindBool || v.B {
			t.Errorf("%q should scan as false, got %+v", s, v)
		}
	}
	if v := CellFromText(f, "maybe", true); !v.IsNull() {
		t.Errorf("unknown token should scan as null, got %+v", v)
	}
}

func TestFinishRowStitchesSeriesIndex(t *testing.T) {
	reg := NewRegistry()
	cells := make([]Value, reg.NumColumns())
	for i := range cells {
		cells[i] = Null()
	}
	sf, _ := reg.Field("series")
	si, _ := reg.Field("series_index")
	cells[sf.RecIndex] = SeriesVal(Series{Name: "The Culture"})
	cells[si.RecIndex] = FloatVal(3)

	FinishRow(reg, cells)
	if cells[sf.RecIndex].Ser.Index != 3 {
		t.Errorf("expected index 3 stitched in, got %v", cells[sf.RecIndex].Ser.Index)
	}

	// Missing index defaults to 1.
	cells[sf.RecIndex] = SeriesVal(Series{Name: "The Culture"})
	cells[si.RecIndex] = Null()
	FinishRow(reg, cells)
	if cells[sf.RecIndex].Ser.Index != 1 {
		t.Errorf("expected default index 1, got %v", cells[sf.RecIndex].Ser.Index)
	}
}

func TestValueDisplay(t *testing.T) {
	if got := StrList([]string{"a", "b"}).Display(); got != "a, b" {
		t.Errorf("multi display: %q", got)
	}
	if got := SeriesVal(Series{Name: "Culture", Index: 2}).Display(); got != "Culture" {
		t.Errorf("series display: %q", got)
	}
	when := time.Date(2020, 3, 4, 10, 0, 0, 0, time.UTC)
	if got := TimeVal(when).Display(); got != "2020-03-04" {
		t.Errorf("time display: %q", got)
	}
	// Sentinel dates render as empty.
	if got := TimeVal(time.Unix(0, 0).UTC()).Display(); got != "" {
		t.Errorf("sentinel display: %q", got)
	}
	if got := Null().Display(); got != "" {
		t.Errorf("null display: %q", got)
	}
}

func TestValueStrings(t *testing.T) {
	if got := Str("x").Strings(); len(got) != 1 || got[0] != "x" {
		t.Errorf("single text: %v", got)
	}
	if got := Str("").Strings(); got != nil {
		t.Errorf("empty text should have no elements: %v", got)
	}
	if got := SeriesVal(Series{Name: "Culture"}).Strings(); len(got) != 1 {
		t.Errorf("series: %v", got)
	}
	if got := IntVal(5).Strings(); got != nil {
		t.Errorf("numbers have no element view: %v", got)
	}
}
