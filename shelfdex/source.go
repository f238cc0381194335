package shelfdex

import (
	"context"
	"strconv"
	"strings"
)

// RawRow is one book read from the authoritative store, cells in
// registry column order.
type RawRow struct {
	ID    int64
	Cells []Value
}

// UserCategoryItem is one member of a user-defined category: a value
// paired with the field it lives in.
type UserCategoryItem struct {
	Value string
	Field string
}

// Source is the read boundary with the authoritative store. The cache
// mirrors it and never writes through it; durability is entirely the
// store's problem.
type Source interface {
	Connect(ctx context.Context) error
	Close() error

	// LoadAll returns every row, ordered by id.
	LoadAll(ctx context.Context, reg *Registry) ([]RawRow, error)

	// ReadRows re-reads just the given ids. Ids with no row in the
	// store are simply absent from the result.
	ReadRows(ctx context.Context, reg *Registry, ids []int64) ([]RawRow, error)

	// Count returns the number of rows in the store.
	Count(ctx context.Context) (int, error)

	// UserCategories enumerates the user-defined categories and their
	// (value, field) members.
	UserCategories(ctx context.Context) (map[string][]UserCategoryItem, error)

	// SavedSearches enumerates the saved searches by name.
	SavedSearches(ctx context.Context) (map[string]string, error)
}

// HasColumn reports whether a field is backed by a store column.
// Composite fields are computed and the marked slot is engine-local.
func HasColumn(f *Field) bool {
	return f.Type != TypeComposite && f.Key != "marked"
}

// ColumnName maps a field to its column in the mirrored books table.
// Custom fields store under a custom_ prefix instead of their '#' key.
func ColumnName(f *Field) string {
	if f.IsCustom {
		return "custom_" + strings.TrimPrefix(f.Key, "#")
	}
	return f.Key
}

// CellFromText converts one scanned column (as text) into a typed
// cell. SQL sources read every column as text and funnel it through
// here so the two backends share one coercion path.
func CellFromText(f *Field, s string, valid bool) Value {
	if !valid {
		return Null()
	}
	switch f.Type {
	case TypeText, TypeComments:
		return Str(s)
	case TypeMultiText:
		return StrList(splitMulti(s, f.Multiple))
	case TypeSeries:
		if strings.TrimSpace(s) == "" {
			return Null()
		}
		// The numeric sub-index lives in its own column; LoadAll
		// stitches it in after the row is built.
		return SeriesVal(Series{Name: s})
	case TypeDateTime:
		t, ok := parseDateLoose(strings.TrimSpace(s))
		if !ok {
			return Null()
		}
		return TimeVal(t)
	case TypeInt, TypeRating:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Null()
		}
		return IntVal(n)
	case TypeFloat:
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Null()
		}
		return FloatVal(n)
	case TypeBool:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "t", "true", "yes":
			return BoolVal(true)
		case "0", "f", "false", "no":
			return BoolVal(false)
		default:
			return Null()
		}
	default:
		return Null()
	}
}

// FinishRow links the cross-column pieces of a freshly scanned row:
// the series cell picks up its numeric sub-index.
func FinishRow(reg *Registry, cells []Value) {
	sf, ok1 := reg.Field("series")
	si, ok2 := reg.Field("series_index")
	if !ok1 || !ok2 {
		return
	}
	cell := cells[sf.RecIndex]
	if cell.Kind != KindSeries {
		return
	}
	if idx, ok := cells[si.RecIndex].AsFloat(); ok {
		cell.Ser.Index = idx
	} else {
		cell.Ser.Index = 1.0
	}
	cells[sf.RecIndex] = cell
}
