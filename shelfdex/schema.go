package shelfdex

import (
	"fmt"
	"regexp"
	"strings"
)

// DataType is the closed set of field datatypes. Matchers and sort key
// generation switch over it exhaustively, so adding a type here forces
// both sites to handle it.
type DataType uint8

const (
	TypeNone DataType = iota
	TypeText
	TypeMultiText
	TypeComments
	TypeDateTime
	TypeInt
	TypeFloat
	TypeBool
	TypeRating
	TypeSeries
	TypeComposite
)

func (t DataType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeText:
		return "text"
	case TypeMultiText:
		return "multi-text"
	case TypeComments:
		return "comments"
	case TypeDateTime:
		return "datetime"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeRating:
		return "rating"
	case TypeSeries:
		return "series"
	case TypeComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// CompositeAs selects how a composite field's rendered text is
// interpreted for searching and sorting.
type CompositeAs uint8

const (
	CompositeText CompositeAs = iota
	CompositeNumber
	CompositeDate
	CompositeBool
)

// Field describes one column of the record store.
type Field struct {
	Key         string
	Label       string
	Type        DataType
	Multiple    string // element separator; "" means single-valued
	SearchTerms []string
	IsCategory  bool
	IsCustom    bool
	RecIndex    int

	// Composite fields only.
	Template    string
	CompositeAs CompositeAs

	// Category aggregation may compute an average rating for this
	// field's groups.
	UseAvgRating bool
}

// Searchable reports whether the generic "all" search visits this
// field's text.
func (f *Field) Searchable() bool {
	switch f.Type {
	case TypeText, TypeMultiText, TypeComments, TypeSeries:
		return true
	case TypeComposite:
		return f.CompositeAs == CompositeText
	default:
		return false
	}
}

var validFieldKeyRe = regexp.MustCompile(`^#?[A-Za-z_][A-Za-z0-9_]*$`)

// Registry holds every field descriptor, built-in and custom, and the
// alias and grouped-term tables used to resolve query locations.
type Registry struct {
	fields  map[string]*Field
	byTerm  map[string]string
	grouped map[string][]string
	order   []*Field
}

// NewRegistry returns a registry populated with the built-in book
// fields.
func NewRegistry() *Registry {
	r := &Registry{
		fields:  make(map[string]*Field),
		byTerm:  make(map[string]string),
		grouped: make(map[string][]string),
	}
	for _, f := range builtinFields() {
		if err := r.add(f); err != nil {
			// Built-ins are fixed at compile time; a collision here is
			// a programming error.
			panic(err)
		}
	}
	return r
}

func builtinFields() []Field {
	return []Field{
		{Key: "id", Label: "ID", Type: TypeInt, RecIndex: 0},
		{Key: "uuid", Label: "UUID", Type: TypeText, RecIndex: 1},
		{Key: "title", Label: "Title", Type: TypeText, SearchTerms: []string{"title"}, RecIndex: 2},
		{Key: "sort", Label: "Title Sort", Type: TypeText, SearchTerms: []string{"title_sort"}, RecIndex: 3},
		{Key: "authors", Label: "Authors", Type: TypeMultiText, Multiple: ",", SearchTerms: []string{"author", "authors"}, IsCategory: true, UseAvgRating: true, RecIndex: 4},
		{Key: "author_sort", Label: "Author Sort", Type: TypeText, SearchTerms: []string{"author_sort"}, RecIndex: 5},
		{Key: "tags", Label: "Tags", Type: TypeMultiText, Multiple: ",", SearchTerms: []string{"tag", "tags"}, IsCategory: true, UseAvgRating: true, RecIndex: 6},
		{Key: "series", Label: "Series", Type: TypeSeries, SearchTerms: []string{"series"}, IsCategory: true, UseAvgRating: true, RecIndex: 7},
		{Key: "series_index", Label: "Series Index", Type: TypeFloat, SearchTerms: []string{"series_index"}, RecIndex: 8},
		{Key: "rating", Label: "Rating", Type: TypeRating, SearchTerms: []string{"rating"}, IsCategory: true, RecIndex: 9},
		{Key: "publisher", Label: "Publisher", Type: TypeText, SearchTerms: []string{"publisher"}, IsCategory: true, UseAvgRating: true, RecIndex: 10},
		{Key: "pubdate", Label: "Published", Type: TypeDateTime, SearchTerms: []string{"pubdate"}, RecIndex: 11},
		{Key: "timestamp", Label: "Date", Type: TypeDateTime, SearchTerms: []string{"date"}, RecIndex: 12},
		{Key: "size", Label: "Size", Type: TypeFloat, SearchTerms: []string{"size"}, RecIndex: 13},
		{Key: "comments", Label: "Comments", Type: TypeComments, SearchTerms: []string{"comment", "comments"}, RecIndex: 14},
		{Key: "identifiers", Label: "Identifiers", Type: TypeMultiText, Multiple: ",", SearchTerms: []string{"identifier", "identifiers"}, RecIndex: 15},
		{Key: "formats", Label: "Formats", Type: TypeMultiText, Multiple: ",", SearchTerms: []string{"format", "formats"}, IsCategory: true, RecIndex: 16},
		{Key: "languages", Label: "Languages", Type: TypeMultiText, Multiple: ",", SearchTerms: []string{"language", "languages"}, IsCategory: true, RecIndex: 17},
		{Key: "path", Label: "Path", Type: TypeText, RecIndex: 18},
		{Key: "marked", Label: "Marked", Type: TypeText, RecIndex: 19},
	}
}

func (r *Registry) add(f Field) error {
	if !validFieldKeyRe.MatchString(f.Key) {
		return SchemaError(fmt.Sprintf("invalid field key: %s (must match %s)", f.Key, validFieldKeyRe.String()))
	}
	if _, ok := r.fields[f.Key]; ok {
		return SchemaError(fmt.Sprintf("duplicate field key: %s", f.Key))
	}
	if f.RecIndex != len(r.order) {
		return SchemaError(fmt.Sprintf("field %s: rec index %d out of order, want %d", f.Key, f.RecIndex, len(r.order)))
	}
	if f.Type == TypeComposite && f.Template == "" {
		return SchemaError(fmt.Sprintf("composite field %s has no template", f.Key))
	}
	fc := f
	r.fields[f.Key] = &fc
	r.order = append(r.order, &fc)
	for _, term := range f.SearchTerms {
		term = strings.ToLower(term)
		if prev, ok := r.byTerm[term]; ok && prev != f.Key {
			return SchemaError(fmt.Sprintf("search term %q maps to both %s and %s", term, prev, f.Key))
		}
		if _, ok := r.grouped[term]; ok {
			return SchemaError(fmt.Sprintf("search term %q collides with a grouped term", term))
		}
		r.byTerm[term] = f.Key
	}
	return nil
}

// AddCustom registers a user-defined column. Custom keys carry a '#'
// prefix; the rec index is assigned here, after all existing columns.
func (r *Registry) AddCustom(f Field) error {
	if !strings.HasPrefix(f.Key, "#") {
		return SchemaError(fmt.Sprintf("custom field key %q must start with '#'", f.Key))
	}
	f.IsCustom = true
	f.RecIndex = len(r.order)
	if len(f.SearchTerms) == 0 {
		f.SearchTerms = []string{strings.TrimPrefix(f.Key, "#")}
	}
	return r.add(f)
}

// AddGroupedTerm registers an alias that expands to several underlying
// fields. Grouped terms may only name plain fields: resolution recurses
// exactly one level.
func (r *Registry) AddGroupedTerm(name string, keys []string) error {
	name = strings.ToLower(name)
	if _, ok := r.byTerm[name]; ok {
		return SchemaError(fmt.Sprintf("grouped term %q collides with a search term", name))
	}
	if _, ok := r.fields[name]; ok {
		return SchemaError(fmt.Sprintf("grouped term %q collides with a field key", name))
	}
	if len(keys) == 0 {
		return SchemaError(fmt.Sprintf("grouped term %q has no member fields", name))
	}
	for _, k := range keys {
		if _, ok := r.fields[k]; !ok {
			return UnknownFieldError(k)
		}
	}
	r.grouped[name] = append([]string(nil), keys...)
	return nil
}

// Field retrieves a descriptor by key.
func (r *Registry) Field(key string) (*Field, bool) {
	f, ok := r.fields[key]
	return f, ok
}

// Resolve maps a query location (field key or search-term alias) to its
// descriptor.
func (r *Registry) Resolve(name string) (*Field, bool) {
	name = strings.ToLower(name)
	if f, ok := r.fields[name]; ok {
		return f, true
	}
	if key, ok := r.byTerm[name]; ok {
		return r.fields[key], true
	}
	return nil, false
}

// Grouped returns the member keys of a grouped search term.
func (r *Registry) Grouped(name string) ([]string, bool) {
	keys, ok := r.grouped[strings.ToLower(name)]
	return keys, ok
}

// Columns returns every descriptor in rec-index order.
func (r *Registry) Columns() []*Field {
	return r.order
}

// NumColumns is the fixed row width.
func (r *Registry) NumColumns() int {
	return len(r.order)
}

// SearchableFields returns the fields visited by an unqualified "all"
// search.
func (r *Registry) SearchableFields() []*Field {
	var out []*Field
	for _, f := range r.order {
		if f.Searchable() {
			out = append(out, f)
		}
	}
	return out
}

// CategoryFields returns the fields that contribute browse categories.
func (r *Registry) CategoryFields() []*Field {
	var out []*Field
	for _, f := range r.order {
		if f.IsCategory {
			out = append(out, f)
		}
	}
	return out
}
