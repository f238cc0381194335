package shelfdex

import (
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/nonibytes/shelfdex/shelfdex/query"
)

// savedSearchDepthCap bounds saved searches referencing saved searches,
// which would otherwise loop on a cyclic definition.
const savedSearchDepthCap = 10

// searcher evaluates one parsed query against a record-store snapshot.
// It is built per search call; nothing in it outlives the call.
type searcher struct {
	reg    *Registry
	rec    *Records
	cfg    SearchConfig
	now    time.Time
	marked map[int64]string

	userCategories map[string][]UserCategoryItem
	savedSearches  map[string]string

	savedDepth int
	inGrouped  bool
}

func (s *searcher) eval(e query.Expr, cand *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	switch ex := e.(type) {
	case query.And:
		left, err := s.eval(ex.Left, cand)
		if err != nil {
			return nil, err
		}
		return s.eval(ex.Right, left)
	case query.Or:
		left, err := s.eval(ex.Left, cand)
		if err != nil {
			return nil, err
		}
		right, err := s.eval(ex.Right, cand)
		if err != nil {
			return nil, err
		}
		left.Or(right)
		return left, nil
	case query.Not:
		matched, err := s.eval(ex.Inner, cand)
		if err != nil {
			return nil, err
		}
		out := cand.Clone()
		out.AndNot(matched)
		return out, nil
	case query.Term:
		return s.evalTerm(ex, cand)
	default:
		return nil, QueryParseError("unhandled expression node")
	}
}

func (s *searcher) evalTerm(t query.Term, cand *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	loc := strings.ToLower(t.Location)

	switch {
	case strings.HasPrefix(loc, "@"):
		return s.matchUserCategory(loc[1:], cand)
	case loc == "marked":
		return s.matchMarked(t.Value, cand)
	case loc == "search":
		return s.matchSavedSearch(t.Value, cand)
	case loc == "isbn":
		// Bare isbn queries are shorthand for an exact identifier
		// pair lookup.
		f, _ := s.reg.Field("identifiers")
		return s.matchField(f, "isbn:="+t.Value, t.Quoted, cand)
	case loc == "all":
		return s.matchAll(t.Value, t.Quoted, cand)
	}

	if keys, ok := s.reg.Grouped(loc); ok {
		if s.inGrouped {
			return nil, QueryParseErrorAt("grouped search terms cannot nest", t.Pos, t.Location)
		}
		s.inGrouped = true
		defer func() { s.inGrouped = false }()

		out := roaring64.New()
		for _, key := range keys {
			f, ok := s.reg.Field(key)
			if !ok {
				return nil, UnknownFieldError(key)
			}
			m, err := s.matchField(f, t.Value, t.Quoted, cand)
			if err != nil {
				return nil, err
			}
			out.Or(m)
		}
		return out, nil
	}

	f, ok := s.reg.Resolve(loc)
	if !ok {
		return nil, UnknownFieldError(t.Location)
	}
	return s.matchField(f, t.Value, t.Quoted, cand)
}

// matchAll unions matches over every searchable text field, or over the
// configured limit-to subset when one is set.
func (s *searcher) matchAll(val string, quoted bool, cand *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	fields := s.reg.SearchableFields()
	if len(s.cfg.LimitToFields) > 0 {
		limited := make([]*Field, 0, len(s.cfg.LimitToFields))
		for _, key := range s.cfg.LimitToFields {
			if f, ok := s.reg.Resolve(key); ok && f.Searchable() {
				limited = append(limited, f)
			}
		}
		fields = limited
	}

	out := roaring64.New()
	for _, f := range fields {
		m, err := s.matchField(f, val, quoted, cand)
		if err != nil {
			return nil, err
		}
		out.Or(m)
	}
	return out, nil
}

func (s *searcher) matchField(f *Field, val string, quoted bool, cand *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	pred, err := matcherFor(f, val, quoted, s.cfg, s.now)
	if err != nil {
		return nil, err
	}

	out := roaring64.New()
	it := cand.Iterator()
	for it.HasNext() {
		id := it.Next()
		row, ok := s.rec.rows[int64(id)]
		if !ok {
			continue
		}
		if pred(s.rec.value(row, f)) {
			out.Add(id)
		}
	}
	return out, nil
}

// matchUserCategory expands @name to the union of its (value, field)
// member pairs. A trailing dot includes every sub-category under the
// name.
func (s *searcher) matchUserCategory(name string, cand *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	name = strings.TrimSpace(name)
	recursive := strings.HasSuffix(name, ".")
	name = strings.TrimSuffix(name, ".")

	var items []UserCategoryItem
	for cat, members := range s.userCategories {
		if strings.EqualFold(cat, name) ||
			(recursive && strings.HasPrefix(strings.ToLower(cat), strings.ToLower(name)+".")) {
			items = append(items, members...)
		}
	}
	if len(items) == 0 {
		return roaring64.New(), nil
	}

	out := roaring64.New()
	for _, item := range items {
		f, ok := s.reg.Resolve(item.Field)
		if !ok {
			continue
		}
		m, err := s.matchField(f, "="+item.Value, false, cand)
		if err != nil {
			return nil, err
		}
		out.Or(m)
	}
	return out, nil
}

// matchMarked consults the out-of-band marked-id map as a pseudo-field.
func (s *searcher) matchMarked(val string, cand *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	out := roaring64.New()
	switch val {
	case "true":
		for id := range s.marked {
			if cand.Contains(uint64(id)) {
				out.Add(uint64(id))
			}
		}
		return out, nil
	case "false":
		out = cand.Clone()
		for id := range s.marked {
			out.Remove(uint64(id))
		}
		return out, nil
	}

	tm, err := newTextMatcher(val)
	if err != nil {
		return nil, err
	}
	for id, label := range s.marked {
		if cand.Contains(uint64(id)) && tm.matchOne(label) {
			out.Add(uint64(id))
		}
	}
	return out, nil
}

func (s *searcher) matchSavedSearch(name string, cand *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	q, ok := s.savedSearches[name]
	if !ok {
		for n, body := range s.savedSearches {
			if strings.EqualFold(n, name) {
				q, ok = body, true
				break
			}
		}
	}
	if !ok {
		return nil, UnknownFieldError("search:" + name)
	}
	if s.savedDepth >= savedSearchDepthCap {
		return nil, QueryParseError("saved search " + name + " nests too deeply")
	}
	s.savedDepth++
	defer func() { s.savedDepth-- }()

	expr, err := query.Parse(q)
	if err != nil {
		return nil, wrapParseError(err)
	}
	return s.eval(expr, cand)
}

// wrapParseError lifts a query.ParseError into the engine's error type,
// keeping the offset and offending snippet.
func wrapParseError(err error) error {
	if pe, ok := err.(*query.ParseError); ok {
		return QueryParseErrorAt(pe.Msg, pe.Pos, pe.Snippet)
	}
	return Wrap(ErrQueryParse, "parse query", err)
}
