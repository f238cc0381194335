package shelfdex

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type sortKeyKind uint8

const (
	skText sortKeyKind = iota
	skNum
	skTime
	skBool
	skSeries
)

// sortKey is the comparable projection of one cell under one sort
// field.
type sortKey struct {
	kind   sortKeyKind
	key    []byte
	num    float64
	t      time.Time
	ord    int
	serIdx float64
}

// sorter derives comparable projections for every configured sort
// field. It is built per sort call.
type sorter struct {
	rec  *Records
	reg  *Registry
	cfg  SortConfig
	coll *collate.Collator
	buf  collate.Buffer
}

func newSorter(rec *Records, reg *Registry, cfg SortConfig) *sorter {
	tag := language.Und
	if cfg.Locale != "" {
		tag = language.Make(cfg.Locale)
	}
	return &sorter{
		rec:  rec,
		reg:  reg,
		cfg:  cfg,
		coll: collate.New(tag, collate.IgnoreCase),
	}
}

func (s *sorter) collKey(str string) []byte {
	s.buf.Reset()
	k := s.coll.KeyFromString(&s.buf, str)
	out := make([]byte, len(k))
	copy(out, k)
	return out
}

// projection derives the sortKey for one cell. Unparsable values get
// the type's neutral ranking rather than failing the whole sort.
func (s *sorter) projection(f *Field, cell Value) sortKey {
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
	case TypeSeries:
		if cell.Kind != KindSeries {
			return sortKey{kind: skSeries, key: s.collKey(""), serIdx: 1.0}
		}
		return sortKey{kind: skSeries, key: s.collKey(cell.Ser.SortName()), serIdx: cell.Ser.Index}

	case TypeDateTime:
		k := sortKey{kind: skTime}
		switch cell.Kind {
		case KindTime:
			if !dateUnset(cell.T) {
				k.t = cell.T
			}
		case KindString:
			if parsed, ok := parseDateLoose(strings.TrimSpace(cell.S)); ok && !dateUnset(parsed) {
				k.t = parsed
			}
		}
		return k

	case TypeInt, TypeFloat, TypeRating:
		k := sortKey{kind: skNum}
		if n, ok := cell.AsFloat(); ok {
			k.num = n
		} else if cell.Kind == KindString {
			if n, err := strconv.ParseFloat(strings.TrimSpace(cell.S), 64); err == nil {
				k.num = n
			}
		}
		return k

	case TypeBool:
		// true < false < unset; binary mode folds unset into false.
		k := sortKey{kind: skBool}
		switch {
		case cell.Kind == KindBool && cell.B:
			k.ord = 0
		case cell.Kind == KindBool:
			k.ord = 1
		case s.cfg.TriStateBools:
			k.ord = 2
		default:
			k.ord = 1
		}
		return k

	default:
		if f.Multiple != "" {
			// Element order inside the cell must not affect rank:
			// sort the elements by their own collation keys first.
			elems := append([]string(nil), cell.Strings()...)
			keys := make([][]byte, len(elems))
			for i, e := range elems {
				keys[i] = s.collKey(e)
			}
			sort.Sort(&byCollKey{elems: elems, keys: keys})
			return sortKey{kind: skText, key: s.collKey(strings.Join(elems, ","))}
		}
		return sortKey{kind: skText, key: s.collKey(cell.Display())}
	}
}

type byCollKey struct {
	elems []string
	keys  [][]byte
}

func (b *byCollKey) Len() int           { return len(b.elems) }
func (b *byCollKey) Less(i, j int) bool { return bytes.Compare(b.keys[i], b.keys[j]) < 0 }
func (b *byCollKey) Swap(i, j int) {
	b.elems[i], b.elems[j] = b.elems[j], b.elems[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}

func compareSortKeys(a, b sortKey) int {
	switch a.kind {
	case skSeries:
		if c := bytes.Compare(a.key, b.key); c != 0 {
			return c
		}
		return cmpFloat(a.serIdx, b.serIdx)
	case skTime:
		return a.t.Compare(b.t)
	case skNum:
		return cmpFloat(a.num, b.num)
	case skBool:
		return a.ord - b.ord
	default:
		return bytes.Compare(a.key, b.key)
	}
}

// sortIDs orders ids in place by the configured fields. With no fields
// the default is timestamp descending; subsort appends a final title
// sort unless one is already present. The id itself is the implicit
// last tiebreak, so the order is strictly total.
func sortIDs(ids []int64, rec *Records, reg *Registry, cfg SortConfig, fields []SortField, subsort bool) error {
	if len(fields) == 0 {
		fields = []SortField{{Key: "timestamp", Ascending: false}}
	}
	if subsort {
		present := false
		for _, sf := range fields {
			if sf.Key == "sort" {
				present = true
				break
			}
		}
		if !present {
			fields = append(append([]SortField(nil), fields...), SortField{Key: "sort", Ascending: true})
		}
	}

	descs := make([]*Field, len(fields))
	for i, sf := range fields {
		f, ok := reg.Resolve(sf.Key)
		if !ok {
			return UnknownFieldError(sf.Key)
		}
		descs[i] = f
	}

	s := newSorter(rec, reg, cfg)
	keys := make(map[int64][]sortKey, len(ids))
	for _, id := range ids {
		row, ok := rec.rows[id]
		if !ok {
			continue
		}
		ks := make([]sortKey, len(descs))
		for i, f := range descs {
			ks[i] = s.projection(f, rec.value(row, f))
		}
		keys[id] = ks
	}

	sort.Slice(ids, func(i, j int) bool {
		ka, kb := keys[ids[i]], keys[ids[j]]
		if ka == nil || kb == nil {
			return ids[i] < ids[j]
		}
		for n := range descs {
			c := compareSortKeys(ka[n], kb[n])
			if c == 0 {
				continue
			}
			if !fields[n].Ascending {
				c = -c
			}
			return c < 0
		}
		return ids[i] < ids[j]
	})
	return nil
}
