package shelfdex

import (
	"strconv"
	"strings"
)

// Row is one book record: a fixed-width tuple of cells in registry
// column order. Cell 0 is the record id.
type Row struct {
	cells []Value
}

// Records is the record store: the single owner of all rows, keyed by
// the authoritative store's integer id.
type Records struct {
	reg  *Registry
	rows map[int64]*Row
}

func NewRecords(reg *Registry) *Records {
	return &Records{reg: reg, rows: make(map[int64]*Row)}
}

// SetRow installs or replaces the row for id. Composite cells are reset
// to unevaluated regardless of what the caller passed for them.
func (rc *Records) SetRow(id int64, cells []Value) error {
	if len(cells) != rc.reg.NumColumns() {
		return SchemaError("row width " + strconv.Itoa(len(cells)) + " does not match schema width " + strconv.Itoa(rc.reg.NumColumns()))
	}
	row := &Row{cells: append([]Value(nil), cells...)}
	row.cells[0] = IntVal(id)
	for _, f := range rc.reg.order {
		if f.Type == TypeComposite {
			row.cells[f.RecIndex] = unevaluated()
		}
	}
	rc.rows[id] = row
	return nil
}

// Remove drops the row for id. Removing an absent id is a no-op; stale
// removals are expected during refresh races.
func (rc *Records) Remove(id int64) {
	delete(rc.rows, id)
}

func (rc *Records) Has(id int64) bool {
	_, ok := rc.rows[id]
	return ok
}

func (rc *Records) Len() int {
	return len(rc.rows)
}

// IDs returns every live row id, in no particular order.
func (rc *Records) IDs() []int64 {
	out := make([]int64, 0, len(rc.rows))
	for id := range rc.rows {
		out = append(out, id)
	}
	return out
}

// Get returns the cell for (id, field key or alias), materializing
// composite cells on first read.
func (rc *Records) Get(id int64, key string) (Value, error) {
	row, ok := rc.rows[id]
	if !ok {
		return Null(), NotFoundError(id)
	}
	f, ok := rc.reg.Resolve(key)
	if !ok {
		return Null(), UnknownFieldError(key)
	}
	return rc.value(row, f), nil
}

// Set writes the cell for (id, field key). This is cache-side only;
// persisting the change is the caller's job. Any write invalidates the
// row's composite cells.
func (rc *Records) Set(id int64, key string, v Value) error {
	row, ok := rc.rows[id]
	if !ok {
		return StaleRowError(id)
	}
	f, ok := rc.reg.Resolve(key)
	if !ok {
		return UnknownFieldError(key)
	}
	if f.Key == "id" {
		return SchemaError("the id column is immutable")
	}
	if f.Type == TypeComposite {
		return SchemaError("composite field " + f.Key + " is computed, not stored")
	}
	row.cells[f.RecIndex] = v
	rc.Touch(id)
	return nil
}

// Touch invalidates the memoized composite cells of a row. Mutation
// hooks call it after any write.
func (rc *Records) Touch(id int64) {
	row, ok := rc.rows[id]
	if !ok {
		return
	}
	for _, f := range rc.reg.order {
		if f.Type == TypeComposite {
			row.cells[f.RecIndex] = unevaluated()
		}
	}
}

// value reads a cell by descriptor, computing and memoizing composite
// cells.
func (rc *Records) value(row *Row, f *Field) Value {
	cell := row.cells[f.RecIndex]
	if f.Type != TypeComposite || cell.Kind != KindUnevaluated {
		return cell
	}
	v := rc.renderComposite(row, f, 0)
	row.cells[f.RecIndex] = v
	return v
}

// compositeDepthCap bounds composite-referencing-composite chains.
const compositeDepthCap = 2

func (rc *Records) renderComposite(row *Row, f *Field, depth int) Value {
	text := rc.renderTemplate(row, f.Template, depth)
	switch f.CompositeAs {
	case CompositeNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return Null()
		}
		return FloatVal(n)
	case CompositeDate:
		t, ok := parseDateLoose(strings.TrimSpace(text))
		if !ok {
			return Null()
		}
		return TimeVal(t)
	case CompositeBool:
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "true", "yes", "checked":
			return BoolVal(true)
		case "false", "no", "unchecked":
			return BoolVal(false)
		default:
			return Null()
		}
	default:
		if f.Multiple != "" {
			return StrList(splitMulti(text, f.Multiple))
		}
		return Str(text)
	}
}

// renderTemplate substitutes {field} placeholders with the display form
// of the named cell.
func (rc *Records) renderTemplate(row *Row, tmpl string, depth int) string {
	var sb strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		sb.WriteString(rest[:open])
		name := rest[open+1 : open+closing]
		rest = rest[open+closing+1:]

		ref, ok := rc.reg.Resolve(name)
		if !ok {
			continue
		}
		var v Value
		if ref.Type == TypeComposite {
			if depth+1 >= compositeDepthCap {
				continue
			}
			v = rc.renderComposite(row, ref, depth+1)
		} else {
			v = row.cells[ref.RecIndex]
		}
		sb.WriteString(v.Display())
	}
}

// splitMulti splits a separator-joined multi-value string, trimming
// whitespace and dropping empties.
func splitMulti(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
