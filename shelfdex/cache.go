package shelfdex

import (
	"context"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/nonibytes/shelfdex/shelfdex/query"
)

// Cache is the in-memory search-and-sort view over the authoritative
// store. All methods are synchronous and must be called from a single
// owning goroutine; the host serializes access, not the cache.
type Cache struct {
	reg *Registry
	src Source
	rec *Records

	searchCfg SearchConfig
	sortCfg   SortConfig

	// fullOrder is every live id in the current sort order; filtered
	// is fullOrder intersected with the active search and restriction.
	fullOrder   []int64
	filtered    []int64
	filteredSet *roaring64.Bitmap

	activeSearch    string
	restriction     string
	restrictionSet  *roaring64.Bitmap
	restrictedCount int

	marked   map[int64]string
	lastSort []SortField
}

// NewCache builds an empty cache; call Load before anything else.
func NewCache(src Source, reg *Registry, searchCfg SearchConfig, sortCfg SortConfig) *Cache {
	return &Cache{
		reg:             reg,
		src:             src,
		rec:             NewRecords(reg),
		searchCfg:       searchCfg,
		sortCfg:         sortCfg,
		filteredSet:     roaring64.New(),
		restrictedCount: -1,
		marked:          make(map[int64]string),
	}
}

// Records exposes the record store for read-only consumers.
func (c *Cache) Records() *Records { return c.rec }

// Registry returns the field schema registry the cache was built with.
func (c *Cache) Registry() *Registry { return c.reg }

// Load rebuilds the record store and both id orders from the
// authoritative store. Restriction and marks are reset.
func (c *Cache) Load(ctx context.Context) error {
	rows, err := c.src.LoadAll(ctx, c.reg)
	if err != nil {
		return Wrap(ErrSQL, "load library", err)
	}

	rec := NewRecords(c.reg)
	full := make([]int64, 0, len(rows))
	set := roaring64.New()
	for _, r := range rows {
		if err := rec.SetRow(r.ID, r.Cells); err != nil {
			return err
		}
		full = append(full, r.ID)
		set.Add(uint64(r.ID))
	}

	c.rec = rec
	c.fullOrder = full
	c.filtered = append([]int64(nil), full...)
	c.filteredSet = set
	c.activeSearch = ""
	c.restriction = ""
	c.restrictionSet = nil
	c.restrictedCount = -1
	c.marked = make(map[int64]string)
	c.lastSort = nil
	return nil
}

func (c *Cache) liveBitmap() *roaring64.Bitmap {
	out := roaring64.New()
	for _, id := range c.fullOrder {
		out.Add(uint64(id))
	}
	return out
}

// evalQuery parses and evaluates a query string over the candidate
// set. An empty query matches every candidate.
func (c *Cache) evalQuery(ctx context.Context, q string, cand *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return cand.Clone(), nil
	}
	expr, err := query.Parse(trimmed)
	if err != nil {
		return nil, wrapParseError(err)
	}

	s := &searcher{
		reg:    c.reg,
		rec:    c.rec,
		cfg:    c.searchCfg,
		now:    time.Now().UTC(),
		marked: c.marked,
	}
	// User categories and saved searches live in the authoritative
	// store and are consulted once per search, never cached here.
	lower := strings.ToLower(trimmed)
	if strings.Contains(trimmed, "@") || strings.Contains(lower, "search:") {
		cats, err := c.src.UserCategories(ctx)
		if err != nil {
			return nil, Wrap(ErrSQL, "load user categories", err)
		}
		s.userCategories = cats
	}
	if strings.Contains(lower, "search:") {
		saved, err := c.src.SavedSearches(ctx)
		if err != nil {
			return nil, Wrap(ErrSQL, "load saved searches", err)
		}
		s.savedSearches = saved
	}

	return s.eval(expr, cand)
}

// Search evaluates q under the standing restriction and returns the
// matching ids in full order. With commit the result becomes the
// filtered view.
func (c *Cache) Search(ctx context.Context, q string, commit bool) ([]int64, error) {
	cand := c.liveBitmap()
	if c.restrictionSet != nil {
		cand = c.restrictionSet.Clone()
	}

	matched, err := c.evalQuery(ctx, q, cand)
	if err != nil {
		return nil, err
	}

	seq := make([]int64, 0, matched.GetCardinality())
	for _, id := range c.fullOrder {
		if matched.Contains(uint64(id)) {
			seq = append(seq, id)
		}
	}

	if c.restriction != "" && q == c.restriction {
		c.restrictedCount = len(seq)
	}
	if commit {
		c.filtered = seq
		c.filteredSet = matched
		c.activeSearch = q
	}
	return append([]int64(nil), seq...), nil
}

// SetRestriction installs a standing query that is ANDed into every
// subsequent search. An empty string clears it. The active search is
// re-run against the new restriction.
func (c *Cache) SetRestriction(ctx context.Context, q string) error {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		c.restriction = ""
		c.restrictionSet = nil
		c.restrictedCount = -1
	} else {
		matched, err := c.evalQuery(ctx, trimmed, c.liveBitmap())
		if err != nil {
			return err
		}
		c.restriction = trimmed
		c.restrictionSet = matched
		c.restrictedCount = int(matched.GetCardinality())
	}
	_, err := c.Search(ctx, c.activeSearch, true)
	return err
}

// Restriction returns the standing query, if any.
func (c *Cache) Restriction() string { return c.restriction }

// RestrictedCount is the size of the restriction set after the last
// restriction-only search, or -1 when no restriction is installed.
func (c *Cache) RestrictedCount() int { return c.restrictedCount }

// Sort reorders the full id order by the given fields, then re-derives
// the filtered order by membership against the previous filtered set.
// The query is not re-evaluated.
func (c *Cache) Sort(fields []SortField, subsort bool) error {
	if err := sortIDs(c.fullOrder, c.rec, c.reg, c.sortCfg, fields, subsort); err != nil {
		return err
	}
	c.lastSort = append([]SortField(nil), fields...)

	filtered := c.filtered[:0]
	for _, id := range c.fullOrder {
		if c.filteredSet.Contains(uint64(id)) {
			filtered = append(filtered, id)
		}
	}
	c.filtered = filtered
	return nil
}

// matchesView reports whether id matches the active restriction and
// search.
func (c *Cache) matchesView(ctx context.Context, id int64) (bool, error) {
	cand := roaring64.New()
	cand.Add(uint64(id))
	if c.restriction != "" {
		m, err := c.evalQuery(ctx, c.restriction, cand)
		if err != nil {
			return false, err
		}
		cand = m
		if cand.IsEmpty() {
			return false, nil
		}
	}
	m, err := c.evalQuery(ctx, c.activeSearch, cand)
	if err != nil {
		return false, err
	}
	return m.Contains(uint64(id)), nil
}

// RefreshIDs re-reads just the given rows from the authoritative
// store. The returned slice is aligned with ids: the new position in
// the filtered view, or -1 when the row left the view (or the store).
func (c *Cache) RefreshIDs(ctx context.Context, ids []int64) ([]int, error) {
	rows, err := c.src.ReadRows(ctx, c.reg, ids)
	if err != nil {
		return nil, Wrap(ErrSQL, "refresh rows", err)
	}
	byID := make(map[int64]RawRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	changed := false
	for _, id := range ids {
		r, inStore := byID[id]
		if !inStore {
			// Deleted underneath us; removal races are expected.
			c.RowRemoved([]int64{id})
			changed = true
			continue
		}
		if !c.rec.Has(id) {
			// Stale refresh for a row this cache never had; adding is
			// RowAdded's job.
			continue
		}
		if err := c.rec.SetRow(id, r.Cells); err != nil {
			return nil, err
		}
		if label, ok := c.marked[id]; ok {
			_ = c.rec.Set(id, "marked", Str(label))
		}

		match, err := c.matchesView(ctx, id)
		if err != nil {
			return nil, err
		}
		if match != c.filteredSet.Contains(uint64(id)) {
			if match {
				c.filteredSet.Add(uint64(id))
			} else {
				c.filteredSet.Remove(uint64(id))
			}
			changed = true
		}
	}
	if changed {
		c.rederiveFiltered()
	}

	positions := make([]int, len(ids))
	pos := make(map[int64]int, len(c.filtered))
	for i, id := range c.filtered {
		pos[id] = i
	}
	for i, id := range ids {
		if p, ok := pos[id]; ok {
			positions[i] = p
		} else {
			positions[i] = -1
		}
	}
	return positions, nil
}

func (c *Cache) rederiveFiltered() {
	filtered := make([]int64, 0, len(c.filtered))
	for _, id := range c.fullOrder {
		if c.filteredSet.Contains(uint64(id)) {
			filtered = append(filtered, id)
		}
	}
	c.filtered = filtered
}

// RowAdded mirrors newly created rows. They are prepended to the full
// order, pending the next explicit sort; ones matching the current view
// are prepended to the filtered order too.
func (c *Cache) RowAdded(ctx context.Context, ids []int64) error {
	rows, err := c.src.ReadRows(ctx, c.reg, ids)
	if err != nil {
		return Wrap(ErrSQL, "read added rows", err)
	}
	byID := make(map[int64]RawRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	var added []int64
	for _, id := range ids {
		r, ok := byID[id]
		if !ok || c.rec.Has(id) {
			continue
		}
		if err := c.rec.SetRow(id, r.Cells); err != nil {
			return err
		}
		added = append(added, id)
	}
	if len(added) == 0 {
		return nil
	}

	c.fullOrder = append(append([]int64(nil), added...), c.fullOrder...)

	if c.restrictionSet != nil {
		for _, id := range added {
			cand := roaring64.New()
			cand.Add(uint64(id))
			m, err := c.evalQuery(ctx, c.restriction, cand)
			if err != nil {
				return err
			}
			c.restrictionSet.Or(m)
		}
	}

	var visible []int64
	for _, id := range added {
		match, err := c.matchesView(ctx, id)
		if err != nil {
			return err
		}
		if match {
			visible = append(visible, id)
			c.filteredSet.Add(uint64(id))
		}
	}
	c.filtered = append(append([]int64(nil), visible...), c.filtered...)
	return nil
}

// RowRemoved drops rows from the store, both id orders, the marked map
// and the restriction set. Ids with no row are ignored; removal races
// are expected.
func (c *Cache) RowRemoved(ids []int64) {
	gone := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !c.rec.Has(id) {
			continue
		}
		c.rec.Remove(id)
		delete(c.marked, id)
		c.filteredSet.Remove(uint64(id))
		if c.restrictionSet != nil {
			c.restrictionSet.Remove(uint64(id))
		}
		gone[id] = true
	}
	if len(gone) == 0 {
		return
	}
	c.fullOrder = excise(c.fullOrder, gone)
	c.filtered = excise(c.filtered, gone)
}

func excise(ids []int64, gone map[int64]bool) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if !gone[id] {
			out = append(out, id)
		}
	}
	return out
}

// SetMarked replaces the marked-id map. The in-row marked slot is
// cleared for ids leaving the map and set for ids entering it.
func (c *Cache) SetMarked(m map[int64]string) {
	for id := range c.marked {
		if _, still := m[id]; !still {
			_ = c.rec.Set(id, "marked", Null())
		}
	}
	fresh := make(map[int64]string, len(m))
	for id, label := range m {
		if !c.rec.Has(id) {
			continue
		}
		fresh[id] = label
		_ = c.rec.Set(id, "marked", Str(label))
	}
	c.marked = fresh
}

// SetMarkedIDs bulk-marks a plain id set with the literal "true"
// label.
func (c *Cache) SetMarkedIDs(ids []int64) {
	m := make(map[int64]string, len(ids))
	for _, id := range ids {
		m[id] = "true"
	}
	c.SetMarked(m)
}

// Marked returns the label for a marked id.
func (c *Cache) Marked(id int64) (string, bool) {
	label, ok := c.marked[id]
	return label, ok
}

// MarkedIDs returns a copy of the marked-id map.
func (c *Cache) MarkedIDs() map[int64]string {
	out := make(map[int64]string, len(c.marked))
	for id, label := range c.marked {
		out[id] = label
	}
	return out
}

// Get reads a field of a row by id.
func (c *Cache) Get(id int64, key string) (Value, error) {
	return c.rec.Get(id, key)
}

// GetAt reads a field of the row at a position in the filtered view.
func (c *Cache) GetAt(pos int, key string) (Value, error) {
	if pos < 0 || pos >= len(c.filtered) {
		return Null(), New(ErrNotFound, "position out of range")
	}
	return c.rec.Get(c.filtered[pos], key)
}

// Set writes a field of a row, cache-side only; the caller persists
// separately and should follow up with RefreshIDs.
func (c *Cache) Set(id int64, key string, v Value) error {
	return c.rec.Set(id, key, v)
}

// SetAt writes a field of the row at a position in the filtered view.
func (c *Cache) SetAt(pos int, key string, v Value) error {
	if pos < 0 || pos >= len(c.filtered) {
		return New(ErrNotFound, "position out of range")
	}
	return c.rec.Set(c.filtered[pos], key, v)
}

// IndexOf returns the position of id in the filtered view.
func (c *Cache) IndexOf(id int64) (int, error) {
	for i, cur := range c.filtered {
		if cur == id {
			return i, nil
		}
	}
	return 0, NotFoundError(id)
}

// RowCount is the size of the filtered view.
func (c *Cache) RowCount() int { return len(c.filtered) }

// Count is the number of live rows, filtered or not.
func (c *Cache) Count() int { return c.rec.Len() }

// AllIDs returns the full id order.
func (c *Cache) AllIDs() []int64 {
	return append([]int64(nil), c.fullOrder...)
}

// FilteredIDs returns the filtered id order.
func (c *Cache) FilteredIDs() []int64 {
	return append([]int64(nil), c.filtered...)
}
