package shelfdex

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// CategoryItem is one browsable group inside a category: a distinct
// field value, how many candidate rows carry it, a representative row
// id and, where configured, the average rating of the group.
type CategoryItem struct {
	Value     string
	Count     int
	ID        int64
	AvgRating float64
}

// CategoryOptions selects the ordering inside each category.
type CategoryOptions struct {
	// ByCount orders groups by descending count instead of
	// alphabetically.
	ByCount bool
}

type catGroup struct {
	display   string
	count     int
	id        int64
	ratingSum float64
	ratingN   int
}

// Categories groups the candidate ids by value for every
// category-bearing field, plus user categories (keyed @name) and saved
// searches (keyed "search"). Zero-count groups are dropped. Candidates
// default to the standing restriction, or every live row.
func (c *Cache) Categories(ctx context.Context, restrictTo *roaring64.Bitmap, opts CategoryOptions) (map[string][]CategoryItem, error) {
	cand := restrictTo
	if cand == nil {
		if c.restrictionSet != nil {
			cand = c.restrictionSet
		} else {
			cand = c.liveBitmap()
		}
	}

	out := make(map[string][]CategoryItem)
	for _, f := range c.reg.CategoryFields() {
		groups := make(map[string]*catGroup)
		it := cand.Iterator()
		for it.HasNext() {
			id := int64(it.Next())
			row, ok := c.rec.rows[id]
			if !ok {
				continue
			}
			elems := categoryElements(f, c.rec.value(row, f))
			if len(elems) == 0 {
				continue
			}
			var rating float64
			var rated bool
			if f.UseAvgRating {
				if rf, ok := c.reg.Field("rating"); ok {
					if n, ok := c.rec.value(row, rf).AsFloat(); ok && n > 0 {
						rating, rated = n/2, true
					}
				}
			}
			for _, e := range elems {
				key := strings.ToLower(e)
				g := groups[key]
				if g == nil {
					g = &catGroup{display: e, id: id}
					groups[key] = g
				}
				g.count++
				if rated {
					g.ratingSum += rating
					g.ratingN++
				}
			}
		}
		if len(groups) == 0 {
			continue
		}
		out[f.Key] = c.sortedItems(groups, opts)
	}

	if err := c.userCategoryGroups(ctx, cand, opts, out); err != nil {
		return nil, err
	}
	if err := c.savedSearchGroups(ctx, cand, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) sortedItems(groups map[string]*catGroup, opts CategoryOptions) []CategoryItem {
	items := make([]CategoryItem, 0, len(groups))
	for _, g := range groups {
		item := CategoryItem{Value: g.display, Count: g.count, ID: g.id}
		if g.ratingN > 0 {
			item.AvgRating = g.ratingSum / float64(g.ratingN)
		}
		items = append(items, item)
	}

	s := newSorter(c.rec, c.reg, c.sortCfg)
	keys := make(map[string][]byte, len(items))
	for _, item := range items {
		keys[item.Value] = s.collKey(item.Value)
	}
	sort.Slice(items, func(i, j int) bool {
		if opts.ByCount && items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return bytes.Compare(keys[items[i].Value], keys[items[j].Value]) < 0
	})
	return items
}

// categoryElements extracts the countable elements of a cell for one
// category field. Multi-valued cells contribute one count per distinct
// element.
func categoryElements(f *Field, cell Value) []string {
	switch f.Type {
	case TypeRating:
		n, ok := cell.AsFloat()
		if !ok || n <= 0 {
			return nil
		}
		return []string{strconv.FormatFloat(n/2, 'f', -1, 64)}
	case TypeBool:
		if cell.Kind != KindBool {
			return nil
		}
		return []string{cell.Display()}
	default:
		return cell.Strings()
	}
}

func (c *Cache) userCategoryGroups(ctx context.Context, cand *roaring64.Bitmap, opts CategoryOptions, out map[string][]CategoryItem) error {
	cats, err := c.src.UserCategories(ctx)
	if err != nil {
		return Wrap(ErrSQL, "load user categories", err)
	}
	now := time.Now().UTC()
	for name, members := range cats {
		groups := make(map[string]*catGroup)
		for _, member := range members {
			f, ok := c.reg.Resolve(member.Field)
			if !ok {
				continue
			}
			// Same exact-match construction the evaluator uses for
			// @name terms, so typed fields keep their own semantics.
			pred, err := matcherFor(f, "="+member.Value, false, c.searchCfg, now)
			if err != nil {
				continue
			}
			it := cand.Iterator()
			for it.HasNext() {
				id := int64(it.Next())
				row, ok := c.rec.rows[id]
				if !ok {
					continue
				}
				if !pred(c.rec.value(row, f)) {
					continue
				}
				key := strings.ToLower(member.Value)
				g := groups[key]
				if g == nil {
					g = &catGroup{display: member.Value, id: id}
					groups[key] = g
				}
				g.count++
			}
		}
		if len(groups) == 0 {
			continue
		}
		out["@"+name] = c.sortedItems(groups, opts)
	}
	return nil
}

func (c *Cache) savedSearchGroups(ctx context.Context, cand *roaring64.Bitmap, out map[string][]CategoryItem) error {
	saved, err := c.src.SavedSearches(ctx)
	if err != nil {
		return Wrap(ErrSQL, "load saved searches", err)
	}
	var items []CategoryItem
	for name, q := range saved {
		matched, err := c.evalQuery(ctx, q, cand.Clone())
		if err != nil {
			// A saved search that no longer parses should not take
			// category browsing down with it.
			continue
		}
		n := int(matched.GetCardinality())
		if n == 0 {
			continue
		}
		items = append(items, CategoryItem{Value: name, Count: n, ID: int64(matched.Minimum())})
	}
	if len(items) == 0 {
		return nil
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Value < items[j].Value })
	out["search"] = items
	return nil
}
