package listview

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Compare orders two records by one sort key, ascending.
type Compare[T any] func(a, b T) int

// ByString compares a string projection case-insensitively.
func ByString[T any](field func(T) string) Compare[T] {
	return func(a, b T) int {
		return strings.Compare(strings.ToLower(field(a)), strings.ToLower(field(b)))
	}
}

// ByNumber compares a numeric projection.
func ByNumber[T any, N cmp.Ordered](field func(T) N) Compare[T] {
	return func(a, b T) int {
		return cmp.Compare(field(a), field(b))
	}
}

// ByTime compares a timestamp projection at millisecond precision. Zero
// times sort first.
func ByTime[T any](field func(T) time.Time) Compare[T] {
	return func(a, b T) int {
		return cmp.Compare(millis(field(a)), millis(field(b)))
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Schema describes how a record type is filtered, searched and sorted.
type Schema[T any] struct {
	// Filters maps a filter name to the field it matches (case-insensitive).
	Filters map[string]func(T) string
	// Date returns the record timestamp for the date-range filter. ok=false
	// means the record has none.
	Date func(T) (t time.Time, ok bool)
	// Search lists the fields the free-text search looks in.
	Search []func(T) string
	// Sorts maps a sort key to its comparison.
	Sorts map[string]Compare[T]
}

// View is the visible page plus pagination metadata.
type View[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
}

// Derive runs filter → date range → search → sort → paginate over items.
// It never mutates items and returns the same view for the same inputs.
func Derive[T any](items []T, p Params, s Schema[T]) View[T] {
	matched := Match(items, p, s)
	return Paginate(matched, p)
}

// Match returns the records passing every active filter and the search,
// sorted, before pagination. The result is a fresh slice.
func Match[T any](items []T, p Params, s Schema[T]) []T {
	p = p.normalized()

	out := make([]T, 0, len(items))
	for _, item := range items {
		if passesFilters(item, p, s) && inDateRange(item, p, s) && matchesSearch(item, p.Search, s) {
			out = append(out, item)
		}
	}

	if less, ok := s.Sorts[p.SortKey]; ok && less != nil {
		if p.SortDir == Desc {
			slices.SortStableFunc(out, func(a, b T) int { return -less(a, b) })
		} else {
			slices.SortStableFunc(out, less)
		}
	}
	return out
}

// Paginate slices an already matched set into the requested page. The page is
// clamped into [1, TotalPages].
func Paginate[T any](matched []T, p Params) View[T] {
	p = p.normalized()

	total := len(matched)
	pages := (total + p.PageSize - 1) / p.PageSize
	if pages < 1 {
		pages = 1
	}
	p = p.ClampPage(pages)

	start := (p.Page - 1) * p.PageSize
	end := min(start+p.PageSize, total)
	start = min(start, end)

	page := make([]T, end-start)
	copy(page, matched[start:end])

	return View[T]{
		Items:      page,
		TotalCount: total,
		TotalPages: pages,
		Page:       p.Page,
		PageSize:   p.PageSize,
	}
}

func passesFilters[T any](item T, p Params, s Schema[T]) bool {
	for name, value := range p.Filters {
		if value == "" || strings.EqualFold(value, FilterAll) {
			continue
		}
		field, ok := s.Filters[name]
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(field(item)), strings.TrimSpace(value)) {
			return false
		}
	}
	return true
}

func inDateRange[T any](item T, p Params, s Schema[T]) bool {
	if p.From == nil && p.To == nil {
		return true
	}
	if s.Date == nil {
		return true
	}
	ts, ok := s.Date(item)
	if !ok || ts.IsZero() {
		return false
	}
	if p.From != nil && ts.Before(dayStart(*p.From)) {
		return false
	}
	if p.To != nil && !ts.Before(nextDayStart(*p.To)) {
		return false
	}
	return true
}

func matchesSearch[T any](item T, term string, s Schema[T]) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range s.Search {
		if strings.Contains(strings.ToLower(field(item)), term) {
			return true
		}
	}
	return false
}

// IDString renders a numeric ID for use as a searchable field.
func IDString(id int64) string {
	return strconv.FormatInt(id, 10)
}
