package listview

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/capitalize-ai/ev-service-portal/pkg/metrics"
)

// ErrStale is returned by Refresh when a newer refresh superseded it; its
// result was discarded.
var ErrStale = errors.New("refresh superseded by a newer request")

// Policy holds per-screen behaviour switches.
type Policy struct {
	// ResetPageOnSizeChange sends the user back to page 1 when the page size changes.
	ResetPageOnSizeChange bool
}

// DefaultPolicy is applied uniformly to every screen unless overridden.
var DefaultPolicy = Policy{ResetPageOnSizeChange: true}

// Fetcher loads the full collection for a screen.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Screen owns one screen's collection, view params, selection and loading
// state. All methods are safe for concurrent use; every mutation is applied
// atomically and leaves the params and selection consistent with the data.
type Screen[T Keyed] struct {
	name   string
	schema Schema[T]
	policy Policy

	mu        sync.Mutex
	items     *Collection[T]
	params    Params
	selection Selection
	loading   bool
	loaded    bool
	gen       uint64
}

// NewScreen creates an empty screen.
func NewScreen[T Keyed](name string, schema Schema[T], pageSize int, policy Policy) *Screen[T] {
	return &Screen[T]{
		name:   name,
		schema: schema,
		policy: policy,
		items:  NewCollection[T](nil),
		params: NewParams(pageSize),
	}
}

// Name returns the screen name.
func (s *Screen[T]) Name() string {
	return s.name
}

// Refresh replaces the collection with a full fetch. If another Refresh starts
// before this one completes, this one's result is discarded and ErrStale is
// returned. A failed fetch leaves the collection unchanged.
func (s *Screen[T]) Refresh(ctx context.Context, fetch Fetcher[T]) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.loading = true
	s.mu.Unlock()

	items, err := fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStale
	}
	s.loading = false
	if err != nil {
		return err
	}
	s.items.Reset(items)
	s.loaded = true
	s.settle()
	return nil
}

// Loading reports whether a refresh is in flight.
func (s *Screen[T]) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Loaded reports whether the screen has completed at least one refresh.
func (s *Screen[T]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// View derives the visible page from the current collection and params.
func (s *Screen[T]) View() View[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	metrics.DerivationsTotal.WithLabelValues(s.name).Inc()
	return Derive(s.items.Items(), s.params, s.schema)
}

// Params returns the current view params.
func (s *Screen[T]) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.normalized()
}

// Get returns the record with id.
func (s *Screen[T]) Get(id int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Get(id)
}

// Items returns a copy of the whole collection.
func (s *Screen[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Items()
}

// SetParams replaces the view params. Changing the search, filters, date range
// or sort returns to page 1, as does changing the page size under
// ResetPageOnSizeChange.
func (s *Screen[T]) SetParams(next Params) View[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(next)
}

// Update applies fn to the current params under the screen lock, so
// concurrent updates never overwrite each other; see SetParams.
func (s *Screen[T]) Update(fn func(Params) Params) View[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(fn(s.params.normalized()))
}

// apply installs next and derives the view. Callers hold the lock.
func (s *Screen[T]) apply(next Params) View[T] {
	prev := s.params
	next = next.normalized()
	if !sameQuery(prev, next) {
		next.Page = 1
	}
	if prev.PageSize != next.PageSize && s.policy.ResetPageOnSizeChange {
		next.Page = 1
	}
	s.params = next
	s.settle()
	return Derive(s.items.Items(), s.params, s.schema)
}

// SetSearch sets the free-text search term.
func (s *Screen[T]) SetSearch(term string) View[T] {
	return s.Update(func(p Params) Params { p.Search = term; return p })
}

// SetFilter sets one filter value; FilterAll clears it.
func (s *Screen[T]) SetFilter(name, value string) View[T] {
	return s.Update(func(p Params) Params { return p.WithFilter(name, value) })
}

// SetSort sets the sort key and direction.
func (s *Screen[T]) SetSort(key string, dir Direction) View[T] {
	return s.Update(func(p Params) Params { p.SortKey, p.SortDir = key, dir; return p })
}

// SetPage moves to page n, clamped to the available pages.
func (s *Screen[T]) SetPage(n int) View[T] {
	return s.Update(func(p Params) Params { p.Page = n; return p })
}

// SetPageSize changes the page size.
func (s *Screen[T]) SetPageSize(n int) View[T] {
	return s.Update(func(p Params) Params { p.PageSize = n; return p })
}

// Append adds a record created on the backend.
func (s *Screen[T]) Append(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Append(item)
	s.settle()
}

// Replace swaps in an updated record at the same index.
func (s *Screen[T]) Replace(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.items.Replace(item); err != nil {
		return err
	}
	s.settle()
	return nil
}

// Patch applies fn to one record in place.
func (s *Screen[T]) Patch(id int64, fn func(T) T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.items.Patch(id, fn); err != nil {
		return err
	}
	s.settle()
	return nil
}

// Remove deletes a record and drops it from the selection.
func (s *Screen[T]) Remove(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.items.Remove(id); err != nil {
		return err
	}
	s.selection.Set(id, false)
	s.settle()
	return nil
}

// Select checks or unchecks a record. Only records in the filtered set can be
// checked.
func (s *Screen[T]) Select(id int64, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if checked {
		if _, ok := s.matchedKeys()[id]; !ok {
			return ErrNotFound
		}
	}
	s.selection.Set(id, checked)
	return nil
}

// SelectPage checks or unchecks every record on the current page.
func (s *Screen[T]) SelectPage(checked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := Derive(s.items.Items(), s.params, s.schema)
	for _, item := range view.Items {
		s.selection.Set(item.Key(), checked)
	}
}

// Selected returns the checked keys in ascending order.
func (s *Screen[T]) Selected() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.IDs()
}

// ClearSelection unchecks everything.
func (s *Screen[T]) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Clear()
}

// settle restores the invariants after the data or params changed: the page
// is clamped to the available pages and the selection only holds keys in the
// filtered set. Callers hold s.mu.
func (s *Screen[T]) settle() {
	matched := Match(s.items.Items(), s.params, s.schema)
	view := Paginate(matched, s.params)
	s.params = s.params.ClampPage(view.TotalPages)

	keep := make(map[int64]struct{}, len(matched))
	for _, item := range matched {
		keep[item.Key()] = struct{}{}
	}
	s.selection.Retain(keep)
}

func (s *Screen[T]) matchedKeys() map[int64]struct{} {
	matched := Match(s.items.Items(), s.params, s.schema)
	keys := make(map[int64]struct{}, len(matched))
	for _, item := range matched {
		keys[item.Key()] = struct{}{}
	}
	return keys
}

func sameQuery(a, b Params) bool {
	if a.Search != b.Search || a.SortKey != b.SortKey || a.SortDir != b.SortDir {
		return false
	}
	if !sameDay(a.From, b.From) || !sameDay(a.To, b.To) {
		return false
	}
	return sameFilters(a.Filters, b.Filters)
}

func sameFilters(a, b map[string]string) bool {
	active := func(m map[string]string) map[string]string {
		out := make(map[string]string, len(m))
		for k, v := range m {
			if v != "" && !strings.EqualFold(v, FilterAll) {
				out[k] = v
			}
		}
		return out
	}
	x, y := active(a), active(b)
	if len(x) != len(y) {
		return false
	}
	for k, v := range x {
		if y[k] != v {
			return false
		}
	}
	return true
}
