// Package listview derives paged, filtered and sorted views over
// fully-fetched collections and owns the per-screen state around them.
package listview

import (
	"time"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// FilterAll is the filter value that disables a filter.
const FilterAll = "all"

// DefaultPageSize is used whenever a non-positive page size is requested.
const DefaultPageSize = 10

// Params are the current search, filter, sort and page selections of a screen.
type Params struct {
	Search   string            `json:"search"`
	Filters  map[string]string `json:"filters,omitempty"`
	SortKey  string            `json:"sort_key,omitempty"`
	SortDir  Direction         `json:"sort_dir,omitempty"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`

	// From and To bound the date-range filter by calendar day; either may be nil.
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// NewParams returns first-page params with the given page size.
func NewParams(pageSize int) Params {
	p := Params{Page: 1, PageSize: pageSize}
	return p.normalized()
}

// normalized returns a copy with page and page size forced positive and the
// filter map copied so callers cannot alias it.
func (p Params) normalized() Params {
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.SortDir != Desc {
		p.SortDir = Asc
	}
	if p.Filters != nil {
		filters := make(map[string]string, len(p.Filters))
		for k, v := range p.Filters {
			filters[k] = v
		}
		p.Filters = filters
	}
	return p
}

// Filter returns the selected value for name, or FilterAll.
func (p Params) Filter(name string) string {
	if v, ok := p.Filters[name]; ok && v != "" {
		return v
	}
	return FilterAll
}

// WithFilter returns a copy with filter name set to value.
func (p Params) WithFilter(name, value string) Params {
	p = p.normalized()
	if p.Filters == nil {
		p.Filters = make(map[string]string, 1)
	}
	p.Filters[name] = value
	return p
}

// ClampPage forces Page into [1, totalPages].
func (p Params) ClampPage(totalPages int) Params {
	if totalPages < 1 {
		totalPages = 1
	}
	if p.Page > totalPages {
		p.Page = totalPages
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p
}

// dayStart is 00:00:00.000 of t's calendar day in t's location.
func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// nextDayStart is 00:00 of the day after t's calendar day. The inclusive
// end of a day range is anything before it.
func nextDayStart(t time.Time) time.Time {
	return dayStart(t).AddDate(0, 0, 1)
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return dayStart(*a).Equal(dayStart(*b))
}
