package handler

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/middleware"
)

// Query keys with a fixed meaning; every other key is a filter.
var reservedKeys = map[string]bool{
	"search":    true,
	"from":      true,
	"to":        true,
	"sort":      true,
	"dir":       true,
	"page":      true,
	"page_size": true,
	"refresh":   true,
}

// applyQuery overlays the keys present in q onto the screen's current params.
// Absent keys keep their value, so a bare GET re-renders the current view.
func applyQuery(p listview.Params, q url.Values, loc *time.Location) (listview.Params, error) {
	if q.Has("search") {
		p.Search = q.Get("search")
	}
	for key, values := range q {
		if reservedKeys[key] || len(values) == 0 {
			continue
		}
		p = p.WithFilter(key, values[0])
	}

	if q.Has("from") {
		from, err := middleware.ParseDate(q.Get("from"), loc)
		if err != nil {
			return p, err
		}
		p.From = from
	}
	if q.Has("to") {
		to, err := middleware.ParseDate(q.Get("to"), loc)
		if err != nil {
			return p, err
		}
		p.To = to
	}

	if q.Has("sort") {
		p.SortKey = q.Get("sort")
	}
	if q.Has("dir") {
		switch dir := listview.Direction(strings.ToLower(q.Get("dir"))); dir {
		case listview.Asc, listview.Desc:
			p.SortDir = dir
		default:
			return p, fmt.Errorf("dir must be asc or desc")
		}
	}

	page, err := middleware.ParsePositive("page", q.Get("page"))
	if err != nil {
		return p, err
	}
	if page > 0 {
		p.Page = page
	}
	size, err := middleware.ParsePositive("page_size", q.Get("page_size"))
	if err != nil {
		return p, err
	}
	if size > 0 {
		p.PageSize = size
	}
	return p, nil
}

// ListResponse is the rendered state of a list screen.
type ListResponse[T any] struct {
	listview.View[T]
	Params   listview.Params `json:"params"`
	Selected []int64         `json:"selected"`
	Loading  bool            `json:"loading"`
}

func listResponse[T listview.Keyed](screen *listview.Screen[T], view listview.View[T]) ListResponse[T] {
	selected := screen.Selected()
	if selected == nil {
		selected = []int64{}
	}
	if view.Items == nil {
		view.Items = []T{}
	}
	return ListResponse[T]{
		View:     view,
		Params:   screen.Params(),
		Selected: selected,
		Loading:  screen.Loading(),
	}
}
