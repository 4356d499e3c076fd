package listview

import (
	"slices"
)

// Selection is the set of checked record keys.
type Selection struct {
	ids map[int64]struct{}
}

// Set checks or unchecks id.
func (s *Selection) Set(id int64, checked bool) {
	if !checked {
		delete(s.ids, id)
		return
	}
	if s.ids == nil {
		s.ids = make(map[int64]struct{})
	}
	s.ids[id] = struct{}{}
}

// Has reports whether id is checked.
func (s *Selection) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of checked keys.
func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns the checked keys in ascending order.
func (s *Selection) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Clear unchecks everything.
func (s *Selection) Clear() {
	s.ids = nil
}

// Retain drops every key not in keep.
func (s *Selection) Retain(keep map[int64]struct{}) {
	for id := range s.ids {
		if _, ok := keep[id]; !ok {
			delete(s.ids, id)
		}
	}
}
