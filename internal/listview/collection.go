package listview

import (
	"errors"
)

// ErrNotFound is returned when a record key is not in the collection.
var ErrNotFound = errors.New("record not found")

// Keyed is a record with a numeric identifier.
type Keyed interface {
	Key() int64
}

// Collection is an ordered set of records fetched for one screen. It is not
// safe for concurrent use; Screen serialises access to it.
type Collection[T Keyed] struct {
	items []T
}

// NewCollection copies items into a new collection.
func NewCollection[T Keyed](items []T) *Collection[T] {
	c := &Collection[T]{}
	c.Reset(items)
	return c
}

// Reset replaces the whole collection.
func (c *Collection[T]) Reset(items []T) {
	c.items = append(make([]T, 0, len(items)), items...)
}

// Items returns a copy of the records in order.
func (c *Collection[T]) Items() []T {
	return append([]T(nil), c.items...)
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// IndexOf returns the position of id, or -1.
func (c *Collection[T]) IndexOf(id int64) int {
	for i, item := range c.items {
		if item.Key() == id {
			return i
		}
	}
	return -1
}

// Get returns the record with id.
func (c *Collection[T]) Get(id int64) (T, bool) {
	if i := c.IndexOf(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Append adds item at the end, or replaces it in place when its key is
// already present.
func (c *Collection[T]) Append(item T) {
	if i := c.IndexOf(item.Key()); i >= 0 {
		c.items[i] = item
		return
	}
	c.items = append(c.items, item)
}

// Replace swaps the record with the same key, keeping its position.
func (c *Collection[T]) Replace(item T) error {
	i := c.IndexOf(item.Key())
	if i < 0 {
		return ErrNotFound
	}
	c.items[i] = item
	return nil
}

// Patch applies fn to the record with id in place.
func (c *Collection[T]) Patch(id int64, fn func(T) T) error {
	i := c.IndexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	c.items[i] = fn(c.items[i])
	return nil
}

// Remove deletes the record with id, preserving the order of the rest.
func (c *Collection[T]) Remove(id int64) error {
	i := c.IndexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return nil
}
