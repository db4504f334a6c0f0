package symengine

import (
	"fmt"
)

// Arena is a handle table. Every Acquire issues a new handle for a value;
// Release frees it. Values are only reachable through live handles.
//
// Arena is not safe for concurrent use.
type Arena[T any] struct {
	next    Handle
	entries map[Handle]T
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{entries: make(map[Handle]T)}
}

// Acquire issues a handle for v.
func (a *Arena[T]) Acquire(v T) Handle {
	a.next++
	if a.next == InvalidHandle {
		a.next++
	}
	a.entries[a.next] = v
	return a.next
}

// Get returns the value behind a live handle.
func (a *Arena[T]) Get(h Handle) (T, error) {
	v, ok := a.entries[h]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return v, nil
}

// Release frees a handle. Releasing an unknown handle fails.
func (a *Arena[T]) Release(h Handle) error {
	if _, ok := a.entries[h]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	delete(a.entries, h)
	return nil
}

// ReleaseAll frees every live handle and returns how many were outstanding.
func (a *Arena[T]) ReleaseAll() int {
	n := len(a.entries)
	clear(a.entries)
	return n
}

// Live returns the number of outstanding handles.
func (a *Arena[T]) Live() int {
	return len(a.entries)
}
