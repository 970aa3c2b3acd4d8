package threading

import (
	"errors"
	"sync"
)

// ErrEmptyCell is returned when a cell without a payload is accessed.
var ErrEmptyCell = errors.New("threading: access on empty cell")

// Cell is a possibly-empty slot whose payload is only reachable while its
// mutex is held. The zero value is an empty cell.
//
// A Cell must not be copied after first use.
type Cell[T any] struct {
	mu        sync.Mutex
	value     T
	populated bool
}

// NewCell returns a populated cell holding the zero value of T.
func NewCell[T any]() *Cell[T] {
	return &Cell[T]{populated: true}
}

// NewCellOf returns a populated cell holding v.
func NewCellOf[T any](v T) *Cell[T] {
	return &Cell[T]{value: v, populated: true}
}

// Populated reports whether the cell holds a payload.
func (c *Cell[T]) Populated() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.populated
}

// Access runs fn with exclusive access to the payload. The lock is released
// even if fn panics. Access does not nest: calling Access on the same cell
// from inside fn deadlocks.
func (c *Cell[T]) Access(fn func(*T)) error {
	if c == nil {
		return ErrEmptyCell
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.populated {
		return ErrEmptyCell
	}
	fn(&c.value)
	return nil
}

// With is Access for callbacks that produce a result.
func With[T, R any](c *Cell[T], fn func(*T) R) (R, error) {
	var out R
	err := c.Access(func(v *T) { out = fn(v) })
	return out, err
}

// Load returns a copy of the payload. The copy is shallow.
func (c *Cell[T]) Load() (T, bool) {
	var out T
	err := c.Access(func(v *T) { out = *v })
	return out, err == nil
}
