// Package containers holds the dense level/x/y storage used for lot state.
package containers

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds = errors.New("containers: coordinates out of bounds")
	ErrGridFull    = errors.New("containers: grid is full")
)

// OutOfBoundsError reports an access outside a grid's dimensions or length.
type OutOfBoundsError struct {
	Level, X, Y int
	Index       int
	Direct      bool // Index was addressed directly, coordinates unset
	Dims        Dimensions
	Len         int
}

func (e *OutOfBoundsError) Error() string {
	if e.Direct {
		return fmt.Sprintf("containers: index %d out of bounds (len %d)", e.Index, e.Len)
	}
	return fmt.Sprintf("containers: (level %d, x %d, y %d) out of bounds for %dx%dx%d (len %d)",
		e.Level, e.X, e.Y, e.Dims.Levels, e.Dims.X, e.Dims.Y, e.Len)
}

func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBounds }

type Dimensions struct {
	X      int
	Y      int
	Levels int
}

// Cells is the number of items a fully populated grid holds.
func (d Dimensions) Cells() int { return d.X * d.Y * d.Levels }

func (d Dimensions) Contains(level, x, y int) bool {
	return level >= 0 && level < d.Levels && x >= 0 && x < d.X && y >= 0 && y < d.Y
}

// Index flattens (level, x, y). It does not check bounds.
func (d Dimensions) Index(level, x, y int) int {
	return (d.Y * d.X * level) + (d.X * y) + x
}

// Coords is the inverse of Index.
func (d Dimensions) Coords(i int) (level, x, y int) {
	perLevel := d.X * d.Y
	level = i / perLevel
	rem := i % perLevel
	return level, rem % d.X, rem / d.X
}

// Grid is a flat levels × x × y array. It is filled by sequential Push
// calls while building and treated as fixed-size afterwards.
type Grid[T any] struct {
	dims  Dimensions
	items []T
}

// maxCapHint caps the up-front allocation; larger grids grow on Push.
const maxCapHint = 1 << 16

func NewGrid[T any](levels, x, y int) *Grid[T] {
	d := Dimensions{X: x, Y: y, Levels: levels}
	capHint := 0
	if x > 0 && y > 0 && levels > 0 && d.Cells() > 0 {
		capHint = min(d.Cells(), maxCapHint)
	}
	return &Grid[T]{dims: d, items: make([]T, 0, capHint)}
}

// Dimensions returns a copy of the grid's dimensions.
func (g *Grid[T]) Dimensions() Dimensions { return g.dims }

func (g *Grid[T]) Len() int { return len(g.items) }

func (g *Grid[T]) Capacity() int { return g.dims.Cells() }

// Full reports whether every cell of the declared dimensions has been pushed.
func (g *Grid[T]) Full() bool { return len(g.items) == g.dims.Cells() }

func (g *Grid[T]) Push(item T) error {
	if len(g.items) >= g.dims.Cells() {
		return ErrGridFull
	}
	g.items = append(g.items, item)
	return nil
}

func (g *Grid[T]) Item(level, x, y int) (T, error) {
	if !g.dims.Contains(level, x, y) {
		var zero T
		return zero, &OutOfBoundsError{Level: level, X: x, Y: y, Index: -1, Dims: g.dims, Len: len(g.items)}
	}
	i := g.dims.Index(level, x, y)
	if i >= len(g.items) {
		var zero T
		return zero, &OutOfBoundsError{Level: level, X: x, Y: y, Index: i, Dims: g.dims, Len: len(g.items)}
	}
	return g.items[i], nil
}

func (g *Grid[T]) ItemDirect(i int) (T, error) {
	if i < 0 || i >= len(g.items) {
		var zero T
		return zero, &OutOfBoundsError{Index: i, Direct: true, Dims: g.dims, Len: len(g.items)}
	}
	return g.items[i], nil
}

// Each calls fn for every stored item in index order until fn returns false.
func (g *Grid[T]) Each(fn func(i int, v T) bool) {
	for i, v := range g.items {
		if !fn(i, v) {
			return
		}
	}
}

// Clear drops all items. Dimensions are kept.
func (g *Grid[T]) Clear() {
	var zero T
	for i := range g.items {
		g.items[i] = zero
	}
	g.items = g.items[:0]
}
