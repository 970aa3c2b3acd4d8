package containers

import "bluebear.game/internal/threading"

// ConcurrentGrid is a Grid whose slots are individually locked cells.
// Readers and writers serialize per cell, never on the whole grid. The grid
// structure itself must not be pushed to once it is shared.
type ConcurrentGrid[T any] struct {
	*Grid[*threading.Cell[T]]
}

func NewConcurrentGrid[T any](levels, x, y int) *ConcurrentGrid[T] {
	return &ConcurrentGrid[T]{Grid: NewGrid[*threading.Cell[T]](levels, x, y)}
}

// PushValue appends a populated cell holding v.
func (g *ConcurrentGrid[T]) PushValue(v T) error {
	return g.Push(threading.NewCellOf(v))
}

// PushEmpty appends an unpopulated cell.
func (g *ConcurrentGrid[T]) PushEmpty() error {
	return g.Push(&threading.Cell[T]{})
}

func (g *ConcurrentGrid[T]) Cell(level, x, y int) (*threading.Cell[T], error) {
	return g.Item(level, x, y)
}

func (g *ConcurrentGrid[T]) CellDirect(i int) (*threading.Cell[T], error) {
	return g.ItemDirect(i)
}

func (g *ConcurrentGrid[T]) Access(level, x, y int, fn func(*T)) error {
	c, err := g.Item(level, x, y)
	if err != nil {
		return err
	}
	return c.Access(fn)
}

func (g *ConcurrentGrid[T]) AccessDirect(i int, fn func(*T)) error {
	c, err := g.ItemDirect(i)
	if err != nil {
		return err
	}
	return c.Access(fn)
}
