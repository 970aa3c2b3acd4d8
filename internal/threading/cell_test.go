package threading

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_ZeroValueIsEmpty(t *testing.T) {
	var c Cell[int]
	assert.False(t, c.Populated())

	called := false
	err := c.Access(func(*int) { called = true })
	require.ErrorIs(t, err, ErrEmptyCell)
	assert.False(t, called)

	var nilCell *Cell[int]
	require.ErrorIs(t, nilCell.Access(func(*int) {}), ErrEmptyCell)
}

func TestCell_NewCellHoldsZeroValue(t *testing.T) {
	c := NewCell[[]string]()
	require.True(t, c.Populated())

	n, err := With(c, func(v *[]string) int {
		*v = append(*v, "a", "b")
		return len(*v)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCell_AccessReleasesLockOnPanic(t *testing.T) {
	c := NewCellOf(1)
	func() {
		defer func() { _ = recover() }()
		_ = c.Access(func(*int) { panic("boom") })
	}()

	// Would deadlock if the panic left the mutex held.
	require.NoError(t, c.Access(func(v *int) { *v = 2 }))
	got, _ := c.Load()
	assert.Equal(t, 2, got)
}

type pair struct{ a, b int }

func TestCell_ConcurrentAccessIsSerialized(t *testing.T) {
	c := NewCell[pair]()
	const workers, iters = 8, 500

	var torn sync.Once
	sawTorn := false
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				_ = c.Access(func(p *pair) {
					if p.a != p.b {
						torn.Do(func() { sawTorn = true })
					}
					p.a++
					runtime.Gosched()
					p.b++
				})
			}
		}()
	}
	wg.Wait()

	got, _ := c.Load()
	assert.False(t, sawTorn, "observed a partially applied mutation")
	assert.Equal(t, pair{a: workers * iters, b: workers * iters}, got)
}
