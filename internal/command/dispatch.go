package command

import (
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("command: no handler for kind")

// DisplayTarget is what display commands may touch.
type DisplayTarget interface {
	LoadInfrastructure(l LoadInfrastructure) error
	ChangeState(s State) error
	RegisterEntity(id string) error
}

// EngineTarget is what engine commands may touch.
type EngineTarget interface {
	SetLockState(c SetLockState) error
	LoadLot(path string) error
}

// Dispatcher executes commands of type C against a target of type T using
// a table keyed by kind.
type Dispatcher[C interface{ Kind() Kind }, T any] struct {
	handlers map[Kind]func(T, C) error
}

func NewDispatcher[C interface{ Kind() Kind }, T any]() *Dispatcher[C, T] {
	return &Dispatcher[C, T]{handlers: map[Kind]func(T, C) error{}}
}

func (d *Dispatcher[C, T]) Handle(k Kind, fn func(T, C) error) {
	d.handlers[k] = fn
}

func (d *Dispatcher[C, T]) Dispatch(target T, c C) error {
	fn, ok := d.handlers[c.Kind()]
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownKind, c.Kind())
	}
	return fn(target, c)
}

// Run dispatches every command in order and joins the failures; a failing
// command does not stop the rest of the batch.
func (d *Dispatcher[C, T]) Run(target T, batch []C) error {
	var errs []error
	for _, c := range batch {
		if err := d.Dispatch(target, c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// DisplayTable is the dispatch table for display commands.
func DisplayTable() *Dispatcher[Display, DisplayTarget] {
	d := NewDispatcher[Display, DisplayTarget]()
	d.Handle(KindLoadInfrastructure, func(t DisplayTarget, c Display) error {
		return t.LoadInfrastructure(c.(LoadInfrastructure))
	})
	d.Handle(KindChangeState, func(t DisplayTarget, c Display) error {
		return t.ChangeState(c.(ChangeState).State)
	})
	d.Handle(KindRegisterEntity, func(t DisplayTarget, c Display) error {
		return t.RegisterEntity(c.(RegisterEntity).ID)
	})
	return d
}

// EngineTable is the dispatch table for engine commands.
func EngineTable() *Dispatcher[Engine, EngineTarget] {
	d := NewDispatcher[Engine, EngineTarget]()
	d.Handle(KindSetLockState, func(t EngineTarget, c Engine) error {
		return t.SetLockState(c.(SetLockState))
	})
	d.Handle(KindLoadLot, func(t EngineTarget, c Engine) error {
		return t.LoadLot(c.(LoadLot).Path)
	})
	return d
}
