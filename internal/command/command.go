// Package command defines the closed set of intents exchanged between the
// simulation loop and the render loop, and the tables that dispatch them.
package command

import (
	"github.com/google/uuid"

	"bluebear.game/internal/lot"
)

type Kind string

const (
	KindLoadInfrastructure Kind = "LOAD_INFRASTRUCTURE"
	KindChangeState        Kind = "CHANGE_STATE"
	KindRegisterEntity     Kind = "REGISTER_ENTITY"

	KindSetLockState Kind = "SET_LOCK_STATE"
	KindLoadLot      Kind = "LOAD_LOT"
)

// Display is a command executed by the render loop.
type Display interface {
	Kind() Kind
	display()
}

// Engine is a command executed by the simulation loop.
type Engine interface {
	Kind() Kind
	engine()
}

// LoadInfrastructure hands a freshly built lot to the renderer.
type LoadInfrastructure struct {
	Lot *lot.Lot
}

type State int

const (
	StateIdle State = iota
	StateTitle
	StateMainGame
)

func (s State) String() string {
	switch s {
	case StateTitle:
		return "TITLE"
	case StateMainGame:
		return "MAIN_GAME"
	default:
		return "IDLE"
	}
}

type ChangeState struct {
	State State
}

type RegisterEntity struct {
	ID string
}

// SetLockState reports whether the display has bound lot Lot. The engine
// only advances ticks while locked, and ignores acknowledgements for any lot
// other than its current one.
type SetLockState struct {
	Locked bool
	Lot    uuid.UUID
}

// LoadLot asks the engine to (re)load a lot document from disk.
type LoadLot struct {
	Path string
}

func (LoadInfrastructure) Kind() Kind { return KindLoadInfrastructure }
func (ChangeState) Kind() Kind        { return KindChangeState }
func (RegisterEntity) Kind() Kind     { return KindRegisterEntity }
func (SetLockState) Kind() Kind       { return KindSetLockState }
func (LoadLot) Kind() Kind            { return KindLoadLot }

func (LoadInfrastructure) display() {}
func (ChangeState) display()        {}
func (RegisterEntity) display()     {}
func (SetLockState) engine()        {}
func (LoadLot) engine()             {}

// Kinds lists the kinds in a batch, for logging.
func Kinds[C interface{ Kind() Kind }](batch []C) []Kind {
	out := make([]Kind, len(batch))
	for i, c := range batch {
		out[i] = c.Kind()
	}
	return out
}
