package engine

import (
	"context"
	"errors"
	"fmt"

	"bluebear.game/internal/command"
	"bluebear.game/internal/persistence/snapshot"
)

var ErrNoLot = errors.New("engine: no lot loaded")

// Snapshot captures the current lot and counters. It must be taken while the
// loop is stopped or the tick count may run ahead of the document.
func (e *Engine) Snapshot() (snapshot.SnapshotV1, error) {
	e.mu.RLock()
	l, path := e.current, e.path
	e.mu.RUnlock()
	if l == nil {
		return snapshot.SnapshotV1{}, ErrNoLot
	}
	doc, err := l.Export()
	if err != nil {
		return snapshot.SnapshotV1{}, fmt.Errorf("export lot: %w", err)
	}
	return snapshot.SnapshotV1{
		Header:   snapshot.Header{LotID: l.ID.String(), Ticks: e.Ticks()},
		Path:     path,
		Locked:   e.Locked(),
		Document: doc,
	}, nil
}

// Restore rebuilds the snapshot's lot and resumes its tick count. The lock
// is left clear until the display acknowledges the restored lot.
func (e *Engine) Restore(ctx context.Context, snap snapshot.SnapshotV1) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l, err := e.cfg.Builder.Build(snap.Document)
	e.record(snap.Path, l, err)
	if err != nil {
		return fmt.Errorf("restore snapshot at tick %d: %w", snap.Header.Ticks, err)
	}

	e.mu.Lock()
	e.current = l
	e.path = snap.Path
	e.mu.Unlock()
	e.ticks.Store(snap.Header.Ticks)
	e.locked.Store(false)

	batch := []command.Display{command.LoadInfrastructure{Lot: l}}
	e.cfg.Bus.Produce(&batch)
	e.log.WithField("ticks", snap.Header.Ticks).Info("snapshot restored")
	return nil
}
