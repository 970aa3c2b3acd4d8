// Package display runs the render loop. Rendering itself is headless: each
// frame applies display commands, runs the current state, and in the main
// game state publishes a Frame describing what would be drawn.
package display

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"bluebear.game/internal/command"
	"bluebear.game/internal/containers"
	"bluebear.game/internal/lot"
	plog "bluebear.game/internal/persistence/log"
	"bluebear.game/internal/threading"
)

type Bus = threading.Bus[command.Display, command.Engine]

// Sink receives frames from the main game state. Publish must not block.
type Sink interface {
	Publish(f Frame)
}

type BatchLogger interface {
	WriteBatch(e plog.BatchEntry) error
}

type Config struct {
	FrameRateHz int
	ViewportX   int
	ViewportY   int

	Bus  *Bus
	Log  logrus.FieldLogger
	Sink Sink

	Commands BatchLogger
}

type Display struct {
	cfg   Config
	log   logrus.FieldLogger
	table *command.Dispatcher[command.Display, command.DisplayTarget]

	state  atomic.Int32
	frames atomic.Uint64

	// Loop-owned.
	lot      *lot.Lot
	floor    *containers.Grid[*Instance]
	digest   Digest
	entities map[string]struct{}
	inbox    []command.Display
	outbox   []command.Engine

	reqMu     sync.Mutex
	requested []command.Engine
}

func New(cfg Config) (*Display, error) {
	if cfg.Bus == nil {
		return nil, errors.New("display: nil bus")
	}
	if cfg.FrameRateHz <= 0 {
		return nil, fmt.Errorf("display: frame rate must be > 0, got %d", cfg.FrameRateHz)
	}
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Display{
		cfg:      cfg,
		log:      log.WithField("loop", "display"),
		table:    command.DisplayTable(),
		entities: map[string]struct{}{},
	}, nil
}

func (d *Display) State() command.State { return command.State(d.state.Load()) }
func (d *Display) Frames() uint64       { return d.frames.Load() }

// Request queues an engine command from any goroutine. It is sent with the
// next frame's outgoing batch.
func (d *Display) Request(c command.Engine) {
	d.reqMu.Lock()
	d.requested = append(d.requested, c)
	d.reqMu.Unlock()
}

func (d *Display) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(d.cfg.FrameRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.WithFields(logrus.Fields{
		"viewport": fmt.Sprintf("%dx%d", d.cfg.ViewportX, d.cfg.ViewportY),
		"fps":      d.cfg.FrameRateHz,
	}).Info("starting display")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Frame()
		}
	}
}

// Frame runs one iteration of the render loop. It never blocks on the bus.
func (d *Display) Frame() {
	if d.cfg.Bus.AttemptConsume(&d.inbox) && len(d.inbox) > 0 {
		batch := d.inbox
		d.inbox = nil
		d.logBatch(batch)
		if err := d.table.Run(target{d}, batch); err != nil {
			d.log.WithError(err).Warn("display command failed")
		}
	}

	d.execute()

	d.reqMu.Lock()
	d.outbox = append(d.outbox, d.requested...)
	d.requested = nil
	d.reqMu.Unlock()
	if len(d.outbox) > 0 {
		// On contention the batch stays in outbox for the next frame.
		d.cfg.Bus.AttemptProduceReverse(&d.outbox)
	}
	d.frames.Add(1)
}

func (d *Display) execute() {
	switch d.State() {
	case command.StateMainGame:
		d.drawMainGame()
	case command.StateTitle, command.StateIdle:
	}
}

func (d *Display) drawMainGame() {
	if d.cfg.Sink == nil {
		return
	}
	f := Frame{
		Number:    d.Frames(),
		State:     d.State().String(),
		ViewportX: d.cfg.ViewportX,
		ViewportY: d.cfg.ViewportY,
		Entities:  len(d.entities),
	}
	if d.lot != nil {
		f.LotID = d.lot.ID.String()
		f.Instances = d.instanceCount()
		f.Floor = d.digest
	}
	d.cfg.Sink.Publish(f)
}

func (d *Display) instanceCount() int {
	n := 0
	d.floor.Each(func(_ int, inst *Instance) bool {
		if inst != nil {
			n++
		}
		return true
	})
	return n
}

func (d *Display) logBatch(batch []command.Display) {
	if d.cfg.Commands == nil {
		return
	}
	err := d.cfg.Commands.WriteBatch(plog.BatchEntry{
		At:        time.Now(),
		Direction: plog.ToDisplay,
		Seq:       d.Frames(),
		Kinds:     command.Kinds(batch),
	})
	if err != nil {
		d.log.WithError(err).Warn("command log write failed")
	}
}

// target adapts the display to command.DisplayTarget. Its methods run on the
// loop goroutine only.
type target struct{ d *Display }

func (t target) LoadInfrastructure(c command.LoadInfrastructure) error {
	if c.Lot == nil {
		return errors.New("nil lot")
	}
	floor, err := buildFloorInstances(c.Lot)
	if err != nil {
		return err
	}
	digest, err := floorDigest(floor)
	if err != nil {
		return err
	}
	t.d.lot = c.Lot
	t.d.floor = floor
	t.d.digest = digest
	t.d.log.WithFields(logrus.Fields{
		"lot":   c.Lot.ID,
		"cells": floor.Len(),
	}).Info("finished creating infrastructure instances")

	t.d.outbox = append(t.d.outbox, command.SetLockState{Locked: true, Lot: c.Lot.ID})
	return nil
}

func (t target) ChangeState(s command.State) error {
	switch s {
	case command.StateIdle, command.StateTitle, command.StateMainGame:
	default:
		s = command.StateIdle
	}
	t.d.state.Store(int32(s))
	t.d.log.WithField("state", s).Debug("state changed")
	return nil
}

func (t target) RegisterEntity(id string) error {
	if id == "" {
		return errors.New("empty entity id")
	}
	t.d.entities[id] = struct{}{}
	t.d.log.WithField("entity", id).Info("registered entity")
	return nil
}
