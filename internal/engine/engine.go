// Package engine runs the simulation loop. It owns the current lot, applies
// engine commands sent by the display, and hands freshly loaded lots to the
// display over the command bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"bluebear.game/internal/command"
	"bluebear.game/internal/lot"
	"bluebear.game/internal/persistence/indexdb"
	plog "bluebear.game/internal/persistence/log"
	"bluebear.game/internal/persistence/lotfile"
	"bluebear.game/internal/threading"
)

type Bus = threading.Bus[command.Display, command.Engine]

type BatchLogger interface {
	WriteBatch(e plog.BatchEntry) error
}

type LoadRecorder interface {
	RecordLoad(r indexdb.LoadRecord)
}

type Config struct {
	TickRateHz int
	// MaxTicks stops Run after that many ticks. Zero runs until cancelled.
	MaxTicks uint64

	Bus     *Bus
	Builder *lot.Builder
	Log     logrus.FieldLogger

	Commands BatchLogger
	Index    LoadRecorder
}

type Engine struct {
	cfg   Config
	log   logrus.FieldLogger
	table *command.Dispatcher[command.Engine, command.EngineTarget]

	mu      sync.RWMutex
	current *lot.Lot
	path    string

	ticks  atomic.Uint64
	locked atomic.Bool

	// inbox is only touched by the loop goroutine.
	inbox []command.Engine
}

func New(cfg Config) (*Engine, error) {
	if cfg.Bus == nil {
		return nil, errors.New("engine: nil bus")
	}
	if cfg.Builder == nil {
		return nil, errors.New("engine: nil builder")
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("engine: tick rate must be > 0, got %d", cfg.TickRateHz)
	}
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Engine{
		cfg:   cfg,
		log:   log.WithField("loop", "engine"),
		table: command.EngineTable(),
	}, nil
}

// Lot returns the current lot, or nil before the first successful load.
func (e *Engine) Lot() *lot.Lot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

func (e *Engine) LotPath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.path
}

func (e *Engine) Ticks() uint64 { return e.ticks.Load() }
func (e *Engine) Locked() bool  { return e.locked.Load() }

// LoadLot reads and builds the document at path. On success the new lot
// replaces the current one and is handed to the display. On failure the
// current lot is kept; an *lot.IndexError is returned as is so callers can
// treat it as fatal.
func (e *Engine) LoadLot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := e.log.WithField("path", path)

	l, err := e.load(path)
	e.record(path, l, err)
	if err != nil {
		if lot.IsFatal(err) {
			log.WithError(err).Error("lot references a missing dictionary entry")
		} else {
			log.WithError(err).Warn("lot not loaded, keeping previous lot")
		}
		return fmt.Errorf("load lot %s: %w", path, err)
	}

	e.mu.Lock()
	e.current = l
	e.path = path
	e.mu.Unlock()
	e.locked.Store(false)

	batch := []command.Display{command.LoadInfrastructure{Lot: l}}
	e.cfg.Bus.Produce(&batch)
	log.WithField("lot_id", l.ID).Info("lot loaded")
	return nil
}

func (e *Engine) load(path string) (*lot.Lot, error) {
	raw, err := lotfile.Read(path)
	if err != nil {
		return nil, err
	}
	return e.cfg.Builder.Load(raw)
}

func (e *Engine) record(path string, l *lot.Lot, err error) {
	if e.cfg.Index == nil {
		return
	}
	r := indexdb.LoadRecord{Path: path, OK: err == nil, At: time.Now()}
	if l != nil {
		r.LotID = l.ID.String()
		r.FloorX, r.FloorY, r.Stories, r.Revision = l.FloorX, l.FloorY, l.Stories, l.Revision
	}
	if err != nil {
		r.Error = err.Error()
		r.Fatal = lot.IsFatal(err)
	}
	e.cfg.Index.RecordLoad(r)
}

// Run ticks until ctx is cancelled, MaxTicks is reached, or a command fails
// fatally.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.WithField("ticks", e.Ticks()).Info("starting world engine")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				return err
			}
			if e.done() {
				e.log.WithField("ticks", e.Ticks()).Info("tick limit reached")
				return nil
			}
		}
	}
}

func (e *Engine) done() bool {
	return e.cfg.MaxTicks > 0 && e.Ticks() >= e.cfg.MaxTicks
}

// Tick runs one loop iteration: drain display commands, then step the lot.
// Only fatal errors are returned.
func (e *Engine) Tick(ctx context.Context) error {
	if e.cfg.Bus.AttemptConsumeReverse(&e.inbox) && len(e.inbox) > 0 {
		batch := e.inbox
		e.inbox = nil
		e.logBatch(batch)
		if err := e.table.Run(target{e: e, ctx: ctx}, batch); err != nil {
			if lot.IsFatal(err) {
				return err
			}
			e.log.WithError(err).Warn("engine command failed")
		}
	}
	if e.Lot() != nil && e.Locked() && !e.done() {
		e.ticks.Add(1)
	}
	return nil
}

func (e *Engine) logBatch(batch []command.Engine) {
	if e.cfg.Commands == nil {
		return
	}
	err := e.cfg.Commands.WriteBatch(plog.BatchEntry{
		At:        time.Now(),
		Direction: plog.ToEngine,
		Seq:       e.Ticks(),
		Kinds:     command.Kinds(batch),
	})
	if err != nil {
		e.log.WithError(err).Warn("command log write failed")
	}
}

// target adapts the engine to command.EngineTarget for one tick.
type target struct {
	e   *Engine
	ctx context.Context
}

// SetLockState applies an acknowledgement only if it names the current lot.
// A late ack for a lot that has since been replaced is dropped, so the new
// lot stays unlocked until the display has built it.
func (t target) SetLockState(c command.SetLockState) error {
	log := t.e.log.WithFields(logrus.Fields{"locked": c.Locked, "lot_id": c.Lot})
	cur := t.e.Lot()
	if cur == nil || cur.ID != c.Lot {
		log.Debug("ignoring lock state for a lot that is not current")
		return nil
	}
	t.e.locked.Store(c.Locked)
	log.Debug("lock state changed")
	return nil
}

func (t target) LoadLot(path string) error { return t.e.LoadLot(t.ctx, path) }
