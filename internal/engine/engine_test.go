package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluebear.game/internal/command"
	"bluebear.game/internal/infrastructure"
	"bluebear.game/internal/lot"
	"bluebear.game/internal/persistence/indexdb"
	plog "bluebear.game/internal/persistence/log"
	"bluebear.game/internal/persistence/lotfile"
	"bluebear.game/internal/threading"
)

const registryYAML = `
tiles:
  - key: oak
wallpapers:
  - key: brick
`

const goodLot = `{
  "floorx": 1, "floory": 1, "stories": 1, "subtr": 0, "terrain": 0, "rot": 0,
  "infr": {
    "floor": {"dict": ["oak"], "levels": [[0]]},
    "wall": {"dict": ["brick"], "levels": [[{"x": {"f": 0, "b": 0}}, {"run": 3, "value": 0}]]}
  }
}`

const malformedLot = `{
  "floorx": 1, "floory": 1, "stories": 1,
  "infr": {
    "floor": {"dict": ["oak"], "levels": [[{"run": 0, "value": 0}]]},
    "wall": {"dict": ["brick"], "levels": [[0, 0, 0, 0]]}
  }
}`

const badIndexLot = `{
  "floorx": 1, "floory": 1, "stories": 1,
  "infr": {
    "floor": {"dict": ["oak"], "levels": [[5]]},
    "wall": {"dict": ["brick"], "levels": [[0, 0, 0, 0]]}
  }
}`

type recorder struct {
	mu      sync.Mutex
	loads   []indexdb.LoadRecord
	batches []plog.BatchEntry
}

func (r *recorder) RecordLoad(l indexdb.LoadRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, l)
}

func (r *recorder) WriteBatch(e plog.BatchEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, e)
	return nil
}

type fixture struct {
	eng *Engine
	bus *Bus
	rec *recorder
	dir string
}

func newFixture(t *testing.T, maxTicks uint64) fixture {
	t.Helper()
	reg, err := infrastructure.Parse([]byte(registryYAML))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	bus := threading.NewBus[command.Display, command.Engine]()
	rec := &recorder{}
	eng, err := New(Config{
		TickRateHz: 1000,
		MaxTicks:   maxTicks,
		Bus:        bus,
		Builder:    lot.NewBuilder(lot.BuilderConfig{Factory: reg, Logger: logger}),
		Log:        logger,
		Commands:   rec,
		Index:      rec,
	})
	require.NoError(t, err)
	return fixture{eng: eng, bus: bus, rec: rec, dir: t.TempDir()}
}

func (f fixture) write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, lotfile.WriteRaw(p, []byte(body)))
	return p
}

func (f fixture) drainDisplay(t *testing.T) []command.Display {
	t.Helper()
	var out []command.Display
	require.True(t, f.bus.AttemptConsume(&out))
	return out
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{TickRateHz: 1})
	require.Error(t, err)
	_, err = New(Config{Bus: threading.NewBus[command.Display, command.Engine](), Builder: lot.NewBuilder(lot.BuilderConfig{}), TickRateHz: 0})
	require.Error(t, err)
}

func TestLoadLot_HandsLotToDisplay(t *testing.T) {
	f := newFixture(t, 0)
	p := f.write(t, "good.json.zst", goodLot)

	require.NoError(t, f.eng.LoadLot(context.Background(), p))
	l := f.eng.Lot()
	require.NotNil(t, l)
	assert.Equal(t, p, f.eng.LotPath())
	assert.False(t, f.eng.Locked())

	got := f.drainDisplay(t)
	require.Len(t, got, 1)
	li, ok := got[0].(command.LoadInfrastructure)
	require.True(t, ok)
	assert.Same(t, l, li.Lot)

	require.Len(t, f.rec.loads, 1)
	assert.True(t, f.rec.loads[0].OK)
	assert.Equal(t, l.ID.String(), f.rec.loads[0].LotID)
}

func TestLoadLot_MalformedKeepsPreviousLot(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, f.eng.LoadLot(ctx, f.write(t, "good.json", goodLot)))
	before := f.eng.Lot()
	f.drainDisplay(t)

	err := f.eng.LoadLot(ctx, f.write(t, "bad.json", malformedLot))
	require.ErrorIs(t, err, lot.ErrMalformedDocument)
	assert.False(t, lot.IsFatal(err))
	assert.Same(t, before, f.eng.Lot())
	assert.Empty(t, f.drainDisplay(t))

	require.Len(t, f.rec.loads, 2)
	assert.False(t, f.rec.loads[1].OK)
	assert.False(t, f.rec.loads[1].Fatal)
}

func TestLoadLot_MissingFile(t *testing.T) {
	f := newFixture(t, 0)
	err := f.eng.LoadLot(context.Background(), filepath.Join(f.dir, "nope.json"))
	require.Error(t, err)
	assert.Nil(t, f.eng.Lot())
}

func TestTick_IndexErrorIsFatal(t *testing.T) {
	f := newFixture(t, 0)
	batch := []command.Engine{command.LoadLot{Path: f.write(t, "idx.json", badIndexLot)}}
	f.bus.ProduceReverse(&batch)

	err := f.eng.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, lot.IsFatal(err))
	require.Len(t, f.rec.loads, 1)
	assert.True(t, f.rec.loads[0].Fatal)
}

func TestTick_NonFatalCommandErrorContinues(t *testing.T) {
	f := newFixture(t, 0)
	batch := []command.Engine{command.LoadLot{Path: f.write(t, "bad.json", malformedLot)}}
	f.bus.ProduceReverse(&batch)
	require.NoError(t, f.eng.Tick(context.Background()))
	assert.Nil(t, f.eng.Lot())
}

func TestTick_AdvancesOnlyWhenLockedWithLot(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	lock := []command.Engine{command.SetLockState{Locked: true}}
	f.bus.ProduceReverse(&lock)
	require.NoError(t, f.eng.Tick(ctx))
	assert.Zero(t, f.eng.Ticks(), "no lot loaded")

	require.NoError(t, f.eng.LoadLot(ctx, f.write(t, "good.json", goodLot)))
	require.NoError(t, f.eng.Tick(ctx))
	assert.Zero(t, f.eng.Ticks(), "new lot clears the lock")

	lock = []command.Engine{command.SetLockState{Locked: true, Lot: f.eng.Lot().ID}}
	f.bus.ProduceReverse(&lock)
	require.NoError(t, f.eng.Tick(ctx))
	require.NoError(t, f.eng.Tick(ctx))
	assert.EqualValues(t, 2, f.eng.Ticks())

	unlock := []command.Engine{command.SetLockState{Lot: f.eng.Lot().ID}}
	f.bus.ProduceReverse(&unlock)
	require.NoError(t, f.eng.Tick(ctx))
	assert.EqualValues(t, 2, f.eng.Ticks())

	require.Len(t, f.rec.batches, 3)
	assert.Equal(t, plog.ToEngine, f.rec.batches[0].Direction)
	assert.Equal(t, []command.Kind{command.KindSetLockState}, f.rec.batches[0].Kinds)
}

func TestTick_StaleLockForReplacedLotIsIgnored(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.eng.LoadLot(ctx, f.write(t, "a.json", goodLot)))
	first := f.eng.Lot()
	var drained []command.Display
	require.True(t, f.bus.AttemptConsume(&drained))

	// The reload and the ack for the old lot arrive in the same tick.
	batch := []command.Engine{
		command.LoadLot{Path: f.write(t, "b.json", goodLot)},
		command.SetLockState{Locked: true, Lot: first.ID},
	}
	f.bus.ProduceReverse(&batch)
	require.NoError(t, f.eng.Tick(ctx))
	require.NoError(t, f.eng.Tick(ctx))

	second := f.eng.Lot()
	require.NotEqual(t, first.ID, second.ID)
	assert.False(t, f.eng.Locked())
	assert.Zero(t, f.eng.Ticks())

	lock := []command.Engine{command.SetLockState{Locked: true, Lot: second.ID}}
	f.bus.ProduceReverse(&lock)
	require.NoError(t, f.eng.Tick(ctx))
	assert.True(t, f.eng.Locked())
	assert.EqualValues(t, 1, f.eng.Ticks())
}

func TestRun_StopsAtMaxTicks(t *testing.T) {
	f := newFixture(t, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.eng.LoadLot(ctx, f.write(t, "good.json", goodLot)))
	lock := []command.Engine{command.SetLockState{Locked: true, Lot: f.eng.Lot().ID}}
	f.bus.ProduceReverse(&lock)

	require.NoError(t, f.eng.Run(ctx))
	assert.EqualValues(t, 3, f.eng.Ticks())
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.eng.Run(ctx) }()
	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoadLot_CancelledContext(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, f.eng.LoadLot(ctx, "x.json"), context.Canceled)
}
