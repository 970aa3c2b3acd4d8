package display

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluebear.game/internal/command"
	"bluebear.game/internal/containers"
	"bluebear.game/internal/encoding"
	"bluebear.game/internal/infrastructure"
	"bluebear.game/internal/lot"
	"bluebear.game/internal/threading"
)

const lotJSON = `{
  "floorx": 2, "floory": 2, "stories": 2, "subtr": 0, "terrain": 0, "rot": 0,
  "infr": {
    "floor": {"dict": ["oak", "tile"], "levels": [[0, -1, 1, 0], [{"run": 4, "value": -1}]]},
    "wall": {"dict": ["brick"], "levels": [[{"run": 9, "value": 0}], [{"run": 9, "value": 0}]]}
  }
}`

type sink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *sink) Publish(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

func buildLot(t *testing.T) *lot.Lot {
	t.Helper()
	reg, err := infrastructure.Parse([]byte("tiles:\n  - key: oak\n    material: wood\n  - key: tile\nwallpapers:\n  - key: brick\n"))
	require.NoError(t, err)
	l, err := lot.NewBuilder(lot.BuilderConfig{Factory: reg}).Load([]byte(lotJSON))
	require.NoError(t, err)
	return l
}

func newDisplay(t *testing.T, s Sink) (*Display, *Bus) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	bus := threading.NewBus[command.Display, command.Engine]()
	d, err := New(Config{FrameRateHz: 1000, ViewportX: 800, ViewportY: 600, Bus: bus, Log: logger, Sink: s})
	require.NoError(t, err)
	return d, bus
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{FrameRateHz: 60})
	require.Error(t, err)
	_, err = New(Config{Bus: threading.NewBus[command.Display, command.Engine]()})
	require.Error(t, err)
}

func TestBuildFloorInstances_Positions(t *testing.T) {
	l := buildLot(t)
	g, err := buildFloorInstances(l)
	require.NoError(t, err)
	require.Equal(t, 8, g.Len())

	oak, err := g.Item(0, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, oak)
	assert.Equal(t, "oak", oak.Tile.Key)
	assert.Equal(t, "wood", oak.Material)
	assert.Equal(t, Vec3{X: -1, Y: -1, Z: -10}, oak.Position)

	empty, err := g.Item(0, 1, 0)
	require.NoError(t, err)
	assert.Nil(t, empty)

	tile, err := g.Item(0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, Vec3{X: -1, Y: 0, Z: -10}, tile.Position)

	last, err := g.Item(0, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, Vec3{X: 0, Y: 0, Z: -10}, last.Position)
	assert.Same(t, oak.Tile, last.Tile)

	for i := 4; i < 8; i++ {
		v, err := g.ItemDirect(i)
		require.NoError(t, err)
		assert.Nil(t, v, "upper level is empty")
	}
}

func TestFloorDigest(t *testing.T) {
	g, err := buildFloorInstances(buildLot(t))
	require.NoError(t, err)
	d, err := floorDigest(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"oak", "tile"}, d.Palette)

	ids, err := encoding.DecodeRLE(d.Cells)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 0, 2, 1, 0, 0, 0, 0}, ids)
}

func TestFloorDigest_PaletteLimit(t *testing.T) {
	fill := func(n int) *containers.Grid[*Instance] {
		g := containers.NewGrid[*Instance](1, n, 1)
		for i := 0; i < n; i++ {
			require.NoError(t, g.Push(&Instance{Tile: &lot.Tile{Key: fmt.Sprintf("t%d", i)}}))
		}
		return g
	}

	d, err := floorDigest(fill(math.MaxUint16))
	require.NoError(t, err)
	assert.Len(t, d.Palette, math.MaxUint16)

	_, err = floorDigest(fill(math.MaxUint16 + 1))
	require.ErrorIs(t, err, ErrPaletteFull)
}

func TestFrame_LoadInfrastructureLocksEngine(t *testing.T) {
	s := &sink{}
	d, bus := newDisplay(t, s)
	l := buildLot(t)

	batch := []command.Display{command.LoadInfrastructure{Lot: l}, command.ChangeState{State: command.StateMainGame}}
	bus.Produce(&batch)
	d.Frame()

	assert.Equal(t, command.StateMainGame, d.State())
	assert.EqualValues(t, 1, d.Frames())

	var toEngine []command.Engine
	require.True(t, bus.AttemptConsumeReverse(&toEngine))
	assert.Equal(t, []command.Engine{command.SetLockState{Locked: true, Lot: l.ID}}, toEngine)

	require.Len(t, s.frames, 1)
	f := s.frames[0]
	assert.Equal(t, l.ID.String(), f.LotID)
	assert.Equal(t, "MAIN_GAME", f.State)
	assert.Equal(t, 3, f.Instances)
	assert.Equal(t, 800, f.ViewportX)
	assert.Equal(t, []string{"oak", "tile"}, f.Floor.Palette)
}

func TestFrame_IdleDoesNotPublish(t *testing.T) {
	s := &sink{}
	d, _ := newDisplay(t, s)
	d.Frame()
	d.Frame()
	assert.Equal(t, command.StateIdle, d.State())
	assert.Empty(t, s.frames)
	assert.EqualValues(t, 2, d.Frames())
}

func TestFrame_FailedCommandDoesNotStopBatch(t *testing.T) {
	s := &sink{}
	d, bus := newDisplay(t, s)
	batch := []command.Display{
		command.RegisterEntity{},
		command.LoadInfrastructure{},
		command.RegisterEntity{ID: "cat"},
		command.ChangeState{State: command.StateMainGame},
	}
	bus.Produce(&batch)
	d.Frame()

	require.Len(t, s.frames, 1)
	assert.Equal(t, 1, s.frames[0].Entities)
	assert.Empty(t, s.frames[0].LotID)

	var toEngine []command.Engine
	require.True(t, bus.AttemptConsumeReverse(&toEngine))
	assert.Empty(t, toEngine, "nothing to acknowledge without a lot")
}

func TestRequest_SentWithNextFrame(t *testing.T) {
	d, bus := newDisplay(t, nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Request(command.LoadLot{Path: "a.json"})
		}()
	}
	wg.Wait()
	d.Frame()

	var toEngine []command.Engine
	require.True(t, bus.AttemptConsumeReverse(&toEngine))
	assert.Len(t, toEngine, 4)
	assert.Equal(t, command.KindLoadLot, toEngine[0].Kind())
}

func TestRun_Cancelled(t *testing.T) {
	s := &sink{}
	d, bus := newDisplay(t, s)
	batch := []command.Display{command.ChangeState{State: command.StateMainGame}}
	bus.Produce(&batch)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Frames() > 3 }, 5*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotEmpty(t, s.frames)
}
