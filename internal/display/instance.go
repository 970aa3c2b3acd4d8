package display

import (
	"errors"
	"fmt"
	"math"

	"bluebear.game/internal/containers"
	"bluebear.game/internal/encoding"
	"bluebear.game/internal/lot"
)

const (
	floorBase      = -10.0
	floorLevelStep = 5.0
)

// Vec3 is a world-space position.
type Vec3 struct {
	X, Y, Z float32
}

// Instance is one drawable floor panel.
type Instance struct {
	Tile     *lot.Tile
	Material string
	Position Vec3
}

// buildFloorInstances mirrors the lot's floor map into a grid of instances.
// Each source cell is read under its own lock; empty cells become nil.
func buildFloorInstances(l *lot.Lot) (*containers.Grid[*Instance], error) {
	src := l.FloorMap
	dims := src.Dimensions()
	out := containers.NewGrid[*Instance](dims.Levels, dims.X, dims.Y)

	for i := 0; i < src.Len(); i++ {
		cell, err := src.CellDirect(i)
		if err != nil {
			return nil, err
		}
		tile, ok := cell.Load()
		if !ok || tile == nil {
			if err := out.Push(nil); err != nil {
				return nil, err
			}
			continue
		}
		level, x, y := dims.Coords(i)
		inst := &Instance{
			Tile:     tile,
			Material: tile.Material,
			Position: Vec3{
				X: float32(x - dims.X/2),
				Y: float32(y - dims.Y/2),
				Z: float32(floorBase + floorLevelStep*float64(level)),
			},
		}
		if err := out.Push(inst); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Digest is a compact description of the floor: a palette of tile keys and
// the cells as RLE-encoded palette ids, 0 meaning no tile.
type Digest struct {
	Palette []string `json:"palette"`
	Cells   string   `json:"cells"`
}

// ErrPaletteFull means a floor uses more distinct tiles than a digest id
// can address.
var ErrPaletteFull = errors.New("display: floor palette exceeds 65535 tiles")

func floorDigest(g *containers.Grid[*Instance]) (Digest, error) {
	var (
		d   Digest
		err error
		ids = make([]uint16, 0, g.Len())
		pal = map[*lot.Tile]uint16{}
	)
	g.Each(func(i int, inst *Instance) bool {
		if inst == nil {
			ids = append(ids, 0)
			return true
		}
		id, ok := pal[inst.Tile]
		if !ok {
			if len(d.Palette) == math.MaxUint16 {
				err = fmt.Errorf("cell %d tile %q: %w", i, inst.Tile.Key, ErrPaletteFull)
				return false
			}
			d.Palette = append(d.Palette, inst.Tile.Key)
			id = uint16(len(d.Palette))
			pal[inst.Tile] = id
		}
		ids = append(ids, id)
		return true
	})
	if err != nil {
		return Digest{}, err
	}
	d.Cells = encoding.EncodeRLE(ids)
	return d, nil
}
