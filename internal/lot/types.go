// Package lot builds and exports the per-cell infrastructure state of a Lot:
// its floor tiles and wall segments, stored in concurrent grids shared by the
// simulation and render loops.
package lot

import (
	"github.com/google/uuid"

	"bluebear.game/internal/containers"
)

type TerrainType int

const (
	TerrainGrass TerrainType = iota
	TerrainDesert
	TerrainSnow
)

func (t TerrainType) String() string {
	switch t {
	case TerrainGrass:
		return "GRASS"
	case TerrainDesert:
		return "DESERT"
	case TerrainSnow:
		return "SNOW"
	default:
		return "UNKNOWN"
	}
}

// Tile is a floor prototype. Many cells share one *Tile; treat it as
// read-only after the factory hands it out.
type Tile struct {
	Key      string
	Name     string
	Material string
	Price    int
}

// Wallpaper is a wall surface prototype, shared the same way as Tile.
type Wallpaper struct {
	Key     string
	Name    string
	Texture string
	Price   int
}

// Segment is one directional wall surface. Segments are replaced whole,
// never edited in place.
type Segment struct {
	Front *Wallpaper
	Back  *Wallpaper
}

// WallCell holds up to four independent segments. A cell with none of them
// is open space.
type WallCell struct {
	X               *Segment
	Y               *Segment
	Diagonal        *Segment
	ReverseDiagonal *Segment
}

func (w WallCell) Empty() bool {
	return w.X == nil && w.Y == nil && w.Diagonal == nil && w.ReverseDiagonal == nil
}

// Segments returns the four segment slots in x, y, diagonal, reverse order.
func (w *WallCell) Segments() [4]**Segment {
	return [4]**Segment{&w.X, &w.Y, &w.Diagonal, &w.ReverseDiagonal}
}

type FloorMap = containers.ConcurrentGrid[*Tile]
type WallMap = containers.ConcurrentGrid[WallCell]

// Lot is one loaded world document.
type Lot struct {
	ID uuid.UUID

	FloorX             int
	FloorY             int
	Stories            int
	UndergroundStories int
	Terrain            TerrainType
	Rotation           uint
	Revision           int

	FloorMap *FloorMap
	WallMap  *WallMap
}
