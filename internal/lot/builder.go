package lot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bluebear.game/internal/containers"
	"bluebear.game/internal/encoding"
	"bluebear.game/internal/threading"
)

// InfrastructureFactory resolves dictionary keys to shared prototypes.
// Returning the same pointer for the same key is expected but not required.
type InfrastructureFactory interface {
	FloorTile(key string) (*Tile, error)
	Wallpaper(key string) (*Wallpaper, error)
}

// Validator checks a raw document before decoding. Location is a JSON
// pointer to the offending value.
type Validator interface {
	Validate(raw []byte) (location string, err error)
}

type BuilderConfig struct {
	Factory   InfrastructureFactory
	Logger    logrus.FieldLogger
	Validator Validator // optional
}

// Builder hydrates Lots from documents. It only ever writes to grids it
// allocated itself, so a failed build leaves nothing behind.
type Builder struct {
	factory   InfrastructureFactory
	log       logrus.FieldLogger
	validator Validator
}

func NewBuilder(cfg BuilderConfig) *Builder {
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Builder{factory: cfg.Factory, log: log, validator: cfg.Validator}
}

// Load validates, decodes and builds a raw JSON document.
func (b *Builder) Load(raw []byte) (*Lot, error) {
	if b.validator != nil {
		if loc, err := b.validator.Validate(raw); err != nil {
			return nil, &MalformedError{Field: loc, Err: err}
		}
	}
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, &MalformedError{Field: "document", Err: err}
	}
	return b.Build(&doc)
}

// Build resolves the document's dictionaries and decodes its floor and wall
// levels into fresh concurrent grids.
func (b *Builder) Build(doc *Document) (*Lot, error) {
	if b.factory == nil {
		return nil, errors.New("lot: builder has no infrastructure factory")
	}
	if doc == nil {
		return nil, malformed("", "nil document")
	}
	dims := map[string]*int{"floorx": doc.FloorX, "floory": doc.FloorY, "stories": doc.Stories}
	for _, name := range []string{"floorx", "floory", "stories"} {
		v := dims[name]
		if v == nil {
			return nil, malformed(name, "missing")
		}
		if *v <= 0 {
			return nil, malformed(name, "must be positive, got %d", *v)
		}
	}
	if err := checkCells(*doc.Stories, *doc.FloorX, *doc.FloorY); err != nil {
		return nil, err
	}
	if doc.Subtr < 0 {
		return nil, malformed("subtr", "must not be negative, got %d", doc.Subtr)
	}
	if doc.Infr == nil {
		return nil, malformed("infr", "missing")
	}

	l := &Lot{
		ID:                 uuid.New(),
		FloorX:             *doc.FloorX,
		FloorY:             *doc.FloorY,
		Stories:            *doc.Stories,
		UndergroundStories: doc.Subtr,
		Terrain:            TerrainType(doc.Terrain),
		Rotation:           doc.Rotation,
		Revision:           doc.Revision,
	}

	floor, err := b.buildFloorMap(l, doc.Infr.Floor)
	if err != nil {
		return nil, err
	}
	wall, err := b.buildWallMap(l, doc.Infr.Wall)
	if err != nil {
		return nil, err
	}
	l.FloorMap = floor
	l.WallMap = wall

	b.log.WithFields(logrus.Fields{
		"lot":     l.ID,
		"floor":   fmt.Sprintf("%dx%dx%d", l.Stories, l.FloorX, l.FloorY),
		"tiles":   floor.Len(),
		"walls":   wall.Len(),
		"terrain": l.Terrain,
	}).Info("lot built")
	return l, nil
}

func (b *Builder) buildFloorMap(l *Lot, floor *FloorSection) (*FloorMap, error) {
	if floor == nil {
		return nil, malformed("infr.floor", "missing")
	}
	if floor.Dict == nil {
		return nil, malformed("infr.floor.dict", "missing")
	}
	if floor.Levels == nil {
		return nil, malformed("infr.floor.levels", "missing")
	}

	lookup := make([]*Tile, 0, len(floor.Dict))
	for i, key := range floor.Dict {
		tile, err := b.factory.FloorTile(key)
		if err != nil {
			return nil, &MalformedError{Field: fmt.Sprintf("infr.floor.dict[%d]", i), Err: err}
		}
		lookup = append(lookup, tile)
	}
	b.log.WithField("entries", len(lookup)).Debug("floor dictionary resolved")

	grid := containers.NewConcurrentGrid[*Tile](l.Stories, l.FloorX, l.FloorY)
	for li, level := range floor.Levels {
		resolved := make([]encoding.Entry[*Tile], 0, len(level))
		for ei, e := range level {
			field := fmt.Sprintf("infr.floor.levels[%d][%d]", li, ei)
			tile, err := resolveTile(field, e.Value, lookup)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, encoding.Entry[*Tile]{Run: e.Run, Value: tile})
		}
		err := encoding.Decode(resolved, func(t *Tile) error {
			if t == nil {
				return grid.PushEmpty()
			}
			return grid.PushValue(t)
		})
		if err != nil {
			return nil, &MalformedError{Field: fmt.Sprintf("infr.floor.levels[%d]", li), Err: err}
		}
	}
	if !grid.Full() {
		return nil, malformed("infr.floor.levels", "decoded %d cells, want %d", grid.Len(), grid.Dimensions().Cells())
	}
	return grid, nil
}

// MaxCells bounds the wall grid, the larger of a lot's two grids, at
// stories*(floorx+1)*(floory+1) cells.
const MaxCells = 1 << 22

// checkCells rejects dimensions whose wall grid would exceed MaxCells. The
// product is built one factor at a time so it cannot overflow.
func checkCells(stories, floorX, floorY int) error {
	tooBig := func(field string) error {
		return malformed(field, "lot of %dx%dx%d exceeds %d cells", stories, floorX, floorY, MaxCells)
	}
	cells := 1
	for _, f := range []struct {
		name string
		n    int
		pad  int
	}{{"stories", stories, 0}, {"floorx", floorX, 1}, {"floory", floorY, 1}} {
		if f.n >= MaxCells {
			return tooBig(f.name)
		}
		n := f.n + f.pad
		if n > MaxCells/cells {
			return tooBig(f.name)
		}
		cells *= n
	}
	return nil
}

// resolveTile maps a document index to a prototype. Negative means no tile.
func resolveTile(field string, index int, lookup []*Tile) (*Tile, error) {
	if index < 0 {
		return nil, nil
	}
	if index >= len(lookup) {
		return nil, &IndexError{Field: field, Dict: "infr.floor.dict", Index: index, Len: len(lookup)}
	}
	return lookup[index], nil
}

// wallValue is a wall entry resolved against the wallpaper dictionary.
type wallValue struct {
	populated bool
	segments  [4]*Segment
}

func (b *Builder) buildWallMap(l *Lot, wall *WallSection) (*WallMap, error) {
	if wall == nil {
		return nil, malformed("infr.wall", "missing")
	}
	if wall.Dict == nil {
		return nil, malformed("infr.wall.dict", "missing")
	}
	if wall.Levels == nil {
		return nil, malformed("infr.wall.levels", "missing")
	}

	lookup := make([]*Wallpaper, 0, len(wall.Dict))
	for i, key := range wall.Dict {
		wp, err := b.factory.Wallpaper(key)
		if err != nil {
			return nil, &MalformedError{Field: fmt.Sprintf("infr.wall.dict[%d]", i), Err: err}
		}
		lookup = append(lookup, wp)
	}
	b.log.WithField("entries", len(lookup)).Debug("wall dictionary resolved")

	grid := containers.NewConcurrentGrid[WallCell](l.Stories, l.FloorX+1, l.FloorY+1)
	for li, level := range wall.Levels {
		resolved := make([]encoding.Entry[wallValue], 0, len(level))
		for ei, e := range level {
			field := fmt.Sprintf("infr.wall.levels[%d][%d]", li, ei)
			v, err := resolveWall(field, e.Value, lookup)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, encoding.Entry[wallValue]{Run: e.Run, Value: v})
		}
		if err := encoding.Decode(resolved, func(v wallValue) error { return pushWallCell(grid, v) }); err != nil {
			return nil, &MalformedError{Field: fmt.Sprintf("infr.wall.levels[%d]", li), Err: err}
		}
	}
	if !grid.Full() {
		return nil, malformed("infr.wall.levels", "decoded %d cells, want %d", grid.Len(), grid.Dimensions().Cells())
	}
	return grid, nil
}

// pushWallCell gives every slot its own cell. Each present segment is set in
// a separate Access call; nothing here holds more than one cell lock.
func pushWallCell(grid *WallMap, v wallValue) error {
	if !v.populated {
		return grid.PushEmpty()
	}
	cell := threading.NewCell[WallCell]()
	for i, seg := range v.segments {
		if seg == nil {
			continue
		}
		own := *seg
		if err := cell.Access(func(w *WallCell) { *w.Segments()[i] = &own }); err != nil {
			return err
		}
	}
	return grid.Push(cell)
}

// resolveWall turns a raw wall entry into segments. Numbers and null are open
// space; objects are cell descriptions; anything else is malformed.
func resolveWall(field string, raw json.RawMessage, lookup []*Wallpaper) (wallValue, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return wallValue{}, malformed(field, "empty entry")
	}
	switch raw[0] {
	case '{':
	case 'n':
		return wallValue{}, nil
	case '[', '"', 't', 'f':
		return wallValue{}, malformed(field, "wall entry must be an object, number or null")
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return wallValue{}, &MalformedError{Field: field, Err: err}
		}
		return wallValue{}, nil
	}

	// Keys other than x, y, d and r make the shape unresolvable.
	var obj WallCellObject
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&obj); err != nil {
		return wallValue{}, &MalformedError{Field: field, Err: err}
	}
	v := wallValue{populated: true}
	for i, ref := range obj.refs() {
		if ref == nil {
			continue
		}
		segField := field + "." + segmentKeys[i]
		if ref.F == nil || ref.B == nil {
			return wallValue{}, malformed(segField, "segment needs both f and b")
		}
		front, err := wallpaperAt(segField+".f", *ref.F, lookup)
		if err != nil {
			return wallValue{}, err
		}
		back, err := wallpaperAt(segField+".b", *ref.B, lookup)
		if err != nil {
			return wallValue{}, err
		}
		v.segments[i] = &Segment{Front: front, Back: back}
	}
	return v, nil
}

func wallpaperAt(field string, index uint, lookup []*Wallpaper) (*Wallpaper, error) {
	if index >= uint(len(lookup)) {
		return nil, &IndexError{Field: field, Dict: "infr.wall.dict", Index: int(index), Len: len(lookup)}
	}
	return lookup[index], nil
}
