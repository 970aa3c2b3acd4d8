package lot

import (
	"encoding/json"
	"fmt"

	"bluebear.game/internal/encoding"
)

// Export serializes the lot back into a Document, run-length compacting
// each level. Dictionaries are ordered by first use. Every cell is read
// under its own lock, one at a time.
func (l *Lot) Export() (*Document, error) {
	if l.FloorMap == nil || l.WallMap == nil {
		return nil, fmt.Errorf("lot %s: export: grids not built", l.ID)
	}
	floor, err := l.exportFloor()
	if err != nil {
		return nil, err
	}
	wall, err := l.exportWall()
	if err != nil {
		return nil, err
	}
	return &Document{
		FloorX:   intPtr(l.FloorX),
		FloorY:   intPtr(l.FloorY),
		Stories:  intPtr(l.Stories),
		Subtr:    l.UndergroundStories,
		Terrain:  int(l.Terrain),
		Rotation: l.Rotation,
		Revision: l.Revision,
		Infr:     &Infrastructure{Floor: floor, Wall: wall},
	}, nil
}

func (l *Lot) exportFloor() (*FloorSection, error) {
	dict := []string{}
	index := map[string]int{}
	perLevel := l.FloorX * l.FloorY
	levels := make([][]encoding.Entry[int], 0, l.Stories)

	ids := make([]int, 0, perLevel)
	for i := 0; i < l.FloorMap.Len(); i++ {
		c, err := l.FloorMap.CellDirect(i)
		if err != nil {
			return nil, err
		}
		id := -1
		if tile, ok := c.Load(); ok && tile != nil {
			n, seen := index[tile.Key]
			if !seen {
				n = len(dict)
				index[tile.Key] = n
				dict = append(dict, tile.Key)
			}
			id = n
		}
		ids = append(ids, id)
		if len(ids) == perLevel {
			levels = append(levels, encoding.Compact(ids))
			ids = make([]int, 0, perLevel)
		}
	}
	return &FloorSection{Dict: dict, Levels: levels}, nil
}

func (l *Lot) exportWall() (*WallSection, error) {
	dict := []string{}
	index := map[string]uint{}
	ref := func(wp *Wallpaper) uint {
		n, seen := index[wp.Key]
		if !seen {
			n = uint(len(dict))
			index[wp.Key] = n
			dict = append(dict, wp.Key)
		}
		return n
	}

	perLevel := (l.FloorX + 1) * (l.FloorY + 1)
	levels := make([][]encoding.Entry[json.RawMessage], 0, l.Stories)
	cells := make([]*WallCellObject, 0, perLevel)
	flush := func() error {
		runs := encoding.CompactFunc(cells, sameWallObject)
		out := make([]encoding.Entry[json.RawMessage], 0, len(runs))
		for _, r := range runs {
			raw, err := json.Marshal(r.Value)
			if err != nil {
				return err
			}
			out = append(out, encoding.Entry[json.RawMessage]{Run: r.Run, Value: raw})
		}
		levels = append(levels, out)
		cells = make([]*WallCellObject, 0, perLevel)
		return nil
	}

	for i := 0; i < l.WallMap.Len(); i++ {
		c, err := l.WallMap.CellDirect(i)
		if err != nil {
			return nil, err
		}
		var obj *WallCellObject
		if w, ok := c.Load(); ok {
			obj = &WallCellObject{}
			segs := w.Segments()
			dst := [4]**SegmentRef{&obj.X, &obj.Y, &obj.D, &obj.R}
			for k, s := range segs {
				if *s == nil {
					continue
				}
				*dst[k] = &SegmentRef{F: uintPtr(ref((*s).Front)), B: uintPtr(ref((*s).Back))}
			}
		}
		cells = append(cells, obj)
		if len(cells) == perLevel {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	return &WallSection{Dict: dict, Levels: levels}, nil
}

func sameWallObject(a, b *WallCellObject) bool {
	if a == nil || b == nil {
		return a == b
	}
	ar, br := a.refs(), b.refs()
	for i := range ar {
		if !sameRef(ar[i], br[i]) {
			return false
		}
	}
	return true
}

func sameRef(a, b *SegmentRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a.F == *b.F && *a.B == *b.B
}
