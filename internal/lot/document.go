package lot

import (
	"encoding/json"

	"bluebear.game/internal/encoding"
)

// Document is the serialized form of a Lot. Pointer and slice fields are nil
// when absent so required fields can be told apart from zero values.
type Document struct {
	FloorX   *int            `json:"floorx"`
	FloorY   *int            `json:"floory"`
	Stories  *int            `json:"stories"`
	Subtr    int             `json:"subtr"`
	Terrain  int             `json:"terrain"`
	Rotation uint            `json:"rot"`
	Revision int             `json:"rev,omitempty"`
	Infr     *Infrastructure `json:"infr"`
}

type Infrastructure struct {
	Floor *FloorSection `json:"floor"`
	Wall  *WallSection  `json:"wall"`
}

type FloorSection struct {
	Dict   []string                `json:"dict"`
	Levels [][]encoding.Entry[int] `json:"levels"`
}

// WallSection keeps entries raw: a wall entry may be a cell object, a
// number or null, and the builder decides which.
type WallSection struct {
	Dict   []string                            `json:"dict"`
	Levels [][]encoding.Entry[json.RawMessage] `json:"levels"`
}

type SegmentRef struct {
	F *uint `json:"f"`
	B *uint `json:"b"`
}

type WallCellObject struct {
	X *SegmentRef `json:"x,omitempty"`
	Y *SegmentRef `json:"y,omitempty"`
	D *SegmentRef `json:"d,omitempty"`
	R *SegmentRef `json:"r,omitempty"`
}

func (o *WallCellObject) refs() [4]*SegmentRef { return [4]*SegmentRef{o.X, o.Y, o.D, o.R} }

var segmentKeys = [4]string{"x", "y", "d", "r"}

func intPtr(v int) *int { return &v }

func uintPtr(v uint) *uint { return &v }

// GobEncode stores the document as JSON; gob would otherwise drop pointers
// to zero values and empty dictionaries.
func (d *Document) GobEncode() ([]byte, error) { return json.Marshal(d) }

func (d *Document) GobDecode(b []byte) error { return json.Unmarshal(b, d) }
