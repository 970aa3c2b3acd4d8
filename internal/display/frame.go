package display

// Frame summarizes one rendered main game frame.
type Frame struct {
	Number    uint64 `json:"frame"`
	State     string `json:"state"`
	LotID     string `json:"lot_id,omitempty"`
	ViewportX int    `json:"viewport_x"`
	ViewportY int    `json:"viewport_y"`
	Instances int    `json:"instances"`
	Entities  int    `json:"entities"`
	Floor     Digest `json:"floor"`
}
