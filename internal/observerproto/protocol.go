// Package observerproto defines the observer websocket and bootstrap wire
// messages.
package observerproto

import "bluebear.game/internal/display"

const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeReload    = "RELOAD"
	TypeFrame     = "FRAME"
)

// Client -> Server. SUBSCRIBE must be the first message on a connection.
// RELOAD asks the engine to reload the current lot from disk.
type ClientMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	TickRateHz      int        `json:"tick_rate_hz"`
	Ticks           uint64     `json:"ticks"`
	Locked          bool       `json:"locked"`
	Lot             *LotParams `json:"lot,omitempty"`
}

type LotParams struct {
	ID                 string `json:"id"`
	Path               string `json:"path"`
	FloorX             int    `json:"floor_x"`
	FloorY             int    `json:"floor_y"`
	Stories            int    `json:"stories"`
	UndergroundStories int    `json:"underground_stories"`
	Terrain            string `json:"terrain"`
	Rotation           uint   `json:"rotation"`
	Revision           int    `json:"revision"`
}

// Server -> Client. Sent for every main game frame, latest wins.
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	display.Frame
}
