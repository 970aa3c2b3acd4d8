package observer

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"bluebear.game/internal/display"
	"bluebear.game/internal/observerproto"
)

// Hub fans display frames out to observer connections. A slow client only
// ever misses frames; Publish never blocks the render loop.
type Hub struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	clients map[string]chan []byte
}

var _ display.Sink = (*Hub)(nil)

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{log: log, clients: map[string]chan []byte{}}
}

func (h *Hub) Publish(f display.Frame) {
	b, err := json.Marshal(observerproto.FrameMsg{
		Type:            observerproto.TypeFrame,
		ProtocolVersion: observerproto.Version,
		Frame:           f,
	})
	if err != nil {
		h.log.WithError(err).Warn("encode frame")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		sendLatest(ch, b)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) subscribe(id string) chan []byte {
	ch := make(chan []byte, 2)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// sendLatest enqueues b, dropping the oldest queued message if full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
