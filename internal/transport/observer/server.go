// Package observer serves read-only views of the running lot over HTTP and
// websocket to loopback clients.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"bluebear.game/internal/command"
	"bluebear.game/internal/lot"
	"bluebear.game/internal/observerproto"
)

// Source is the engine state exposed to observers.
type Source interface {
	Lot() *lot.Lot
	LotPath() string
	Ticks() uint64
	Locked() bool
}

// Requester forwards engine commands; the display implements it.
type Requester interface {
	Request(c command.Engine)
}

type Server struct {
	src        Source
	hub        *Hub
	requests   Requester
	tickRateHz int
	log        logrus.FieldLogger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

type ServerConfig struct {
	Source     Source
	Hub        *Hub
	Requester  Requester // optional; RELOAD is ignored without it
	TickRateHz int
	Log        logrus.FieldLogger
}

func NewServer(cfg ServerConfig) *Server {
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Server{
		src:        cfg.Source,
		hub:        cfg.Hub,
		requests:   cfg.Requester,
		tickRateHz: cfg.TickRateHz,
		log:        log.WithField("component", "observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only, see isLoopbackRemote
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	return mux
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			TickRateHz:      s.tickRateHz,
			Ticks:           s.src.Ticks(),
			Locked:          s.src.Locked(),
		}
		if l := s.src.Lot(); l != nil {
			resp.Lot = &observerproto.LotParams{
				ID:                 l.ID.String(),
				Path:               s.src.LotPath(),
				FloorX:             l.FloorX,
				FloorY:             l.FloorY,
				Stories:            l.Stories,
				UndergroundStories: l.UndergroundStories,
				Terrain:            l.Terrain.String(),
				Rotation:           l.Rotation,
				Revision:           l.Revision,
			}
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		msg, ok, err := readClientMsg(conn)
		if err != nil || !ok || msg.Type != observerproto.TypeSubscribe {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		log := s.log.WithField("session", sid)
		out := s.hub.subscribe(sid)
		defer s.hub.unsubscribe(sid)
		log.Debug("observer subscribed")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			msg, ok, err := readClientMsg(conn)
			if err != nil {
				break
			}
			if ok && msg.Type == observerproto.TypeReload {
				s.reload(log)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		log.Debug("observer left")
	}
}

func (s *Server) reload(log logrus.FieldLogger) {
	path := s.src.LotPath()
	if s.requests == nil || path == "" {
		return
	}
	s.requests.Request(command.LoadLot{Path: path})
	log.WithField("path", path).Info("reload requested")
}

// readClientMsg reads one message. err is a connection error; ok is false
// for undecodable messages or another protocol version.
func readClientMsg(conn *websocket.Conn) (msg observerproto.ClientMsg, ok bool, err error) {
	_, b, err := conn.ReadMessage()
	if err != nil {
		return msg, false, err
	}
	if json.Unmarshal(b, &msg) != nil {
		return msg, false, nil
	}
	return msg, msg.ProtocolVersion == observerproto.Version, nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
