// Package admin exposes the read-only operator surface (C12): liveness,
// metrics, a room listing, and a websocket stream that pushes the room
// listing whenever it changes. It never mutates room state and runs on
// its own HTTP listener, independent of the UDP path.
package admin

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/kaillera/relay-server/internal/room"
)

const streamInterval = time.Second

// RoomSource is the subset of the lobby registry the admin surface reads.
type RoomSource interface {
	Rooms() []room.Snapshot
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server is the admin HTTP surface. Construct with New and mount with
// Handler on whatever listener the caller chooses.
type Server struct {
	rooms   RoomSource
	metrics *Metrics
	log     logr.Logger

	clientsMu sync.Mutex
	clients   map[*streamClient]struct{}
}

// New builds an admin Server. Call Run to start the periodic room-change
// broadcast to connected stream clients.
func New(rooms RoomSource, metrics *Metrics, log logr.Logger) *Server {
	return &Server{
		rooms:   rooms,
		metrics: metrics,
		log:     log,
		clients: make(map[*streamClient]struct{}),
	}
}

// Handler returns the mux to mount on an http.Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/admin/rooms", s.handleRooms)
	mux.HandleFunc("/admin/stream", s.handleStream)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()

	rooms := s.rooms.Rooms()
	var players int
	for _, rm := range rooms {
		players += rm.PlayerCount
	}
	snap["active_rooms"] = int64(len(rooms))
	snap["active_players"] = int64(players)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.rooms.Rooms())
}

// streamClient is one connected operator dashboard; modeled on the
// read-pump/write-pump/send-channel pattern for fanning out pushes
// without blocking the broadcaster on a slow reader.
type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.V(1).Info("admin stream upgrade failed", "err", err.Error())
		return
	}

	c := &streamClient{conn: conn, send: make(chan []byte, 8)}
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

// readPump only watches for client disconnect; the admin stream is
// push-only and ignores anything the client sends.
func (s *Server) readPump(c *streamClient) {
	defer s.dropClient(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *streamClient) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.dropClient(c)
			return
		}
	}
}

func (s *Server) dropClient(c *streamClient) {
	s.clientsMu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.clientsMu.Unlock()
	_ = c.conn.Close()
}

// Run periodically snapshots the room listing and, when it has changed,
// pushes it to every connected stream client, until the caller closes
// done.
func (s *Server) Run(done <-chan struct{}) {
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			body, err := json.Marshal(s.rooms.Rooms())
			if err != nil {
				s.log.Error(err, "failed to marshal room snapshot")
				continue
			}
			if string(body) == last {
				continue
			}
			last = string(body)
			s.broadcast(body)
		}
	}
}

func (s *Server) broadcast(msg []byte) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.log.V(1).Info("admin stream client send channel full, dropping")
		}
	}
}
