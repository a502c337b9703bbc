// Package transport owns the shared UDP socket (C8): it demultiplexes
// inbound datagrams by source address to the owning room's mailbox, or
// to the lobby for pre-room traffic, and provides the fire-and-forget
// send path every room uses.
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/kaillera/relay-server/internal/lobby"
	"github.com/kaillera/relay-server/internal/room"
	"github.com/kaillera/relay-server/internal/wire"
)

// Metrics is the subset of the admin counters the transport increments
// directly; kept as a local interface so this package never imports
// internal/admin.
type Metrics interface {
	IncDatagramsProcessed()
	IncDatagramsDropped()
}

// dscpAF31 is the AF31 traffic class (26 << 2), used to prioritize game
// traffic over best-effort background flows.
const dscpAF31 = 0x68

const (
	readBufferBytes  = 131072
	writeBufferBytes = 131072
	datagramMax      = 1500
	bufferPoolSize   = 20
)

// Session correlates a UDP source address with the user session it
// belongs to, so a bare datagram can be routed without decoding it
// twice.
type session struct {
	user *lobby.User
}

// Server owns the UDP listener, the address->session table, and the
// registry pre-room traffic is routed to.
type Server struct {
	conn    *net.UDPConn
	reg     *lobby.Registry
	log     logr.Logger
	metrics Metrics

	mu       sync.RWMutex
	sessions map[string]*session
}

// Listen opens and tunes the UDP socket per the section 4.8 socket
// profile (128 KiB buffers, AF31 DSCP marking on both IP families).
// metrics may be nil.
func Listen(addr string, reg *lobby.Registry, metrics Metrics, log logr.Logger) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	if err := conn.SetReadBuffer(readBufferBytes); err != nil {
		log.Error(err, "could not set UDP read buffer size")
	}
	if err := conn.SetWriteBuffer(writeBufferBytes); err != nil {
		log.Error(err, "could not set UDP write buffer size")
	}
	if err := ipv4.NewConn(conn).SetTOS(dscpAF31); err != nil {
		log.V(1).Info("could not set IPv4 DSCP AF31", "err", err.Error())
	}
	if err := ipv6.NewConn(conn).SetTrafficClass(dscpAF31); err != nil {
		log.V(1).Info("could not set IPv6 DSCP AF31", "err", err.Error())
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		log.Error(err, "could not clear UDP deadline")
	}

	return &Server{
		conn:     conn,
		reg:      reg,
		log:      log,
		metrics:  metrics,
		sessions: make(map[string]*session),
	}, nil
}

// Send is the room.SendFunc every room uses for outbound delivery: it
// never blocks the caller on backpressure, matching the section 5
// suspension-point analysis for UDP writes.
func (s *Server) Send(p *room.Player, datagram []byte) {
	if p.Addr == nil {
		return
	}
	if _, err := s.conn.WriteToUDP(datagram, p.Addr); err != nil {
		s.log.V(1).Info("udp write failed", "addr", p.Addr.String(), "err", err.Error())
	}
}

// Serve runs the read loop until the socket is closed. It reads into a
// small rotating pool of fixed-size buffers, mirroring the teacher's
// watchUDP, and copies each datagram out of the pool before handling it.
func (s *Server) Serve() {
	pool := make([][]byte, bufferPoolSize)
	for i := range pool {
		pool[i] = make([]byte, datagramMax)
	}
	idx := 0

	for {
		buf := pool[idx]
		idx = (idx + 1) % len(pool)

		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if isClosed(err) {
				return
			}
			s.log.Error(err, "udp read error")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		s.handleDatagram(addr, data)
	}
}

// Close shuts down the listener, unblocking Serve.
func (s *Server) Close() error {
	return s.conn.Close()
}

func (s *Server) handleDatagram(addr *net.UDPAddr, data []byte) {
	msgs, err := wire.Decode(data)
	if err != nil {
		s.log.V(1).Info("malformed datagram", "addr", addr.String(), "err", err.Error())
		if s.metrics != nil {
			s.metrics.IncDatagramsDropped()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.IncDatagramsProcessed()
	}

	key := addr.String()
	s.mu.RLock()
	sess, known := s.sessions[key]
	s.mu.RUnlock()

	for _, m := range msgs {
		if !known || sess.user.Room == nil {
			s.handleLobbyMessage(addr, key, m)
			continue
		}
		sess.user.Room.Mailbox() <- room.Envelope{Player: sess.user.Player, Msg: m}
	}
}

// handleLobbyMessage handles the pre-room traffic C9 owns: login and user
// quit and, once logged in, create/join/quit game. Any other pre-room type
// (global chat, keep-alive, ...) is logged and dropped.
func (s *Server) handleLobbyMessage(addr *net.UDPAddr, key string, m wire.Message) {
	s.mu.RLock()
	sess, known := s.sessions[key]
	s.mu.RUnlock()

	switch m.Type {
	case wire.TypeUserLogin:
		username, _, ok := wire.ReadString(m.Payload, 0)
		if !ok {
			return
		}
		quality := lobby.QualityAverage
		if len(m.Payload) > 0 {
			quality = m.Payload[len(m.Payload)-1]
		}
		u := s.reg.Login(username, quality, addr)
		s.mu.Lock()
		s.sessions[key] = &session{user: u}
		s.mu.Unlock()
		return
	case wire.TypeUserQuit:
		if known {
			s.reg.Logout(sess.user.UID)
			s.mu.Lock()
			delete(s.sessions, key)
			s.mu.Unlock()
		}
		return
	}

	if !known {
		s.log.V(1).Info("message from unknown session dropped", "addr", addr.String(), "type", wire.TypeName(m.Type))
		return
	}

	switch m.Type {
	case wire.TypeCreateGame:
		// Layout: NB(empty), NB game_name, NB(empty), u32_le 0xFF. The game
		// name follows the leading empty string; no emulator name is sent.
		_, next, ok := wire.ReadString(m.Payload, 0)
		if !ok {
			return
		}
		title, _, ok := wire.ReadString(m.Payload, next)
		if !ok {
			return
		}
		if _, err := s.reg.CreateRoom(context.Background(), sess.user, title, "Unknown"); err != nil {
			s.log.V(1).Info("create room rejected", "user", sess.user.Username, "err", err.Error())
		}
	case wire.TypeJoinGame:
		// Layout: NB(empty), u32_le game_id, NB(empty), u32_le 0xFFFFFFFF,
		// u16_le 0xFFFF, u8 conn_quality. The game_id sits right after the
		// leading empty string, not at offset 0.
		_, next, ok := wire.ReadString(m.Payload, 0)
		if !ok || next+4 > len(m.Payload) {
			return
		}
		gameID := binary.LittleEndian.Uint32(m.Payload[next : next+4])
		if err := s.reg.JoinRoom(gameID, sess.user, sess.user.Quality, 0); err != nil {
			s.log.V(1).Info("join room rejected", "user", sess.user.Username, "err", err.Error())
		}
	case wire.TypeQuitGame:
		s.reg.QuitRoom(sess.user)
	default:
		s.log.V(1).Info("unhandled lobby message", "type", wire.TypeName(m.Type))
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
