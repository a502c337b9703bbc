// Package control implements the control-port bootstrap (C10): the fixed
// two-message handshake a Kaillera client uses to discover the main game
// port, plus a PING/PONG liveness check on the same socket.
package control

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-logr/logr"
)

const (
	helloRequest = "HELLO0.83\x00"
	pingRequest  = "PING\x00"
	pongReply    = "PONG\x00"

	bufSize = 4096
)

// Server answers the control-port handshake on its own UDP listener,
// independent of the main game-traffic socket.
type Server struct {
	conn     *net.UDPConn
	mainPort uint16
	log      logr.Logger
}

// Listen opens the control-port listener. mainPort is advertised back to
// clients in the HELLOD00D reply.
func Listen(addr string, mainPort uint16, log logr.Logger) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Server{conn: conn, mainPort: mainPort, log: log}, nil
}

// Serve runs the handshake loop until the socket is closed.
func (s *Server) Serve() {
	buf := make([]byte, bufSize)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if isClosed(err) {
				return
			}
			s.log.Error(err, "control socket read error")
			continue
		}
		s.handle(src, buf[:n])
	}
}

// Close shuts down the listener, unblocking Serve.
func (s *Server) Close() error {
	return s.conn.Close()
}

func (s *Server) handle(src *net.UDPAddr, data []byte) {
	switch string(data) {
	case helloRequest:
		s.log.V(1).Info("HELLO request received on control socket", "addr", src.String(), "port", s.mainPort)
		reply := fmt.Sprintf("HELLOD00D%d\x00", s.mainPort)
		if _, err := s.conn.WriteToUDP([]byte(reply), src); err != nil {
			s.log.Error(err, "control socket write error")
		}
	case pingRequest:
		s.log.V(1).Info("PING request received on control socket", "addr", src.String())
		if _, err := s.conn.WriteToUDP([]byte(pongReply), src); err != nil {
			s.log.Error(err, "control socket write error")
		}
	default:
		s.log.Info("unknown message on control socket", "addr", src.String(), "size", len(data), "preview", previewASCII(data))
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// previewASCII renders the first 50 bytes of data as printable ASCII,
// substituting '.' for anything outside that range, for safe logging.
func previewASCII(data []byte) string {
	if len(data) > 50 {
		data = data[:50]
	}
	var b strings.Builder
	for _, c := range data {
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
