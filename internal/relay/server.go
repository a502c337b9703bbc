// Package relay wires every component (C1-C13) into one explicit server
// context (section 9 design notes: no ambient singletons). Exactly one
// Server is constructed in main and owns the lifetime of every listener.
package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/kaillera/relay-server/internal/admin"
	"github.com/kaillera/relay-server/internal/control"
	"github.com/kaillera/relay-server/internal/lobby"
	"github.com/kaillera/relay-server/internal/masterlist"
	"github.com/kaillera/relay-server/internal/room"
	"github.com/kaillera/relay-server/internal/transport"
)

// Config is the immutable, fully-parsed set of startup parameters
// (section 4.13). It is threaded through to every component rather than
// read back out of flags or the environment once parsed.
type Config struct {
	Name string
	MOTD string

	GameAddr    string // main UDP listener, e.g. ":27886"
	ControlAddr string // control-port UDP listener, e.g. ":27900"
	AdminAddr   string // admin HTTP listener, e.g. ":8080"

	MasterListURL  string // empty disables the heartbeat
	MasterListAddr string // address advertised to the master list

	MaxRooms        int
	IdleTimeout     time.Duration
	HeartbeatPeriod time.Duration
}

// Server is the wired, running relay: lobby registry, UDP transport,
// control-port bootstrap, optional master-list heartbeat, and the admin
// surface.
type Server struct {
	cfg Config
	log logr.Logger

	registry *lobby.Registry
	udp      *transport.Server
	ctrl     *control.Server
	admin    *admin.Server
	httpSrv  *http.Server
	hb       *masterlist.Heartbeat
}

// New wires every component together but starts nothing. Call Run to
// bring the relay up.
func New(cfg Config, log logr.Logger) (*Server, error) {
	s := &Server{cfg: cfg, log: log}

	metrics := &admin.Metrics{}

	mainPort, err := portOf(cfg.GameAddr)
	if err != nil {
		return nil, fmt.Errorf("relay: bad game address %q: %w", cfg.GameAddr, err)
	}

	// The registry needs a SendFunc to hand each room at creation time,
	// but that SendFunc is transport.Server.Send, and transport.Listen
	// needs the registry to route pre-room traffic. Close the cycle with
	// a closure that captures udp by reference; it is never invoked
	// before Listen returns below.
	var udp *transport.Server
	send := func(p *room.Player, datagram []byte) {
		if udp != nil {
			udp.Send(p, datagram)
		}
	}

	reg := lobby.New(log.WithName("lobby"), send, cfg.MaxRooms, cfg.IdleTimeout, metrics)
	s.registry = reg

	udp, err = transport.Listen(cfg.GameAddr, reg, metrics, log.WithName("transport"))
	if err != nil {
		return nil, fmt.Errorf("relay: game listener: %w", err)
	}
	s.udp = udp

	ctrl, err := control.Listen(cfg.ControlAddr, mainPort, log.WithName("control"))
	if err != nil {
		return nil, fmt.Errorf("relay: control listener: %w", err)
	}
	s.ctrl = ctrl

	s.admin = admin.New(reg, metrics, log.WithName("admin"))
	s.httpSrv = &http.Server{Addr: cfg.AdminAddr, Handler: s.admin.Handler()}

	if cfg.MasterListURL != "" {
		s.hb = masterlist.New(cfg.MasterListURL, cfg.Name, cfg.MasterListAddr, cfg.MOTD,
			cfg.HeartbeatPeriod, reg, log.WithName("masterlist"))
	}

	return s, nil
}

// Run starts every listener and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.udp.Serve()
	go s.ctrl.Serve()

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error(err, "admin http server stopped")
		}
	}()

	streamDone := make(chan struct{})
	go s.admin.Run(streamDone)

	if s.hb != nil {
		go s.hb.Run(ctx)
	}

	s.log.Info("relay server started",
		"name", s.cfg.Name, "game_addr", s.cfg.GameAddr, "control_addr", s.cfg.ControlAddr, "admin_addr", s.cfg.AdminAddr)

	<-ctx.Done()
	close(streamDone)
	_ = s.udp.Close()
	_ = s.ctrl.Close()
	_ = s.httpSrv.Close()
	return nil
}

func portOf(addr string) (uint16, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 0, err
	}
	return port, nil
}
