package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/kaillera/relay-server/internal/relay"
)

const (
	defaultGamePort    = 27886
	defaultControlPort = 27900
	defaultMOTD        = "Kaillera Relay"
)

func newZap(logPath string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if logPath != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logPath)
	}
	return cfg.Build()
}

func main() {
	name := flag.String("name", "Localhost", "Server name")
	gamePort := flag.Int("port", defaultGamePort, "Base UDP port for game traffic")
	controlPort := flag.Int("control-port", defaultControlPort, "UDP port for the HELLO/PING control handshake")
	adminAddr := flag.String("admin-addr", ":8080", "Admin HTTP listen address")
	motd := flag.String("motd", "", "MOTD message shown to clients")
	maxRooms := flag.Int("max-rooms", 50, "Maximum number of concurrent rooms, 0 for unlimited")
	idleTimeout := flag.Duration("idle-timeout", 60*time.Second, "Drop a player after this long without traffic")
	logPath := flag.String("log-path", "", "Write logs to this file in addition to stderr")
	masterListURL := flag.String("master-list-url", "", "Optional master server list heartbeat endpoint")
	masterListAddr := flag.String("master-list-addr", "", "Address advertised to the master list (host:port)")
	heartbeatPeriod := flag.Duration("heartbeat-period", 5*time.Minute, "Master-list heartbeat interval")
	flag.Parse()

	zapLog, err := newZap(*logPath)
	if err != nil {
		log.Panic(err)
	}
	defer zapLog.Sync() //nolint:errcheck
	logger := zapr.NewLogger(zapLog)

	if *name == "" {
		logger.Error(fmt.Errorf("name required"), "server name not set")
		os.Exit(1)
	}
	if *motd == "" {
		*motd = defaultMOTD
	}

	cfg := relay.Config{
		Name:            *name,
		MOTD:            *motd,
		GameAddr:        fmt.Sprintf(":%d", *gamePort),
		ControlAddr:     fmt.Sprintf(":%d", *controlPort),
		AdminAddr:       *adminAddr,
		MasterListURL:   *masterListURL,
		MasterListAddr:  *masterListAddr,
		MaxRooms:        *maxRooms,
		IdleTimeout:     *idleTimeout,
		HeartbeatPeriod: *heartbeatPeriod,
	}

	srv, err := relay.New(cfg, logger)
	if err != nil {
		logger.Error(err, "could not build relay server")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error(err, "relay server exited with error")
		os.Exit(1)
	}
}
