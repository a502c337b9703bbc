package relay

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

func testConfig() Config {
	return Config{
		Name:            "Test Server",
		MOTD:            "welcome",
		GameAddr:        "127.0.0.1:0",
		ControlAddr:     "127.0.0.1:0",
		AdminAddr:       "127.0.0.1:0",
		MaxRooms:        4,
		IdleTimeout:     time.Minute,
		HeartbeatPeriod: time.Hour,
	}
}

func TestNewWiresAllComponents(t *testing.T) {
	s, err := New(testConfig(), logr.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.registry == nil || s.udp == nil || s.ctrl == nil || s.admin == nil {
		t.Fatal("expected every core component to be wired")
	}
	_ = s.udp.Close()
	_ = s.ctrl.Close()
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s, err := New(testConfig(), logr.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestMasterListHeartbeatOptionalByDefault(t *testing.T) {
	s, err := New(testConfig(), logr.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.hb != nil {
		t.Fatal("expected no heartbeat without a configured master-list URL")
	}
	_ = s.udp.Close()
	_ = s.ctrl.Close()
}
