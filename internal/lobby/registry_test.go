package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/kaillera/relay-server/internal/room"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestCreateRoomAddsHostAsPlayer(t *testing.T) {
	reg := New(logr.Discard(), func(*room.Player, []byte) {}, 0, time.Minute, nil)
	host := reg.Login("host", QualityLAN, nil)

	r, err := reg.CreateRoom(context.Background(), host, "Test Game", "Test Emu")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	waitFor(t, time.Second, func() bool { return r.Snapshot().PlayerCount == 1 })
}

func TestJoinRoomAddsSecondPlayer(t *testing.T) {
	reg := New(logr.Discard(), func(*room.Player, []byte) {}, 0, time.Minute, nil)
	host := reg.Login("host", QualityLAN, nil)
	r, err := reg.CreateRoom(context.Background(), host, "Test Game", "Test Emu")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	waitFor(t, time.Second, func() bool { return r.Snapshot().PlayerCount == 1 })

	guest := reg.Login("guest", QualityGood, nil)
	if err := reg.JoinRoom(r.GameID, guest, QualityGood, 60); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	waitFor(t, time.Second, func() bool { return r.Snapshot().PlayerCount == 2 })
	if guest.Player.Delay != DelayForPing(QualityGood, 60) {
		t.Fatalf("expected delay %d, got %d", DelayForPing(QualityGood, 60), guest.Player.Delay)
	}
}

func TestQuitRoomClosesEmptyRoom(t *testing.T) {
	reg := New(logr.Discard(), func(*room.Player, []byte) {}, 0, time.Minute, nil)
	host := reg.Login("host", QualityLAN, nil)
	r, err := reg.CreateRoom(context.Background(), host, "Test Game", "Test Emu")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	waitFor(t, time.Second, func() bool { return r.Snapshot().PlayerCount == 1 })

	reg.QuitRoom(host)

	waitFor(t, time.Second, func() bool {
		_, ok := reg.RoomByGameID(r.GameID)
		return !ok
	})
}

func TestJoinUnknownRoomFails(t *testing.T) {
	reg := New(logr.Discard(), func(*room.Player, []byte) {}, 0, time.Minute, nil)
	u := reg.Login("solo", QualityLAN, nil)
	if err := reg.JoinRoom(999, u, QualityLAN, 10); err == nil {
		t.Fatal("expected error joining a nonexistent room")
	}
}

func TestCreateRoomRespectsMaxRooms(t *testing.T) {
	reg := New(logr.Discard(), func(*room.Player, []byte) {}, 1, time.Minute, nil)
	host1 := reg.Login("host1", QualityLAN, nil)
	if _, err := reg.CreateRoom(context.Background(), host1, "Game 1", "Emu"); err != nil {
		t.Fatalf("first CreateRoom: %v", err)
	}

	host2 := reg.Login("host2", QualityLAN, nil)
	if _, err := reg.CreateRoom(context.Background(), host2, "Game 2", "Emu"); err == nil {
		t.Fatal("expected second CreateRoom to fail at max rooms")
	}
}
