package transport

import (
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/kaillera/relay-server/internal/lobby"
	"github.com/kaillera/relay-server/internal/room"
	"github.com/kaillera/relay-server/internal/wire"
)

func testServer() *Server {
	return &Server{
		reg:      lobby.New(logr.Discard(), func(*room.Player, []byte) {}, 0, time.Minute, nil),
		log:      logr.Discard(),
		sessions: make(map[string]*session),
	}
}

func waitForTransport(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func encodeOne(t *testing.T, msgType byte, payload []byte) []byte {
	t.Helper()
	d, err := wire.Encode([]wire.Message{{Seq: 0, Type: msgType, Payload: payload}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return d
}

func loginPayload(username string, quality byte) []byte {
	var buf []byte
	buf = append(buf, username...)
	buf = append(buf, 0)
	buf = append(buf, quality)
	return buf
}

func TestLoginCreatesSession(t *testing.T) {
	s := testServer()
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}

	s.handleDatagram(addr, encodeOne(t, wire.TypeUserLogin, loginPayload("alice", lobby.QualityLAN)))

	s.mu.RLock()
	sess, ok := s.sessions[addr.String()]
	s.mu.RUnlock()
	if !ok {
		t.Fatal("expected a session to be created on login")
	}
	if sess.user.Username != "alice" {
		t.Fatalf("expected username alice, got %s", sess.user.Username)
	}
}

func TestCreateThenJoinRoutesIntoRoom(t *testing.T) {
	s := testServer()
	host := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1111}
	guest := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2222}

	s.handleDatagram(host, encodeOne(t, wire.TypeUserLogin, loginPayload("host", lobby.QualityLAN)))
	s.handleDatagram(guest, encodeOne(t, wire.TypeUserLogin, loginPayload("guest", lobby.QualityGood)))

	// NB(empty), NB game_name, NB(empty), u32_le 0xFF.
	var title []byte
	title = append(title, 0)
	title = append(title, "Test Game"...)
	title = append(title, 0, 0)
	title = append(title, 0xFF, 0, 0, 0)
	s.handleDatagram(host, encodeOne(t, wire.TypeCreateGame, title))

	s.mu.RLock()
	hostSess := s.sessions[host.String()]
	s.mu.RUnlock()

	waitForTransport(t, func() bool { return hostSess.user.Room != nil })

	gameID := hostSess.user.Room.GameID
	// NB(empty), u32_le game_id; the trailing constant/quality fields are
	// not read by handleLobbyMessage's join case.
	joinPayload := []byte{
		0,
		byte(gameID), byte(gameID >> 8), byte(gameID >> 16), byte(gameID >> 24),
	}
	s.handleDatagram(guest, encodeOne(t, wire.TypeJoinGame, joinPayload))

	r := hostSess.user.Room
	waitForTransport(t, func() bool { return r.Snapshot().PlayerCount == 2 })
}

func TestUnknownSessionMessageDropped(t *testing.T) {
	s := testServer()
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	// Should not panic even though no session exists for this address.
	s.handleDatagram(addr, encodeOne(t, wire.TypeGameData, []byte{1, 2}))
}
