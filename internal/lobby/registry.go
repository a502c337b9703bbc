// Package lobby implements the Lobby / Room Registry (C9): process-wide
// bookkeeping of connected users and live rooms behind the pre-room
// messages (login, create, join, quit) that sit outside any single room's
// mailbox.
package lobby

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/kaillera/relay-server/internal/room"
	"github.com/kaillera/relay-server/internal/wire"
)

func joinMsg() wire.Message { return wire.Message{Type: wire.TypeJoinGame} }
func quitMsg() wire.Message { return wire.Message{Type: wire.TypeQuitGame} }

// User is a connected-but-not-yet-in-a-room session (section 3, data
// model additions). It is promoted to a room.Player on a successful
// 0x0C join.
type User struct {
	UID      uint32
	Username string
	Quality  byte
	PingMS   uint32
	Addr     *net.UDPAddr

	Room   *room.Room
	Player *room.Player
}

// Registry is the process-wide, explicit server context for rooms and
// users (section 9 design notes: no ambient singletons). Exactly one
// instance is constructed by relay.New and handed to the transport
// listener, the admin surface and the master-list heartbeat.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room
	byID  map[uint32]*room.Room // gameID -> room
	users map[uint32]*User

	nextGameID uint32
	maxRooms   int
	idle       time.Duration

	logger  logr.Logger
	send    room.SendFunc
	metrics room.Metrics
}

// New returns an empty registry. send is the transport callback every
// room uses to deliver datagrams; maxRooms <= 0 means unlimited; idle is
// the per-player keep-alive timeout handed to every room it creates, and
// metrics may be nil.
func New(logger logr.Logger, send room.SendFunc, maxRooms int, idle time.Duration, metrics room.Metrics) *Registry {
	return &Registry{
		rooms:    make(map[string]*room.Room),
		byID:     make(map[uint32]*room.Room),
		users:    make(map[uint32]*User),
		logger:   logger,
		send:     send,
		maxRooms: maxRooms,
		idle:     idle,
		metrics:  metrics,
	}
}

// Login registers a new user session, assigning it the next UID. Mirrors
// 0x03 User Login Information.
func (reg *Registry) Login(username string, quality byte, addr *net.UDPAddr) *User {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	uid := uint32(len(reg.users) + 1)
	for {
		if _, taken := reg.users[uid]; !taken {
			break
		}
		uid++
	}
	u := &User{UID: uid, Username: username, Quality: quality, Addr: addr}
	reg.users[uid] = u
	return u
}

// Logout removes a user session, quitting its room first if it has one.
func (reg *Registry) Logout(uid uint32) {
	reg.mu.Lock()
	u, ok := reg.users[uid]
	if ok {
		delete(reg.users, uid)
	}
	reg.mu.Unlock()
	if ok && u.Room != nil {
		reg.QuitRoom(u)
	}
}

// CreateRoom creates a new room owned by host, starts its goroutine under
// ctx, and returns it. Mirrors 0x0A Create Game.
func (reg *Registry) CreateRoom(ctx context.Context, host *User, title, emulator string) (*room.Room, error) {
	reg.mu.Lock()
	if reg.maxRooms > 0 && len(reg.rooms) >= reg.maxRooms {
		reg.mu.Unlock()
		return nil, fmt.Errorf("lobby: max concurrent rooms (%d) reached", reg.maxRooms)
	}
	reg.nextGameID++
	gameID := reg.nextGameID
	reg.mu.Unlock()

	id := uuid.NewString()
	r := room.New(id, title, emulator, gameID, reg.idle, reg.metrics, reg.logger.WithValues("room", id, "title", title), reg.send)

	reg.mu.Lock()
	reg.rooms[id] = r
	reg.byID[gameID] = r
	reg.mu.Unlock()

	roomCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		r.Run(roomCtx)
		reg.mu.Lock()
		delete(reg.rooms, id)
		delete(reg.byID, gameID)
		reg.mu.Unlock()
		reg.logger.Info("room closed", "room", id)
	}()

	if err := reg.JoinRoom(gameID, host, host.Quality, 0); err != nil {
		return nil, err
	}
	return r, nil
}

// RoomByGameID looks up a room by its wire-level numeric ID.
func (reg *Registry) RoomByGameID(gameID uint32) (*room.Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byID[gameID]
	return r, ok
}

// JoinRoom promotes u to a player in the room identified by gameID,
// computing its initial frame delay from quality/pingMS (section 9, Open
// Questions), and posts the join onto the room's own mailbox so the room
// goroutine remains the only writer of its player set. Mirrors 0x0C Join
// Game.
func (reg *Registry) JoinRoom(gameID uint32, u *User, quality byte, pingMS uint32) error {
	r, ok := reg.RoomByGameID(gameID)
	if !ok {
		return fmt.Errorf("lobby: no such room %d", gameID)
	}

	p := room.NewPlayer(u.UID, u.Username, quality, u.Addr)
	p.Delay = DelayForPing(quality, pingMS)

	// u.Room is set before the room goroutine has actually admitted p;
	// a capacity/duplicate-uid rejection inside handleJoin is silent to
	// this caller. TODO: have the room ack the join back through a
	// reply channel so JoinRoom can return a real error on rejection.
	reg.mu.Lock()
	u.Room = r
	u.Player = p
	reg.mu.Unlock()

	r.Mailbox() <- room.Envelope{Player: p, Msg: joinMsg()}
	return nil
}

// QuitRoom removes u's player from its current room, if any. Mirrors
// 0x0B Quit Game.
func (reg *Registry) QuitRoom(u *User) {
	reg.mu.Lock()
	r, p := u.Room, u.Player
	u.Room, u.Player = nil, nil
	reg.mu.Unlock()

	if r == nil || p == nil {
		return
	}
	r.Mailbox() <- room.Envelope{Player: p, Msg: quitMsg()}
}

// Rooms returns a snapshot of every live room, for the admin surface.
func (reg *Registry) Rooms() []room.Snapshot {
	reg.mu.RLock()
	rooms := make([]*room.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.RUnlock()

	snaps := make([]room.Snapshot, 0, len(rooms))
	for _, r := range rooms {
		snaps = append(snaps, r.Snapshot())
	}
	return snaps
}

// UserCount returns the number of currently logged-in users, for the
// master-list heartbeat.
func (reg *Registry) UserCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.users)
}

// RoomCount returns the number of currently live rooms, for the
// master-list heartbeat.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
