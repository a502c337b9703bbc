// Package room implements the Room Controller (C7): the state machine
// that owns a game room's players, delays, and frame-synchronization
// state, and that drives C3-C6 to turn decoded ingress into emitted
// datagrams.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/kaillera/relay-server/internal/cache"
	"github.com/kaillera/relay-server/internal/dispatch"
	"github.com/kaillera/relay-server/internal/framesync"
	"github.com/kaillera/relay-server/internal/queue"
	"github.com/kaillera/relay-server/internal/wire"
)

// SendFunc hands a fully-framed datagram to the transport layer for
// delivery to one player. It must not block the calling room goroutine
// (section 5: sends are fire-and-forget).
type SendFunc func(p *Player, datagram []byte)

// Metrics is the subset of the admin counters a room increments directly;
// kept as a local interface so this package never imports internal/admin.
type Metrics interface {
	IncProtocolViolations()
	IncCacheMisses()
	IncFloodControlDrops()
}

// Envelope is one piece of ingress routed to a room's mailbox: a decoded
// message attributed to the player that sent it.
type Envelope struct {
	Player *Player
	Msg    wire.Message
}

// Room is a single game room. Every field below is owned by exactly one
// goroutine (the one running Run); mu guards only the narrow slice of
// state that the admin surface (C12) reads concurrently via Snapshot.
type Room struct {
	ID       string
	GameID   uint32
	Title    string
	Emulator string

	Host *Player

	Logger  logr.Logger
	send    SendFunc
	metrics Metrics

	mailbox chan Envelope
	idle    time.Duration

	mu      sync.RWMutex
	state   State
	players []*Player // stable join order = player index order
	byUID   map[uint32]*Player

	frame    uint64
	sync     *framesync.Synchronizer
	minDelay int
}

// New returns a room in the Waiting state with an empty player list. idle
// is the per-player keep-alive timeout swept by sweepIdle; metrics may be
// nil.
func New(id, title, emulator string, gameID uint32, idle time.Duration, metrics Metrics, logger logr.Logger, send SendFunc) *Room {
	return &Room{
		ID:       id,
		GameID:   gameID,
		Title:    title,
		Emulator: emulator,
		Logger:   logger,
		send:     send,
		metrics:  metrics,
		mailbox:  make(chan Envelope, 64),
		idle:     idle,
		byUID:    make(map[uint32]*Player),
	}
}

// Mailbox exposes the channel the transport/lobby layer posts ingress to.
func (r *Room) Mailbox() chan<- Envelope {
	return r.mailbox
}

// State returns the room's current lifecycle state.
func (r *Room) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// PlayerCount returns the number of players currently in the room.
func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Snapshot is a read-only view of room state for the admin surface (C12).
type Snapshot struct {
	ID          string
	Title       string
	Emulator    string
	State       string
	PlayerCount int
	Frame       uint64
}

// Snapshot returns a point-in-time copy of the room's externally-visible
// state. Safe to call from any goroutine.
func (r *Room) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		ID:          r.ID,
		Title:       r.Title,
		Emulator:    r.Emulator,
		State:       r.state.String(),
		PlayerCount: len(r.players),
		Frame:       r.frame,
	}
}

// Run consumes the mailbox until ctx is cancelled or the room closes
// itself (RoomEmpty), draining remaining ingress and emitting 0x10 to any
// members still present before returning (section 5, cancellation).
func (r *Room) Run(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case env := <-r.mailbox:
			r.handle(env)
			if r.State() == Closing {
				r.drainAndExit()
				return
			}
		case <-ticker.C:
			r.sweepIdle()
			if r.State() == Closing {
				r.drainAndExit()
				return
			}
		}
	}
}

func (r *Room) drainAndExit() {
	for {
		select {
		case env := <-r.mailbox:
			// Room is already Closing; nothing left to do but discard.
			_ = env
		default:
			return
		}
	}
}

func (r *Room) shutdown() {
	r.mu.Lock()
	players := append([]*Player(nil), r.players...)
	r.mu.Unlock()
	for _, p := range players {
		r.sendTo(p, wire.TypeCloseGame, wire.CloseGame(r.GameID))
	}
}

func (r *Room) sweepIdle() {
	r.mu.Lock()
	var stale []*Player
	now := time.Now()
	for _, p := range r.players {
		if now.Sub(p.LastSeen) > r.idle {
			stale = append(stale, p)
		}
	}
	r.mu.Unlock()
	for _, p := range stale {
		r.dropPlayer(p)
	}
}

// handle dispatches one envelope according to the current state, applying
// the section 4.1 dedup rule to non-idempotent types first.
func (r *Room) handle(env Envelope) {
	p, msg := env.Player, env.Msg
	p.LastSeen = time.Now()

	switch msg.Type {
	case wire.TypeGameData, wire.TypeGameCache, wire.TypeDropGame, wire.TypeReadyToPlay:
		if !p.checkAndAdvanceSeq(msg.Seq) {
			return // replay, per-(player,direction) high-water dedup
		}
	}

	state := r.State()
	switch msg.Type {
	case wire.TypeJoinGame:
		r.handleJoin(p)
	case wire.TypeQuitGame, wire.TypeKickUser:
		r.dropPlayer(p)
	case wire.TypeStartGame:
		if state == Waiting {
			r.handleStartGame(p)
		} else {
			r.logUnexpected(p, msg, state)
		}
	case wire.TypeReadyToPlay:
		if state == Netsync {
			r.handleReady(p)
		} else {
			r.logUnexpected(p, msg, state)
		}
	case wire.TypeGameData:
		if state == Playing {
			r.handleGameData(p, msg.Payload)
		} else {
			r.protocolViolation(p, msg, state)
		}
	case wire.TypeGameCache:
		if state == Playing {
			r.handleGameCache(p, msg.Payload)
		} else {
			r.protocolViolation(p, msg, state)
		}
	case wire.TypeDropGame:
		if state == Playing {
			r.dropPlayer(p)
		} else {
			r.logUnexpected(p, msg, state)
		}
	default:
		r.logUnexpected(p, msg, state)
	}
}

func (r *Room) logUnexpected(p *Player, msg wire.Message, state State) {
	r.Logger.V(1).Info("dropping message for current state",
		"type", wire.TypeName(msg.Type), "state", state.String(), "uid", p.UID)
}

func (r *Room) protocolViolation(p *Player, msg wire.Message, state State) {
	r.Logger.Info("protocol violation, dropping player",
		"type", wire.TypeName(msg.Type), "state", state.String(), "uid", p.UID, "error", ErrProtocolViolation)
	if r.metrics != nil {
		r.metrics.IncProtocolViolations()
	}
	r.dropPlayer(p)
}

// handleJoin adds a player to the room if it has capacity and the room
// has not yet started.
func (r *Room) handleJoin(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Waiting {
		return
	}
	if len(r.players) >= 8 {
		return
	}
	if _, exists := r.byUID[p.UID]; exists {
		return
	}
	r.players = append(r.players, p)
	r.byUID[p.UID] = p
	if r.Host == nil {
		r.Host = p
	}
}

// handleStartGame implements the Waiting -> Netsync transition: only the
// host may trigger it. d_p stays whatever the lobby computed; it is
// frozen (never mutated again) starting now, though the actual freeze
// happens when Netsync -> Playing allocates queues/caches in
// enterPlaying, so that a player who updates ping mid-Netsync still gets
// a consistent, single value baked in at Playing entry.
func (r *Room) handleStartGame(p *Player) {
	if r.Host != nil && p.UID != r.Host.UID {
		r.Logger.Info("start game from non-host ignored", "uid", p.UID, "error", ErrNotHost)
		return
	}
	r.mu.Lock()
	r.state = Netsync
	r.mu.Unlock()

	r.Logger.Info("room entering netsync", "room", r.ID)
	r.broadcastStatus()

	r.mu.RLock()
	players := append([]*Player(nil), r.players...)
	r.mu.RUnlock()
	total := byte(len(players))
	for i, pl := range players {
		r.sendTo(pl, wire.TypeStartGame, wire.StartGameAck(uint16(pl.Delay), byte(i+1), total))
	}
}

func (r *Room) handleReady(p *Player) {
	p.Ready = true
	r.mu.RLock()
	allReady := true
	for _, pl := range r.players {
		if !pl.Ready {
			allReady = false
			break
		}
	}
	r.mu.RUnlock()
	if allReady {
		r.enterPlaying()
	}
}

// enterPlaying performs the Netsync -> Playing transition (section 4.7):
// freeze d_p for every player, compute d_min, allocate C4 queues with
// preemptive padding and C3 caches, reset F to 0.
func (r *Room) enterPlaying() {
	r.mu.Lock()
	minDelay := r.players[0].Delay
	for _, p := range r.players[1:] {
		if p.Delay < minDelay {
			minDelay = p.Delay
		}
	}
	r.minDelay = minDelay

	queues := make([]*queue.Queue, len(r.players))
	for i, p := range r.players {
		p.Queue = queue.NewPadded(p.Delay - minDelay)
		p.Inbound = cache.New()
		p.Outbound = cache.New()
		p.Dispatcher = dispatch.New(p.Delay, len(r.players)*queue.FrameSize, p.Outbound)
		queues[i] = p.Queue
	}
	r.sync = framesync.NewAt(queues, 0)
	r.frame = 0
	r.state = Playing
	r.mu.Unlock()

	r.Logger.Info("room entering playing", "room", r.ID, "minDelay", minDelay)
	r.broadcastStatus()
	r.broadcast(wire.TypeReadyToPlay, wire.ReadyToPlay())
}

func (r *Room) broadcastStatus() {
	r.mu.RLock()
	var status byte
	switch r.state {
	case Netsync:
		status = wire.RoomStatusNetsync
	case Playing:
		status = wire.RoomStatusPlaying
	default:
		status = wire.RoomStatusWaiting
	}
	cur := byte(len(r.players))
	r.mu.RUnlock()
	r.broadcast(wire.TypeUpdateGameStatus, wire.UpdateGameStatus(r.GameID, status, cur, 8))
}

// handleGameData validates the inbound literal payload length against the
// sender's frozen delay, records it to that player's inbound cache (so a
// later 0x13 can reference it), enqueues it, and tries to advance.
func (r *Room) handleGameData(p *Player, payload []byte) {
	data, err := wire.ParseGameData(payload)
	if err != nil {
		r.Logger.Info("malformed game data payload, dropping player", "uid", p.UID, "error", err)
		r.dropPlayer(p)
		return
	}
	if len(data) != p.Delay*queue.FrameSize {
		r.Logger.Info("game data length mismatch, dropping player",
			"uid", p.UID, "want", p.Delay*queue.FrameSize, "got", len(data), "error", ErrProtocolViolation)
		r.dropPlayer(p)
		return
	}
	p.Inbound.Record(data)
	r.enqueueAndAdvance(p, data)
}

// handleGameCache resolves a 0x13 reference against the sender's inbound
// cache; a miss is fatal to that player (section 7, CacheMiss).
func (r *Room) handleGameCache(p *Player, payload []byte) {
	pos, err := wire.ParseGameCachePosition(payload)
	if err != nil {
		r.Logger.Info("malformed game cache payload, dropping player", "uid", p.UID, "error", err)
		r.dropPlayer(p)
		return
	}
	data, err := p.Inbound.Resolve(pos)
	if err != nil {
		r.Logger.Info("cache miss, dropping player", "uid", p.UID, "position", pos, "error", ErrCacheMiss)
		if r.metrics != nil {
			r.metrics.IncCacheMisses()
		}
		r.dropPlayer(p)
		return
	}
	r.enqueueAndAdvance(p, data)
}

func (r *Room) enqueueAndAdvance(p *Player, data []byte) {
	if p.Queue.Len()+len(data)/queue.FrameSize > queue.MaxDepth {
		r.Logger.Info("flood control, dropping player", "uid", p.UID, "error", ErrFloodControl)
		if r.metrics != nil {
			r.metrics.IncFloodControlDrops()
		}
		r.dropPlayer(p)
		return
	}
	if err := p.Queue.Enqueue(data); err != nil {
		r.Logger.Info("enqueue failed, dropping player", "uid", p.UID, "error", err)
		r.dropPlayer(p)
		return
	}

	r.mu.RLock()
	players := append([]*Player(nil), r.players...)
	sync := r.sync
	r.mu.RUnlock()
	if sync == nil {
		return
	}

	sync.TryAdvance(func(combined []byte) {
		r.mu.Lock()
		r.frame++
		r.mu.Unlock()
		for _, recipient := range players {
			out, ok := recipient.Dispatcher.Stage(combined)
			if !ok {
				continue
			}
			r.sendTo(recipient, out.Type, out.Payload)
		}
	})
}

// dropPlayer removes p from the room (0x14 semantics): broadcasts 0x14
// naming the dropped player, removes it from the active sync set, and
// recomputes d_min. Drops never shrink existing queues (section 4.7).
func (r *Room) dropPlayer(p *Player) {
	r.mu.Lock()
	idx := -1
	for i, pl := range r.players {
		if pl.UID == p.UID {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.mu.Unlock()
		return
	}
	playerNumber := byte(idx + 1)
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	delete(r.byUID, p.UID)
	p.Dropped = true

	wasPlaying := r.state == Playing
	remaining := len(r.players)
	var queues []*queue.Queue
	if wasPlaying {
		queues = make([]*queue.Queue, len(r.players))
		for i, pl := range r.players {
			queues[i] = pl.Queue
		}
		r.sync = framesync.NewAt(queues, r.frame)
	}
	if remaining > 0 {
		min := r.players[0].Delay
		for _, pl := range r.players[1:] {
			if pl.Delay < min {
				min = pl.Delay
			}
		}
		r.minDelay = min
	}
	empty := remaining == 0
	if empty {
		r.state = Closing
	}
	r.mu.Unlock()

	r.broadcast(wire.TypeDropGame, wire.DropGameAck(p.Username, playerNumber))

	if empty {
		r.Logger.Info("room empty, closing", "room", r.ID)
		r.broadcast(wire.TypeCloseGame, wire.CloseGame(r.GameID))
	}
}

func (r *Room) broadcast(msgType byte, payload []byte) {
	r.mu.RLock()
	players := append([]*Player(nil), r.players...)
	r.mu.RUnlock()
	for _, p := range players {
		r.sendTo(p, msgType, payload)
	}
}

// sendTo frames payload through p's send window (C2) and hands the
// resulting datagram to the transport layer. It never blocks.
func (r *Room) sendTo(p *Player, msgType byte, payload []byte) {
	entries := p.SendWindow.Emit(msgType, payload)
	datagram, err := wire.Encode(entries)
	if err != nil {
		r.Logger.Error(err, "failed to encode outgoing datagram", "uid", p.UID)
		return
	}
	if r.send != nil {
		r.send(p, datagram)
	}
}
