package room

import (
	"net"
	"time"

	"github.com/kaillera/relay-server/internal/cache"
	"github.com/kaillera/relay-server/internal/dispatch"
	"github.com/kaillera/relay-server/internal/queue"
	"github.com/kaillera/relay-server/internal/sendwindow"
)

// noHighWater marks that no inbound message has been seen yet for a
// player, so a legitimately-first seq of 0 is never mistaken for a replay.
const noHighWater = -1

// Player is one room member. Its Queue, Inbound cache, and Outbound cache
// exist only between Playing entry and Playing exit (section 3,
// Lifecycles); Delay is frozen at Playing entry and never mutated again
// until the room exits Playing.
type Player struct {
	UID      uint32
	Username string
	Quality  byte // connection-quality grade, 1 (LAN) .. 6 (Bad)
	Delay    int  // d_p; opaque to the core, supplied by the session layer
	Addr     *net.UDPAddr
	LastSeen time.Time

	Ready   bool
	Dropped bool

	Queue      *queue.Queue
	Inbound    *cache.Cache // resolves this player's 0x13 references
	Outbound   *cache.Cache // compresses what the server sends this player
	Dispatcher *dispatch.Dispatcher

	SendWindow *sendwindow.Window

	inboundHighWater int32
}

// NewPlayer returns a player in its pre-game state; Queue/Inbound/Outbound
// are allocated later, at Playing entry (enterPlaying).
func NewPlayer(uid uint32, username string, quality byte, addr *net.UDPAddr) *Player {
	return &Player{
		UID:              uid,
		Username:         username,
		Quality:          quality,
		Addr:             addr,
		LastSeen:         time.Now(),
		SendWindow:       sendwindow.New(0),
		inboundHighWater: noHighWater,
	}
}

// checkAndAdvanceSeq applies the section 4.1 dedup rule for non-idempotent
// message types: seq <= high_water is a replay and must be ignored. It
// returns false for a replay, true (and advances the high-water mark)
// otherwise.
func (p *Player) checkAndAdvanceSeq(seq uint16) bool {
	if int32(seq) <= p.inboundHighWater {
		return false
	}
	p.inboundHighWater = int32(seq)
	return true
}
