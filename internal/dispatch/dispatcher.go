// Package dispatch implements the per-recipient dispatcher: it batches the
// frame synchronizer's combined frames up to each recipient's own delay,
// applies that recipient's outbound cache, and produces the Game Data or
// Game Cache message the send window should carry.
package dispatch

import (
	"github.com/kaillera/relay-server/internal/cache"
	"github.com/kaillera/relay-server/internal/wire"
)

// Outgoing is the message the dispatcher wants delivered to its recipient:
// either a literal Game Data payload (on a cache miss) or a one-byte Game
// Cache position (on a hit).
type Outgoing struct {
	Type    byte
	Payload []byte
}

// Dispatcher accumulates combined frames for one recipient until it has
// enough to fill that recipient's delay, then drains, compresses via the
// outbound cache, and emits exactly one Outgoing per drain.
type Dispatcher struct {
	delay      int
	frameWidth int
	staging    [][]byte
	outbound   *cache.Cache
}

// New returns a dispatcher for a recipient with the given delay (frames
// batched per delivery) and frameWidth (bytes per combined frame, i.e.
// 2*player_count).
func New(delay, frameWidth int, outbound *cache.Cache) *Dispatcher {
	if delay < 1 {
		delay = 1
	}
	return &Dispatcher{delay: delay, frameWidth: frameWidth, outbound: outbound}
}

// Stage adds one combined frame to the staging queue and, once delay
// frames have accumulated, drains exactly delay of them, concatenates
// them, and returns the resulting Outgoing message. It returns ok=false
// when there is not yet enough staged to drain.
func (d *Dispatcher) Stage(combined []byte) (Outgoing, bool) {
	d.staging = append(d.staging, combined)
	if len(d.staging) < d.delay {
		return Outgoing{}, false
	}

	batch := d.staging[:d.delay]
	d.staging = d.staging[d.delay:]

	payload := make([]byte, 0, d.delay*d.frameWidth)
	for _, f := range batch {
		payload = append(payload, f...)
	}

	if pos, hit := d.outbound.Emit(payload); hit {
		return Outgoing{Type: wire.TypeGameCache, Payload: wire.GameCache(pos)}, true
	}
	d.outbound.Record(payload)
	return Outgoing{Type: wire.TypeGameData, Payload: wire.GameData(payload)}, true
}
