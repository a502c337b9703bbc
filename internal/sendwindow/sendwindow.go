// Package sendwindow implements the per-recipient outbound ring of the
// last W emitted messages, re-sent opportunistically so a single datagram
// carries redundant history. This is the relay's only loss-tolerance
// mechanism; there is no retransmission (ARQ) of lost datagrams.
package sendwindow

import "github.com/kaillera/relay-server/internal/wire"

// MaxSize is the largest window the wire framing can carry in one
// datagram (MaxMessagesPerDatagram).
const MaxSize = wire.MaxMessagesPerDatagram

// defaultSize mirrors the observed on-wire redundancy: a handful of prior
// messages riding along with the newest one.
const defaultSize = 10

// Window is a per-recipient ring of the most recently emitted messages
// plus the monotone sequence counter used to stamp new ones.
type Window struct {
	size   int
	ring   []wire.Message
	seq    uint16
	filled int
}

// New returns a window holding up to size entries (clamped to
// [1, MaxSize]). size <= 0 selects the default of 10.
func New(size int) *Window {
	if size <= 0 {
		size = defaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return &Window{size: size, ring: make([]wire.Message, size)}
}

// Emit assigns the next sequence number to a new (msgType, payload),
// inserts it at the front of the ring (evicting the oldest entry if full),
// and returns a datagram-ready, newest-first slice of messages: the new
// message followed by up to size-1 prior ones.
func (w *Window) Emit(msgType byte, payload []byte) []wire.Message {
	entry := wire.Message{Seq: w.seq, Type: msgType, Payload: payload}
	w.seq++

	// Shift existing entries back to make room at index 0.
	n := w.filled
	if n < w.size {
		n++
	}
	for i := n - 1; i > 0; i-- {
		w.ring[i] = w.ring[i-1]
	}
	w.ring[0] = entry
	if w.filled < w.size {
		w.filled++
	}

	out := make([]wire.Message, w.filled)
	copy(out, w.ring[:w.filled])
	return out
}
