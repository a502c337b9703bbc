// Package framesync implements the room-scoped frame synchronizer: the
// engine that advances a monotonically increasing frame counter only once
// every player has queued input for that frame, then emits the interleaved
// combined frame for distribution.
package framesync

import "github.com/kaillera/relay-server/internal/queue"

// Synchronizer advances frame-by-frame over a fixed, ordered set of player
// queues. Player order is the stable join order (ties broken by UID
// ascending), fixed once at construction time for the life of a Playing
// session, and defines the byte layout of every combined frame.
type Synchronizer struct {
	queues []*queue.Queue
	frame  uint64
}

// New returns a synchronizer over queues, in player-index order.
func New(queues []*queue.Queue) *Synchronizer {
	return &Synchronizer{queues: queues}
}

// NewAt returns a synchronizer whose frame counter starts at startFrame,
// used by the Room Controller to rebuild the queue set (e.g. after a
// player drop) without resetting F.
func NewAt(queues []*queue.Queue, startFrame uint64) *Synchronizer {
	return &Synchronizer{queues: queues, frame: startFrame}
}

// Frame returns the number of combined frames emitted so far.
func (s *Synchronizer) Frame() uint64 {
	return s.frame
}

// ready reports whether every queue has at least one frame available.
func (s *Synchronizer) ready() bool {
	for _, q := range s.queues {
		if q.Len() < 1 {
			return false
		}
	}
	return true
}

// TryAdvance pops and interleaves as many combined frames as are currently
// available, calling emit once per combined frame in increasing frame
// order. It returns the number of frames emitted. Driven by every 0x12 and
// 0x13 ingress (never by a timer), it may emit zero, one, or many frames
// per call.
func (s *Synchronizer) TryAdvance(emit func(combined []byte)) int {
	emitted := 0
	for s.ready() {
		combined := make([]byte, 0, len(s.queues)*queue.FrameSize)
		for _, q := range s.queues {
			f, ok := q.Pop()
			if !ok {
				// ready() just confirmed every queue had a frame; this
				// would only happen if a queue were mutated concurrently,
				// which the one-writer-per-room model forbids.
				panic("framesync: queue emptied between ready check and pop")
			}
			combined = append(combined, f[:]...)
		}
		s.frame++
		emitted++
		emit(combined)
	}
	return emitted
}
