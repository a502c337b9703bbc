package framesync

import (
	"bytes"
	"testing"

	"github.com/kaillera/relay-server/internal/queue"
)

func TestInterleavingOrder(t *testing.T) {
	p0 := queue.NewPadded(0)
	p1 := queue.NewPadded(0)
	p2 := queue.NewPadded(0)
	p0.Enqueue([]byte{'A', '1', 'A', '2'}) //nolint:errcheck
	p1.Enqueue([]byte{'B', '1', 'B', '2'}) //nolint:errcheck
	p2.Enqueue([]byte{'C', '1', 'C', '2'}) //nolint:errcheck

	s := New([]*queue.Queue{p0, p1, p2})

	var got []byte
	n := s.TryAdvance(func(combined []byte) { got = append(got, combined...) })

	want := []byte{'A', '1', 'B', '1', 'C', '1', 'A', '2', 'B', '2', 'C', '2'}
	if n != 2 {
		t.Fatalf("expected 2 frames emitted, got %d", n)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBlocksUntilAllPlayersReady(t *testing.T) {
	p0 := queue.NewPadded(0)
	p1 := queue.NewPadded(0)
	p0.Enqueue([]byte{1, 1}) //nolint:errcheck

	s := New([]*queue.Queue{p0, p1})
	n := s.TryAdvance(func([]byte) {})
	if n != 0 {
		t.Fatalf("expected no frames emitted while p1 is empty, got %d", n)
	}

	p1.Enqueue([]byte{2, 2}) //nolint:errcheck
	n = s.TryAdvance(func([]byte) {})
	if n != 1 {
		t.Fatalf("expected exactly 1 frame once both players are ready, got %d", n)
	}
}

func TestFrameCounterMonotone(t *testing.T) {
	p0 := queue.NewPadded(0)
	s := New([]*queue.Queue{p0})

	p0.Enqueue([]byte{1, 1, 2, 2, 3, 3}) //nolint:errcheck
	s.TryAdvance(func([]byte) {})

	if s.Frame() != 3 {
		t.Fatalf("expected frame counter 3, got %d", s.Frame())
	}
}
