package room

import (
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/kaillera/relay-server/internal/queue"
	"github.com/kaillera/relay-server/internal/wire"
)

type sentMsg struct {
	player *Player
	typ    byte
	raw    []byte
}

// seqCounter hands out a strictly increasing seq per player, the way a
// real client's own send window would, so the room's replay-dedup never
// mistakes a fresh message for a replay in these tests.
type seqCounter struct {
	next map[uint32]uint16
}

func newSeqCounter() *seqCounter {
	return &seqCounter{next: make(map[uint32]uint16)}
}

func (c *seqCounter) take(p *Player) uint16 {
	s := c.next[p.UID]
	c.next[p.UID] = s + 1
	return s
}

func newTestRoom() (*Room, *[]sentMsg) {
	var sent []sentMsg
	r := New("room-1", "Test Game", "Test Emu", 1, time.Minute, nil, logr.Discard(), func(p *Player, datagram []byte) {
		msgs, err := wire.Decode(datagram)
		if err != nil {
			panic(err)
		}
		for _, m := range msgs {
			sent = append(sent, sentMsg{player: p, typ: m.Type, raw: m.Payload})
		}
	})
	return r, &sent
}

func join(r *Room, uid uint32, username string, delay int) *Player {
	p := NewPlayer(uid, username, 1, nil)
	p.Delay = delay
	r.handle(Envelope{Player: p, Msg: wire.Message{Type: wire.TypeJoinGame}})
	return p
}

func startAndReady(r *Room, seqs *seqCounter, players ...*Player) {
	r.handle(Envelope{Player: players[0], Msg: wire.Message{Type: wire.TypeStartGame}})
	for _, p := range players {
		r.handle(Envelope{Player: p, Msg: wire.Message{Type: wire.TypeReadyToPlay, Seq: seqs.take(p)}})
	}
}

func gameData(r *Room, seqs *seqCounter, p *Player, data []byte) {
	r.handle(Envelope{Player: p, Msg: wire.Message{Type: wire.TypeGameData, Seq: seqs.take(p), Payload: wire.GameData(data)}})
}

func lastGameDataFor(sent []sentMsg, p *Player) []byte {
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].player == p && sent[i].typ == wire.TypeGameData {
			data, _ := wire.ParseGameData(sent[i].raw)
			return data
		}
	}
	return nil
}

func TestTwoPlayerEqualDelay(t *testing.T) {
	r, sentPtr := newTestRoom()
	seqs := newSeqCounter()
	p0 := join(r, 1, "p0", 1)
	p1 := join(r, 2, "p1", 1)
	startAndReady(r, seqs, p0, p1)

	gameData(r, seqs, p0, []byte{0x11, 0x22})
	gameData(r, seqs, p1, []byte{0xAA, 0xBB})

	sent := *sentPtr
	got0 := lastGameDataFor(sent, p0)
	got1 := lastGameDataFor(sent, p1)
	want := []byte{0x11, 0x22, 0xAA, 0xBB}
	if string(got0) != string(want) {
		t.Fatalf("p0 expected %v got %v", want, got0)
	}
	if string(got1) != string(want) {
		t.Fatalf("p1 expected %v got %v", want, got1)
	}
}

func TestPaddingCorrectness(t *testing.T) {
	r, _ := newTestRoom()
	seqs := newSeqCounter()
	p0 := join(r, 1, "p0", 1)
	p1 := join(r, 2, "p1", 3)
	startAndReady(r, seqs, p0, p1)

	if p0.Queue.Len() != 0 {
		t.Fatalf("expected p0 padding 0, got %d", p0.Queue.Len())
	}
	if p1.Queue.Len() != 2 {
		t.Fatalf("expected p1 padding 2, got %d", p1.Queue.Len())
	}
	for i := 0; i < p1.Queue.Len(); i++ {
		f, _ := p1.Queue.Pop()
		if f != queue.Zero {
			t.Fatalf("expected zero padding frame, got %v", f)
		}
	}
}

func TestCacheHitOnRepeat(t *testing.T) {
	r, sentPtr := newTestRoom()
	seqs := newSeqCounter()
	p0 := join(r, 1, "p0", 1)
	p1 := join(r, 2, "p1", 1)
	startAndReady(r, seqs, p0, p1)

	gameData(r, seqs, p0, []byte{1, 1})
	gameData(r, seqs, p1, []byte{2, 2})
	gameData(r, seqs, p0, []byte{1, 1})
	gameData(r, seqs, p1, []byte{2, 2})

	sent := *sentPtr
	foundHit := false
	for _, s := range sent {
		if s.player == p0 && s.typ == wire.TypeGameCache {
			foundHit = true
		}
	}
	if !foundHit {
		t.Fatal("expected a GameCache hit on the second identical combined frame")
	}
}

func TestSequenceDedup(t *testing.T) {
	r, _ := newTestRoom()
	seqs := newSeqCounter()
	p0 := join(r, 1, "p0", 1)
	p1 := join(r, 2, "p1", 1)
	startAndReady(r, seqs, p0, p1)

	replaySeq := seqs.take(p0)
	r.handle(Envelope{Player: p0, Msg: wire.Message{Type: wire.TypeGameData, Seq: replaySeq, Payload: wire.GameData([]byte{1, 1})}})
	if p0.Queue.Len() != 1 {
		t.Fatalf("expected one frame enqueued, got %d", p0.Queue.Len())
	}
	// Replaying the same seq must not enqueue a second time.
	r.handle(Envelope{Player: p0, Msg: wire.Message{Type: wire.TypeGameData, Seq: replaySeq, Payload: wire.GameData([]byte{9, 9})}})
	if p0.Queue.Len() != 1 {
		t.Fatalf("expected p0's replayed frame to be ignored, queue len=%d", p0.Queue.Len())
	}
	_ = p1
}

func TestDropDuringPlayShrinksWidth(t *testing.T) {
	r, sentPtr := newTestRoom()
	seqs := newSeqCounter()
	p0 := join(r, 1, "p0", 1)
	p1 := join(r, 2, "p1", 1)
	p2 := join(r, 3, "p2", 1)
	startAndReady(r, seqs, p0, p1, p2)

	r.handle(Envelope{Player: p2, Msg: wire.Message{Type: wire.TypeDropGame, Seq: seqs.take(p2)}})

	gameData(r, seqs, p0, []byte{1, 1})
	gameData(r, seqs, p1, []byte{2, 2})

	sent := *sentPtr
	got := lastGameDataFor(sent, p0)
	if len(got) != 4 {
		t.Fatalf("expected combined width 4 after drop, got %d bytes: %v", len(got), got)
	}
}

func TestMalformedDatagramHasNoSideEffects(t *testing.T) {
	if _, err := wire.Decode([]byte{0x00}); err == nil {
		t.Fatal("expected malformed-frame error for message_count=0")
	}
}
