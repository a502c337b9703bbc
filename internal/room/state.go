package room

// State is one of the four room lifecycle states (section 3, section 4.7).
type State int

const (
	// Waiting is the state from room creation until the host sends 0x11.
	Waiting State = iota
	// Netsync is the transient state between Start Game and every player
	// having sent 0x15, gating entry to Playing.
	Netsync
	// Playing is the state in which Game Data/Game Cache traffic flows.
	Playing
	// Closing is entered on last-player-quit or owner-driven close; queues
	// and caches are freed and 0x10 is broadcast.
	Closing
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "Waiting"
	case Netsync:
		return "Netsync"
	case Playing:
		return "Playing"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}
