package room

import "errors"

// Error kinds from section 7. None of these are globally fatal; each
// names the policy the Room Controller applies when it occurs.
var (
	// ErrProtocolViolation covers a wrong payload length for a player's
	// frozen delay, or a 0x12/0x13 arriving outside Playing. The offending
	// player is dropped via 0x14 semantics; the room continues.
	ErrProtocolViolation = errors.New("room: protocol violation")

	// ErrCacheMiss mirrors cache.ErrMiss at the room level: a 0x13
	// resolves to a never-written inbound slot. Fatal to the offending
	// player.
	ErrCacheMiss = errors.New("room: cache miss")

	// ErrFloodControl is raised when a player's queue depth would exceed
	// queue.MaxDepth. The offending player is dropped.
	ErrFloodControl = errors.New("room: flood control")

	// ErrUnknownMessageType is logged and the message dropped; it never
	// drops a player.
	ErrUnknownMessageType = errors.New("room: unknown message type for state")

	// ErrRoomFull names a join to a room that already holds 8 players.
	// handleJoin ignores such a join without returning or logging it.
	ErrRoomFull = errors.New("room: full")

	// ErrNotHost is logged when a non-host player sends Start Game; the
	// message is then ignored.
	ErrNotHost = errors.New("room: start game from non-host")
)
