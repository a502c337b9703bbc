package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// StartGameAck builds the server->client 0x11 payload: frame delay, the
// recipient's 1-based player number, and the total player count.
func StartGameAck(frameDelay uint16, playerNumber, totalPlayers byte) []byte {
	var buf bytes.Buffer
	PutString(&buf, "")
	binary.Write(&buf, binary.LittleEndian, frameDelay) //nolint:errcheck
	buf.WriteByte(playerNumber)
	buf.WriteByte(totalPlayers)
	return buf.Bytes()
}

// GameData builds the 0x12 payload carrying literal frame data, used in
// both directions.
func GameData(data []byte) []byte {
	var buf bytes.Buffer
	PutString(&buf, "")
	binary.Write(&buf, binary.LittleEndian, uint16(len(data))) //nolint:errcheck
	buf.Write(data)
	return buf.Bytes()
}

// ParseGameData extracts the literal payload from a 0x12 message.
func ParseGameData(payload []byte) ([]byte, error) {
	_, off, ok := ReadString(payload, 0)
	if !ok || off+2 > len(payload) {
		return nil, fmt.Errorf("%w: short game data header", ErrMalformedFrame)
	}
	dataLen := int(binary.LittleEndian.Uint16(payload[off:]))
	off += 2
	if off+dataLen > len(payload) {
		return nil, fmt.Errorf("%w: game data length mismatch", ErrMalformedFrame)
	}
	return payload[off : off+dataLen], nil
}

// GameCache builds the 0x13 payload: an empty string followed by the
// single-byte cache position.
func GameCache(position byte) []byte {
	return []byte{0x00, position}
}

// ParseGameCachePosition extracts the position byte from a 0x13 message.
func ParseGameCachePosition(payload []byte) (byte, error) {
	_, off, ok := ReadString(payload, 0)
	if !ok || off >= len(payload) {
		return 0, fmt.Errorf("%w: short game cache payload", ErrMalformedFrame)
	}
	return payload[off], nil
}

// DropGameAck builds the server->client 0x14 payload naming the dropped
// player.
func DropGameAck(username string, droppedPlayerNumber byte) []byte {
	var buf bytes.Buffer
	PutString(&buf, username)
	buf.WriteByte(droppedPlayerNumber)
	return buf.Bytes()
}

// ReadyToPlay builds the (direction-agnostic) 0x15 payload: an empty
// string and nothing else.
func ReadyToPlay() []byte {
	var buf bytes.Buffer
	PutString(&buf, "")
	return buf.Bytes()
}

// CloseGame builds the server->client 0x10 payload.
func CloseGame(gameID uint32) []byte {
	var buf bytes.Buffer
	PutString(&buf, "")
	binary.Write(&buf, binary.LittleEndian, gameID) //nolint:errcheck
	return buf.Bytes()
}

// UpdateGameStatus builds the server->client 0x0E payload.
func UpdateGameStatus(gameID uint32, status, curPlayers, maxPlayers byte) []byte {
	var buf bytes.Buffer
	PutString(&buf, "")
	binary.Write(&buf, binary.LittleEndian, gameID) //nolint:errcheck
	buf.WriteByte(status)
	buf.WriteByte(curPlayers)
	buf.WriteByte(maxPlayers)
	return buf.Bytes()
}
