package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned by Decode when a datagram violates the
// framing rules in section 4.1: a zero or excessive message_count, a
// declared length shorter than the type byte, or a message that runs past
// the end of the datagram. The entire datagram is dropped on this error;
// there is no partial decode.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// Message is one decoded message from a datagram: its sequence number (used
// only for sender-side dedup, never for reordering), its type, and its
// payload (the bytes following the type byte; length-1 bytes long).
type Message struct {
	Seq     uint16
	Type    byte
	Payload []byte
}

// Decode parses a full datagram into its constituent messages. On any
// framing violation it returns ErrMalformedFrame and no messages.
func Decode(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformedFrame)
	}
	count := int(data[0])
	if count == 0 || count > MaxMessagesPerDatagram {
		return nil, fmt.Errorf("%w: message_count=%d", ErrMalformedFrame, count)
	}

	messages := make([]Message, 0, count)
	off := 1
	for i := 0; i < count; i++ {
		if off+5 > len(data) {
			return nil, fmt.Errorf("%w: truncated header at message %d", ErrMalformedFrame, i)
		}
		seq := binary.LittleEndian.Uint16(data[off:])
		length := binary.LittleEndian.Uint16(data[off+2:])
		msgType := data[off+4]
		off += 5

		if length < 1 {
			return nil, fmt.Errorf("%w: length=%d at message %d", ErrMalformedFrame, length, i)
		}
		payloadLen := int(length) - 1
		if off+payloadLen > len(data) {
			return nil, fmt.Errorf("%w: payload overruns datagram at message %d", ErrMalformedFrame, i)
		}

		payload := make([]byte, payloadLen)
		copy(payload, data[off:off+payloadLen])
		off += payloadLen

		messages = append(messages, Message{Seq: seq, Type: msgType, Payload: payload})
	}
	return messages, nil
}

// Encode serializes messages into a single datagram, in the order given
// (the caller, typically the send window, is responsible for newest-first
// ordering). It returns ErrMalformedFrame if messages is empty or exceeds
// MaxMessagesPerDatagram, mirroring the constraints Decode enforces on the
// wire so a locally-built datagram can never violate its own framing rules.
func Encode(messages []Message) ([]byte, error) {
	if len(messages) == 0 || len(messages) > MaxMessagesPerDatagram {
		return nil, fmt.Errorf("%w: message_count=%d", ErrMalformedFrame, len(messages))
	}

	size := 1
	for _, m := range messages {
		size += 5 + len(m.Payload)
	}

	buf := make([]byte, size)
	buf[0] = byte(len(messages))
	off := 1
	for _, m := range messages {
		binary.LittleEndian.PutUint16(buf[off:], m.Seq)
		binary.LittleEndian.PutUint16(buf[off+2:], uint16(len(m.Payload)+1))
		buf[off+4] = m.Type
		off += 5
		copy(buf[off:], m.Payload)
		off += len(m.Payload)
	}
	return buf, nil
}
