package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MessageID identifies the kind of a framed peer wire message (spec §4.4).
type MessageID uint8

// Message ids used by the core protocol.
const (
	MsgChoke MessageID = iota
	MsgUnchoke
	MsgInterested
	MsgNotInterested
	MsgHave
	MsgBitfield
	MsgRequest
	MsgPiece
	MsgCancel
)

func (id MessageID) String() string {
	switch id {
	case MsgChoke:
		return "Choke"
	case MsgUnchoke:
		return "Unchoke"
	case MsgInterested:
		return "Interested"
	case MsgNotInterested:
		return "NotInterested"
	case MsgHave:
		return "Have"
	case MsgBitfield:
		return "Bitfield"
	case MsgRequest:
		return "Request"
	case MsgPiece:
		return "Piece"
	case MsgCancel:
		return "Cancel"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(id))
	}
}

// BlockSize is the maximum block length requested per Request message
// (spec §4.5): 16 KiB.
const BlockSize = 16 * 1024

// maxFrameLength bounds incoming frame length prefixes; a well-formed Piece
// message never exceeds BlockSize plus its 8-byte header, so this is a
// generous ceiling that still catches a corrupt or hostile length prefix.
const maxFrameLength = 1 << 20

// Message is a single framed peer wire message: an id plus its payload. A
// Message with no Payload and ID left at its zero value never appears on
// the wire directly — use IsKeepAlive to test for the zero-length
// keepalive frame, which carries no id byte at all.
type Message struct {
	ID      MessageID
	Payload []byte

	keepAlive bool
}

// IsKeepAlive reports whether m represents a zero-length keepalive frame.
func (m Message) IsKeepAlive() bool { return m.keepAlive }

// Errors returned by ReadMessage.
var (
	ErrFrameTruncated = errors.New("peer: frame truncated")
	ErrFrameTooLarge  = errors.New("peer: frame length exceeds limit")
)

// WriteMessage writes m to w in wire form: a 4-byte big-endian length
// prefix (including the id byte), the id byte, then the payload.
func WriteMessage(w io.Writer, m Message) error {
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+len(m.Payload)+1)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)

	_, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("peer: writing message %s: %w", m.ID, err)
	}
	return nil
}

// ReadMessage reads one framed message from r. A zero-length frame decodes
// to a keepalive Message (IsKeepAlive() == true, no id, no payload).
func ReadMessage(r io.Reader) (Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return Message{}, fmt.Errorf("%w: reading length prefix: %v", ErrFrameTruncated, err)
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])

	if length == 0 {
		return Message{keepAlive: true}, nil
	}
	if length > maxFrameLength {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("%w: reading %d-byte body: %v", ErrFrameTruncated, length, err)
	}

	return Message{ID: MessageID(body[0]), Payload: body[1:]}, nil
}

// EncodeHave builds the payload for a Have message.
func EncodeHave(pieceIndex uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, pieceIndex)
	return buf
}

// DecodeHave parses the payload of a Have message.
func DecodeHave(payload []byte) (pieceIndex uint32, err error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("peer: malformed Have payload: %d bytes", len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

// EncodeRequest builds the payload for a Request (or Cancel) message.
func EncodeRequest(pieceIndex, begin, length uint32) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], pieceIndex)
	binary.BigEndian.PutUint32(buf[4:8], begin)
	binary.BigEndian.PutUint32(buf[8:12], length)
	return buf
}

// DecodeRequest parses the payload of a Request (or Cancel) message.
func DecodeRequest(payload []byte) (pieceIndex, begin, length uint32, err error) {
	if len(payload) != 12 {
		return 0, 0, 0, fmt.Errorf("peer: malformed Request payload: %d bytes", len(payload))
	}
	return binary.BigEndian.Uint32(payload[0:4]),
		binary.BigEndian.Uint32(payload[4:8]),
		binary.BigEndian.Uint32(payload[8:12]),
		nil
}

// DecodePieceHeader parses the piece-index and begin-offset header of a
// Piece message's payload, returning the block bytes that follow.
func DecodePieceHeader(payload []byte) (pieceIndex, begin uint32, block []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, fmt.Errorf("peer: malformed Piece payload: %d bytes", len(payload))
	}
	pieceIndex = binary.BigEndian.Uint32(payload[0:4])
	begin = binary.BigEndian.Uint32(payload[4:8])
	return pieceIndex, begin, payload[8:], nil
}

// EncodePieceHeader builds the piece-index/begin header a Piece message's
// payload is prefixed with (used by tests faking a peer).
func EncodePieceHeader(pieceIndex, begin uint32, block []byte) []byte {
	buf := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(buf[0:4], pieceIndex)
	binary.BigEndian.PutUint32(buf[4:8], begin)
	copy(buf[8:], block)
	return buf
}
