package peer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const protocolName = "BitTorrent protocol"

// handshakeLength is the fixed 68-byte handshake size: 1 + 19 + 8 + 20 + 20.
const handshakeLength = 1 + len(protocolName) + 8 + 20 + 20

// extensionReservedByte is the index (0-based) of the reserved byte whose
// 0x10 bit signals extension-protocol support (spec §4.4).
const extensionReservedByte = 5
const extensionBit = 0x10

// Handshake is the fixed-form 68-byte BitTorrent handshake message.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
	Reserved [8]byte
}

// SupportsExtensions reports whether the reserved bytes signal
// extension-protocol support. Recorded for informational purposes only —
// the core download never negotiates extensions (spec §9).
func (h Handshake) SupportsExtensions() bool {
	return h.Reserved[extensionReservedByte]&extensionBit != 0
}

// ErrHandshakeMismatch is returned when a peer's handshake response carries
// a different info hash than the one sent, or isn't well-formed.
var ErrHandshakeMismatch = errors.New("peer: handshake mismatch")

// marshal encodes h into the 68-byte wire form.
func (h Handshake) marshal() []byte {
	buf := make([]byte, 0, handshakeLength)
	buf = append(buf, byte(len(protocolName)))
	buf = append(buf, protocolName...)
	buf = append(buf, h.Reserved[:]...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

func unmarshalHandshake(buf []byte) (Handshake, error) {
	if len(buf) != handshakeLength {
		return Handshake{}, fmt.Errorf("%w: short handshake (%d bytes)", ErrHandshakeMismatch, len(buf))
	}
	if buf[0] != byte(len(protocolName)) || !bytes.Equal(buf[1:1+len(protocolName)], []byte(protocolName)) {
		return Handshake{}, fmt.Errorf("%w: unrecognized protocol string", ErrHandshakeMismatch)
	}

	var h Handshake
	offset := 1 + len(protocolName)
	copy(h.Reserved[:], buf[offset:offset+8])
	offset += 8
	copy(h.InfoHash[:], buf[offset:offset+20])
	offset += 20
	copy(h.PeerID[:], buf[offset:offset+20])
	return h, nil
}

// doHandshake sends a handshake over rw carrying infoHash/peerID, reads the
// peer's response, and verifies the returned info hash matches. It returns
// the peer's parsed Handshake on success.
func doHandshake(rw io.ReadWriter, infoHash [20]byte, peerID string) (Handshake, error) {
	var sent Handshake
	sent.InfoHash = infoHash
	copy(sent.PeerID[:], peerID)

	if _, err := rw.Write(sent.marshal()); err != nil {
		return Handshake{}, fmt.Errorf("peer: sending handshake: %w", err)
	}

	respBuf := make([]byte, handshakeLength)
	if _, err := io.ReadFull(rw, respBuf); err != nil {
		return Handshake{}, fmt.Errorf("%w: reading response: %v", ErrHandshakeMismatch, err)
	}

	resp, err := unmarshalHandshake(respBuf)
	if err != nil {
		return Handshake{}, err
	}
	if !bytes.Equal(resp.InfoHash[:], infoHash[:]) {
		return Handshake{}, fmt.Errorf("%w: info hash differs", ErrHandshakeMismatch)
	}

	return resp, nil
}
