package peer

import (
	"io"
	"net"
	"time"
)

// WrapForTest builds a Conn directly over an already-connected net.Conn,
// skipping Dial's handshake — used by tests that drive the wire protocol
// over a net.Pipe.
func WrapForTest(c net.Conn, timeout time.Duration) *Conn {
	conn := newConn(c, "test", timeout, timeout)
	conn.state = StateHandshaken
	return conn
}

// WriteRawHandshakeForTest writes a handshake frame carrying infoHash and
// peerID directly to w, for tests that play the remote side of Dial.
func WriteRawHandshakeForTest(w io.Writer, infoHash, peerID [20]byte) error {
	h := Handshake{InfoHash: infoHash, PeerID: peerID}
	_, err := w.Write(h.marshal())
	return err
}

// ReadRawHandshakeForTest reads back a handshake frame written by Dial.
func ReadRawHandshakeForTest(r io.Reader) (Handshake, error) {
	buf := make([]byte, handshakeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, err
	}
	return unmarshalHandshake(buf)
}
