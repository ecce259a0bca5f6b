package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeMarshalUnmarshal(t *testing.T) {
	var h Handshake
	copy(h.InfoHash[:], "01234567890123456789")
	copy(h.PeerID[:], "-GT0001-abcdefghijkl")
	h.Reserved[extensionReservedByte] = extensionBit

	buf := h.marshal()
	require.Len(t, buf, handshakeLength)

	got, err := unmarshalHandshake(buf)
	require.NoError(t, err)
	require.Equal(t, h.InfoHash, got.InfoHash)
	require.Equal(t, h.PeerID, got.PeerID)
	require.True(t, got.SupportsExtensions())
}

func TestUnmarshalHandshakeRejectsBadProtocol(t *testing.T) {
	buf := make([]byte, handshakeLength)
	buf[0] = byte(len(protocolName))
	copy(buf[1:], "not the right protocol string!!")

	_, err := unmarshalHandshake(buf)
	require.ErrorIs(t, err, ErrHandshakeMismatch)
}

// tcpPair returns both ends of a loopback TCP connection. Unlike net.Pipe,
// whose writes block until the other end reads, its writes are buffered, so
// both ends can send their handshake before reading the other's.
func tcpPair(t *testing.T) (client, remote net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	remote = <-accepted
	require.NotNil(t, remote)
	return client, remote
}

func TestDoHandshakeSuccess(t *testing.T) {
	client, remote := tcpPair(t)
	defer client.Close()
	defer remote.Close()

	var infoHash [20]byte
	copy(infoHash[:], "01234567890123456789")

	remoteDone := make(chan Handshake, 1)
	remoteErr := make(chan error, 1)
	go func() {
		resp, err := doHandshake(remote, infoHash, "-GT0001-remotepeerid")
		remoteDone <- resp
		remoteErr <- err
	}()

	got, err := doHandshake(client, infoHash, "-GT0001-clientpeerid")
	require.NoError(t, err)
	require.Equal(t, infoHash, got.InfoHash)

	require.NoError(t, <-remoteErr)
	resp := <-remoteDone
	require.Equal(t, infoHash, resp.InfoHash)
}

func TestDoHandshakeInfoHashMismatch(t *testing.T) {
	client, remote := tcpPair(t)
	defer client.Close()
	defer remote.Close()

	var clientHash, remoteHash [20]byte
	copy(clientHash[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(remoteHash[:], "bbbbbbbbbbbbbbbbbbbb")

	go func() {
		doHandshake(remote, remoteHash, "-GT0001-remotepeerid")
	}()

	_, err := doHandshake(client, clientHash, "-GT0001-clientpeerid")
	require.ErrorIs(t, err, ErrHandshakeMismatch)
}
