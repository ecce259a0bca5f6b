package download_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mybittorrent/digest"
	"mybittorrent/download"
	"mybittorrent/internal/session"
	"mybittorrent/metainfo"
	"mybittorrent/peer"
)

// fakeSeeder listens on an ephemeral port and serves every piece in
// pieces to whichever single connection it accepts, honoring the standard
// handshake/bitfield/unchoke/request/piece exchange. If corruptPiece is
// non-negative, requests for that piece get a response at the wrong
// begin offset, to exercise the coordinator's requeue path.
func fakeSeeder(t *testing.T, infoHash [20]byte, pieces map[int][]byte, corruptPiece int) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		remoteHandshake, err := peer.ReadRawHandshakeForTest(conn)
		if err != nil || remoteHandshake.InfoHash != infoHash {
			return
		}
		var remotePeerID [20]byte
		copy(remotePeerID[:], "-FAKE01-seederpeerid")
		if err := peer.WriteRawHandshakeForTest(conn, infoHash, remotePeerID); err != nil {
			return
		}

		if err := peer.WriteMessage(conn, peer.Message{ID: peer.MsgBitfield, Payload: []byte{0xff}}); err != nil {
			return
		}

		for {
			m, err := peer.ReadMessage(conn)
			if err != nil {
				return
			}
			switch m.ID {
			case peer.MsgInterested:
				if err := peer.WriteMessage(conn, peer.Message{ID: peer.MsgUnchoke}); err != nil {
					return
				}
			case peer.MsgRequest:
				idx, begin, length, err := peer.DecodeRequest(m.Payload)
				if err != nil {
					return
				}
				data := pieces[int(idx)]
				block := data[begin : int(begin)+int(length)]

				sendBegin := begin
				if int(idx) == corruptPiece {
					sendBegin = begin + 1 // deliberately wrong offset
				}
				err = peer.WriteMessage(conn, peer.Message{
					ID:      peer.MsgPiece,
					Payload: peer.EncodePieceHeader(idx, sendBegin, block),
				})
				if err != nil {
					return
				}
			}
		}
	}()

	return ln.Addr().String()
}

func buildMetainfoFromPieces(pieceLength int64, pieces [][]byte) *metainfo.Metainfo {
	var length int64
	var allHashes []byte
	for _, p := range pieces {
		length += int64(len(p))
		h := digest.Sum(p)
		allHashes = append(allHashes, h[:]...)
	}
	return &metainfo.Metainfo{
		Announce: "http://example.invalid/announce",
		Info: metainfo.Info{
			Length:      length,
			Name:        "test-output",
			PieceLength: pieceLength,
			Pieces:      allHashes,
		},
	}
}

func TestCoordinatorDownloadsAllPieces(t *testing.T) {
	piece0 := []byte("aaaaaaaaaaaaaaaa")
	piece1 := []byte("bbbbbbbbbbbbbbbb")
	piece2 := []byte("cccccccccccccccc")
	m := buildMetainfoFromPieces(16, [][]byte{piece0, piece1, piece2})

	var infoHash [20]byte
	copy(infoHash[:], "infohashinfohash1234")

	piecesByIndex := map[int][]byte{0: piece0, 1: piece1, 2: piece2}
	addr1 := fakeSeeder(t, infoHash, piecesByIndex, -1)
	addr2 := fakeSeeder(t, infoHash, piecesByIndex, -1)

	sess, err := session.New()
	require.NoError(t, err)
	sess.ConnectTimeout = 2 * time.Second
	sess.ReadTimeout = 2 * time.Second
	sess.WorkerCap = 2

	coord := download.NewCoordinator(sess)
	out := filepath.Join(t.TempDir(), "out.bin")

	err = coord.Run(context.Background(), m, infoHash, []string{addr1, addr2}, out)
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, append(append(append([]byte{}, piece0...), piece1...), piece2...), got)
}

func TestCoordinatorRequeuesOnWrongOffset(t *testing.T) {
	piece0 := []byte("aaaaaaaaaaaaaaaa")
	piece1 := []byte("bbbbbbbbbbbbbbbb")
	m := buildMetainfoFromPieces(16, [][]byte{piece0, piece1})

	var infoHash [20]byte
	copy(infoHash[:], "infohashinfohash5678")

	piecesByIndex := map[int][]byte{0: piece0, 1: piece1}
	// addr1 corrupts piece 0's offset; addr2 is well-behaved and should
	// absorb the requeued piece.
	addr1 := fakeSeeder(t, infoHash, piecesByIndex, 0)
	addr2 := fakeSeeder(t, infoHash, piecesByIndex, -1)

	sess, err := session.New()
	require.NoError(t, err)
	sess.ConnectTimeout = 2 * time.Second
	sess.ReadTimeout = 2 * time.Second
	sess.WorkerCap = 2

	coord := download.NewCoordinator(sess)
	out := filepath.Join(t.TempDir(), "out.bin")

	err = coord.Run(context.Background(), m, infoHash, []string{addr1, addr2}, out)
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, append(append([]byte{}, piece0...), piece1...), got)
}

func TestCoordinatorInsufficientPeers(t *testing.T) {
	piece0 := []byte("aaaaaaaaaaaaaaaa")
	m := buildMetainfoFromPieces(16, [][]byte{piece0})

	var infoHash [20]byte
	copy(infoHash[:], "infohashinfohash9999")

	sess, err := session.New()
	require.NoError(t, err)
	sess.ConnectTimeout = 200 * time.Millisecond
	sess.ReadTimeout = 200 * time.Millisecond

	coord := download.NewCoordinator(sess)
	out := filepath.Join(t.TempDir(), "out.bin")

	// No listener at all: Dial fails immediately for the one peer we pass.
	err = coord.Run(context.Background(), m, infoHash, []string{"127.0.0.1:1"}, out)
	require.ErrorIs(t, err, download.ErrInsufficientPeers)
}
