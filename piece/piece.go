// Package piece implements the piece downloader (spec §4.5): driving one
// already-Unchoked peer connection through a single piece's sequential
// block requests, then verifying the assembled piece against its expected
// SHA-1 hash.
package piece

import (
	"context"
	"errors"
	"fmt"

	"mybittorrent/digest"
	"mybittorrent/metainfo"
	"mybittorrent/peer"
)

// ErrPieceHashMismatch is returned when a fully assembled piece's SHA-1
// does not match the expected hash from the metainfo piece table. The
// caller is expected to requeue the piece and close the offending
// connection — the peer is likely malicious or broken.
var ErrPieceHashMismatch = errors.New("piece: hash mismatch")

// Download drives conn (already Unchoked) through spec's block requests,
// returning the assembled and verified piece bytes. Only one request is
// ever outstanding at a time — pipelining is out of scope (spec §4.5).
//
// Download is a pure function of its arguments: it never touches the work
// queue or result channel directly, so it can be tested against a fake
// peer.Conn driven over a net.Pipe.
func Download(ctx context.Context, conn *peer.Conn, spec metainfo.PieceSpec) ([]byte, error) {
	buf := make([]byte, 0, spec.Length)

	var offset int64
	for offset < spec.Length {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		blockLen := peer.BlockSize
		if remaining := spec.Length - offset; remaining < int64(blockLen) {
			blockLen = int(remaining)
		}

		if err := conn.Send(peer.Message{
			ID:      peer.MsgRequest,
			Payload: peer.EncodeRequest(uint32(spec.Index), uint32(offset), uint32(blockLen)),
		}); err != nil {
			return nil, fmt.Errorf("piece %d: sending request at offset %d: %w", spec.Index, offset, err)
		}

		block, err := recvBlock(conn, spec.Index, offset)
		if err != nil {
			return nil, err
		}

		buf = append(buf, block...)
		offset += int64(blockLen)
	}

	got := digest.Sum(buf)
	if got != spec.Hash {
		return nil, fmt.Errorf("%w: piece %d: got %s, want %s",
			ErrPieceHashMismatch, spec.Index, digest.Hex(got), digest.Hex(spec.Hash))
	}

	return buf, nil
}

// recvBlock waits for the Piece message answering the just-sent request and
// asserts the response addresses the expected piece/offset (spec §4.5 step
// 2). It calls WaitFor once: bookkeeping messages are absorbed there, and
// any other message, or a block at a different piece/offset, is returned as
// an error without retrying.
func recvBlock(conn *peer.Conn, pieceIndex int, offset int64) ([]byte, error) {
	payload, err := conn.WaitFor(peer.MsgPiece)
	if err != nil {
		return nil, fmt.Errorf("piece %d: waiting for block at offset %d: %w", pieceIndex, offset, err)
	}

	gotIndex, gotBegin, block, err := peer.DecodePieceHeader(payload)
	if err != nil {
		return nil, fmt.Errorf("piece %d: %w", pieceIndex, err)
	}
	if int(gotIndex) != pieceIndex || int64(gotBegin) != offset {
		return nil, fmt.Errorf("%w: piece %d: expected block at (index=%d, begin=%d), got (index=%d, begin=%d)",
			peer.ErrUnexpectedMessage, pieceIndex, pieceIndex, offset, gotIndex, gotBegin)
	}

	return block, nil
}
