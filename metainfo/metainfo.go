// Package metainfo parses a .torrent metainfo file into a Metainfo value,
// computes its info hash, and derives the piece table the downloader drives
// off of.
package metainfo

import (
	"errors"
	"fmt"
	"iter"

	"mybittorrent/bencode"
	"mybittorrent/digest"
)

// Errors returned by Load.
var (
	ErrMalformedMetainfo = errors.New("metainfo: malformed metainfo")
	ErrMissingField      = errors.New("metainfo: missing required field")
)

// Info is the decoded `info` sub-dictionary of a single-file torrent.
type Info struct {
	Length      int64
	Name        string
	PieceLength int64
	Pieces      []byte // concatenated 20-byte SHA-1 digests, one per piece
}

// Metainfo is the decoded torrent file, plus the derived info hash.
type Metainfo struct {
	Announce string
	Info     Info

	// InfoHash is SHA-1 of the `info` sub-value re-encoded canonically (keys
	// sorted) by the bencode package. For a conformant source file, whose
	// keys are already sorted, this equals the hash of the original bytes;
	// for one that is not, it is the hash of the sorted form.
	InfoHash [digest.Size]byte
}

// PieceSpec is one entry of the piece table: a piece's index, byte length,
// and expected SHA-1 hash.
type PieceSpec struct {
	Index  int
	Length int64
	Hash   [digest.Size]byte
}

// Load decodes raw bencoded metainfo bytes into a Metainfo.
func Load(raw []byte) (*Metainfo, error) {
	dec := bencode.NewDecoder(raw)
	top, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("metainfo: decoding top-level value: %w", err)
	}

	announceVal, ok := top.Lookup("announce")
	if !ok {
		return nil, fmt.Errorf("%w: announce", ErrMissingField)
	}
	announce, ok := announceVal.Str()
	if !ok {
		return nil, fmt.Errorf("%w: announce is not a byte string", ErrMalformedMetainfo)
	}

	infoVal, ok := top.Lookup("info")
	if !ok {
		return nil, fmt.Errorf("%w: info", ErrMissingField)
	}

	info, err := decodeInfo(infoVal)
	if err != nil {
		return nil, err
	}

	infoHash, err := hashInfoSpan(raw)
	if err != nil {
		return nil, err
	}

	return &Metainfo{
		Announce: announce,
		Info:     info,
		InfoHash: infoHash,
	}, nil
}

// hashInfoSpan finds the top-level "info" value and hashes its canonical
// re-encoding (bencode.Marshal), not the raw source bytes — either approach
// satisfies the round-trip invariant in spec §3.
func hashInfoSpan(raw []byte) ([digest.Size]byte, error) {
	dec := bencode.NewDecoder(raw)
	top, err := dec.Decode()
	if err != nil {
		return [digest.Size]byte{}, fmt.Errorf("metainfo: re-decoding for info span: %w", err)
	}
	entries, ok := top.Dict()
	if !ok {
		return [digest.Size]byte{}, fmt.Errorf("%w: top-level value is not a dictionary", ErrMalformedMetainfo)
	}

	for _, e := range entries {
		if string(e.Key) != "info" {
			continue
		}
		// Re-encode canonically: for a conformant torrent file (keys
		// already sorted) this reproduces the original bytes exactly; for
		// a non-conformant one it still yields a stable, round-trippable
		// hash per the codec's canonical-encoding guarantee.
		return digest.Sum(bencode.Marshal(e.Value)), nil
	}

	return [digest.Size]byte{}, fmt.Errorf("%w: info", ErrMissingField)
}

func decodeInfo(v bencode.Value) (Info, error) {
	var info Info

	lengthVal, ok := v.Lookup("length")
	if !ok {
		return info, fmt.Errorf("%w: info.length", ErrMissingField)
	}
	length, ok := lengthVal.Int()
	if !ok {
		return info, fmt.Errorf("%w: info.length is not an integer", ErrMalformedMetainfo)
	}

	nameVal, ok := v.Lookup("name")
	if !ok {
		return info, fmt.Errorf("%w: info.name", ErrMissingField)
	}
	name, ok := nameVal.Str()
	if !ok {
		return info, fmt.Errorf("%w: info.name is not a byte string", ErrMalformedMetainfo)
	}

	pieceLengthVal, ok := v.Lookup("piece length")
	if !ok {
		return info, fmt.Errorf("%w: info.piece length", ErrMissingField)
	}
	pieceLength, ok := pieceLengthVal.Int()
	if !ok {
		return info, fmt.Errorf("%w: info.piece length is not an integer", ErrMalformedMetainfo)
	}

	piecesVal, ok := v.Lookup("pieces")
	if !ok {
		return info, fmt.Errorf("%w: info.pieces", ErrMissingField)
	}
	pieces, ok := piecesVal.Bytes()
	if !ok {
		return info, fmt.Errorf("%w: info.pieces is not a byte string", ErrMalformedMetainfo)
	}
	if len(pieces)%digest.Size != 0 {
		return info, fmt.Errorf("%w: info.pieces length %d is not a multiple of %d", ErrMalformedMetainfo, len(pieces), digest.Size)
	}

	if pieceLength <= 0 {
		return info, fmt.Errorf("%w: info.piece length must be positive", ErrMalformedMetainfo)
	}

	info.Length = length
	info.Name = name
	info.PieceLength = pieceLength
	info.Pieces = pieces
	return info, nil
}

// PieceCount returns the number of pieces the file is split into, taken as
// the number of 20-byte hashes in Info.Pieces. For a well-formed torrent
// this equals ceil(Length / PieceLength); Load does not check that.
func (m *Metainfo) PieceCount() int {
	if m.Info.PieceLength == 0 {
		return 0
	}
	n := len(m.Info.Pieces) / digest.Size
	return n
}

// PieceLength returns the length in bytes of the piece at index i: always
// Info.PieceLength, except the final piece, which holds the remainder.
func (m *Metainfo) PieceLength(i int) int64 {
	count := m.PieceCount()
	if i == count-1 {
		remainder := m.Info.Length - int64(count-1)*m.Info.PieceLength
		if remainder > 0 {
			return remainder
		}
		return m.Info.PieceLength
	}
	return m.Info.PieceLength
}

// PieceHash returns the expected 20-byte SHA-1 digest of the piece at index i.
func (m *Metainfo) PieceHash(i int) [digest.Size]byte {
	var h [digest.Size]byte
	copy(h[:], m.Info.Pieces[i*digest.Size:(i+1)*digest.Size])
	return h
}

// PieceTable returns the full, materialized piece table: one PieceSpec per
// piece, in index order. The coordinator (C7) seeds its work queue from
// this in one pass.
func (m *Metainfo) PieceTable() []PieceSpec {
	count := m.PieceCount()
	table := make([]PieceSpec, count)
	for i := 0; i < count; i++ {
		table[i] = PieceSpec{
			Index:  i,
			Length: m.PieceLength(i),
			Hash:   m.PieceHash(i),
		}
	}
	return table
}

// Pieces returns a streaming iterator over (index, length, hash) triples,
// for callers (like the `info` CLI command) that want to print hashes
// sequentially without materializing the whole table.
func (m *Metainfo) Pieces() iter.Seq[PieceSpec] {
	return func(yield func(PieceSpec) bool) {
		count := m.PieceCount()
		for i := 0; i < count; i++ {
			spec := PieceSpec{Index: i, Length: m.PieceLength(i), Hash: m.PieceHash(i)}
			if !yield(spec) {
				return
			}
		}
	}
}
