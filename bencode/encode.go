package bencode

import (
	"bytes"
	"sort"
	"strconv"
)

// Encode writes the canonical bencode representation of v to buf and
// returns the extended slice. Dictionary entries are always emitted sorted
// by key byte order, regardless of the order they were constructed or
// decoded in — this is what makes the encoding deterministic and is
// required for infohash stability (spec §4.1).
func Encode(buf []byte, v Value) []byte {
	switch v.kind {
	case KindInt:
		buf = append(buf, 'i')
		buf = strconv.AppendInt(buf, v.i, 10)
		buf = append(buf, 'e')

	case KindBytes:
		buf = strconv.AppendInt(buf, int64(len(v.b)), 10)
		buf = append(buf, ':')
		buf = append(buf, v.b...)

	case KindList:
		buf = append(buf, 'l')
		for _, item := range v.list {
			buf = Encode(buf, item)
		}
		buf = append(buf, 'e')

	case KindDict:
		entries := append([]DictEntry(nil), v.dict...)
		sort.Slice(entries, func(i, j int) bool {
			return bytes.Compare(entries[i].Key, entries[j].Key) < 0
		})

		buf = append(buf, 'd')
		for _, e := range entries {
			buf = Encode(buf, Bytes(e.Key))
			buf = Encode(buf, e.Value)
		}
		buf = append(buf, 'e')
	}

	return buf
}

// Marshal is a convenience over Encode that allocates a fresh buffer.
func Marshal(v Value) []byte {
	return Encode(nil, v)
}
