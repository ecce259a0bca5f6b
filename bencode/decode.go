package bencode

import (
	"bytes"
	"strconv"
)

// Decoder is a cursor over an in-memory bencode byte buffer. It decodes one
// value at a time, advancing its position past what it consumed, so a
// caller holding onto a Decoder can pull a stream of top-level values (as
// the `decode` CLI command and tracker responses never need more than one,
// but nothing here assumes that).
type Decoder struct {
	buf    []byte
	pos    int
	strict bool
}

// NewDecoder returns a Decoder positioned at the start of buf. The slice is
// held by reference; callers must not mutate it while decoding.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// NewStrictDecoder returns a Decoder that rejects dictionaries whose keys
// are not in ascending lexicographic byte order (ErrDictKeyOutOfOrder).
func NewStrictDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf, strict: true}
}

// Pos reports the current cursor offset into the original buffer.
func (d *Decoder) Pos() int { return d.pos }

// Len reports how many bytes remain undecoded.
func (d *Decoder) Len() int { return len(d.buf) - d.pos }

// Decode consumes exactly one bencode value starting at the cursor and
// advances past it.
func (d *Decoder) Decode() (Value, error) {
	v, _, err := d.decodeValue()
	return v, err
}

// DecodeSpan behaves like Decode but also reports the [start, end) byte
// range of the value within the original buffer, so a caller can recover
// the exact source bytes of a value. The metainfo loader does not use it;
// it hashes a canonical re-encoding of the `info` value instead.
func (d *Decoder) DecodeSpan() (Value, int, int, error) {
	start := d.pos
	v, _, err := d.decodeValue()
	if err != nil {
		return Value{}, 0, 0, err
	}
	return v, start, d.pos, nil
}

// Decode parses exactly one bencode value from b and returns it along with
// the number of bytes consumed.
func Decode(b []byte) (Value, int, error) {
	d := NewDecoder(b)
	v, _, err := d.decodeValue()
	return v, d.pos, err
}

func (d *Decoder) decodeValue() (Value, int, error) {
	if d.pos >= len(d.buf) {
		return Value{}, 0, ErrUnexpectedEnd
	}

	switch c := d.buf[d.pos]; {
	case c == 'i':
		return d.decodeInt()
	case c == 'l':
		return d.decodeList()
	case c == 'd':
		return d.decodeDict()
	case c >= '0' && c <= '9':
		return d.decodeBytes()
	default:
		return Value{}, 0, &UnexpectedByteError{At: d.pos, Byte: c}
	}
}

func (d *Decoder) decodeInt() (Value, int, error) {
	start := d.pos
	rel := bytes.IndexByte(d.buf[d.pos+1:], 'e')
	if rel < 0 {
		return Value{}, 0, ErrUnexpectedEnd
	}
	end := d.pos + 1 + rel

	digits := d.buf[d.pos+1 : end]
	if len(digits) == 0 || (len(digits) > 1 && digits[0] == '0') ||
		(len(digits) > 2 && digits[0] == '-' && digits[1] == '0') {
		return Value{}, 0, ErrInvalidInteger
	}

	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return Value{}, 0, ErrInvalidInteger
	}

	d.pos = end + 1
	return Int(n), d.pos - start, nil
}

func (d *Decoder) decodeBytes() (Value, int, error) {
	start := d.pos
	rel := bytes.IndexByte(d.buf[d.pos:], ':')
	if rel < 0 {
		return Value{}, 0, ErrUnexpectedEnd
	}
	colon := d.pos + rel

	length, err := strconv.Atoi(string(d.buf[d.pos:colon]))
	if err != nil || length < 0 {
		return Value{}, 0, ErrInvalidLength
	}

	dataStart := colon + 1
	dataEnd := dataStart + length
	if dataEnd > len(d.buf) {
		return Value{}, 0, ErrUnexpectedEnd
	}

	d.pos = dataEnd
	return Bytes(d.buf[dataStart:dataEnd]), d.pos - start, nil
}

func (d *Decoder) decodeList() (Value, int, error) {
	start := d.pos
	d.pos++ // consume 'l'

	var items []Value
	for {
		if d.pos >= len(d.buf) {
			return Value{}, 0, ErrUnexpectedEnd
		}
		if d.buf[d.pos] == 'e' {
			d.pos++
			break
		}

		v, _, err := d.decodeValue()
		if err != nil {
			return Value{}, 0, err
		}
		items = append(items, v)
	}

	return List(items), d.pos - start, nil
}

func (d *Decoder) decodeDict() (Value, int, error) {
	start := d.pos
	d.pos++ // consume 'd'

	var entries []DictEntry
	var prevKey []byte

	for {
		if d.pos >= len(d.buf) {
			return Value{}, 0, ErrUnexpectedEnd
		}
		if d.buf[d.pos] == 'e' {
			d.pos++
			break
		}

		keyStart := d.pos
		keyVal, _, err := d.decodeValue()
		if err != nil {
			return Value{}, 0, err
		}
		key, ok := keyVal.Bytes()
		if !ok {
			return Value{}, 0, &UnexpectedByteError{At: keyStart, Byte: d.buf[keyStart]}
		}

		if d.strict && prevKey != nil && bytes.Compare(prevKey, key) >= 0 {
			return Value{}, 0, ErrDictKeyOutOfOrder
		}
		prevKey = key

		val, _, err := d.decodeValue()
		if err != nil {
			return Value{}, 0, err
		}

		entries = append(entries, DictEntry{Key: key, Value: val})
	}

	return Dict(entries), d.pos - start, nil
}

