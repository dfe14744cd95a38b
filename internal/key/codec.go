package key

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/rzpsarthak13/unistore/internal/core"
)

// Order-preserving byte encoding for keys, used by the embedded object-store
// engine and the key-value backends. bytes.Compare over two encodings agrees
// with Cmp over the keys.
//
// Layout: a type tag byte, then a sortable payload. Tag values follow the
// type order so cross-type comparisons resolve on the first byte.
const (
	tagNumber byte = 0x10
	tagDate   byte = 0x20
	tagString byte = 0x30
	tagTuple  byte = 0x40

	// Inside strings and tuples 0x00 terminates; a literal 0x00 byte is
	// escaped as 0x00 0xFF so escaped content still sorts correctly.
	termByte byte = 0x00
	escByte  byte = 0xFF
)

// Encode serializes k into an order-preserving byte string.
func (k Key) Encode() []byte {
	return k.appendTo(nil)
}

func (k Key) appendTo(dst []byte) []byte {
	switch k.k {
	case kindNumber:
		dst = append(dst, tagNumber)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], sortableFloat(k.num))
		return append(dst, buf[:]...)
	case kindDate:
		dst = append(dst, tagDate)
		var buf [8]byte
		// Shift the sign bit so negative epochs sort below positive ones.
		binary.BigEndian.PutUint64(buf[:], uint64(k.date.UnixNano())^(1<<63))
		return append(dst, buf[:]...)
	case kindString:
		dst = append(dst, tagString)
		dst = appendEscaped(dst, []byte(k.str))
		return append(dst, termByte, termByte)
	case kindTuple:
		dst = append(dst, tagTuple)
		for _, p := range k.tuple {
			dst = p.appendTo(dst)
		}
		return append(dst, termByte)
	}
	return dst
}

func appendEscaped(dst, src []byte) []byte {
	for _, b := range src {
		if b == termByte {
			dst = append(dst, termByte, escByte)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// sortableFloat maps a float64 onto a uint64 whose unsigned order matches
// the float order. Positive floats get the sign bit set; negative floats are
// fully inverted.
func sortableFloat(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func unsortableFloat(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

// Decode parses an encoded key, returning the key and the number of bytes
// consumed.
func Decode(data []byte) (Key, int, error) {
	if len(data) == 0 {
		return Key{}, 0, core.NewError(core.KindInternal, "empty key encoding")
	}
	switch data[0] {
	case tagNumber:
		if len(data) < 9 {
			return Key{}, 0, core.NewError(core.KindInternal, "truncated number key")
		}
		return Number(unsortableFloat(binary.BigEndian.Uint64(data[1:9]))), 9, nil
	case tagDate:
		if len(data) < 9 {
			return Key{}, 0, core.NewError(core.KindInternal, "truncated date key")
		}
		ns := int64(binary.BigEndian.Uint64(data[1:9]) ^ (1 << 63))
		return Date(time.Unix(0, ns).UTC()), 9, nil
	case tagString:
		raw, n, err := decodeEscaped(data[1:])
		if err != nil {
			return Key{}, 0, err
		}
		return String(string(raw)), 1 + n, nil
	case tagTuple:
		pos := 1
		var parts []Key
		for {
			if pos >= len(data) {
				return Key{}, 0, core.NewError(core.KindInternal, "unterminated tuple key")
			}
			if data[pos] == termByte {
				return Tuple(parts...), pos + 1, nil
			}
			p, n, err := Decode(data[pos:])
			if err != nil {
				return Key{}, 0, err
			}
			parts = append(parts, p)
			pos += n
		}
	}
	return Key{}, 0, core.NewError(core.KindInternal, "unknown key tag 0x%02x", data[0])
}

func decodeEscaped(data []byte) ([]byte, int, error) {
	var out []byte
	for i := 0; i < len(data); i++ {
		if data[i] != termByte {
			out = append(out, data[i])
			continue
		}
		if i+1 >= len(data) {
			return nil, 0, core.NewError(core.KindInternal, "unterminated string key")
		}
		switch data[i+1] {
		case escByte:
			out = append(out, termByte)
			i++
		case termByte:
			return out, i + 2, nil
		default:
			return nil, 0, core.NewError(core.KindInternal, "bad escape in string key")
		}
	}
	return nil, 0, core.NewError(core.KindInternal, "unterminated string key")
}
