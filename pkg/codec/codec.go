package codec

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/strata-systems/strata/pkg/types"
)

// FormatVersion is the first byte of every encoded buffer.
const FormatVersion byte = 0x01

// Value tags. One byte precedes every encoded value.
const (
	tagNull   byte = 0x00
	tagBool   byte = 0x01
	tagInt    byte = 0x02
	tagFloat  byte = 0x03
	tagString byte = 0x04
	tagBytes  byte = 0x05
	tagArray  byte = 0x06
	tagObject byte = 0x07
)

const checksumSize = 8

// Encode serializes a Value into the self-describing binary form:
// format version byte, tagged payload, and an xxhash64 trailer over
// everything before it.
func Encode(v types.Value) []byte {
	buf := make([]byte, 1, 64)
	buf[0] = FormatVersion
	buf = appendValue(buf, v)
	sum := xxhash.Sum64(buf)
	return binary.LittleEndian.AppendUint64(buf, sum)
}

// Decode deserializes a buffer produced by Encode. It rejects truncated
// input, unknown tags, length mismatches, invalid UTF-8 strings, duplicate
// object keys, and checksum failures; all map to ErrCorruption.
func Decode(buf []byte) (types.Value, error) {
	if len(buf) < 1+checksumSize {
		return types.Value{}, types.Corruptionf("buffer too short: %d bytes", len(buf))
	}
	body := buf[:len(buf)-checksumSize]
	want := binary.LittleEndian.Uint64(buf[len(buf)-checksumSize:])
	if got := xxhash.Sum64(body); got != want {
		return types.Value{}, types.Corruptionf("checksum mismatch: got %x want %x", got, want)
	}
	if body[0] != FormatVersion {
		return types.Value{}, types.Corruptionf("unsupported format version %#x", body[0])
	}
	v, rest, err := decodeValue(body[1:])
	if err != nil {
		return types.Value{}, err
	}
	if len(rest) != 0 {
		return types.Value{}, types.Corruptionf("%d trailing bytes after value", len(rest))
	}
	return v, nil
}

func appendValue(buf []byte, v types.Value) []byte {
	switch v.Kind {
	case types.KindNull:
		return append(buf, tagNull)
	case types.KindBool:
		buf = append(buf, tagBool)
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	case types.KindInt:
		buf = append(buf, tagInt)
		return binary.LittleEndian.AppendUint64(buf, uint64(v.Int))
	case types.KindFloat:
		buf = append(buf, tagFloat)
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Float))
	case types.KindString:
		buf = append(buf, tagString)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Str)))
		return append(buf, v.Str...)
	case types.KindBytes:
		buf = append(buf, tagBytes)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Bytes)))
		return append(buf, v.Bytes...)
	case types.KindArray:
		buf = append(buf, tagArray)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Array)))
		for _, item := range v.Array {
			buf = appendValue(buf, item)
		}
		return buf
	case types.KindObject:
		buf = append(buf, tagObject)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Object)))
		for k, val := range v.Object {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(k)))
			buf = append(buf, k...)
			buf = appendValue(buf, val)
		}
		return buf
	default:
		// Unknown kinds encode as null so Encode stays total; Decode of
		// well-formed input can never produce one.
		return append(buf, tagNull)
	}
}

func decodeValue(buf []byte) (types.Value, []byte, error) {
	if len(buf) < 1 {
		return types.Value{}, nil, types.Corruptionf("truncated value: missing tag")
	}
	tag := buf[0]
	buf = buf[1:]
	switch tag {
	case tagNull:
		return types.NewNull(), buf, nil
	case tagBool:
		if len(buf) < 1 {
			return types.Value{}, nil, types.Corruptionf("truncated bool")
		}
		switch buf[0] {
		case 0:
			return types.NewBool(false), buf[1:], nil
		case 1:
			return types.NewBool(true), buf[1:], nil
		default:
			return types.Value{}, nil, types.Corruptionf("invalid bool byte %#x", buf[0])
		}
	case tagInt:
		if len(buf) < 8 {
			return types.Value{}, nil, types.Corruptionf("truncated int")
		}
		return types.NewInt(int64(binary.LittleEndian.Uint64(buf))), buf[8:], nil
	case tagFloat:
		if len(buf) < 8 {
			return types.Value{}, nil, types.Corruptionf("truncated float")
		}
		return types.NewFloat(math.Float64frombits(binary.LittleEndian.Uint64(buf))), buf[8:], nil
	case tagString:
		raw, rest, err := decodeLenPrefixed(buf, "string")
		if err != nil {
			return types.Value{}, nil, err
		}
		if !utf8.Valid(raw) {
			return types.Value{}, nil, types.Corruptionf("string is not valid UTF-8")
		}
		return types.NewString(string(raw)), rest, nil
	case tagBytes:
		raw, rest, err := decodeLenPrefixed(buf, "bytes")
		if err != nil {
			return types.Value{}, nil, err
		}
		dup := make([]byte, len(raw))
		copy(dup, raw)
		return types.NewBytes(dup), rest, nil
	case tagArray:
		if len(buf) < 4 {
			return types.Value{}, nil, types.Corruptionf("truncated array header")
		}
		n := binary.LittleEndian.Uint32(buf)
		buf = buf[4:]
		items := make([]types.Value, 0, min(int(n), 1024))
		for i := uint32(0); i < n; i++ {
			var item types.Value
			var err error
			item, buf, err = decodeValue(buf)
			if err != nil {
				return types.Value{}, nil, err
			}
			items = append(items, item)
		}
		return types.NewArray(items...), buf, nil
	case tagObject:
		if len(buf) < 4 {
			return types.Value{}, nil, types.Corruptionf("truncated object header")
		}
		n := binary.LittleEndian.Uint32(buf)
		buf = buf[4:]
		fields := make(map[string]types.Value, min(int(n), 1024))
		for i := uint32(0); i < n; i++ {
			raw, rest, err := decodeLenPrefixed(buf, "object key")
			if err != nil {
				return types.Value{}, nil, err
			}
			if !utf8.Valid(raw) {
				return types.Value{}, nil, types.Corruptionf("object key is not valid UTF-8")
			}
			key := string(raw)
			if _, dup := fields[key]; dup {
				return types.Value{}, nil, types.Corruptionf("duplicate object key %q", key)
			}
			var val types.Value
			val, buf, err = decodeValue(rest)
			if err != nil {
				return types.Value{}, nil, err
			}
			fields[key] = val
		}
		return types.NewObject(fields), buf, nil
	default:
		return types.Value{}, nil, types.Corruptionf("unknown value tag %#x", tag)
	}
}

func decodeLenPrefixed(buf []byte, what string) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, types.Corruptionf("truncated %s header", what)
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, types.Corruptionf("%s length %d exceeds remaining %d bytes", what, n, len(buf))
	}
	return buf[:n], buf[n:], nil
}
