package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/strata-systems/strata/pkg/types"
)

// TestRoundTrip tests decode(encode(v)) == v across the variants
func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    types.Value
	}{
		{"null", types.NewNull()},
		{"bool", types.NewBool(true)},
		{"int min", types.NewInt(math.MinInt64)},
		{"int max", types.NewInt(math.MaxInt64)},
		{"float", types.NewFloat(3.14159)},
		{"float nan", types.NewFloat(math.NaN())},
		{"float neg inf", types.NewFloat(math.Inf(-1))},
		{"float neg zero", types.NewFloat(math.Copysign(0, -1))},
		{"empty string", types.NewString("")},
		{"unicode string", types.NewString("grüße, 世界")},
		{"bytes", types.NewBytes([]byte{0x00, 0xFF, 0x7F})},
		{"empty array", types.NewArray()},
		{"nested", types.NewObject(map[string]types.Value{
			"id":   types.NewInt(7),
			"tags": types.NewArray(types.NewString("a"), types.NewNull()),
			"geo": types.NewObject(map[string]types.Value{
				"lat": types.NewFloat(52.52),
				"lon": types.NewFloat(13.405),
			}),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.v))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if !got.Equal(tt.v) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tt.v)
			}
		})
	}
}

// TestDecodeRejectsTruncation tests truncated buffers at every length
func TestDecodeRejectsTruncation(t *testing.T) {
	buf := Encode(types.NewObject(map[string]types.Value{
		"k": types.NewArray(types.NewString("value"), types.NewInt(1)),
	}))
	for i := 0; i < len(buf); i++ {
		if _, err := Decode(buf[:i]); !errors.Is(err, types.ErrCorruption) {
			t.Fatalf("Decode(buf[:%d]) = %v, want ErrCorruption", i, err)
		}
	}
}

// TestDecodeRejectsChecksumFlip tests single-bit corruption detection
func TestDecodeRejectsChecksumFlip(t *testing.T) {
	buf := Encode(types.NewString("payload"))
	for i := range buf {
		corrupt := append([]byte(nil), buf...)
		corrupt[i] ^= 0x01
		if _, err := Decode(corrupt); !errors.Is(err, types.ErrCorruption) {
			t.Fatalf("flip at byte %d: Decode() = %v, want ErrCorruption", i, err)
		}
	}
}

// reseal recomputes the checksum trailer after the body was altered, so
// tests reach the structural validation behind it.
func reseal(body []byte) []byte {
	return binary.LittleEndian.AppendUint64(body, xxhash.Sum64(body))
}

// TestDecodeRejectsUnknownTag tests the tag validation
func TestDecodeRejectsUnknownTag(t *testing.T) {
	body := []byte{FormatVersion, 0x7E}
	if _, err := Decode(reseal(body)); !errors.Is(err, types.ErrCorruption) {
		t.Errorf("unknown tag: Decode() = %v, want ErrCorruption", err)
	}
}

// TestDecodeRejectsDuplicateObjectKeys tests dup-key rejection
func TestDecodeRejectsDuplicateObjectKeys(t *testing.T) {
	body := []byte{FormatVersion, tagObject}
	body = binary.LittleEndian.AppendUint32(body, 2)
	for i := 0; i < 2; i++ {
		body = binary.LittleEndian.AppendUint32(body, 1)
		body = append(body, 'a')
		body = append(body, tagNull)
	}
	if _, err := Decode(reseal(body)); !errors.Is(err, types.ErrCorruption) {
		t.Errorf("duplicate keys: Decode() = %v, want ErrCorruption", err)
	}
}

// TestDecodeRejectsInvalidUTF8 tests string validation
func TestDecodeRejectsInvalidUTF8(t *testing.T) {
	body := []byte{FormatVersion, tagString}
	body = binary.LittleEndian.AppendUint32(body, 2)
	body = append(body, 0xFF, 0xFE)
	if _, err := Decode(reseal(body)); !errors.Is(err, types.ErrCorruption) {
		t.Errorf("invalid utf-8: Decode() = %v, want ErrCorruption", err)
	}
}

// TestDecodeRejectsTrailingBytes tests length mismatch detection
func TestDecodeRejectsTrailingBytes(t *testing.T) {
	body := []byte{FormatVersion, tagNull, 0xAA}
	if _, err := Decode(reseal(body)); !errors.Is(err, types.ErrCorruption) {
		t.Errorf("trailing bytes: Decode() = %v, want ErrCorruption", err)
	}
}

// TestDecodeRejectsBadFormatVersion tests the version byte
func TestDecodeRejectsBadFormatVersion(t *testing.T) {
	body := []byte{0x02, tagNull}
	if _, err := Decode(reseal(body)); !errors.Is(err, types.ErrCorruption) {
		t.Errorf("bad format version: Decode() = %v, want ErrCorruption", err)
	}
}
