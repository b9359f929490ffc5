// ABOUTME: Order-preserving encoding for composite keys and records
// ABOUTME: Supports multiple data types with lexicographic ordering

package storage

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Value types for composite keys
const (
	TYPE_BYTES  = 1
	TYPE_INT64  = 2
	TYPE_UINT64 = 3
	TYPE_TIME   = 4 // Stored as int64 Unix nanoseconds
	TYPE_BOOL   = 5
)

// Value represents a single value in a composite key or record
type Value struct {
	Type uint8
	Str  []byte
	I64  int64
	U64  uint64
	Bool bool
	Time time.Time
}

// NewBytesValue creates a bytes value
func NewBytesValue(data []byte) Value {
	return Value{Type: TYPE_BYTES, Str: data}
}

// NewStringValue creates a bytes value from a string
func NewStringValue(s string) Value {
	return Value{Type: TYPE_BYTES, Str: []byte(s)}
}

// NewInt64Value creates an int64 value
func NewInt64Value(i int64) Value {
	return Value{Type: TYPE_INT64, I64: i}
}

// NewUint64Value creates a uint64 value
func NewUint64Value(u uint64) Value {
	return Value{Type: TYPE_UINT64, U64: u}
}

// NewBoolValue creates a bool value
func NewBoolValue(b bool) Value {
	return Value{Type: TYPE_BOOL, Bool: b}
}

// NewTimeValue creates a time value
func NewTimeValue(t time.Time) Value {
	return Value{Type: TYPE_TIME, Time: t}
}

// String returns the bytes payload as a string
func (v Value) String() string {
	return string(v.Str)
}

// EncodeValues encodes multiple values in order-preserving format
// Each value is tagged with its type to prevent collisions with 0xFF
func EncodeValues(vals []Value) []byte {
	out := make([]byte, 0, 128)
	for _, v := range vals {
		out = append(out, byte(v.Type))

		switch v.Type {
		case TYPE_INT64:
			// Flip sign bit for proper ordering
			out = appendUint64(out, uint64(v.I64)+(1<<63))

		case TYPE_UINT64:
			out = appendUint64(out, v.U64)

		case TYPE_TIME:
			out = appendUint64(out, uint64(v.Time.UnixNano())+(1<<63))

		case TYPE_BOOL:
			if v.Bool {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}

		case TYPE_BYTES:
			// Escape and null-terminate
			out = append(out, escapeString(v.Str)...)
			out = append(out, 0)

		default:
			panic(fmt.Sprintf("unknown type: %d", v.Type))
		}
	}
	return out
}

func appendUint64(out []byte, u uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	return append(out, buf[:]...)
}

// escapeString escapes null bytes and 0xFF for embedding in keys
func escapeString(s []byte) []byte {
	escapes := 0
	for _, b := range s {
		if b == 0 || b == 0xFE || b == 0xFF {
			escapes++
		}
	}

	if escapes == 0 {
		return s
	}

	out := make([]byte, 0, len(s)+escapes)
	for _, b := range s {
		switch b {
		case 0, 0xFE, 0xFF:
			out = append(out, 0xFE, b)
		default:
			out = append(out, b)
		}
	}
	return out
}

// unescapeString reverses escapeString
func unescapeString(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 0xFE && i+1 < len(s) {
			out = append(out, s[i+1])
			i++
		} else {
			out = append(out, s[i])
		}
	}
	return out
}

// DecodeValues decodes values from encoded format
func DecodeValues(data []byte) ([]Value, error) {
	vals := make([]Value, 0, 8)
	pos := 0

	for pos < len(data) {
		typ := data[pos]
		pos++

		switch typ {
		case TYPE_INT64, TYPE_UINT64, TYPE_TIME:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("%w: incomplete fixed-width value at pos %d", ErrCorrupted, pos)
			}
			u := binary.BigEndian.Uint64(data[pos : pos+8])
			pos += 8
			switch typ {
			case TYPE_INT64:
				vals = append(vals, NewInt64Value(int64(u-(1<<63))))
			case TYPE_UINT64:
				vals = append(vals, NewUint64Value(u))
			default:
				vals = append(vals, NewTimeValue(time.Unix(0, int64(u-(1<<63))).UTC()))
			}

		case TYPE_BOOL:
			if pos >= len(data) {
				return nil, fmt.Errorf("%w: incomplete bool at pos %d", ErrCorrupted, pos)
			}
			vals = append(vals, NewBoolValue(data[pos] == 1))
			pos++

		case TYPE_BYTES:
			// Find the unescaped null terminator
			end := pos
			for end < len(data) && data[end] != 0 {
				if data[end] == 0xFE {
					end++
				}
				end++
			}
			if end >= len(data) {
				return nil, fmt.Errorf("%w: unterminated string at pos %d", ErrCorrupted, pos)
			}
			vals = append(vals, NewBytesValue(unescapeString(data[pos:end])))
			pos = end + 1

		default:
			return nil, fmt.Errorf("%w: unknown type %d at pos %d", ErrCorrupted, typ, pos-1)
		}
	}

	return vals, nil
}

// EncodeKey encodes a composite key with prefix
func EncodeKey(prefix uint32, vals []Value) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], prefix)
	out := append([]byte{}, buf[:]...)
	return append(out, EncodeValues(vals)...)
}

// ExtractPrefix extracts the prefix from an encoded key
func ExtractPrefix(key []byte) uint32 {
	if len(key) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(key[:4])
}

// ExtractValues extracts and decodes values from an encoded key
func ExtractValues(key []byte) ([]Value, error) {
	if len(key) < 4 {
		return nil, fmt.Errorf("%w: key too short", ErrCorrupted)
	}
	return DecodeValues(key[4:])
}
