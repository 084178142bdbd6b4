// Package pool provides zero-allocation helpers for the hot parsing path.
package pool

import (
	"strconv"
	"unsafe"
)

// BytesToString converts a byte slice to a string without allocation.
// WARNING: The returned string shares memory with the byte slice.
// Do not modify the byte slice after calling this function if you
// need the string to remain valid.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// ParseInt64 parses an int64 from a byte slice without allocation.
func ParseInt64(b []byte) (int64, error) {
	return strconv.ParseInt(BytesToString(b), 10, 64)
}

// ParseUint64 parses a uint64 from a byte slice without allocation.
func ParseUint64(b []byte) (uint64, error) {
	return strconv.ParseUint(BytesToString(b), 10, 64)
}

// ParseFloat64 parses a float64 from a byte slice without allocation.
func ParseFloat64(b []byte) (float64, error) {
	return strconv.ParseFloat(BytesToString(b), 64)
}

// Trace fields that fail to parse fall back to zero instead of failing
// the whole line. Row counts stay stable and downstream consumers treat
// zero-valued fields as unknown.

// Int64OrZero parses an int64, returning 0 on malformed input.
func Int64OrZero(b []byte) int64 {
	v, err := ParseInt64(b)
	if err != nil {
		return 0
	}
	return v
}

// Uint64OrZero parses a uint64, returning 0 on malformed input.
func Uint64OrZero(b []byte) uint64 {
	v, err := ParseUint64(b)
	if err != nil {
		return 0
	}
	return v
}

// Uint32OrZero parses a uint32, returning 0 on malformed input.
func Uint32OrZero(b []byte) uint32 {
	v, err := strconv.ParseUint(BytesToString(b), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// HexUint32OrZero parses a uint32 from a hex field with or without a
// leading "0x", returning 0 on malformed input.
func HexUint32OrZero(b []byte) uint32 {
	if len(b) > 2 && b[0] == '0' && (b[1] == 'x' || b[1] == 'X') {
		b = b[2:]
	}
	v, err := strconv.ParseUint(BytesToString(b), 16, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// Float64OrZero parses a float64, returning 0 on malformed input.
func Float64OrZero(b []byte) float64 {
	v, err := ParseFloat64(b)
	if err != nil {
		return 0
	}
	return v
}

// AppendInt64 appends an int64 to a byte slice.
func AppendInt64(dst []byte, v int64) []byte {
	return strconv.AppendInt(dst, v, 10)
}

// AppendFloat64 appends a float64 to a byte slice.
func AppendFloat64(dst []byte, v float64) []byte {
	return strconv.AppendFloat(dst, v, 'g', -1, 64)
}
