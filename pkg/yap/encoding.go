package yap

import (
	"encoding/binary"
	"math"
)

// The yap metadata table stores its two well-known rows as fixed-width
// binary blobs (spec §6): "user_version" as a big-endian int64, and
// "lastWriteTimestamp" as a big-endian float64 bit pattern. Both are
// internal-only wire formats; user collections are untouched opaque
// blobs handled by yap_store.

func encodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeInt64(b []byte) (int64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(b)), true
}

func encodeFloat64(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func decodeFloat64(b []byte) (float64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), true
}
