package archive

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - mission/{name}/m
// - mission/{name}/f/{seq_be8}
var (
	missionPrefix = []byte("mission/")
	metaSuffix    = []byte("/m")
	frameSeg      = []byte("/f/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyMeta builds the mission metadata key.
func keyMeta(name string) []byte {
	k := make([]byte, 0, len(name)+16)
	k = append(k, missionPrefix...)
	k = append(k, name...)
	k = append(k, metaSuffix...)
	return k
}

// keyFrame builds the frame key with a big-endian sequence for proper ordering.
func keyFrame(name string, seq uint64) []byte {
	k := make([]byte, 0, len(name)+24)
	k = append(k, missionPrefix...)
	k = append(k, name...)
	k = append(k, frameSeg...)
	k = appendBE8(k, seq)
	return k
}

// keyFramePrefix returns the scan range [lo, hi) covering every frame of
// a mission. The upper bound bumps the final prefix byte so every
// longer key under the prefix sorts inside the range.
func keyFramePrefix(name string) (lo, hi []byte) {
	lo = make([]byte, 0, len(name)+16)
	lo = append(lo, missionPrefix...)
	lo = append(lo, name...)
	lo = append(lo, frameSeg...)
	return lo, upperBound(lo)
}

// keyMissionRange returns the scan range covering everything stored for a
// mission, meta included.
func keyMissionRange(name string) (lo, hi []byte) {
	lo = make([]byte, 0, len(name)+12)
	lo = append(lo, missionPrefix...)
	lo = append(lo, name...)
	lo = append(lo, '/')
	return lo, upperBound(lo)
}

func upperBound(prefix []byte) []byte {
	hi := append([]byte{}, prefix...)
	hi[len(hi)-1]++
	return hi
}
