package hash

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a new streaming CRC32-Castagnoli hash.Hash32.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}

// Sizes fingerprints an ordered sequence of sizes.
//
// Two sequences hash equal only if they have the same length and the same
// values in the same order (up to CRC collisions).
func Sizes(sizes []int64) uint32 {
	h := NewCRC32C()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(sizes)))
	_, _ = h.Write(buf[:])
	for _, s := range sizes {
		binary.BigEndian.PutUint64(buf[:], uint64(s))
		_, _ = h.Write(buf[:])
	}
	return h.Sum32()
}
