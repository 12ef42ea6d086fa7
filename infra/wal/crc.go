package wal

import "hash/crc32"

// CRC32 sums data with the IEEE polynomial. Every journal frame
// carries this checksum over its header and payload.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// CRC32Valid reports whether data matches a recorded checksum. Replay
// rejects any frame that fails this check.
func CRC32Valid(data []byte, sum uint32) bool {
	return CRC32(data) == sum
}
