package shmstore

import "github.com/spaolacci/murmur3"

// Identifier derives the segment identifier for key.
//
// It is murmur3 (32-bit, seed 0) of the key bytes, so every process computes
// the same identifier. 0 is reserved (IPC_PRIVATE for SysV) and maps to 1.
func Identifier(key string) uint32 {
	id := murmur3.Sum32([]byte(key))
	if id == 0 {
		return 1
	}

	return id
}
