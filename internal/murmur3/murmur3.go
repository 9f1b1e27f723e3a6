// Package murmur3 implements MurmurHash3 (x86, 32-bit variant, seed 0),
// byte-for-byte compatible with the reference implementation, as required
// by the merkle trie's hash accumulation (spec §4.B).
package murmur3

import "encoding/binary"

const (
	c1 uint32 = 0xcc9e2d51
	c2 uint32 = 0x1b873593
)

// Sum32 hashes data with the given seed using MurmurHash3_x86_32. All
// arithmetic wraps in two's-complement 32-bit, matching Go's uint32
// overflow semantics.
func Sum32(data []byte, seed uint32) uint32 {
	h := seed
	n := len(data)
	nblocks := n / 4

	for i := 0; i < nblocks; i++ {
		k := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		k *= c1
		k = rotl32(k, 15)
		k *= c2

		h ^= k
		h = rotl32(h, 13)
		h = h*5 + 0xe6546b64
	}

	tail := data[nblocks*4:]
	var k uint32
	switch len(tail) {
	case 3:
		k ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k ^= uint32(tail[0])
		k *= c1
		k = rotl32(k, 15)
		k *= c2
		h ^= k
	}

	h ^= uint32(n)
	h = fmix32(h)
	return h
}

// SumString hashes the UTF-8 bytes of s, as used for canonical timestamp
// strings.
func SumString(s string, seed uint32) uint32 {
	return Sum32([]byte(s), seed)
}

func rotl32(x uint32, r uint) uint32 {
	return (x << r) | (x >> (32 - r))
}

func fmix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
