// Package wire is a hand-rolled protobuf encoder/decoder covering exactly
// the wire types and message shapes needed for bit-exact compatibility with
// the existing server: VARINT and LENGTH_DELIMITED, over
// bool/int32/int64/string/bytes/sub-message fields.
//
// The byte-cursor primitives are golang.org/x/crypto/cryptobyte's
// Builder/String rather than a generated marshaler; cryptobyte has no
// LEB128 varint primitive, so that and the tag-byte algebra are hand-rolled
// here.
package wire

import "golang.org/x/crypto/cryptobyte"

// wireType values for the field kinds this codec supports.
const (
	wireVarint          = 0
	wireLengthDelimited = 2
)

// appendVarint appends v as base-128 little-endian with a continuation MSB.
func appendVarint(b *cryptobyte.Builder, v uint64) {
	for v >= 0x80 {
		b.AddUint8(byte(v) | 0x80)
		v >>= 7
	}
	b.AddUint8(byte(v))
}

// readVarint decodes a LEB128 varint from the front of s.
func readVarint(s *cryptobyte.String) (uint64, bool) {
	var result uint64
	var shift uint
	for {
		if len(*s) == 0 {
			return 0, false
		}
		if shift >= 64 {
			return 0, false
		}
		var b uint8
		if !s.ReadUint8(&b) {
			return 0, false
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, true
		}
		shift += 7
	}
}

// toUint64 widens a (possibly negative) int64 to its two's-complement
// uint64 representation for varint encoding: negative values are widened to
// 64 bits, not zigzag-encoded.
func toUint64(v int64) uint64 {
	return uint64(v)
}

func fromUint64(v uint64) int64 {
	return int64(v)
}

func makeTag(field int, wireType int) uint64 {
	return uint64(field)<<3 | uint64(wireType)
}

func parseTag(tag uint64) (field int, wireType int) {
	return int(tag >> 3), int(tag & 0x7)
}
