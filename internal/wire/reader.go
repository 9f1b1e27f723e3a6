package wire

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// ErrTruncated is returned when a message body ends mid-field.
var ErrTruncated = errors.New("wire: truncated message")

// Reader walks a protobuf message body field by field.
type Reader struct {
	s cryptobyte.String
}

// NewReader wraps data for sequential field reads.
func NewReader(data []byte) *Reader {
	return &Reader{s: cryptobyte.String(data)}
}

// Done reports whether every byte has been consumed.
func (r *Reader) Done() bool {
	return len(r.s) == 0
}

// ReadTag returns the next field number and wire type.
func (r *Reader) ReadTag() (field int, wireType int, err error) {
	tag, ok := readVarint(&r.s)
	if !ok {
		return 0, 0, fmt.Errorf("%w: reading tag", ErrTruncated)
	}
	field, wireType = parseTag(tag)
	return field, wireType, nil
}

// ReadVarint reads a raw varint payload (the caller has already consumed
// a VARINT-wiretype tag).
func (r *Reader) ReadVarint() (uint64, error) {
	v, ok := readVarint(&r.s)
	if !ok {
		return 0, fmt.Errorf("%w: reading varint", ErrTruncated)
	}
	return v, nil
}

// ReadBool reads a VARINT field as a bool (nonzero is true).
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadInt64 reads a VARINT field, un-widening it back to a signed int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	return fromUint64(v), nil
}

// ReadBytes reads a LENGTH_DELIMITED field's raw bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, ok := readVarint(&r.s)
	if !ok {
		return nil, fmt.Errorf("%w: reading length prefix", ErrTruncated)
	}
	var out cryptobyte.String
	if !r.s.ReadBytes((*[]byte)(&out), int(n)) {
		return nil, fmt.Errorf("%w: reading %d length-delimited bytes", ErrTruncated, n)
	}
	return []byte(out), nil
}

// ReadString reads a LENGTH_DELIMITED field as a UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SkipField discards the payload of a field of the given wire type, for
// forward compatibility with fields this decoder doesn't know about.
func (r *Reader) SkipField(wireType int) error {
	switch wireType {
	case wireVarint:
		if _, err := r.ReadVarint(); err != nil {
			return err
		}
	case wireLengthDelimited:
		if _, err := r.ReadBytes(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("wire: unsupported wire type %d", wireType)
	}
	return nil
}
