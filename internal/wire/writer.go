package wire

import "golang.org/x/crypto/cryptobyte"

// Writer accumulates a single protobuf message body field by field, in
// ascending field-number order by convention (not required by the wire
// format, but how every encoder in this package is written).
type Writer struct {
	b cryptobyte.Builder
}

// Bytes returns the accumulated, encoded message body.
func (w *Writer) Bytes() []byte {
	return w.b.BytesOrPanic()
}

func (w *Writer) writeTag(field, wireType int) {
	appendVarint(&w.b, makeTag(field, wireType))
}

// WriteBool writes a bool field as VARINT 0/1.
func (w *Writer) WriteBool(field int, v bool) {
	w.writeTag(field, wireVarint)
	if v {
		appendVarint(&w.b, 1)
	} else {
		appendVarint(&w.b, 0)
	}
}

// WriteInt64 writes an int32/int64 field as an unsigned varint encoding of
// its two's-complement bit pattern (spec §4.D).
func (w *Writer) WriteInt64(field int, v int64) {
	w.writeTag(field, wireVarint)
	appendVarint(&w.b, toUint64(v))
}

// WriteString writes a UTF-8 string as a length-delimited field.
func (w *Writer) WriteString(field int, s string) {
	w.WriteBytes(field, []byte(s))
}

// WriteBytes writes a length-delimited bytes field.
func (w *Writer) WriteBytes(field int, data []byte) {
	w.writeTag(field, wireLengthDelimited)
	appendVarint(&w.b, uint64(len(data)))
	w.b.AddBytes(data)
}

// WriteMessage writes a length-delimited sub-message field whose body has
// already been encoded.
func (w *Writer) WriteMessage(field int, body []byte) {
	w.WriteBytes(field, body)
}
