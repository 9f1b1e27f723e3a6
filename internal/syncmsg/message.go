// Package syncmsg holds the domain-level mutation record, its envelope,
// and its optional AES-GCM encryption, sitting on top of the hand-rolled
// wire codec in package wire (spec §3, §4.D).
package syncmsg

import (
	"fmt"

	"github.com/ledgerline/sync/internal/hlc"
	"github.com/ledgerline/sync/internal/wire"
)

// Message represents "set column = value on row of dataset". A tombstoned
// row is a Message whose Column is the sentinel tombstone column and whose
// Value encodes the soft-delete flag (spec §3, §4.E LWW rule 3).
type Message struct {
	Dataset string
	Row     string
	Column  string
	Value   string // JSON-encoded scalar
}

// TombstoneColumn is the reserved column name that marks a row as
// soft-deleted when its value is "1".
const TombstoneColumn = "tombstone"

// IsTombstone reports whether m marks its row deleted.
func (m Message) IsTombstone() bool {
	return m.Column == TombstoneColumn && m.Value == "1"
}

func (m Message) toWire() wire.Message {
	return wire.Message{Dataset: m.Dataset, Row: m.Row, Column: m.Column, Value: m.Value}
}

func messageFromWire(w wire.Message) Message {
	return Message{Dataset: w.Dataset, Row: w.Row, Column: w.Column, Value: w.Value}
}

// Envelope frames a Message (or, if IsEncrypted, an EncryptedData wrapping
// one) with the HLC timestamp that stamped it. It is the single domain type
// for a message envelope, wrapping the wire.Envelope DTO that crosses the
// network.
type Envelope struct {
	Timestamp   hlc.Timestamp
	IsEncrypted bool
	Content     []byte // encoded Message, or encoded EncryptedData if IsEncrypted
}

// EncodePlain builds a plaintext Envelope around msg.
func EncodePlain(ts hlc.Timestamp, msg Message) Envelope {
	return Envelope{
		Timestamp:   ts,
		IsEncrypted: false,
		Content:     wire.EncodeMessage(msg.toWire()),
	}
}

// DecodeMessage extracts the plaintext Message from a non-encrypted
// envelope. Callers must check IsEncrypted first (or call Decrypt).
func (e Envelope) DecodeMessage() (Message, error) {
	if e.IsEncrypted {
		return Message{}, fmt.Errorf("syncmsg: envelope at %s is encrypted, call Decrypt", e.Timestamp)
	}
	w, err := wire.DecodeMessage(e.Content)
	if err != nil {
		return Message{}, fmt.Errorf("syncmsg: decoding message at %s: %w", e.Timestamp, err)
	}
	return messageFromWire(w), nil
}

// ToWire converts e to its protobuf wire DTO.
func (e Envelope) ToWire() wire.Envelope {
	return wire.Envelope{
		Timestamp:   e.Timestamp.String(),
		IsEncrypted: e.IsEncrypted,
		Content:     e.Content,
	}
}

// EnvelopeFromWire is the inverse of Envelope.ToWire. It returns ok=false,
// not an error, for a malformed timestamp string: spec §7's
// InvalidTimestamp policy is "drop the offending envelope; log; continue",
// which the caller (SyncEngine) implements by skipping envelopes this
// returns ok=false for.
func EnvelopeFromWire(w wire.Envelope) (env Envelope, ok bool) {
	ts, ok := hlc.Parse(w.Timestamp)
	if !ok {
		return Envelope{}, false
	}
	return Envelope{Timestamp: ts, IsEncrypted: w.IsEncrypted, Content: w.Content}, true
}

// Encode serializes e to its protobuf wire bytes (an encoded
// MessageEnvelope, per spec §4.D).
func (e Envelope) Encode() []byte {
	return wire.EncodeEnvelope(e.ToWire())
}

// DecodeEnvelope parses a wire-encoded MessageEnvelope.
func DecodeEnvelope(data []byte) (Envelope, bool, error) {
	w, err := wire.DecodeEnvelope(data)
	if err != nil {
		return Envelope{}, false, err
	}
	env, ok := EnvelopeFromWire(w)
	return env, ok, nil
}
