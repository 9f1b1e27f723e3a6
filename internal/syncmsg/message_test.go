package syncmsg

import (
	"testing"

	"github.com/ledgerline/sync/internal/hlc"
)

func testTimestamp() hlc.Timestamp {
	return hlc.Timestamp{Millis: 1_700_000_000_000, Counter: 1, Node: "aaaaaaaaaaaaaaaa"}
}

func TestPlainEnvelopeRoundTrip(t *testing.T) {
	msg := Message{Dataset: "accounts", Row: "r1", Column: "name", Value: `"Cash"`}
	env := EncodePlain(testTimestamp(), msg)

	wireBytes := env.Encode()
	decoded, ok, err := DecodeEnvelope(wireBytes)
	if err != nil || !ok {
		t.Fatalf("DecodeEnvelope: ok=%v err=%v", ok, err)
	}
	if !decoded.Timestamp.Equal(testTimestamp()) {
		t.Fatalf("timestamp = %v, want %v", decoded.Timestamp, testTimestamp())
	}
	got, err := decoded.DecodeMessage()
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got != msg {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
}

func TestEncryptedEnvelopeRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	msg := Message{Dataset: "transactions", Row: "t1", Column: "notes", Value: `"groceries"`}

	env, err := EncryptEnvelope(testTimestamp(), key, msg)
	if err != nil {
		t.Fatalf("EncryptEnvelope: %v", err)
	}
	if !env.IsEncrypted {
		t.Fatalf("expected IsEncrypted = true")
	}

	wireBytes := env.Encode()
	decoded, ok, err := DecodeEnvelope(wireBytes)
	if err != nil || !ok {
		t.Fatalf("DecodeEnvelope: ok=%v err=%v", ok, err)
	}
	got, err := decoded.DecryptMessage(key)
	if err != nil {
		t.Fatalf("DecryptMessage: %v", err)
	}
	if got != msg {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	var key, otherKey [32]byte
	for i := range otherKey {
		otherKey[i] = byte(255 - i)
	}
	msg := Message{Dataset: "d", Row: "r", Column: "c", Value: "v"}
	env, err := EncryptEnvelope(testTimestamp(), key, msg)
	if err != nil {
		t.Fatalf("EncryptEnvelope: %v", err)
	}
	if _, err := env.DecryptMessage(otherKey); err == nil {
		t.Fatalf("expected decryption with wrong key to fail")
	}
}

func TestTombstoneDetection(t *testing.T) {
	m := Message{Dataset: "transactions", Row: "t1", Column: TombstoneColumn, Value: "1"}
	if !m.IsTombstone() {
		t.Fatalf("expected tombstone")
	}
	m.Value = "0"
	if m.IsTombstone() {
		t.Fatalf("value 0 should not be a tombstone")
	}
}

func TestEnvelopeFromWireInvalidTimestampDropped(t *testing.T) {
	env := EncodePlain(testTimestamp(), Message{Dataset: "d", Row: "r", Column: "c", Value: "v"})
	w := env.ToWire()
	w.Timestamp = "not-a-valid-timestamp"

	_, ok := EnvelopeFromWire(w)
	if ok {
		t.Fatalf("expected EnvelopeFromWire to reject a malformed timestamp")
	}
}
