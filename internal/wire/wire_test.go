package wire

import (
	"bytes"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<63 - 1, 1 << 63, ^uint64(0)}
	for _, v := range values {
		var w Writer
		appendVarint(&w.b, v)
		r := NewReader(w.Bytes())
		got, err := r.ReadVarint()
		if err != nil {
			t.Fatalf("v=%d: %v", v, err)
		}
		if got != v {
			t.Fatalf("v=%d: got %d", v, got)
		}
		if !r.Done() {
			t.Fatalf("v=%d: reader not exhausted", v)
		}
	}
}

func TestNegativeInt64WidensToTwosComplement(t *testing.T) {
	var w Writer
	w.WriteInt64(1, -1)
	r := NewReader(w.Bytes())
	field, wt, err := r.ReadTag()
	if err != nil || field != 1 || wt != wireVarint {
		t.Fatalf("tag = (%d,%d), err=%v", field, wt, err)
	}
	got, err := r.ReadInt64()
	if err != nil {
		t.Fatalf("ReadInt64: %v", err)
	}
	if got != -1 {
		t.Fatalf("got %d, want -1", got)
	}
}

func TestTagByteLayout(t *testing.T) {
	tag := makeTag(5, wireLengthDelimited)
	field, wt := parseTag(tag)
	if field != 5 || wt != wireLengthDelimited {
		t.Fatalf("parseTag(makeTag(5,2)) = (%d,%d)", field, wt)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{Dataset: "accounts", Row: "r1", Column: "name", Value: `"Cash"`}
	decoded, err := DecodeMessage(EncodeMessage(m))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != m {
		t.Fatalf("decoded = %+v, want %+v", decoded, m)
	}
}

func TestEncryptedDataRoundTrip(t *testing.T) {
	e := EncryptedData{IV: []byte{1, 2, 3}, AuthTag: []byte{4, 5, 6, 7}, Data: []byte("ciphertext")}
	decoded, err := DecodeEncryptedData(EncodeEncryptedData(e))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.IV, e.IV) || !bytes.Equal(decoded.AuthTag, e.AuthTag) || !bytes.Equal(decoded.Data, e.Data) {
		t.Fatalf("decoded = %+v, want %+v", decoded, e)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	e := Envelope{
		Timestamp:   "2024-01-02T03:04:05.000Z-0001-aaaaaaaaaaaaaaaa",
		IsEncrypted: true,
		Content:     []byte{9, 9, 9},
	}
	decoded, err := DecodeEnvelope(EncodeEnvelope(e))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Timestamp != e.Timestamp || decoded.IsEncrypted != e.IsEncrypted || !bytes.Equal(decoded.Content, e.Content) {
		t.Fatalf("decoded = %+v, want %+v", decoded, e)
	}
}

func TestSyncRequestRoundTrip(t *testing.T) {
	req := SyncRequest{
		Messages: []Envelope{
			{Timestamp: "t1", IsEncrypted: false, Content: []byte("a")},
			{Timestamp: "t2", IsEncrypted: true, Content: []byte("b")},
		},
		FileID:  "file-1",
		GroupID: "group-1",
		KeyID:   "",
		Since:   "t0",
	}
	decoded, err := DecodeSyncRequest(EncodeSyncRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Messages) != 2 || decoded.FileID != req.FileID || decoded.GroupID != req.GroupID || decoded.Since != req.Since {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Messages[0].Timestamp != "t1" || decoded.Messages[1].Timestamp != "t2" {
		t.Fatalf("messages out of order: %+v", decoded.Messages)
	}
}

func TestSyncResponseRoundTrip(t *testing.T) {
	resp := SyncResponse{
		Messages: []Envelope{{Timestamp: "t1", Content: []byte("x")}},
		Merkle:   `{"hash":0}`,
	}
	decoded, err := DecodeSyncResponse(EncodeSyncResponse(resp))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Merkle != resp.Merkle || len(decoded.Messages) != 1 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	var w Writer
	w.WriteString(1, "dataset")
	w.WriteString(99, "future-field")
	w.WriteString(2, "row")
	w.WriteString(3, "col")
	w.WriteString(4, "val")

	m, err := DecodeMessage(w.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Dataset != "dataset" || m.Row != "row" || m.Column != "col" || m.Value != "val" {
		t.Fatalf("m = %+v", m)
	}
}

func TestDecodeTruncatedFails(t *testing.T) {
	m := Message{Dataset: "a", Row: "b", Column: "c", Value: "d"}
	data := EncodeMessage(m)
	_, err := DecodeMessage(data[:len(data)-2])
	if err == nil {
		t.Fatalf("expected error decoding truncated message")
	}
}
