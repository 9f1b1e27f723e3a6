package wire

import "fmt"

// Message is the wire shape of a mutation record (spec §4.D table).
type Message struct {
	Dataset string
	Row     string
	Column  string
	Value   string
}

// EncodeMessage produces the protobuf body for m.
func EncodeMessage(m Message) []byte {
	var w Writer
	w.WriteString(1, m.Dataset)
	w.WriteString(2, m.Row)
	w.WriteString(3, m.Column)
	w.WriteString(4, m.Value)
	return w.Bytes()
}

// DecodeMessage parses a Message body, skipping unknown fields.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	r := NewReader(data)
	for !r.Done() {
		field, wt, err := r.ReadTag()
		if err != nil {
			return Message{}, err
		}
		switch field {
		case 1:
			if m.Dataset, err = r.ReadString(); err != nil {
				return Message{}, err
			}
		case 2:
			if m.Row, err = r.ReadString(); err != nil {
				return Message{}, err
			}
		case 3:
			if m.Column, err = r.ReadString(); err != nil {
				return Message{}, err
			}
		case 4:
			if m.Value, err = r.ReadString(); err != nil {
				return Message{}, err
			}
		default:
			if err := r.SkipField(wt); err != nil {
				return Message{}, err
			}
		}
	}
	return m, nil
}

// EncryptedData is the wire shape of an AES-GCM-encrypted payload.
type EncryptedData struct {
	IV      []byte
	AuthTag []byte
	Data    []byte
}

func EncodeEncryptedData(e EncryptedData) []byte {
	var w Writer
	w.WriteBytes(1, e.IV)
	w.WriteBytes(2, e.AuthTag)
	w.WriteBytes(3, e.Data)
	return w.Bytes()
}

func DecodeEncryptedData(data []byte) (EncryptedData, error) {
	var e EncryptedData
	r := NewReader(data)
	for !r.Done() {
		field, wt, err := r.ReadTag()
		if err != nil {
			return EncryptedData{}, err
		}
		switch field {
		case 1:
			if e.IV, err = r.ReadBytes(); err != nil {
				return EncryptedData{}, err
			}
		case 2:
			if e.AuthTag, err = r.ReadBytes(); err != nil {
				return EncryptedData{}, err
			}
		case 3:
			if e.Data, err = r.ReadBytes(); err != nil {
				return EncryptedData{}, err
			}
		default:
			if err := r.SkipField(wt); err != nil {
				return EncryptedData{}, err
			}
		}
	}
	return e, nil
}

// Envelope is the wire shape of a MessageEnvelope: a timestamp, an
// encryption flag, and an opaque content blob that is either an encoded
// Message or an encoded EncryptedData depending on IsEncrypted.
//
// spec §9 notes the original header exposes both "MessageEnvelope" and
// "MessageEnvelope_" with no observable difference; this is the one wire
// DTO both collapse to. The domain-level wrapper lives in package syncmsg.
type Envelope struct {
	Timestamp   string
	IsEncrypted bool
	Content     []byte
}

func EncodeEnvelope(e Envelope) []byte {
	var w Writer
	w.WriteString(1, e.Timestamp)
	w.WriteBool(2, e.IsEncrypted)
	w.WriteBytes(3, e.Content)
	return w.Bytes()
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	r := NewReader(data)
	for !r.Done() {
		field, wt, err := r.ReadTag()
		if err != nil {
			return Envelope{}, err
		}
		switch field {
		case 1:
			if e.Timestamp, err = r.ReadString(); err != nil {
				return Envelope{}, err
			}
		case 2:
			if e.IsEncrypted, err = r.ReadBool(); err != nil {
				return Envelope{}, err
			}
		case 3:
			if e.Content, err = r.ReadBytes(); err != nil {
				return Envelope{}, err
			}
		default:
			if err := r.SkipField(wt); err != nil {
				return Envelope{}, err
			}
		}
	}
	return e, nil
}

// SyncRequest is the wire shape of a sync RPC request.
type SyncRequest struct {
	Messages []Envelope
	FileID   string
	GroupID  string
	KeyID    string
	Since    string
}

func EncodeSyncRequest(req SyncRequest) []byte {
	var w Writer
	for _, e := range req.Messages {
		w.WriteMessage(1, EncodeEnvelope(e))
	}
	w.WriteString(2, req.FileID)
	w.WriteString(3, req.GroupID)
	w.WriteString(4, req.KeyID)
	w.WriteString(5, req.Since)
	return w.Bytes()
}

func DecodeSyncRequest(data []byte) (SyncRequest, error) {
	var req SyncRequest
	r := NewReader(data)
	for !r.Done() {
		field, wt, err := r.ReadTag()
		if err != nil {
			return SyncRequest{}, err
		}
		switch field {
		case 1:
			body, err := r.ReadBytes()
			if err != nil {
				return SyncRequest{}, err
			}
			env, err := DecodeEnvelope(body)
			if err != nil {
				return SyncRequest{}, fmt.Errorf("wire: decoding SyncRequest.messages: %w", err)
			}
			req.Messages = append(req.Messages, env)
		case 2:
			if req.FileID, err = r.ReadString(); err != nil {
				return SyncRequest{}, err
			}
		case 3:
			if req.GroupID, err = r.ReadString(); err != nil {
				return SyncRequest{}, err
			}
		case 4:
			if req.KeyID, err = r.ReadString(); err != nil {
				return SyncRequest{}, err
			}
		case 5:
			if req.Since, err = r.ReadString(); err != nil {
				return SyncRequest{}, err
			}
		default:
			if err := r.SkipField(wt); err != nil {
				return SyncRequest{}, err
			}
		}
	}
	return req, nil
}

// SyncResponse is the wire shape of a sync RPC response.
type SyncResponse struct {
	Messages []Envelope
	Merkle   string
}

func EncodeSyncResponse(resp SyncResponse) []byte {
	var w Writer
	for _, e := range resp.Messages {
		w.WriteMessage(1, EncodeEnvelope(e))
	}
	w.WriteString(2, resp.Merkle)
	return w.Bytes()
}

func DecodeSyncResponse(data []byte) (SyncResponse, error) {
	var resp SyncResponse
	r := NewReader(data)
	for !r.Done() {
		field, wt, err := r.ReadTag()
		if err != nil {
			return SyncResponse{}, err
		}
		switch field {
		case 1:
			body, err := r.ReadBytes()
			if err != nil {
				return SyncResponse{}, err
			}
			env, err := DecodeEnvelope(body)
			if err != nil {
				return SyncResponse{}, fmt.Errorf("wire: decoding SyncResponse.messages: %w", err)
			}
			resp.Messages = append(resp.Messages, env)
		case 2:
			if resp.Merkle, err = r.ReadString(); err != nil {
				return SyncResponse{}, err
			}
		default:
			if err := r.SkipField(wt); err != nil {
				return SyncResponse{}, err
			}
		}
	}
	return resp, nil
}
