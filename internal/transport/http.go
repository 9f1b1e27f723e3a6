package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/ledgerline/sync/internal/wire"
)

// Request header names per spec §6.
const (
	tokenHeader   = "X-ACTUAL-TOKEN"
	fileIDHeader  = "X-ACTUAL-FILE-ID"
	nameHeader    = "X-ACTUAL-NAME"
	groupIDHeader = "X-ACTUAL-GROUP-ID"
)

// HTTPTransport implements Transport against the REST/protobuf endpoints
// in spec §6. It owns its own http.Client, tuned for the long-lived,
// frequently-reused connection a sync client holds open to one server
// (golang.org/x/net/http2.ConfigureTransport enables HTTP/2 on it).
type HTTPTransport struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	token string
}

// NewHTTPTransport builds a Transport for baseURL (e.g.
// "https://my-actual-server.example.com").
func NewHTTPTransport(baseURL string) (*HTTPTransport, error) {
	rt := &http.Transport{}
	if err := http2.ConfigureTransport(rt); err != nil {
		return nil, fmt.Errorf("transport: configuring http2: %w", err)
	}
	return &HTTPTransport{
		baseURL: baseURL,
		client:  &http.Client{Transport: rt, Timeout: 60 * time.Second},
	}, nil
}

func (t *HTTPTransport) setToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

func (t *HTTPTransport) currentToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Status string `json:"status"`
	Data   struct {
		Token string `json:"token"`
	} `json:"data"`
}

func (t *HTTPTransport) Login(ctx context.Context, password string) error {
	body, err := json.Marshal(loginRequest{Password: password})
	if err != nil {
		return fmt.Errorf("transport: encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/account/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		t.setToken("")
		return ErrAuth
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: login returned status %d", ErrTransport, resp.StatusCode)
	}

	var decoded loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%w: decoding login response: %v", ErrTransport, err)
	}
	t.setToken(decoded.Data.Token)
	return nil
}

func (t *HTTPTransport) Sync(ctx context.Context, syncReq wire.SyncRequest) (wire.SyncResponse, error) {
	body := wire.EncodeSyncRequest(syncReq)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/sync/sync", bytes.NewReader(body))
	if err != nil {
		return wire.SyncResponse{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(tokenHeader, t.currentToken())

	resp, err := t.client.Do(req)
	if err != nil {
		return wire.SyncResponse{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := t.checkStatus(resp); err != nil {
		return wire.SyncResponse{}, err
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.SyncResponse{}, fmt.Errorf("%w: reading sync response: %v", ErrTransport, err)
	}
	decoded, err := wire.DecodeSyncResponse(respBody)
	if err != nil {
		// Protobuf decode failures are fatal for this request only; the
		// caller retries on the next sync cycle (spec §7
		// ProtobufDecodeError).
		return wire.SyncResponse{}, fmt.Errorf("transport: decoding sync response: %w", err)
	}
	return decoded, nil
}

func (t *HTTPTransport) DownloadBudget(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/sync/download-user-file?fileId="+fileID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(tokenHeader, t.currentToken())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := t.checkStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading budget archive: %v", ErrTransport, err)
	}
	return data, nil
}

func (t *HTTPTransport) UploadBudget(ctx context.Context, fileID, name string, data []byte, groupID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/sync/upload-user-file", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(tokenHeader, t.currentToken())
	req.Header.Set(fileIDHeader, fileID)
	req.Header.Set(nameHeader, name)
	req.Header.Set(groupIDHeader, groupID)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := t.checkStatus(resp); err != nil {
		return "", err
	}

	var decoded struct {
		Status string `json:"status"`
		Data   struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decoding upload response: %v", ErrTransport, err)
	}
	return decoded.Data.ID, nil
}

func (t *HTTPTransport) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		t.setToken("")
		return ErrAuth
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned status %d", ErrTransport, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: request returned status %d", ErrTransport, resp.StatusCode)
	}
	return nil
}
