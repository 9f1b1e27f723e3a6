package syncmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerline/sync/internal/repository"
	"github.com/ledgerline/sync/internal/transport"
	"github.com/ledgerline/sync/internal/wire"
)

type fakeTransport struct {
	syncCalls   int
	failUntil   int
	failWith    error
	response    wire.SyncResponse
	loginCalled bool
	lastReq     wire.SyncRequest
}

func (f *fakeTransport) Login(ctx context.Context, password string) error {
	f.loginCalled = true
	return nil
}

func (f *fakeTransport) Sync(ctx context.Context, req wire.SyncRequest) (wire.SyncResponse, error) {
	f.syncCalls++
	f.lastReq = req
	if f.syncCalls <= f.failUntil {
		return wire.SyncResponse{}, f.failWith
	}
	return f.response, nil
}

func (f *fakeTransport) DownloadBudget(ctx context.Context, fileID string) ([]byte, error) {
	return []byte("budget-bytes"), nil
}

func (f *fakeTransport) UploadBudget(ctx context.Context, fileID, name string, data []byte, groupID string) (string, error) {
	return "new-id", nil
}

var _ transport.Transport = (*fakeTransport)(nil)

func newTestManager(t *testing.T, tr transport.Transport) *Manager {
	t.Helper()
	repo := repository.NewMemory()
	m := New(repo, nil, nil, tr, "file-1", "group-1", "")
	m.retryDelay = time.Millisecond
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return m
}

func TestSyncSucceedsOnFirstAttempt(t *testing.T) {
	ft := &fakeTransport{response: wire.SyncResponse{Merkle: `{"hash":0}`}}
	m := newTestManager(t, ft)

	applied, err := m.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied = %d, want 0 for an empty response", applied)
	}
	if ft.syncCalls != 1 {
		t.Fatalf("syncCalls = %d, want 1", ft.syncCalls)
	}
}

func TestSyncRetriesOnTransportFailure(t *testing.T) {
	ft := &fakeTransport{
		failUntil: 2,
		failWith:  transport.ErrTransport,
		response:  wire.SyncResponse{Merkle: `{"hash":0}`},
	}
	m := newTestManager(t, ft)

	applied, err := m.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied = %d, want 0", applied)
	}
	if ft.syncCalls != 3 {
		t.Fatalf("syncCalls = %d, want 3 (2 failures + 1 success)", ft.syncCalls)
	}
}

func TestSyncGivesUpAfterMaxAttempts(t *testing.T) {
	ft := &fakeTransport{failUntil: 99, failWith: transport.ErrTransport}
	m := newTestManager(t, ft)

	_, err := m.Sync(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if ft.syncCalls != m.maxAttempts {
		t.Fatalf("syncCalls = %d, want %d", ft.syncCalls, m.maxAttempts)
	}
}

func TestSyncDoesNotRetryOnAuthFailure(t *testing.T) {
	ft := &fakeTransport{failUntil: 99, failWith: transport.ErrAuth}
	m := newTestManager(t, ft)

	_, err := m.Sync(context.Background(), nil)
	if !errors.Is(err, transport.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if ft.syncCalls != 1 {
		t.Fatalf("syncCalls = %d, want 1 — auth failure must not retry", ft.syncCalls)
	}
}

func TestCreateChangeThenSyncUploadsIt(t *testing.T) {
	ft := &fakeTransport{response: wire.SyncResponse{Merkle: `{"hash":0}`}}
	m := newTestManager(t, ft)
	ctx := context.Background()

	if _, err := m.CreateChange(ctx, "transactions", "row-1", "amount", `"5.00"`); err != nil {
		t.Fatalf("CreateChange: %v", err)
	}
	if _, err := m.Sync(ctx, nil); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(ft.lastReq.Messages) != 1 {
		t.Fatalf("sync request carried %d messages, want the 1 created change", len(ft.lastReq.Messages))
	}
}

func TestDecodeServerMerkleEmptyStringIsNil(t *testing.T) {
	node, err := DecodeServerMerkle("")
	if err != nil {
		t.Fatalf("DecodeServerMerkle: %v", err)
	}
	if node != nil {
		t.Fatalf("expected nil node for empty merkle string")
	}
}

func TestDecodeServerMerkleRoundTrip(t *testing.T) {
	node, err := DecodeServerMerkle(`{"hash":42}`)
	if err != nil {
		t.Fatalf("DecodeServerMerkle: %v", err)
	}
	if node == nil || node.Hash != 42 {
		t.Fatalf("node = %+v, want hash 42", node)
	}
}

func TestUploadAndDownloadBudget(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)
	ctx := context.Background()

	id, err := m.UploadBudget(ctx, "My Budget", []byte("zip"))
	if err != nil {
		t.Fatalf("UploadBudget: %v", err)
	}
	if id != "new-id" {
		t.Fatalf("id = %q, want new-id", id)
	}

	data, err := m.DownloadBudget(ctx)
	if err != nil {
		t.Fatalf("DownloadBudget: %v", err)
	}
	if string(data) != "budget-bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestLogin(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)
	if err := m.Login(context.Background(), "hunter2"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !ft.loginCalled {
		t.Fatalf("expected Login to reach the transport")
	}
}
