package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ledgerline/sync/internal/wire"
)

func TestLoginSetsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account/login" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data":   map[string]string{"token": "tok-123"},
		})
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPTransport: %v", err)
	}
	if err := tr.Login(context.Background(), "hunter2"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tr.currentToken() != "tok-123" {
		t.Fatalf("token = %q, want tok-123", tr.currentToken())
	}
}

func TestLoginAuthFailureClearsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPTransport: %v", err)
	}
	tr.setToken("stale")
	err = tr.Login(context.Background(), "wrong")
	if err != ErrAuth {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if tr.currentToken() != "" {
		t.Fatalf("token should be cleared after auth failure")
	}
}

func TestSyncRoundTrip(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(tokenHeader)
		body := wire.EncodeSyncResponse(wire.SyncResponse{Merkle: `{"hash":0}`})
		w.Write(body)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPTransport: %v", err)
	}
	tr.setToken("tok-abc")

	resp, err := tr.Sync(context.Background(), wire.SyncRequest{FileID: "f1"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if resp.Merkle != `{"hash":0}` {
		t.Fatalf("merkle = %q", resp.Merkle)
	}
	if gotToken != "tok-abc" {
		t.Fatalf("token header = %q, want tok-abc", gotToken)
	}
}

func TestSyncServerErrorIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPTransport: %v", err)
	}
	_, err = tr.Sync(context.Background(), wire.SyncRequest{})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport on 503", err)
	}
}

func TestUploadBudgetSetsHeaders(t *testing.T) {
	var gotFileID, gotName, gotGroup string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFileID = r.Header.Get(fileIDHeader)
		gotName = r.Header.Get(nameHeader)
		gotGroup = r.Header.Get(groupIDHeader)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data":   map[string]string{"id": "new-file-id"},
		})
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPTransport: %v", err)
	}
	id, err := tr.UploadBudget(context.Background(), "f1", "My Budget", []byte("zipdata"), "g1")
	if err != nil {
		t.Fatalf("UploadBudget: %v", err)
	}
	if id != "new-file-id" {
		t.Fatalf("id = %q", id)
	}
	if gotFileID != "f1" || gotName != "My Budget" || gotGroup != "g1" {
		t.Fatalf("headers = (%q,%q,%q)", gotFileID, gotName, gotGroup)
	}
}
