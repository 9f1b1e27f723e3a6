// Package transport defines the sync RPC and budget-file transfer contract
// the engine's caller depends on (spec §4.G), plus an HTTP implementation
// of it (spec §6).
package transport

import (
	"context"
	"errors"

	"github.com/ledgerline/sync/internal/wire"
)

// ErrAuth is returned for a 401/403 response (spec §7 AuthFailure): the
// transport has already cleared its session token, and the caller surfaces
// this to the user without mutating any sync state.
var ErrAuth = errors.New("transport: authentication failed")

// ErrTransport wraps a recoverable network or server failure (spec §7
// TransportFailure): outbound messages stay pending and the next sync
// cycle retries.
var ErrTransport = errors.New("transport: request failed")

// Transport is the network contract SyncManager depends on. The engine
// itself never imports this package directly (spec §1: "the engine only
// sees a Repository interface and a Transport interface").
type Transport interface {
	// Login exchanges a password for a session token. The token is
	// thereafter attached by the Transport itself to Sync/Download/Upload
	// calls; it is not returned to the caller to store.
	Login(ctx context.Context, password string) error

	// Sync performs one sync RPC, posting req and returning the server's
	// response.
	Sync(ctx context.Context, req wire.SyncRequest) (wire.SyncResponse, error)

	// DownloadBudget fetches the zip archive for fileID (spec §6 "Budget
	// file").
	DownloadBudget(ctx context.Context, fileID string) ([]byte, error)

	// UploadBudget uploads a budget file and returns the server-assigned
	// id.
	UploadBudget(ctx context.Context, fileID, name string, data []byte, groupID string) (string, error)
}
