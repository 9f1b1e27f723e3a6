// Package syncmanager is the top-level facade a host application drives:
// it turns local create/update/delete calls into stamped envelopes via
// internal/syncengine, and drives the sync/login/budget-transfer RPCs via
// internal/transport, with a bounded retry policy around the network leg.
package syncmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/sync/internal/merkletrie"
	"github.com/ledgerline/sync/internal/repository"
	"github.com/ledgerline/sync/internal/syncengine"
	"github.com/ledgerline/sync/internal/syncmsg"
	"github.com/ledgerline/sync/internal/transport"
	"github.com/ledgerline/sync/internal/wire"
)

// defaultMaxAttempts bounds the retry loop around Transport.Sync: a tight
// loop with context cancellation and no backoff library is enough at the
// scale a single replica's sync cycle runs at.
const defaultMaxAttempts = 3

// Manager wires a SyncEngine to a Transport for one (fileID, groupID) pair.
type Manager struct {
	engine    *syncengine.SyncEngine
	transport transport.Transport
	fileID    string
	groupID   string

	maxAttempts int
	retryDelay  time.Duration
}

// New constructs a Manager. repo and keySource (keySource may be nil) build
// the engine; transport is the caller's chosen Transport implementation.
// nodeID, if non-empty, fixes the clock's node identity on a brand-new
// replica (e.g. from ClientConfig.NodeID) instead of letting the engine
// mint a random one.
func New(repo repository.Repository, keySource syncmsg.KeySource, metrics *syncengine.Metrics, tr transport.Transport, fileID, groupID, nodeID string) *Manager {
	return &Manager{
		engine:      syncengine.NewEngine(repo, keySource, metrics, nodeID),
		transport:   tr,
		fileID:      fileID,
		groupID:     groupID,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  200 * time.Millisecond,
	}
}

// Start loads the engine's persisted clock and merkle state. It must be
// called once before any other Manager method.
func (m *Manager) Start(ctx context.Context) error {
	return m.engine.Initialize(ctx)
}

// Login authenticates against the server, per spec §6.
func (m *Manager) Login(ctx context.Context, password string) error {
	return m.transport.Login(ctx, password)
}

// CreateChange stamps and applies a local mutation, the same as
// SyncEngine.CreateChange, for callers that only need the local half of
// the flow (e.g. batching several edits before the next sync cycle).
func (m *Manager) CreateChange(ctx context.Context, dataset, row, column, value string) (syncmsg.Envelope, error) {
	return m.engine.CreateChange(ctx, dataset, row, column, value)
}

// Sync runs one full sync cycle: plan a request against the server's last
// known merkle (nil on the very first cycle, forcing a full sync), send it
// with bounded retries on recoverable transport failures, and apply
// whatever the server returns. It returns the number of remote envelopes
// applied.
func (m *Manager) Sync(ctx context.Context, serverMerkle *merkletrie.Node) (applied int, err error) {
	req, err := m.engine.Plan(ctx, m.fileID, m.groupID, serverMerkle)
	if err != nil {
		return 0, fmt.Errorf("syncmanager: planning sync request: %w", err)
	}

	resp, err := m.syncWithRetry(ctx, req)
	if err != nil {
		return 0, err
	}

	applied, err = m.engine.ProcessSyncResponse(ctx, resp)
	if err != nil {
		return 0, fmt.Errorf("syncmanager: applying sync response: %w", err)
	}
	return applied, nil
}

// syncWithRetry retries m.transport.Sync up to maxAttempts times on
// transport.ErrTransport (a recoverable failure per spec §7), giving up
// immediately on transport.ErrAuth or context cancellation — both
// unrecoverable by retrying the same request.
func (m *Manager) syncWithRetry(ctx context.Context, req wire.SyncRequest) (wire.SyncResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		resp, err := m.transport.Sync(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, transport.ErrAuth) {
			return wire.SyncResponse{}, err
		}
		if !errors.Is(err, transport.ErrTransport) {
			return wire.SyncResponse{}, err
		}
		if attempt == m.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return wire.SyncResponse{}, ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
	return wire.SyncResponse{}, fmt.Errorf("syncmanager: sync failed after %d attempts: %w", m.maxAttempts, lastErr)
}

// DecodeServerMerkle parses the JSON merkle string a SyncResponse or a
// sibling status RPC carries, returning nil (not an error) for an empty
// string — the "server has no merkle yet" case Plan treats as "full sync".
func DecodeServerMerkle(jsonMerkle string) (*merkletrie.Node, error) {
	if jsonMerkle == "" {
		return nil, nil
	}
	node, err := merkletrie.Deserialize([]byte(jsonMerkle))
	if err != nil {
		return nil, fmt.Errorf("syncmanager: decoding server merkle: %w", err)
	}
	return node, nil
}

// DownloadBudget fetches the budget archive for the manager's fileID.
func (m *Manager) DownloadBudget(ctx context.Context) ([]byte, error) {
	return m.transport.DownloadBudget(ctx, m.fileID)
}

// UploadBudget uploads a budget archive under name, returning the
// server-assigned file id for subsequent syncs.
func (m *Manager) UploadBudget(ctx context.Context, name string, data []byte) (string, error) {
	return m.transport.UploadBudget(ctx, m.fileID, name, data, m.groupID)
}
