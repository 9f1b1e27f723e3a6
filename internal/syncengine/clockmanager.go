package syncengine

import (
	"context"
	"fmt"

	"github.com/ledgerline/sync/internal/hlc"
	"github.com/ledgerline/sync/internal/merkletrie"
	"github.com/ledgerline/sync/internal/repository"
)

// ClockManager persists and restores the current HLC clock and merkle trie
// via the repository's sync_metadata table (the "clock" and "merkle" keys
// respectively). It is a plain value passed to and owned by one SyncEngine
// rather than a process-wide singleton, so multiple replicas in the same
// process never share clock state.
type ClockManager struct {
	repo repository.Repository
}

// NewClockManager wraps repo.
func NewClockManager(repo repository.Repository) *ClockManager {
	return &ClockManager{repo: repo}
}

// Load restores the persisted clock+merkle, or reports ok=false if no clock
// snapshot has ever been written (a brand-new replica). A missing merkle
// value with a present clock value is treated as an empty trie rather than
// an error, so an older snapshot written before the merkle key existed
// still loads.
func (cm *ClockManager) Load(ctx context.Context) (ts hlc.Timestamp, merkle *merkletrie.Node, ok bool, err error) {
	raw, found, err := cm.repo.GetSyncMetadata(ctx, repository.MetaClock)
	if err != nil {
		return hlc.Timestamp{}, nil, false, fmt.Errorf("syncengine: loading clock: %w", err)
	}
	if !found {
		return hlc.Timestamp{}, nil, false, nil
	}
	parsed, valid := hlc.Parse(raw)
	if !valid {
		return hlc.Timestamp{}, nil, false, fmt.Errorf("syncengine: corrupt clock timestamp %q", raw)
	}

	merkleRaw, merkleFound, err := cm.repo.GetSyncMetadata(ctx, repository.MetaMerkle)
	if err != nil {
		return hlc.Timestamp{}, nil, false, fmt.Errorf("syncengine: loading merkle: %w", err)
	}
	if !merkleFound {
		return parsed, merkletrie.Empty(), true, nil
	}
	node, err := merkletrie.Deserialize([]byte(merkleRaw))
	if err != nil {
		return hlc.Timestamp{}, nil, false, fmt.Errorf("syncengine: decoding merkle: %w", err)
	}
	return parsed, node, true, nil
}

// Persist writes the current clock+merkle snapshot. This must be called
// only after the database transaction storing the triggering message has
// committed — SyncEngine enforces that ordering, not this type.
func (cm *ClockManager) Persist(ctx context.Context, ts hlc.Timestamp, merkle *merkletrie.Node) error {
	if err := cm.repo.SetSyncMetadata(ctx, repository.MetaClock, ts.String()); err != nil {
		return fmt.Errorf("syncengine: persisting clock: %w", err)
	}
	merkleData, err := merkletrie.Serialize(merkle)
	if err != nil {
		return fmt.Errorf("syncengine: encoding merkle: %w", err)
	}
	if err := cm.repo.SetSyncMetadata(ctx, repository.MetaMerkle, string(merkleData)); err != nil {
		return fmt.Errorf("syncengine: persisting merkle: %w", err)
	}
	return nil
}
