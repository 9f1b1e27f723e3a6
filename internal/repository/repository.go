// Package repository defines the persistence surface the sync engine
// consumes (spec §4.F). The engine never touches SQL or a query layer
// directly; it only sees this interface, plus the two reference adapters
// in this package (an in-memory one for tests, a crawshaw.io/sqlite-backed
// one as the production replica driver).
package repository

import (
	"context"

	"github.com/ledgerline/sync/internal/hlc"
	"github.com/ledgerline/sync/internal/syncmsg"
)

// StoredMessage is one row of the persisted message log: a timestamp plus
// the mutation it carries, keyed uniquely by Timestamp (spec §3 "Message
// log (persisted)").
type StoredMessage struct {
	Timestamp hlc.Timestamp
	Message   syncmsg.Message
}

// Metadata keys for the sync_metadata table (spec §3 "Sync metadata").
const (
	MetaClientID            = "clientId"
	MetaGroupID             = "groupId"
	MetaFileID              = "fileId"
	MetaLastSyncedTimestamp = "lastSyncedTimestamp"
	MetaClock               = "clock"
	MetaMerkle              = "merkle"
)

// Repository is the persistence contract the sync engine depends on. Every
// mutating method that participates in the "clock advance must never
// outlive a failed transaction" invariant (spec §5) is called from within
// a Transaction callback.
type Repository interface {
	// InsertMessage records a message at ts. Per spec §3 the timestamp is
	// the primary key; a duplicate insert is a silent no-op, not an error,
	// since §4.E's dedup check (MessageExists) is expected to run first but
	// a race between concurrent writers must not corrupt the log.
	InsertMessage(ctx context.Context, ts hlc.Timestamp, msg syncmsg.Message) error

	// MessageExists reports whether a message is already logged at ts,
	// used for the "apply at most once" dedup check (spec §4.E).
	MessageExists(ctx context.Context, ts hlc.Timestamp) (bool, error)

	// MessagesSince returns every logged message with timestamp strictly
	// greater than since, ordered ascending by timestamp. A zero
	// hlc.Timestamp{} (not hlc.Zero) as since means "from the beginning".
	MessagesSince(ctx context.Context, since hlc.Timestamp) ([]StoredMessage, error)

	// AllTimestamps returns every timestamp in the log, ascending, for
	// rebuilding the merkle trie during SyncEngine.Initialize.
	AllTimestamps(ctx context.Context) ([]hlc.Timestamp, error)

	// ApplyLWW idempotently upserts msg's value into the domain table named
	// by msg.Dataset, provided ts is newer than that cell's current
	// stamping timestamp (spec §4.E "LWW application"). It must be called
	// from inside a Transaction.
	ApplyLWW(ctx context.Context, ts hlc.Timestamp, msg syncmsg.Message) error

	// CellTimestamp returns the timestamp that last stamped (dataset, row,
	// column), and ok=false if that cell has never been written.
	CellTimestamp(ctx context.Context, dataset, row, column string) (hlc.Timestamp, bool, error)

	// GetSyncMetadata reads a sync_metadata value, ok=false if unset.
	GetSyncMetadata(ctx context.Context, key string) (value string, ok bool, err error)

	// SetSyncMetadata upserts a sync_metadata value.
	SetSyncMetadata(ctx context.Context, key, value string) error

	// Transaction runs body atomically. If body returns an error the
	// transaction rolls back and none of its writes are observable; the
	// message stays eligible for re-delivery by the server (spec §5, §7
	// DbTransactionError).
	Transaction(ctx context.Context, body func(ctx context.Context) error) error
}
