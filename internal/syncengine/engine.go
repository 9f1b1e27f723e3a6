// Package syncengine implements the sync engine at the center of the
// system: composing outbound sync requests, applying remote messages
// idempotently, and advancing the hybrid logical clock (spec §4.E).
package syncengine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/sync/internal/hlc"
	"github.com/ledgerline/sync/internal/merkletrie"
	"github.com/ledgerline/sync/internal/repository"
	"github.com/ledgerline/sync/internal/syncmsg"
	"github.com/ledgerline/sync/internal/wire"
)

// SyncEngine is single-threaded at the logical level (spec §5): every
// clock read-modify-write, every merkle mutation, and every LWW
// application is serialized behind engineMu, so two goroutines driving
// the same replica can never interleave a clock advance with a merkle
// update.
type SyncEngine struct {
	repo      repository.Repository
	clockMgr  *ClockManager
	keySource syncmsg.KeySource
	metrics   *Metrics
	nodeID    string // configured node id override; empty means auto-assign

	engineMu sync.Mutex
	clock    *hlc.MutableClock
	merkle   *merkletrie.Node
	groupID  string
	fileID   string
}

// NewEngine constructs a SyncEngine over repo. keySource may be nil, in
// which case CreateChange always produces plaintext envelopes and
// ProcessSyncResponse rejects any encrypted one it receives. metrics may be
// nil. nodeID, if non-empty, fixes the clock's node identity for a brand-new
// replica instead of minting a random one (e.g. a host that wants its
// device id to double as the HLC node); it has no effect once a clock has
// already been persisted.
func NewEngine(repo repository.Repository, keySource syncmsg.KeySource, metrics *Metrics, nodeID string) *SyncEngine {
	return &SyncEngine{
		repo:      repo,
		clockMgr:  NewClockManager(repo),
		keySource: keySource,
		metrics:   metrics,
		nodeID:    nodeID,
	}
}

// Initialize loads the persisted clock+merkle, or creates a fresh clock and
// an empty merkle if none has ever been persisted, then (in the fresh case)
// rebuilds the merkle by scanning every timestamp already in the message
// log — the recovery path for a clock snapshot lost to a crash mid-batch.
//
// A fresh replica's node identity is resolved, in order, from the
// configured nodeID override, a previously-minted client id already in the
// metadata store, or a freshly minted random one — and is persisted
// immediately, so the device's identity (load-bearing for HLC tie-break and
// LWW ordering) is stable across restarts even before the first local
// write or applied remote message.
func (e *SyncEngine) Initialize(ctx context.Context) error {
	e.engineMu.Lock()
	defer e.engineMu.Unlock()

	var (
		snapshotTS     hlc.Timestamp
		snapshotMerkle *merkletrie.Node
		snapshotOK     bool
		allTimestamps  []hlc.Timestamp
		groupID        string
		groupIDFound   bool
		fileID         string
		fileIDFound    bool
		clientID       string
		clientIDFound  bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapshotTS, snapshotMerkle, snapshotOK, err = e.clockMgr.Load(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		allTimestamps, err = e.repo.AllTimestamps(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		groupID, groupIDFound, err = e.repo.GetSyncMetadata(gctx, repository.MetaGroupID)
		return err
	})
	g.Go(func() error {
		var err error
		fileID, fileIDFound, err = e.repo.GetSyncMetadata(gctx, repository.MetaFileID)
		return err
	})
	g.Go(func() error {
		var err error
		clientID, clientIDFound, err = e.repo.GetSyncMetadata(gctx, repository.MetaClientID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("syncengine: initializing: %w", err)
	}
	if groupIDFound {
		e.groupID = groupID
	}
	if fileIDFound {
		e.fileID = fileID
	}

	if snapshotOK {
		e.clock = hlc.NewClock(snapshotTS)
		e.merkle = snapshotMerkle
		return nil
	}

	node := e.nodeID
	switch {
	case node != "":
		// configured override takes precedence
	case clientIDFound:
		node = clientID
	default:
		var err error
		node, err = hlc.MakeClientID()
		if err != nil {
			return fmt.Errorf("syncengine: minting client id: %w", err)
		}
	}
	if err := e.repo.SetSyncMetadata(ctx, repository.MetaClientID, node); err != nil {
		return fmt.Errorf("syncengine: persisting client id: %w", err)
	}

	e.clock = hlc.NewClock(hlc.Timestamp{Millis: 0, Counter: 0, Node: node})
	e.merkle = merkletrie.Build(allTimestamps)
	return nil
}

func (e *SyncEngine) requireInitialized() error {
	if e.clock == nil || e.merkle == nil {
		return fmt.Errorf("syncengine: Initialize must be called before use")
	}
	return nil
}

// CreateChange stamps a new local mutation, persists it to the message log
// and applies it to the domain table in one transaction, folds its
// timestamp into the local merkle, and only then persists the advanced
// clock+merkle snapshot — matching spec §5's "no suspension between
// clock.send() and insertMessage" rule by doing the clock advance and the
// transaction in the same critical section and deferring the durable clock
// write until after commit.
func (e *SyncEngine) CreateChange(ctx context.Context, dataset, row, column, value string) (syncmsg.Envelope, error) {
	e.engineMu.Lock()
	defer e.engineMu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return syncmsg.Envelope{}, err
	}

	ts, err := e.clock.Send(hlc.Now())
	if err != nil {
		return syncmsg.Envelope{}, err
	}

	msg := syncmsg.Message{Dataset: dataset, Row: row, Column: column, Value: value}

	err = e.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := e.repo.InsertMessage(ctx, ts, msg); err != nil {
			return err
		}
		return e.repo.ApplyLWW(ctx, ts, msg)
	})
	if err != nil {
		return syncmsg.Envelope{}, fmt.Errorf("%w: %v", ErrDbTransaction, err)
	}

	merkletrie.Insert(e.merkle, ts)

	if err := e.clockMgr.Persist(ctx, ts, e.merkle); err != nil {
		return syncmsg.Envelope{}, err
	}
	e.metrics.incCreated()

	env, err := e.buildOutboundEnvelope(ts, msg, e.groupID)
	if err != nil {
		return syncmsg.Envelope{}, err
	}
	return env, nil
}

func (e *SyncEngine) buildOutboundEnvelope(ts hlc.Timestamp, msg syncmsg.Message, groupID string) (syncmsg.Envelope, error) {
	if e.keySource == nil {
		return syncmsg.EncodePlain(ts, msg), nil
	}
	key, err := e.keySource.Key(groupID)
	if err != nil {
		return syncmsg.Envelope{}, fmt.Errorf("syncengine: resolving encryption key: %w", err)
	}
	return syncmsg.EncryptEnvelope(ts, key, msg)
}

// lastSyncedTimestamp reads the persisted high-water mark, defaulting to
// hlc.Zero for a replica that has never synced.
func (e *SyncEngine) lastSyncedTimestamp(ctx context.Context) (hlc.Timestamp, error) {
	raw, ok, err := e.repo.GetSyncMetadata(ctx, repository.MetaLastSyncedTimestamp)
	if err != nil {
		return hlc.Timestamp{}, err
	}
	if !ok {
		return hlc.Zero, nil
	}
	ts, valid := hlc.Parse(raw)
	if !valid {
		return hlc.Zero, fmt.Errorf("syncengine: corrupt lastSyncedTimestamp %q", raw)
	}
	return ts, nil
}

// BuildSyncRequest returns every locally-pending envelope since the last
// sync (or since the beginning, if fullSync) for fileID/groupID (spec
// §4.E).
func (e *SyncEngine) BuildSyncRequest(ctx context.Context, fileID, groupID string, fullSync bool) (wire.SyncRequest, error) {
	e.engineMu.Lock()
	defer e.engineMu.Unlock()
	if err := e.requireInitialized(); err != nil {
		return wire.SyncRequest{}, err
	}

	since := hlc.Zero
	if !fullSync {
		var err error
		since, err = e.lastSyncedTimestamp(ctx)
		if err != nil {
			return wire.SyncRequest{}, err
		}
	}
	return e.buildRequestSince(ctx, fileID, groupID, since)
}

// BuildIncrementalSyncRequest diffs the local merkle against serverMerkle
// to find the earliest point of divergence and returns every local
// envelope since that minute (spec §4.E).
func (e *SyncEngine) BuildIncrementalSyncRequest(ctx context.Context, fileID, groupID string, serverMerkle *merkletrie.Node) (wire.SyncRequest, error) {
	e.engineMu.Lock()
	defer e.engineMu.Unlock()
	if err := e.requireInitialized(); err != nil {
		return wire.SyncRequest{}, err
	}

	divergeMs := merkletrie.Diff(e.merkle, serverMerkle)
	if divergeMs == nil {
		e.metrics.setDivergentMinute(0)
		return wire.SyncRequest{FileID: fileID, GroupID: groupID, Since: hlc.Max.String()}, nil
	}
	e.metrics.setDivergentMinute(*divergeMs)
	since := hlc.SinceMillis(*divergeMs)
	return e.buildRequestSince(ctx, fileID, groupID, since)
}

func (e *SyncEngine) buildRequestSince(ctx context.Context, fileID, groupID string, since hlc.Timestamp) (wire.SyncRequest, error) {
	if fileID != e.fileID {
		if err := e.repo.SetSyncMetadata(ctx, repository.MetaFileID, fileID); err != nil {
			return wire.SyncRequest{}, fmt.Errorf("syncengine: persisting file id: %w", err)
		}
		e.fileID = fileID
	}

	stored, err := e.repo.MessagesSince(ctx, since)
	if err != nil {
		return wire.SyncRequest{}, err
	}

	envelopes := make([]wire.Envelope, 0, len(stored))
	for _, sm := range stored {
		env, err := e.buildOutboundEnvelope(sm.Timestamp, sm.Message, groupID)
		if err != nil {
			return wire.SyncRequest{}, err
		}
		envelopes = append(envelopes, env.ToWire())
	}

	return wire.SyncRequest{
		Messages: envelopes,
		FileID:   fileID,
		GroupID:  groupID,
		KeyID:    "",
		Since:    since.String(),
	}, nil
}

// IsInSync reports whether the local merkle's root hash matches the
// server's (spec §4.E).
func (e *SyncEngine) IsInSync(serverMerkleRootHash int32) bool {
	e.engineMu.Lock()
	defer e.engineMu.Unlock()
	if e.merkle == nil {
		return false
	}
	return e.merkle.Hash == serverMerkleRootHash
}

// Plan chooses between a full and an incremental sync request: a full sync
// when the caller has no server merkle to compare against yet (first sync
// ever, or after a budget-file download), an incremental one otherwise.
func (e *SyncEngine) Plan(ctx context.Context, fileID, groupID string, serverMerkle *merkletrie.Node) (wire.SyncRequest, error) {
	if serverMerkle == nil {
		return e.BuildSyncRequest(ctx, fileID, groupID, true)
	}
	return e.BuildIncrementalSyncRequest(ctx, fileID, groupID, serverMerkle)
}

// ProcessSyncResponse decodes, dedupes, and applies every envelope in resp,
// in ascending timestamp order regardless of delivery order (spec §5). The
// whole batch's clock merge is validated before the transaction that
// inserts the messages is allowed to commit, so a message is never marked
// durable (and thus permanently deduped via MessageExists on a later
// retry) without the clock and merkle advance that belongs with it.
func (e *SyncEngine) ProcessSyncResponse(ctx context.Context, resp wire.SyncResponse) (applied int, err error) {
	e.engineMu.Lock()
	defer e.engineMu.Unlock()
	if err := e.requireInitialized(); err != nil {
		return 0, err
	}
	e.metrics.incSyncCycle()

	type decoded struct {
		env syncmsg.Envelope
		msg syncmsg.Message
	}
	var candidates []decoded

	for _, w := range resp.Messages {
		env, ok := syncmsg.EnvelopeFromWire(w)
		if !ok {
			// spec §7 InvalidTimestamp: drop the offending envelope, continue.
			continue
		}

		var msg syncmsg.Message
		if env.IsEncrypted {
			if e.keySource == nil {
				continue
			}
			key, keyErr := e.keySource.Key(e.groupID)
			if keyErr != nil {
				continue
			}
			var decErr error
			msg, decErr = env.DecryptMessage(key)
			if decErr != nil {
				e.metrics.incDecryptFailure()
				continue
			}
		} else {
			var decErr error
			msg, decErr = env.DecodeMessage()
			if decErr != nil {
				continue
			}
		}
		candidates = append(candidates, decoded{env: env, msg: msg})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].env.Timestamp.Before(candidates[j].env.Timestamp)
	})

	var toApply []decoded
	for _, c := range candidates {
		exists, err := e.repo.MessageExists(ctx, c.env.Timestamp)
		if err != nil {
			return 0, err
		}
		if exists {
			e.metrics.incSkipped()
			continue
		}
		toApply = append(toApply, c)
	}

	if len(toApply) == 0 {
		return 0, nil
	}

	// Validate the whole batch merges into the clock cleanly before
	// committing anything: a message must never become durable (and thus
	// permanently deduped via MessageExists) without the clock and merkle
	// advance that is supposed to accompany it. PeekRecv replays the merge
	// against a chained, unmutated copy of the clock state; once every
	// envelope in the batch is known to merge without drift or counter
	// overflow, the real Recv calls after the commit below are guaranteed
	// to retrace the same merges and cannot fail. Both passes use the same
	// wall-clock reading so that the merges really are identical.
	now := hlc.Now()
	peeked := e.clock.Snapshot()
	for _, c := range toApply {
		var err error
		peeked, err = e.clock.PeekRecv(peeked, c.env.Timestamp, now)
		if err != nil {
			return 0, err
		}
	}

	err = e.repo.Transaction(ctx, func(ctx context.Context) error {
		for _, c := range toApply {
			if err := e.repo.InsertMessage(ctx, c.env.Timestamp, c.msg); err != nil {
				return err
			}
			if err := e.repo.ApplyLWW(ctx, c.env.Timestamp, c.msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDbTransaction, err)
	}

	maxTS := toApply[0].env.Timestamp
	for _, c := range toApply {
		if _, recvErr := e.clock.Recv(c.env.Timestamp, now); recvErr != nil {
			return 0, recvErr
		}
		merkletrie.Insert(e.merkle, c.env.Timestamp)
		if c.env.Timestamp.After(maxTS) {
			maxTS = c.env.Timestamp
		}
		e.metrics.incApplied()
	}

	existingLast, err := e.lastSyncedTimestamp(ctx)
	if err != nil {
		return 0, err
	}
	newLast := existingLast
	if maxTS.After(newLast) {
		newLast = maxTS
	}
	if err := e.repo.SetSyncMetadata(ctx, repository.MetaLastSyncedTimestamp, newLast.String()); err != nil {
		return 0, err
	}

	if err := e.clockMgr.Persist(ctx, e.clock.Snapshot(), e.merkle); err != nil {
		return 0, err
	}

	return len(toApply), nil
}

// LocalMerkle returns the engine's live merkle trie (not a copy), for
// callers building a server-merkle comparison or a diagnostic view; later
// engine mutations are visible through it. Callers must not mutate the
// returned node.
func (e *SyncEngine) LocalMerkle() *merkletrie.Node {
	e.engineMu.Lock()
	defer e.engineMu.Unlock()
	return e.merkle
}

// ClockSnapshot returns the engine's current clock value.
func (e *SyncEngine) ClockSnapshot() hlc.Timestamp {
	e.engineMu.Lock()
	defer e.engineMu.Unlock()
	return e.clock.Snapshot()
}
