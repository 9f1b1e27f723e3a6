package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/ledgerline/sync/internal/hlc"
	"github.com/ledgerline/sync/internal/syncmsg"
)

type cellKey struct {
	dataset, row, column string
}

type cellState struct {
	value     string
	timestamp hlc.Timestamp
}

// Memory is an in-process Repository, the reference implementation used by
// SyncEngine's own tests. It has no durability and no secondary index; it
// exists to exercise the contract, not to be fast.
type Memory struct {
	mu sync.Mutex

	messages map[string]StoredMessage // keyed by ts.String()
	cells    map[cellKey]cellState
	rows     map[string]map[string]bool // dataset -> row id -> exists
	metadata map[string]string
}

// NewMemory returns an empty Memory repository.
func NewMemory() *Memory {
	return &Memory{
		messages: map[string]StoredMessage{},
		cells:    map[cellKey]cellState{},
		rows:     map[string]map[string]bool{},
		metadata: map[string]string{},
	}
}

func (m *Memory) InsertMessage(_ context.Context, ts hlc.Timestamp, msg syncmsg.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ts.String()
	if _, exists := m.messages[key]; exists {
		return nil // primary key on timestamp: duplicate insert is a silent no-op
	}
	m.messages[key] = StoredMessage{Timestamp: ts, Message: msg}
	return nil
}

func (m *Memory) MessageExists(_ context.Context, ts hlc.Timestamp) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.messages[ts.String()]
	return ok, nil
}

func (m *Memory) MessagesSince(_ context.Context, since hlc.Timestamp) ([]StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StoredMessage
	for _, sm := range m.messages {
		if sm.Timestamp.After(since) {
			out = append(out, sm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) AllTimestamps(_ context.Context) ([]hlc.Timestamp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]hlc.Timestamp, 0, len(m.messages))
	for _, sm := range m.messages {
		out = append(out, sm.Timestamp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *Memory) ApplyLWW(_ context.Context, ts hlc.Timestamp, msg syncmsg.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cellKey{msg.Dataset, msg.Row, msg.Column}
	if cur, ok := m.cells[key]; ok && !ts.After(cur.timestamp) {
		return nil // not newer: spec §4.E LWW rule 2, last-writer-wins means skip
	}
	m.cells[key] = cellState{value: msg.Value, timestamp: ts}

	rowSet, ok := m.rows[msg.Dataset]
	if !ok {
		rowSet = map[string]bool{}
		m.rows[msg.Dataset] = rowSet
	}
	rowSet[msg.Row] = true
	return nil
}

func (m *Memory) CellTimestamp(_ context.Context, dataset, row, column string) (hlc.Timestamp, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.cells[cellKey{dataset, row, column}]
	if !ok {
		return hlc.Timestamp{}, false, nil
	}
	return cur.timestamp, true, nil
}

func (m *Memory) GetSyncMetadata(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.metadata[key]
	return v, ok, nil
}

func (m *Memory) SetSyncMetadata(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[key] = value
	return nil
}

// Transaction snapshots state, runs body, and restores the snapshot if body
// returns an error — the same all-or-nothing guarantee spec §5 requires of
// a real SQL transaction, without taking a lock across the callback (the
// engine itself serializes all access per spec §5; Memory additionally
// guards each individual accessor for the UI's read-only queries).
func (m *Memory) Transaction(ctx context.Context, body func(ctx context.Context) error) error {
	snapshot := m.snapshot()
	if err := body(ctx); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	messages map[string]StoredMessage
	cells    map[cellKey]cellState
	rows     map[string]map[string]bool
	metadata map[string]string
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := make(map[string]StoredMessage, len(m.messages))
	for k, v := range m.messages {
		messages[k] = v
	}
	cells := make(map[cellKey]cellState, len(m.cells))
	for k, v := range m.cells {
		cells[k] = v
	}
	rows := make(map[string]map[string]bool, len(m.rows))
	for dataset, rowSet := range m.rows {
		copied := make(map[string]bool, len(rowSet))
		for r := range rowSet {
			copied[r] = true
		}
		rows[dataset] = copied
	}
	metadata := make(map[string]string, len(m.metadata))
	for k, v := range m.metadata {
		metadata[k] = v
	}
	return memorySnapshot{messages: messages, cells: cells, rows: rows, metadata: metadata}
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = s.messages
	m.cells = s.cells
	m.rows = s.rows
	m.metadata = s.metadata
}

// Rows reports the set of row ids ever touched for dataset, for test
// assertions.
func (m *Memory) Rows(dataset string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rowSet := m.rows[dataset]
	out := make([]string, 0, len(rowSet))
	for r := range rowSet {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// CellValue returns the current value of a cell, for test assertions.
func (m *Memory) CellValue(dataset, row, column string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.cells[cellKey{dataset, row, column}]
	return cur.value, ok
}
