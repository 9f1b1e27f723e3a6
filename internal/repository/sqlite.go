package repository

import (
	"context"
	"fmt"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/ledgerline/sync/internal/hlc"
	"github.com/ledgerline/sync/internal/syncmsg"
)

// schema creates the message log, the per-cell LWW stamping index, and the
// sync metadata table. Domain data tables (accounts, transactions, ...)
// are owned by the host application's own generated query layer (spec §1
// Non-goals); SQLite, an in-scope adapter here, only needs to track which
// timestamp last stamped each (dataset, row, column) to implement LWW,
// plus a generic key/value cell store so this adapter is usable without a
// host schema in tests.
const schema = `
CREATE TABLE IF NOT EXISTS sync_messages (
	timestamp TEXT PRIMARY KEY,
	dataset   TEXT NOT NULL,
	row       TEXT NOT NULL,
	column    TEXT NOT NULL,
	value     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_cells (
	dataset   TEXT NOT NULL,
	row       TEXT NOT NULL,
	column    TEXT NOT NULL,
	value     TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	PRIMARY KEY (dataset, row, column)
);
CREATE TABLE IF NOT EXISTS sync_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLite is a crawshaw.io/sqlite-backed Repository: the reference
// production adapter for the local replica named in spec §6 ("Budget
// file... db.sqlite").
type SQLite struct {
	pool *sqlitex.Pool
}

// OpenSQLite opens (creating if necessary) the sqlite database at path and
// ensures the schema above exists.
func OpenSQLite(path string) (*SQLite, error) {
	pool, err := sqlitex.Open(path, 0, 10)
	if err != nil {
		return nil, fmt.Errorf("repository: opening sqlite at %s: %w", path, err)
	}
	conn := pool.Get(nil)
	defer pool.Put(conn)
	if err := sqlitex.ExecScript(conn, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository: creating schema: %w", err)
	}
	return &SQLite{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

type txnConnKey struct{}

// conn returns the connection bound to an in-flight Transaction, if ctx
// carries one, so every repository call inside a Transaction body
// participates in the same SQLite transaction; otherwise it checks one out
// of the pool for the duration of the call.
func (s *SQLite) conn(ctx context.Context) (*sqlite.Conn, func()) {
	if conn, ok := ctx.Value(txnConnKey{}).(*sqlite.Conn); ok {
		return conn, func() {}
	}
	conn := s.pool.Get(ctx)
	return conn, func() { s.pool.Put(conn) }
}

func (s *SQLite) InsertMessage(ctx context.Context, ts hlc.Timestamp, msg syncmsg.Message) error {
	conn, done := s.conn(ctx)
	defer done()
	err := sqlitex.Exec(conn,
		`INSERT OR IGNORE INTO sync_messages (timestamp, dataset, row, column, value) VALUES (?, ?, ?, ?, ?)`,
		nil, ts.String(), msg.Dataset, msg.Row, msg.Column, msg.Value)
	if err != nil {
		return fmt.Errorf("repository: inserting message at %s: %w", ts, err)
	}
	return nil
}

func (s *SQLite) MessageExists(ctx context.Context, ts hlc.Timestamp) (bool, error) {
	conn, done := s.conn(ctx)
	defer done()
	exists := false
	err := sqlitex.Exec(conn, `SELECT 1 FROM sync_messages WHERE timestamp = ?`,
		func(stmt *sqlite.Stmt) error {
			exists = true
			return nil
		}, ts.String())
	if err != nil {
		return false, fmt.Errorf("repository: checking message at %s: %w", ts, err)
	}
	return exists, nil
}

func (s *SQLite) MessagesSince(ctx context.Context, since hlc.Timestamp) ([]StoredMessage, error) {
	conn, done := s.conn(ctx)
	defer done()

	var out []StoredMessage
	err := sqlitex.Exec(conn,
		`SELECT timestamp, dataset, row, column, value FROM sync_messages WHERE timestamp > ? ORDER BY timestamp ASC`,
		func(stmt *sqlite.Stmt) error {
			tsStr := stmt.ColumnText(0)
			ts, ok := hlc.Parse(tsStr)
			if !ok {
				return fmt.Errorf("repository: corrupt timestamp %q in sync_messages", tsStr)
			}
			out = append(out, StoredMessage{
				Timestamp: ts,
				Message: syncmsg.Message{
					Dataset: stmt.ColumnText(1),
					Row:     stmt.ColumnText(2),
					Column:  stmt.ColumnText(3),
					Value:   stmt.ColumnText(4),
				},
			})
			return nil
		}, since.String())
	if err != nil {
		return nil, fmt.Errorf("repository: scanning messages since %s: %w", since, err)
	}
	return out, nil
}

func (s *SQLite) AllTimestamps(ctx context.Context) ([]hlc.Timestamp, error) {
	conn, done := s.conn(ctx)
	defer done()

	var out []hlc.Timestamp
	err := sqlitex.Exec(conn, `SELECT timestamp FROM sync_messages ORDER BY timestamp ASC`,
		func(stmt *sqlite.Stmt) error {
			tsStr := stmt.ColumnText(0)
			ts, ok := hlc.Parse(tsStr)
			if !ok {
				return fmt.Errorf("repository: corrupt timestamp %q in sync_messages", tsStr)
			}
			out = append(out, ts)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("repository: scanning all timestamps: %w", err)
	}
	return out, nil
}

func (s *SQLite) ApplyLWW(ctx context.Context, ts hlc.Timestamp, msg syncmsg.Message) error {
	conn, done := s.conn(ctx)
	defer done()

	cur, ok, err := s.cellTimestampOn(conn, msg.Dataset, msg.Row, msg.Column)
	if err != nil {
		return err
	}
	if ok && !ts.After(cur) {
		return nil
	}

	err = sqlitex.Exec(conn,
		`INSERT INTO sync_cells (dataset, row, column, value, timestamp) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (dataset, row, column) DO UPDATE SET value = excluded.value, timestamp = excluded.timestamp`,
		nil, msg.Dataset, msg.Row, msg.Column, msg.Value, ts.String())
	if err != nil {
		return fmt.Errorf("repository: applying LWW at %s: %w", ts, err)
	}
	return nil
}

func (s *SQLite) CellTimestamp(ctx context.Context, dataset, row, column string) (hlc.Timestamp, bool, error) {
	conn, done := s.conn(ctx)
	defer done()
	return s.cellTimestampOn(conn, dataset, row, column)
}

func (s *SQLite) cellTimestampOn(conn *sqlite.Conn, dataset, row, column string) (hlc.Timestamp, bool, error) {
	var ts hlc.Timestamp
	found := false
	err := sqlitex.Exec(conn,
		`SELECT timestamp FROM sync_cells WHERE dataset = ? AND row = ? AND column = ?`,
		func(stmt *sqlite.Stmt) error {
			parsed, ok := hlc.Parse(stmt.ColumnText(0))
			if !ok {
				return fmt.Errorf("repository: corrupt cell timestamp for %s/%s/%s", dataset, row, column)
			}
			ts = parsed
			found = true
			return nil
		}, dataset, row, column)
	if err != nil {
		return hlc.Timestamp{}, false, err
	}
	return ts, found, nil
}

func (s *SQLite) GetSyncMetadata(ctx context.Context, key string) (string, bool, error) {
	conn, done := s.conn(ctx)
	defer done()

	value := ""
	found := false
	err := sqlitex.Exec(conn, `SELECT value FROM sync_metadata WHERE key = ?`,
		func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			found = true
			return nil
		}, key)
	if err != nil {
		return "", false, fmt.Errorf("repository: reading metadata %q: %w", key, err)
	}
	return value, found, nil
}

func (s *SQLite) SetSyncMetadata(ctx context.Context, key, value string) error {
	conn, done := s.conn(ctx)
	defer done()
	err := sqlitex.Exec(conn,
		`INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		nil, key, value)
	if err != nil {
		return fmt.Errorf("repository: writing metadata %q: %w", key, err)
	}
	return nil
}

// Transaction runs body inside a single SQLite transaction, via
// sqlitex.Save (a savepoint-based transaction that rolls back automatically
// if body panics or returns a non-nil error) — the mechanism spec §5 relies
// on for "clock persists only after the transaction that stores the
// message commits".
func (s *SQLite) Transaction(ctx context.Context, body func(ctx context.Context) error) (err error) {
	conn := s.pool.Get(ctx)
	defer s.pool.Put(conn)

	release := sqlitex.Save(conn)
	defer func() { release(&err) }()

	return body(context.WithValue(ctx, txnConnKey{}, conn))
}
