// Package auditdb indexes the JSONL audit sink into SQLite for querying.
// The sink stays the source of truth; the index can be rebuilt from it
// at any time.
package auditdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/raspguard/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	source        TEXT NOT NULL,
	sink_line     INTEGER NOT NULL,
	line_hash     TEXT NOT NULL,
	timestamp     TEXT NOT NULL,
	type          TEXT NOT NULL,
	details       TEXT NOT NULL,
	caller        TEXT NOT NULL,
	filename      TEXT NOT NULL,
	file_hash     TEXT NOT NULL,
	modified_time TEXT NOT NULL,
	line          INTEGER NOT NULL,
	ip            TEXT NOT NULL,
	is_eval       INTEGER NOT NULL,
	was_blocked   INTEGER NOT NULL,
	UNIQUE (source, sink_line, line_hash)
);
CREATE INDEX IF NOT EXISTS records_timestamp ON records(timestamp);
CREATE INDEX IF NOT EXISTS records_type ON records(type);
`

// DB is an audit index.
type DB struct {
	db *sql.DB
}

// Open opens or creates the index at path. Use ":memory:" for a
// throwaway index.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit index: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit index schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the index.
func (d *DB) Close() error {
	return d.db.Close()
}

// Entry is a record together with where it sits in a sink.
type Entry struct {
	Source string // sink path
	Line   int    // 1-based line number in Source
	Record audit.Record
}

// Entries pairs the records of a sink read with their line numbers.
func Entries(source string, res *audit.ReadResult) []Entry {
	out := make([]Entry, 0, len(res.Records))
	for i, r := range res.Records {
		line := 0
		if i < len(res.Lines) {
			line = res.Lines[i]
		}
		out = append(out, Entry{Source: source, Line: line, Record: r})
	}
	return out
}

// Import adds entries to the index and returns how many were new.
// Rows are keyed on sink position plus content, so re-importing the whole
// sink is safe while identical records on separate lines stay distinct.
// A rewritten sink whose line N now holds a different record indexes the
// new record alongside the old one.
func (d *DB) Import(ctx context.Context, entries []Entry) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO records
		(source, sink_line, line_hash, timestamp, type, details, caller, filename,
		 file_hash, modified_time, line, ip, is_eval, was_blocked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, e := range entries {
		r := e.Record
		key, err := lineHash(r)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, e.Source, e.Line, key, r.Timestamp, r.Type, r.Details,
			r.Caller, r.Filename, r.FileHash, r.ModifiedTime, r.Line, r.IP, r.IsEval, r.WasBlocked)
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return added, nil
}

func lineHash(r audit.Record) (string, error) {
	line, err := audit.Encode(r)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(line)
	return hex.EncodeToString(h[:]), nil
}

// Query returns indexed records matching filter, oldest first. A
// non-positive limit returns everything.
func (d *DB) Query(ctx context.Context, filter audit.Filter, limit int) ([]audit.Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.BlockedOnly {
		where = append(where, "was_blocked = 1")
	}
	if filter.AllowedOnly {
		where = append(where, "was_blocked = 0")
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.Format(audit.TimestampFormat))
	}
	if !filter.Until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.Until.Format(audit.TimestampFormat))
	}

	q := `SELECT timestamp, type, details, caller, filename, file_hash,
		modified_time, line, ip, is_eval, was_blocked FROM records`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp, id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit index: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var r audit.Record
		if err := rows.Scan(&r.Timestamp, &r.Type, &r.Details, &r.Caller, &r.Filename,
			&r.FileHash, &r.ModifiedTime, &r.Line, &r.IP, &r.IsEval, &r.WasBlocked); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts returns per-type totals, sorted by type.
func (d *DB) Counts(ctx context.Context) ([]audit.TypeCount, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT type, COUNT(*), SUM(was_blocked)
		FROM records GROUP BY type ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("count audit index: %w", err)
	}
	defer rows.Close()

	var out []audit.TypeCount
	for rows.Next() {
		var tc audit.TypeCount
		if err := rows.Scan(&tc.Type, &tc.Total, &tc.Blocked); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
