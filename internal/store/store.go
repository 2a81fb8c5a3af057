// Package store persists runs and batches in a local sqlite database.
//
// Full run and batch records are serialized to gzip-compressed JSON blobs;
// a handful of columns are duplicated for querying. Writes to a run in a
// terminal state are rejected with [ErrRunFinalized].
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	_ "modernc.org/sqlite"
)

// ErrRunFinalized is returned by write operations targeting a run that has
// already reached a terminal state.
var ErrRunFinalized = errors.New("run is in a terminal state")

// ErrNotFound is returned when a run or batch id does not exist.
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT NOT NULL DEFAULT '',
	suite       TEXT NOT NULL,
	scenario    TEXT NOT NULL,
	tier        TEXT NOT NULL,
	backend     TEXT NOT NULL,
	model       TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	payload     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_batch ON runs(batch_id);

CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP,
	payload    BLOB NOT NULL
);
`

// Store is the sqlite-backed persistence layer. It is safe for concurrent
// use; sqlite writes are serialized through a single connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	// modernc sqlite tolerates one writer; a single connection avoids
	// SQLITE_BUSY under concurrent lanes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// encode serializes v to gzip-compressed JSON.
func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode deserializes a gzip-compressed JSON blob into v.
func decode(blob []byte, v any) error {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return err
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// withTx runs fn inside a transaction, committing on nil error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
