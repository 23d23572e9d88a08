package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/refine/pkg/refine/record"
	"github.com/cognicore/refine/pkg/refine/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db  *sql.DB
	ids *store.IDGenerator
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// records table if needed.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every connection would open its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db, ids: store.NewIDGenerator()}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(collection, id)
);

CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection, seq);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// UpsertRecords stores recs in one transaction. Existing ids keep their
// position and get the new body.
func (s *sqliteStore) UpsertRecords(ctx context.Context, collection string, recs []record.Record) ([]string, error) {
	return s.write(ctx, collection, recs, false)
}

// ReplaceCollection deletes the collection and inserts recs in the same
// transaction.
func (s *sqliteStore) ReplaceCollection(ctx context.Context, collection string, recs []record.Record) ([]string, error) {
	return s.write(ctx, collection, recs, true)
}

func (s *sqliteStore) write(ctx context.Context, collection string, recs []record.Record, replace bool) ([]string, error) {
	if err := store.ValidCollection(collection); err != nil {
		return nil, err
	}
	docs, err := store.PrepareAll(s.ids, recs)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
			return nil, fmt.Errorf("clear %s: %w", collection, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records(collection, id, body, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, collection, d.ID, string(d.Body), now); err != nil {
			return nil, fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return store.IDs(docs), nil
}

// GetRecord loads one record by id.
func (s *sqliteStore) GetRecord(ctx context.Context, collection, id string) (record.Record, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM records WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return store.Decode([]byte(body))
}

// ListRecords loads records in insertion order.
func (s *sqliteStore) ListRecords(ctx context.Context, collection string, limit int) ([]record.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM records WHERE collection = ? ORDER BY seq LIMIT ?`, collection, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []record.Record{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		rec, err := store.Decode([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRecords counts the records of a collection.
func (s *sqliteStore) CountRecords(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, collection,
	).Scan(&n)
	return n, err
}

// DeleteCollection removes all records of a collection.
func (s *sqliteStore) DeleteCollection(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection)
	return err
}
