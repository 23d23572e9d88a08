// Package postgres stores records in a PostgreSQL table through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cognicore/refine/pkg/refine/record"
	"github.com/cognicore/refine/pkg/refine/store"
)

// Schema creates the records table. Bodies are json, not jsonb, so field
// order survives.
const Schema = `
CREATE TABLE IF NOT EXISTS refine_records (
	seq BIGSERIAL PRIMARY KEY,
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body JSON NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_refine_records_collection ON refine_records (collection, seq);
`

const (
	upsertSQL = `INSERT INTO refine_records (collection, id, body, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	getSQL       = `SELECT body FROM refine_records WHERE collection = $1 AND id = $2`
	listSQL      = `SELECT body FROM refine_records WHERE collection = $1 ORDER BY seq`
	listLimitSQL = `SELECT body FROM refine_records WHERE collection = $1 ORDER BY seq LIMIT $2`
	countSQL     = `SELECT COUNT(*) FROM refine_records WHERE collection = $1`
	deleteSQL    = `DELETE FROM refine_records WHERE collection = $1`
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db  *sql.DB
	ids *store.IDGenerator
	now func() time.Time
}

// Open connects with a pgx DSN and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection pool. The caller runs Migrate when the
// schema may be missing.
func New(db *sql.DB) *Store {
	return &Store{db: db, ids: store.NewIDGenerator(), now: time.Now}
}

// Migrate creates the records table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRecords implements store.Store.
func (s *Store) UpsertRecords(ctx context.Context, collection string, recs []record.Record) ([]string, error) {
	return s.write(ctx, collection, recs, false)
}

// ReplaceCollection implements store.Store. The delete and the inserts
// share one transaction.
func (s *Store) ReplaceCollection(ctx context.Context, collection string, recs []record.Record) ([]string, error) {
	return s.write(ctx, collection, recs, true)
}

func (s *Store) write(ctx context.Context, collection string, recs []record.Record, replace bool) ([]string, error) {
	if err := store.ValidCollection(collection); err != nil {
		return nil, err
	}
	docs, err := store.PrepareAll(s.ids, recs)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, deleteSQL, collection); err != nil {
			return nil, fmt.Errorf("postgres: clear %s: %w", collection, err)
		}
	}
	now := s.now().UTC()
	for _, d := range docs {
		if _, err := tx.ExecContext(ctx, upsertSQL, collection, d.ID, string(d.Body), now); err != nil {
			return nil, fmt.Errorf("postgres: upsert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return store.IDs(docs), nil
}

// GetRecord implements store.Store.
func (s *Store) GetRecord(ctx context.Context, collection, id string) (record.Record, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, getSQL, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", id, err)
	}
	return store.Decode(body)
}

// ListRecords implements store.Store.
func (s *Store) ListRecords(ctx context.Context, collection string, limit int) ([]record.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, listLimitSQL, collection, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, listSQL, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	out := []record.Record{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		rec, err := store.Decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRecords implements store.Store.
func (s *Store) CountRecords(ctx context.Context, collection string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countSQL, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// DeleteCollection implements store.Store.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL, collection); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", collection, err)
	}
	return nil
}
