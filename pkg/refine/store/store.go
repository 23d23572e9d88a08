// Package store persists record batches as JSON documents grouped into
// named collections.
package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/refine/pkg/refine/record"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Store is a document store for cleaned records.
type Store interface {
	Close() error

	// UpsertRecords stores recs in collection, keyed by their _id field.
	// Records without an _id get a new one. The ids are returned in input
	// order.
	UpsertRecords(ctx context.Context, collection string, recs []record.Record) ([]string, error)
	// GetRecord returns one record or ErrNotFound.
	GetRecord(ctx context.Context, collection, id string) (record.Record, error)
	// ListRecords returns up to limit records in first-insertion order. A
	// limit <= 0 returns all of them.
	ListRecords(ctx context.Context, collection string, limit int) ([]record.Record, error)
	// CountRecords returns the number of records in collection.
	CountRecords(ctx context.Context, collection string) (int, error)
	// DeleteCollection removes every record in collection.
	DeleteCollection(ctx context.Context, collection string) error
	// ReplaceCollection swaps the contents of collection for recs in one
	// step. On error the previous contents are left untouched.
	ReplaceCollection(ctx context.Context, collection string, recs []record.Record) ([]string, error)
}

// IDGenerator issues monotonic ULIDs. It is safe for concurrent use.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator creates an id generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a fresh id.
func (g *IDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Now(), g.entropy).String()
}

// Document is a record prepared for storage.
type Document struct {
	ID   string
	Body []byte
}

// Prepare assigns an _id to rec when it has none and encodes it. Non-string
// ids are stored in their string form.
func Prepare(gen *IDGenerator, rec record.Record) (Document, error) {
	if !record.Valid(rec) {
		return Document{}, record.ErrUnsupported
	}
	id := ""
	if v := record.Field(rec, record.FieldID, nil); v != nil {
		id = record.String(v)
	}
	if strings.TrimSpace(id) == "" {
		id = gen.New()
	}
	rec = rec.Set(record.FieldID, id)

	body, err := json.Marshal(rec)
	if err != nil {
		return Document{}, fmt.Errorf("encode record %s: %w", id, err)
	}
	return Document{ID: id, Body: body}, nil
}

// PrepareAll prepares every record of a batch.
func PrepareAll(gen *IDGenerator, recs []record.Record) ([]Document, error) {
	docs := make([]Document, 0, len(recs))
	for i, rec := range recs {
		doc, err := Prepare(gen, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// IDs returns the ids of docs in order.
func IDs(docs []Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

// Decode parses a stored document body.
func Decode(body []byte) (record.Record, error) {
	m, err := record.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return m, nil
}

// ValidCollection rejects empty collection names.
func ValidCollection(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("collection name is required")
	}
	return nil
}
