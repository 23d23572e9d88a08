package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cognicore/refine/pkg/refine/record"
	"github.com/cognicore/refine/pkg/refine/store"
)

type collection struct {
	order []string
	docs  map[string][]byte
}

// Store is an in-memory implementation of store.Store for tests and
// one-shot runs.
type Store struct {
	mu          sync.RWMutex
	ids         *store.IDGenerator
	collections map[string]*collection
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		ids:         store.NewIDGenerator(),
		collections: make(map[string]*collection),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// UpsertRecords implements store.Store.
func (s *Store) UpsertRecords(ctx context.Context, name string, recs []record.Record) ([]string, error) {
	if err := store.ValidCollection(name); err != nil {
		return nil, err
	}
	docs, err := store.PrepareAll(s.ids, recs)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string][]byte)}
		s.collections[name] = c
	}
	c.put(docs)
	return store.IDs(docs), nil
}

// ReplaceCollection implements store.Store.
func (s *Store) ReplaceCollection(ctx context.Context, name string, recs []record.Record) ([]string, error) {
	if err := store.ValidCollection(name); err != nil {
		return nil, err
	}
	docs, err := store.PrepareAll(s.ids, recs)
	if err != nil {
		return nil, err
	}

	c := &collection{docs: make(map[string][]byte, len(docs))}
	c.put(docs)

	s.mu.Lock()
	s.collections[name] = c
	s.mu.Unlock()
	return store.IDs(docs), nil
}

func (c *collection) put(docs []store.Document) {
	for _, d := range docs {
		if _, exists := c.docs[d.ID]; !exists {
			c.order = append(c.order, d.ID)
		}
		c.docs[d.ID] = d.Body
	}
}

// GetRecord implements store.Store.
func (s *Store) GetRecord(ctx context.Context, name, id string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	body, ok := c.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Decode(body)
}

// ListRecords implements store.Store.
func (s *Store) ListRecords(ctx context.Context, name string, limit int) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return []record.Record{}, nil
	}
	ids := c.order
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := store.Decode(c.docs[id])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// CountRecords implements store.Store.
func (s *Store) CountRecords(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[name]; ok {
		return len(c.order), nil
	}
	return 0, nil
}

// DeleteCollection implements store.Store.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

// Collections returns the collection names in sorted order.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
