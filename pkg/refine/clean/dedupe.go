package clean

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cognicore/refine/pkg/refine/record"
)

// DuplicateRemover drops records whose selected key has been seen before by
// this instance. The seen-set lives as long as the instance, so reusing one
// remover across batches deduplicates across them.
type DuplicateRemover struct {
	key string

	mu   sync.Mutex
	seen map[dedupeKey]struct{}
}

// dedupeKey separates records lacking the key from records whose key
// value happens to print like a missing one.
type dedupeKey struct {
	absent bool
	value  string
}

// NewDuplicateRemover creates a remover keyed on the given field.
func NewDuplicateRemover(key string) (*DuplicateRemover, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: selected_key is required", ErrConfig)
	}
	return &DuplicateRemover{
		key:  key,
		seen: make(map[dedupeKey]struct{}),
	}, nil
}

// Name implements Step.
func (d *DuplicateRemover) Name() string { return "DuplicateRemover" }

// OrderSensitive implements OrderSensitive: the first record with a
// given key wins.
func (d *DuplicateRemover) OrderSensitive() bool { return true }

// IsDuplicate records the key of rec and reports whether it was already seen.
func (d *DuplicateRemover) IsDuplicate(rec record.Record) bool {
	var key dedupeKey
	if v := record.Field(rec, d.key, nil); v == nil {
		key.absent = true
	} else {
		key.value = record.String(v)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

// Process implements Step.
func (d *DuplicateRemover) Process(rec record.Record) (record.Record, bool) {
	if !record.Valid(rec) || d.IsDuplicate(rec) {
		return nil, false
	}
	return rec, true
}

// RemoveDuplicates clears the seen-set and returns the first record for each
// distinct key, in input order.
func (d *DuplicateRemover) RemoveDuplicates(recs []record.Record) []record.Record {
	d.Reset()
	out := make([]record.Record, 0, len(recs))
	for _, rec := range recs {
		if kept, ok := d.Process(rec); ok {
			out = append(out, kept)
		}
	}
	return out
}

// Reset forgets every key seen so far.
func (d *DuplicateRemover) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.seen)
}

// Seen returns the number of distinct keys recorded.
func (d *DuplicateRemover) Seen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Config implements Step.
func (d *DuplicateRemover) Config() map[string]any {
	return map[string]any{
		"selected_key":      d.key,
		"seen_values_count": d.Seen(),
	}
}
