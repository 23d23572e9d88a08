package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cognicore/refine/pkg/refine/record"
	"github.com/cognicore/refine/pkg/refine/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, New())
}

func TestStoredRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	meta := map[string]any{"source": "a"}
	ids, err := s.UpsertRecords(ctx, "c", []record.Record{record.MapOf("text", "x", "metadata", meta)})
	if err != nil {
		t.Fatal(err)
	}
	meta["source"] = "changed"

	got, _ := s.GetRecord(ctx, "c", ids[0])
	m, _ := got.Get("metadata")
	if m.(map[string]any)["source"] != "a" {
		t.Error("store shares memory with the caller")
	}
}

func TestConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := record.MapOf("text", fmt.Sprintf("t%d", i))
			if _, err := s.UpsertRecords(ctx, "c", []record.Record{rec}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if n, _ := s.CountRecords(ctx, "c"); n != 20 {
		t.Errorf("count = %d, want 20", n)
	}
	if cols := s.Collections(); len(cols) != 1 || cols[0] != "c" {
		t.Errorf("collections = %v", cols)
	}
}
