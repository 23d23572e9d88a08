// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/cognicore/refine/pkg/refine/record"
	"github.com/cognicore/refine/pkg/refine/store"
)

// Run exercises st through the full Store contract. st must be empty.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	batch := []record.Record{
		record.MapOf("text", "first", "metadata", map[string]any{"source": "a"}),
		record.MapOf("_id", "fixed", "text", "second", "word_count", 1),
		record.RowOf([]string{"text", "lang"}, []string{"third", "en"}),
	}
	ids, err := st.UpsertRecords(ctx, "clean", batch)
	if err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}
	if len(ids) != 3 || ids[1] != "fixed" || ids[0] == "" || ids[0] == ids[2] {
		t.Fatalf("ids = %v", ids)
	}

	got, err := st.GetRecord(ctx, "clean", ids[0])
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record.Text(got, "") != "first" || record.Field(got, record.FieldID, nil) != ids[0] {
		t.Errorf("GetRecord = %v", record.ToMap(got))
	}
	fields := got.Fields()
	if len(fields) != 3 || fields[0] != "text" || fields[1] != "metadata" || fields[2] != "_id" {
		t.Errorf("field order = %v", fields)
	}
	meta, _ := got.Get("metadata")
	if m, ok := meta.(map[string]any); !ok || m["source"] != "a" {
		t.Errorf("metadata = %#v", meta)
	}

	if _, err := st.GetRecord(ctx, "clean", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing id err = %v, want ErrNotFound", err)
	}
	if _, err := st.GetRecord(ctx, "other", ids[0]); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("other collection err = %v, want ErrNotFound", err)
	}

	// Upserting an existing id replaces the body and keeps the position.
	if _, err := st.UpsertRecords(ctx, "clean", []record.Record{
		record.MapOf("_id", "fixed", "text", "second v2"),
	}); err != nil {
		t.Fatalf("UpsertRecords update: %v", err)
	}

	all, err := st.ListRecords(ctx, "clean", 0)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	wantTexts := []string{"first", "second v2", "third"}
	if len(all) != len(wantTexts) {
		t.Fatalf("ListRecords returned %d records", len(all))
	}
	for i, want := range wantTexts {
		if got := record.Text(all[i], ""); got != want {
			t.Errorf("record %d text = %q, want %q", i, got, want)
		}
	}
	if all[1].Has("word_count") {
		t.Error("update must replace the whole body")
	}

	limited, err := st.ListRecords(ctx, "clean", 2)
	if err != nil {
		t.Fatalf("ListRecords limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d", len(limited))
	}

	n, err := st.CountRecords(ctx, "clean")
	if err != nil || n != 3 {
		t.Errorf("CountRecords = %d, %v", n, err)
	}

	if _, err := st.UpsertRecords(ctx, "", batch); err == nil {
		t.Error("empty collection name should fail")
	}
	if _, err := st.UpsertRecords(ctx, "clean", []record.Record{nil}); err == nil {
		t.Error("nil record should fail")
	}

	// A failed replace leaves the collection as it was.
	if _, err := st.ReplaceCollection(ctx, "clean", []record.Record{
		record.MapOf("text", "replacement"), nil,
	}); err == nil {
		t.Error("ReplaceCollection with a nil record should fail")
	}
	if n, err := st.CountRecords(ctx, "clean"); err != nil || n != 3 {
		t.Errorf("after failed replace: CountRecords = %d, %v", n, err)
	}

	replaced, err := st.ReplaceCollection(ctx, "clean", []record.Record{
		record.MapOf("_id", "fixed", "text", "only"),
	})
	if err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}
	if len(replaced) != 1 || replaced[0] != "fixed" {
		t.Errorf("ReplaceCollection ids = %v", replaced)
	}
	after, err := st.ListRecords(ctx, "clean", 0)
	if err != nil || len(after) != 1 || record.Text(after[0], "") != "only" {
		t.Errorf("after replace: %d records, %v", len(after), err)
	}
	if _, err := st.ReplaceCollection(ctx, "", nil); err == nil {
		t.Error("ReplaceCollection with an empty name should fail")
	}

	if err := st.DeleteCollection(ctx, "clean"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	empty, err := st.ListRecords(ctx, "clean", 0)
	if err != nil || len(empty) != 0 {
		t.Errorf("after delete: %d records, %v", len(empty), err)
	}
}
