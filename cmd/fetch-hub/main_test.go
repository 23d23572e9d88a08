package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/refine/pkg/refine/dataio"
	"github.com/cognicore/refine/pkg/refine/hub"
	"github.com/cognicore/refine/pkg/refine/record"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/splits":
			fmt.Fprint(w, `{"splits":[
				{"dataset":"qa","config":"default","split":"train"},
				{"dataset":"qa","config":"default","split":"test"}
			]}`)
		case "/rows":
			split := r.URL.Query().Get("split")
			fmt.Fprintf(w, `{"features":[{"feature_idx":0,"name":"question"},{"feature_idx":1,"name":"answer"},{"feature_idx":2,"name":"id"}],
				"rows":[{"row_idx":0,"row":{"question":"%s question?","answer":"yes","id":1}}],
				"num_rows_total":1}`, split)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHub(t *testing.T) *hub.Client {
	t.Helper()
	return hub.New(hub.Options{BaseURL: newTestServer(t).URL})
}

// TestFetchAllSplits tests that every split lands in its own file
func TestFetchAllSplits(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	written, err := fetch(ctx, newTestHub(t), fetchOptions{dataset: "qa", outDir: dir, format: dataio.JSONL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := []string{filepath.Join(dir, "test.jsonl"), filepath.Join(dir, "train.jsonl")}
	if len(written) != 2 || written[0] != want[0] || written[1] != want[1] {
		t.Fatalf("written = %v, want %v", written, want)
	}

	recs, err := dataio.Read(ctx, written[1], "")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	if got, _ := recs[0].Get("question"); got != "train question?" {
		t.Errorf("question = %v", got)
	}
}

// TestFetchMapped tests column mapping on download
func TestFetchMapped(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	written, err := fetch(ctx, newTestHub(t), fetchOptions{
		dataset: "qa", split: "test", outDir: dir, format: dataio.JSON,
		mapFields: true, keepExtra: true,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("written = %v", written)
	}

	recs, err := dataio.Read(ctx, written[0], "")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	rec := recs[0]
	if got := record.Text(rec, ""); got != "test question?" {
		t.Errorf("text = %q", got)
	}
	if got := record.Field(rec, record.FieldOutput, nil); got != "yes" {
		t.Errorf("output = %#v", got)
	}
	meta, _ := rec.Get(record.FieldMetadata)
	if m, ok := meta.(map[string]any); !ok || m["id"] != int64(1) {
		t.Errorf("metadata = %#v", meta)
	}
}

// TestFetchUnknownSplit tests that a missing split is reported
func TestFetchUnknownSplit(t *testing.T) {
	_, err := fetch(context.Background(), newTestHub(t), fetchOptions{
		dataset: "qa", split: "validation", outDir: t.TempDir(), format: dataio.JSONL,
	})
	if !errors.Is(err, hub.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestRunReportsErrors tests that run returns failures to main
func TestRunReportsErrors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	opts := fetchOptions{dataset: "qa", split: "validation", outDir: t.TempDir(), format: dataio.JSONL}

	err := run(ctx, srv.URL, 0, opts)
	if !errors.Is(err, hub.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	opts.split = "train"
	if err := run(ctx, srv.URL, 0, opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(opts.outDir, "train.jsonl")); err != nil {
		t.Errorf("train split not written: %v", err)
	}
}
