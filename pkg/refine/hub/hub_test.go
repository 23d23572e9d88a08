package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cognicore/refine/pkg/refine/record"
)

// fakeHub serves a dataset "demo" with a default config holding train (5
// rows) and test (1 row), plus an "extra" config that Load must ignore.
func fakeHub(t *testing.T, token string) (*httptest.Server, *int32) {
	t.Helper()
	var rowCalls int32

	splits := map[string]int{"train": 5, "test": 1}
	mux := http.NewServeMux()
	mux.HandleFunc("/splits", func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("dataset") != "demo" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"The dataset does not exist."}`)
			return
		}
		fmt.Fprint(w, `{"splits":[
			{"dataset":"demo","config":"default","split":"train"},
			{"dataset":"demo","config":"default","split":"test"},
			{"dataset":"demo","config":"extra","split":"train"}
		]}`)
	})
	mux.HandleFunc("/rows", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&rowCalls, 1)
		q := r.URL.Query()
		total, ok := splits[q.Get("split")]
		if !ok || q.Get("config") != "default" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		length, _ := strconv.Atoi(q.Get("length"))

		type row struct {
			Index int            `json:"row_idx"`
			Row   map[string]any `json:"row"`
		}
		resp := map[string]any{
			"features": []map[string]any{
				{"feature_idx": 0, "name": "prompt"},
				{"feature_idx": 1, "name": "answer"},
				{"feature_idx": 2, "name": "score"},
			},
			"num_rows_total": total,
		}
		rows := []row{}
		for i := offset; i < offset+length && i < total; i++ {
			rows = append(rows, row{Index: i, Row: map[string]any{
				"score":  i,
				"answer": fmt.Sprintf("a%d", i),
				"prompt": fmt.Sprintf("%s %d", q.Get("split"), i),
			}})
		}
		resp["rows"] = rows
		json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &rowCalls
}

func TestSplits(t *testing.T) {
	srv, _ := fakeHub(t, "secret")
	c := New(Options{BaseURL: srv.URL, Token: "secret"})

	splits, err := c.Splits(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Splits: %v", err)
	}
	if len(splits) != 3 || splits[0] != (Split{Dataset: "demo", Config: "default", Split: "train"}) {
		t.Errorf("splits = %+v", splits)
	}
}

func TestSplitsNotFound(t *testing.T) {
	srv, _ := fakeHub(t, "")
	c := New(Options{BaseURL: srv.URL})

	_, err := c.Splits(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if want := "The dataset does not exist."; !strings.Contains(err.Error(), want) {
		t.Errorf("err %q should carry the API message", err)
	}
}

func TestRowsPaging(t *testing.T) {
	srv, calls := fakeHub(t, "")
	c := New(Options{BaseURL: srv.URL, PageSize: 2})

	rows, err := c.Rows(context.Background(), "demo", "default", "train", 0)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want 5", len(rows))
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Errorf("made %d row calls, want 3", got)
	}

	first := rows[0]
	if _, ok := first.(*record.Row); !ok {
		t.Errorf("rows should be *record.Row, got %T", first)
	}
	fields := first.Fields()
	if len(fields) != 3 || fields[0] != "prompt" || fields[1] != "answer" || fields[2] != "score" {
		t.Errorf("fields = %v, want feature order", fields)
	}
	if got := record.Field(rows[4], "score", nil); got != int64(4) {
		t.Errorf("score = %#v, want int64(4)", got)
	}
	if got, _ := rows[4].Get("prompt"); got != "train 4" {
		t.Errorf("prompt = %v", got)
	}
}

func TestRowsLimit(t *testing.T) {
	srv, calls := fakeHub(t, "")
	c := New(Options{BaseURL: srv.URL, PageSize: 2})

	rows, err := c.Rows(context.Background(), "demo", "default", "train", 3)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("got %d rows, want 3", len(rows))
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Errorf("made %d row calls, want 2", got)
	}
}

func TestLoad(t *testing.T) {
	srv, _ := fakeHub(t, "")
	c := New(Options{BaseURL: srv.URL})
	ctx := context.Background()

	all, err := c.Load(ctx, "demo", "")
	if err != nil {
		t.Fatalf("Load all: %v", err)
	}
	if len(all) != 2 || len(all["train"]) != 5 || len(all["test"]) != 1 {
		t.Errorf("Load all = %d splits (train %d, test %d)", len(all), len(all["train"]), len(all["test"]))
	}

	one, err := c.Load(ctx, "demo", "test")
	if err != nil {
		t.Fatalf("Load test: %v", err)
	}
	if len(one) != 1 || len(one["test"]) != 1 {
		t.Errorf("Load test = %v", one)
	}

	if _, err := c.Load(ctx, "demo", "validation"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown split err = %v, want ErrNotFound", err)
	}
}

func TestLoadConfigLimit(t *testing.T) {
	srv, calls := fakeHub(t, "")
	c := New(Options{BaseURL: srv.URL, PageSize: 10})
	ctx := context.Background()

	got, err := c.LoadConfig(ctx, "demo", "default", "", 2)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(got) != 2 || len(got["train"]) != 2 || len(got["test"]) != 1 {
		t.Errorf("LoadConfig = train %d, test %d", len(got["train"]), len(got["test"]))
	}
	if n := atomic.LoadInt32(calls); n != 2 {
		t.Errorf("row calls = %d, want one per split", n)
	}

	if _, err := c.LoadConfig(ctx, "demo", "missing", "", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown config err = %v, want ErrNotFound", err)
	}
}

func TestRetriesTransientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"splits":[{"dataset":"d","config":"default","split":"train"}]}`)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Backoff: time.Millisecond})
	splits, err := c.Splits(context.Background(), "d")
	if err != nil {
		t.Fatalf("Splits: %v", err)
	}
	if n := atomic.LoadInt32(&hits); len(splits) != 1 || n != 3 {
		t.Errorf("splits=%d hits=%d", len(splits), n)
	}
}

func TestGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, MaxRetries: 1, Backoff: time.Millisecond})
	if _, err := c.Splits(context.Background(), "d"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want a non-NotFound failure", err)
	}
}

func TestRespectsCancellation(t *testing.T) {
	srv, _ := fakeHub(t, "")
	c := New(Options{BaseURL: srv.URL, RPS: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Splits(ctx, "demo"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
