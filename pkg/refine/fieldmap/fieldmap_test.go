package fieldmap

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/cognicore/refine/pkg/refine/record"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		keep    bool
		want    Mapper
	}{
		{
			name:    "named inputs",
			columns: []string{"id", "Prompt", "answer", "System"},
			keep:    true,
			want:    Mapper{Input: []string{"Prompt", "System"}, Extra: []string{"id", "answer"}, KeepExtra: true},
		},
		{
			name:    "fallback to first column",
			columns: []string{"question", "answer", "lang"},
			keep:    true,
			want:    Mapper{Input: []string{"question"}, Output: []string{"answer"}, Extra: []string{"lang"}, KeepExtra: true},
		},
		{
			name:    "second column already input",
			columns: []string{"text", "prompt", "label"},
			keep:    false,
			want:    Mapper{Input: []string{"text", "prompt"}},
		},
		{
			name:    "single column",
			columns: []string{"body"},
			keep:    true,
			want:    Mapper{Input: []string{"body"}, KeepExtra: true},
		},
		{
			name:    "no columns",
			columns: nil,
			keep:    true,
			want:    Mapper{KeepExtra: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.columns, tt.keep)
			if !reflect.DeepEqual(got.Input, tt.want.Input) ||
				!reflect.DeepEqual(got.Output, tt.want.Output) ||
				!reflect.DeepEqual(got.Extra, tt.want.Extra) {
				t.Errorf("Detect(%v) = %+v, want %+v", tt.columns, *got, tt.want)
			}
		})
	}
}

func TestMap(t *testing.T) {
	m := &Mapper{
		Input:     []string{"question", "context"},
		Output:    []string{"answer"},
		Extra:     []string{"lang", "score"},
		KeepExtra: true,
	}
	rec := record.MapOf(
		"question", "What is Go?",
		"context", "A language.",
		"answer", "A language.",
		"lang", "en",
		"score", 3,
	)

	out := m.Map(rec)
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"text":"What is Go? A language.","output":"A language.","metadata":{"lang":"en","score":3}}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

func TestMapSkipsAbsentColumns(t *testing.T) {
	m := &Mapper{Input: []string{"a", "b"}, Extra: []string{"x"}, KeepExtra: true}
	out := m.Map(record.RowOf([]string{"b"}, []string{"only b"}))

	if got := record.Text(out, ""); got != "only b" {
		t.Errorf("text = %q", got)
	}
	if out.Has("output") || out.Has("metadata") {
		t.Errorf("unexpected fields %v", out.Fields())
	}
}

func TestMapExtrasNeedKeepExtra(t *testing.T) {
	m := &Mapper{Input: []string{"text"}, Extra: []string{"lang"}}
	out := m.Map(record.MapOf("text", "x", "lang", "en"))
	if out.Has("metadata") {
		t.Error("extras must be dropped without KeepExtra")
	}
}

func TestDetectRecordsAndMapAll(t *testing.T) {
	recs := []record.Record{
		record.MapOf("prompt", "hi", "completion", "hello"),
		nil,
		record.MapOf("prompt", "bye", "completion", "see you", "source", "chat"),
	}
	m := DetectRecords(recs, true)
	if m.Empty() {
		t.Fatal("mapper has no inputs")
	}
	if !reflect.DeepEqual(m.Extra, []string{"source"}) {
		t.Errorf("extra = %v", m.Extra)
	}

	out := m.MapAll(recs)
	if len(out) != 2 {
		t.Fatalf("mapped %d records", len(out))
	}
	if got := record.Field(out[1], "output", nil); got != "see you" {
		t.Errorf("output = %v", got)
	}
}

func TestMapSkipsNullColumns(t *testing.T) {
	m := &Mapper{Input: []string{"system", "prompt"}}
	out := m.Map(record.MapOf("system", nil, "prompt", "hello"))
	if got := record.Text(out, ""); got != "hello" {
		t.Errorf("text = %q", got)
	}
}
