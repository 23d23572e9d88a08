package clean

import (
	"errors"
	"math"
	"testing"

	"github.com/cognicore/refine/pkg/refine/record"
)

func TestFromSpecBuildsEveryKind(t *testing.T) {
	specs := map[string]map[string]any{
		KindStandardize:      {"trim_whitespace": false},
		KindQualityFilter:    {"min_length": 2, "max_length": float64(10)},
		KindDedupe:           {"selected_key": "text"},
		KindAnnotate:         {"add_word_count": true},
		KindStripMarkup:      nil,
		KindUnicodeNormalize: {"form": "nfkc"},
	}
	for _, kind := range Kinds() {
		raw, ok := specs[kind]
		if !ok {
			t.Errorf("kind %s has no test case", kind)
			continue
		}
		step, err := FromSpec(kind, raw)
		if err != nil {
			t.Errorf("FromSpec(%s): %v", kind, err)
			continue
		}
		if step.Name() == "" {
			t.Errorf("FromSpec(%s) built a nameless step", kind)
		}
	}
}

func TestFromSpecParams(t *testing.T) {
	step, err := FromSpec("Quality_Filter", map[string]any{"min_length": int64(3), "max_length": math.Inf(1)})
	if err != nil {
		t.Fatalf("FromSpec: %v", err)
	}
	cfg := step.Config()
	if cfg["min_length"] != 3 || cfg["max_length"] != nil {
		t.Errorf("config = %v", cfg)
	}

	step, err = FromSpec(KindQualityFilter, map[string]any{"max_length": Unbounded})
	if err != nil {
		t.Fatalf("FromSpec unbounded: %v", err)
	}
	if step.Config()["max_length"] != nil {
		t.Errorf("explicit Unbounded config = %v", step.Config())
	}

	step, _ = FromSpec(KindUnicodeNormalize, nil)
	if step.Config()["form"] != "NFC" {
		t.Errorf("default form = %v", step.Config()["form"])
	}
}

func TestFromSpecErrors(t *testing.T) {
	tests := []struct {
		name string
		kind string
		raw  map[string]any
	}{
		{"unknown kind", "tokenize", nil},
		{"min above max", KindQualityFilter, map[string]any{"min_length": 5, "max_length": 2}},
		{"fractional bound", KindQualityFilter, map[string]any{"min_length": 1.5}},
		{"negative max", KindQualityFilter, map[string]any{"max_length": -5}},
		{"huge uint max", KindQualityFilter, map[string]any{"max_length": uint64(math.MaxUint64)}},
		{"huge float max", KindQualityFilter, map[string]any{"max_length": 1e300}},
		{"negative infinity", KindQualityFilter, map[string]any{"max_length": math.Inf(-1)}},
		{"string bool", KindStandardize, map[string]any{"trim_whitespace": "yes"}},
		{"missing key", KindDedupe, nil},
		{"numeric key", KindDedupe, map[string]any{"selected_key": 3}},
		{"unknown form", KindUnicodeNormalize, map[string]any{"form": "NFX"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromSpec(tt.kind, tt.raw); !errors.Is(err, ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>Hello <b>World</b></p><p>Again</p>", "Hello World Again"},
		{"<script>alert(1)</script>Visible", "Visible"},
		{"<style>p{}</style><div>a</div><div>b</div>", "a b"},
		{"Fish &amp; Chips", "Fish & Chips"},
		{"  plain text  ", "plain text"},
		{"line<br>break", "line break"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMarkupStripperLeavesTextlessRecords(t *testing.T) {
	in := record.MapOf("id", 7)
	out, ok := NewMarkupStripper().Process(in)
	if !ok || out.Has("text") {
		t.Errorf("got %v, %v", out, ok)
	}
}

func TestUnicodeNormalizer(t *testing.T) {
	nfc, _ := NewUnicodeNormalizer("")
	out, _ := nfc.Process(record.MapOf("text", "e\u0301"))
	if got := record.Text(out, ""); got != "\u00e9" {
		t.Errorf("NFC = %q", got)
	}

	nfkc, _ := NewUnicodeNormalizer("NFKC")
	out, _ = nfkc.Process(record.MapOf("text", "\ufb01le"))
	if got := record.Text(out, ""); got != "file" {
		t.Errorf("NFKC = %q", got)
	}
}

func TestStepFunc(t *testing.T) {
	upper := StepFunc{Label: "Tag", Fn: func(rec record.Record) (record.Record, bool) {
		return rec.Set("tagged", true), true
	}}
	if _, ok := upper.Process(nil); ok {
		t.Error("StepFunc must exclude invalid records")
	}
	out, ok := upper.Process(record.MapOf("text", "x"))
	if !ok || record.Field(out, "tagged", nil) != true {
		t.Errorf("got %v", out)
	}
}
