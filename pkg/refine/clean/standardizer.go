package clean

import (
	"strings"
	"unicode"

	"github.com/cognicore/refine/pkg/refine/record"
)

// hoistedFields are top-level provenance fields moved under metadata.
var hoistedFields = []string{"source", "date"}

// StandardizerOptions selects the normalization passes.
type StandardizerOptions struct {
	TrimWhitespace         bool
	NormalizeWhitespace    bool
	StandardizePunctuation bool
}

// DefaultStandardizerOptions enables every pass.
func DefaultStandardizerOptions() StandardizerOptions {
	return StandardizerOptions{
		TrimWhitespace:         true,
		NormalizeWhitespace:    true,
		StandardizePunctuation: true,
	}
}

// Standardizer lower-cases text, normalizes whitespace and punctuation, and
// moves provenance fields into the metadata map. It never drops a record.
type Standardizer struct {
	opts StandardizerOptions
}

// NewStandardizer creates a standardizer with the given passes.
func NewStandardizer(opts StandardizerOptions) *Standardizer {
	return &Standardizer{opts: opts}
}

// Name implements Step.
func (s *Standardizer) Name() string { return "Standardizer" }

// Process implements Step.
func (s *Standardizer) Process(rec record.Record) (record.Record, bool) {
	if !record.Valid(rec) {
		return nil, false
	}

	text := s.Standardize(record.Text(rec, ""))

	meta := existingMetadata(rec)
	out := rec
	for _, f := range hoistedFields {
		if !out.Has(f) {
			continue
		}
		meta[f] = record.Field(out, f, nil)
		out = out.Delete(f)
	}

	out = out.Set(record.FieldText, text)
	if len(meta) > 0 {
		out = out.Set(record.FieldMetadata, meta)
	}
	return out, true
}

// Standardize applies the configured passes to text.
func (s *Standardizer) Standardize(text string) string {
	text = strings.ToLower(text)

	if s.opts.TrimWhitespace {
		text = strings.TrimSpace(text)
	}
	if s.opts.NormalizeWhitespace {
		text = collapseRuns(text, unicode.IsSpace, ' ')
	}
	if s.opts.StandardizePunctuation {
		text = foldQuotes(text)
		text = spaceAfterTerminators(text)
		text = collapseRuns(text, isSpaceChar, ' ')
		text = collapseRepeatedTerminators(text)
	}
	return text
}

// Config implements Step.
func (s *Standardizer) Config() map[string]any {
	return map[string]any{
		"trim_whitespace":         s.opts.TrimWhitespace,
		"normalize_whitespace":    s.opts.NormalizeWhitespace,
		"standardize_punctuation": s.opts.StandardizePunctuation,
	}
}

// existingMetadata returns a private copy of the record's metadata map.
// A metadata value that is not a map is kept under "value".
func existingMetadata(rec record.Record) map[string]any {
	meta := make(map[string]any)
	raw, ok := rec.Get(record.FieldMetadata)
	if !ok || raw == nil {
		return meta
	}
	switch m := raw.(type) {
	case map[string]any:
		for k, v := range m {
			meta[k] = v
		}
	case record.Record:
		for k, v := range record.ToMap(m) {
			meta[k] = v
		}
	default:
		meta["value"] = record.Field(rec, record.FieldMetadata, raw)
	}
	return meta
}
