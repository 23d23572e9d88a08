package clean

import "github.com/cognicore/refine/pkg/refine/record"

// AnnotatorOptions selects the derived fields to attach.
type AnnotatorOptions struct {
	AddWordCount     bool
	AddSentenceCount bool
}

// MetadataAnnotator attaches word_count and sentence_count to records.
//
// The counts are computed per call and only ever live on the returned
// record; the annotator itself holds nothing but its two flags.
type MetadataAnnotator struct {
	opts AnnotatorOptions
}

// NewMetadataAnnotator creates an annotator.
func NewMetadataAnnotator(opts AnnotatorOptions) *MetadataAnnotator {
	return &MetadataAnnotator{opts: opts}
}

// Name implements Step.
func (m *MetadataAnnotator) Name() string { return "MetadataAnnotator" }

// Process implements Step.
func (m *MetadataAnnotator) Process(rec record.Record) (record.Record, bool) {
	if !record.Valid(rec) {
		return nil, false
	}

	text := record.Text(rec, "")
	out := rec
	if m.opts.AddWordCount {
		out = out.Set(record.FieldWordCount, WordCount(text))
	}
	if m.opts.AddSentenceCount {
		out = out.Set(record.FieldSentenceCount, SentenceCount(text))
	}
	return out, true
}

// Config implements Step.
func (m *MetadataAnnotator) Config() map[string]any {
	return map[string]any{
		"add_word_count":     m.opts.AddWordCount,
		"add_sentence_count": m.opts.AddSentenceCount,
	}
}
