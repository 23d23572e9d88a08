// Package fieldmap turns arbitrary dataset columns into the record layout the
// cleaning steps expect: a text field, an optional output field and a
// metadata map holding everything else.
package fieldmap

import (
	"slices"
	"strings"

	"github.com/cognicore/refine/pkg/refine/record"
)

// InputNames are column names recognized as model input, case-insensitive.
var InputNames = []string{"text", "input", "prompt", "user", "system", "messages"}

// Mapper maps dataset columns onto text, output and metadata.
type Mapper struct {
	Input     []string `yaml:"input"`
	Output    []string `yaml:"output"`
	Extra     []string `yaml:"extra"`
	KeepExtra bool     `yaml:"keep_extra"`
}

// Detect builds a mapper from a column list. Inputs are the columns named in
// InputNames, or the first column when none match. The second column is the
// output unless it is already an input. With keepExtra, every remaining
// column becomes metadata.
func Detect(columns []string, keepExtra bool) *Mapper {
	m := &Mapper{KeepExtra: keepExtra}
	for _, c := range columns {
		if slices.Contains(InputNames, strings.ToLower(c)) {
			m.Input = append(m.Input, c)
		}
	}
	if len(m.Input) == 0 && len(columns) > 0 {
		m.Input = []string{columns[0]}
	}
	if len(columns) > 1 && !slices.Contains(m.Input, columns[1]) {
		m.Output = []string{columns[1]}
	}
	if keepExtra {
		for _, c := range columns {
			if !slices.Contains(m.Input, c) && !slices.Contains(m.Output, c) {
				m.Extra = append(m.Extra, c)
			}
		}
	}
	return m
}

// DetectRecords runs Detect over the union of fields of recs, in first-seen
// order.
func DetectRecords(recs []record.Record, keepExtra bool) *Mapper {
	var columns []string
	seen := make(map[string]bool)
	for _, rec := range recs {
		if !record.Valid(rec) {
			continue
		}
		for _, f := range rec.Fields() {
			if !seen[f] {
				seen[f] = true
				columns = append(columns, f)
			}
		}
	}
	return Detect(columns, keepExtra)
}

// Empty reports whether the mapper has no input columns and would map every
// record to empty text.
func (m *Mapper) Empty() bool {
	return m == nil || len(m.Input) == 0
}

// Map produces a cleaning record from rec. The text field joins the input
// columns with spaces; output does the same for output columns. Extras go
// into metadata when KeepExtra is set. Absent and null columns are skipped.
func (m *Mapper) Map(rec record.Record) record.Record {
	if !record.Valid(rec) {
		return nil
	}
	out := record.NewMap().Set(record.FieldText, join(rec, m.Input))
	if len(m.Output) > 0 {
		out = out.Set(record.FieldOutput, join(rec, m.Output))
	}
	if meta := m.extras(rec); len(meta) > 0 {
		out = out.Set(record.FieldMetadata, meta)
	}
	return out
}

// MapAll maps every valid record in recs.
func (m *Mapper) MapAll(recs []record.Record) []record.Record {
	out := make([]record.Record, 0, len(recs))
	for _, rec := range recs {
		if mapped := m.Map(rec); mapped != nil {
			out = append(out, mapped)
		}
	}
	return out
}

func (m *Mapper) extras(rec record.Record) map[string]any {
	if !m.KeepExtra || len(m.Extra) == 0 {
		return nil
	}
	meta := make(map[string]any, len(m.Extra))
	for _, f := range m.Extra {
		if v, ok := rec.Get(f); ok {
			meta[f] = record.Field(rec, f, v)
		}
	}
	return meta
}

func join(rec record.Record, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := rec.Get(f)
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString {
			parts = append(parts, s)
			continue
		}
		parts = append(parts, record.String(record.Field(rec, f, v)))
	}
	return strings.Join(parts, " ")
}
