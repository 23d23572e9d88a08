// Package record defines the record capability shared by every cleaning stage.
//
// A record is an ordered set of named fields. Two shapes exist at the
// boundary: Map, an insertion-ordered key/value map, and Row, a tabular row
// with named columns. Stages program against the Record interface only, so
// both shapes behave identically.
//
// Records are values: Set and Delete return a new record and leave the
// receiver untouched.
package record

import (
	"errors"
	"fmt"
)

// Conventional field names.
const (
	FieldText          = "text"
	FieldOutput        = "output"
	FieldMetadata      = "metadata"
	FieldWordCount     = "word_count"
	FieldSentenceCount = "sentence_count"
	FieldID            = "_id"
)

// ErrUnsupported is returned when a value is not a known record shape.
var ErrUnsupported = errors.New("unsupported record representation")

// Record is the capability every record shape implements.
type Record interface {
	// Get returns the raw value stored under field.
	Get(field string) (any, bool)
	// Has reports whether field is present.
	Has(field string) bool
	// Set returns a copy of the record with field set to value.
	Set(field string, value any) Record
	// Delete returns a copy of the record without field.
	Delete(field string) Record
	// Fields returns the field names in order.
	Fields() []string
}

// Valid reports whether rec is a usable record. Nil interfaces and nil
// pointers of the built-in shapes are not.
func Valid(rec Record) bool {
	switch r := rec.(type) {
	case nil:
		return false
	case *Map:
		return r != nil
	case *Row:
		return r != nil
	default:
		return true
	}
}

// From converts a decoded value into a Record.
func From(v any) (Record, error) {
	switch t := v.(type) {
	case Record:
		if !Valid(t) {
			return nil, ErrUnsupported
		}
		return t, nil
	case map[string]any:
		if t == nil {
			return nil, ErrUnsupported
		}
		return FromMap(t), nil
	case map[string]string:
		if t == nil {
			return nil, ErrUnsupported
		}
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return FromMap(m), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

// ToMap flattens rec into a plain map. Nested values are shared, not copied.
func ToMap(rec Record) map[string]any {
	if !Valid(rec) {
		return nil
	}
	fields := rec.Fields()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, _ := rec.Get(f)
		out[f] = v
	}
	return out
}

// Equal reports whether two records hold the same fields in the same order
// with equal string forms.
func Equal(a, b Record) bool {
	if !Valid(a) || !Valid(b) {
		return Valid(a) == Valid(b)
	}
	fa, fb := a.Fields(), b.Fields()
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if fa[i] != fb[i] {
			return false
		}
		va, _ := a.Get(fa[i])
		vb, _ := b.Get(fb[i])
		if String(va) != String(vb) {
			return false
		}
	}
	return true
}
